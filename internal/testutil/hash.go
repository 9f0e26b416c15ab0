package testutil

import (
	"crypto/sha512"
	"encoding/hex"
	"os"
	"testing"
)

// SHA512Hex returns the SHA-512 checksum of data as a lowercase hex string.
// Matches the "hash" metadata written for the default algorithm.
func SHA512Hex(data []byte) string {
	h := sha512.Sum512(data)
	return hex.EncodeToString(h[:])
}

// FileSHA512Hex returns SHA512Hex of the contents of path.
func FileSHA512Hex(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return SHA512Hex(data)
}
