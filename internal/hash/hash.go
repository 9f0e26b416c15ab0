// Package hash computes the content hashes stored with uploaded objects.
package hash

import (
	"crypto/md5"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	gohash "hash"
	"io"
	"os"
	"strings"
)

// ErrUnsupportedAlgorithm is returned for algorithm names outside the
// supported set.
var ErrUnsupportedAlgorithm = errors.New("unsupported hash algorithm")

// Algorithm is a supported digest.
type Algorithm int

const (
	SHA512 Algorithm = iota + 1
	SHA256
	MD5
)

// ParseAlgorithm maps a name such as "SHA512" or "sha-256" to an Algorithm.
// An empty name selects SHA512.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(name)), "-", "") {
	case "", "SHA512":
		return SHA512, nil
	case "SHA256":
		return SHA256, nil
	case "MD5":
		return MD5, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, name)
	}
}

func (a Algorithm) String() string {
	switch a {
	case SHA512:
		return "SHA512"
	case SHA256:
		return "SHA256"
	case MD5:
		return "MD5"
	default:
		return fmt.Sprintf("Algorithm(%d)", int(a))
	}
}

// New returns a fresh digest for a.
func (a Algorithm) New() (gohash.Hash, error) {
	switch a {
	case SHA512:
		return sha512.New(), nil
	case SHA256:
		return sha256.New(), nil
	case MD5:
		return md5.New(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, a)
	}
}

// Reader hashes everything read from r and returns the lowercase hex digest.
// Data is consumed in chunks of 128 digest blocks.
func Reader(r io.Reader, alg Algorithm) (string, error) {
	h, err := alg.New()
	if err != nil {
		return "", err
	}
	buf := make([]byte, 128*h.BlockSize())
	for {
		n, err := r.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("reading content: %w", err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// File hashes the file at path.
func File(path string, alg Algorithm) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	sum, err := Reader(f, alg)
	if err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return sum, nil
}
