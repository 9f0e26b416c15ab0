package cipher

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// KeyDerivation turns a passphrase into an AES key.
type KeyDerivation int

const (
	// LegacySHA512 takes the first 32 bytes of SHA-512(passphrase).
	LegacySHA512 KeyDerivation = iota + 1
	// PBKDF2 runs PBKDF2-HMAC-SHA256 with a configured salt.
	PBKDF2
)

// PBKDF2Iterations is the iteration count used for PBKDF2 keys.
const PBKDF2Iterations = 600_000

// ParseKeyDerivation maps "sha512" or "pbkdf2" to a KeyDerivation. An
// empty name selects LegacySHA512.
func ParseKeyDerivation(name string) (KeyDerivation, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "sha512":
		return LegacySHA512, nil
	case "pbkdf2":
		return PBKDF2, nil
	default:
		return 0, fmt.Errorf("unknown key derivation %q (want sha512 or pbkdf2)", name)
	}
}

// DeriveKey derives a KeySize-byte key from passphrase.
func DeriveKey(passphrase string, kd KeyDerivation, salt []byte) ([]byte, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("empty passphrase")
	}
	switch kd {
	case LegacySHA512:
		sum := sha512.Sum512([]byte(passphrase))
		return sum[:KeySize], nil
	case PBKDF2:
		if len(salt) == 0 {
			return nil, fmt.Errorf("pbkdf2 key derivation requires a salt")
		}
		return pbkdf2.Key([]byte(passphrase), salt, PBKDF2Iterations, KeySize, sha256.New), nil
	default:
		return nil, fmt.Errorf("unknown key derivation %d", int(kd))
	}
}

// ParseIV decodes a hex IV. An empty string yields nil, the all-zero IV.
func ParseIV(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	iv, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decoding iv: %w", err)
	}
	if len(iv) != 16 {
		return nil, fmt.Errorf("iv must be 16 bytes, got %d", len(iv))
	}
	return iv, nil
}
