package sb

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Object metadata names.
const (
	MetaHash          = "hash"
	MetaEncrypted     = "enc"
	MetaHashAlgorithm = "hash-alg"
	MetaCipher        = "cipher"
)

// ObjectStore is the remote storage backend. Keys are slash separated.
type ObjectStore interface {
	// EnsureBucket creates the backing container if it does not exist.
	EnsureBucket(ctx context.Context) error

	// Put uploads the file at localPath under key with the given metadata.
	Put(ctx context.Context, key, localPath string, metadata map[string]string) error

	// Head returns the metadata of key, or an error wrapping ErrNotFound.
	Head(ctx context.Context, key string) (map[string]string, error)

	// GetToFile downloads key into localPath, or returns an error wrapping
	// ErrNotFound.
	GetToFile(ctx context.Context, key, localPath string) error

	// List returns the keys under prefix in lexicographic order. With a
	// non-empty delimiter, keys containing the delimiter after the prefix
	// are omitted.
	List(ctx context.Context, prefix, delimiter string) ([]string, error)
}

// Lister is the subset of ObjectStore needed to locate archives.
type Lister interface {
	List(ctx context.Context, prefix, delimiter string) ([]string, error)
}

// FormatEncrypted renders the "enc" metadata value.
func FormatEncrypted(encrypted bool) string {
	if encrypted {
		return "True"
	}
	return "False"
}

// MetaValue looks up a metadata entry ignoring case, since S3 lower-cases
// user metadata names.
func MetaValue(meta map[string]string, name string) string {
	if v, ok := meta[name]; ok {
		return v
	}
	for k, v := range meta {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// ParseEncrypted reads the "enc" flag. A missing flag means unencrypted.
func ParseEncrypted(meta map[string]string) (bool, error) {
	v := MetaValue(meta, MetaEncrypted)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %q metadata value %q", MetaEncrypted, v)
	}
	return b, nil
}
