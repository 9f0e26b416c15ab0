package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"s3backup/internal/hash"
	"s3backup/internal/sb"
)

// Validate reports every configuration problem it finds, joined into one
// error.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.MachineName == "" {
		add("machine_name is required")
	} else if strings.Contains(c.MachineName, "/") {
		add("machine_name %q must not contain '/'", c.MachineName)
	}
	if c.DestLocation == "" {
		add("dest_location is required")
	}

	if _, err := sb.ParseArchiveKind(c.Compression); err != nil {
		errs = append(errs, err)
	}
	if _, err := hash.ParseAlgorithm(c.HashAlgorithm); err != nil {
		errs = append(errs, fmt.Errorf("hash_algorithm: %w", err))
	}

	switch c.Store.Type {
	case "s3":
		if c.Store.S3Bucket == "" {
			add("store.s3_bucket is required for s3 store")
		}
		if (c.Store.S3AccessKeyID == "") != (c.Store.S3SecretAccessKey == "") {
			add("store.s3_access_key_id and store.s3_secret_access_key must be set together")
		}
	case "filesystem":
		if c.Store.FSRoot == "" {
			add("store.fs_root is required for filesystem store")
		}
	case "memory":
	default:
		add("unknown store type %q", c.Store.Type)
	}

	if c.Encryption.Enabled {
		switch c.Encryption.Type {
		case "", "aes-cbc":
			switch strings.ToLower(c.Encryption.KeyDerivation) {
			case "", "sha512":
			case "pbkdf2":
				if c.Encryption.Salt == "" {
					add("encryption.salt is required for pbkdf2 key derivation")
				}
			default:
				add("unknown encryption.key_derivation %q", c.Encryption.KeyDerivation)
			}
			if c.Encryption.IV != "" {
				iv, err := hex.DecodeString(c.Encryption.IV)
				if err != nil || len(iv) != 16 {
					add("encryption.iv must be 32 hex digits")
				}
			}
			if p := c.Encryption.PieceSize; p < 0 || p%16 != 0 {
				add("encryption.piece_size %d must be a positive multiple of 16", p)
			}
		case "age":
		default:
			add("unknown encryption type %q", c.Encryption.Type)
		}
	}

	switch c.Database.Type {
	case "sqlite":
		if c.Database.DataDir == "" {
			add("database.data_dir is required for sqlite database")
		}
	case "memory":
	default:
		add("unknown database type %q", c.Database.Type)
	}

	return errors.Join(errs...)
}
