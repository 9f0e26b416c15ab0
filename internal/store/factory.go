package store

import (
	"context"
	"fmt"

	"s3backup/internal/config"
	"s3backup/internal/sb"
)

// NewStoreFromConfig creates an ObjectStore based on the store config type.
func NewStoreFromConfig(ctx context.Context, cfg config.StoreConfig, logger sb.Logger) (sb.ObjectStore, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(), nil
	case "s3":
		return NewS3Store(ctx, S3Options{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		}, logger)
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("filesystem store requires fs_root to be set")
		}
		return NewFileSystemStore(cfg.FSRoot)
	default:
		return nil, fmt.Errorf("unknown store type: %s", cfg.Type)
	}
}
