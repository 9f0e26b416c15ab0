package app

import (
	"fmt"

	"s3backup/internal/config"
	"s3backup/internal/fs"
	"s3backup/internal/hash"
	"s3backup/internal/sb"
)

// OptionsFromConfig translates a validated config into service options.
func OptionsFromConfig(cfg *config.Config) (sb.Options, error) {
	kind, err := sb.ParseArchiveKind(cfg.Compression)
	if err != nil {
		return sb.Options{}, err
	}
	alg, err := hash.ParseAlgorithm(cfg.HashAlgorithm)
	if err != nil {
		return sb.Options{}, fmt.Errorf("hash_algorithm: %w", err)
	}

	lists := make(map[sb.Schedule]string)
	for sched, path := range map[sb.Schedule]string{
		sb.Daily:   cfg.Lists.Daily,
		sb.Weekly:  cfg.Lists.Weekly,
		sb.Monthly: cfg.Lists.Monthly,
	} {
		if path != "" {
			lists[sched] = path
		}
	}

	ignore := append([]string{}, cfg.Ignore...)
	if cfg.IgnoreFile != "" {
		patterns, err := fs.ParseIgnoreFile(cfg.IgnoreFile)
		if err != nil {
			return sb.Options{}, err
		}
		ignore = append(ignore, patterns...)
	}

	cipherName := cfg.Encryption.Type
	if cipherName == "" {
		cipherName = sb.CipherAESCBC
	}

	return sb.Options{
		MachineName:        cfg.MachineName,
		DestDir:            cfg.DestLocation,
		Lists:              lists,
		ArchiveKind:        kind,
		Encrypt:            cfg.Encryption.Enabled,
		CipherName:         cipherName,
		HashAlgorithm:      alg,
		HashLogDir:         cfg.HashLogDir,
		DeleteWhenFinished: cfg.DeleteArchiveWhenFinished,
		RestoreRoot:        cfg.Restore.Root,
		RequireHash:        cfg.Restore.RequireHash,
		Ignore:             ignore,
	}, nil
}
