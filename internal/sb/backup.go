package sb

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"s3backup/internal/fs"
	"s3backup/internal/hash"
)

// BackupResult describes an uploaded archive.
type BackupResult struct {
	Key       string
	Hash      string
	Size      int64
	Encrypted bool
	Members   []string
	Skipped   []string
}

// Backup archives the file list of schedule, optionally encrypts it,
// hashes it and uploads it to <machine>/<schedule>/<YYYYMMDD>.<ext>.
// Any failure aborts the run before anything is uploaded.
func (s *Service) Backup(ctx context.Context, schedule Schedule) (*BackupResult, error) {
	var result *BackupResult
	err := s.record("backup", schedule.String(), func(run *Run) error {
		r, err := s.backup(ctx, schedule)
		if err != nil {
			return err
		}
		result = r
		run.ObjectKey = r.Key
		run.ContentHash = r.Hash
		run.Size = r.Size
		run.Encrypted = r.Encrypted
		return nil
	})
	return result, err
}

func (s *Service) backup(ctx context.Context, schedule Schedule) (*BackupResult, error) {
	listPath := s.opts.Lists[schedule]
	if listPath == "" {
		return nil, fmt.Errorf("no file list configured for %s backups", schedule)
	}
	files, err := fs.ReadFileList(listPath)
	if err != nil {
		return nil, fmt.Errorf("reading file list: %w", err)
	}
	files = s.filterIgnored(files)
	s.logger.Info("backup started", "schedule", schedule.String(), "entries", len(files))

	now := s.clock.Now()
	built, err := s.archiver.Build(files, s.opts.DestDir, s.opts.ArchiveKind, now)
	if err != nil {
		return nil, fmt.Errorf("building archive: %w", err)
	}
	for _, skipped := range built.Skipped {
		s.logger.Warn("list entry does not exist, skipped", "path", skipped)
	}

	uploadPath := built.Path
	var c Cipher
	if s.opts.Encrypt {
		c, err = s.ciphers.Cipher(s.opts.CipherName)
		if err != nil {
			return nil, fmt.Errorf("loading cipher: %w", err)
		}
		encPath, err := c.EncryptFile(built.Path)
		if err != nil {
			return nil, fmt.Errorf("encrypting archive: %w", err)
		}
		if err := os.Remove(built.Path); err != nil {
			return nil, fmt.Errorf("removing plaintext archive: %w", err)
		}
		uploadPath = encPath
	}

	sum, err := hash.File(uploadPath, s.opts.HashAlgorithm)
	if err != nil {
		return nil, fmt.Errorf("hashing archive: %w", err)
	}
	info, err := os.Stat(uploadPath)
	if err != nil {
		return nil, fmt.Errorf("stat archive: %w", err)
	}

	key := ArchiveKey(s.opts.MachineName, schedule, FormatDate(now), built.Kind.Extension())
	meta := map[string]string{
		MetaHash:          sum,
		MetaHashAlgorithm: s.opts.HashAlgorithm.String(),
		MetaEncrypted:     FormatEncrypted(c != nil),
	}
	if c != nil {
		meta[MetaCipher] = c.Name()
	}

	if err := s.store.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("preparing bucket: %w", err)
	}
	if err := s.store.Put(ctx, key, uploadPath, meta); err != nil {
		return nil, fmt.Errorf("uploading %s: %w", key, err)
	}
	s.logger.Info("archive uploaded", "key", key, "size", info.Size(), "encrypted", c != nil)

	logPath := filepath.Join(s.opts.HashLogDir, filepath.Base(uploadPath)+".hash")
	if !s.opts.DeleteWhenFinished || !isWithin(s.opts.DestDir, logPath) {
		if err := hash.AppendLog(logPath, []hash.Entry{{Path: uploadPath, Sum: sum}}); err != nil {
			s.logger.Warn("writing hash log failed", "path", logPath, "error", err)
		}
	}

	if s.opts.DeleteWhenFinished {
		if err := os.RemoveAll(s.opts.DestDir); err != nil {
			s.logger.Warn("removing destination directory failed", "dir", s.opts.DestDir, "error", err)
		}
	}

	return &BackupResult{
		Key:       key,
		Hash:      sum,
		Size:      info.Size(),
		Encrypted: c != nil,
		Members:   built.Members,
		Skipped:   built.Skipped,
	}, nil
}

// isWithin reports whether p lies inside dir.
func isWithin(dir, p string) bool {
	rel, err := filepath.Rel(dir, p)
	return err == nil && filepath.IsLocal(rel)
}
