package sb

import (
	"context"
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"

	"s3backup/internal/fs"
	"s3backup/internal/hash"
)

// PutResult describes one uploaded file.
type PutResult struct {
	Path string
	Key  string
	Hash string
}

// PutFile uploads a single regular file to <machine>/<YYYYMMDD>/<name>
// with its hash as metadata.
func (s *Service) PutFile(ctx context.Context, path string) (*PutResult, error) {
	var result *PutResult
	err := s.record("put", "", func(run *Run) error {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}
		if !info.Mode().IsRegular() {
			return fmt.Errorf("not a regular file: %s", path)
		}
		if err := s.store.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("preparing bucket: %w", err)
		}
		date := FormatDate(s.clock.Now())
		key := FileKey(s.opts.MachineName, date, filepath.Base(path))
		r, err := s.putOne(ctx, path, key, "")
		if err != nil {
			return err
		}
		result = r
		run.ObjectKey = key
		run.ContentHash = r.Hash
		run.Size = info.Size()
		return nil
	})
	return result, err
}

// PutList uploads every entry of a file list. Directories are walked and
// each regular file below them is uploaded under the directory's base name.
// The path and hash of every upload is appended to <hash_log_dir>/<date>.hash.
func (s *Service) PutList(ctx context.Context, listPath string) ([]*PutResult, error) {
	var results []*PutResult
	err := s.record("put-list", "", func(run *Run) error {
		files, err := fs.ReadFileList(listPath)
		if err != nil {
			return fmt.Errorf("reading file list: %w", err)
		}
		files = s.filterIgnored(files)
		if err := s.store.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("preparing bucket: %w", err)
		}

		date := FormatDate(s.clock.Now())
		var entries []hash.Entry
		var total int64
		for _, entry := range files {
			info, err := os.Stat(entry)
			if errors.Is(err, iofs.ErrNotExist) {
				s.logger.Warn("list entry does not exist, skipped", "path", entry)
				continue
			}
			if err != nil {
				return fmt.Errorf("stat %s: %w", entry, err)
			}

			targets, err := s.putTargets(entry, info, date)
			if err != nil {
				return err
			}
			for _, t := range targets {
				r, err := s.putOne(ctx, t.path, t.key, t.sum)
				if err != nil {
					return err
				}
				results = append(results, r)
				entries = append(entries, hash.Entry{Path: r.Path, Sum: r.Hash})
				total += t.size
			}
		}

		logPath := filepath.Join(s.opts.HashLogDir, date+".hash")
		if err := hash.AppendLog(logPath, entries); err != nil {
			return fmt.Errorf("writing hash log: %w", err)
		}
		run.ObjectKey = fmt.Sprintf("%s/%s/", s.opts.MachineName, date)
		run.Size = total
		s.logger.Info("list uploaded", "files", len(results), "log", logPath)
		return nil
	})
	return results, err
}

type putTarget struct {
	path string
	key  string
	size int64
	sum  string // empty until hashed
}

// putTargets expands one list entry into the files to upload.
func (s *Service) putTargets(entry string, info iofs.FileInfo, date string) ([]putTarget, error) {
	if !info.IsDir() {
		if !info.Mode().IsRegular() {
			s.logger.Warn("not a regular file, skipped", "path", entry)
			return nil, nil
		}
		key := FileKey(s.opts.MachineName, date, filepath.Base(entry))
		return []putTarget{{path: entry, key: key, size: info.Size()}}, nil
	}

	tree, err := hash.Tree(entry, s.opts.HashAlgorithm)
	if err != nil {
		return nil, fmt.Errorf("hashing tree %s: %w", entry, err)
	}
	var targets []putTarget
	for _, e := range tree {
		if s.ignore.Match(e.Path) {
			s.logger.Debug("ignoring file", "path", e.Path)
			continue
		}
		key, err := TreeKey(s.opts.MachineName, date, entry, e.Path)
		if err != nil {
			return nil, err
		}
		targets = append(targets, putTarget{path: e.Path, key: key, size: e.Size, sum: e.Sum})
	}
	return targets, nil
}

func (s *Service) putOne(ctx context.Context, path, key, sum string) (*PutResult, error) {
	if sum == "" {
		var err error
		sum, err = hash.File(path, s.opts.HashAlgorithm)
		if err != nil {
			return nil, fmt.Errorf("hashing %s: %w", path, err)
		}
	}
	meta := map[string]string{
		MetaHash:          sum,
		MetaHashAlgorithm: s.opts.HashAlgorithm.String(),
		MetaEncrypted:     FormatEncrypted(false),
	}
	if err := s.store.Put(ctx, key, path, meta); err != nil {
		return nil, fmt.Errorf("uploading %s: %w", key, err)
	}
	s.logger.Info("file uploaded", "path", path, "key", key)
	return &PutResult{Path: path, Key: key, Hash: sum}, nil
}
