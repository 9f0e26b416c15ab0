package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"strings"

	"s3backup/internal/sb"
)

const metaSuffix = ".meta.json"

// FileSystemStore is an ObjectStore backed by a local directory, for
// backups to mounted disks. Objects are laid out by key:
//
//	<root>/
//	  <machine>/<schedule>/<YYYYMMDD>.<ext>             (object content)
//	  <machine>/<schedule>/<YYYYMMDD>.<ext>.meta.json   (object metadata)
type FileSystemStore struct {
	root string
}

var _ sb.ObjectStore = (*FileSystemStore)(nil)

// NewFileSystemStore creates a store rooted at root.
func NewFileSystemStore(root string) (*FileSystemStore, error) {
	if root == "" {
		return nil, fmt.Errorf("filesystem store requires a root directory")
	}
	return &FileSystemStore{root: root}, nil
}

// EnsureBucket creates the root directory.
func (s *FileSystemStore) EnsureBucket(context.Context) error {
	if err := os.MkdirAll(s.root, 0755); err != nil {
		return fmt.Errorf("failed to create store root: %w", err)
	}
	return nil
}

func (s *FileSystemStore) objectPath(key string) (string, error) {
	rel := filepath.FromSlash(key)
	if !filepath.IsLocal(rel) || strings.HasSuffix(key, metaSuffix) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(s.root, rel), nil
}

// Put copies localPath into the store with an atomic rename and writes the
// metadata next to it.
func (s *FileSystemStore) Put(_ context.Context, key, localPath string, metadata map[string]string) error {
	dest, err := s.objectPath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("failed to create object directory: %w", err)
	}

	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer src.Close()

	if metadata == nil {
		metadata = map[string]string{}
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}
	if err := writeFile(dest+metaSuffix, bytes.NewReader(meta)); err != nil {
		return err
	}
	return writeFile(dest, src)
}

// Head reads the metadata of key.
func (s *FileSystemStore) Head(_ context.Context, key string) (map[string]string, error) {
	p, err := s.objectPath(key)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(p); err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", sb.ErrNotFound, key)
		}
		return nil, fmt.Errorf("stat object: %w", err)
	}

	meta := map[string]string{}
	data, err := os.ReadFile(p + metaSuffix)
	if errors.Is(err, iofs.ErrNotExist) {
		return meta, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading metadata: %w", err)
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decoding metadata of %s: %w", key, err)
	}
	return meta, nil
}

// GetToFile copies the object into localPath.
func (s *FileSystemStore) GetToFile(_ context.Context, key, localPath string) error {
	p, err := s.objectPath(key)
	if err != nil {
		return err
	}
	src, err := os.Open(p)
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return fmt.Errorf("%w: %s", sb.ErrNotFound, key)
		}
		return fmt.Errorf("failed to open object: %w", err)
	}
	defer src.Close()

	dst, err := os.OpenFile(localPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", localPath, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("failed to copy object: %w", err)
	}
	return dst.Close()
}

// List returns the keys under prefix.
func (s *FileSystemStore) List(_ context.Context, prefix, delimiter string) ([]string, error) {
	// Only the directory named by the prefix, and below it, can match.
	dir := s.root
	if i := strings.LastIndex(prefix, "/"); i >= 0 {
		dir = filepath.Join(s.root, filepath.FromSlash(prefix[:i]))
	}

	var keys []string
	err := filepath.WalkDir(dir, func(p string, d iofs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, iofs.ErrNotExist) {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || strings.HasSuffix(p, metaSuffix) || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", prefix, err)
	}
	return filterKeys(keys, prefix, delimiter), nil
}

// writeFile writes r to destPath using atomic write (temp file + rename).
func writeFile(destPath string, r io.Reader) error {
	// Create temp file in the same directory to ensure atomic rename works
	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(tmpFile, r); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}
