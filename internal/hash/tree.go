package hash

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"s3backup/internal/fs"
)

// Entry is the hash of one file.
type Entry struct {
	Path string
	Sum  string
	Size int64
}

// Tree hashes every regular file below root, in walk order. Symlinks are
// not followed.
func Tree(root string, alg Algorithm) ([]Entry, error) {
	walked, err := fs.Walk(root)
	if err != nil {
		return nil, err
	}
	var entries []Entry
	for _, w := range walked {
		if !w.Info.Mode().IsRegular() {
			continue
		}
		sum, err := File(w.Path, alg)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Path: w.Path, Sum: sum, Size: w.Info.Size()})
	}
	return entries, nil
}

// AppendLog writes one "path<TAB>hash" line per entry to logPath, creating
// the file and its directory when missing.
func AppendLog(logPath string, entries []Entry) error {
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return fmt.Errorf("creating hash log directory: %w", err)
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("opening hash log: %w", err)
	}

	w := bufio.NewWriter(f)
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\n", e.Path, e.Sum)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("writing hash log: %w", err)
	}
	return f.Close()
}
