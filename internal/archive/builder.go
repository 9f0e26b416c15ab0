// Package archive packs file lists into tar or zip archives and extracts
// them again.
package archive

import (
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"s3backup/internal/fs"
	"s3backup/internal/sb"
)

// Builder implements sb.Archiver on the local filesystem.
type Builder struct {
	logger sb.Logger
}

var _ sb.Archiver = (*Builder)(nil)

// NewBuilder creates a Builder that reports skipped entries to logger.
func NewBuilder(logger sb.Logger) *Builder {
	return &Builder{logger: logger}
}

// Name returns the archive file name for date, bak<YYYYMMDD>.<ext>.
func Name(date time.Time, kind sb.ArchiveKind) string {
	return "bak" + sb.FormatDate(date) + "." + kind.Extension()
}

// MemberName converts a filesystem path into an archive member name:
// slash separated, cleaned, without the leading "/".
func MemberName(p string) string {
	name := path.Clean(filepath.ToSlash(p))
	name = strings.TrimLeft(name, "/")
	if name == "." {
		return ""
	}
	return name
}

// Build packs files into destDir/bak<YYYYMMDD>.<ext>. Entries that do not
// exist are skipped; directories are added with everything below them.
// The finished archive is reopened and its member headers read back before
// Build returns.
func (b *Builder) Build(files []string, destDir string, kind sb.ArchiveKind, date time.Time) (*sb.BuiltArchive, error) {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return nil, fmt.Errorf("creating destination directory %s: %w", destDir, err)
	}

	archivePath := filepath.Join(destDir, Name(date, kind))
	f, err := os.Create(archivePath)
	if err != nil {
		return nil, fmt.Errorf("creating archive: %w", err)
	}

	success := false
	defer func() {
		if !success {
			os.Remove(archivePath)
		}
	}()

	w, err := newMemberWriter(f, kind)
	if err != nil {
		f.Close()
		return nil, err
	}

	built := &sb.BuiltArchive{Path: archivePath, Kind: kind}
	for _, entry := range files {
		if _, err := os.Lstat(entry); errors.Is(err, iofs.ErrNotExist) {
			b.logger.Warn("skipping missing path", "path", entry)
			built.Skipped = append(built.Skipped, entry)
			continue
		}
		walked, err := fs.Walk(entry)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("reading %s: %w", entry, err)
		}
		for _, e := range walked {
			name, err := b.add(w, e)
			if err != nil {
				f.Close()
				return nil, fmt.Errorf("adding %s: %w", e.Path, err)
			}
			if name != "" {
				built.Members = append(built.Members, name)
			}
		}
	}

	if err := w.Close(); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("closing archive: %w", err)
	}

	if err := Verify(archivePath, kind); err != nil {
		return nil, fmt.Errorf("verifying archive %s: %w", archivePath, err)
	}

	success = true
	b.logger.Info("archive built", "path", archivePath, "members", len(built.Members), "skipped", len(built.Skipped))
	return built, nil
}

// add writes one walked entry and returns its member name, or "" when the
// entry was not archived.
func (b *Builder) add(w memberWriter, e fs.Entry) (string, error) {
	name := MemberName(e.Path)
	if name == "" {
		return "", nil
	}

	mode := e.Info.Mode()
	switch {
	case mode.IsDir():
		return name, w.WriteDir(name, e.Info)
	case mode&iofs.ModeSymlink != 0:
		target, err := os.Readlink(e.Path)
		if err != nil {
			return "", err
		}
		return name, w.WriteSymlink(name, e.Info, target)
	case mode.IsRegular():
		f, err := os.Open(e.Path)
		if err != nil {
			return "", err
		}
		defer f.Close()
		return name, w.WriteFile(name, e.Info, f)
	default:
		b.logger.Warn("skipping special file", "path", e.Path, "mode", mode.String())
		return "", nil
	}
}

// Open reads the member list of the archive at archivePath.
func (b *Builder) Open(archivePath string, kind sb.ArchiveKind) (sb.ArchiveReader, error) {
	return Open(archivePath, kind)
}

// Verify checks that the archive is non-empty and that every member header
// can be read.
func Verify(archivePath string, kind sb.ArchiveKind) error {
	info, err := os.Stat(archivePath)
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return fmt.Errorf("archive is empty")
	}
	r, err := Open(archivePath, kind)
	if err != nil {
		return err
	}
	return r.Close()
}
