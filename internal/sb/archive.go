package sb

import (
	"fmt"
	"io/fs"
	"strings"
	"time"
)

// ArchiveKind is the container and compression format of a backup archive.
type ArchiveKind int

const (
	TarNone ArchiveKind = iota + 1
	TarGzip
	TarBzip2
	Zip
)

// ParseArchiveKind maps a configuration value to an ArchiveKind.
// An empty string selects TarBzip2, the historical default.
func ParseArchiveKind(s string) (ArchiveKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "tar":
		return TarNone, nil
	case "gz", "gzip":
		return TarGzip, nil
	case "", "bz2", "bzip2":
		return TarBzip2, nil
	case "zip":
		return Zip, nil
	default:
		return 0, fmt.Errorf("unknown archive compression %q (want none, gz, bz2 or zip)", s)
	}
}

// ArchiveKindFromExtension maps a key or file extension (without the
// leading dot) back to its ArchiveKind.
func ArchiveKindFromExtension(ext string) (ArchiveKind, error) {
	switch ext {
	case "tar":
		return TarNone, nil
	case "tar.gz":
		return TarGzip, nil
	case "tar.bz2":
		return TarBzip2, nil
	case "zip":
		return Zip, nil
	default:
		return 0, fmt.Errorf("unknown archive extension %q", ext)
	}
}

// Extension returns the file extension without the leading dot.
func (k ArchiveKind) Extension() string {
	switch k {
	case TarNone:
		return "tar"
	case TarGzip:
		return "tar.gz"
	case TarBzip2:
		return "tar.bz2"
	case Zip:
		return "zip"
	default:
		return ""
	}
}

func (k ArchiveKind) String() string {
	switch k {
	case TarNone:
		return "none"
	case TarGzip:
		return "gz"
	case TarBzip2:
		return "bz2"
	case Zip:
		return "zip"
	default:
		return fmt.Sprintf("archive(%d)", int(k))
	}
}

// Member describes one entry of an archive.
type Member struct {
	Name    string // slash separated, never starts with "/"
	Size    int64
	Mode    fs.FileMode
	ModTime time.Time
	IsDir   bool
}

// BuiltArchive is the result of packing a file list.
type BuiltArchive struct {
	Path    string
	Kind    ArchiveKind
	Members []string
	Skipped []string // list entries that did not exist
}

// Archiver packs file lists into archives and opens existing archives.
type Archiver interface {
	// Build packs files into <destDir>/bak<YYYYMMDD>.<ext>, creating destDir
	// if needed. Entries that do not exist are skipped and reported.
	Build(files []string, destDir string, kind ArchiveKind, date time.Time) (*BuiltArchive, error)

	// Open reads the member list of an archive on disk.
	Open(path string, kind ArchiveKind) (ArchiveReader, error)
}

// ArchiveReader gives access to the members of an opened archive.
type ArchiveReader interface {
	// Members returns every member in archive order.
	Members() []Member

	// Extract writes the members accepted by want beneath root and returns
	// the names of the members written. A want error aborts extraction.
	Extract(root string, want func(Member) (bool, error)) ([]string, error)

	Close() error
}
