package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"

	"s3backup/internal/sb"
)

// ErrUnsafePath is returned for members whose names would land outside the
// extraction root.
var ErrUnsafePath = errors.New("unsafe member path")

// Open reads the member list of an archive. Tar archives are scanned once
// here and again on each Extract; zip archives keep their directory open.
func Open(archivePath string, kind sb.ArchiveKind) (sb.ArchiveReader, error) {
	switch kind {
	case sb.TarNone, sb.TarGzip, sb.TarBzip2:
		r := &tarReader{path: archivePath, kind: kind}
		err := r.each(func(hdr *tar.Header, _ io.Reader) error {
			r.members = append(r.members, tarMember(hdr))
			return nil
		})
		if err != nil {
			return nil, err
		}
		return r, nil
	case sb.Zip:
		zr, err := zip.OpenReader(archivePath)
		if err != nil {
			return nil, fmt.Errorf("opening zip: %w", err)
		}
		r := &zipReader{zr: zr}
		for _, f := range zr.File {
			r.members = append(r.members, zipMember(f))
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unsupported archive kind %s", kind)
	}
}

// target resolves a member name beneath root.
func target(root, name string) (string, error) {
	rel := filepath.FromSlash(strings.TrimLeft(name, "/"))
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	return filepath.Join(root, rel), nil
}

// memberTarget resolves m beneath root and refuses it when an existing
// symlink on the way would redirect the write outside root. For a
// directory member the member path itself is checked too, since creating
// it follows a symlink already in its place.
func memberTarget(root string, m sb.Member) (string, error) {
	dest, err := target(root, m.Name)
	if err != nil {
		return "", err
	}
	check := filepath.Dir(dest)
	if m.IsDir {
		check = dest
	}
	if err := withinRoot(root, check); err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrUnsafePath, m.Name, err)
	}
	return dest, nil
}

// withinRoot reports an error when the deepest existing ancestor of dir,
// with symlinks resolved, lies outside root with symlinks resolved.
func withinRoot(root, dir string) error {
	realRoot, err := filepath.EvalSymlinks(root)
	if errors.Is(err, iofs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	existing := dir
	for {
		if _, err := os.Lstat(existing); err == nil {
			break
		} else if !errors.Is(err, iofs.ErrNotExist) {
			return err
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return nil
		}
		existing = parent
	}

	resolved, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(realRoot, resolved)
	if err != nil || !filepath.IsLocal(rel) {
		return fmt.Errorf("%s resolves to %s", existing, resolved)
	}
	return nil
}

func writeRegular(dest string, r io.Reader, m sb.Member) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	// A symlink in the way would redirect the write.
	if info, err := os.Lstat(dest); err == nil && info.Mode()&iofs.ModeSymlink != 0 {
		if err := os.Remove(dest); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, m.Mode.Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Chmod(dest, m.Mode.Perm()); err != nil {
		return err
	}
	return os.Chtimes(dest, m.ModTime, m.ModTime)
}

func writeDir(dest string, m sb.Member) error {
	if err := os.MkdirAll(dest, 0755); err != nil {
		return err
	}
	return os.Chmod(dest, m.Mode.Perm()|0700)
}

func writeSymlink(dest, linkTarget string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	if _, err := os.Lstat(dest); err == nil {
		if err := os.Remove(dest); err != nil {
			return err
		}
	}
	return os.Symlink(linkTarget, dest)
}

type tarReader struct {
	path    string
	kind    sb.ArchiveKind
	members []sb.Member
}

func tarMember(hdr *tar.Header) sb.Member {
	info := hdr.FileInfo()
	return sb.Member{
		Name:    strings.TrimSuffix(hdr.Name, "/"),
		Size:    hdr.Size,
		Mode:    info.Mode(),
		ModTime: hdr.ModTime,
		IsDir:   hdr.Typeflag == tar.TypeDir,
	}
}

// each streams every header of the archive to fn.
func (t *tarReader) each(fn func(hdr *tar.Header, body io.Reader) error) error {
	f, err := os.Open(t.path)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	var src io.Reader = f
	switch t.kind {
	case sb.TarGzip:
		zr, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("opening gzip stream: %w", err)
		}
		defer zr.Close()
		src = zr
	case sb.TarBzip2:
		br, err := bzip2.NewReader(f, nil)
		if err != nil {
			return fmt.Errorf("opening bzip2 stream: %w", err)
		}
		defer br.Close()
		src = br
	}

	tr := tar.NewReader(src)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading member header: %w", err)
		}
		if err := fn(hdr, tr); err != nil {
			return err
		}
	}
}

func (t *tarReader) Members() []sb.Member { return t.members }

func (t *tarReader) Extract(root string, want func(sb.Member) (bool, error)) ([]string, error) {
	var extracted []string
	err := t.each(func(hdr *tar.Header, body io.Reader) error {
		m := tarMember(hdr)
		ok, err := want(m)
		if err != nil || !ok {
			return err
		}
		dest, err := memberTarget(root, m)
		if err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			err = writeDir(dest, m)
		case tar.TypeReg:
			err = writeRegular(dest, body, m)
		case tar.TypeSymlink:
			err = writeSymlink(dest, hdr.Linkname)
		default:
			return nil
		}
		if err != nil {
			return fmt.Errorf("extracting %s: %w", m.Name, err)
		}
		extracted = append(extracted, m.Name)
		return nil
	})
	return extracted, err
}

func (t *tarReader) Close() error { return nil }

type zipReader struct {
	zr      *zip.ReadCloser
	members []sb.Member
}

func zipMember(f *zip.File) sb.Member {
	mode := f.Mode()
	return sb.Member{
		Name:    strings.TrimSuffix(f.Name, "/"),
		Size:    int64(f.UncompressedSize64),
		Mode:    mode,
		ModTime: f.Modified,
		IsDir:   mode.IsDir(),
	}
}

func (z *zipReader) Members() []sb.Member { return z.members }

func (z *zipReader) Extract(root string, want func(sb.Member) (bool, error)) ([]string, error) {
	var extracted []string
	for _, f := range z.zr.File {
		m := zipMember(f)
		ok, err := want(m)
		if err != nil {
			return extracted, err
		}
		if !ok {
			continue
		}
		dest, err := memberTarget(root, m)
		if err != nil {
			return extracted, err
		}
		if err := z.extractOne(f, dest, m); err != nil {
			return extracted, fmt.Errorf("extracting %s: %w", m.Name, err)
		}
		extracted = append(extracted, m.Name)
	}
	return extracted, nil
}

func (z *zipReader) extractOne(f *zip.File, dest string, m sb.Member) error {
	if m.IsDir {
		return writeDir(dest, m)
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	if m.Mode&iofs.ModeSymlink != 0 {
		link, err := io.ReadAll(rc)
		if err != nil {
			return err
		}
		return writeSymlink(dest, string(link))
	}
	return writeRegular(dest, rc, m)
}

func (z *zipReader) Close() error { return z.zr.Close() }
