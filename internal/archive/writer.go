package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"

	"s3backup/internal/sb"
)

// memberWriter adds members to an archive container.
type memberWriter interface {
	WriteDir(name string, info fs.FileInfo) error
	WriteFile(name string, info fs.FileInfo, r io.Reader) error
	WriteSymlink(name string, info fs.FileInfo, target string) error
	Close() error
}

func newMemberWriter(w io.Writer, kind sb.ArchiveKind) (memberWriter, error) {
	switch kind {
	case sb.TarNone:
		return &tarWriter{tw: tar.NewWriter(w)}, nil
	case sb.TarGzip:
		zw, err := gzip.NewWriterLevel(w, gzip.BestCompression)
		if err != nil {
			return nil, fmt.Errorf("creating gzip writer: %w", err)
		}
		return &tarWriter{tw: tar.NewWriter(zw), compressor: zw}, nil
	case sb.TarBzip2:
		bw, err := bzip2.NewWriter(w, &bzip2.WriterConfig{Level: bzip2.BestCompression})
		if err != nil {
			return nil, fmt.Errorf("creating bzip2 writer: %w", err)
		}
		return &tarWriter{tw: tar.NewWriter(bw), compressor: bw}, nil
	case sb.Zip:
		return &zipWriter{zw: zip.NewWriter(w)}, nil
	default:
		return nil, fmt.Errorf("unsupported archive kind %s", kind)
	}
}

type tarWriter struct {
	tw         *tar.Writer
	compressor io.WriteCloser // nil for plain tar
}

func (t *tarWriter) header(name string, info fs.FileInfo, link string) (*tar.Header, error) {
	hdr, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return nil, fmt.Errorf("building header for %s: %w", name, err)
	}
	hdr.Name = name
	hdr.Format = tar.FormatPAX
	return hdr, nil
}

func (t *tarWriter) WriteDir(name string, info fs.FileInfo) error {
	hdr, err := t.header(name+"/", info, "")
	if err != nil {
		return err
	}
	return t.tw.WriteHeader(hdr)
}

func (t *tarWriter) WriteFile(name string, info fs.FileInfo, r io.Reader) error {
	hdr, err := t.header(name, info, "")
	if err != nil {
		return err
	}
	if err := t.tw.WriteHeader(hdr); err != nil {
		return err
	}
	if _, err := io.CopyN(t.tw, r, hdr.Size); err != nil {
		return fmt.Errorf("copying %s: %w", name, err)
	}
	return nil
}

func (t *tarWriter) WriteSymlink(name string, info fs.FileInfo, target string) error {
	hdr, err := t.header(name, info, target)
	if err != nil {
		return err
	}
	return t.tw.WriteHeader(hdr)
}

func (t *tarWriter) Close() error {
	if err := t.tw.Close(); err != nil {
		return fmt.Errorf("closing tar stream: %w", err)
	}
	if t.compressor != nil {
		if err := t.compressor.Close(); err != nil {
			return fmt.Errorf("closing compressor: %w", err)
		}
	}
	return nil
}

type zipWriter struct {
	zw *zip.Writer
}

func (z *zipWriter) create(name string, info fs.FileInfo, method uint16) (io.Writer, error) {
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return nil, fmt.Errorf("building header for %s: %w", name, err)
	}
	hdr.Name = name
	hdr.Method = method
	return z.zw.CreateHeader(hdr)
}

func (z *zipWriter) WriteDir(name string, info fs.FileInfo) error {
	_, err := z.create(name+"/", info, zip.Store)
	return err
}

func (z *zipWriter) WriteFile(name string, info fs.FileInfo, r io.Reader) error {
	w, err := z.create(name, info, zip.Deflate)
	if err != nil {
		return err
	}
	if _, err := io.CopyN(w, r, info.Size()); err != nil {
		return fmt.Errorf("copying %s: %w", name, err)
	}
	return nil
}

// WriteSymlink stores the link target as the member body, the convention
// Info-ZIP uses.
func (z *zipWriter) WriteSymlink(name string, info fs.FileInfo, target string) error {
	w, err := z.create(name, info, zip.Store)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, target)
	return err
}

func (z *zipWriter) Close() error {
	if err := z.zw.Close(); err != nil {
		return fmt.Errorf("closing zip stream: %w", err)
	}
	return nil
}
