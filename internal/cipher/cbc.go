// Package cipher encrypts archives before upload.
//
// The CBC codec reads and writes the legacy stream format: an 8-byte
// little-endian plaintext length followed by AES-256-CBC ciphertext, with
// the final piece padded with spaces to a block boundary. One CBC chain
// runs across all pieces.
package cipher

import (
	"crypto/aes"
	gocipher "crypto/cipher"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"s3backup/internal/sb"
)

const (
	// HeaderSize is the length of the plaintext size header.
	HeaderSize = 8
	// DefaultPieceSize is the number of plaintext bytes encrypted per read.
	DefaultPieceSize = 64 * 1024
	// KeySize is the AES-256 key length.
	KeySize = 32

	padByte = ' '
)

// ErrCorrupt is returned when ciphertext cannot be a valid stream.
var ErrCorrupt = errors.New("corrupt encrypted stream")

func checkPieceSize(pieceSize int) error {
	if pieceSize <= 0 || pieceSize%aes.BlockSize != 0 {
		return fmt.Errorf("piece size %d must be a positive multiple of %d", pieceSize, aes.BlockSize)
	}
	return nil
}

func newBlock(key, iv []byte) (gocipher.Block, []byte, error) {
	if len(key) != KeySize {
		return nil, nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}
	if iv == nil {
		iv = make([]byte, aes.BlockSize)
	}
	if len(iv) != aes.BlockSize {
		return nil, nil, fmt.Errorf("iv must be %d bytes, got %d", aes.BlockSize, len(iv))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, fmt.Errorf("creating cipher: %w", err)
	}
	return block, iv, nil
}

// Encrypt reads exactly size bytes of plaintext from r and writes the
// encrypted stream to w. A nil iv means the all-zero IV.
func Encrypt(key, iv []byte, r io.Reader, size int64, w io.Writer, pieceSize int) error {
	if err := checkPieceSize(pieceSize); err != nil {
		return err
	}
	block, iv, err := newBlock(key, iv)
	if err != nil {
		return err
	}
	mode := gocipher.NewCBCEncrypter(block, iv)

	var header [HeaderSize]byte
	binary.LittleEndian.PutUint64(header[:], uint64(size))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	buf := make([]byte, pieceSize)
	var total int64
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			total += int64(n)
			piece := buf[:n]
			if rem := n % aes.BlockSize; rem != 0 {
				piece = buf[:n+aes.BlockSize-rem]
				for i := n; i < len(piece); i++ {
					piece[i] = padByte
				}
			}
			mode.CryptBlocks(piece, piece)
			if _, err := w.Write(piece); err != nil {
				return fmt.Errorf("writing ciphertext: %w", err)
			}
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading plaintext: %w", err)
		}
	}
	if total != size {
		return fmt.Errorf("plaintext is %d bytes, header says %d", total, size)
	}
	return nil
}

// Decrypt reads an encrypted stream from r and writes the recorded number
// of plaintext bytes to w, which it returns.
func Decrypt(key, iv []byte, r io.Reader, w io.Writer, pieceSize int) (int64, error) {
	if err := checkPieceSize(pieceSize); err != nil {
		return 0, err
	}
	block, iv, err := newBlock(key, iv)
	if err != nil {
		return 0, err
	}
	mode := gocipher.NewCBCDecrypter(block, iv)

	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, fmt.Errorf("%w: reading size header: %v", ErrCorrupt, err)
	}
	recorded := binary.LittleEndian.Uint64(header[:])
	if recorded > math.MaxInt64 {
		return 0, fmt.Errorf("%w: size header %d out of range", ErrCorrupt, recorded)
	}
	size := int64(recorded)
	// The body is the plaintext padded up to a whole block, nothing more.
	bodyLen := recorded / aes.BlockSize * aes.BlockSize
	if recorded%aes.BlockSize != 0 {
		bodyLen += aes.BlockSize
	}

	buf := make([]byte, pieceSize)
	remaining := size
	var read uint64
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			if n%aes.BlockSize != 0 {
				return 0, fmt.Errorf("%w: ciphertext is not block aligned", ErrCorrupt)
			}
			read += uint64(n)
			if read > bodyLen {
				return 0, fmt.Errorf("%w: ciphertext runs past the recorded size of %d bytes", ErrCorrupt, size)
			}
			mode.CryptBlocks(buf[:n], buf[:n])
			out := buf[:n]
			if remaining < int64(n) {
				out = out[:remaining]
			}
			if _, err := w.Write(out); err != nil {
				return 0, fmt.Errorf("writing plaintext: %w", err)
			}
			remaining -= int64(len(out))
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("reading ciphertext: %w", err)
		}
	}
	if remaining > 0 {
		return 0, fmt.Errorf("%w: ciphertext ends %d bytes short of recorded size", ErrCorrupt, remaining)
	}
	return size, nil
}

// EncryptFile encrypts src into src + ".enc" and returns the new path.
// The partial output is removed on failure.
func EncryptFile(key, iv []byte, src string, pieceSize int) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", src, err)
	}

	dest := src + sb.EncryptedSuffix
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", dest, err)
	}
	if err := Encrypt(key, iv, in, info.Size(), out, pieceSize); err != nil {
		out.Close()
		os.Remove(dest)
		return "", fmt.Errorf("encrypting %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dest)
		return "", fmt.Errorf("closing %s: %w", dest, err)
	}
	return dest, nil
}

// DecryptFile decrypts encPath into destPath, truncating destPath to the
// recorded plaintext size.
func DecryptFile(key, iv []byte, encPath, destPath string, pieceSize int) error {
	in, err := os.Open(encPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", encPath, err)
	}
	defer in.Close()

	out, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating %s: %w", destPath, err)
	}
	size, err := Decrypt(key, iv, in, out, pieceSize)
	if err != nil {
		out.Close()
		return err
	}
	if err := out.Truncate(size); err != nil {
		out.Close()
		return fmt.Errorf("truncating %s: %w", destPath, err)
	}
	return out.Close()
}

// CBC is the legacy AES-256-CBC codec.
type CBC struct {
	key       []byte
	iv        []byte
	pieceSize int
}

var _ sb.Cipher = (*CBC)(nil)

// NewCBC creates the codec. A nil iv selects the all-zero IV; a zero
// pieceSize selects DefaultPieceSize.
func NewCBC(key, iv []byte, pieceSize int) (*CBC, error) {
	if pieceSize == 0 {
		pieceSize = DefaultPieceSize
	}
	if err := checkPieceSize(pieceSize); err != nil {
		return nil, err
	}
	if _, _, err := newBlock(key, iv); err != nil {
		return nil, err
	}
	return &CBC{key: key, iv: iv, pieceSize: pieceSize}, nil
}

func (c *CBC) Name() string { return sb.CipherAESCBC }

func (c *CBC) EncryptFile(srcPath string) (string, error) {
	return EncryptFile(c.key, c.iv, srcPath, c.pieceSize)
}

func (c *CBC) DecryptFile(encPath, destPath string) error {
	return DecryptFile(c.key, c.iv, encPath, destPath, c.pieceSize)
}
