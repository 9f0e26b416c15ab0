package cipher

import (
	"fmt"
	"io"
	"os"

	"filippo.io/age"

	"s3backup/internal/sb"
)

// Age encrypts archives with an age scrypt passphrase recipient. Every
// file gets its own random file key and nonce.
type Age struct {
	passphrase string
	workFactor int
}

var _ sb.Cipher = (*Age)(nil)

// NewAge creates the codec. A zero workFactor keeps age's default scrypt
// cost.
func NewAge(passphrase string, workFactor int) *Age {
	return &Age{passphrase: passphrase, workFactor: workFactor}
}

func (a *Age) Name() string { return sb.CipherAge }

// EncryptFile writes srcPath + ".enc" as an age file.
func (a *Age) EncryptFile(srcPath string) (string, error) {
	recipient, err := age.NewScryptRecipient(a.passphrase)
	if err != nil {
		return "", fmt.Errorf("creating scrypt recipient: %w", err)
	}
	if a.workFactor > 0 {
		recipient.SetWorkFactor(a.workFactor)
	}

	in, err := os.Open(srcPath)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", srcPath, err)
	}
	defer in.Close()

	dest := srcPath + sb.EncryptedSuffix
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", dest, err)
	}

	fail := func(err error) (string, error) {
		out.Close()
		os.Remove(dest)
		return "", err
	}

	w, err := age.Encrypt(out, recipient)
	if err != nil {
		return fail(fmt.Errorf("initializing encryption: %w", err))
	}
	if _, err := io.Copy(w, in); err != nil {
		return fail(fmt.Errorf("encrypting %s: %w", srcPath, err))
	}
	if err := w.Close(); err != nil {
		return fail(fmt.Errorf("finalizing encryption: %w", err))
	}
	if err := out.Close(); err != nil {
		os.Remove(dest)
		return "", fmt.Errorf("closing %s: %w", dest, err)
	}
	return dest, nil
}

// DecryptFile writes the plaintext of the age file encPath to destPath.
func (a *Age) DecryptFile(encPath, destPath string) error {
	identity, err := age.NewScryptIdentity(a.passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt identity: %w", err)
	}

	in, err := os.Open(encPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", encPath, err)
	}
	defer in.Close()

	r, err := age.Decrypt(in, identity)
	if err != nil {
		return fmt.Errorf("decrypting %s (wrong passphrase?): %w", encPath, err)
	}

	out, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating %s: %w", destPath, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("decrypting %s: %w", encPath, err)
	}
	return out.Close()
}
