package sb

// Cipher names recorded in the "cipher" object metadata.
const (
	CipherAESCBC = "aes-cbc"
	CipherAge    = "age"
)

// EncryptedSuffix is appended to an archive path once it is encrypted.
const EncryptedSuffix = ".enc"

// Cipher encrypts archives before upload and decrypts them after download.
type Cipher interface {
	// Name is the value stored in the "cipher" metadata.
	Name() string

	// EncryptFile writes srcPath + ".enc" and returns its path.
	EncryptFile(srcPath string) (string, error)

	// DecryptFile writes the plaintext of encPath to destPath.
	DecryptFile(encPath, destPath string) error
}

// CipherProvider resolves a Cipher by its metadata name. Implementations
// may prompt for a passphrase the first time a cipher is requested.
type CipherProvider interface {
	Cipher(name string) (Cipher, error)
}

// Prompter asks the operator questions during a restore.
type Prompter interface {
	// Confirm asks a yes/no question.
	Confirm(question string) (bool, error)

	// Browse lets the operator pick members. ok is false when the operator
	// quit without committing the selection.
	Browse(members []Member) (selected []Member, ok bool, err error)
}
