package sb

import "errors"

var (
	// ErrNotFound is returned when a remote object does not exist.
	ErrNotFound = errors.New("object not found")

	// ErrNoBackups is returned when a schedule prefix lists no archives.
	ErrNoBackups = errors.New("no backups found")

	// ErrInvalidKey is returned when an object key does not follow the
	// <machine>/<schedule>/<YYYYMMDD>.<ext> layout.
	ErrInvalidKey = errors.New("invalid archive key")

	// ErrIntegrity is returned when downloaded content does not match its
	// recorded hash.
	ErrIntegrity = errors.New("content hash mismatch")

	// ErrMissingMetadata is returned when an object lacks metadata the
	// configuration requires.
	ErrMissingMetadata = errors.New("required metadata missing")
)
