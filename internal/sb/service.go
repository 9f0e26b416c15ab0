package sb

import (
	"s3backup/internal/fs"
	"s3backup/internal/hash"
)

// Options are the settings of a service, fixed for its lifetime.
type Options struct {
	MachineName string
	// DestDir receives archives on backup and downloads on restore.
	DestDir string
	// Lists maps each schedule to the path of its file list.
	Lists       map[Schedule]string
	ArchiveKind ArchiveKind
	Encrypt     bool
	// CipherName is the cipher used for new archives when Encrypt is set.
	CipherName    string
	HashAlgorithm hash.Algorithm
	// HashLogDir receives path<TAB>hash logs of uploads. Defaults to DestDir.
	HashLogDir string
	// DeleteWhenFinished removes DestDir after a successful upload.
	DeleteWhenFinished bool
	// RestoreRoot is where archive members are extracted. Defaults to "/".
	RestoreRoot string
	// RequireHash rejects objects that carry no hash metadata.
	RequireHash bool
	Ignore      []string
}

// Service coordinates the archive, cipher, hash and store components into
// the backup and restore pipelines.
type Service struct {
	opts     Options
	store    ObjectStore
	archiver Archiver
	ciphers  CipherProvider
	prompter Prompter
	history  History
	ignore   *fs.IgnoreMatcher
	logger   Logger
	clock    Clock
	idgen    IDGenerator
}

// NewService creates a Service with the provided dependencies.
func NewService(opts Options, store ObjectStore, archiver Archiver, ciphers CipherProvider, prompter Prompter, history History, logger Logger, clock Clock, idgen IDGenerator) *Service {
	if opts.HashAlgorithm == 0 {
		opts.HashAlgorithm = hash.SHA512
	}
	if opts.ArchiveKind == 0 {
		opts.ArchiveKind = TarBzip2
	}
	if opts.CipherName == "" {
		opts.CipherName = CipherAESCBC
	}
	if opts.RestoreRoot == "" {
		opts.RestoreRoot = "/"
	}
	if opts.HashLogDir == "" {
		opts.HashLogDir = opts.DestDir
	}
	return &Service{
		opts:     opts,
		store:    store,
		archiver: archiver,
		ciphers:  ciphers,
		prompter: prompter,
		history:  history,
		ignore:   fs.NewIgnoreMatcher(opts.Ignore),
		logger:   logger,
		clock:    clock,
		idgen:    idgen,
	}
}

// Options returns the settings the service was built with, defaults applied.
func (s *Service) Options() Options {
	return s.opts
}

// filterIgnored drops list entries matched by the ignore patterns.
func (s *Service) filterIgnored(files []string) []string {
	kept := files[:0:0]
	for _, f := range files {
		if s.ignore.Match(f) {
			s.logger.Info("ignoring list entry", "path", f)
			continue
		}
		kept = append(kept, f)
	}
	return kept
}
