package sb

import (
	"context"
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"
	"strings"

	"s3backup/internal/hash"
)

// RestoreMode decides what happens to each archive member on a full restore.
type RestoreMode int

const (
	// ModeConfirm asks before extracting each member.
	ModeConfirm RestoreMode = iota
	// ModeForce extracts every member, overwriting existing files.
	ModeForce
	// ModeForceNoOverwrite extracts every member whose target does not exist.
	ModeForceNoOverwrite
)

func (m RestoreMode) String() string {
	switch m {
	case ModeConfirm:
		return "confirm"
	case ModeForce:
		return "force"
	case ModeForceNoOverwrite:
		return "force-no-overwrite"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// FetchedArchive is a downloaded, verified and decrypted archive.
type FetchedArchive struct {
	Key       string
	Date      string
	Kind      ArchiveKind
	Path      string
	Encrypted bool
}

// RestoreRequest selects an archive and how to restore it.
type RestoreRequest struct {
	Schedule Schedule
	Date     string // YYYYMMDD or Latest
	Mode     RestoreMode
	// DownloadOnly, when set, stops after fetching the archive into this
	// directory.
	DownloadOnly string
	// Root overrides the extraction root.
	Root string
}

// RestoreResult reports what a restore did.
type RestoreResult struct {
	Archive   *FetchedArchive
	Extracted []string
	Skipped   []string
	// Aborted is set when the operator quit the browser.
	Aborted bool
}

// Fetch locates the archive of schedule on date (or the newest one for
// Latest), downloads it into destDir, checks its hash and decrypts it.
func (s *Service) Fetch(ctx context.Context, schedule Schedule, date, destDir string) (*FetchedArchive, error) {
	loc, err := s.locate(ctx, schedule, date)
	if err != nil {
		return nil, err
	}

	meta, err := s.store.Head(ctx, loc.Key)
	if err != nil {
		return nil, fmt.Errorf("reading metadata of %s: %w", loc.Key, err)
	}
	encrypted, err := ParseEncrypted(meta)
	if err != nil {
		return nil, fmt.Errorf("object %s: %w", loc.Key, err)
	}
	sum := MetaValue(meta, MetaHash)
	if sum == "" && s.opts.RequireHash {
		return nil, fmt.Errorf("%w: %s has no %q metadata", ErrMissingMetadata, loc.Key, MetaHash)
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return nil, fmt.Errorf("creating download directory %s: %w", destDir, err)
	}
	local := filepath.Join(destDir, loc.Date+"."+loc.Kind.Extension())
	if encrypted {
		local += EncryptedSuffix
	}
	if err := s.store.GetToFile(ctx, loc.Key, local); err != nil {
		os.Remove(local)
		return nil, fmt.Errorf("downloading %s: %w", loc.Key, err)
	}
	s.logger.Info("archive downloaded", "key", loc.Key, "path", local)

	if sum != "" {
		if err := verifyHash(local, sum, MetaValue(meta, MetaHashAlgorithm)); err != nil {
			os.Remove(local)
			return nil, fmt.Errorf("verifying %s: %w", loc.Key, err)
		}
	}

	fetched := &FetchedArchive{Key: loc.Key, Date: loc.Date, Kind: loc.Kind, Path: local, Encrypted: encrypted}
	if !encrypted {
		return fetched, nil
	}

	name := MetaValue(meta, MetaCipher)
	if name == "" {
		name = CipherAESCBC
	}
	c, err := s.ciphers.Cipher(name)
	if err != nil {
		return nil, fmt.Errorf("loading cipher: %w", err)
	}
	plain := strings.TrimSuffix(local, EncryptedSuffix)
	if err := c.DecryptFile(local, plain); err != nil {
		os.Remove(plain)
		return nil, fmt.Errorf("decrypting %s: %w", local, err)
	}
	if err := os.Remove(local); err != nil {
		s.logger.Warn("removing encrypted download failed", "path", local, "error", err)
	}
	fetched.Path = plain
	return fetched, nil
}

func (s *Service) locate(ctx context.Context, schedule Schedule, date string) (*Located, error) {
	if date == "" || date == Latest {
		return ResolveLatest(ctx, s.store, s.opts.MachineName, schedule)
	}
	return LocateDate(ctx, s.store, s.opts.MachineName, schedule, date)
}

func verifyHash(path, want, algName string) error {
	alg := hash.SHA512
	if algName != "" {
		var err error
		alg, err = hash.ParseAlgorithm(algName)
		if err != nil {
			return err
		}
	}
	got, err := hash.File(path, alg)
	if err != nil {
		return err
	}
	if !strings.EqualFold(got, want) {
		return fmt.Errorf("%w: got %s, want %s", ErrIntegrity, got, want)
	}
	return nil
}

// FullRestore fetches an archive and extracts all of it according to
// req.Mode, or only downloads it when req.DownloadOnly is set.
func (s *Service) FullRestore(ctx context.Context, req RestoreRequest) (*RestoreResult, error) {
	var result *RestoreResult
	err := s.record("full-restore", req.Schedule.String(), func(run *Run) error {
		destDir := s.opts.DestDir
		if req.DownloadOnly != "" {
			destDir = req.DownloadOnly
		}
		fetched, err := s.Fetch(ctx, req.Schedule, req.Date, destDir)
		if err != nil {
			return err
		}
		run.ObjectKey = fetched.Key
		run.Encrypted = fetched.Encrypted
		result = &RestoreResult{Archive: fetched}
		if req.DownloadOnly != "" {
			s.logger.Info("archive saved", "path", fetched.Path)
			return nil
		}

		root := s.restoreRoot(req.Root)
		var skipped []string
		want := func(m Member) (bool, error) {
			switch req.Mode {
			case ModeForce:
				return true, nil
			case ModeForceNoOverwrite:
				if m.IsDir {
					return true, nil
				}
				if _, err := os.Lstat(filepath.Join(root, filepath.FromSlash(m.Name))); err == nil {
					s.logger.Info("target exists, not restoring", "member", m.Name)
					skipped = append(skipped, m.Name)
					return false, nil
				} else if !errors.Is(err, iofs.ErrNotExist) {
					return false, err
				}
				return true, nil
			default:
				ok, err := s.prompter.Confirm(fmt.Sprintf("Restore %s?", m.Name))
				if err != nil {
					return false, err
				}
				if !ok {
					skipped = append(skipped, m.Name)
				}
				return ok, nil
			}
		}

		extracted, err := s.extract(fetched, root, want)
		if err != nil {
			return err
		}
		result.Extracted = extracted
		result.Skipped = skipped
		s.logger.Info("restore finished", "key", fetched.Key, "extracted", len(extracted), "skipped", len(skipped))
		return nil
	})
	return result, err
}

// BrowseRequest selects the archive to browse.
type BrowseRequest struct {
	Schedule Schedule
	Date     string
	Root     string
}

// Browse fetches an archive, lets the operator pick members and extracts
// the picked members. Nothing is extracted when the operator quits.
func (s *Service) Browse(ctx context.Context, req BrowseRequest) (*RestoreResult, error) {
	var result *RestoreResult
	err := s.record("browse", req.Schedule.String(), func(run *Run) error {
		fetched, err := s.Fetch(ctx, req.Schedule, req.Date, s.opts.DestDir)
		if err != nil {
			return err
		}
		run.ObjectKey = fetched.Key
		run.Encrypted = fetched.Encrypted
		result = &RestoreResult{Archive: fetched}

		reader, err := s.archiver.Open(fetched.Path, fetched.Kind)
		if err != nil {
			return fmt.Errorf("opening archive: %w", err)
		}
		members := reader.Members()
		reader.Close()

		selected, ok, err := s.prompter.Browse(members)
		if err != nil {
			return fmt.Errorf("browsing archive: %w", err)
		}
		if !ok {
			result.Aborted = true
			return nil
		}

		chosen := make(map[string]bool, len(selected))
		for _, m := range selected {
			chosen[m.Name] = true
		}
		extracted, err := s.extract(fetched, s.restoreRoot(req.Root), func(m Member) (bool, error) {
			return chosen[m.Name], nil
		})
		if err != nil {
			return err
		}
		result.Extracted = extracted
		return nil
	})
	return result, err
}

func (s *Service) extract(fetched *FetchedArchive, root string, want func(Member) (bool, error)) ([]string, error) {
	reader, err := s.archiver.Open(fetched.Path, fetched.Kind)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	defer reader.Close()

	extracted, err := reader.Extract(root, want)
	if err != nil {
		return extracted, fmt.Errorf("extracting into %s: %w", root, err)
	}
	for _, name := range extracted {
		s.logger.Debug("restored", "member", name)
	}
	return extracted, nil
}

func (s *Service) restoreRoot(override string) string {
	if override != "" {
		return override
	}
	return s.opts.RestoreRoot
}

// ArchiveListing groups the archives found for one schedule.
type ArchiveListing struct {
	Schedule Schedule
	Archives []*Located
}

// ListArchives reports the archives stored for each of schedules. Keys
// that do not parse are logged and left out.
func (s *Service) ListArchives(ctx context.Context, schedules []Schedule) ([]ArchiveListing, error) {
	var listings []ArchiveListing
	for _, sched := range schedules {
		found, invalid, err := ListArchives(ctx, s.store, s.opts.MachineName, sched)
		if err != nil {
			return nil, err
		}
		for _, k := range invalid {
			s.logger.Warn("ignoring unrecognized key", "key", k)
		}
		listings = append(listings, ArchiveListing{Schedule: sched, Archives: found})
	}
	return listings, nil
}
