// Package app wires configuration, storage and the backup service together
// for the command line.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"s3backup/internal/archive"
	"s3backup/internal/cipher"
	"s3backup/internal/config"
	"s3backup/internal/database"
	"s3backup/internal/hash"
	"s3backup/internal/sb"
	"s3backup/internal/shell"
	"s3backup/internal/store"
)

// PassphraseEnv overrides the configured passphrase source.
const PassphraseEnv = "S3BACKUP_PASSPHRASE"

// App is the application layer between the CLI and sb.Service.
// It constructs all dependencies from config, parses raw CLI arguments and
// manages the history database lifecycle on Close.
type App struct {
	cfg     *config.Config
	db      *database.SQLiteDatabase
	store   sb.ObjectStore
	service *sb.Service
	op      *Operation
	logger  *slog.Logger
	logFile *os.File
	out     io.Writer
}

// Streams are the terminal streams of the app. Err also receives log
// records at Info and above.
type Streams struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// NewApp creates a fully wired App from the given config.
// operation identifies the CLI command being run (see the Op constants).
// The caller must call Close when done.
func NewApp(ctx context.Context, cfg *config.Config, operation string, streams Streams) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	op, err := NewOperation(operation)
	if err != nil {
		return nil, err
	}
	opts, err := OptionsFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	runID := sb.UUIDGenerator{}.New()
	logger, logFile, err := newLogger(cfg.LogDir, runID, streams.Err, slog.LevelInfo)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	adapter := &slogAdapter{l: logger}

	st, err := store.NewStoreFromConfig(ctx, cfg.Store, adapter)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating store: %w", err)
	}

	db, err := database.NewDatabaseFromConfig(cfg.Database)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating database: %w", err)
	}
	if err := db.CheckMigrations(); err != nil {
		db.Close()
		logFile.Close()
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}

	ciphers := cipher.NewProvider(cfg.Encryption, readPassphrase)
	prompter := shell.New(streams.In, streams.Out)
	svc := sb.NewService(opts, st, archive.NewBuilder(adapter), ciphers, prompter, db,
		adapter, sb.RealClock{}, sb.UUIDGenerator{})

	logger.Debug("operation started", "operation", op.Name, "machine", cfg.MachineName)
	return &App{
		cfg:     cfg,
		db:      db,
		store:   st,
		service: svc,
		op:      op,
		logger:  logger,
		logFile: logFile,
		out:     streams.Out,
	}, nil
}

// readPassphrase is consulted when the config carries no passphrase.
func readPassphrase() (string, error) {
	if v := os.Getenv(PassphraseEnv); v != "" {
		return v, nil
	}
	p, err := shell.ReadPassphrase("Passphrase: ")
	if err != nil {
		return "", fmt.Errorf("no passphrase configured, %s unset: %w", PassphraseEnv, err)
	}
	return p, nil
}

// Service returns the underlying service.
func (a *App) Service() *sb.Service {
	return a.service
}

// Backup runs the backup pipeline for the named schedule.
func (a *App) Backup(ctx context.Context, schedule string) (*sb.BackupResult, error) {
	sched, err := sb.ParseSchedule(schedule)
	if err != nil {
		return nil, a.op.Fail(err)
	}
	res, err := a.service.Backup(ctx, sched)
	return res, a.op.Fail(err)
}

// FullRestoreArgs are the raw arguments of the full-restore command.
type FullRestoreArgs struct {
	Schedule         string
	Date             string
	Force            bool
	ForceNoOverwrite bool
	DownloadOnly     string
	Root             string
}

// FullRestore parses args and restores a whole archive.
func (a *App) FullRestore(ctx context.Context, args FullRestoreArgs) (*sb.RestoreResult, error) {
	if args.Force && args.ForceNoOverwrite {
		return nil, a.op.Fail(fmt.Errorf("--force and --force-no-overwrite are mutually exclusive"))
	}
	sched, err := sb.ParseSchedule(args.Schedule)
	if err != nil {
		return nil, a.op.Fail(err)
	}
	date, err := sb.ParseDate(args.Date)
	if err != nil {
		return nil, a.op.Fail(err)
	}

	mode := sb.ModeConfirm
	switch {
	case args.Force:
		mode = sb.ModeForce
	case args.ForceNoOverwrite:
		mode = sb.ModeForceNoOverwrite
	}

	res, err := a.service.FullRestore(ctx, sb.RestoreRequest{
		Schedule:     sched,
		Date:         date,
		Mode:         mode,
		DownloadOnly: args.DownloadOnly,
		Root:         args.Root,
	})
	return res, a.op.Fail(err)
}

// Browse opens an archive in the interactive browser. An empty date lets
// the operator pick from the stored archives when stdin is a terminal, and
// selects the newest archive otherwise.
func (a *App) Browse(ctx context.Context, schedule, date, root string) (*sb.RestoreResult, error) {
	sched, err := sb.ParseSchedule(schedule)
	if err != nil {
		return nil, a.op.Fail(err)
	}

	switch {
	case date == "" && shell.IsInteractive():
		listings, err := a.service.ListArchives(ctx, []sb.Schedule{sched})
		if err != nil {
			return nil, a.op.Fail(err)
		}
		var candidates []sb.Located
		for _, loc := range listings[0].Archives {
			candidates = append(candidates, *loc)
		}
		picked, err := shell.PickArchive(candidates)
		if err != nil {
			return nil, a.op.Fail(err)
		}
		date = picked.Date
	case date == "":
		date = sb.Latest
	default:
		if date, err = sb.ParseDate(date); err != nil {
			return nil, a.op.Fail(err)
		}
	}

	res, err := a.service.Browse(ctx, sb.BrowseRequest{Schedule: sched, Date: date, Root: root})
	return res, a.op.Fail(err)
}

// ListArchives lists the archives of one schedule, or of every schedule
// when schedule is empty.
func (a *App) ListArchives(ctx context.Context, schedule string) ([]sb.ArchiveListing, error) {
	schedules := sb.Schedules
	if schedule != "" {
		sched, err := sb.ParseSchedule(schedule)
		if err != nil {
			return nil, a.op.Fail(err)
		}
		schedules = []sb.Schedule{sched}
	}
	listings, err := a.service.ListArchives(ctx, schedules)
	return listings, a.op.Fail(err)
}

// PutFile uploads a single file.
func (a *App) PutFile(ctx context.Context, path string) (*sb.PutResult, error) {
	res, err := a.service.PutFile(ctx, path)
	return res, a.op.Fail(err)
}

// PutList uploads every entry of a file list.
func (a *App) PutList(ctx context.Context, listPath string) ([]*sb.PutResult, error) {
	res, err := a.service.PutList(ctx, listPath)
	return res, a.op.Fail(err)
}

// GetHistory returns the most recent runs.
func (a *App) GetHistory(limit int) ([]*sb.Run, error) {
	runs, err := a.service.GetHistory(limit)
	return runs, a.op.Fail(err)
}

// Close finalizes the operation and closes all resources.
// For mutating operations with upload_catalog set: snapshots the history
// database and uploads it to <machine>/catalog/history.db.
// For other operations: just closes the database.
func (a *App) Close(ctx context.Context) error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	var snapshot string
	if a.op.Mutating && a.cfg.UploadCatalog {
		tmpFile, err := os.CreateTemp("", "s3backup-catalog-*.db")
		if err != nil {
			keep(fmt.Errorf("creating temp file for catalog snapshot: %w", err))
		} else {
			snapshot = tmpFile.Name()
			tmpFile.Close()
			// VACUUM INTO refuses to overwrite an existing file.
			os.Remove(snapshot)
			if err := a.db.BackupTo(snapshot); err != nil {
				keep(err)
				snapshot = ""
			}
		}
	}

	if err := a.db.Close(); err != nil {
		keep(fmt.Errorf("closing database: %w", err))
	}

	if snapshot != "" {
		keep(a.uploadCatalog(ctx, snapshot))
		os.Remove(snapshot)
	}

	a.logger.Debug("operation finished", "operation", a.op.Name, "status", a.op.Status)
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}

// uploadCatalog stores the history snapshot at path in the object store.
func (a *App) uploadCatalog(ctx context.Context, path string) error {
	key := sb.CatalogKey(a.cfg.MachineName)
	sum, err := hash.File(path, hash.SHA512)
	if err != nil {
		return fmt.Errorf("hashing catalog: %w", err)
	}
	meta := map[string]string{
		sb.MetaHash:          sum,
		sb.MetaHashAlgorithm: hash.SHA512.String(),
		sb.MetaEncrypted:     sb.FormatEncrypted(false),
	}
	if err := a.store.EnsureBucket(ctx); err != nil {
		return fmt.Errorf("preparing bucket for catalog: %w", err)
	}
	if err := a.store.Put(ctx, key, path, meta); err != nil {
		return fmt.Errorf("uploading catalog: %w", err)
	}
	a.logger.Info("catalog uploaded", "key", key)
	return nil
}
