package sb_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"s3backup/internal/archive"
	"s3backup/internal/cipher"
	"s3backup/internal/config"
	"s3backup/internal/hash"
	"s3backup/internal/sb"
	"s3backup/internal/testutil"
)

func TestService_FullRestore_RoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		kind   sb.ArchiveKind
		cipher string
	}{
		{"tar plain", sb.TarNone, ""},
		{"tar.gz plain", sb.TarGzip, ""},
		{"tar.bz2 aes-cbc", sb.TarBzip2, sb.CipherAESCBC},
		{"zip aes-cbc", sb.Zip, sb.CipherAESCBC},
		{"tar.gz age", sb.TarGzip, sb.CipherAge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t)
			svc := f.service(func(o *sb.Options) {
				o.ArchiveKind = tt.kind
				o.Encrypt = tt.cipher != ""
				o.CipherName = tt.cipher
			})

			backup, err := svc.Backup(ctx, sb.Daily)
			require.NoError(t, err)

			root := t.TempDir()
			res, err := svc.FullRestore(ctx, sb.RestoreRequest{
				Schedule: sb.Daily,
				Date:     sb.Latest,
				Mode:     sb.ModeForce,
				Root:     root,
			})
			require.NoError(t, err)

			assert.Equal(t, backup.Key, res.Archive.Key)
			assert.Equal(t, tt.cipher != "", res.Archive.Encrypted)
			assert.ElementsMatch(t, backup.Members, res.Extracted)
			assert.Equal(t, "alpha", testutil.ReadFile(t, f.restored(root, "docs/a.txt")))
			assert.Equal(t, "bravo", testutil.ReadFile(t, f.restored(root, "docs/sub/b.txt")))
			assert.Equal(t, "notes", testutil.ReadFile(t, f.restored(root, "notes.txt")))

			// The encrypted download is replaced by its plaintext.
			_, err = os.Stat(res.Archive.Path + sb.EncryptedSuffix)
			assert.ErrorIs(t, err, os.ErrNotExist)
		})
	}
}

func TestService_FullRestore_ForceNoOverwrite(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := f.service()
	_, err := svc.Backup(ctx, sb.Daily)
	require.NoError(t, err)

	root := t.TempDir()
	existing := testutil.WriteFile(t, f.restored(root, "notes.txt"), "local copy")

	res, err := svc.FullRestore(ctx, sb.RestoreRequest{
		Schedule: sb.Daily,
		Date:     "20240115",
		Mode:     sb.ModeForceNoOverwrite,
		Root:     root,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{f.member("notes.txt")}, res.Skipped)
	assert.NotContains(t, res.Extracted, f.member("notes.txt"))
	assert.Equal(t, "local copy", testutil.ReadFile(t, existing))
	assert.Equal(t, "alpha", testutil.ReadFile(t, f.restored(root, "docs/a.txt")))
}

func TestService_FullRestore_Confirm(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := f.service()
	_, err := svc.Backup(ctx, sb.Daily)
	require.NoError(t, err)

	notes := f.member("notes.txt")
	f.prompter.Answers = map[string]bool{"Restore " + notes + "?": true}

	root := t.TempDir()
	res, err := svc.FullRestore(ctx, sb.RestoreRequest{Schedule: sb.Daily, Date: sb.Latest, Mode: sb.ModeConfirm, Root: root})
	require.NoError(t, err)

	assert.Equal(t, []string{notes}, res.Extracted)
	assert.Len(t, f.prompter.Questions, 5)
	assert.Equal(t, "notes", testutil.ReadFile(t, f.restored(root, "notes.txt")))
	_, err = os.Stat(f.restored(root, "docs/a.txt"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestService_FullRestore_DownloadOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := f.service(func(o *sb.Options) { o.Encrypt = true })
	_, err := svc.Backup(ctx, sb.Daily)
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "download")
	root := t.TempDir()
	res, err := svc.FullRestore(ctx, sb.RestoreRequest{
		Schedule:     sb.Daily,
		Date:         sb.Latest,
		Mode:         sb.ModeForce,
		DownloadOnly: dir,
		Root:         root,
	})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "20240115.tar.bz2"), res.Archive.Path)
	assert.Empty(t, res.Extracted)
	require.NoError(t, archive.Verify(res.Archive.Path, sb.TarBzip2))

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// putLegacyArchive uploads a plain tar of the fixture under date with the
// given metadata, as older runs that did not write every field would.
func putLegacyArchive(t *testing.T, f *fixture, date string, meta func(data []byte) map[string]string) string {
	t.Helper()
	built, err := archive.NewBuilder(sb.NewNopLogger()).Build([]string{filepath.Join(f.src, "notes.txt")},
		t.TempDir(), sb.TarNone, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	data, err := os.ReadFile(built.Path)
	require.NoError(t, err)

	key := sb.ArchiveKey("host1", sb.Daily, date, "tar")
	f.store.PutBytes(key, data, meta(data))
	return key
}

func TestService_Fetch(t *testing.T) {
	ctx := context.Background()

	t.Run("missing enc metadata means unencrypted", func(t *testing.T) {
		f := newFixture(t)
		putLegacyArchive(t, f, "20240110", func(data []byte) map[string]string {
			return map[string]string{sb.MetaHash: testutil.SHA512Hex(data)}
		})
		dir := t.TempDir()

		got, err := f.service().Fetch(ctx, sb.Daily, "20240110", dir)
		require.NoError(t, err)
		assert.False(t, got.Encrypted)
		assert.Equal(t, filepath.Join(dir, "20240110.tar"), got.Path)

		r, err := archive.Open(got.Path, sb.TarNone)
		require.NoError(t, err)
		defer r.Close()
		require.Len(t, r.Members(), 1)
		assert.Equal(t, f.member("notes.txt"), r.Members()[0].Name)
	})

	t.Run("no metadata at all", func(t *testing.T) {
		f := newFixture(t)
		putLegacyArchive(t, f, "20240110", func([]byte) map[string]string { return nil })

		_, err := f.service().Fetch(ctx, sb.Daily, sb.Latest, t.TempDir())
		assert.NoError(t, err)
	})

	t.Run("require_hash rejects objects without hash", func(t *testing.T) {
		f := newFixture(t)
		putLegacyArchive(t, f, "20240110", func([]byte) map[string]string { return nil })
		dir := filepath.Join(t.TempDir(), "dl")
		svc := f.service(func(o *sb.Options) { o.RequireHash = true })

		_, err := svc.Fetch(ctx, sb.Daily, sb.Latest, dir)
		assert.ErrorIs(t, err, sb.ErrMissingMetadata)
		_, statErr := os.Stat(dir)
		assert.ErrorIs(t, statErr, os.ErrNotExist, "nothing should be downloaded")
	})

	t.Run("hash mismatch", func(t *testing.T) {
		f := newFixture(t)
		putLegacyArchive(t, f, "20240110", func([]byte) map[string]string {
			return map[string]string{sb.MetaHash: "deadbeef", sb.MetaEncrypted: "False"}
		})
		dir := t.TempDir()

		_, err := f.service().Fetch(ctx, sb.Daily, "20240110", dir)
		assert.ErrorIs(t, err, sb.ErrIntegrity)
		_, statErr := os.Stat(filepath.Join(dir, "20240110.tar"))
		assert.ErrorIs(t, statErr, os.ErrNotExist)
	})

	t.Run("md5 hash algorithm", func(t *testing.T) {
		f := newFixture(t)
		svc := f.service(func(o *sb.Options) { o.HashAlgorithm = hash.MD5 })
		_, err := svc.Backup(ctx, sb.Daily)
		require.NoError(t, err)

		meta, _ := f.store.Head(ctx, dailyKey)
		assert.Equal(t, "MD5", meta[sb.MetaHashAlgorithm])

		_, err = f.service().Fetch(ctx, sb.Daily, sb.Latest, t.TempDir())
		assert.NoError(t, err)
	})

	t.Run("invalid enc metadata", func(t *testing.T) {
		f := newFixture(t)
		putLegacyArchive(t, f, "20240110", func([]byte) map[string]string {
			return map[string]string{sb.MetaEncrypted: "maybe"}
		})

		_, err := f.service().Fetch(ctx, sb.Daily, "20240110", t.TempDir())
		assert.ErrorContains(t, err, "invalid")
	})

	t.Run("date not found", func(t *testing.T) {
		f := newFixture(t)
		putLegacyArchive(t, f, "20240110", func([]byte) map[string]string { return nil })

		_, err := f.service().Fetch(ctx, sb.Daily, "20240111", t.TempDir())
		assert.ErrorIs(t, err, sb.ErrNotFound)
		assert.ErrorContains(t, err, "host1/daily/20240111.")
	})

	t.Run("no backups", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.service().Fetch(ctx, sb.Daily, sb.Latest, t.TempDir())
		assert.ErrorIs(t, err, sb.ErrNoBackups)
	})

	t.Run("decrypt failure removes plaintext", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service(func(o *sb.Options) {
			o.Encrypt = true
			o.CipherName = sb.CipherAge
		}).Backup(ctx, sb.Daily)
		require.NoError(t, err)

		f.ciphers = cipher.NewProvider(config.EncryptionConfig{AgeWorkFactor: 10},
			func() (string, error) { return "wrong passphrase", nil })
		dir := t.TempDir()

		_, err = f.service().Fetch(ctx, sb.Daily, sb.Latest, dir)
		require.Error(t, err)
		_, statErr := os.Stat(filepath.Join(dir, "20240115.tar.bz2"))
		assert.ErrorIs(t, statErr, os.ErrNotExist)
	})
}

func TestService_Browse(t *testing.T) {
	ctx := context.Background()

	t.Run("extracts the selection", func(t *testing.T) {
		f := newFixture(t)
		svc := f.service()
		backup, err := svc.Backup(ctx, sb.Daily)
		require.NoError(t, err)

		f.prompter.Select = []string{f.member("docs/sub/b.txt")}
		root := t.TempDir()
		res, err := svc.Browse(ctx, sb.BrowseRequest{Schedule: sb.Daily, Date: sb.Latest, Root: root})
		require.NoError(t, err)

		assert.False(t, res.Aborted)
		assert.Len(t, f.prompter.Browsed, len(backup.Members))
		assert.Equal(t, []string{f.member("docs/sub/b.txt")}, res.Extracted)
		assert.Equal(t, "bravo", testutil.ReadFile(t, f.restored(root, "docs/sub/b.txt")))
		_, err = os.Stat(f.restored(root, "notes.txt"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("quit extracts nothing", func(t *testing.T) {
		f := newFixture(t)
		svc := f.service()
		_, err := svc.Backup(ctx, sb.Daily)
		require.NoError(t, err)

		f.prompter.Select = []string{f.member("notes.txt")}
		f.prompter.Abort = true
		root := t.TempDir()
		res, err := svc.Browse(ctx, sb.BrowseRequest{Schedule: sb.Daily, Date: "20240115", Root: root})
		require.NoError(t, err)

		assert.True(t, res.Aborted)
		assert.Empty(t, res.Extracted)
		entries, _ := os.ReadDir(root)
		assert.Empty(t, entries)
	})
}

func TestService_ListArchives(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.store.PutBytes("host1/daily/20240101.tar.bz2", nil, nil)
	f.store.PutBytes("host1/daily/20240301.zip", nil, nil)
	f.store.PutBytes("host1/daily/README", nil, nil)
	f.store.PutBytes("host1/monthly/20240101.tar", nil, nil)

	listings, err := f.service().ListArchives(ctx, sb.Schedules)
	require.NoError(t, err)
	require.Len(t, listings, 3)

	assert.Equal(t, sb.Daily, listings[0].Schedule)
	require.Len(t, listings[0].Archives, 2)
	assert.Equal(t, "20240101", listings[0].Archives[0].Date)
	assert.Equal(t, sb.Zip, listings[0].Archives[1].Kind)
	assert.Empty(t, listings[1].Archives)
	require.Len(t, listings[2].Archives, 1)
}

func TestService_FullRestore_PicksArchiveByDate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	clock := testutil.FixedClock()
	svc := sb.NewService(f.opts, f.store, archive.NewBuilder(sb.NewNopLogger()), f.ciphers, f.prompter,
		f.history, sb.NewNopLogger(), clock, testutil.NewStubIDGenerator())

	first, err := svc.Backup(ctx, sb.Daily)
	require.NoError(t, err)

	clock.Advance(24 * time.Hour)
	testutil.WriteFile(t, filepath.Join(f.src, "notes.txt"), "notes, day two")
	second, err := svc.Backup(ctx, sb.Daily)
	require.NoError(t, err)
	assert.Equal(t, "host1/daily/20240116.tar.bz2", second.Key)

	root := t.TempDir()
	res, err := svc.FullRestore(ctx, sb.RestoreRequest{Schedule: sb.Daily, Date: sb.Latest, Mode: sb.ModeForce, Root: root})
	require.NoError(t, err)
	assert.Equal(t, second.Key, res.Archive.Key)
	assert.Equal(t, "notes, day two", testutil.ReadFile(t, f.restored(root, "notes.txt")))

	root = t.TempDir()
	res, err = svc.FullRestore(ctx, sb.RestoreRequest{Schedule: sb.Daily, Date: "20240115", Mode: sb.ModeForce, Root: root})
	require.NoError(t, err)
	assert.Equal(t, first.Key, res.Archive.Key)
	assert.Equal(t, "notes", testutil.ReadFile(t, f.restored(root, "notes.txt")))
}
