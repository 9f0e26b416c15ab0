package sb_test

import (
	"path/filepath"
	"testing"

	"s3backup/internal/archive"
	"s3backup/internal/database"
	"s3backup/internal/sb"
	"s3backup/internal/store"
	"s3backup/internal/testutil"
)

// fixture is a source tree, its daily file list and the collaborators of a
// Service wired to in-memory backends.
type fixture struct {
	src      string
	list     string
	missing  string
	store    *store.MemoryStore
	history  *database.SQLiteDatabase
	prompter *testutil.StubPrompter
	ciphers  sb.CipherProvider
	opts     sb.Options
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	src := filepath.Join(t.TempDir(), "src")
	testutil.WriteTree(t, src, map[string]string{
		"docs/a.txt":     "alpha",
		"docs/sub/b.txt": "bravo",
		"notes.txt":      "notes",
	})
	missing := filepath.Join(src, "missing.txt")
	list := testutil.WriteList(t, filepath.Join(t.TempDir(), "daily.txt"),
		filepath.Join(src, "docs"),
		"",
		"  "+filepath.Join(src, "notes.txt")+"  ",
		missing,
	)

	return &fixture{
		src:      src,
		list:     list,
		missing:  missing,
		store:    store.NewMemoryStore(),
		history:  testutil.NewTestHistory(t),
		prompter: &testutil.StubPrompter{},
		ciphers:  testutil.NewTestCiphers(),
		opts: sb.Options{
			MachineName: "host1",
			DestDir:     filepath.Join(t.TempDir(), "archives"),
			Lists:       map[sb.Schedule]string{sb.Daily: list},
			ArchiveKind: sb.TarBzip2,
			HashLogDir:  filepath.Join(t.TempDir(), "hashes"),
		},
	}
}

func (f *fixture) service(mods ...func(*sb.Options)) *sb.Service {
	opts := f.opts
	for _, mod := range mods {
		mod(&opts)
	}
	return sb.NewService(opts, f.store, archive.NewBuilder(sb.NewNopLogger()), f.ciphers, f.prompter,
		f.history, sb.NewNopLogger(), testutil.FixedClock(), testutil.NewStubIDGenerator())
}

// member returns the archive member name of a path below the source tree.
func (f *fixture) member(rel string) string {
	return archive.MemberName(filepath.Join(f.src, filepath.FromSlash(rel)))
}

// restored returns where a source file lands when restored under root.
func (f *fixture) restored(root, rel string) string {
	return filepath.Join(root, filepath.FromSlash(f.member(rel)))
}
