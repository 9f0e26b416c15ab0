package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"s3backup/internal/config"
	"s3backup/internal/sb"
	"s3backup/internal/store"
	"s3backup/internal/testutil"
)

type testEnv struct {
	cfg    *config.Config
	src    string
	fsRoot string
	stderr bytes.Buffer
}

// newTestEnv creates a config backed by a filesystem store and an
// in-memory history, with a daily list covering one small tree.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	base := t.TempDir()
	env := &testEnv{
		cfg:    config.NewConfig("host1", base),
		src:    filepath.Join(t.TempDir(), "src"),
		fsRoot: filepath.Join(t.TempDir(), "store"),
	}
	env.cfg.Store = config.StoreConfig{Type: "filesystem", FSRoot: env.fsRoot}
	env.cfg.Database = config.DatabaseConfig{Type: "memory"}

	if err := os.MkdirAll(filepath.Join(env.src, "etc"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(env.src, "etc", "hosts"), []byte("127.0.0.1 localhost\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Dir(env.cfg.Lists.Daily), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(env.cfg.Lists.Daily, []byte(filepath.Join(env.src, "etc")+"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	return env
}

func (e *testEnv) open(t *testing.T, op, input string) (*App, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	a, err := NewApp(context.Background(), e.cfg, op, Streams{In: strings.NewReader(input), Out: &out, Err: &e.stderr})
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	return a, &out
}

func (e *testEnv) restored(root string) string {
	return filepath.Join(root, strings.TrimLeft(filepath.Join(e.src, "etc", "hosts"), "/"))
}

func TestApp_BackupThenFullRestore(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.cfg.Encryption.Enabled = true
	env.cfg.Encryption.Passphrase = "secret"

	a, _ := env.open(t, OpBackup, "")
	res, err := a.Backup(ctx, "daily")
	if err != nil {
		t.Fatalf("Backup() error = %v", err)
	}
	if err := a.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !strings.HasPrefix(res.Key, "host1/daily/") || !strings.HasSuffix(res.Key, ".tar.bz2") {
		t.Errorf("Key = %q, want host1/daily/<date>.tar.bz2", res.Key)
	}

	root := t.TempDir()
	a, _ = env.open(t, OpFullRestore, "")
	defer a.Close(ctx)
	restored, err := a.FullRestore(ctx, FullRestoreArgs{Schedule: "daily", Date: "last", Force: true, Root: root})
	if err != nil {
		t.Fatalf("FullRestore() error = %v", err)
	}
	if !restored.Archive.Encrypted {
		t.Error("restored archive should have been encrypted")
	}

	got, err := os.ReadFile(env.restored(root))
	if err != nil {
		t.Fatalf("reading restored file: %v", err)
	}
	if string(got) != "127.0.0.1 localhost\n" {
		t.Errorf("restored content = %q", got)
	}
}

func TestApp_Close_UploadsCatalog(t *testing.T) {
	ctx := context.Background()

	t.Run("after mutating operation", func(t *testing.T) {
		env := newTestEnv(t)
		a, _ := env.open(t, OpBackup, "")
		if _, err := a.Backup(ctx, "daily"); err != nil {
			t.Fatalf("Backup() error = %v", err)
		}
		if err := a.Close(ctx); err != nil {
			t.Fatalf("Close() error = %v", err)
		}

		catalog := filepath.Join(env.fsRoot, "host1", "catalog", "history.db")
		if _, err := os.Stat(catalog); err != nil {
			t.Fatalf("catalog not uploaded: %v", err)
		}

		st, err := store.NewFileSystemStore(env.fsRoot)
		if err != nil {
			t.Fatalf("NewFileSystemStore() error = %v", err)
		}
		meta, err := st.Head(ctx, sb.CatalogKey("host1"))
		if err != nil {
			t.Fatalf("Head() error = %v", err)
		}
		if got, want := sb.MetaValue(meta, sb.MetaHash), testutil.FileSHA512Hex(t, catalog); got != want {
			t.Errorf("catalog hash = %q, want %q", got, want)
		}
	})

	t.Run("not after read-only operation", func(t *testing.T) {
		env := newTestEnv(t)
		a, _ := env.open(t, OpHistory, "")
		if _, err := a.GetHistory(10); err != nil {
			t.Fatalf("GetHistory() error = %v", err)
		}
		if err := a.Close(ctx); err != nil {
			t.Fatalf("Close() error = %v", err)
		}

		if _, err := os.Stat(filepath.Join(env.fsRoot, "host1", "catalog", "history.db")); !os.IsNotExist(err) {
			t.Errorf("catalog should not be uploaded, stat error = %v", err)
		}
	})

	t.Run("not when upload_catalog is off", func(t *testing.T) {
		env := newTestEnv(t)
		env.cfg.UploadCatalog = false
		a, _ := env.open(t, OpBackup, "")
		if _, err := a.Backup(ctx, "daily"); err != nil {
			t.Fatalf("Backup() error = %v", err)
		}
		if err := a.Close(ctx); err != nil {
			t.Fatalf("Close() error = %v", err)
		}

		if _, err := os.Stat(filepath.Join(env.fsRoot, "host1", "catalog")); !os.IsNotExist(err) {
			t.Errorf("catalog should not be uploaded, stat error = %v", err)
		}
	})
}

func TestApp_Browse(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	a, _ := env.open(t, OpBackup, "")
	if _, err := a.Backup(ctx, "daily"); err != nil {
		t.Fatalf("Backup() error = %v", err)
	}
	a.Close(ctx)

	root := t.TempDir()
	a, out := env.open(t, OpBrowse, "show\nrestore 2\nfinish\n")
	defer a.Close(ctx)

	res, err := a.Browse(ctx, "daily", "last", root)
	if err != nil {
		t.Fatalf("Browse() error = %v", err)
	}
	if res.Aborted {
		t.Fatal("Browse() aborted, want finished")
	}
	if len(res.Extracted) != 1 {
		t.Fatalf("Extracted = %v, want one member", res.Extracted)
	}
	if !strings.Contains(out.String(), "etc/hosts") {
		t.Errorf("listing does not show the member: %q", out.String())
	}
	if _, err := os.Stat(env.restored(root)); err != nil {
		t.Errorf("member not restored: %v", err)
	}
}

func TestApp_ListArchives(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	a, _ := env.open(t, OpBackup, "")
	if _, err := a.Backup(ctx, "daily"); err != nil {
		t.Fatalf("Backup() error = %v", err)
	}
	a.Close(ctx)

	a, _ = env.open(t, OpListArchives, "")
	defer a.Close(ctx)

	all, err := a.ListArchives(ctx, "")
	if err != nil {
		t.Fatalf("ListArchives() error = %v", err)
	}
	if len(all) != len(sb.Schedules) {
		t.Fatalf("got %d listings, want %d", len(all), len(sb.Schedules))
	}
	if len(all[0].Archives) != 1 {
		t.Errorf("daily archives = %d, want 1", len(all[0].Archives))
	}

	weekly, err := a.ListArchives(ctx, "weekly")
	if err != nil {
		t.Fatalf("ListArchives() error = %v", err)
	}
	if len(weekly) != 1 || len(weekly[0].Archives) != 0 {
		t.Errorf("weekly listing = %+v, want one empty listing", weekly)
	}
}

func TestApp_ArgumentErrors(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	tests := []struct {
		name string
		args FullRestoreArgs
	}{
		{"both force flags", FullRestoreArgs{Schedule: "daily", Date: "last", Force: true, ForceNoOverwrite: true}},
		{"bad schedule", FullRestoreArgs{Schedule: "hourly", Date: "last"}},
		{"bad date", FullRestoreArgs{Schedule: "daily", Date: "someday"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _ := env.open(t, OpFullRestore, "")
			defer a.Close(ctx)

			if _, err := a.FullRestore(ctx, tt.args); err == nil {
				t.Error("FullRestore() expected error")
			}
			if a.op.Status != "error" {
				t.Errorf("Status = %q, want error", a.op.Status)
			}
		})
	}
}

func TestApp_PutFile(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	a, _ := env.open(t, OpPut, "")
	defer a.Close(ctx)

	res, err := a.PutFile(ctx, filepath.Join(env.src, "etc", "hosts"))
	if err != nil {
		t.Fatalf("PutFile() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(env.fsRoot, filepath.FromSlash(res.Key))); err != nil {
		t.Errorf("object not stored: %v", err)
	}

	runs, err := a.GetHistory(5)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(runs) != 1 || runs[0].Operation != "put" || runs[0].Status != sb.RunSuccess {
		t.Errorf("history = %+v, want one successful put", runs)
	}
}

func TestNewApp_Errors(t *testing.T) {
	ctx := context.Background()
	streams := Streams{In: strings.NewReader(""), Out: &bytes.Buffer{}, Err: &bytes.Buffer{}}

	t.Run("invalid config", func(t *testing.T) {
		env := newTestEnv(t)
		env.cfg.MachineName = ""
		if _, err := NewApp(ctx, env.cfg, OpBackup, streams); err == nil {
			t.Error("NewApp() expected error for missing machine_name")
		}
	})

	t.Run("unknown operation", func(t *testing.T) {
		env := newTestEnv(t)
		if _, err := NewApp(ctx, env.cfg, "defrag", streams); err == nil {
			t.Error("NewApp() expected error for unknown operation")
		}
	})
}
