package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"s3backup/internal/sb"
)

// testStoreContract exercises the behaviour every ObjectStore shares.
func testStoreContract(t *testing.T, s sb.ObjectStore) {
	t.Helper()
	ctx := context.Background()

	if err := s.EnsureBucket(ctx); err != nil {
		t.Fatalf("EnsureBucket() error = %v", err)
	}
	if err := s.EnsureBucket(ctx); err != nil {
		t.Fatalf("EnsureBucket() second call error = %v", err)
	}

	dir := t.TempDir()
	src := filepath.Join(dir, "upload")
	if err := os.WriteFile(src, []byte("archive bytes"), 0644); err != nil {
		t.Fatalf("writing source: %v", err)
	}

	keys := []string{
		"host1/daily/20240101.tar.bz2",
		"host1/daily/20240301.tar.bz2",
		"host1/daily/20240215.tar.bz2",
		"host1/weekly/20240107.tar.bz2",
		"host1/20240115/docs/a.txt",
	}
	meta := map[string]string{"hash": "abc123", "enc": "False"}
	for _, k := range keys {
		if err := s.Put(ctx, k, src, meta); err != nil {
			t.Fatalf("Put(%s) error = %v", k, err)
		}
	}

	t.Run("head returns metadata", func(t *testing.T) {
		got, err := s.Head(ctx, keys[0])
		if err != nil {
			t.Fatalf("Head() error = %v", err)
		}
		if sb.MetaValue(got, "hash") != "abc123" {
			t.Errorf("hash = %q, want %q", sb.MetaValue(got, "hash"), "abc123")
		}
		if sb.MetaValue(got, "enc") != "False" {
			t.Errorf("enc = %q, want %q", sb.MetaValue(got, "enc"), "False")
		}
	})

	t.Run("head of missing key", func(t *testing.T) {
		_, err := s.Head(ctx, "host1/daily/19990101.tar.bz2")
		if !errors.Is(err, sb.ErrNotFound) {
			t.Errorf("Head() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("get to file", func(t *testing.T) {
		dest := filepath.Join(dir, "download")
		if err := s.GetToFile(ctx, keys[1], dest); err != nil {
			t.Fatalf("GetToFile() error = %v", err)
		}
		data, err := os.ReadFile(dest)
		if err != nil {
			t.Fatalf("reading download: %v", err)
		}
		if string(data) != "archive bytes" {
			t.Errorf("content = %q, want %q", data, "archive bytes")
		}
	})

	t.Run("get of missing key", func(t *testing.T) {
		err := s.GetToFile(ctx, "host1/daily/19990101.tar.bz2", filepath.Join(dir, "missing"))
		if !errors.Is(err, sb.ErrNotFound) {
			t.Errorf("GetToFile() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("list with delimiter", func(t *testing.T) {
		got, err := s.List(ctx, "host1/daily/", "/")
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		want := []string{
			"host1/daily/20240101.tar.bz2",
			"host1/daily/20240215.tar.bz2",
			"host1/daily/20240301.tar.bz2",
		}
		if len(got) != len(want) {
			t.Fatalf("List() = %v, want %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("List()[%d] = %q, want %q", i, got[i], want[i])
			}
		}
	})

	t.Run("list by partial name", func(t *testing.T) {
		got, err := s.List(ctx, "host1/daily/20240215.", "/")
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(got) != 1 || got[0] != "host1/daily/20240215.tar.bz2" {
			t.Errorf("List() = %v, want [host1/daily/20240215.tar.bz2]", got)
		}
	})

	t.Run("delimiter hides nested keys", func(t *testing.T) {
		got, err := s.List(ctx, "host1/", "/")
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(got) != 0 {
			t.Errorf("List() = %v, want none", got)
		}
	})

	t.Run("list without delimiter recurses", func(t *testing.T) {
		got, err := s.List(ctx, "host1/20240115/", "")
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(got) != 1 || got[0] != "host1/20240115/docs/a.txt" {
			t.Errorf("List() = %v, want [host1/20240115/docs/a.txt]", got)
		}
	})

	t.Run("list of empty prefix", func(t *testing.T) {
		got, err := s.List(ctx, "otherhost/daily/", "/")
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(got) != 0 {
			t.Errorf("List() = %v, want none", got)
		}
	})
}
