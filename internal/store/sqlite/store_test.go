package sqlite

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "vault.db"), slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_AppliesPragmas(t *testing.T) {
	s := newTestStore(t)

	// Both pragmas ride the DSN, so any pooled connection must report
	// them.
	var journalMode string
	if err := s.db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("read journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("journal_mode = %q, want wal", journalMode)
	}

	var fk int
	if err := s.db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("read foreign_keys: %v", err)
	}
	if fk != 1 {
		t.Errorf("foreign_keys = %d, want 1", fk)
	}
}

func TestOpen_CreatesSchema(t *testing.T) {
	s := newTestStore(t)

	var n int
	err := s.db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type = 'table'
		   AND name IN ('images', 'generation_metadata', 'tags', 'image_tags')`,
	).Scan(&n)
	if err != nil {
		t.Fatalf("count tables: %v", err)
	}
	if n != 4 {
		t.Errorf("schema created %d of 4 expected tables", n)
	}
}

func TestOpen_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "vault.db")
	logger := slog.New(slog.DiscardHandler)

	s, err := Open(dbPath, logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	img := seedImage(t, s, "reopen")
	if err := s.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	// A second Open re-runs the schema against a populated database and
	// must leave the data alone.
	s2, err := Open(dbPath, logger)
	if err != nil {
		t.Fatalf("re-open store: %v", err)
	}
	defer s2.Close()

	got, err := s2.GetImageByID(context.Background(), img.ID)
	if err != nil {
		t.Fatalf("get image after reopen: %v", err)
	}
	if got.FileHash != img.FileHash {
		t.Errorf("file hash = %q, want %q", got.FileHash, img.FileHash)
	}
}
