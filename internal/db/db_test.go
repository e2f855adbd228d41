package db_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hpungsan/keepsake/internal/config"
	"github.com/hpungsan/keepsake/internal/db"
	"github.com/hpungsan/keepsake/internal/db/dbtest"
)

func makeSQLiteStore(t *testing.T) *db.Store {
	t.Helper()
	s, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_Compliance(t *testing.T) {
	dbtest.Run(t, makeSQLiteStore)
}

func TestInit(t *testing.T) {
	tmpDir := t.TempDir()

	s, err := db.Init(tmpDir)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer s.Close()

	if s.Dialect() != db.SQLite {
		t.Errorf("Dialect() = %v, want sqlite", s.Dialect())
	}

	dbPath := filepath.Join(tmpDir, "keepsake.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Errorf("database file not created at %s", dbPath)
	}

	var journalMode string
	if err := s.DB().QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		t.Fatalf("failed to query journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("journal_mode = %s, want wal", journalMode)
	}

	var fk int
	if err := s.DB().QueryRow("PRAGMA foreign_keys;").Scan(&fk); err != nil {
		t.Fatalf("failed to query foreign_keys: %v", err)
	}
	if fk != 1 {
		t.Errorf("foreign_keys = %d, want 1", fk)
	}

	for _, table := range []string{"capsules", "identity_hints", "share_tokens", "connections"} {
		var name string
		err := s.DB().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}
}

func TestInit_CreatesDirectories(t *testing.T) {
	baseDir := filepath.Join(t.TempDir(), "nested", "path", ".keepsake")

	s, err := db.Init(baseDir)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(baseDir); os.IsNotExist(err) {
		t.Errorf("base directory not created at %s", baseDir)
	}
}

func TestUserVersion(t *testing.T) {
	tmpDir := t.TempDir()

	s, err := db.Init(tmpDir)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	version, err := db.GetUserVersion(s.DB())
	if err != nil {
		t.Fatalf("GetUserVersion() error = %v", err)
	}
	if version != db.CurrentSchemaVersion {
		t.Errorf("user_version = %d, want %d", version, db.CurrentSchemaVersion)
	}
	s.Close()

	// Reopening an up-to-date database is a no-op migration.
	s, err = db.Init(tmpDir)
	if err != nil {
		t.Fatalf("second Init() error = %v", err)
	}
	defer s.Close()
	version, err = db.GetUserVersion(s.DB())
	if err != nil {
		t.Fatalf("GetUserVersion() error = %v", err)
	}
	if version != db.CurrentSchemaVersion {
		t.Errorf("user_version after reopen = %d, want %d", version, db.CurrentSchemaVersion)
	}
}

func TestOpen_SQLiteDefault(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DBMaxOpenConns = 4

	s, err := db.Open(context.Background(), t.TempDir(), cfg)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()

	if got := s.DB().Stats().MaxOpenConnections; got != 4 {
		t.Errorf("MaxOpenConnections = %d, want 4", got)
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestOpenPostgres_EmptyDSN(t *testing.T) {
	if _, err := db.OpenPostgres(context.Background(), ""); err == nil {
		t.Fatal("OpenPostgres(\"\") expected error")
	}
}
