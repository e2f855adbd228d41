package db

import (
	"context"
	"database/sql"
	"fmt"
)

// CurrentSchemaVersion is the latest SQLite schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

var sqliteSchemaV1 = []string{
	`CREATE TABLE IF NOT EXISTS capsules (
	  id                   TEXT PRIMARY KEY,
	  sender_id            TEXT NOT NULL,
	  recipient_id         TEXT NOT NULL,
	  title                TEXT NOT NULL DEFAULT '',
	  body                 TEXT NOT NULL,
	  theme                TEXT,
	  status               TEXT NOT NULL CHECK (status IN ('sealed', 'ready', 'opened', 'expired')),
	  is_anonymous         INTEGER NOT NULL DEFAULT 0 CHECK (is_anonymous IN (0, 1)),
	  reveal_delay_seconds INTEGER CHECK (reveal_delay_seconds BETWEEN 0 AND 259200),
	  created_at           INTEGER NOT NULL,
	  updated_at           INTEGER NOT NULL,
	  unlocks_at           INTEGER NOT NULL,
	  opened_at            INTEGER,
	  reveal_at            INTEGER,
	  sender_revealed_at   INTEGER,
	  deleted_at           INTEGER,
	  CHECK ((is_anonymous = 1) = (reveal_delay_seconds IS NOT NULL)),
	  CHECK (status <> 'opened' OR opened_at IS NOT NULL)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_capsules_sender_created
	ON capsules(sender_id, created_at DESC)`,

	`CREATE INDEX IF NOT EXISTS idx_capsules_recipient_created
	ON capsules(recipient_id, created_at DESC)
	WHERE deleted_at IS NULL`,

	`CREATE INDEX IF NOT EXISTS idx_capsules_promotable
	ON capsules(unlocks_at)
	WHERE status = 'sealed' AND deleted_at IS NULL`,

	`CREATE INDEX IF NOT EXISTS idx_capsules_reveal_pending
	ON capsules(reveal_at)
	WHERE reveal_at IS NOT NULL AND sender_revealed_at IS NULL`,

	`CREATE INDEX IF NOT EXISTS idx_capsules_withdrawn
	ON capsules(deleted_at)
	WHERE deleted_at IS NOT NULL`,

	`CREATE TABLE IF NOT EXISTS identity_hints (
	  letter_id TEXT PRIMARY KEY REFERENCES capsules(id) ON DELETE CASCADE,
	  hint1     TEXT NOT NULL CHECK (length(hint1) <= 60),
	  hint2     TEXT CHECK (hint2 IS NULL OR length(hint2) <= 60),
	  hint3     TEXT CHECK (hint3 IS NULL OR length(hint3) <= 60),
	  CHECK (hint3 IS NULL OR hint2 IS NOT NULL)
	)`,

	`CREATE TABLE IF NOT EXISTS share_tokens (
	  id         TEXT PRIMARY KEY,
	  letter_id  TEXT NOT NULL REFERENCES capsules(id) ON DELETE CASCADE,
	  owner_id   TEXT NOT NULL,
	  token      TEXT NOT NULL UNIQUE,
	  share_kind TEXT NOT NULL,
	  created_at INTEGER NOT NULL,
	  expires_at INTEGER,
	  revoked_at INTEGER,
	  open_at    INTEGER NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_share_tokens_owner_created
	ON share_tokens(owner_id, created_at)`,

	`CREATE INDEX IF NOT EXISTS idx_share_tokens_letter
	ON share_tokens(letter_id, created_at DESC)`,

	`CREATE TABLE IF NOT EXISTS connections (
	  user_a     TEXT NOT NULL,
	  user_b     TEXT NOT NULL,
	  created_at INTEGER NOT NULL,
	  PRIMARY KEY (user_a, user_b)
	)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS capsules (
	  id                   TEXT PRIMARY KEY,
	  sender_id            TEXT NOT NULL,
	  recipient_id         TEXT NOT NULL,
	  title                TEXT NOT NULL DEFAULT '',
	  body                 TEXT NOT NULL,
	  theme                TEXT,
	  status               TEXT NOT NULL CHECK (status IN ('sealed', 'ready', 'opened', 'expired')),
	  is_anonymous         BOOLEAN NOT NULL DEFAULT FALSE,
	  reveal_delay_seconds BIGINT CHECK (reveal_delay_seconds BETWEEN 0 AND 259200),
	  created_at           BIGINT NOT NULL,
	  updated_at           BIGINT NOT NULL,
	  unlocks_at           BIGINT NOT NULL,
	  opened_at            BIGINT,
	  reveal_at            BIGINT,
	  sender_revealed_at   BIGINT,
	  deleted_at           BIGINT,
	  CHECK (is_anonymous = (reveal_delay_seconds IS NOT NULL)),
	  CHECK (status <> 'opened' OR opened_at IS NOT NULL)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_capsules_sender_created
	ON capsules(sender_id, created_at DESC)`,

	`CREATE INDEX IF NOT EXISTS idx_capsules_recipient_created
	ON capsules(recipient_id, created_at DESC)
	WHERE deleted_at IS NULL`,

	`CREATE INDEX IF NOT EXISTS idx_capsules_promotable
	ON capsules(unlocks_at)
	WHERE status = 'sealed' AND deleted_at IS NULL`,

	`CREATE INDEX IF NOT EXISTS idx_capsules_reveal_pending
	ON capsules(reveal_at)
	WHERE reveal_at IS NOT NULL AND sender_revealed_at IS NULL`,

	`CREATE INDEX IF NOT EXISTS idx_capsules_withdrawn
	ON capsules(deleted_at)
	WHERE deleted_at IS NOT NULL`,

	`CREATE TABLE IF NOT EXISTS identity_hints (
	  letter_id TEXT PRIMARY KEY REFERENCES capsules(id) ON DELETE CASCADE,
	  hint1     TEXT NOT NULL CHECK (char_length(hint1) <= 60),
	  hint2     TEXT CHECK (hint2 IS NULL OR char_length(hint2) <= 60),
	  hint3     TEXT CHECK (hint3 IS NULL OR char_length(hint3) <= 60),
	  CHECK (hint3 IS NULL OR hint2 IS NOT NULL)
	)`,

	`CREATE TABLE IF NOT EXISTS share_tokens (
	  id         TEXT PRIMARY KEY,
	  letter_id  TEXT NOT NULL REFERENCES capsules(id) ON DELETE CASCADE,
	  owner_id   TEXT NOT NULL,
	  token      TEXT NOT NULL UNIQUE,
	  share_kind TEXT NOT NULL,
	  created_at BIGINT NOT NULL,
	  expires_at BIGINT,
	  revoked_at BIGINT,
	  open_at    BIGINT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_share_tokens_owner_created
	ON share_tokens(owner_id, created_at)`,

	`CREATE INDEX IF NOT EXISTS idx_share_tokens_letter
	ON share_tokens(letter_id, created_at DESC)`,

	`CREATE TABLE IF NOT EXISTS connections (
	  user_a     TEXT NOT NULL,
	  user_b     TEXT NOT NULL,
	  created_at BIGINT NOT NULL,
	  PRIMARY KEY (user_a, user_b)
	)`,
}

// migrateSQLite applies schema migrations based on user_version.
func migrateSQLite(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: Initial schema
	if version < 1 {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		for _, stmt := range sqliteSchemaV1 {
			if _, err := tx.Exec(stmt); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration 1 failed: %w", err)
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := SetUserVersion(db, 1); err != nil {
			return err
		}
	}

	// Future migrations go here:
	// if version < 2 { ... }

	return nil
}

// migratePostgres applies the idempotent Postgres schema.
func migratePostgres(ctx context.Context, db *sql.DB) error {
	for i, stmt := range postgresSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("postgres schema statement %d failed: %w", i+1, err)
		}
	}
	return nil
}
