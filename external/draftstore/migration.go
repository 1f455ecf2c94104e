package draftstore

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

var postgresMigrationStatements = []string{
	`CREATE TABLE IF NOT EXISTS voice_drafts (
		key TEXT PRIMARY KEY,
		filename TEXT NOT NULL,
		channel_id TEXT NOT NULL,
		root_id TEXT NOT NULL DEFAULT '',
		duration_ms BIGINT NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		content_type TEXT NOT NULL,
		payload BYTEA NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_voice_drafts_created ON voice_drafts (created_at)`,
	`CREATE TABLE IF NOT EXISTS voice_draft_leases (
		key TEXT PRIMARY KEY,
		token TEXT NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		claims INTEGER NOT NULL DEFAULT 0
	)`,
}

var sqliteMigrationStatements = []string{
	`CREATE TABLE IF NOT EXISTS voice_drafts (
		key          TEXT PRIMARY KEY,
		filename     TEXT NOT NULL,
		channel_id   TEXT NOT NULL,
		root_id      TEXT NOT NULL DEFAULT '',
		duration_ms  INTEGER NOT NULL,
		started_at   INTEGER NOT NULL,
		content_type TEXT NOT NULL,
		payload      BLOB NOT NULL,
		created_at   INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_voice_drafts_created ON voice_drafts (created_at)`,
	`CREATE TABLE IF NOT EXISTS voice_draft_leases (
		key        TEXT PRIMARY KEY,
		token      TEXT NOT NULL,
		expires_at INTEGER NOT NULL,
		claims     INTEGER NOT NULL DEFAULT 0
	)`,
}

func RunPostgresMigration(ctx context.Context, pool *pgxpool.Pool) error {
	for _, s := range postgresMigrationStatements {
		stmt := strings.TrimSpace(s)
		if stmt == "" {
			continue
		}
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func RunSQLiteMigration(ctx context.Context, db *sql.DB) error {
	for _, s := range sqliteMigrationStatements {
		if _, err := db.ExecContext(ctx, strings.TrimSpace(s)); err != nil {
			return err
		}
	}
	return nil
}
