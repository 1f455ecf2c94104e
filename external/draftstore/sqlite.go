package draftstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/foxseedlab/voicenote/internal/draft"
	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the draft database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create draft directory: %w", err)
		}
	}
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open draft database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping draft database: %w", err)
	}
	if err := RunSQLiteMigration(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run draft migration: %w", err)
	}
	// drafts hold unsent audio
	_ = os.Chmod(path, 0600)
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Save(ctx context.Context, d draft.Draft) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO voice_drafts (key, filename, channel_id, root_id, duration_ms, started_at, content_type, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO NOTHING`,
		d.Key, d.Filename, d.ChannelID, d.RootID, d.DurationMillis,
		d.StartedAt.UnixMilli(), d.ContentType, d.Payload, d.CreatedAt.UnixMilli())
	return err
}

func (s *SQLiteStore) Read(ctx context.Context, key string) (draft.Draft, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT key, filename, channel_id, root_id, duration_ms, started_at, content_type, payload, created_at
		 FROM voice_drafts WHERE key = ?`, key)
	d, err := scanSQLiteDraft(row)
	if errors.Is(err, sql.ErrNoRows) {
		return draft.Draft{}, draft.ErrNotFound
	}
	return d, err
}

func (s *SQLiteStore) Remove(ctx context.Context, key string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if _, err := tx.ExecContext(ctx, `DELETE FROM voice_drafts WHERE key = ?`, key); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM voice_draft_leases WHERE key = ?`, key); err != nil {
		return err
	}
	return tx.Commit()
}

// Claim relies on the upsert's WHERE clause: a live lease held by another
// token leaves the row untouched and RETURNING yields no row.
func (s *SQLiteStore) Claim(ctx context.Context, key, token string, now, until time.Time) (draft.Lease, bool, error) {
	var claims int
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO voice_draft_leases (key, token, expires_at, claims)
		 VALUES (?, ?, ?, 1)
		 ON CONFLICT(key) DO UPDATE SET
			token = excluded.token,
			expires_at = excluded.expires_at,
			claims = voice_draft_leases.claims + 1
		 WHERE voice_draft_leases.expires_at <= ? OR voice_draft_leases.token = excluded.token
		 RETURNING claims`,
		key, token, until.UnixMilli(), now.UnixMilli()).Scan(&claims)
	if errors.Is(err, sql.ErrNoRows) {
		return draft.Lease{Key: key}, false, nil
	}
	if err != nil {
		return draft.Lease{}, false, fmt.Errorf("claim draft %s: %w", key, err)
	}
	return draft.Lease{Key: key, Token: token, ExpiresAt: until, Claims: claims}, true, nil
}

func (s *SQLiteStore) Release(ctx context.Context, key, token string, until time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE voice_draft_leases SET expires_at = ? WHERE key = ? AND token = ?`,
		until.UnixMilli(), key, token)
	return err
}

func (s *SQLiteStore) List(ctx context.Context) ([]draft.Draft, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, filename, channel_id, root_id, duration_ms, started_at, content_type, payload, created_at
		 FROM voice_drafts ORDER BY created_at ASC, key ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []draft.Draft
	for rows.Next() {
		d, err := scanSQLiteDraft(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, d)
	}
	return list, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteDraft(row rowScanner) (draft.Draft, error) {
	var d draft.Draft
	var startedAt, createdAt int64
	err := row.Scan(&d.Key, &d.Filename, &d.ChannelID, &d.RootID, &d.DurationMillis,
		&startedAt, &d.ContentType, &d.Payload, &createdAt)
	if err != nil {
		return draft.Draft{}, err
	}
	d.StartedAt = time.UnixMilli(startedAt)
	d.CreatedAt = time.UnixMilli(createdAt)
	return d, nil
}

func (s *SQLiteStore) Shutdown() error {
	return s.Close()
}
