package draftstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/foxseedlab/voicenote/internal/draft"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Save(ctx context.Context, d draft.Draft) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO voice_drafts (key, filename, channel_id, root_id, duration_ms, started_at, content_type, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (key) DO NOTHING`,
		d.Key, d.Filename, d.ChannelID, d.RootID, d.DurationMillis, d.StartedAt, d.ContentType, d.Payload, d.CreatedAt)
	return err
}

func (s *PostgresStore) Read(ctx context.Context, key string) (draft.Draft, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT key, filename, channel_id, root_id, duration_ms, started_at, content_type, payload, created_at
		 FROM voice_drafts WHERE key = $1`, key)
	var d draft.Draft
	err := row.Scan(&d.Key, &d.Filename, &d.ChannelID, &d.RootID, &d.DurationMillis, &d.StartedAt, &d.ContentType, &d.Payload, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return draft.Draft{}, draft.ErrNotFound
		}
		return draft.Draft{}, err
	}
	return d, nil
}

func (s *PostgresStore) Remove(ctx context.Context, key string) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM voice_drafts WHERE key = $1`, key); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM voice_draft_leases WHERE key = $1`, key)
		return err
	})
}

func (s *PostgresStore) Claim(ctx context.Context, key, token string, now, until time.Time) (draft.Lease, bool, error) {
	var claims int
	err := s.pool.QueryRow(ctx,
		`INSERT INTO voice_draft_leases (key, token, expires_at, claims)
		 VALUES ($1, $2, $3, 1)
		 ON CONFLICT (key) DO UPDATE SET
			token = EXCLUDED.token,
			expires_at = EXCLUDED.expires_at,
			claims = voice_draft_leases.claims + 1
		 WHERE voice_draft_leases.expires_at <= $4 OR voice_draft_leases.token = EXCLUDED.token
		 RETURNING claims`,
		key, token, until, now).Scan(&claims)
	if errors.Is(err, pgx.ErrNoRows) {
		return draft.Lease{Key: key}, false, nil
	}
	if err != nil {
		return draft.Lease{}, false, fmt.Errorf("claim draft %s: %w", key, err)
	}
	return draft.Lease{Key: key, Token: token, ExpiresAt: until, Claims: claims}, true, nil
}

func (s *PostgresStore) Release(ctx context.Context, key, token string, until time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE voice_draft_leases SET expires_at = $1 WHERE key = $2 AND token = $3`,
		until, key, token)
	return err
}

func (s *PostgresStore) List(ctx context.Context) ([]draft.Draft, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT key, filename, channel_id, root_id, duration_ms, started_at, content_type, payload, created_at
		 FROM voice_drafts ORDER BY created_at ASC, key ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []draft.Draft
	for rows.Next() {
		var d draft.Draft
		if err := rows.Scan(&d.Key, &d.Filename, &d.ChannelID, &d.RootID, &d.DurationMillis, &d.StartedAt, &d.ContentType, &d.Payload, &d.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, d)
	}
	return list, rows.Err()
}

func (s *PostgresStore) Shutdown() error {
	s.pool.Close()
	return nil
}
