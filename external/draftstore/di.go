package draftstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/foxseedlab/voicenote/internal/config"
	"github.com/foxseedlab/voicenote/internal/draft"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do/v2"
)

const storeInitTimeout = 15 * time.Second

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (draft.Store, error) {
		cfg := do.MustInvoke[*config.Config](i)
		ctx, cancel := context.WithTimeout(context.Background(), storeInitTimeout)
		defer cancel()

		store, err := open(ctx, cfg)
		if err != nil {
			return nil, err
		}
		slog.Info("draft store ready", "driver", cfg.DraftStoreDriver)
		return store, nil
	})
}

func open(ctx context.Context, cfg *config.Config) (draft.Store, error) {
	switch cfg.DraftStoreDriver {
	case config.DraftDriverSQLite:
		return OpenSQLite(ctx, cfg.DraftSQLitePath)
	case config.DraftDriverPostgres:
		p, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect database: %w", err)
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		if err := RunPostgresMigration(ctx, p); err != nil {
			p.Close()
			return nil, fmt.Errorf("failed to run migration: %w", err)
		}
		return NewPostgresStore(p), nil
	case config.DraftDriverRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		return NewRedisStore(rdb, cfg.DraftTTL()), nil
	case config.DraftDriverS3:
		return OpenS3(ctx, S3Config{
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			Prefix:          cfg.S3Prefix,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		})
	case config.DraftDriverMemory:
		slog.Warn("using in-memory draft store; drafts will not survive a restart")
		return draft.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown draft store driver %q", cfg.DraftStoreDriver)
	}
}
