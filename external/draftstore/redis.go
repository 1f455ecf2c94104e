package draftstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/foxseedlab/voicenote/internal/draft"
	"github.com/redis/go-redis/v9"
)

const (
	redisDraftKeyPrefix = "voicenote:draft:"
	redisLeaseKeyPrefix = "voicenote:lease:"
	redisDraftIndexKey  = "voicenote:drafts"
)

// KEYS[1] lease hash; ARGV token, now ms, until ms, ttl ms.
var claimLeaseScript = redis.NewScript(`
local holder = redis.call('HGET', KEYS[1], 'token')
local expires = tonumber(redis.call('HGET', KEYS[1], 'expires') or '0')
if holder and holder ~= ARGV[1] and expires > tonumber(ARGV[2]) then
	return {0, 0}
end
local claims = redis.call('HINCRBY', KEYS[1], 'claims', 1)
redis.call('HSET', KEYS[1], 'token', ARGV[1], 'expires', ARGV[3])
if tonumber(ARGV[4]) > 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[4])
end
return {1, claims}
`)

// KEYS[1] lease hash; ARGV token, until ms.
var releaseLeaseScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'token') == ARGV[1] then
	redis.call('HSET', KEYS[1], 'expires', ARGV[2])
	return 1
end
return 0
`)

type redisEnvelope struct {
	Key            string    `json:"key"`
	Filename       string    `json:"filename"`
	ChannelID      string    `json:"channel_id"`
	RootID         string    `json:"root_id,omitempty"`
	DurationMillis int64     `json:"duration_ms"`
	StartedAt      time.Time `json:"started_at"`
	ContentType    string    `json:"content_type"`
	Payload        []byte    `json:"payload"`
	CreatedAt      time.Time `json:"created_at"`
}

// RedisStore keeps each draft under its own key with an optional TTL and
// tracks keys in a set for List. Expired members are pruned from the set
// lazily. Leases are hashes updated by Lua scripts.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Save(ctx context.Context, d draft.Draft) error {
	raw, err := json.Marshal(redisEnvelope(d))
	if err != nil {
		return fmt.Errorf("marshal draft: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.SetNX(ctx, redisDraftKeyPrefix+d.Key, raw, s.ttl)
	pipe.SAdd(ctx, redisDraftIndexKey, d.Key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save draft %s: %w", d.Key, err)
	}
	return nil
}

func (s *RedisStore) Read(ctx context.Context, key string) (draft.Draft, error) {
	raw, err := s.client.Get(ctx, redisDraftKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return draft.Draft{}, draft.ErrNotFound
		}
		return draft.Draft{}, fmt.Errorf("get: %w", err)
	}
	var env redisEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return draft.Draft{}, fmt.Errorf("unmarshal draft %s: %w", key, err)
	}
	return draft.Draft(env), nil
}

func (s *RedisStore) Remove(ctx context.Context, key string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, redisDraftKeyPrefix+key, redisLeaseKeyPrefix+key)
	pipe.SRem(ctx, redisDraftIndexKey, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("remove draft: %w", err)
	}
	return nil
}

func (s *RedisStore) Claim(ctx context.Context, key, token string, now, until time.Time) (draft.Lease, bool, error) {
	res, err := claimLeaseScript.Run(ctx, s.client, []string{redisLeaseKeyPrefix + key},
		token, now.UnixMilli(), until.UnixMilli(), s.ttl.Milliseconds()).Int64Slice()
	if err != nil {
		return draft.Lease{}, false, fmt.Errorf("claim draft %s: %w", key, err)
	}
	if len(res) != 2 || res[0] != 1 {
		return draft.Lease{Key: key}, false, nil
	}
	return draft.Lease{Key: key, Token: token, ExpiresAt: until, Claims: int(res[1])}, true, nil
}

func (s *RedisStore) Release(ctx context.Context, key, token string, until time.Time) error {
	err := releaseLeaseScript.Run(ctx, s.client, []string{redisLeaseKeyPrefix + key}, token, until.UnixMilli()).Err()
	if err != nil {
		return fmt.Errorf("release draft %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context) ([]draft.Draft, error) {
	keys, err := s.client.SMembers(ctx, redisDraftIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("smembers: %w", err)
	}
	list := make([]draft.Draft, 0, len(keys))
	for _, key := range keys {
		d, err := s.Read(ctx, key)
		if errors.Is(err, draft.ErrNotFound) {
			slog.Debug("pruning expired draft from index", "draft_key", key)
			_ = s.client.SRem(ctx, redisDraftIndexKey, key).Err()
			continue
		}
		if err != nil {
			return nil, err
		}
		list = append(list, d)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].Key < list[j].Key
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	return list, nil
}

func (s *RedisStore) Shutdown() error {
	return s.client.Close()
}
