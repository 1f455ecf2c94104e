package draft

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("draft not found")

// Lease is an exclusive, time-bounded claim on a draft key. Claims counts
// every successful claim on the key while it stays staged.
type Lease struct {
	Key       string
	Token     string
	ExpiresAt time.Time
	Claims    int
}

// Store is a durable key-value cache for staged recordings. Stores may be
// shared between processes, so delivery is serialized through leases.
type Store interface {
	// Save is write-once: saving under an existing key is a no-op.
	Save(ctx context.Context, d Draft) error
	// Read returns ErrNotFound when no draft is stored under key.
	Read(ctx context.Context, key string) (Draft, error)
	// Remove drops the draft and its lease. It is a no-op when key is absent.
	Remove(ctx context.Context, key string) error
	// List returns every staged draft, oldest first.
	List(ctx context.Context) ([]Draft, error)
	// Claim takes the lease on key for token until until. It reports false
	// while a different token holds a lease expiring after now. The key
	// does not need to be staged yet.
	Claim(ctx context.Context, key, token string, now, until time.Time) (Lease, bool, error)
	// Release moves the expiry of token's lease to until. Leases held by
	// another token are left alone.
	Release(ctx context.Context, key, token string, until time.Time) error
}
