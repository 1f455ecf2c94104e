package draft

import (
	"context"
	"sort"
	"sync"
	"time"
)

type MemoryStore struct {
	mu     sync.Mutex
	drafts map[string]Draft
	leases map[string]Lease
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{drafts: make(map[string]Draft), leases: make(map[string]Lease)}
}

func (s *MemoryStore) Save(_ context.Context, d Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.drafts[d.Key]; ok {
		return nil
	}
	d.Payload = append([]byte(nil), d.Payload...)
	s.drafts[d.Key] = d
	return nil
}

func (s *MemoryStore) Read(_ context.Context, key string) (Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drafts[key]
	if !ok {
		return Draft{}, ErrNotFound
	}
	return d, nil
}

func (s *MemoryStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drafts, key)
	delete(s.leases, key)
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]Draft, 0, len(s.drafts))
	for _, d := range s.drafts {
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

func (s *MemoryStore) Claim(_ context.Context, key, token string, now, until time.Time) (Lease, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, held := s.leases[key]
	if held && l.Token != token && l.ExpiresAt.After(now) {
		return Lease{Key: key}, false, nil
	}
	l.Key = key
	l.Token = token
	l.ExpiresAt = until
	l.Claims++
	s.leases[key] = l
	return l, true, nil
}

func (s *MemoryStore) Release(_ context.Context, key, token string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, held := s.leases[key]
	if !held || l.Token != token {
		return nil
	}
	l.ExpiresAt = until
	s.leases[key] = l
	return nil
}
