package draftstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/foxseedlab/voicenote/internal/draft"
)

// checkLeaseSemantics exercises the Claim/Release contract every store shares.
func checkLeaseSemantics(t *testing.T, s draft.Store) {
	t.Helper()
	ctx := context.Background()
	now := time.UnixMilli(1_700_000_000_000)
	d := testDraft(1_700_000_000_000, now)
	if err := s.Save(ctx, d); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	first, ok, err := s.Claim(ctx, d.Key, "token-a", now, now.Add(time.Minute))
	if err != nil || !ok {
		t.Fatalf("first Claim() = %v, %v", ok, err)
	}
	if first.Claims != 1 || first.Token != "token-a" {
		t.Fatalf("first lease = %+v", first)
	}

	if _, ok, err := s.Claim(ctx, d.Key, "token-b", now.Add(time.Second), now.Add(time.Hour)); err != nil || ok {
		t.Fatalf("Claim() on live lease = %v, %v; want false", ok, err)
	}

	if err := s.Release(ctx, d.Key, "token-b", now); err != nil {
		t.Fatalf("Release() by non-holder error = %v", err)
	}
	if _, ok, _ := s.Claim(ctx, d.Key, "token-b", now.Add(time.Second), now.Add(time.Hour)); ok {
		t.Fatal("Release() by non-holder freed the lease")
	}

	if err := s.Release(ctx, d.Key, "token-a", now.Add(time.Second)); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	second, ok, err := s.Claim(ctx, d.Key, "token-b", now.Add(2*time.Second), now.Add(time.Hour))
	if err != nil || !ok {
		t.Fatalf("Claim() after release = %v, %v", ok, err)
	}
	if second.Claims != 2 {
		t.Fatalf("claims = %d, want 2", second.Claims)
	}

	if err := s.Remove(ctx, d.Key); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := s.Read(ctx, d.Key); !errors.Is(err, draft.ErrNotFound) {
		t.Fatalf("Read() after remove error = %v", err)
	}
	fresh, ok, err := s.Claim(ctx, d.Key, "token-c", now.Add(3*time.Second), now.Add(time.Hour))
	if err != nil || !ok || fresh.Claims != 1 {
		t.Fatalf("Claim() after remove = %+v, %v, %v; want a fresh lease", fresh, ok, err)
	}
}
