package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/foxseedlab/voicenote/internal/draft"
	apperrors "github.com/foxseedlab/voicenote/internal/errors"
	"github.com/foxseedlab/voicenote/internal/voice"
	"github.com/robfig/cron/v3"
)

var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Drafts lists every staged recording.
func (p *Pipeline) Drafts(ctx context.Context) ([]draft.Draft, error) {
	list, err := p.store.List(ctx)
	if err != nil {
		return nil, apperrors.NewInternal(fmt.Errorf("failed to list drafts: %w", err))
	}
	return list, nil
}

// Resume re-sends staged drafts left behind by failed uploads or a
// restart. Drafts leased by another delivery are skipped. A failed draft is
// held off for a growing interval and left staged once it has been claimed
// MaxClaims times.
func (p *Pipeline) Resume(ctx context.Context) ([]voice.Delivery, error) {
	drafts, err := p.store.List(ctx)
	if err != nil {
		return nil, apperrors.NewInternal(fmt.Errorf("failed to list drafts: %w", err))
	}
	slog.Info("resuming staged drafts", "count", len(drafts))

	var (
		deliveries []voice.Delivery
		errs       []error
	)
	for _, d := range drafts {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if d.ChannelID == "" || len(d.Payload) == 0 {
			slog.Warn("skipping unusable draft", "draft_key", d.Key)
			continue
		}
		delivery, ok, err := p.resumeOne(ctx, d.Key)
		if err != nil {
			slog.Error("failed to resume draft", "error", err, "draft_key", d.Key)
			errs = append(errs, fmt.Errorf("%s: %w", d.Key, err))
			continue
		}
		if ok {
			deliveries = append(deliveries, delivery)
		}
	}
	return deliveries, errors.Join(errs...)
}

func (p *Pipeline) resumeOne(ctx context.Context, key string) (voice.Delivery, bool, error) {
	lease, ok, err := p.claim(ctx, key)
	if err != nil {
		return voice.Delivery{}, false, err
	}
	if !ok {
		slog.Debug("draft leased elsewhere", "draft_key", key)
		return voice.Delivery{}, false, nil
	}
	if lease.Claims > p.maxClaims {
		slog.Warn("draft reached its delivery limit; leaving it staged", "draft_key", key, "claims", lease.Claims, "max_claims", p.maxClaims)
		p.releaseLease(ctx, lease, p.clock.Now().Add(maxHoldOff))
		return voice.Delivery{}, false, nil
	}

	d, err := p.store.Read(ctx, key)
	if errors.Is(err, draft.ErrNotFound) {
		slog.Debug("draft delivered elsewhere", "draft_key", key)
		p.releaseLease(ctx, lease, p.clock.Now())
		return voice.Delivery{}, false, nil
	}
	if err != nil {
		p.releaseLease(ctx, lease, p.clock.Now())
		return voice.Delivery{}, false, err
	}

	delivery, err := p.deliver(ctx, d)
	if err != nil {
		holdOff := p.holdOffFor(lease.Claims)
		p.releaseLease(ctx, lease, p.clock.Now().Add(holdOff))
		slog.Info("draft held off", "draft_key", key, "claims", lease.Claims, "hold_off", holdOff)
		return voice.Delivery{}, false, err
	}
	return delivery, true, nil
}

// Discard removes a staged draft without sending it.
func (p *Pipeline) Discard(ctx context.Context, key string) error {
	if _, err := p.store.Read(ctx, key); err != nil {
		if errors.Is(err, draft.ErrNotFound) {
			return apperrors.NewDraftNotFound(key)
		}
		return apperrors.NewInternal(fmt.Errorf("failed to read draft %s: %w", key, err))
	}
	lease, ok, err := p.claim(ctx, key)
	if err != nil {
		return apperrors.NewInternal(fmt.Errorf("failed to claim draft %s: %w", key, err))
	}
	if !ok {
		return apperrors.NewInvalidInput(fmt.Sprintf("draft %s is being sent", key))
	}
	if err := p.store.Remove(ctx, lease.Key); err != nil {
		p.releaseLease(ctx, lease, p.clock.Now())
		return apperrors.NewInternal(fmt.Errorf("failed to remove draft %s: %w", key, err))
	}
	slog.Info("draft discarded", "draft_key", key)
	return nil
}

// RunResumeSchedule runs Resume on every fire of spec until ctx is done.
func (p *Pipeline) RunResumeSchedule(ctx context.Context, spec string) error {
	sched, err := scheduleParser.Parse(spec)
	if err != nil {
		return fmt.Errorf("invalid resume schedule %q: %w", spec, err)
	}
	slog.Info("resume sweep scheduled", "schedule", spec)
	for {
		now := p.clock.Now()
		wait := sched.Next(now).Sub(now)
		if wait < 0 {
			wait = 0
		}
		select {
		case <-ctx.Done():
			slog.Info("resume sweep stopped")
			return nil
		case <-p.clock.After(wait):
		}
		if _, err := p.Resume(ctx); err != nil && ctx.Err() == nil {
			slog.Warn("resume sweep finished with errors", "error", err)
		}
	}
}
