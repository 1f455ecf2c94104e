package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/foxseedlab/voicenote/internal/chat"
	"github.com/foxseedlab/voicenote/internal/draft"
	apperrors "github.com/foxseedlab/voicenote/internal/errors"
	"github.com/foxseedlab/voicenote/internal/voice"
	"github.com/foxseedlab/voicenote/internal/webhook"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const (
	DefaultMaxAttempts = 30
	DefaultMaxClaims   = 10

	leaseMargin = 2 * time.Minute
	maxHoldOff  = time.Hour
)

type Options struct {
	MaxAttempts int
	RetryDelay  time.Duration
	// MaxClaims bounds deliveries per draft, the first send included.
	MaxClaims int
	// HoldOff is how long Resume leaves a draft alone after a failed
	// delivery. It doubles with every claim; zero disables it.
	HoldOff time.Duration
	// Notifier, when set, is told how each delivery ended.
	Notifier webhook.Notifier
}

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeRetryable
	outcomeTerminal
)

func (o outcome) String() string {
	switch o {
	case outcomeSuccess:
		return "success"
	case outcomeRetryable:
		return "retryable"
	default:
		return "terminal"
	}
}

type attempt struct {
	number int
	fileID string
}

type attemptResult struct {
	outcome outcome
	postID  string
	err     error
}

// Pipeline stages a recording, uploads it once and posts a message
// referencing it, retrying only the post. Each delivery holds the draft's
// store lease, so processes sharing a store never deliver the same draft
// concurrently.
type Pipeline struct {
	client      chat.Client
	store       draft.Store
	clock       clockwork.Clock
	maxAttempts int
	retryDelay  time.Duration
	maxClaims   int
	holdOff     time.Duration
	notifier    webhook.Notifier
}

func NewPipeline(client chat.Client, store draft.Store, clock clockwork.Clock, opts Options) *Pipeline {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = 0
	}
	if opts.MaxClaims <= 0 {
		opts.MaxClaims = DefaultMaxClaims
	}
	if opts.HoldOff < 0 {
		opts.HoldOff = 0
	}
	return &Pipeline{
		client:      client,
		store:       store,
		clock:       clock,
		maxAttempts: opts.MaxAttempts,
		retryDelay:  opts.RetryDelay,
		maxClaims:   opts.MaxClaims,
		holdOff:     opts.HoldOff,
		notifier:    opts.Notifier,
	}
}

func (p *Pipeline) Send(ctx context.Context, target voice.Target, artifact voice.Artifact) (voice.Delivery, error) {
	if target.ChannelID == "" {
		return voice.Delivery{}, apperrors.NewInvalidInput("channel id is required to send a recording")
	}
	if artifact.IsEmpty() {
		return voice.Delivery{}, apperrors.NewInvalidInput("recording is empty")
	}
	d := draft.New(target, artifact, p.clock.Now())
	lease, ok, err := p.claim(ctx, d.Key)
	switch {
	case err != nil:
		slog.Warn("failed to claim draft; sending without a lease", "error", err, "draft_key", d.Key)
	case !ok:
		return voice.Delivery{}, apperrors.NewInvalidInput(fmt.Sprintf("recording %s is already being sent", d.Key))
	}
	delivery, err := p.deliver(ctx, d)
	if err != nil && lease.Token != "" {
		p.releaseLease(ctx, lease, p.clock.Now())
	}
	return delivery, err
}

func (p *Pipeline) deliver(ctx context.Context, d draft.Draft) (voice.Delivery, error) {
	if err := p.store.Save(ctx, d); err != nil {
		slog.Warn("failed to stage draft; continuing with in-memory recording", "error", err, "draft_key", d.Key)
	} else {
		slog.Debug("draft staged", "draft_key", d.Key, "bytes", len(d.Payload))
	}

	payload := d.Payload
	staged, err := p.store.Read(ctx, d.Key)
	switch {
	case err == nil && len(staged.Payload) > 0:
		payload = staged.Payload
	case errors.Is(err, draft.ErrNotFound):
		slog.Warn("staged draft missing; using in-memory recording", "draft_key", d.Key)
	case err != nil:
		slog.Warn("failed to read staged draft; using in-memory recording", "error", err, "draft_key", d.Key)
	}

	fileID, err := p.client.UploadFile(ctx, d.ChannelID, d.Filename, payload)
	if err != nil {
		slog.Error("file upload failed; draft left staged", "error", err, "draft_key", d.Key, "channel_id", d.ChannelID)
		p.notify(ctx, d, webhook.DeliveryPayload{Event: webhook.EventUploadFailed, Error: err.Error()})
		return voice.Delivery{}, apperrors.NewUploadFailed(err)
	}
	slog.Info("file uploaded", "draft_key", d.Key, "file_id", fileID, "channel_id", d.ChannelID)

	post := chat.VoicePost{
		ChannelID:      d.ChannelID,
		RootID:         d.RootID,
		FileID:         fileID,
		DurationMillis: d.DurationMillis,
	}
	var lastErr error
	for n := 1; n <= p.maxAttempts; n++ {
		res := p.postOnce(ctx, attempt{number: n, fileID: fileID}, post)
		switch res.outcome {
		case outcomeSuccess:
			p.removeDraft(ctx, d.Key)
			slog.Info("voice message posted", "draft_key", d.Key, "post_id", res.postID, "attempt", n)
			p.notify(ctx, d, webhook.DeliveryPayload{Event: webhook.EventDelivered, PostID: res.postID, FileID: fileID, Attempts: n})
			return voice.Delivery{PostID: res.postID, FileID: fileID, Attempts: n, DraftKey: d.Key}, nil
		case outcomeTerminal:
			slog.Warn("post loop stopped; draft left staged", "error", res.err, "draft_key", d.Key, "attempt", n)
			return voice.Delivery{}, res.err
		}
		lastErr = res.err
		if n == p.maxAttempts {
			break
		}
		if err := p.wait(ctx); err != nil {
			slog.Warn("retry wait interrupted; draft left staged", "error", err, "draft_key", d.Key, "attempt", n)
			return voice.Delivery{}, err
		}
	}

	p.removeDraft(ctx, d.Key)
	slog.Error("post retries exhausted; draft cleared", "error", lastErr, "draft_key", d.Key, "attempts", p.maxAttempts)
	p.notify(ctx, d, webhook.DeliveryPayload{Event: webhook.EventRetryExhausted, FileID: fileID, Attempts: p.maxAttempts, Error: errorString(lastErr)})
	return voice.Delivery{}, apperrors.NewRetryExhausted(p.maxAttempts, lastErr)
}

func (p *Pipeline) postOnce(ctx context.Context, a attempt, post chat.VoicePost) attemptResult {
	postID, err := p.client.CreatePost(ctx, post)
	if err == nil {
		return attemptResult{outcome: outcomeSuccess, postID: postID}
	}
	if ctx.Err() != nil {
		return attemptResult{outcome: outcomeTerminal, err: ctx.Err()}
	}
	slog.Warn("post attempt failed", "error", err, "attempt", a.number, "max_attempts", p.maxAttempts, "file_id", a.fileID)
	return attemptResult{outcome: outcomeRetryable, err: err}
}

func (p *Pipeline) wait(ctx context.Context) error {
	if p.retryDelay == 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.clock.After(p.retryDelay):
		return nil
	}
}

func (p *Pipeline) removeDraft(ctx context.Context, key string) {
	if err := p.store.Remove(context.WithoutCancel(ctx), key); err != nil {
		slog.Error("failed to remove draft", "error", err, "draft_key", key)
		return
	}
	slog.Debug("draft removed", "draft_key", key)
}

func (p *Pipeline) notify(ctx context.Context, d draft.Draft, payload webhook.DeliveryPayload) {
	if p.notifier == nil {
		return
	}
	payload.DraftKey = d.Key
	payload.ChannelID = d.ChannelID
	payload.RootID = d.RootID
	payload.DurationMillis = d.DurationMillis
	payload.OccurredAt = p.clock.Now()
	if err := p.notifier.NotifyDelivery(context.WithoutCancel(ctx), payload); err != nil {
		slog.Warn("failed to send delivery webhook", "error", err, "event", payload.Event, "draft_key", d.Key)
	}
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (p *Pipeline) claim(ctx context.Context, key string) (draft.Lease, bool, error) {
	now := p.clock.Now()
	ttl := time.Duration(p.maxAttempts)*p.retryDelay + leaseMargin
	return p.store.Claim(ctx, key, uuid.NewString(), now, now.Add(ttl))
}

func (p *Pipeline) releaseLease(ctx context.Context, lease draft.Lease, until time.Time) {
	if err := p.store.Release(context.WithoutCancel(ctx), lease.Key, lease.Token, until); err != nil {
		slog.Warn("failed to release draft lease", "error", err, "draft_key", lease.Key)
	}
}

func (p *Pipeline) holdOffFor(claims int) time.Duration {
	d := p.holdOff
	for i := 1; i < claims && d < maxHoldOff; i++ {
		d *= 2
	}
	return min(d, maxHoldOff)
}
