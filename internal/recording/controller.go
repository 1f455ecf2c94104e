package recording

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/foxseedlab/voicenote/internal/chat"
	apperrors "github.com/foxseedlab/voicenote/internal/errors"
	"github.com/foxseedlab/voicenote/internal/voice"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const tickInterval = 200 * time.Millisecond

type State string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
	StateStopped   State = "stopped"
)

type Sender interface {
	Send(ctx context.Context, target voice.Target, artifact voice.Artifact) (voice.Delivery, error)
}

type ConfigSource interface {
	VoiceConfig(ctx context.Context) (chat.VoiceConfig, error)
}

// Controller owns one encoder and at most one active recording session.
// Elapsed listeners are called from the tick goroutine and must not call
// back into the controller.
type Controller struct {
	encoder  Encoder
	sender   Sender
	remote   ConfigSource
	fallback EncoderConfig
	clock    clockwork.Clock

	mu          sync.Mutex
	state       State
	sessionID   string
	channelID   string
	rootID      string
	artifact    *voice.Artifact
	unsubscribe func()
	tick        *tickLoop

	listenerMu sync.Mutex
	listener   func(time.Duration)
}

type tickLoop struct {
	stop chan struct{}
	done chan struct{}
}

func NewController(enc Encoder, sender Sender, remote ConfigSource, fallback EncoderConfig, clock clockwork.Clock) *Controller {
	return &Controller{
		encoder:  enc,
		sender:   sender,
		remote:   remote,
		fallback: fallback,
		clock:    clock,
		state:    StateIdle,
	}
}

// Init configures the encoder from the server's plugin settings, falling
// back to the local values when the server cannot be asked.
func (c *Controller) Init(ctx context.Context) error {
	cfg := c.fallback
	if c.remote != nil {
		remote, err := c.remote.VoiceConfig(ctx)
		if err != nil {
			slog.Warn("failed to fetch voice config; using local defaults", "error", err, "max_duration", cfg.MaxDuration, "bit_rate", cfg.BitRate)
		} else {
			if remote.MaxDuration > 0 {
				cfg.MaxDuration = remote.MaxDuration
			}
			if remote.BitRate > 0 {
				cfg.BitRate = remote.BitRate
			}
		}
	}
	if err := c.encoder.Init(ctx, cfg); err != nil {
		return apperrors.NewCapability("init", err)
	}
	slog.Info("encoder initialized", "max_duration", cfg.MaxDuration, "bit_rate", cfg.BitRate)
	return nil
}

func (c *Controller) OnElapsed(fn func(time.Duration)) {
	c.listenerMu.Lock()
	c.listener = fn
	c.listenerMu.Unlock()
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Artifact() (voice.Artifact, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.artifact == nil {
		return voice.Artifact{}, false
	}
	return *c.artifact, true
}

func (c *Controller) Start(ctx context.Context, channelID, rootID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateRecording {
		slog.Warn("start requested while recording", "session_id", c.sessionID)
		return apperrors.NewAlreadyRecording()
	}

	c.stopTickLocked()
	c.artifact = nil
	c.channelID = channelID
	c.rootID = rootID
	c.state = StateIdle

	if err := c.encoder.Start(ctx); err != nil {
		slog.Error("failed to start encoder", "error", err, "channel_id", channelID)
		return apperrors.NewCapability("start", err)
	}

	sessionID := uuid.NewString()
	c.sessionID = sessionID
	c.unsubscribe = c.encoder.OnMaxDuration(func() {
		go c.handleMaxDuration(sessionID)
	})
	c.startTickLocked()
	c.state = StateRecording
	slog.Info("recording started", "session_id", sessionID, "channel_id", channelID, "root_id", rootID)
	return nil
}

func (c *Controller) Stop(ctx context.Context) (voice.Artifact, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardownLocked()
	c.clearListener()
	return c.stopEncoderLocked(ctx)
}

func (c *Controller) Cancel(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardownLocked()
	c.clearListener()
	c.artifact = nil
	c.state = StateIdle
	if err := c.encoder.Cancel(ctx); err != nil {
		slog.Error("failed to cancel encoder", "error", err, "session_id", c.sessionID)
		return apperrors.NewCapability("cancel", err)
	}
	slog.Info("recording canceled", "session_id", c.sessionID)
	return nil
}

// Send delivers the retained artifact, stopping the active capture first
// when nothing is retained. An explicit channelID always wins; an explicit
// rootID wins only when the session recorded no channel.
func (c *Controller) Send(ctx context.Context, channelID, rootID string) (voice.Delivery, error) {
	c.mu.Lock()
	target := voice.Target{ChannelID: channelID, RootID: c.rootID}
	if target.ChannelID == "" {
		target.ChannelID = c.channelID
	}
	if c.channelID == "" && rootID != "" {
		target.RootID = rootID
	}
	if target.ChannelID == "" {
		c.mu.Unlock()
		return voice.Delivery{}, apperrors.NewInvalidInput("channel id is required to send a recording")
	}

	var artifact voice.Artifact
	if c.artifact != nil {
		artifact = *c.artifact
	} else {
		c.teardownLocked()
		c.clearListener()
		a, err := c.stopEncoderLocked(ctx)
		if err != nil {
			c.mu.Unlock()
			return voice.Delivery{}, err
		}
		artifact = a
	}
	if artifact.IsEmpty() {
		c.mu.Unlock()
		return voice.Delivery{}, apperrors.NewNotRecording()
	}
	sessionID := c.sessionID
	c.artifact = nil
	c.state = StateIdle
	c.mu.Unlock()

	slog.Info("handing recording to upload pipeline", "session_id", sessionID, "channel_id", target.ChannelID, "root_id", target.RootID, "duration_ms", artifact.DurationMillis())
	d, err := c.sender.Send(ctx, target, artifact)
	if err != nil && keepsArtifact(err) {
		c.mu.Lock()
		if c.state == StateIdle && c.artifact == nil {
			c.artifact = &artifact
			c.state = StateStopped
			slog.Warn("send failed; recording kept for another try", "error", err, "session_id", sessionID)
		}
		c.mu.Unlock()
	}
	return d, err
}

func keepsArtifact(err error) bool {
	return apperrors.Is(err, apperrors.CodeUploadFailed) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func (c *Controller) handleMaxDuration(sessionID string) {
	c.mu.Lock()
	if c.state != StateRecording || c.sessionID != sessionID {
		c.mu.Unlock()
		return
	}
	slog.Info("max duration reached", "session_id", sessionID)
	c.teardownLocked()
	listener := c.clearListener()
	_, err := c.stopEncoderLocked(context.Background())
	c.mu.Unlock()
	if err != nil {
		slog.Error("failed to stop encoder at max duration", "error", err, "session_id", sessionID)
		return
	}
	if listener != nil {
		listener(0)
	}
}

func (c *Controller) stopEncoderLocked(ctx context.Context) (voice.Artifact, error) {
	artifact, err := c.encoder.Stop(ctx)
	if err != nil {
		slog.Error("failed to stop encoder", "error", err, "session_id", c.sessionID)
		if c.state == StateRecording {
			c.state = StateIdle
		}
		return voice.Artifact{}, apperrors.NewCapability("stop", err)
	}
	if !artifact.IsEmpty() {
		c.artifact = &artifact
		c.state = StateStopped
		slog.Info("recording stopped", "session_id", c.sessionID, "duration_ms", artifact.DurationMillis(), "bytes", len(artifact.Payload))
	} else if c.state == StateRecording {
		c.state = StateIdle
	}
	return artifact, nil
}

func (c *Controller) teardownLocked() {
	c.stopTickLocked()
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
}

func (c *Controller) clearListener() func(time.Duration) {
	c.listenerMu.Lock()
	defer c.listenerMu.Unlock()
	prev := c.listener
	c.listener = nil
	return prev
}

func (c *Controller) startTickLocked() {
	loop := &tickLoop{stop: make(chan struct{}), done: make(chan struct{})}
	ticker := c.clock.NewTicker(tickInterval)
	go func() {
		defer close(loop.done)
		defer ticker.Stop()
		for {
			select {
			case <-loop.stop:
				return
			case <-ticker.Chan():
				c.reportElapsed()
			}
		}
	}()
	c.tick = loop
}

func (c *Controller) stopTickLocked() {
	if c.tick == nil {
		return
	}
	close(c.tick.stop)
	<-c.tick.done
	c.tick = nil
}

func (c *Controller) reportElapsed() {
	c.listenerMu.Lock()
	listener := c.listener
	c.listenerMu.Unlock()
	if listener == nil {
		return
	}
	started := c.encoder.StartTime()
	if started.IsZero() {
		return
	}
	listener(c.clock.Since(started))
}
