package recording

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/foxseedlab/voicenote/internal/chat"
	apperrors "github.com/foxseedlab/voicenote/internal/errors"
	"github.com/foxseedlab/voicenote/internal/voice"
	"github.com/jonboulle/clockwork"
)

type mockEncoder struct {
	clock clockwork.Clock

	mu          sync.Mutex
	initCfg     *EncoderConfig
	startCalls  int
	stopCalls   int
	cancelCalls int
	startedAt   time.Time
	startErr    error
	subscribers map[int]func()
	nextSubID   int
}

func newMockEncoder(clock clockwork.Clock) *mockEncoder {
	return &mockEncoder{clock: clock, subscribers: map[int]func(){}}
}

func (m *mockEncoder) Init(_ context.Context, cfg EncoderConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initCfg = &cfg
	return nil
}

func (m *mockEncoder) Start(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startCalls++
	if m.startErr != nil {
		return m.startErr
	}
	m.startedAt = m.clock.Now()
	return nil
}

func (m *mockEncoder) Stop(_ context.Context) (voice.Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopCalls++
	if m.startedAt.IsZero() {
		return voice.Artifact{}, nil
	}
	a := voice.Artifact{
		Payload:     []byte("mp3-bytes"),
		Duration:    m.clock.Since(m.startedAt),
		StartedAt:   m.startedAt,
		ContentType: voice.ContentTypeMP3,
	}
	m.startedAt = time.Time{}
	return a, nil
}

func (m *mockEncoder) Cancel(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelCalls++
	m.startedAt = time.Time{}
	return nil
}

func (m *mockEncoder) StartTime() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startedAt
}

func (m *mockEncoder) OnMaxDuration(fn func()) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSubID
	m.nextSubID++
	m.subscribers[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subscribers, id)
	}
}

func (m *mockEncoder) fireMaxDuration() {
	m.mu.Lock()
	fns := make([]func(), 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (m *mockEncoder) subscriberCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subscribers)
}

type mockSender struct {
	mu        sync.Mutex
	err       error
	calls     []voice.Target
	artifacts []voice.Artifact
}

func (m *mockSender) Send(_ context.Context, target voice.Target, artifact voice.Artifact) (voice.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, target)
	m.artifacts = append(m.artifacts, artifact)
	if m.err != nil {
		return voice.Delivery{}, m.err
	}
	return voice.Delivery{PostID: "post-1", FileID: "file-1", Attempts: 1, DraftKey: artifact.DraftKey()}, nil
}

func (m *mockSender) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type mockConfigSource struct {
	cfg chat.VoiceConfig
	err error
}

func (m *mockConfigSource) VoiceConfig(_ context.Context) (chat.VoiceConfig, error) {
	return m.cfg, m.err
}

func newTestController(t *testing.T) (*Controller, *mockEncoder, *mockSender, clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	enc := newMockEncoder(clock)
	sender := &mockSender{}
	c := NewController(enc, sender, nil, EncoderConfig{MaxDuration: time.Minute, BitRate: 64000}, clock)
	return c, enc, sender, clock
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestStartStop_ProducesArtifactWithElapsedDuration(t *testing.T) {
	c, _, _, clock := newTestController(t)
	ctx := context.Background()

	if err := c.Start(ctx, "channel-1", ""); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if c.State() != StateRecording {
		t.Fatalf("expected recording state, got %s", c.State())
	}
	clock.Advance(3 * time.Second)

	a, err := c.Stop(ctx)
	if err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if a.Duration < 3*time.Second-tickInterval || a.Duration > 3*time.Second+tickInterval {
		t.Fatalf("unexpected duration: %s", a.Duration)
	}
	if c.State() != StateStopped {
		t.Fatalf("expected stopped state, got %s", c.State())
	}
	retained, ok := c.Artifact()
	if !ok || retained.Duration != a.Duration {
		t.Fatalf("expected artifact to be retained, got %+v", retained)
	}
}

func TestStop_RepeatedReturnsEmptyAndKeepsArtifact(t *testing.T) {
	c, enc, _, clock := newTestController(t)
	ctx := context.Background()
	_ = c.Start(ctx, "channel-1", "")
	clock.Advance(time.Second)
	first, _ := c.Stop(ctx)

	second, err := c.Stop(ctx)
	if err != nil {
		t.Fatalf("second stop failed: %v", err)
	}
	if !second.IsEmpty() {
		t.Fatalf("expected empty artifact from second stop, got %+v", second)
	}
	retained, ok := c.Artifact()
	if !ok || retained.Duration != first.Duration {
		t.Fatal("expected first artifact to stay retained")
	}
	if enc.stopCalls != 2 {
		t.Fatalf("expected 2 encoder stop calls, got %d", enc.stopCalls)
	}
}

func TestStart_WhileRecordingFails(t *testing.T) {
	c, enc, _, clock := newTestController(t)
	ctx := context.Background()
	ticks := make(chan time.Duration, 16)
	c.OnElapsed(func(d time.Duration) { ticks <- d })

	if err := c.Start(ctx, "channel-1", ""); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	err := c.Start(ctx, "channel-2", "")
	if !apperrors.Is(err, apperrors.CodeAlreadyRecording) {
		t.Fatalf("expected already recording error, got %v", err)
	}
	if enc.startCalls != 1 {
		t.Fatalf("expected encoder to start once, got %d", enc.startCalls)
	}

	clock.BlockUntil(1)
	clock.Advance(tickInterval)
	select {
	case d := <-ticks:
		if d != tickInterval {
			t.Fatalf("unexpected elapsed: %s", d)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("existing tick stopped after rejected start")
	}
	_, _ = c.Stop(ctx)
}

func TestStart_EncoderFailureStaysIdle(t *testing.T) {
	c, enc, _, _ := newTestController(t)
	enc.startErr = errors.New("no input device")

	err := c.Start(context.Background(), "channel-1", "")
	if !apperrors.Is(err, apperrors.CodeCapability) {
		t.Fatalf("expected capability error, got %v", err)
	}
	if c.State() != StateIdle {
		t.Fatalf("expected idle state, got %s", c.State())
	}
}

func TestStop_ClearsListenerAndTick(t *testing.T) {
	c, enc, _, clock := newTestController(t)
	ctx := context.Background()
	var mu sync.Mutex
	calls := 0
	c.OnElapsed(func(time.Duration) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	_ = c.Start(ctx, "channel-1", "")
	_, _ = c.Stop(ctx)

	clock.Advance(10 * tickInterval)
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if calls != 0 {
		t.Fatalf("expected no elapsed reports after stop, got %d", calls)
	}
	if enc.subscriberCount() != 0 {
		t.Fatalf("expected max duration subscription to be released, got %d", enc.subscriberCount())
	}
}

func TestCancel_DiscardsWithoutSending(t *testing.T) {
	c, enc, sender, clock := newTestController(t)
	ctx := context.Background()
	_ = c.Start(ctx, "channel-1", "")
	clock.Advance(time.Second)

	if err := c.Cancel(ctx); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if enc.cancelCalls != 1 {
		t.Fatalf("expected one cancel call, got %d", enc.cancelCalls)
	}
	if sender.callCount() != 0 {
		t.Fatal("cancel must not reach the upload pipeline")
	}
	if _, ok := c.Artifact(); ok {
		t.Fatal("expected no artifact after cancel")
	}
	if c.State() != StateIdle {
		t.Fatalf("expected idle state, got %s", c.State())
	}
}

func TestMaxDuration_ConvergesWithStop(t *testing.T) {
	c, enc, _, clock := newTestController(t)
	ctx := context.Background()
	ticks := make(chan time.Duration, 16)
	c.OnElapsed(func(d time.Duration) { ticks <- d })
	_ = c.Start(ctx, "channel-1", "root-1")
	clock.Advance(time.Minute)

	enc.fireMaxDuration()
	waitUntil(t, 2*time.Second, func() bool { return c.State() == StateStopped })

	var last time.Duration = -1
	deadline := time.After(2 * time.Second)
	for last != 0 {
		select {
		case last = <-ticks:
		case <-deadline:
			t.Fatal("expected a zero elapsed notification")
		}
	}
	cutoff, ok := c.Artifact()
	if !ok {
		t.Fatal("expected artifact after max duration")
	}
	if cutoff.Duration != time.Minute {
		t.Fatalf("unexpected cutoff duration: %s", cutoff.Duration)
	}
	if enc.subscriberCount() != 0 {
		t.Fatal("expected max duration subscription to be released")
	}

	again, err := c.Stop(ctx)
	if err != nil || !again.IsEmpty() {
		t.Fatalf("expected stop after cutoff to be a no-op, got %+v, %v", again, err)
	}
	if retained, _ := c.Artifact(); retained.Duration != cutoff.Duration {
		t.Fatal("stop after cutoff changed the retained artifact")
	}
}

func TestSend_RequiresChannel(t *testing.T) {
	c, enc, sender, _ := newTestController(t)

	_, err := c.Send(context.Background(), "", "root-1")
	if !apperrors.Is(err, apperrors.CodeInvalidInput) {
		t.Fatalf("expected invalid input error, got %v", err)
	}
	if sender.callCount() != 0 || enc.stopCalls != 0 {
		t.Fatal("expected no side effects without a channel")
	}
}

func TestSend_TargetPrecedence(t *testing.T) {
	cases := []struct {
		name           string
		sessionChannel string
		sessionRoot    string
		channelID      string
		rootID         string
		want           voice.Target
	}{
		{"session values", "c1", "r1", "", "", voice.Target{ChannelID: "c1", RootID: "r1"}},
		{"explicit channel wins", "c1", "r1", "c2", "", voice.Target{ChannelID: "c2", RootID: "r1"}},
		{"explicit root ignored with session channel", "c1", "r1", "", "r2", voice.Target{ChannelID: "c1", RootID: "r1"}},
		{"explicit root without session channel", "", "", "c2", "r2", voice.Target{ChannelID: "c2", RootID: "r2"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, _, sender, clock := newTestController(t)
			ctx := context.Background()
			if err := c.Start(ctx, tc.sessionChannel, tc.sessionRoot); err != nil {
				t.Fatalf("start failed: %v", err)
			}
			clock.Advance(2 * time.Second)

			if _, err := c.Send(ctx, tc.channelID, tc.rootID); err != nil {
				t.Fatalf("send failed: %v", err)
			}
			if len(sender.calls) != 1 || sender.calls[0] != tc.want {
				t.Fatalf("unexpected targets: %+v", sender.calls)
			}
		})
	}
}

func TestSend_StopsActiveRecordingAndConsumesArtifact(t *testing.T) {
	c, enc, sender, clock := newTestController(t)
	ctx := context.Background()
	_ = c.Start(ctx, "channel-1", "")
	clock.Advance(4 * time.Second)

	d, err := c.Send(ctx, "", "")
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if d.PostID != "post-1" {
		t.Fatalf("unexpected delivery: %+v", d)
	}
	if enc.stopCalls != 1 {
		t.Fatalf("expected encoder to be stopped once, got %d", enc.stopCalls)
	}
	if sender.artifacts[0].Duration != 4*time.Second {
		t.Fatalf("unexpected artifact duration: %s", sender.artifacts[0].Duration)
	}
	if c.State() != StateIdle {
		t.Fatalf("expected idle after hand off, got %s", c.State())
	}
	if _, ok := c.Artifact(); ok {
		t.Fatal("expected artifact to be consumed")
	}
}

func TestSend_UsesRetainedArtifact(t *testing.T) {
	c, enc, sender, clock := newTestController(t)
	ctx := context.Background()
	_ = c.Start(ctx, "channel-1", "")
	clock.Advance(time.Second)
	stopped, _ := c.Stop(ctx)

	if _, err := c.Send(ctx, "", ""); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if enc.stopCalls != 1 {
		t.Fatalf("expected no extra encoder stop, got %d calls", enc.stopCalls)
	}
	if sender.artifacts[0].StartedAt != stopped.StartedAt {
		t.Fatal("expected retained artifact to be sent")
	}
}

func TestSend_KeepsArtifactWhenNothingWasDelivered(t *testing.T) {
	tests := []struct {
		name string
		err  error
		keep bool
	}{
		{name: "upload failed", err: apperrors.NewUploadFailed(errors.New("offline")), keep: true},
		{name: "canceled", err: context.Canceled, keep: true},
		{name: "retries exhausted", err: apperrors.NewRetryExhausted(30, errors.New("502")), keep: false},
		{name: "already sending", err: apperrors.NewInvalidInput("already being sent"), keep: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _, sender, clock := newTestController(t)
			sender.err = tt.err
			ctx := context.Background()
			_ = c.Start(ctx, "channel-1", "")
			clock.Advance(2 * time.Second)

			if _, err := c.Send(ctx, "", ""); !errors.Is(err, tt.err) {
				t.Fatalf("expected %v, got %v", tt.err, err)
			}
			kept, ok := c.Artifact()
			if ok != tt.keep {
				t.Fatalf("artifact kept = %v, want %v", ok, tt.keep)
			}
			if !tt.keep {
				return
			}
			if c.State() != StateStopped || kept.Duration != 2*time.Second {
				t.Fatalf("unexpected state %s / artifact %+v", c.State(), kept)
			}

			sender.err = nil
			if _, err := c.Send(ctx, "", ""); err != nil {
				t.Fatalf("second send failed: %v", err)
			}
			if sender.callCount() != 2 || sender.artifacts[1].StartedAt != kept.StartedAt {
				t.Fatal("expected the kept artifact to be sent again")
			}
		})
	}
}

func TestSend_NothingRecorded(t *testing.T) {
	c, _, sender, _ := newTestController(t)
	_, err := c.Send(context.Background(), "channel-1", "")
	if !apperrors.Is(err, apperrors.CodeNotRecording) {
		t.Fatalf("expected not recording error, got %v", err)
	}
	if sender.callCount() != 0 {
		t.Fatal("expected no pipeline call")
	}
}

func TestInit_PrefersRemoteConfig(t *testing.T) {
	clock := clockwork.NewFakeClock()
	enc := newMockEncoder(clock)
	remote := &mockConfigSource{cfg: chat.VoiceConfig{MaxDuration: 90 * time.Second, BitRate: 48000}}
	c := NewController(enc, &mockSender{}, remote, EncoderConfig{MaxDuration: time.Minute, BitRate: 64000}, clock)

	if err := c.Init(context.Background()); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if *enc.initCfg != (EncoderConfig{MaxDuration: 90 * time.Second, BitRate: 48000}) {
		t.Fatalf("unexpected encoder config: %+v", *enc.initCfg)
	}
}

func TestInit_FallsBackOnRemoteError(t *testing.T) {
	clock := clockwork.NewFakeClock()
	enc := newMockEncoder(clock)
	remote := &mockConfigSource{err: errors.New("503")}
	fallback := EncoderConfig{MaxDuration: time.Minute, BitRate: 64000}
	c := NewController(enc, &mockSender{}, remote, fallback, clock)

	if err := c.Init(context.Background()); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if *enc.initCfg != fallback {
		t.Fatalf("unexpected encoder config: %+v", *enc.initCfg)
	}
}
