package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/foxseedlab/voicenote/internal/chat"
	"github.com/foxseedlab/voicenote/internal/playback"
	"github.com/jonboulle/clockwork"
)

const timeUpdateInterval = 250 * time.Millisecond

// ClockTransport plays a recording without an audio device: the position
// advances with the clock and the same events an audio element would fire
// are emitted to subscribers.
type ClockTransport struct {
	clock clockwork.Clock

	mu       sync.Mutex
	duration float64
	position float64
	rate     float64
	loop     chan struct{}
	subs     map[int]func(playback.Event)
	nextID   int
}

func NewClockTransport(clock clockwork.Clock, durationSeconds float64) *ClockTransport {
	return &ClockTransport{
		clock:    clock,
		duration: durationSeconds,
		rate:     1,
		subs:     make(map[int]func(playback.Event)),
	}
}

// Load fetches the recording for postID and sizes a transport from its
// byte length. A bitRate of zero leaves the duration unknown.
func Load(ctx context.Context, client chat.Client, postID string, bitRate int, clock clockwork.Clock) (*ClockTransport, int64, error) {
	body, err := client.OpenRecording(ctx, postID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open recording %s: %w", postID, err)
	}
	defer func() {
		_ = body.Close()
	}()
	size, err := io.Copy(io.Discard, body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read recording %s: %w", postID, err)
	}
	duration := EstimateDuration(size, bitRate)
	slog.Debug("recording loaded", "post_id", postID, "bytes", size, "duration_seconds", duration)
	return NewClockTransport(clock, duration), size, nil
}

// EstimateDuration returns the playing time in seconds of size bytes of constant bit rate audio.
func EstimateDuration(size int64, bitRate int) float64 {
	if size <= 0 || bitRate <= 0 {
		return 0
	}
	return float64(size*8) / float64(bitRate)
}

func (t *ClockTransport) Play() error {
	t.mu.Lock()
	if t.loop != nil {
		t.mu.Unlock()
		return nil
	}
	if t.duration <= 0 {
		t.mu.Unlock()
		t.emit(playback.EventError)
		return fmt.Errorf("recording has no playable duration")
	}
	if t.position >= t.duration {
		t.position = 0
	}
	loop := make(chan struct{})
	t.loop = loop
	ticker := t.clock.NewTicker(timeUpdateInterval)
	t.mu.Unlock()

	t.emit(playback.EventPlay)
	t.emit(playback.EventPlaying)
	go t.run(loop, ticker)
	return nil
}

func (t *ClockTransport) Pause() {
	t.mu.Lock()
	if t.loop == nil {
		t.mu.Unlock()
		return
	}
	close(t.loop)
	t.loop = nil
	t.mu.Unlock()
	t.emit(playback.EventPause)
}

func (t *ClockTransport) CurrentTime() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.position
}

func (t *ClockTransport) SetCurrentTime(seconds float64) {
	t.mu.Lock()
	t.position = max(0, min(seconds, t.duration))
	t.mu.Unlock()
	t.emit(playback.EventTimeUpdate)
}

func (t *ClockTransport) Duration() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.duration
}

func (t *ClockTransport) SetPlaybackRate(rate float64) {
	if rate <= 0 {
		return
	}
	t.mu.Lock()
	t.rate = rate
	t.mu.Unlock()
}

func (t *ClockTransport) Subscribe(fn func(playback.Event)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextID
	t.nextID++
	t.subs[id] = fn
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.subs, id)
	}
}

func (t *ClockTransport) run(loop chan struct{}, ticker clockwork.Ticker) {
	defer ticker.Stop()
	for {
		select {
		case <-loop:
			return
		case <-ticker.Chan():
		}
		t.mu.Lock()
		if t.loop != loop {
			t.mu.Unlock()
			return
		}
		t.position += timeUpdateInterval.Seconds() * t.rate
		ended := t.position >= t.duration
		if ended {
			t.position = t.duration
			t.loop = nil
		}
		t.mu.Unlock()

		t.emit(playback.EventTimeUpdate)
		if ended {
			t.emit(playback.EventEnded)
			return
		}
	}
}

func (t *ClockTransport) emit(typ playback.EventType) {
	t.mu.Lock()
	ev := playback.Event{Type: typ, CurrentTime: t.position}
	fns := make([]func(playback.Event), 0, len(t.subs))
	for _, fn := range t.subs {
		fns = append(fns, fn)
	}
	t.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}
