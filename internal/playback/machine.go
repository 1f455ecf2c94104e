package playback

import (
	"log/slog"
	"sync"
	"time"
)

var playbackRates = []float64{1, 1.25, 1.5, 1.75, 2}

type State struct {
	Elapsed         time.Duration
	Duration        time.Duration
	ProgressPercent int
	Playing         bool
	HasEverPlayed   bool
	PlaybackRate    float64
	ElapsedLabel    string
	DurationLabel   string
	// Label is what the player shows: the duration until first played, then the position.
	Label string
}

// Machine tracks the playback state of one rendered voice message.
type Machine struct {
	fallbackSeconds float64

	mu          sync.Mutex
	transport   Transport
	unsubscribe func()
	duration    float64
	elapsed     float64
	progress    int
	playing     bool
	everPlayed  bool
	rateIndex   int
	onChange    func(State)
}

// New creates a machine for a recording whose stored duration is durationMillis.
func New(durationMillis int64) *Machine {
	fallback := float64(durationMillis) / 1000
	return &Machine{
		fallbackSeconds: fallback,
		duration:        fallback,
	}
}

// OnChange registers fn to receive a snapshot after every state change.
func (m *Machine) OnChange(fn func(State)) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

// Bind attaches the machine to t, replacing any previous transport.
func (m *Machine) Bind(t Transport) {
	m.Close()
	m.mu.Lock()
	m.transport = t
	m.duration = m.resolveDurationLocked()
	duration := m.duration
	rate := playbackRates[m.rateIndex]
	m.mu.Unlock()

	t.SetPlaybackRate(rate)
	unsubscribe := t.Subscribe(m.handle)
	m.mu.Lock()
	if m.transport == t {
		m.unsubscribe = unsubscribe
		unsubscribe = nil
	}
	m.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
	slog.Debug("playback bound", "duration_seconds", duration, "playback_rate", rate)
}

// Close detaches from the transport. Events after Close are ignored.
func (m *Machine) Close() {
	m.mu.Lock()
	unsubscribe := m.unsubscribe
	m.unsubscribe = nil
	m.transport = nil
	m.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

func (m *Machine) Play() error {
	m.mu.Lock()
	t := m.transport
	m.mu.Unlock()
	if t == nil {
		return nil
	}
	return t.Play()
}

func (m *Machine) Pause() {
	m.mu.Lock()
	t := m.transport
	m.mu.Unlock()
	if t == nil {
		return
	}
	t.Pause()
}

// Seek moves to fraction of the duration, clamped to [0, 1].
func (m *Machine) Seek(fraction float64) {
	m.mu.Lock()
	t := m.transport
	if t == nil {
		m.mu.Unlock()
		return
	}
	fraction = max(0, min(fraction, 1))
	duration := m.resolveDurationLocked()
	target := duration * fraction
	m.progress = progressPercent(target, duration)
	m.mu.Unlock()

	t.SetCurrentTime(target)
	m.notify()
}

// SeekClick seeks to a click at offsetX within a progress control width wide.
func (m *Machine) SeekClick(offsetX, width float64) {
	if width <= 0 {
		return
	}
	m.Seek(offsetX / width)
}

func (m *Machine) CyclePlaybackRate() float64 {
	m.mu.Lock()
	m.rateIndex = (m.rateIndex + 1) % len(playbackRates)
	rate := playbackRates[m.rateIndex]
	t := m.transport
	m.mu.Unlock()

	if t != nil {
		t.SetPlaybackRate(rate)
	}
	m.notify()
	return rate
}

func (m *Machine) Label() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.labelLocked()
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked()
}

func (m *Machine) handle(ev Event) {
	m.mu.Lock()
	if m.transport == nil {
		m.mu.Unlock()
		return
	}
	switch ev.Type {
	case EventPlay:
		m.playing = true
		m.everPlayed = true
	case EventPlaying:
		m.playing = true
	case EventPause:
		m.playing = false
	case EventError, EventEnded:
		m.playing = false
		m.everPlayed = false
	case EventTimeUpdate:
		m.elapsed = ev.CurrentTime
		m.progress = progressPercent(ev.CurrentTime, m.duration)
	case EventDurationChange:
		m.duration = m.resolveDurationLocked()
	default:
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	m.notify()
}

func (m *Machine) resolveDurationLocked() float64 {
	if m.transport != nil {
		if d := m.transport.Duration(); d > 0 {
			return d
		}
	}
	return m.fallbackSeconds
}

func (m *Machine) labelLocked() string {
	if m.everPlayed {
		return FormatClock(m.elapsed)
	}
	return FormatClock(m.duration)
}

func (m *Machine) stateLocked() State {
	return State{
		Elapsed:         secondsToDuration(m.elapsed),
		Duration:        secondsToDuration(m.duration),
		ProgressPercent: m.progress,
		Playing:         m.playing,
		HasEverPlayed:   m.everPlayed,
		PlaybackRate:    playbackRates[m.rateIndex],
		ElapsedLabel:    FormatClock(m.elapsed),
		DurationLabel:   FormatClock(m.duration),
		Label:           m.labelLocked(),
	}
}

func (m *Machine) notify() {
	m.mu.Lock()
	fn := m.onChange
	s := m.stateLocked()
	m.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
