package encoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/foxseedlab/voicenote/internal/recording"
	"github.com/foxseedlab/voicenote/internal/voice"
	"github.com/jonboulle/clockwork"
)

// FFmpegEncoder captures from an input device with ffmpeg and encodes mp3
// to stdout. The capture ends when Stop interrupts ffmpeg or when the
// configured max duration elapses.
type FFmpegEncoder struct {
	path        string
	inputFormat string
	inputDevice string
	clock       clockwork.Clock

	mu        sync.Mutex
	cfg       recording.EncoderConfig
	capture   *capture
	subs      map[int]func()
	nextSubID int
}

type capture struct {
	cmd       *exec.Cmd
	stdout    bytes.Buffer
	stderr    bytes.Buffer
	startedAt time.Time
	exited    chan struct{}
	waitErr   error
	limit     clockwork.Timer
	stopLimit chan struct{}
}

func NewFFmpegEncoder(path, inputFormat, inputDevice string, clock clockwork.Clock) *FFmpegEncoder {
	return &FFmpegEncoder{
		path:        path,
		inputFormat: inputFormat,
		inputDevice: inputDevice,
		clock:       clock,
		subs:        make(map[int]func()),
	}
}

func (e *FFmpegEncoder) Init(_ context.Context, cfg recording.EncoderConfig) error {
	if cfg.MaxDuration <= 0 || cfg.BitRate <= 0 {
		return fmt.Errorf("invalid encoder config: max duration %s, bit rate %d", cfg.MaxDuration, cfg.BitRate)
	}
	if _, err := exec.LookPath(e.path); err != nil {
		return fmt.Errorf("ffmpeg not found at %q: %w", e.path, err)
	}
	e.mu.Lock()
	e.cfg = cfg
	e.mu.Unlock()
	return nil
}

func (e *FFmpegEncoder) Start(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.capture != nil {
		return fmt.Errorf("capture already running")
	}
	if e.cfg.MaxDuration <= 0 {
		return fmt.Errorf("encoder is not initialized")
	}

	c := &capture{exited: make(chan struct{}), stopLimit: make(chan struct{})}
	c.cmd = exec.Command(e.path, buildArgs(e.inputFormat, e.inputDevice, e.cfg)...)
	c.cmd.Stdout = &c.stdout
	c.cmd.Stderr = &c.stderr
	if err := c.cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}
	c.startedAt = e.clock.Now()
	go func() {
		c.waitErr = c.cmd.Wait()
		close(c.exited)
	}()
	c.limit = e.clock.NewTimer(e.cfg.MaxDuration)
	go e.watchLimit(c)
	e.capture = c
	slog.Debug("ffmpeg capture started", "pid", c.cmd.Process.Pid, "input_format", e.inputFormat, "input_device", e.inputDevice)
	return nil
}

func (e *FFmpegEncoder) Stop(ctx context.Context) (voice.Artifact, error) {
	e.mu.Lock()
	c := e.capture
	e.capture = nil
	maxDuration := e.cfg.MaxDuration
	e.mu.Unlock()
	if c == nil {
		return voice.Artifact{}, nil
	}
	c.release()

	if err := c.finish(ctx, os.Interrupt); err != nil {
		return voice.Artifact{}, err
	}
	duration := e.clock.Since(c.startedAt)
	if duration > maxDuration {
		duration = maxDuration
	}
	artifact := voice.Artifact{
		Payload:     c.stdout.Bytes(),
		Duration:    duration,
		StartedAt:   c.startedAt,
		ContentType: voice.ContentTypeMP3,
	}
	if artifact.IsEmpty() {
		return voice.Artifact{}, fmt.Errorf("ffmpeg produced no audio: %s", bytes.TrimSpace(c.stderr.Bytes()))
	}
	return artifact, nil
}

func (e *FFmpegEncoder) Cancel(ctx context.Context) error {
	e.mu.Lock()
	c := e.capture
	e.capture = nil
	e.mu.Unlock()
	if c == nil {
		return nil
	}
	c.release()
	return c.finish(ctx, os.Kill)
}

func (e *FFmpegEncoder) StartTime() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.capture == nil {
		return time.Time{}
	}
	return e.capture.startedAt
}

func (e *FFmpegEncoder) OnMaxDuration(fn func()) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextSubID
	e.nextSubID++
	e.subs[id] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.subs, id)
	}
}

func (e *FFmpegEncoder) watchLimit(c *capture) {
	select {
	case <-c.stopLimit:
		return
	case <-c.limit.Chan():
	}
	e.mu.Lock()
	if e.capture != c {
		e.mu.Unlock()
		return
	}
	fns := make([]func(), 0, len(e.subs))
	for _, fn := range e.subs {
		fns = append(fns, fn)
	}
	e.mu.Unlock()
	slog.Info("max recording duration reached")
	for _, fn := range fns {
		fn()
	}
}

func (c *capture) release() {
	c.limit.Stop()
	close(c.stopLimit)
}

// finish signals ffmpeg unless it already exited and waits for it. ffmpeg
// exiting because of our own signal is not an error.
func (c *capture) finish(ctx context.Context, sig os.Signal) error {
	signaled := false
	select {
	case <-c.exited:
	default:
		if err := c.cmd.Process.Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
			_ = c.cmd.Process.Kill()
		}
		signaled = true
	}
	select {
	case <-c.exited:
	case <-ctx.Done():
		_ = c.cmd.Process.Kill()
		<-c.exited
		return ctx.Err()
	}
	if c.waitErr != nil {
		var exitErr *exec.ExitError
		if signaled && errors.As(c.waitErr, &exitErr) {
			return nil
		}
		return fmt.Errorf("ffmpeg exited: %w: %s", c.waitErr, bytes.TrimSpace(c.stderr.Bytes()))
	}
	return nil
}

func buildArgs(inputFormat, inputDevice string, cfg recording.EncoderConfig) []string {
	kbps := cfg.BitRate / 1000
	if kbps <= 0 {
		kbps = 1
	}
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-nostdin",
		"-f", inputFormat,
		"-i", inputDevice,
		"-ac", "1",
		"-codec:a", "libmp3lame",
		"-b:a", strconv.Itoa(kbps) + "k",
		"-t", strconv.FormatFloat(cfg.MaxDuration.Seconds(), 'f', 3, 64),
		"-f", "mp3",
		"pipe:1",
	}
}
