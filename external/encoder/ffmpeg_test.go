package encoder

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/foxseedlab/voicenote/internal/recording"
	"github.com/jonboulle/clockwork"
)

func writeFakeFFmpeg(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake ffmpeg script requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	script := "#!/bin/sh\necho \"$@\" > \"$(dirname \"$0\")/args\"\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatalf("failed to write fake ffmpeg: %v", err)
	}
	return path
}

func TestBuildArgs(t *testing.T) {
	args := buildArgs("pulse", "default", recording.EncoderConfig{MaxDuration: 5 * time.Minute, BitRate: 64000})
	got := strings.Join(args, " ")
	for _, want := range []string{"-f pulse", "-i default", "-b:a 64k", "-t 300.000", "-f mp3", "pipe:1"} {
		if !strings.Contains(got, want) {
			t.Errorf("args %q missing %q", got, want)
		}
	}
}

func TestStop_WithoutCapture(t *testing.T) {
	e := NewFFmpegEncoder("ffmpeg", "pulse", "default", clockwork.NewFakeClock())
	a, err := e.Stop(context.Background())
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !a.IsEmpty() {
		t.Fatalf("expected empty artifact, got %+v", a)
	}
	if !e.StartTime().IsZero() {
		t.Fatal("expected zero start time")
	}
}

func TestInit_Validation(t *testing.T) {
	e := NewFFmpegEncoder(filepath.Join(t.TempDir(), "missing-ffmpeg"), "pulse", "default", clockwork.NewFakeClock())
	if err := e.Init(context.Background(), recording.EncoderConfig{}); err == nil {
		t.Fatal("expected error for empty config")
	}
	if err := e.Init(context.Background(), recording.EncoderConfig{MaxDuration: time.Minute, BitRate: 64000}); err == nil {
		t.Fatal("expected error for missing binary")
	}
	if err := e.Start(context.Background()); err == nil {
		t.Fatal("expected start to fail before init")
	}
}

func TestStartStop_CollectsOutput(t *testing.T) {
	path := writeFakeFFmpeg(t, "printf 'ID3-fake-mp3'")
	clock := clockwork.NewFakeClock()
	e := NewFFmpegEncoder(path, "alsa", "hw:0", clock)
	if err := e.Init(context.Background(), recording.EncoderConfig{MaxDuration: time.Minute, BitRate: 32000}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	e.mu.Lock()
	c := e.capture
	e.mu.Unlock()
	<-c.exited
	clock.Advance(2 * time.Second)

	a, err := e.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if string(a.Payload) != "ID3-fake-mp3" {
		t.Fatalf("unexpected payload: %q", a.Payload)
	}
	if a.Duration != 2*time.Second {
		t.Fatalf("unexpected duration: %s", a.Duration)
	}
	args, _ := os.ReadFile(filepath.Join(filepath.Dir(path), "args"))
	if !strings.Contains(string(args), "-f alsa -i hw:0") || !strings.Contains(string(args), "-b:a 32k") {
		t.Fatalf("unexpected ffmpeg args: %s", args)
	}
}

func TestCancel_KillsCapture(t *testing.T) {
	path := writeFakeFFmpeg(t, "exec sleep 30")
	e := NewFFmpegEncoder(path, "pulse", "default", clockwork.NewFakeClock())
	_ = e.Init(context.Background(), recording.EncoderConfig{MaxDuration: time.Minute, BitRate: 64000})
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Cancel(ctx); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if !e.StartTime().IsZero() {
		t.Fatal("expected capture to be cleared")
	}
}

func TestMaxDuration_NotifiesSubscribers(t *testing.T) {
	path := writeFakeFFmpeg(t, "exec sleep 30")
	clock := clockwork.NewFakeClock()
	e := NewFFmpegEncoder(path, "pulse", "default", clock)
	_ = e.Init(context.Background(), recording.EncoderConfig{MaxDuration: 10 * time.Second, BitRate: 64000})

	fired := make(chan struct{}, 1)
	unsubscribe := e.OnMaxDuration(func() { fired <- struct{}{} })
	defer unsubscribe()
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = e.Cancel(ctx)
	})

	clock.BlockUntil(1)
	clock.Advance(10 * time.Second)
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("max duration subscriber was not notified")
	}
}
