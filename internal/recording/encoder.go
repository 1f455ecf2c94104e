package recording

import (
	"context"
	"time"

	"github.com/foxseedlab/voicenote/internal/voice"
)

type EncoderConfig struct {
	MaxDuration time.Duration
	BitRate     int
}

// Encoder is the audio capture capability. Implementations own their
// capture process and must be safe for use from multiple goroutines.
type Encoder interface {
	Init(ctx context.Context, cfg EncoderConfig) error
	Start(ctx context.Context) error
	// Stop finishes the capture. Calling it with no capture running returns an empty artifact.
	Stop(ctx context.Context) (voice.Artifact, error)
	Cancel(ctx context.Context) error
	// StartTime is zero when no capture is running.
	StartTime() time.Time
	// OnMaxDuration registers fn to be called when the capture hits the configured limit.
	OnMaxDuration(fn func()) (unsubscribe func())
}
