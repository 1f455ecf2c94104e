package encoder

import (
	"github.com/foxseedlab/voicenote/internal/config"
	"github.com/foxseedlab/voicenote/internal/recording"
	"github.com/jonboulle/clockwork"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (recording.Encoder, error) {
		c := do.MustInvoke[*config.Config](i)
		clock := do.MustInvoke[clockwork.Clock](i)
		return NewFFmpegEncoder(c.EncoderFFmpegPath, c.EncoderInputFormat, c.EncoderInputDevice, clock), nil
	})
}
