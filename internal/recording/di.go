package recording

import (
	"github.com/foxseedlab/voicenote/internal/chat"
	"github.com/foxseedlab/voicenote/internal/config"
	"github.com/foxseedlab/voicenote/internal/upload"
	"github.com/jonboulle/clockwork"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Controller, error) {
		cfg := do.MustInvoke[*config.Config](i)
		enc := do.MustInvoke[Encoder](i)
		pipeline := do.MustInvoke[*upload.Pipeline](i)
		client := do.MustInvoke[chat.Client](i)
		clock := do.MustInvoke[clockwork.Clock](i)
		fallback := EncoderConfig{MaxDuration: cfg.MaxDuration(), BitRate: cfg.BitRate()}
		return NewController(enc, pipeline, client, fallback, clock), nil
	})
}
