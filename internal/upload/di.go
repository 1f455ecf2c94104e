package upload

import (
	"github.com/foxseedlab/voicenote/internal/chat"
	"github.com/foxseedlab/voicenote/internal/config"
	"github.com/foxseedlab/voicenote/internal/draft"
	"github.com/foxseedlab/voicenote/internal/webhook"
	"github.com/jonboulle/clockwork"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Pipeline, error) {
		cfg := do.MustInvoke[*config.Config](i)
		client := do.MustInvoke[chat.Client](i)
		store := do.MustInvoke[draft.Store](i)
		clock := do.MustInvoke[clockwork.Clock](i)
		notifier := do.MustInvoke[webhook.Notifier](i)
		return NewPipeline(client, store, clock, Options{
			MaxAttempts: cfg.UploadMaxAttempts,
			RetryDelay:  cfg.UploadRetryDelay,
			MaxClaims:   cfg.ResumeMaxClaims,
			HoldOff:     cfg.ResumeHoldOff,
			Notifier:    notifier,
		}), nil
	})
}
