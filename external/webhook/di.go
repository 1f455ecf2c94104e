package webhook

import (
	"github.com/foxseedlab/voicenote/internal/config"
	"github.com/foxseedlab/voicenote/internal/webhook"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (webhook.Notifier, error) {
		c := do.MustInvoke[*config.Config](i)
		return NewHTTPNotifier(c.DeliveryWebhookURL), nil
	})
}
