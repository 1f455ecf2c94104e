package mattermost

import (
	"github.com/foxseedlab/voicenote/internal/chat"
	"github.com/foxseedlab/voicenote/internal/config"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (chat.Client, error) {
		c := do.MustInvoke[*config.Config](i)
		return NewClient(c.MattermostURL, c.MattermostToken, c.MattermostPluginID), nil
	})
}
