package api

import (
	"github.com/foxseedlab/voicenote/internal/recording"
	"github.com/foxseedlab/voicenote/internal/upload"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Server, error) {
		controller := do.MustInvoke[*recording.Controller](i)
		pipeline := do.MustInvoke[*upload.Pipeline](i)
		return NewServer(controller, pipeline), nil
	})
}
