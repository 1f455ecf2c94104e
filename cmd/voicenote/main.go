package main

import (
	"fmt"
	"log/slog"
	"os"

	configloader "github.com/foxseedlab/voicenote/external/config"
	"github.com/foxseedlab/voicenote/external/draftstore"
	"github.com/foxseedlab/voicenote/external/encoder"
	"github.com/foxseedlab/voicenote/external/mattermost"
	webhookimpl "github.com/foxseedlab/voicenote/external/webhook"
	"github.com/foxseedlab/voicenote/internal/api"
	"github.com/foxseedlab/voicenote/internal/config"
	"github.com/foxseedlab/voicenote/internal/recording"
	"github.com/foxseedlab/voicenote/internal/upload"
	"github.com/jonboulle/clockwork"
	"github.com/samber/do/v2"
	"github.com/spf13/cobra"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "voicenote",
		Short:         "Record voice messages and post them to Mattermost",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newRecordCmd())
	cmd.AddCommand(newSendFileCmd())
	cmd.AddCommand(newDraftsCmd())
	cmd.AddCommand(newPlayCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "voicenote %s (commit: %s)\n", Version, Commit)
		},
	}
}

func bootstrap() (*config.Config, do.Injector, error) {
	slog.Info("startup: loading configuration")
	cfg, err := configloader.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("config validation failed: %w", err)
	}
	initLogger(cfg)
	slog.Info("startup: configuration loaded", "env", cfg.Env, "draft_store", cfg.DraftStoreDriver)

	slog.Info("startup: building dependency graph")
	return cfg, setupDI(cfg, clockwork.NewRealClock()), nil
}

func initLogger(cfg *config.Config) {
	logLevel := slog.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

func setupDI(cfg *config.Config, clock clockwork.Clock) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	do.ProvideValue[clockwork.Clock](injector, clock)
	mattermost.RegisterDI(injector)
	draftstore.RegisterDI(injector)
	encoder.RegisterDI(injector)
	webhookimpl.RegisterDI(injector)
	upload.RegisterDI(injector)
	recording.RegisterDI(injector)
	api.RegisterDI(injector)

	return injector
}

func shutdown(injector do.Injector) {
	injector.Shutdown()
	slog.Info("shutdown complete")
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
