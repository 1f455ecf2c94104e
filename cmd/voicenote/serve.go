package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/foxseedlab/voicenote/internal/api"
	"github.com/foxseedlab/voicenote/internal/recording"
	"github.com/foxseedlab/voicenote/internal/upload"
	"github.com/samber/do/v2"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local recording control API",
		Long:  "Runs the recording controller behind a local HTTP API and periodically re-sends staged drafts.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to HTTP_ADDR)")
	return cmd
}

func runServe(parent context.Context, addr string) error {
	cfg, injector, err := bootstrap()
	if err != nil {
		return err
	}
	defer shutdown(injector)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	controller, err := do.Invoke[*recording.Controller](injector)
	if err != nil {
		return fmt.Errorf("failed to resolve recording controller: %w", err)
	}
	if err := controller.Init(ctx); err != nil {
		return err
	}
	pipeline, err := do.Invoke[*upload.Pipeline](injector)
	if err != nil {
		return fmt.Errorf("failed to resolve upload pipeline: %w", err)
	}
	server, err := do.Invoke[*api.Server](injector)
	if err != nil {
		return fmt.Errorf("failed to resolve control api: %w", err)
	}

	if cfg.ResumeSchedule != "" {
		go func() {
			if err := pipeline.RunResumeSchedule(ctx, cfg.ResumeSchedule); err != nil {
				slog.Error("resume sweep disabled", "error", err)
			}
		}()
	}

	if addr == "" {
		addr = cfg.HTTPAddr
	}
	if err := server.Run(ctx, addr); err != nil {
		return err
	}
	slog.Info("shutting down")
	return nil
}
