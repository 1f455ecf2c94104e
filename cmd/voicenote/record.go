package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/foxseedlab/voicenote/external/transport"
	"github.com/foxseedlab/voicenote/internal/recording"
	"github.com/foxseedlab/voicenote/internal/upload"
	"github.com/foxseedlab/voicenote/internal/voice"
	"github.com/jonboulle/clockwork"
	"github.com/samber/do/v2"
	"github.com/spf13/cobra"
)

func newRecordCmd() *cobra.Command {
	var (
		channelID string
		rootID    string
		length    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record from the input device and post the result",
		Long:  "Records until --length elapses, the configured maximum duration is reached, or the process is interrupted, then posts the recording.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecord(cmd.Context(), cmd.OutOrStdout(), channelID, rootID, length)
		},
	}

	cmd.Flags().StringVar(&channelID, "channel", "", "channel id to post to")
	cmd.Flags().StringVar(&rootID, "root", "", "thread root post id")
	cmd.Flags().DurationVar(&length, "length", 0, "stop after this long (0 records until interrupted or the maximum duration)")
	_ = cmd.MarkFlagRequired("channel")
	return cmd
}

func runRecord(parent context.Context, out io.Writer, channelID, rootID string, length time.Duration) error {
	_, injector, err := bootstrap()
	if err != nil {
		return err
	}
	defer shutdown(injector)

	controller, err := do.Invoke[*recording.Controller](injector)
	if err != nil {
		return fmt.Errorf("failed to resolve recording controller: %w", err)
	}
	clock := do.MustInvoke[clockwork.Clock](injector)

	if err := controller.Init(parent); err != nil {
		return err
	}
	if err := controller.Start(parent, channelID, rootID); err != nil {
		return err
	}
	maxReached := make(chan struct{})
	var once sync.Once
	controller.OnElapsed(func(d time.Duration) {
		// The controller reports zero once when the maximum duration stops the capture.
		if d == 0 {
			once.Do(func() { close(maxReached) })
			return
		}
		fmt.Fprintf(out, "\rrecording %s", d.Truncate(time.Second))
	})

	sigCtx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	var timeout <-chan time.Time
	if length > 0 {
		timeout = clock.After(length)
	}
	select {
	case <-sigCtx.Done():
	case <-timeout:
	case <-maxReached:
	}
	fmt.Fprintln(out)

	delivery, err := controller.Send(parent, channelID, rootID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "posted %s (file %s) after %d attempt(s)\n", delivery.PostID, delivery.FileID, delivery.Attempts)
	return nil
}

func newSendFileCmd() *cobra.Command {
	var (
		channelID string
		rootID    string
	)

	cmd := &cobra.Command{
		Use:   "send-file <path>",
		Short: "Post an existing mp3 file as a voice message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSendFile(cmd.Context(), cmd.OutOrStdout(), args[0], channelID, rootID)
		},
	}

	cmd.Flags().StringVar(&channelID, "channel", "", "channel id to post to")
	cmd.Flags().StringVar(&rootID, "root", "", "thread root post id")
	_ = cmd.MarkFlagRequired("channel")
	return cmd
}

func runSendFile(ctx context.Context, out io.Writer, path, channelID, rootID string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	cfg, injector, err := bootstrap()
	if err != nil {
		return err
	}
	defer shutdown(injector)

	pipeline, err := do.Invoke[*upload.Pipeline](injector)
	if err != nil {
		return fmt.Errorf("failed to resolve upload pipeline: %w", err)
	}
	clock := do.MustInvoke[clockwork.Clock](injector)

	seconds := transport.EstimateDuration(int64(len(payload)), cfg.BitRate())
	duration := time.Duration(seconds * float64(time.Second))
	artifact := voice.Artifact{
		Payload:     payload,
		Duration:    duration,
		StartedAt:   clock.Now().Add(-duration),
		ContentType: voice.ContentTypeForFilename(path),
	}
	slog.Info("sending file", "path", path, "bytes", len(payload), "duration_ms", artifact.DurationMillis())

	delivery, err := pipeline.Send(ctx, voice.Target{ChannelID: channelID, RootID: rootID}, artifact)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "posted %s (file %s) after %d attempt(s)\n", delivery.PostID, delivery.FileID, delivery.Attempts)
	return nil
}
