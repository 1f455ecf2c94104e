package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"sync"
	"syscall"

	"github.com/foxseedlab/voicenote/external/transport"
	"github.com/foxseedlab/voicenote/internal/chat"
	"github.com/foxseedlab/voicenote/internal/playback"
	"github.com/jonboulle/clockwork"
	"github.com/samber/do/v2"
	"github.com/spf13/cobra"
)

func newPlayCmd() *cobra.Command {
	var (
		rate float64
		seek float64
	)

	cmd := &cobra.Command{
		Use:   "play <post-id>",
		Short: "Follow playback of a posted voice message",
		Long:  "Fetches a posted recording and drives the player state machine over it, printing the player label as it changes.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(cmd.Context(), cmd.OutOrStdout(), args[0], rate, seek)
		},
	}

	cmd.Flags().Float64Var(&rate, "rate", 1, "playback rate (1, 1.25, 1.5, 1.75 or 2)")
	cmd.Flags().Float64Var(&seek, "seek", 0, "start position as a fraction of the duration")
	return cmd
}

func runPlay(parent context.Context, out io.Writer, postID string, rate, seek float64) error {
	cfg, injector, err := bootstrap()
	if err != nil {
		return err
	}
	defer shutdown(injector)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := do.Invoke[chat.Client](injector)
	if err != nil {
		return fmt.Errorf("failed to resolve chat client: %w", err)
	}
	clock := do.MustInvoke[clockwork.Clock](injector)

	bitRate := cfg.BitRate()
	if vc, err := client.VoiceConfig(ctx); err != nil {
		slog.Warn("failed to fetch voice config; using local bit rate", "error", err, "bit_rate", bitRate)
	} else if vc.BitRate > 0 {
		bitRate = vc.BitRate
	}

	fallbackMillis, err := client.PostDuration(ctx, postID)
	if err != nil {
		slog.Warn("failed to read post duration; relying on the player", "error", err, "post_id", postID)
	}

	t, _, err := transport.Load(ctx, client, postID, bitRate, clock)
	if err != nil {
		return err
	}
	machine := playback.New(fallbackMillis)

	done := make(chan struct{})
	var once sync.Once
	unsubscribe := t.Subscribe(func(ev playback.Event) {
		if ev.Type == playback.EventEnded || ev.Type == playback.EventError {
			once.Do(func() { close(done) })
		}
	})
	defer unsubscribe()

	var (
		mu   sync.Mutex
		last string
	)
	machine.OnChange(func(s playback.State) {
		mu.Lock()
		defer mu.Unlock()
		line := fmt.Sprintf("%s  %3d%%  x%g", s.Label, s.ProgressPercent, s.PlaybackRate)
		if line == last {
			return
		}
		last = line
		fmt.Fprint(out, "\r"+line)
	})
	machine.Bind(t)
	defer machine.Close()

	for machine.State().PlaybackRate != rate {
		if machine.CyclePlaybackRate() == 1 {
			return fmt.Errorf("unsupported playback rate %g", rate)
		}
	}
	if seek > 0 {
		machine.Seek(seek)
	}
	if err := machine.Play(); err != nil {
		return fmt.Errorf("failed to play %s: %w", postID, err)
	}

	select {
	case <-ctx.Done():
		machine.Pause()
	case <-done:
	}
	fmt.Fprintln(out)
	return nil
}
