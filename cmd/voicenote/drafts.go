package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/foxseedlab/voicenote/internal/draft"
	"github.com/foxseedlab/voicenote/internal/upload"
	"github.com/foxseedlab/voicenote/internal/voice"
	"github.com/samber/do/v2"
	"github.com/spf13/cobra"
)

func newDraftsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drafts",
		Short: "List staged recordings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDrafts(cmd.Context(), cmd.OutOrStdout())
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "resume",
		Short: "Re-send every staged recording",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResume(cmd.Context(), cmd.OutOrStdout())
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "discard <key>",
		Short: "Delete a staged recording without sending it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiscard(cmd.Context(), cmd.OutOrStdout(), args[0])
		},
	})
	return cmd
}

func runDrafts(ctx context.Context, out io.Writer) error {
	_, injector, err := bootstrap()
	if err != nil {
		return err
	}
	defer shutdown(injector)

	pipeline, err := do.Invoke[*upload.Pipeline](injector)
	if err != nil {
		return fmt.Errorf("failed to resolve upload pipeline: %w", err)
	}
	list, err := pipeline.Drafts(ctx)
	if err != nil {
		return err
	}
	writeDrafts(out, list)
	return nil
}

func runResume(ctx context.Context, out io.Writer) error {
	_, injector, err := bootstrap()
	if err != nil {
		return err
	}
	defer shutdown(injector)

	pipeline, err := do.Invoke[*upload.Pipeline](injector)
	if err != nil {
		return fmt.Errorf("failed to resolve upload pipeline: %w", err)
	}
	deliveries, err := pipeline.Resume(ctx)
	writeDeliveries(out, deliveries)
	return err
}

func runDiscard(ctx context.Context, out io.Writer, key string) error {
	_, injector, err := bootstrap()
	if err != nil {
		return err
	}
	defer shutdown(injector)

	pipeline, err := do.Invoke[*upload.Pipeline](injector)
	if err != nil {
		return fmt.Errorf("failed to resolve upload pipeline: %w", err)
	}
	if err := pipeline.Discard(ctx, key); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s discarded\n", key)
	return nil
}

func writeDrafts(out io.Writer, list []draft.Draft) {
	if len(list) == 0 {
		fmt.Fprintln(out, "no staged drafts")
		return
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tCHANNEL\tROOT\tDURATION\tBYTES\tSTAGED")
	for _, d := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			d.Key, d.ChannelID, orDash(d.RootID),
			(time.Duration(d.DurationMillis) * time.Millisecond).String(),
			len(d.Payload), d.CreatedAt.Format(time.RFC3339))
	}
	_ = w.Flush()
}

func writeDeliveries(out io.Writer, deliveries []voice.Delivery) {
	for _, d := range deliveries {
		fmt.Fprintf(out, "%s -> post %s (%d attempt(s))\n", d.DraftKey, d.PostID, d.Attempts)
	}
	fmt.Fprintf(out, "%d draft(s) delivered\n", len(deliveries))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
