package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/timmy/memehustle/internal/logger"
)

// ReannotateOptions holds flags for the reannotate command.
type ReannotateOptions struct {
	*RootOptions
	ListingID string
	Limit     int
	Timeout   time.Duration
}

// NewReannotateCommand creates the reannotate command.
func NewReannotateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReannotateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reannotate",
		Short: "Regenerate captions and moods",
		Long: `Regenerate the caption and mood of listings whose annotations are still
pending or fell back after a generation failure, and wait for the results.

Examples:
  hustlectl reannotate --limit 50
  hustlectl reannotate --id 6f1c0c2e-8c1f-4d0e-9d55-0a8f3c1b2e77`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReannotate(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.ListingID, "id", "", "re-annotate a single listing")
	cmd.Flags().IntVar(&opts.Limit, "limit", 100, "maximum number of listings to re-annotate")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 10*time.Minute, "how long to wait for generation")

	return cmd
}

func runReannotate(cmd *cobra.Command, opts *ReannotateOptions) error {
	if opts.ListingID == "" && opts.Limit <= 0 {
		return fmt.Errorf("--limit must be positive")
	}

	ctx := logger.SetComponent(cmd.Context(), "reannotate")
	a, err := openApp(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	scheduled := 0
	if opts.ListingID != "" {
		if _, err := a.service.RequestReannotation(logger.SetListingID(ctx, opts.ListingID), opts.ListingID); err != nil {
			return fmt.Errorf("failed to re-annotate %s: %w", opts.ListingID, err)
		}
		scheduled = 1
	} else {
		stats, err := a.service.ReannotateBacklog(ctx, opts.Limit)
		if err != nil {
			return err
		}
		scheduled = stats.Scheduled
		if stats.Failed > 0 {
			logger.CtxWarn(ctx, "%d of %d listings could not be scheduled", stats.Failed, stats.Total)
		}
	}

	start := time.Now()
	waitCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	if err := a.pipeline.Wait(waitCtx); err != nil {
		return fmt.Errorf("gave up waiting for annotations: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "re-annotated %d listing(s) in %s\n", scheduled, time.Since(start).Round(time.Millisecond))
	return nil
}
