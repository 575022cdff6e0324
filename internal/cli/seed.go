package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/timmy/memehustle/internal/logger"
	"github.com/timmy/memehustle/internal/service"
	"github.com/timmy/memehustle/internal/source/localdir"
)

// SeedOptions holds flags for the seed command.
type SeedOptions struct {
	*RootOptions
	Dir       string
	Owner     string
	Limit     int
	Force     bool
	Workers   int
	BatchSize int
	Timeout   time.Duration
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SeedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "List a directory of images on the board",
		Long: `Walk a directory of images, upload each one to object storage and create a
listing owned by --owner. Tags come from the folder and file names. Images
that are already listed are skipped unless --force is given.

Examples:
  hustlectl seed --dir ./memes --owner admin
  hustlectl seed --dir ./memes --owner admin --limit 20 --workers 2`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Dir, "dir", "", "directory of images (required)")
	_ = cmd.MarkFlagRequired("dir")
	cmd.Flags().StringVar(&opts.Owner, "owner", "", "username that will own the listings (required)")
	_ = cmd.MarkFlagRequired("owner")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of images (0 = all)")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "list images even if already listed")
	cmd.Flags().IntVar(&opts.Workers, "workers", 4, "concurrent uploads")
	cmd.Flags().IntVar(&opts.BatchSize, "batch", 50, "images read per batch")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 10*time.Minute, "how long to wait for annotations")

	return cmd
}

func runSeed(cmd *cobra.Command, opts *SeedOptions) error {
	ctx := logger.SetComponent(cmd.Context(), "seed")
	a, err := openApp(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	owner, err := a.users.FindByUsername(ctx, opts.Owner)
	if err != nil {
		return fmt.Errorf("owner %q: %w", opts.Owner, err)
	}

	src := localdir.NewAdapter(opts.Dir)
	if n, err := src.Count(); err != nil {
		return err
	} else if n == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "no images found in %s\n", opts.Dir)
		return nil
	}

	seeder := service.NewSeedService(a.service, a.listings, a.storage, &service.SeedConfig{
		Workers:   opts.Workers,
		BatchSize: opts.BatchSize,
	})
	stats, err := seeder.Seed(ctx, src, service.SeedOptions{
		Owner: owner.Identity(),
		Limit: opts.Limit,
		Force: opts.Force,
	})
	if err != nil {
		return err
	}

	waitCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	if err := a.pipeline.Wait(waitCtx); err != nil {
		logger.CtxWarn(ctx, "Annotations still running: %v", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "seeded %d, skipped %d, failed %d of %d image(s) in %s\n",
		stats.CreatedItems, stats.SkippedItems, stats.FailedItems, stats.TotalItems,
		stats.EndTime.Sub(stats.StartTime).Round(time.Millisecond))
	return nil
}
