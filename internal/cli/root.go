// Package cli implements hustlectl, the board's maintenance tool.
package cli

import (
	"github.com/spf13/cobra"
	"github.com/timmy/memehustle/internal/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
}

// NewRootCommand creates the root command for hustlectl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "hustlectl",
		Short: "MemeHustle board maintenance",
		Long:  "Seed the board from local images and re-run annotation for listings that need it.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := "info"
			if opts.Verbose {
				level = "debug"
			}
			logger.SetDefaultLogger(logger.New(&logger.Config{
				Level:       level,
				Format:      "text",
				Output:      cmd.ErrOrStderr(),
				ServiceName: "hustlectl",
			}))
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to config file (default ./configs/config.yaml)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	// Add subcommands
	cmd.AddCommand(NewReannotateCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))

	return cmd
}
