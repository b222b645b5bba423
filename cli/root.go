// Package cli exposes the dentizy commands.
package cli

import (
	"os"

	"github.com/erlaaaand/dentizy/config"
	"github.com/spf13/cobra"
)

// configLoader returns the process configuration. Tests swap it out.
type configLoader func() *config.Config

func newRootCmd(load configLoader) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "dentizy",
		Short:         "Dentizy patient registry",
		Long:          `Dentizy registers clinic patients and issues their daily YYYYMMDD-SSS patient codes.`,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, load)
		},
	}

	rootCmd.AddCommand(
		newServeCmd(load),
		newMigrateCmd(load),
		newCodesCmd(load),
	)
	return rootCmd
}

func Execute() {
	if err := newRootCmd(config.LoadConfig).Execute(); err != nil {
		os.Exit(1)
	}
}
