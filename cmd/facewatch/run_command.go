package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"facewatch/internal/daemonrun"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var once bool
	var logLevel string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the monitor loop in the foreground",
		Long: "Run the monitor loop until interrupted. Each cycle first retries staged\n" +
			"entries without output, then stages and transforms new source files.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel: logLevel,
				Once:     once,
			})
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "Run a single cycle and exit")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override the configured log level (debug, info, warn, error)")
	return cmd
}
