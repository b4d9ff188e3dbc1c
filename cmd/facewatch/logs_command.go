package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"facewatch/internal/logging"
	"facewatch/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool
	var toolEntry string

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the monitor log or a transformer log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			path := logging.CurrentLogPath(cfg.Paths.LogDir)
			if toolEntry != "" {
				path, err = logs.LatestToolLog(cfg.ToolLogDir(), toolEntry)
				if err != nil {
					return err
				}
			}
			return streamLog(cmd.Context(), cmd.OutOrStdout(), path, lines, follow)
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines until interrupted")
	cmd.Flags().StringVar(&toolEntry, "tool", "", "Show the latest transformer log for this staged entry")
	return cmd
}

func streamLog(ctx context.Context, out io.Writer, path string, lines int, follow bool) error {
	result, err := logs.Tail(ctx, path, logs.TailOptions{Offset: -1, Limit: lines})
	if err != nil {
		return err
	}
	for _, line := range result.Lines {
		fmt.Fprintln(out, line)
	}
	for follow {
		result, err = logs.Tail(ctx, path, logs.TailOptions{Offset: result.Offset, Follow: true, Wait: 30 * time.Second})
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		for _, line := range result.Lines {
			fmt.Fprintln(out, line)
		}
	}
	return nil
}
