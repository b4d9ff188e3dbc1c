package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"facewatch/internal/config"
	"facewatch/internal/daemon"
	"facewatch/internal/daemonrun"
	"facewatch/internal/pipeline"
	"facewatch/internal/preflight"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show monitor, dependency, and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(func(cfg *config.Config, rt *daemonrun.Runtime) error {
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				var lines []string

				lines = append(lines, renderSectionHeader("System", colorize)...)
				running, err := daemon.IsLocked(cfg.LockPath())
				switch {
				case err != nil:
					lines = append(lines, renderStatusLine("Monitor", statusWarn, err.Error(), colorize))
				case running:
					detail := "running"
					if pid, pidErr := daemonrun.ReadPID(cfg); pidErr == nil {
						detail = fmt.Sprintf("running (pid %d)", pid)
					}
					lines = append(lines, renderStatusLine("Monitor", statusOK, detail, colorize))
				default:
					lines = append(lines, renderStatusLine("Monitor", statusInfo, "not running", colorize))
				}
				configMsg := ctx.configPath
				if !ctx.configExists {
					configMsg += " (defaults)"
				}
				lines = append(lines,
					renderStatusLine("Config", statusInfo, configMsg, colorize),
					renderStatusLine("Pipeline root", statusInfo, cfg.Paths.RootDir, colorize),
					renderStatusLine("Strict preflight", statusInfo, yesNo(cfg.Preflight.Strict), colorize),
				)
				if cfg.Notifications.NtfyTopic != "" {
					lines = append(lines, renderStatusLine("Notifications", statusOK, cfg.Notifications.NtfyTopic, colorize))
				} else {
					lines = append(lines, renderStatusLine("Notifications", statusInfo, "disabled", colorize))
				}

				lines = append(lines, "")
				lines = append(lines, renderSectionHeader("Dependencies", colorize)...)
				for _, result := range preflight.RunAll(cmd.Context(), cfg) {
					lines = append(lines, renderStatusLine(result.Name, preflightKind(result), result.Detail, colorize))
				}

				entries, err := rt.Pipeline.Queue(cmd.Context())
				if err != nil {
					return fmt.Errorf("list work queue: %w", err)
				}
				lines = append(lines, "")
				lines = append(lines, renderSectionHeader("Queue", colorize)...)
				lines = append(lines, queueSummaryLines(entries, colorize)...)

				stats, err := rt.History.Stats(cmd.Context())
				if err != nil {
					return fmt.Errorf("read attempt history: %w", err)
				}
				lines = append(lines, "")
				lines = append(lines, renderSectionHeader("History", colorize)...)
				lines = append(lines,
					renderStatusLine("Ledger entries", statusInfo, fmt.Sprintf("%d", rt.Ledger.Len()), colorize),
					renderStatusLine("Attempts", statusInfo, fmt.Sprintf("%d (%d succeeded, %d failed)", stats.Attempts, stats.Succeeded, stats.Failed), colorize),
				)

				fmt.Fprintln(out, strings.Join(lines, "\n"))
				return nil
			})
		},
	}
}

func preflightKind(r preflight.Result) statusKind {
	switch {
	case r.Passed:
		return statusOK
	case r.Required:
		return statusError
	default:
		return statusWarn
	}
}

func queueSummaryLines(entries []pipeline.QueueEntry, colorize bool) []string {
	counts := make(map[pipeline.EntryState]int)
	for _, e := range entries {
		counts[e.State]++
	}
	states := []struct {
		state pipeline.EntryState
		label string
		kind  statusKind
	}{
		{pipeline.StatePending, "Pending", statusInfo},
		{pipeline.StateDone, "Done", statusOK},
		{pipeline.StateFailed, "Failed", statusWarn},
		{pipeline.StateDeferred, "Deferred", statusWarn},
		{pipeline.StateExhausted, "Exhausted", statusError},
	}
	lines := make([]string, 0, len(states))
	for _, s := range states {
		kind := s.kind
		if counts[s.state] == 0 {
			kind = statusInfo
		}
		lines = append(lines, renderStatusLine(s.label, kind, fmt.Sprintf("%d", counts[s.state]), colorize))
	}
	return lines
}
