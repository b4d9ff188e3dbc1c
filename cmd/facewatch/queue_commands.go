package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"facewatch/internal/config"
	"facewatch/internal/daemon"
	"facewatch/internal/daemonrun"
	"facewatch/internal/fileutil"
	"facewatch/internal/media"
	"facewatch/internal/pipeline"
	"facewatch/internal/transformer"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the work queue",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueAddCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var states []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List staged entries and their state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(func(_ *config.Config, rt *daemonrun.Runtime) error {
				entries, err := rt.Pipeline.Queue(cmd.Context())
				if err != nil {
					return err
				}
				entries = filterQueueEntries(entries, states)
				if len(entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"Name", "State", "Attempts", "Last Exit", "Size", "Staged"},
					buildQueueRows(entries),
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&states, "state", "s", nil, "Filter by state: pending, done, failed, deferred, exhausted (repeatable)")
	return cmd
}

func filterQueueEntries(entries []pipeline.QueueEntry, states []string) []pipeline.QueueEntry {
	if len(states) == 0 {
		return entries
	}
	want := make(map[pipeline.EntryState]struct{}, len(states))
	for _, s := range states {
		want[pipeline.EntryState(s)] = struct{}{}
	}
	filtered := entries[:0:0]
	for _, e := range entries {
		if _, ok := want[e.State]; ok {
			filtered = append(filtered, e)
		}
	}
	return filtered
}

func buildQueueRows(entries []pipeline.QueueEntry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		lastExit := "-"
		if e.Attempts > 0 {
			lastExit = strconv.Itoa(e.LastExit)
		}
		rows = append(rows, []string{
			e.Name,
			string(e.State),
			strconv.Itoa(e.Attempts),
			lastExit,
			formatBytes(e.Size),
			e.ModTime.Local().Format(time.DateTime),
		})
	}
	return rows
}

func newQueueAddCommand(ctx *commandContext) *cobra.Command {
	var process bool

	cmd := &cobra.Command{
		Use:   "add <file>...",
		Short: "Copy files into the work queue",
		Long: "Copy files into the work queue under a collision-free name. The running\n" +
			"monitor transforms them on its next cycle. The ledger is not touched.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(func(cfg *config.Config, rt *daemonrun.Runtime) error {
				if process {
					release, err := daemon.AcquireLock(cfg.LockPath())
					if err != nil {
						if errors.Is(err, daemon.ErrLocked) {
							return errors.New("a facewatch monitor is running; drop --process and let it pick the files up")
						}
						return err
					}
					defer release()
				}

				out := cmd.OutOrStdout()
				for _, arg := range args {
					staged, err := stageManual(rt, arg)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Queued %s as %s\n", arg, filepath.Base(staged))
					if !process {
						continue
					}
					outcome := rt.Pipeline.ProcessStaged(cmd.Context(), staged)
					switch outcome.Status {
					case transformer.Failed:
						return fmt.Errorf("transform %s (exit %d, log %s): %w", filepath.Base(staged), outcome.ExitCode, outcome.LogPath, outcome.Err)
					case transformer.AlreadyDone:
						fmt.Fprintf(out, "Output already exists: %s\n", outcome.OutputPath)
					default:
						fmt.Fprintf(out, "Wrote %s\n", outcome.OutputPath)
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&process, "process", false, "Transform the staged files immediately (requires the monitor to be stopped)")
	return cmd
}

// stageManual copies path into the queue. Convertible rasters are converted
// in a scratch directory first so the caller's file is never modified and the
// queue only ever sees the canonical format.
func stageManual(rt *daemonrun.Runtime, path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%s is not a regular file", path)
	}
	if info.Size() == 0 {
		return "", fmt.Errorf("%s is empty", path)
	}
	kind := rt.Classifier.Classify(filepath.Base(path))
	if !kind.Supported() {
		return "", fmt.Errorf("%s: unsupported file type (supported: %s)", path, strings.Join(rt.Classifier.Extensions(), " "))
	}
	if kind != media.RasterConvert {
		return rt.Mover.Stage(path)
	}

	scratch, err := os.MkdirTemp("", "facewatch-add-")
	if err != nil {
		return "", fmt.Errorf("create scratch directory: %w", err)
	}
	defer os.RemoveAll(scratch)
	copyPath := filepath.Join(scratch, filepath.Base(path))
	if err := fileutil.CopyFilePreserve(path, copyPath); err != nil {
		return "", fmt.Errorf("copy %s: %w", path, err)
	}
	result, err := rt.Converter.Normalize(copyPath)
	if err != nil {
		return "", fmt.Errorf("convert %s: %w", path, err)
	}
	return rt.Mover.Stage(result.Path)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
