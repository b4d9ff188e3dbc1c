package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"facewatch/internal/config"
	"facewatch/internal/daemonrun"
	"facewatch/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent transformer attempts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(func(_ *config.Config, rt *daemonrun.Runtime) error {
				attempts, err := rt.History.Recent(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if len(attempts) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No attempts recorded")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"Started", "Entry", "Phase", "Outcome", "Exit", "Duration", "Error"},
					buildHistoryRows(attempts),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of attempts to show (0 for all)")
	return cmd
}

func buildHistoryRows(attempts []history.Attempt) [][]string {
	rows := make([][]string, 0, len(attempts))
	for _, a := range attempts {
		rows = append(rows, []string{
			a.StartedAt.Local().Format(time.DateTime),
			a.StagedName,
			string(a.Phase),
			string(a.Outcome),
			strconv.Itoa(a.ExitCode),
			a.FinishedAt.Sub(a.StartedAt).Round(time.Second).String(),
			a.Error,
		})
	}
	return rows
}
