package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"facewatch/internal/config"
	"facewatch/internal/daemon"
	"facewatch/internal/daemonrun"
	"facewatch/internal/ledger"
)

func newLedgerCommand(ctx *commandContext) *cobra.Command {
	ledgerCmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the processed-source ledger",
	}

	ledgerCmd.AddCommand(newLedgerListCommand(ctx))
	ledgerCmd.AddCommand(newLedgerCheckCommand(ctx))
	ledgerCmd.AddCommand(newLedgerAddCommand(ctx))

	return ledgerCmd
}

func newLedgerListCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded source names, most recent last",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(func(_ *config.Config, rt *daemonrun.Runtime) error {
				entries := rt.Ledger.Entries()
				if len(entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Ledger is empty")
					return nil
				}
				offset := 0
				if limit > 0 && len(entries) > limit {
					offset = len(entries) - limit
				}
				rows := make([][]string, 0, len(entries)-offset)
				for i, name := range entries[offset:] {
					rows = append(rows, []string{strconv.Itoa(offset + i + 1), name})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"#", "Name"}, rows, []columnAlignment{alignRight, alignLeft}))
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Show only the last N entries (0 for all)")
	return cmd
}

func newLedgerCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check <name>...",
		Short: "Report whether source names are already recorded",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(func(_ *config.Config, rt *daemonrun.Runtime) error {
				out := cmd.OutOrStdout()
				for _, name := range args {
					state := "not recorded"
					if rt.Ledger.Contains(name) {
						state = "recorded"
					}
					fmt.Fprintf(out, "%s: %s\n", name, state)
				}
				return nil
			})
		},
	}
}

func newLedgerAddCommand(ctx *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "add <name>...",
		Short: "Record source names so discovery skips them",
		Long: "Record source names so discovery skips them. A running monitor keeps\n" +
			"its in-memory set, so the command refuses to run alongside it unless\n" +
			"--force is given; forced entries apply after the monitor restarts.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(func(cfg *config.Config, rt *daemonrun.Runtime) error {
				for _, name := range args {
					if err := ledger.Validate(name); err != nil {
						return fmt.Errorf("%q: %w", name, err)
					}
				}
				release, err := daemon.AcquireLock(cfg.LockPath())
				switch {
				case err == nil:
					defer release()
				case errors.Is(err, daemon.ErrLocked) && force:
					fmt.Fprintln(cmd.ErrOrStderr(), "warning: a facewatch monitor is running; it will not see these entries until restarted")
				case errors.Is(err, daemon.ErrLocked):
					return errors.New("a facewatch monitor is running; stop it first or pass --force")
				default:
					return err
				}

				out := cmd.OutOrStdout()
				for _, name := range args {
					if rt.Ledger.Contains(name) {
						fmt.Fprintf(out, "%s: already recorded\n", name)
						continue
					}
					if err := rt.Ledger.Record(name); err != nil {
						return err
					}
					fmt.Fprintf(out, "%s: recorded\n", name)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Record even while a monitor is running")
	return cmd
}
