package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSweepCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one processing-timeout sweep across every queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withServices(cmd, func(s *services) error {
				result, err := s.supervisor.Sweep(cmd.Context())
				if ctx.jsonOutput() {
					if encodeErr := writeJSON(cmd, result); encodeErr != nil {
						return encodeErr
					}
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Scanned %d stale items: %d requeued, %d timed out, %d skipped\n",
					result.Scanned, result.Retried, result.TimedOut, result.Skipped)
				return err
			})
		},
	}
}

func newReconcileCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Repair ticket and task queue mirrors that drifted from their items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withServices(cmd, func(s *services) error {
				result, err := s.cleanup.Reconcile(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, result)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Checked %d mirrors, found %d violations\n", result.Checked, result.Violations)
				if result.Violations > 0 {
					fmt.Fprintf(out, "Re-projected %d, cleared %d, pruned %d orphaned items\n",
						result.Reprojected, result.Cleared, result.Pruned)
				}
				return nil
			})
		},
	}
}
