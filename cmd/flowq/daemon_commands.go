package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"flowq/internal/daemonctl"
	"flowq/internal/daemonrun"
	"flowq/internal/queue"
)

const (
	daemonStartTimeout = 10 * time.Second
	daemonStopGrace    = 10 * time.Second
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run and control the background daemon",
	}

	daemonCmd.AddCommand(newDaemonRunCommand(ctx))
	daemonCmd.AddCommand(newDaemonStartCommand(ctx))
	daemonCmd.AddCommand(newDaemonStopCommand(ctx))
	daemonCmd.AddCommand(newDaemonStatusCommand(ctx))

	return daemonCmd
}

func newDaemonRunCommand(ctx *commandContext) *cobra.Command {
	var opts daemonrun.Options

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, opts)
		},
	}

	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "", "Override logging.level")
	cmd.Flags().BoolVar(&opts.Development, "development", false, "Include source locations in logs")
	return cmd
}

func newDaemonStartCommand(ctx *commandContext) *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Launch the daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			executable, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable: %w", err)
			}
			opts := daemonctl.LaunchOptions{ConfigPath: ctx.configPath, LogLevel: logLevel}
			result, err := daemonctl.EnsureStarted(cfg, executable, opts, daemonStartTimeout)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch result.State {
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintf(out, "Daemon already running (pid %d)\n", result.PID)
			default:
				fmt.Fprintf(out, "Daemon started (pid %d), API on %s\n", result.PID, cfg.Paths.APIBind)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level")
	return cmd
}

func newDaemonStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the background daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			result, err := daemonctl.StopAndTerminate(cfg, daemonStopGrace)
			out := cmd.OutOrStdout()
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(out, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill {
				fmt.Fprintf(out, "Daemon (pid %d) did not stop in %s and was killed\n", result.PID, daemonStopGrace)
				return nil
			}
			fmt.Fprintf(out, "Daemon (pid %d) stopped\n", result.PID)
			return nil
		},
	}
}

func newDaemonStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and database status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			running, pid, err := daemonctl.ProcessInfo(cfg)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			lines := renderSectionHeader("Daemon", colorize)
			if running {
				lines = append(lines, renderStatusLine("Process", statusOK, fmt.Sprintf("running (pid %d)", pid), colorize))
				lines = append(lines, renderStatusLine("API", statusInfo, cfg.Paths.APIBind, colorize))
			} else {
				lines = append(lines, renderStatusLine("Process", statusWarn, "not running", colorize))
			}
			lines = append(lines, renderStatusLine("Supervisor", statusInfo, yesNo(cfg.Supervisor.Enabled), colorize))
			lines = append(lines, renderStatusLine("Cleanup", statusInfo, yesNo(cfg.Cleanup.Enabled), colorize))
			for _, line := range lines {
				fmt.Fprintln(out, line)
			}

			return ctx.withServices(cmd, func(s *services) error {
				health, err := s.store.CheckHealth(cmd.Context())
				if err != nil {
					return err
				}
				totals, err := s.store.Health(cmd.Context())
				if err != nil {
					return err
				}
				lines := renderSectionHeader("Database", colorize)
				integrity := statusOK
				if !health.IntegrityCheck {
					integrity = statusWarn
				}
				lines = append(lines,
					renderStatusLine("Path", statusInfo, health.DBPath, colorize),
					renderStatusLine("Schema", statusInfo, fmt.Sprintf("version %d", health.SchemaVersion), colorize),
					renderStatusLine("Integrity", integrity, yesNo(health.IntegrityCheck), colorize),
					renderStatusLine("Queues", statusInfo, fmt.Sprintf("%d", health.TotalQueues), colorize),
					renderStatusLine("Items", statusInfo, itemTotals(totals), colorize),
				)
				if health.FreeBytes > 0 {
					lines = append(lines, renderStatusLine("Free space", statusInfo, humanize.IBytes(health.FreeBytes), colorize))
				}
				for _, line := range lines {
					fmt.Fprintln(out, line)
				}
				return nil
			})
		},
	}
}

func itemTotals(h queue.HealthSummary) string {
	return fmt.Sprintf("%d total, %d queued, %d in progress, %d failed, %d completed, %d cancelled",
		h.Total, h.Queued, h.InProgress, h.Failed, h.Completed, h.Cancelled)
}
