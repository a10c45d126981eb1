package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"flowq/internal/api"
	"flowq/internal/queue"
	"flowq/internal/scheduler"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Create, inspect and maintain queues",
	}

	queueCmd.AddCommand(newQueueCreateCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueShowCommand(ctx))
	queueCmd.AddCommand(newQueueUpdateCommand(ctx))
	queueCmd.AddCommand(newQueueActiveCommand(ctx, "pause", false))
	queueCmd.AddCommand(newQueueActiveCommand(ctx, "resume", true))
	queueCmd.AddCommand(newQueueDeleteCommand(ctx))
	queueCmd.AddCommand(newQueueStatsCommand(ctx))
	queueCmd.AddCommand(newQueueHealthCommand(ctx))
	queueCmd.AddCommand(newQueueResetCommand(ctx))
	queueCmd.AddCommand(newQueueClearCompletedCommand(ctx))
	queueCmd.AddCommand(newQueueDeadLetterCommand(ctx))

	return queueCmd
}

func newQueueCreateCommand(ctx *commandContext) *cobra.Command {
	var spec scheduler.QueueSpec

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create an active queue in a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec.Name = args[0]
			return ctx.withServices(cmd, func(s *services) error {
				q, err := s.scheduler.CreateQueue(cmd.Context(), spec)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, api.FromQueue(q))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created queue %d (%s/%s)\n", q.ID, q.ProjectID, q.Name)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&spec.ProjectID, "project", "p", "", "Owning project id")
	cmd.Flags().StringVarP(&spec.Description, "description", "d", "", "Queue description")
	cmd.Flags().IntVar(&spec.MaxParallelItems, "max-parallel", 0, "Items that may be in progress at once (default from config)")
	cmd.Flags().DurationVar(&spec.ProcessingTimeout, "timeout", 0, "Per-queue processing timeout overriding the global one")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var project string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queues",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withServices(cmd, func(s *services) error {
				var (
					queues []*queue.Queue
					err    error
				)
				if strings.TrimSpace(project) != "" {
					queues, err = s.scheduler.ListQueuesByProject(cmd.Context(), project)
				} else {
					queues, err = s.scheduler.ListQueues(cmd.Context())
				}
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, api.QueueListResponse{Queues: api.FromQueues(queues)})
				}
				fmt.Fprintln(cmd.OutOrStdout(), queueTable.render(buildQueueRows(queues)))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&project, "project", "p", "", "Only list queues of this project")
	return cmd
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <queue-id>",
		Short: "Show a queue with its item counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "queue id")
			if err != nil {
				return err
			}
			return ctx.withServices(cmd, func(s *services) error {
				q, err := s.scheduler.GetQueue(cmd.Context(), id)
				if err != nil {
					return err
				}
				counts, err := s.scheduler.GetQueueStats(cmd.Context(), id)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, api.FromQueue(q))
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderDetails(queueDetails(q, counts)))
				return nil
			})
		},
	}
}

func newQueueUpdateCommand(ctx *commandContext) *cobra.Command {
	var (
		name        string
		description string
		maxParallel int
		timeout     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "update <queue-id>",
		Short: "Change queue settings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "queue id")
			if err != nil {
				return err
			}
			var patch scheduler.QueuePatch
			flags := cmd.Flags()
			if flags.Changed("name") {
				patch.Name = &name
			}
			if flags.Changed("description") {
				patch.Description = &description
			}
			if flags.Changed("max-parallel") {
				patch.MaxParallelItems = &maxParallel
			}
			if flags.Changed("timeout") {
				patch.ProcessingTimeout = &timeout
			}
			return ctx.withServices(cmd, func(s *services) error {
				q, err := s.scheduler.UpdateQueue(cmd.Context(), id, patch)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, api.FromQueue(q))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated queue %d\n", q.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "New queue name")
	cmd.Flags().StringVar(&description, "description", "", "New description")
	cmd.Flags().IntVar(&maxParallel, "max-parallel", 0, "New parallel item limit")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "New processing timeout (0 uses the global timeout)")
	return cmd
}

func newQueueActiveCommand(ctx *commandContext, use string, active bool) *cobra.Command {
	short := "Stop handing out items from a queue"
	verb := "Paused"
	if active {
		short = "Resume handing out items from a queue"
		verb = "Resumed"
	}
	return &cobra.Command{
		Use:   use + " <queue-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "queue id")
			if err != nil {
				return err
			}
			return ctx.withServices(cmd, func(s *services) error {
				q, err := s.scheduler.SetQueueActive(cmd.Context(), id, active)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, api.FromQueue(q))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s queue %d\n", verb, q.ID)
				return nil
			})
		},
	}
}

func newQueueDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <queue-id>",
		Short: "Delete a queue and all of its items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "queue id")
			if err != nil {
				return err
			}
			return ctx.withServices(cmd, func(s *services) error {
				if err := s.scheduler.DeleteQueue(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted queue %d\n", id)
				return nil
			})
		},
	}
}

func newQueueStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <queue-id>",
		Short: "Count a queue's items by status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "queue id")
			if err != nil {
				return err
			}
			return ctx.withServices(cmd, func(s *services) error {
				counts, err := s.scheduler.GetQueueStats(cmd.Context(), id)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, api.FromStatusCounts(counts))
				}
				rows := [][]string{
					{formatStatusLabel(string(queue.StatusQueued)), fmt.Sprintf("%d", counts.Queued)},
					{formatStatusLabel(string(queue.StatusInProgress)), fmt.Sprintf("%d", counts.InProgress)},
					{formatStatusLabel(string(queue.StatusCompleted)), fmt.Sprintf("%d", counts.Completed)},
					{formatStatusLabel(string(queue.StatusFailed)), fmt.Sprintf("%d", counts.Failed)},
					{formatStatusLabel(string(queue.StatusCancelled)), fmt.Sprintf("%d", counts.Cancelled)},
					{"Dead-lettered", fmt.Sprintf("%d", counts.DeadLettered)},
					{"Total", fmt.Sprintf("%d", counts.Total)},
				}
				fmt.Fprintln(cmd.OutOrStdout(), statsTable.render(rows))
				return nil
			})
		},
	}
}

func newQueueHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health <queue-id>",
		Short: "Report stale, failed and stuck work in a queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "queue id")
			if err != nil {
				return err
			}
			return ctx.withServices(cmd, func(s *services) error {
				health, err := s.cleanup.GetQueueHealth(cmd.Context(), id)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, api.FromQueueHealth(health))
				}
				out := cmd.OutOrStdout()
				fmt.Fprint(out, renderQueueHealth(health, shouldColorize(out)))
				return nil
			})
		},
	}
}

func newQueueResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <queue-id>",
		Short: "Return every in-progress item of a queue to queued",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "queue id")
			if err != nil {
				return err
			}
			return ctx.withServices(cmd, func(s *services) error {
				count, err := s.cleanup.ResetQueue(cmd.Context(), id)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, api.CountResponse{Count: int64(count)})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reset %d in-progress items\n", count)
				return nil
			})
		},
	}
}

func newQueueClearCompletedCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "clear-completed <queue-id>",
		Short: "Delete completed and cancelled items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "queue id")
			if err != nil {
				return err
			}
			return ctx.withServices(cmd, func(s *services) error {
				removed, err := s.cleanup.ClearCompletedItems(cmd.Context(), id, olderThan)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, api.CountResponse{Count: removed})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d finished items\n", removed)
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Only clear items finished at least this long ago")
	return cmd
}

func newQueueDeadLetterCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "dead-letter [queue-id]",
		Short: "Dead-letter failed items that used up their retries",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id int64
			if len(args) == 1 {
				parsed, err := parseID(args[0], "queue id")
				if err != nil {
					return err
				}
				id = parsed
			}
			return ctx.withServices(cmd, func(s *services) error {
				moved, err := s.cleanup.MoveFailedToDeadLetter(cmd.Context(), id)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, api.CountResponse{Count: moved})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Dead-lettered %d failed items\n", moved)
				return nil
			})
		},
	}
}
