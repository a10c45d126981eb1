package main

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"flowq/internal/api"
	"flowq/internal/queue"
	"flowq/internal/scheduler"
)

func newItemCommand(ctx *commandContext) *cobra.Command {
	itemCmd := &cobra.Command{
		Use:   "item",
		Short: "Enqueue, claim and finish queue items",
	}

	itemCmd.AddCommand(newItemEnqueueCommand(ctx))
	itemCmd.AddCommand(newItemClaimCommand(ctx))
	itemCmd.AddCommand(newItemFinishCommand(ctx, "complete", true))
	itemCmd.AddCommand(newItemFinishCommand(ctx, "fail", false))
	itemCmd.AddCommand(newItemCancelCommand(ctx))
	itemCmd.AddCommand(newItemRequeueCommand(ctx))
	itemCmd.AddCommand(newItemRemoveCommand(ctx))
	itemCmd.AddCommand(newItemMoveCommand(ctx))
	itemCmd.AddCommand(newItemListCommand(ctx))
	itemCmd.AddCommand(newItemShowCommand(ctx))

	return itemCmd
}

func newItemEnqueueCommand(ctx *commandContext) *cobra.Command {
	var req scheduler.EnqueueRequest

	cmd := &cobra.Command{
		Use:   "enqueue <queue-id> <type> <reference-id>",
		Short: "Add a ticket, task, chat or prompt to a queue",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			queueID, err := parseID(args[0], "queue id")
			if err != nil {
				return err
			}
			ref, err := parseRef(args[1], args[2])
			if err != nil {
				return err
			}
			req.Type, req.ReferenceID = ref.Type, ref.ID
			return ctx.withServices(cmd, func(s *services) error {
				item, err := s.scheduler.Enqueue(cmd.Context(), queueID, req)
				if err != nil {
					return err
				}
				return printItem(cmd, ctx, item, fmt.Sprintf("Enqueued %s as item %d (priority %d)", item.Ref(), item.ID, item.Priority))
			})
		},
	}

	cmd.Flags().StringVarP(&req.Title, "title", "t", "", "Item title (defaults to the entity title)")
	cmd.Flags().StringVarP(&req.Description, "description", "d", "", "Item description")
	cmd.Flags().IntVarP(&req.Priority, "priority", "p", 0, "Priority, lower is served first (default from config)")
	cmd.Flags().DurationVar(&req.EstimatedProcessingTime, "estimate", 0, "Estimated processing time")
	return cmd
}

func newItemClaimCommand(ctx *commandContext) *cobra.Command {
	var agentID string

	cmd := &cobra.Command{
		Use:   "claim <queue-id>",
		Short: "Claim the next queued item for an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			queueID, err := parseID(args[0], "queue id")
			if err != nil {
				return err
			}
			agent := strings.TrimSpace(agentID)
			if agent == "" {
				agent = "cli-" + uuid.NewString()
			}
			return ctx.withServices(cmd, func(s *services) error {
				item, err := s.scheduler.GetNextItem(cmd.Context(), queueID, agent)
				if err != nil {
					return err
				}
				if item == nil {
					if ctx.jsonOutput() {
						return writeJSON(cmd, api.ItemEnvelope{})
					}
					fmt.Fprintln(cmd.OutOrStdout(), "No item available")
					return nil
				}
				if ctx.jsonOutput() {
					dto := api.FromQueueItem(item)
					return writeJSON(cmd, api.ItemEnvelope{Item: &dto})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Claimed item %d (%s) for %s\n", item.ID, item.Ref(), item.AgentID)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&agentID, "agent", "a", "", "Agent id (defaults to a generated cli-<uuid>)")
	return cmd
}

func newItemFinishCommand(ctx *commandContext, use string, success bool) *cobra.Command {
	var (
		output  string
		message string
		agentID string
	)

	short := "Mark an in-progress item completed"
	if !success {
		short = "Mark an in-progress item failed"
	}
	cmd := &cobra.Command{
		Use:   use + " <item-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "item id")
			if err != nil {
				return err
			}
			result := scheduler.Result{Success: success, Output: output, Error: message, AgentID: agentID}
			return ctx.withServices(cmd, func(s *services) error {
				item, err := s.scheduler.CompleteItem(cmd.Context(), id, result)
				if err != nil {
					return err
				}
				return printItem(cmd, ctx, item, fmt.Sprintf("Item %d %s after %s", item.ID, item.Status, formatDuration(item.ActualProcessingTime)))
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Result output to record")
	cmd.Flags().StringVarP(&agentID, "agent", "a", "", "Only finish the item if this agent holds it")
	if !success {
		cmd.Flags().StringVarP(&message, "error", "e", "", "Failure message")
	}
	return cmd
}

func newItemCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <item-id>",
		Short: "Cancel a queued or in-progress item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "item id")
			if err != nil {
				return err
			}
			return ctx.withServices(cmd, func(s *services) error {
				item, err := s.scheduler.CancelItem(cmd.Context(), id)
				if err != nil {
					return err
				}
				return printItem(cmd, ctx, item, fmt.Sprintf("Cancelled item %d", item.ID))
			})
		},
	}
}

func newItemRequeueCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "requeue <item-id>",
		Short: "Return a failed or cancelled item to its queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "item id")
			if err != nil {
				return err
			}
			return ctx.withServices(cmd, func(s *services) error {
				item, err := s.scheduler.RequeueItem(cmd.Context(), id)
				if err != nil {
					return err
				}
				return printItem(cmd, ctx, item, fmt.Sprintf("Requeued item %d (retry %d)", item.ID, item.RetryCount))
			})
		},
	}
}

func newItemRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <item-id>",
		Short: "Delete an item from its queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "item id")
			if err != nil {
				return err
			}
			return ctx.withServices(cmd, func(s *services) error {
				if err := s.scheduler.RemoveItem(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed item %d\n", id)
				return nil
			})
		},
	}
}

func newItemMoveCommand(ctx *commandContext) *cobra.Command {
	var target int64

	cmd := &cobra.Command{
		Use:   "move <type> <reference-id>",
		Short: "Move an entity's queued item to another queue, or out of every queue",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseRef(args[0], args[1])
			if err != nil {
				return err
			}
			if target < 0 {
				return fmt.Errorf("invalid target queue %d", target)
			}
			return ctx.withServices(cmd, func(s *services) error {
				item, err := s.scheduler.MoveItem(cmd.Context(), ref, target)
				if err != nil {
					return err
				}
				if item == nil {
					if ctx.jsonOutput() {
						return writeJSON(cmd, api.ItemEnvelope{})
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Removed %s from all queues\n", ref)
					return nil
				}
				if ctx.jsonOutput() {
					dto := api.FromQueueItem(item)
					return writeJSON(cmd, api.ItemEnvelope{Item: &dto})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Moved %s to queue %d as item %d\n", ref, item.QueueID, item.ID)
				return nil
			})
		},
	}

	cmd.Flags().Int64Var(&target, "to", 0, "Target queue id (omit to remove from every queue)")
	return cmd
}

func newItemListCommand(ctx *commandContext) *cobra.Command {
	var statusFlags []string

	cmd := &cobra.Command{
		Use:   "list <queue-id>",
		Short: "List a queue's items in service order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			queueID, err := parseID(args[0], "queue id")
			if err != nil {
				return err
			}
			var statuses []queue.Status
			for _, value := range statusFlags {
				status, ok := queue.ParseStatus(value)
				if !ok {
					return fmt.Errorf("unknown status %q", value)
				}
				statuses = append(statuses, status)
			}
			return ctx.withServices(cmd, func(s *services) error {
				items, err := s.scheduler.ListItems(cmd.Context(), queueID, statuses...)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, api.ItemListResponse{Items: api.FromQueueItems(items)})
				}
				fmt.Fprintln(cmd.OutOrStdout(), itemTable.render(buildItemRows(items)))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&statusFlags, "status", "s", nil, "Filter by status (repeatable)")
	return cmd
}

func newItemShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <item-id>",
		Short: "Show one queue item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "item id")
			if err != nil {
				return err
			}
			return ctx.withServices(cmd, func(s *services) error {
				item, err := s.scheduler.GetItem(cmd.Context(), id)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, api.FromQueueItem(item))
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderDetails(itemDetails(item)))
				return nil
			})
		},
	}
}

// printItem writes item as JSON or prints message.
func printItem(cmd *cobra.Command, ctx *commandContext, item *queue.Item, message string) error {
	if ctx.jsonOutput() {
		return writeJSON(cmd, api.FromQueueItem(item))
	}
	fmt.Fprintln(cmd.OutOrStdout(), message)
	return nil
}
