package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"flowq/internal/api"
	"flowq/internal/flow"
)

func newTicketCommand(ctx *commandContext) *cobra.Command {
	ticketCmd := &cobra.Command{
		Use:   "ticket",
		Short: "Manage tickets and enqueue them with their tasks",
	}

	ticketCmd.AddCommand(newTicketCreateCommand(ctx))
	ticketCmd.AddCommand(newTicketListCommand(ctx))
	ticketCmd.AddCommand(newTicketShowCommand(ctx))
	ticketCmd.AddCommand(newTicketEnqueueCommand(ctx))

	return ticketCmd
}

func newTicketCreateCommand(ctx *commandContext) *cobra.Command {
	var ticket flow.Ticket

	cmd := &cobra.Command{
		Use:   "create <title>",
		Short: "Create a ticket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ticket.Title = args[0]
			return ctx.withServices(cmd, func(s *services) error {
				if err := s.entities.CreateTicket(cmd.Context(), &ticket, time.Now().UTC()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created ticket %d\n", ticket.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&ticket.ProjectID, "project", "p", "", "Owning project id")
	cmd.Flags().StringVarP(&ticket.Description, "description", "d", "", "Ticket description")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func newTicketListCommand(ctx *commandContext) *cobra.Command {
	var project string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a project's tickets with their queue state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withServices(cmd, func(s *services) error {
				tickets, err := s.entities.ListTickets(cmd.Context(), project)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(tickets))
				for _, ticket := range tickets {
					rows = append(rows, []string{
						strconv.FormatInt(ticket.ID, 10),
						ticket.Title,
						formatStatusLabel(string(ticket.Status)),
						queueStateDetails(ticket.Queue),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), ticketTable.render(rows))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&project, "project", "p", "", "Owning project id")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func newTicketShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <ticket-id>",
		Short: "Show a ticket and its tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "ticket id")
			if err != nil {
				return err
			}
			return ctx.withServices(cmd, func(s *services) error {
				ticket, err := s.entities.GetTicket(cmd.Context(), id)
				if err != nil {
					return err
				}
				tasks, err := s.entities.ListTasks(cmd.Context(), id)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderDetails([][2]string{
					{"ID", strconv.FormatInt(ticket.ID, 10)},
					{"Project", ticket.ProjectID},
					{"Title", ticket.Title},
					{"Status", formatStatusLabel(string(ticket.Status))},
					{"Queue", queueStateDetails(ticket.Queue)},
				}))
				rows := make([][]string, 0, len(tasks))
				for _, task := range tasks {
					rows = append(rows, []string{
						strconv.FormatInt(task.ID, 10),
						task.Title,
						formatStatusLabel(string(task.Status)),
						queueStateDetails(task.Queue),
					})
				}
				fmt.Fprintln(out, taskTable.render(rows))
				return nil
			})
		},
	}
}

func newTicketEnqueueCommand(ctx *commandContext) *cobra.Command {
	var priority int

	cmd := &cobra.Command{
		Use:   "enqueue <ticket-id> <queue-id>",
		Short: "Enqueue a ticket followed by its open tasks",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ticketID, err := parseID(args[0], "ticket id")
			if err != nil {
				return err
			}
			queueID, err := parseID(args[1], "queue id")
			if err != nil {
				return err
			}
			return ctx.withServices(cmd, func(s *services) error {
				items, err := s.scheduler.EnqueueTicketWithAllTasks(cmd.Context(), ticketID, queueID, priority)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, api.ItemListResponse{Items: api.FromQueueItems(items)})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Enqueued ticket %d with %d open tasks\n", ticketID, len(items)-1)
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&priority, "priority", "p", 0, "Priority for every enqueued item (default from config)")
	return cmd
}

func newTaskCommand(ctx *commandContext) *cobra.Command {
	taskCmd := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks under tickets",
	}

	taskCmd.AddCommand(newTaskCreateCommand(ctx))
	taskCmd.AddCommand(newTaskStatusCommand(ctx))

	return taskCmd
}

func newTaskCreateCommand(ctx *commandContext) *cobra.Command {
	var task flow.Task

	cmd := &cobra.Command{
		Use:   "create <ticket-id> <title>",
		Short: "Create a task under a ticket",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ticketID, err := parseID(args[0], "ticket id")
			if err != nil {
				return err
			}
			task.TicketID = ticketID
			task.Title = args[1]
			return ctx.withServices(cmd, func(s *services) error {
				if err := s.entities.CreateTask(cmd.Context(), &task, time.Now().UTC()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created task %d under ticket %d\n", task.ID, ticketID)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&task.Description, "description", "d", "", "Task description")
	return cmd
}

func newTaskStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <task-id> <todo|in_progress|done|cancelled>",
		Short: "Set a task's workflow status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "task id")
			if err != nil {
				return err
			}
			status := flow.TaskStatus(strings.TrimSpace(args[1]))
			return ctx.withServices(cmd, func(s *services) error {
				if err := s.entities.SetTaskStatus(cmd.Context(), id, status, time.Now().UTC()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Task %d is %s\n", id, formatStatusLabel(string(status)))
				return nil
			})
		},
	}
}
