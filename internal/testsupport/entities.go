package testsupport

import (
	"context"
	"testing"
	"time"

	"flowq/internal/flow"
	"flowq/internal/queue"
)

// MustCreateTicket inserts a ticket for tests.
func MustCreateTicket(t testing.TB, store *queue.Store, projectID, title string) *flow.Ticket {
	t.Helper()

	ticket := &flow.Ticket{ProjectID: projectID, Title: title}
	if err := flow.NewEntities(store.DB()).CreateTicket(context.Background(), ticket, time.Now().UTC()); err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	return ticket
}

// MustCreateTask inserts a task under ticketID for tests.
func MustCreateTask(t testing.TB, store *queue.Store, ticketID int64, title string, status flow.TaskStatus) *flow.Task {
	t.Helper()

	task := &flow.Task{TicketID: ticketID, Title: title, Status: status}
	if err := flow.NewEntities(store.DB()).CreateTask(context.Background(), task, time.Now().UTC()); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	return task
}

// MustGetTicket reloads a ticket, including its queue mirror.
func MustGetTicket(t testing.TB, store *queue.Store, id int64) *flow.Ticket {
	t.Helper()

	ticket, err := flow.NewEntities(store.DB()).GetTicket(context.Background(), id)
	if err != nil {
		t.Fatalf("GetTicket: %v", err)
	}
	return ticket
}

// MustGetTask reloads a task, including its queue mirror.
func MustGetTask(t testing.TB, store *queue.Store, id int64) *flow.Task {
	t.Helper()

	task, err := flow.NewEntities(store.DB()).GetTask(context.Background(), id)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	return task
}
