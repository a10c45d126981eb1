package scheduler_test

import (
	"context"
	"errors"
	"testing"

	"flowq/internal/flow"
	"flowq/internal/queue"
	"flowq/internal/testsupport"
)

func TestEnqueueTicketWithTasksThenMoveTicketOnly(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	q1 := e.queue(t, "one", 1)
	q2 := e.queue(t, "two", 1)

	ticket := testsupport.MustCreateTicket(t, e.store, "proj", "Parent")
	t1 := testsupport.MustCreateTask(t, e.store, ticket.ID, "first", flow.TaskTodo)
	t2 := testsupport.MustCreateTask(t, e.store, ticket.ID, "second", flow.TaskInProgress)
	done := testsupport.MustCreateTask(t, e.store, ticket.ID, "shipped", flow.TaskDone)

	items, err := e.svc.EnqueueTicketWithAllTasks(ctx, ticket.ID, q1.ID, 3)
	if err != nil {
		t.Fatalf("EnqueueTicketWithAllTasks: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	if items[0].Ref() != ticket.Ref() {
		t.Fatalf("expected ticket first, got %s", items[0].Ref())
	}
	for _, item := range items {
		if item.Priority != 3 || item.QueueID != q1.ID {
			t.Fatalf("unexpected item: %+v", item)
		}
	}
	if testsupport.MustGetTask(t, e.store, done.ID).Queue.InQueue() {
		t.Fatal("expected done task to stay out of the queue")
	}

	moved, err := e.svc.MoveItem(ctx, ticket.Ref(), q2.ID)
	if err != nil {
		t.Fatalf("MoveItem: %v", err)
	}
	if moved.QueueID != q2.ID || moved.Priority != 3 || moved.Title != "Parent" {
		t.Fatalf("unexpected moved item: %+v", moved)
	}
	if mirror := testsupport.MustGetTicket(t, e.store, ticket.ID).Queue; mirror.QueueID != q2.ID || mirror.Position != 1 {
		t.Fatalf("expected ticket mirror in queue two, got %+v", mirror)
	}
	for _, task := range []*flow.Task{t1, t2} {
		mirror := testsupport.MustGetTask(t, e.store, task.ID).Queue
		if mirror.QueueID != q1.ID || mirror.Status != queue.StatusQueued {
			t.Fatalf("expected task %d to stay in queue one, got %+v", task.ID, mirror)
		}
	}
	if pos := testsupport.MustGetTask(t, e.store, t1.ID).Queue.Position; pos != 1 {
		t.Fatalf("expected first task renumbered to position 1, got %d", pos)
	}
	left, err := e.svc.ListItems(ctx, q1.ID)
	if err != nil || len(left) != 2 {
		t.Fatalf("expected 2 items left in queue one, got %d (%v)", len(left), err)
	}
}

func TestEnqueueTicketWithTasksRollsBack(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	q1 := e.queue(t, "one", 1)
	q2 := e.queue(t, "two", 1)

	ticket := testsupport.MustCreateTicket(t, e.store, "proj", "Parent")
	busy := testsupport.MustCreateTask(t, e.store, ticket.ID, "elsewhere", flow.TaskTodo)
	e.enqueue(t, q2.ID, queue.ItemTypeTask, busy.ID, 0)

	_, err := e.svc.EnqueueTicketWithAllTasks(ctx, ticket.ID, q1.ID, 0)
	if !errors.Is(err, queue.ErrInvalidStateTransition) {
		t.Fatalf("expected ErrInvalidStateTransition, got %v", err)
	}
	items, err := e.svc.ListItems(ctx, q1.ID)
	if err != nil || len(items) != 0 {
		t.Fatalf("expected nothing enqueued after rollback, got %d (%v)", len(items), err)
	}
	if testsupport.MustGetTicket(t, e.store, ticket.ID).Queue.InQueue() {
		t.Fatal("expected ticket mirror untouched after rollback")
	}
	if _, err := e.svc.EnqueueTicketWithAllTasks(ctx, 999, q1.ID, 0); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing ticket, got %v", err)
	}
}

func TestMoveToNoQueueAndMoveWithoutQueuedItem(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	q := e.queue(t, "agents", 1)
	ticket := testsupport.MustCreateTicket(t, e.store, "proj", "T")
	e.enqueue(t, q.ID, queue.ItemTypeTicket, ticket.ID, 0)

	moved, err := e.svc.MoveItem(ctx, ticket.Ref(), 0)
	if err != nil {
		t.Fatalf("MoveItem: %v", err)
	}
	if moved != nil {
		t.Fatalf("expected no item when leaving all queues, got %+v", moved)
	}
	if testsupport.MustGetTicket(t, e.store, ticket.ID).Queue.InQueue() {
		t.Fatal("expected mirror cleared")
	}
	if _, err := e.svc.MoveItem(ctx, ticket.Ref(), q.ID); !errors.Is(err, queue.ErrInvalidStateTransition) {
		t.Fatalf("expected ErrInvalidStateTransition, got %v", err)
	}

	e.enqueue(t, q.ID, queue.ItemTypeTicket, ticket.ID, 0)
	if _, err := e.svc.MoveItem(ctx, ticket.Ref(), 999); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing target, got %v", err)
	}
}
