package scheduler_test

import (
	"context"
	"testing"
	"time"

	"flowq/internal/queue"
	"flowq/internal/scheduler"
	"flowq/internal/testsupport"
)

var epoch = time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)

type env struct {
	svc   *scheduler.Service
	store *queue.Store
	clock *testsupport.TickingClock
}

func newEnv(t *testing.T, opts ...testsupport.ConfigOption) *env {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)
	clock := testsupport.NewTickingClock(epoch, time.Second)
	svc, err := scheduler.New(cfg, store, nil, scheduler.WithClock(clock))
	if err != nil {
		t.Fatalf("scheduler.New: %v", err)
	}
	return &env{svc: svc, store: store, clock: clock}
}

func (e *env) queue(t *testing.T, name string, maxParallel int) *queue.Queue {
	t.Helper()
	q, err := e.svc.CreateQueue(context.Background(), scheduler.QueueSpec{ProjectID: "proj", Name: name, MaxParallelItems: maxParallel})
	if err != nil {
		t.Fatalf("CreateQueue: %v", err)
	}
	return q
}

func (e *env) enqueue(t *testing.T, queueID int64, itemType queue.ItemType, ref int64, priority int) *queue.Item {
	t.Helper()
	item, err := e.svc.Enqueue(context.Background(), queueID, scheduler.EnqueueRequest{
		Type:        itemType,
		ReferenceID: ref,
		Title:       "work",
		Priority:    priority,
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	return item
}

func (e *env) claim(t *testing.T, queueID int64, agent string) *queue.Item {
	t.Helper()
	item, err := e.svc.GetNextItem(context.Background(), queueID, agent)
	if err != nil {
		t.Fatalf("GetNextItem: %v", err)
	}
	return item
}
