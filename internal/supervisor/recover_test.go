package supervisor

import (
	"context"
	"testing"
	"time"

	"flowq/internal/queue"
	"flowq/internal/scheduler"
	"flowq/internal/testsupport"
)

func TestRecoverLosesToCompletionAfterScan(t *testing.T) {
	tests := []struct {
		name       string
		maxRetries int
	}{
		{"retry pending", 1},
		{"retries exhausted", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testsupport.NewConfig(t, testsupport.WithProcessingTimeout(60), testsupport.WithMaxRetries(tt.maxRetries))
			store := testsupport.MustOpenStore(t, cfg)
			clock := testsupport.NewClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
			svc, err := scheduler.New(cfg, store, nil, scheduler.WithClock(clock))
			if err != nil {
				t.Fatalf("scheduler.New: %v", err)
			}
			sup, err := New(cfg, store, nil, WithClock(clock))
			if err != nil {
				t.Fatalf("New: %v", err)
			}

			ctx := context.Background()
			q, err := svc.CreateQueue(ctx, scheduler.QueueSpec{ProjectID: "proj", Name: "agents"})
			if err != nil {
				t.Fatalf("CreateQueue: %v", err)
			}
			ticket := testsupport.MustCreateTicket(t, store, "proj", "slow")
			if _, err := svc.Enqueue(ctx, q.ID, scheduler.EnqueueRequest{Type: queue.ItemTypeTicket, ReferenceID: ticket.ID}); err != nil {
				t.Fatalf("Enqueue: %v", err)
			}
			claimed, err := svc.GetNextItem(ctx, q.ID, "agent-1")
			if err != nil || claimed == nil {
				t.Fatalf("GetNextItem: %v %v", claimed, err)
			}

			clock.Advance(10 * time.Minute)
			now := clock.Now()
			stale, err := store.ListStartedBefore(ctx, q.ID, now.Add(-time.Minute))
			if err != nil || len(stale) != 1 {
				t.Fatalf("ListStartedBefore: %d items, %v", len(stale), err)
			}

			if _, err := svc.CompleteItem(ctx, claimed.ID, scheduler.Result{Success: true, Output: "late but done", AgentID: "agent-1"}); err != nil {
				t.Fatalf("CompleteItem: %v", err)
			}

			got, err := sup.recover(ctx, stale[0], now)
			if err != nil {
				t.Fatalf("recover: %v", err)
			}
			if got != outcomeSkipped {
				t.Fatalf("expected the stale snapshot to be skipped, got outcome %d", got)
			}
			item, err := store.GetItem(ctx, claimed.ID)
			if err != nil {
				t.Fatalf("GetItem: %v", err)
			}
			if item.Status != queue.StatusCompleted || item.Output != "late but done" || item.RetryCount != 0 || item.ErrorMessage != "" {
				t.Fatalf("expected completion to stand, got %+v", item)
			}
			if mirror := testsupport.MustGetTicket(t, store, ticket.ID).Queue; mirror.Status != queue.StatusCompleted {
				t.Fatalf("expected mirror to stay completed, got %+v", mirror)
			}
		})
	}
}
