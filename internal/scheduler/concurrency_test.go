package scheduler_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"flowq/internal/queue"
)

func claimConcurrently(t *testing.T, e *env, queueID int64, claimants int) []*queue.Item {
	t.Helper()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claimed []*queue.Item
		errs    []error
	)
	start := make(chan struct{})
	for i := 0; i < claimants; i++ {
		wg.Add(1)
		go func(agent string) {
			defer wg.Done()
			<-start
			item, err := e.svc.GetNextItem(context.Background(), queueID, agent)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if item != nil {
				claimed = append(claimed, item)
			}
		}(fmt.Sprintf("agent-%d", i))
	}
	close(start)
	wg.Wait()
	if len(errs) > 0 {
		t.Fatalf("concurrent claims failed: %v", errs)
	}
	return claimed
}

func TestAtMostOneClaimPerItem(t *testing.T) {
	e := newEnv(t)
	q := e.queue(t, "agents", 10)
	e.enqueue(t, q.ID, queue.ItemTypeChat, 1, 0)

	claimed := claimConcurrently(t, e, q.ID, 8)
	if len(claimed) != 1 {
		t.Fatalf("expected exactly one claim, got %d", len(claimed))
	}
}

func TestConcurrentClaimsRespectParallelLimit(t *testing.T) {
	e := newEnv(t)
	q := e.queue(t, "agents", 2)
	for ref := int64(1); ref <= 6; ref++ {
		e.enqueue(t, q.ID, queue.ItemTypePrompt, ref, 0)
	}

	claimed := claimConcurrently(t, e, q.ID, 6)
	if len(claimed) != 2 {
		t.Fatalf("expected 2 claims under max_parallel_items=2, got %d", len(claimed))
	}
	if claimed[0].ID == claimed[1].ID {
		t.Fatalf("expected distinct items, both claims got %d", claimed[0].ID)
	}

	inProgress, err := e.svc.ListItems(context.Background(), q.ID, queue.StatusInProgress)
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if len(inProgress) != 2 {
		t.Fatalf("expected 2 in_progress rows, got %d", len(inProgress))
	}
	for _, item := range inProgress {
		if item.AgentID == "" || item.StartedAt == nil {
			t.Fatalf("claimed item missing agent or start: %+v", item)
		}
	}
}
