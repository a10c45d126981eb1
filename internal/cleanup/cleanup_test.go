package cleanup_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"flowq/internal/cleanup"
	"flowq/internal/flow"
	"flowq/internal/queue"
	"flowq/internal/scheduler"
	"flowq/internal/testsupport"
)

var epoch = time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)

type fixture struct {
	svc     *scheduler.Service
	cleanup *cleanup.Service
	store   *queue.Store
	clock   *testsupport.Clock
	queue   *queue.Queue
}

func newFixture(t *testing.T, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)
	clock := testsupport.NewClock(epoch)
	svc, err := scheduler.New(cfg, store, nil, scheduler.WithClock(clock))
	if err != nil {
		t.Fatalf("scheduler.New: %v", err)
	}
	cl, err := cleanup.New(cfg, store, nil, cleanup.WithClock(clock))
	if err != nil {
		t.Fatalf("cleanup.New: %v", err)
	}
	q, err := svc.CreateQueue(context.Background(), scheduler.QueueSpec{ProjectID: "proj", Name: "agents", MaxParallelItems: 5})
	if err != nil {
		t.Fatalf("CreateQueue: %v", err)
	}
	return &fixture{svc: svc, cleanup: cl, store: store, clock: clock, queue: q}
}

func (f *fixture) run(t *testing.T, ref int64, success bool) *queue.Item {
	t.Helper()
	ctx := context.Background()
	if _, err := f.svc.Enqueue(ctx, f.queue.ID, scheduler.EnqueueRequest{Type: queue.ItemTypeChat, ReferenceID: ref}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	item, err := f.svc.GetNextItem(ctx, f.queue.ID, "agent")
	if err != nil || item == nil {
		t.Fatalf("GetNextItem: %v %v", item, err)
	}
	done, err := f.svc.CompleteItem(ctx, item.ID, scheduler.Result{Success: success, Error: "nope"})
	if err != nil {
		t.Fatalf("CompleteItem: %v", err)
	}
	return done
}

func TestClearCompletedItemsHonorsAge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	old := f.run(t, 1, true)
	f.clock.Advance(2 * time.Hour)
	recent := f.run(t, 2, true)
	failed := f.run(t, 3, false)

	removed, err := f.cleanup.ClearCompletedItems(ctx, f.queue.ID, time.Hour)
	if err != nil {
		t.Fatalf("ClearCompletedItems: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected one item removed, got %d", removed)
	}
	if _, err := f.svc.GetItem(ctx, old.ID); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("expected old item gone, got %v", err)
	}
	for _, id := range []int64{recent.ID, failed.ID} {
		if _, err := f.svc.GetItem(ctx, id); err != nil {
			t.Fatalf("expected item %d kept: %v", id, err)
		}
	}
	if _, err := f.cleanup.ClearCompletedItems(ctx, 999, 0); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResetQueueReleasesInProgressItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := testsupport.MustCreateTicket(t, f.store, "proj", "T")
	if _, err := f.svc.Enqueue(ctx, f.queue.ID, scheduler.EnqueueRequest{Type: queue.ItemTypeTicket, ReferenceID: ticket.ID}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	claimed, err := f.svc.GetNextItem(ctx, f.queue.ID, "agent")
	if err != nil || claimed == nil {
		t.Fatalf("GetNextItem: %v %v", claimed, err)
	}

	reset, err := f.cleanup.ResetQueue(ctx, f.queue.ID)
	if err != nil {
		t.Fatalf("ResetQueue: %v", err)
	}
	if reset != 1 {
		t.Fatalf("expected one reset, got %d", reset)
	}
	item, _ := f.svc.GetItem(ctx, claimed.ID)
	if item.Status != queue.StatusQueued || item.RetryCount != 0 || item.AgentID != "" {
		t.Fatalf("unexpected reset item: %+v", item)
	}
	mirror := testsupport.MustGetTicket(t, f.store, ticket.ID).Queue
	if mirror.Status != queue.StatusQueued || mirror.Position != 1 {
		t.Fatalf("unexpected mirror after reset: %+v", mirror)
	}
}

func TestDeadLetterExcludesFromFailedStats(t *testing.T) {
	f := newFixture(t, testsupport.WithDeadLetterAfter(1))
	ctx := context.Background()
	item := f.run(t, 1, false)
	requeued, err := f.svc.RequeueItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("RequeueItem: %v", err)
	}
	claimed, _ := f.svc.GetNextItem(ctx, f.queue.ID, "agent")
	if claimed == nil || claimed.ID != requeued.ID {
		t.Fatalf("expected requeued item claimed, got %+v", claimed)
	}
	if _, err := f.svc.CompleteItem(ctx, claimed.ID, scheduler.Result{Error: "again"}); err != nil {
		t.Fatalf("CompleteItem: %v", err)
	}
	f.run(t, 2, false)

	moved, err := f.cleanup.MoveFailedToDeadLetter(ctx, f.queue.ID)
	if err != nil {
		t.Fatalf("MoveFailedToDeadLetter: %v", err)
	}
	if moved != 1 {
		t.Fatalf("expected one dead-lettered item, got %d", moved)
	}
	stats, err := f.svc.GetQueueStats(ctx, f.queue.ID)
	if err != nil {
		t.Fatalf("GetQueueStats: %v", err)
	}
	if stats.Failed != 1 || stats.DeadLettered != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	dead, _ := f.svc.GetItem(ctx, item.ID)
	if !dead.DeadLettered || dead.Status != queue.StatusFailed || dead.IsRetryableFailure() {
		t.Fatalf("unexpected dead-lettered item: %+v", dead)
	}

	revived, err := f.svc.RequeueItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("RequeueItem dead-lettered: %v", err)
	}
	if revived.DeadLettered || revived.RetryCount != 2 {
		t.Fatalf("expected dead-letter flag cleared, got %+v", revived)
	}
}

func TestGetQueueHealth(t *testing.T) {
	f := newFixture(t, testsupport.WithProcessingTimeout(60))
	ctx := context.Background()
	f.run(t, 1, false)
	if _, err := f.svc.Enqueue(ctx, f.queue.ID, scheduler.EnqueueRequest{Type: queue.ItemTypePrompt, ReferenceID: 1}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := f.svc.GetNextItem(ctx, f.queue.ID, "agent"); err != nil {
		t.Fatalf("GetNextItem: %v", err)
	}
	if _, err := f.svc.Enqueue(ctx, f.queue.ID, scheduler.EnqueueRequest{Type: queue.ItemTypePrompt, ReferenceID: 2}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	f.clock.Advance(5 * time.Minute)

	health, err := f.cleanup.GetQueueHealth(ctx, f.queue.ID)
	if err != nil {
		t.Fatalf("GetQueueHealth: %v", err)
	}
	if health.Queued != 1 || health.InProgress != 1 || health.Failed != 1 || health.Stale != 1 {
		t.Fatalf("unexpected health counts: %+v", health)
	}
	if health.OldestQueuedAt == nil || health.OldestStartedAt == nil {
		t.Fatalf("expected oldest timestamps, got %+v", health)
	}
	if health.Healthy() || len(health.Issues) < 2 {
		t.Fatalf("expected stale and failed issues, got %v", health.Issues)
	}
	if _, err := f.cleanup.GetQueueHealth(ctx, 999); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReconcileRepairsMirrorsAndPrunesDanglingItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	db := f.store.DB()

	drifted := testsupport.MustCreateTicket(t, f.store, "proj", "drifted")
	orphanedMirror := testsupport.MustCreateTicket(t, f.store, "proj", "orphaned mirror")
	deleted := testsupport.MustCreateTicket(t, f.store, "proj", "deleted")
	for _, ticket := range []*flow.Ticket{drifted, orphanedMirror, deleted} {
		if _, err := f.svc.Enqueue(ctx, f.queue.ID, scheduler.EnqueueRequest{Type: queue.ItemTypeTicket, ReferenceID: ticket.ID}); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	if _, err := db.ExecContext(ctx, `UPDATE tickets SET queue_status = 'completed' WHERE id = ?`, drifted.ID); err != nil {
		t.Fatalf("drift mirror: %v", err)
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM queue_items WHERE item_type = 'ticket' AND item_id = ?`, orphanedMirror.ID); err != nil {
		t.Fatalf("delete item: %v", err)
	}
	if err := flow.NewEntities(db).DeleteTicket(ctx, deleted.ID); err != nil {
		t.Fatalf("DeleteTicket: %v", err)
	}

	result, err := f.cleanup.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if result.Violations != 2 || result.Reprojected != 1 || result.Cleared != 1 || result.Pruned != 1 {
		t.Fatalf("unexpected reconcile result: %+v", result)
	}
	if mirror := testsupport.MustGetTicket(t, f.store, drifted.ID).Queue; mirror.Status != queue.StatusQueued || mirror.Position != 1 {
		t.Fatalf("expected drifted mirror repaired, got %+v", mirror)
	}
	if testsupport.MustGetTicket(t, f.store, orphanedMirror.ID).Queue.InQueue() {
		t.Fatal("expected orphaned mirror cleared")
	}
	items, err := f.svc.ListItems(ctx, f.queue.ID)
	if err != nil || len(items) != 1 {
		t.Fatalf("expected only the drifted ticket item left, got %d (%v)", len(items), err)
	}

	again, err := f.cleanup.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile again: %v", err)
	}
	if again.Violations != 0 || again.Pruned != 0 {
		t.Fatalf("expected a clean second pass, got %+v", again)
	}
}

func TestReconcileIgnoresDeadLetteredHistory(t *testing.T) {
	f := newFixture(t, testsupport.WithDeadLetterAfter(1))
	ctx := context.Background()
	ticket := testsupport.MustCreateTicket(t, f.store, "proj", "flaky")

	broken, err := f.svc.Enqueue(ctx, f.queue.ID, scheduler.EnqueueRequest{Type: queue.ItemTypeTicket, ReferenceID: ticket.ID})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			if _, err := f.svc.RequeueItem(ctx, broken.ID); err != nil {
				t.Fatalf("RequeueItem: %v", err)
			}
		}
		f.clock.Advance(time.Second)
		claimed, err := f.svc.GetNextItem(ctx, f.queue.ID, "agent")
		if err != nil || claimed == nil || claimed.ID != broken.ID {
			t.Fatalf("GetNextItem: %+v %v", claimed, err)
		}
		f.clock.Advance(time.Second)
		if _, err := f.svc.CompleteItem(ctx, broken.ID, scheduler.Result{Error: "boom"}); err != nil {
			t.Fatalf("CompleteItem: %v", err)
		}
	}

	f.clock.Advance(time.Minute)
	fresh, err := f.svc.Enqueue(ctx, f.queue.ID, scheduler.EnqueueRequest{Type: queue.ItemTypeTicket, ReferenceID: ticket.ID})
	if err != nil {
		t.Fatalf("Enqueue again: %v", err)
	}
	f.clock.Advance(time.Hour)
	if moved, err := f.cleanup.MoveFailedToDeadLetter(ctx, f.queue.ID); err != nil || moved != 1 {
		t.Fatalf("MoveFailedToDeadLetter: moved=%d err=%v", moved, err)
	}

	for pass := 0; pass < 2; pass++ {
		result, err := f.cleanup.Reconcile(ctx)
		if err != nil {
			t.Fatalf("Reconcile: %v", err)
		}
		if result.Checked != 1 || result.Violations != 0 || result.Reprojected != 0 {
			t.Fatalf("pass %d: expected a clean reconcile, got %+v", pass, result)
		}
	}
	mirror := testsupport.MustGetTicket(t, f.store, ticket.ID).Queue
	if mirror.Status != queue.StatusQueued || mirror.ErrorMessage != "" || mirror.Position != 1 {
		t.Fatalf("expected mirror to follow queued item %d, got %+v", fresh.ID, mirror)
	}
}

func TestRunOncePurgesByRetention(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.run(t, 1, true)
	f.clock.Advance(8 * 24 * time.Hour)

	if err := f.cleanup.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if _, err := f.svc.GetItem(ctx, item.ID); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("expected retention purge to remove item, got %v", err)
	}
}
