package supervisor_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"flowq/internal/queue"
	"flowq/internal/scheduler"
	"flowq/internal/supervisor"
	"flowq/internal/testsupport"
)

var epoch = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	svc   *scheduler.Service
	sup   *supervisor.Supervisor
	store *queue.Store
	clock *testsupport.Clock
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
	sup, err := supervisor.New(cfg, store, nil, supervisor.WithClock(clock))
	if err != nil {
		t.Fatalf("supervisor.New: %v", err)
	}
	return &fixture{svc: svc, sup: sup, store: store, clock: clock}
}

func (f *fixture) claimedTicket(t *testing.T, spec scheduler.QueueSpec) (*queue.Queue, *queue.Item, int64) {
	t.Helper()
	ctx := context.Background()
	q, err := f.svc.CreateQueue(ctx, spec)
	if err != nil {
		t.Fatalf("CreateQueue: %v", err)
	}
	ticket := testsupport.MustCreateTicket(t, f.store, "proj", "slow")
	if _, err := f.svc.Enqueue(ctx, q.ID, scheduler.EnqueueRequest{Type: queue.ItemTypeTicket, ReferenceID: ticket.ID}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	item, err := f.svc.GetNextItem(ctx, q.ID, "agent-1")
	if err != nil || item == nil {
		t.Fatalf("GetNextItem: %v %v", item, err)
	}
	return q, item, ticket.ID
}

func TestSweepRequeuesThenFails(t *testing.T) {
	f := newFixture(t, testsupport.WithProcessingTimeout(60), testsupport.WithMaxRetries(1))
	ctx := context.Background()
	q, item, ticketID := f.claimedTicket(t, scheduler.QueueSpec{ProjectID: "proj", Name: "agents"})

	f.clock.Advance(30 * time.Second)
	result, err := f.sup.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if result.Scanned != 0 {
		t.Fatalf("expected fresh item untouched, got %+v", result)
	}

	f.clock.Advance(31 * time.Second)
	result, err = f.sup.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if result.Retried != 1 {
		t.Fatalf("expected one retry, got %+v", result)
	}
	requeued, err := f.svc.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if requeued.Status != queue.StatusQueued || requeued.RetryCount != 1 || requeued.AgentID != "" || requeued.StartedAt != nil {
		t.Fatalf("unexpected requeued item: %+v", requeued)
	}
	if mirror := testsupport.MustGetTicket(t, f.store, ticketID).Queue; mirror.Status != queue.StatusQueued || mirror.AgentID != "" {
		t.Fatalf("unexpected mirror after retry: %+v", mirror)
	}

	again, err := f.svc.GetNextItem(ctx, q.ID, "agent-2")
	if err != nil || again == nil || again.ID != item.ID {
		t.Fatalf("expected the same item to be claimable again, got %+v %v", again, err)
	}
	f.clock.Advance(2 * time.Minute)
	result, err = f.sup.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if result.TimedOut != 1 {
		t.Fatalf("expected a timeout failure, got %+v", result)
	}
	failed, err := f.svc.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if failed.Status != queue.StatusFailed || failed.ErrorMessage != queue.TimeoutMessage {
		t.Fatalf("unexpected failed item: %+v", failed)
	}
	if mirror := testsupport.MustGetTicket(t, f.store, ticketID).Queue; mirror.Status != queue.StatusFailed || mirror.ErrorMessage != queue.TimeoutMessage {
		t.Fatalf("unexpected mirror after timeout: %+v", mirror)
	}

	_, err = f.svc.CompleteItem(ctx, item.ID, scheduler.Result{Success: true, AgentID: "agent-2"})
	if !errors.Is(err, queue.ErrTimeout) || queue.ErrorKind(err) != queue.KindTimeout {
		t.Fatalf("expected late completion to report the timeout, got %v", err)
	}
}

func TestSweepUsesQueueTimeoutOverride(t *testing.T) {
	f := newFixture(t, testsupport.WithProcessingTimeout(3600))
	ctx := context.Background()
	f.claimedTicket(t, scheduler.QueueSpec{ProjectID: "proj", Name: "fast", ProcessingTimeout: time.Minute})
	f.claimedTicket(t, scheduler.QueueSpec{ProjectID: "proj", Name: "slow"})

	f.clock.Advance(5 * time.Minute)
	result, err := f.sup.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if result.Scanned != 1 || result.Retried != 1 {
		t.Fatalf("expected only the overridden queue to time out, got %+v", result)
	}
}

func TestSweepIgnoresItemsCompletedBeforeScan(t *testing.T) {
	f := newFixture(t, testsupport.WithProcessingTimeout(60))
	ctx := context.Background()
	_, item, _ := f.claimedTicket(t, scheduler.QueueSpec{ProjectID: "proj", Name: "agents"})

	f.clock.Advance(10 * time.Minute)
	if _, err := f.svc.CompleteItem(ctx, item.ID, scheduler.Result{Success: true}); err != nil {
		t.Fatalf("CompleteItem: %v", err)
	}
	result, err := f.sup.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if result.Scanned != 0 {
		t.Fatalf("expected completed item ignored, got %+v", result)
	}
	done, _ := f.svc.GetItem(ctx, item.ID)
	if done.Status != queue.StatusCompleted {
		t.Fatalf("expected completion kept, got %s", done.Status)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.sup.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
