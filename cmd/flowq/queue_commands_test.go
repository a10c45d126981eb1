package main

import (
	"context"
	"encoding/json"
	"testing"

	"flowq/internal/api"
	"flowq/internal/queue"
)

func TestQueueCreateListShow(t *testing.T) {
	env := setupCLITestEnv(t)

	out := mustRunCLI(t, env, "queue", "create", "builds", "--project", "proj", "--max-parallel", "2", "--timeout", "90s")
	requireContains(t, out, "Created queue 1 (proj/builds)")

	out = mustRunCLI(t, env, "queue", "list", "--project", "proj")
	requireContains(t, out, "builds")
	requireContains(t, out, "Active")
	requireContains(t, out, "1m30s")

	out = mustRunCLI(t, env, "queue", "pause", "1")
	requireContains(t, out, "Paused queue 1")

	out = mustRunCLI(t, env, "queue", "show", "1")
	requireContains(t, out, "Max parallel")
	requireContains(t, out, "no")

	out = mustRunCLI(t, env, "queue", "update", "1", "--name", "renamed")
	requireContains(t, out, "Updated queue 1")

	q, err := env.store.GetQueue(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetQueue: %v", err)
	}
	if q.Name != "renamed" || q.IsActive || q.MaxParallelItems != 2 {
		t.Fatalf("unexpected queue after update: %+v", q)
	}
}

func TestQueueListJSON(t *testing.T) {
	env := setupCLITestEnv(t)
	mustRunCLI(t, env, "queue", "create", "a", "--project", "proj")
	mustRunCLI(t, env, "queue", "create", "b", "--project", "other")

	out := mustRunCLI(t, env, "--json", "queue", "list")
	var resp api.QueueListResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode: %v (%s)", err, out)
	}
	if len(resp.Queues) != 2 {
		t.Fatalf("expected 2 queues, got %+v", resp.Queues)
	}
	if resp.Queues[0].MaxParallelItems != 1 || !resp.Queues[0].IsActive {
		t.Fatalf("expected configured defaults, got %+v", resp.Queues[0])
	}
}

func TestQueueStatsHealthAndDelete(t *testing.T) {
	env := setupCLITestEnv(t)
	mustRunCLI(t, env, "queue", "create", "work", "--project", "proj")
	mustRunCLI(t, env, "item", "enqueue", "1", "chat", "7")
	mustRunCLI(t, env, "item", "claim", "1", "--agent", "agent-1")
	mustRunCLI(t, env, "item", "fail", "1", "--error", "broken")

	out := mustRunCLI(t, env, "queue", "stats", "1")
	requireContains(t, out, "Failed")
	requireContains(t, out, "Total")

	out = mustRunCLI(t, env, "queue", "health", "1")
	requireContains(t, out, "Queue 1 health")
	requireContains(t, out, "1 failed items can be requeued")

	out = mustRunCLI(t, env, "--json", "queue", "dead-letter", "1")
	var count api.CountResponse
	if err := json.Unmarshal([]byte(out), &count); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if count.Count != 0 {
		t.Fatalf("expected no dead-lettering below the retry threshold, got %d", count.Count)
	}

	out = mustRunCLI(t, env, "queue", "delete", "1")
	requireContains(t, out, "Deleted queue 1")

	_, _, err := runCLI(t, []string{"queue", "show", "1"}, env.configPath)
	if err == nil {
		t.Fatal("expected show of deleted queue to fail")
	}
	if queue.ErrorKind(err) != queue.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
	requireContains(t, describeError(err), "not found")
}

func TestQueueCreateRequiresProject(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, []string{"queue", "create", "orphan"}, env.configPath); err == nil {
		t.Fatal("expected missing --project to fail")
	}
}
