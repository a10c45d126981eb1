package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"flowq/internal/api"
	"flowq/internal/cleanup"
	"flowq/internal/flow"
	"flowq/internal/queue"
	"flowq/internal/scheduler"
	"flowq/internal/testsupport"
)

type harness struct {
	handler http.Handler
	store   *queue.Store
	token   string
}

func newHarness(t *testing.T, token string) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithAPIToken(token))
	store := testsupport.MustOpenStore(t, cfg)
	svc, err := scheduler.New(cfg, store, nil)
	if err != nil {
		t.Fatalf("scheduler.New: %v", err)
	}
	maint, err := cleanup.New(cfg, store, nil)
	if err != nil {
		t.Fatalf("cleanup.New: %v", err)
	}
	srv, err := api.New(svc, maint, cfg.Paths.APIToken, nil)
	if err != nil {
		t.Fatalf("api.New: %v", err)
	}
	return &harness{handler: srv.Router(), store: store, token: token}
}

func (h *harness) do(t *testing.T, method, path string, body any, out any) int {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	if out != nil && rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("decode %s %s: %v (%s)", method, path, err, rec.Body.String())
		}
	}
	return rec.Code
}

func TestQueueLifecycleOverHTTP(t *testing.T) {
	h := newHarness(t, "")

	var created api.Queue
	if code := h.do(t, http.MethodPost, "/api/projects/proj/queues", api.CreateQueueRequest{Name: "agents", MaxParallelItems: 1}, &created); code != http.StatusCreated {
		t.Fatalf("create queue: status %d", code)
	}
	if created.ID == 0 || !created.IsActive || created.ProjectID != "proj" {
		t.Fatalf("unexpected queue: %+v", created)
	}
	base := "/api/queues/" + itoa(created.ID)

	var list api.QueueListResponse
	if code := h.do(t, http.MethodGet, "/api/projects/proj/queues", nil, &list); code != http.StatusOK || len(list.Queues) != 1 {
		t.Fatalf("list queues: status %d, %+v", code, list)
	}

	for _, ref := range []struct {
		id       int64
		priority int
	}{{1, 5}, {2, 1}} {
		var item api.QueueItem
		code := h.do(t, http.MethodPost, base+"/items", api.EnqueueRequest{Type: "chat", ReferenceID: ref.id, Title: "chat", Priority: ref.priority}, &item)
		if code != http.StatusCreated {
			t.Fatalf("enqueue: status %d", code)
		}
	}

	var claim api.ItemEnvelope
	if code := h.do(t, http.MethodPost, base+"/claim", api.ClaimRequest{AgentID: "agent-1"}, &claim); code != http.StatusOK {
		t.Fatalf("claim: status %d", code)
	}
	if claim.Item == nil || claim.Item.ItemID != 2 || claim.Item.Status != "in_progress" {
		t.Fatalf("expected chat 2 claimed, got %+v", claim.Item)
	}
	var empty api.ItemEnvelope
	if code := h.do(t, http.MethodPost, base+"/claim", api.ClaimRequest{AgentID: "agent-2"}, &empty); code != http.StatusOK || empty.Item != nil {
		t.Fatalf("expected empty claim at the parallel limit, got %d %+v", code, empty.Item)
	}

	itemPath := "/api/items/" + itoa(claim.Item.ID)
	var failed api.QueueItem
	if code := h.do(t, http.MethodPost, itemPath+"/complete", api.CompleteRequest{Success: false, Error: "boom"}, &failed); code != http.StatusOK {
		t.Fatalf("complete: status %d", code)
	}
	if failed.Status != "failed" || failed.ErrorMessage != "boom" {
		t.Fatalf("unexpected failed item: %+v", failed)
	}
	var conflict api.ErrorResponse
	if code := h.do(t, http.MethodPost, itemPath+"/complete", api.CompleteRequest{Success: true}, &conflict); code != http.StatusConflict {
		t.Fatalf("expected 409 on second completion, got %d", code)
	}
	if conflict.Kind != string(queue.KindInvalidState) {
		t.Fatalf("unexpected error kind: %+v", conflict)
	}

	var stats api.QueueStats
	if code := h.do(t, http.MethodGet, base+"/stats", nil, &stats); code != http.StatusOK {
		t.Fatalf("stats: status %d", code)
	}
	if stats.Queued != 1 || stats.Failed != 1 || stats.Total != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	var health api.QueueHealth
	if code := h.do(t, http.MethodGet, base+"/health", nil, &health); code != http.StatusOK || health.Healthy {
		t.Fatalf("expected unhealthy queue with a failed item, got %d %+v", code, health)
	}

	var paused api.Queue
	if code := h.do(t, http.MethodPost, base+"/pause", nil, &paused); code != http.StatusOK || paused.IsActive {
		t.Fatalf("pause: %d %+v", code, paused)
	}

	if code := h.do(t, http.MethodDelete, base, nil, nil); code != http.StatusNoContent {
		t.Fatalf("delete: status %d", code)
	}
	if code := h.do(t, http.MethodGet, base, nil, nil); code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", code)
	}
}

func TestErrorMapping(t *testing.T) {
	h := newHarness(t, "")

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"missing queue", http.MethodGet, "/api/queues/42", nil, http.StatusNotFound},
		{"bad id", http.MethodGet, "/api/queues/abc", nil, http.StatusBadRequest},
		{"empty name", http.MethodPost, "/api/projects/proj/queues", api.CreateQueueRequest{}, http.StatusBadRequest},
		{"unknown status filter", http.MethodGet, "/api/queues/1/items?status=bogus", nil, http.StatusBadRequest},
		{"move without queued item", http.MethodPost, "/api/move", api.MoveRequest{Type: "chat", ReferenceID: 9}, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code := h.do(t, tt.method, tt.path, tt.body, nil); code != tt.want {
				t.Fatalf("status = %d, want %d", code, tt.want)
			}
		})
	}
}

func TestBearerTokenRequired(t *testing.T) {
	h := newHarness(t, "s3cret")

	req := httptest.NewRequest(http.MethodGet, "/api/projects/proj/queues", nil)
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/projects/proj/queues", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", rec.Code)
	}

	if code := h.do(t, http.MethodGet, "/api/projects/proj/queues", nil, nil); code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", code)
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec = httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "ok") {
		t.Fatalf("expected open healthz, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec = httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "flowq_") {
		t.Fatalf("expected open metrics with flowq series, got %d", rec.Code)
	}
}

func TestEnqueueTicketAndMove(t *testing.T) {
	h := newHarness(t, "")

	var q1, q2 api.Queue
	h.do(t, http.MethodPost, "/api/projects/proj/queues", api.CreateQueueRequest{Name: "one"}, &q1)
	h.do(t, http.MethodPost, "/api/projects/proj/queues", api.CreateQueueRequest{Name: "two"}, &q2)

	ticket := testsupport.MustCreateTicket(t, h.store, "proj", "Parent")
	testsupport.MustCreateTask(t, h.store, ticket.ID, "child", flow.TaskTodo)

	var enqueued api.ItemListResponse
	code := h.do(t, http.MethodPost, "/api/tickets/"+itoa(ticket.ID)+"/enqueue", api.TicketEnqueueRequest{QueueID: q1.ID, Priority: 2}, &enqueued)
	if code != http.StatusCreated || len(enqueued.Items) != 2 {
		t.Fatalf("enqueue ticket: %d %+v", code, enqueued)
	}

	var moved api.ItemEnvelope
	code = h.do(t, http.MethodPost, "/api/move", api.MoveRequest{Type: "ticket", ReferenceID: ticket.ID, TargetQueueID: q2.ID}, &moved)
	if code != http.StatusOK || moved.Item == nil || moved.Item.QueueID != q2.ID {
		t.Fatalf("move: %d %+v", code, moved.Item)
	}
	entity := testsupport.MustGetTicket(t, h.store, ticket.ID)
	if entity.Queue.QueueID != q2.ID {
		t.Fatalf("expected ticket mirror in queue two, got %+v", entity.Queue)
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
