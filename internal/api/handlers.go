package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"flowq/internal/logging"
	"flowq/internal/queue"
	"flowq/internal/scheduler"
)

func (s *Server) handleListQueues(w http.ResponseWriter, r *http.Request) {
	queues, err := s.scheduler.ListQueuesByProject(r.Context(), chi.URLParam(r, "project"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, QueueListResponse{Queues: FromQueues(queues)})
}

func (s *Server) handleCreateQueue(w http.ResponseWriter, r *http.Request) {
	var req CreateQueueRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	q, err := s.scheduler.CreateQueue(r.Context(), scheduler.QueueSpec{
		ProjectID:         chi.URLParam(r, "project"),
		Name:              req.Name,
		Description:       req.Description,
		MaxParallelItems:  req.MaxParallelItems,
		ProcessingTimeout: time.Duration(req.ProcessingTimeoutSeconds) * time.Second,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, FromQueue(q))
}

func (s *Server) handleGetQueue(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	q, err := s.scheduler.GetQueue(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, FromQueue(q))
}

func (s *Server) handleUpdateQueue(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req UpdateQueueRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	patch := scheduler.QueuePatch{
		Name:             req.Name,
		Description:      req.Description,
		MaxParallelItems: req.MaxParallelItems,
	}
	if req.ProcessingTimeoutSeconds != nil {
		timeout := time.Duration(*req.ProcessingTimeoutSeconds) * time.Second
		patch.ProcessingTimeout = &timeout
	}
	q, err := s.scheduler.UpdateQueue(r.Context(), id, patch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, FromQueue(q))
}

func (s *Server) handleDeleteQueue(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.scheduler.DeleteQueue(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r, "id")
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		q, err := s.scheduler.SetQueueActive(r.Context(), id, active)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, FromQueue(q))
	}
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var statuses []queue.Status
	for _, value := range r.URL.Query()["status"] {
		for _, part := range strings.Split(value, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			status, ok := queue.ParseStatus(part)
			if !ok {
				s.writeError(w, r, fmt.Errorf("%w: unknown status %q", queue.ErrInvalidArgument, part))
				return
			}
			statuses = append(statuses, status)
		}
	}
	items, err := s.scheduler.ListItems(r.Context(), id, statuses...)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ItemListResponse{Items: FromQueueItems(items)})
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req EnqueueRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	item, err := s.scheduler.Enqueue(r.Context(), id, scheduler.EnqueueRequest{
		Type:                    queue.ItemType(strings.TrimSpace(req.Type)),
		ReferenceID:             req.ReferenceID,
		Title:                   req.Title,
		Description:             req.Description,
		Priority:                req.Priority,
		EstimatedProcessingTime: time.Duration(req.EstimatedProcessingSeconds) * time.Second,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, FromQueueItem(item))
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req ClaimRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	ctx := logging.WithAgentID(logging.WithQueueID(r.Context(), id), req.AgentID)
	item, err := s.scheduler.GetNextItem(ctx, id, req.AgentID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := ItemEnvelope{}
	if item != nil {
		dto := FromQueueItem(item)
		resp.Item = &dto
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	counts, err := s.scheduler.GetQueueStats(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, FromStatusCounts(counts))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	health, err := s.cleanup.GetQueueHealth(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, FromQueueHealth(health))
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	count, err := s.cleanup.ResetQueue(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Count: int64(count)})
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	item, err := s.scheduler.GetItem(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, FromQueueItem(item))
}

func (s *Server) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.scheduler.RemoveItem(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req CompleteRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	ctx := logging.WithItemID(r.Context(), id)
	item, err := s.scheduler.CompleteItem(ctx, id, scheduler.Result{
		Success: req.Success,
		Output:  req.Output,
		Error:   req.Error,
		AgentID: req.AgentID,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, FromQueueItem(item))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	item, err := s.scheduler.CancelItem(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, FromQueueItem(item))
}

func (s *Server) handleRequeue(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	item, err := s.scheduler.RequeueItem(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, FromQueueItem(item))
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	var req MoveRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	ref := queue.ItemRef{Type: queue.ItemType(strings.TrimSpace(req.Type)), ID: req.ReferenceID}
	item, err := s.scheduler.MoveItem(r.Context(), ref, req.TargetQueueID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := ItemEnvelope{}
	if item != nil {
		dto := FromQueueItem(item)
		resp.Item = &dto
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEnqueueTicket(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req TicketEnqueueRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	items, err := s.scheduler.EnqueueTicketWithAllTasks(r.Context(), id, req.QueueID, req.Priority)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ItemListResponse{Items: FromQueueItems(items)})
}
