package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"flowq/internal/flow"
	"flowq/internal/logging"
	"flowq/internal/queue"
	"flowq/internal/telemetry"
)

// EnqueueRequest describes work to add to a queue.
type EnqueueRequest struct {
	Type        queue.ItemType
	ReferenceID int64
	// Title falls back to the entity title, then to the reference itself.
	Title       string
	Description string
	// Priority defaults to queue.default_priority when zero. Lower is served first.
	Priority                int
	EstimatedProcessingTime time.Duration
}

// Enqueue adds a queued item for the referenced entity. An entity that
// already has a queued item in the same queue keeps that item and takes the
// new priority. An entity queued in another queue or in progress anywhere is
// rejected with queue.ErrInvalidStateTransition.
func (s *Service) Enqueue(ctx context.Context, queueID int64, req EnqueueRequest) (*queue.Item, error) {
	var item *queue.Item
	err := s.store.WithTx(ctx, func(tx *queue.Tx) error {
		q, err := tx.GetQueue(ctx, queueID)
		if err != nil {
			return err
		}
		item, err = s.enqueueTx(ctx, tx, q, req, s.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	telemetry.ItemsEnqueued.Inc()
	s.log(ctx).Info("item enqueued",
		logging.Int64(logging.FieldQueueID, queueID),
		logging.Int64(logging.FieldItemID, item.ID),
		logging.String("ref", item.Ref().String()),
		logging.Int("priority", item.Priority),
	)
	return item, nil
}

func (s *Service) enqueueTx(ctx context.Context, tx *queue.Tx, q *queue.Queue, req EnqueueRequest, now time.Time) (*queue.Item, error) {
	itemType, ok := queue.ParseItemType(string(req.Type))
	if !ok {
		return nil, fmt.Errorf("%w: unknown item type %q", queue.ErrInvalidArgument, req.Type)
	}
	if req.ReferenceID <= 0 {
		return nil, fmt.Errorf("%w: reference id must be positive", queue.ErrInvalidArgument)
	}
	if req.Priority < 0 {
		return nil, fmt.Errorf("%w: priority must not be negative", queue.ErrInvalidArgument)
	}
	if req.EstimatedProcessingTime < 0 {
		return nil, fmt.Errorf("%w: estimated processing time must not be negative", queue.ErrInvalidArgument)
	}
	priority := req.Priority
	if priority == 0 {
		priority = s.cfg.Queue.DefaultPriority
	}
	ref := queue.ItemRef{Type: itemType, ID: req.ReferenceID}

	active, err := tx.ActiveItemsForRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	for _, existing := range active {
		if existing.Status == queue.StatusInProgress {
			return nil, fmt.Errorf("%w: %s is in progress as item %d", queue.ErrInvalidStateTransition, ref, existing.ID)
		}
		if existing.QueueID != q.ID {
			return nil, fmt.Errorf("%w: %s is queued in queue %d; move it instead", queue.ErrInvalidStateTransition, ref, existing.QueueID)
		}
	}
	if len(active) > 0 {
		existing := active[0]
		if existing.Priority != priority {
			if _, err := tx.SetItemPriority(ctx, existing.ID, priority, now); err != nil {
				return nil, err
			}
			if existing, err = tx.GetItem(ctx, existing.ID); err != nil {
				return nil, err
			}
		}
		if err := flow.Sync(ctx, tx, s.mirror, existing, false); err != nil {
			return nil, err
		}
		return existing, nil
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		if title, err = flow.NewEntities(tx.DB()).Title(ctx, ref); err != nil {
			return nil, err
		}
	}
	if title == "" {
		title = ref.String()
	}

	item := &queue.Item{
		QueueID:                 q.ID,
		ItemType:                itemType,
		ItemID:                  req.ReferenceID,
		Title:                   title,
		Description:             strings.TrimSpace(req.Description),
		Priority:                priority,
		Status:                  queue.StatusQueued,
		EstimatedProcessingTime: req.EstimatedProcessingTime,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	if err := tx.InsertItem(ctx, item); err != nil {
		return nil, err
	}
	if err := flow.Sync(ctx, tx, s.mirror, item, false); err != nil {
		return nil, err
	}
	return item, nil
}

// EnqueueTicketWithAllTasks enqueues a ticket and each of its tasks that is
// not done or cancelled in one transaction. Any failure leaves nothing
// enqueued. The ticket item comes first in the result.
func (s *Service) EnqueueTicketWithAllTasks(ctx context.Context, ticketID, queueID int64, priority int) ([]*queue.Item, error) {
	var items []*queue.Item
	err := s.store.WithTx(ctx, func(tx *queue.Tx) error {
		items = nil
		q, err := tx.GetQueue(ctx, queueID)
		if err != nil {
			return err
		}
		entities := flow.NewEntities(tx.DB())
		ticket, err := entities.GetTicket(ctx, ticketID)
		if err != nil {
			return err
		}
		tasks, err := entities.ListOpenTasks(ctx, ticketID)
		if err != nil {
			return err
		}

		now := s.now()
		item, err := s.enqueueTx(ctx, tx, q, EnqueueRequest{
			Type:        queue.ItemTypeTicket,
			ReferenceID: ticket.ID,
			Title:       ticket.Title,
			Description: ticket.Description,
			Priority:    priority,
		}, now)
		if err != nil {
			return err
		}
		items = append(items, item)
		for _, task := range tasks {
			item, err := s.enqueueTx(ctx, tx, q, EnqueueRequest{
				Type:        queue.ItemTypeTask,
				ReferenceID: task.ID,
				Title:       task.Title,
				Description: task.Description,
				Priority:    priority,
			}, now)
			if err != nil {
				return fmt.Errorf("enqueue task %d: %w", task.ID, err)
			}
			items = append(items, item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	telemetry.ItemsEnqueued.Add(float64(len(items)))
	s.log(ctx).Info("ticket enqueued with tasks",
		logging.Int64(logging.FieldQueueID, queueID),
		logging.Int64("ticket_id", ticketID),
		logging.Int("items", len(items)),
	)
	return items, nil
}
