package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"flowq/internal/logging"
	"flowq/internal/queue"
)

// QueueSpec describes a queue to create.
type QueueSpec struct {
	ProjectID   string
	Name        string
	Description string
	// MaxParallelItems defaults to queue.default_max_parallel when zero.
	MaxParallelItems  int
	ProcessingTimeout time.Duration
}

// QueuePatch carries optional queue updates; nil fields are left unchanged.
type QueuePatch struct {
	Name              *string
	Description       *string
	MaxParallelItems  *int
	ProcessingTimeout *time.Duration
}

// CreateQueue creates an active queue.
func (s *Service) CreateQueue(ctx context.Context, spec QueueSpec) (*queue.Queue, error) {
	projectID := strings.TrimSpace(spec.ProjectID)
	if projectID == "" {
		return nil, fmt.Errorf("%w: project id is required", queue.ErrInvalidArgument)
	}
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: queue name is required", queue.ErrInvalidArgument)
	}
	maxParallel := spec.MaxParallelItems
	if maxParallel == 0 {
		maxParallel = s.cfg.Queue.DefaultMaxParallel
	}
	if maxParallel < 1 {
		return nil, fmt.Errorf("%w: max parallel items must be at least 1", queue.ErrInvalidArgument)
	}
	if spec.ProcessingTimeout < 0 {
		return nil, fmt.Errorf("%w: processing timeout must not be negative", queue.ErrInvalidArgument)
	}

	now := s.now()
	q := &queue.Queue{
		ProjectID:         projectID,
		Name:              name,
		Description:       strings.TrimSpace(spec.Description),
		MaxParallelItems:  maxParallel,
		IsActive:          true,
		ProcessingTimeout: spec.ProcessingTimeout,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.store.InsertQueue(ctx, q); err != nil {
		return nil, err
	}
	s.log(ctx).Info("queue created",
		logging.Int64(logging.FieldQueueID, q.ID),
		logging.String("project_id", q.ProjectID),
		logging.String("name", q.Name),
		logging.Int("max_parallel_items", q.MaxParallelItems),
	)
	return q, nil
}

// GetQueue returns a queue or queue.ErrNotFound.
func (s *Service) GetQueue(ctx context.Context, id int64) (*queue.Queue, error) {
	return s.store.GetQueue(ctx, id)
}

// ListQueuesByProject returns a project's queues in creation order.
func (s *Service) ListQueuesByProject(ctx context.Context, projectID string) ([]*queue.Queue, error) {
	return s.store.ListQueuesByProject(ctx, strings.TrimSpace(projectID))
}

// ListQueues returns every queue.
func (s *Service) ListQueues(ctx context.Context) ([]*queue.Queue, error) {
	return s.store.ListQueues(ctx)
}

// UpdateQueue applies patch to a queue. Lowering max_parallel_items does not
// interrupt items already in progress.
func (s *Service) UpdateQueue(ctx context.Context, id int64, patch QueuePatch) (*queue.Queue, error) {
	var updated *queue.Queue
	err := s.store.WithTx(ctx, func(tx *queue.Tx) error {
		q, err := tx.GetQueue(ctx, id)
		if err != nil {
			return err
		}
		if patch.Name != nil {
			name := strings.TrimSpace(*patch.Name)
			if name == "" {
				return fmt.Errorf("%w: queue name is required", queue.ErrInvalidArgument)
			}
			q.Name = name
		}
		if patch.Description != nil {
			q.Description = strings.TrimSpace(*patch.Description)
		}
		if patch.MaxParallelItems != nil {
			if *patch.MaxParallelItems < 1 {
				return fmt.Errorf("%w: max parallel items must be at least 1", queue.ErrInvalidArgument)
			}
			q.MaxParallelItems = *patch.MaxParallelItems
		}
		if patch.ProcessingTimeout != nil {
			if *patch.ProcessingTimeout < 0 {
				return fmt.Errorf("%w: processing timeout must not be negative", queue.ErrInvalidArgument)
			}
			q.ProcessingTimeout = *patch.ProcessingTimeout
		}
		q.UpdatedAt = s.now()
		if err := tx.UpdateQueue(ctx, q); err != nil {
			return err
		}
		updated = q
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// SetQueueActive pauses or resumes claiming. Items already in progress keep
// running while a queue is paused.
func (s *Service) SetQueueActive(ctx context.Context, id int64, active bool) (*queue.Queue, error) {
	var updated *queue.Queue
	err := s.store.WithTx(ctx, func(tx *queue.Tx) error {
		q, err := tx.GetQueue(ctx, id)
		if err != nil {
			return err
		}
		if q.IsActive == active {
			updated = q
			return nil
		}
		q.IsActive = active
		q.UpdatedAt = s.now()
		if err := tx.UpdateQueue(ctx, q); err != nil {
			return err
		}
		updated = q
		return nil
	})
	if err != nil {
		return nil, err
	}
	event := "queue resumed"
	if !active {
		event = "queue paused"
	}
	s.log(ctx).Info(event, logging.Int64(logging.FieldQueueID, id))
	return updated, nil
}

// DeleteQueue removes a queue with all of its items and detaches every entity
// that pointed at it.
func (s *Service) DeleteQueue(ctx context.Context, id int64) error {
	err := s.store.WithTx(ctx, func(tx *queue.Tx) error {
		if _, err := tx.GetQueue(ctx, id); err != nil {
			return err
		}
		if err := s.mirror.ClearQueue(ctx, tx.DB(), id); err != nil {
			return err
		}
		return tx.DeleteQueue(ctx, id)
	})
	if err != nil {
		return err
	}
	s.log(ctx).Info("queue deleted", logging.Int64(logging.FieldQueueID, id))
	return nil
}

// GetQueueStats counts a queue's items by status.
func (s *Service) GetQueueStats(ctx context.Context, id int64) (queue.StatusCounts, error) {
	if _, err := s.store.GetQueue(ctx, id); err != nil {
		return queue.StatusCounts{}, err
	}
	return s.store.QueueStats(ctx, id)
}
