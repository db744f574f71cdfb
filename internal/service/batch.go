package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"notifyhub/internal/apperr"
	"notifyhub/internal/model"
)

// BatchRepo is the store surface of the batch lifecycle. Transitions are
// conditional updates; false means the batch was not in the required state.
type BatchRepo interface {
	Insert(ctx context.Context, b *model.Batch) error
	GetByID(ctx context.Context, id int64, includeDeleted bool) (*model.Batch, error)
	MarkScheduled(ctx context.Context, id int64, scheduledAt time.Time) (bool, error)
	MarkRunning(ctx context.Context, id int64, startedAt time.Time) (bool, error)
	MarkCompleted(ctx context.Context, id int64, completedAt time.Time, stats *model.DeliveryStats) (bool, error)
	MarkCanceled(ctx context.Context, id int64) (bool, error)
}

// BatchStatsSource aggregates delivery outcomes across a batch's
// notifications.
type BatchStatsSource interface {
	StatsByBatch(ctx context.Context, batchID int64) (*model.DeliveryStats, error)
}

// CreateBatchInput is the request shape for creating a batch. Batches start
// as drafts; nothing sends until they are scheduled and started.
type CreateBatchInput struct {
	Name            string          `json:"batch_name" binding:"required"`
	Kind            model.BatchKind `json:"batch_type" binding:"required"`
	TemplateID      int64           `json:"template_id" binding:"required"`
	TargetUserCount *int            `json:"target_user_count"`
	ScheduledAt     *time.Time      `json:"scheduled_send_time"`
	CreatedBy       *int64          `json:"created_by"`
}

type BatchService struct {
	repo      BatchRepo
	templates TemplateRepo
	stats     BatchStatsSource
	logger    *zap.Logger
	now       func() time.Time
}

func NewBatchService(repo BatchRepo, templates TemplateRepo, stats BatchStatsSource, logger *zap.Logger) *BatchService {
	return &BatchService{repo: repo, templates: templates, stats: stats, logger: logger, now: time.Now}
}

// Create registers a draft batch against an existing template.
func (s *BatchService) Create(ctx context.Context, in CreateBatchInput) (*model.Batch, error) {
	if in.Name == "" {
		return nil, &apperr.ValidationError{Field: "batch_name", Reason: "must not be empty"}
	}
	if !in.Kind.Valid() {
		return nil, &apperr.ValidationError{Field: "batch_type", Reason: fmt.Sprintf("unknown value %q", in.Kind)}
	}
	if _, err := s.templates.GetByID(ctx, in.TemplateID, false); err != nil {
		return nil, err
	}

	b := &model.Batch{
		Name:            in.Name,
		Kind:            in.Kind,
		TemplateID:      in.TemplateID,
		TargetUserCount: in.TargetUserCount,
		ScheduledAt:     in.ScheduledAt,
		Status:          model.BatchDraft,
		CreatedBy:       in.CreatedBy,
	}
	if err := s.repo.Insert(ctx, b); err != nil {
		return nil, err
	}

	s.logger.Info("Batch created",
		zap.Int64("batch_id", b.ID),
		zap.String("name", b.Name),
		zap.String("kind", string(b.Kind)),
	)
	return b, nil
}

func (s *BatchService) Get(ctx context.Context, id int64, includeDeleted bool) (*model.Batch, error) {
	return s.repo.GetByID(ctx, id, includeDeleted)
}

// Schedule moves a draft to scheduled. Only drafts can be scheduled; every
// other state fails with InvalidStateError.
func (s *BatchService) Schedule(ctx context.Context, id int64, scheduledAt time.Time) (*model.Batch, error) {
	ok, err := s.repo.MarkScheduled(ctx, id, scheduledAt)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.invalidState(ctx, id, "schedule")
	}

	s.logger.Info("Batch scheduled", zap.Int64("batch_id", id), zap.Time("scheduled_at", scheduledAt))
	return s.repo.GetByID(ctx, id, false)
}

// Start moves a scheduled batch to running.
func (s *BatchService) Start(ctx context.Context, id int64) (*model.Batch, error) {
	ok, err := s.repo.MarkRunning(ctx, id, s.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.invalidState(ctx, id, "start")
	}

	s.logger.Info("Batch started", zap.Int64("batch_id", id))
	return s.repo.GetByID(ctx, id, false)
}

// Complete moves a running batch to completed and freezes the delivery
// counters computed from its attempts.
func (s *BatchService) Complete(ctx context.Context, id int64) (*model.Batch, error) {
	stats, err := s.stats.StatsByBatch(ctx, id)
	if err != nil {
		return nil, err
	}
	stats.Finalize()

	ok, err := s.repo.MarkCompleted(ctx, id, s.now(), stats)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.invalidState(ctx, id, "complete")
	}

	s.logger.Info("Batch completed",
		zap.Int64("batch_id", id),
		zap.Int("delivered", stats.Delivered),
		zap.Int("failed", stats.Failed),
	)
	return s.repo.GetByID(ctx, id, false)
}

// Cancel stops a batch that has not completed. Completed batches cannot be
// canceled.
func (s *BatchService) Cancel(ctx context.Context, id int64) (*model.Batch, error) {
	ok, err := s.repo.MarkCanceled(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.invalidState(ctx, id, "cancel")
	}

	s.logger.Info("Batch canceled", zap.Int64("batch_id", id))
	return s.repo.GetByID(ctx, id, false)
}

// invalidState explains a conditional transition that matched no row. The
// state is read after the update failed, so a concurrent transition that beat
// this one is reported with the state it left behind, not a stale pre-read.
func (s *BatchService) invalidState(ctx context.Context, id int64, op string) error {
	b, err := s.repo.GetByID(ctx, id, false)
	if err != nil {
		return err
	}
	return &apperr.InvalidStateError{Entity: "batch", ID: id, State: string(b.Status), Op: op}
}

// Stats returns the live delivery aggregate for a batch, whatever its state.
func (s *BatchService) Stats(ctx context.Context, id int64) (*model.DeliveryStats, error) {
	if _, err := s.repo.GetByID(ctx, id, false); err != nil {
		return nil, err
	}
	stats, err := s.stats.StatsByBatch(ctx, id)
	if err != nil {
		return nil, err
	}
	stats.Finalize()
	return stats, nil
}
