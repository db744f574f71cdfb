package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"notifyhub/internal/apperr"
	"notifyhub/internal/model"
)

const batchColumns = `id, batch_name, batch_type, template_id, target_user_count,
	scheduled_send_time, batch_status, sent_count, failed_count, bounce_count, success_rate,
	started_at, completed_at, created_by, created_at, updated_at, is_deleted, deleted_at`

type BatchRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewBatchRepository(db *pgxpool.Pool, logger *zap.Logger) *BatchRepository {
	return &BatchRepository{db: db, logger: logger}
}

func (r *BatchRepository) Insert(ctx context.Context, b *model.Batch) error {
	query := `
		INSERT INTO notification_batches
			(batch_name, batch_type, template_id, target_user_count, scheduled_send_time, batch_status, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		b.Name, string(b.Kind), b.TemplateID, b.TargetUserCount, b.ScheduledAt, string(b.Status), b.CreatedBy,
	).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to insert batch", zap.String("name", b.Name), zap.Error(err))
		return fmt.Errorf("failed to insert batch: %w", err)
	}
	return nil
}

func (r *BatchRepository) GetByID(ctx context.Context, id int64, includeDeleted bool) (*model.Batch, error) {
	query := fmt.Sprintf(`SELECT %s FROM notification_batches WHERE id = $1`, batchColumns)
	if !includeDeleted {
		query += ` AND is_deleted = FALSE`
	}

	b, err := scanBatch(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &apperr.NotFoundError{Entity: "batch", ID: id}
		}
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}
	return b, nil
}

// MarkScheduled moves draft -> scheduled. Returns false when the batch was no
// longer a draft (concurrent scheduling).
func (r *BatchRepository) MarkScheduled(ctx context.Context, id int64, scheduledAt time.Time) (bool, error) {
	query := `
		UPDATE notification_batches
		SET batch_status = 'scheduled', scheduled_send_time = $2, updated_at = NOW()
		WHERE id = $1 AND batch_status = 'draft' AND is_deleted = FALSE
	`
	tag, err := r.db.Exec(ctx, query, id, scheduledAt)
	if err != nil {
		return false, fmt.Errorf("failed to schedule batch: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkRunning moves scheduled -> running and stamps started_at.
func (r *BatchRepository) MarkRunning(ctx context.Context, id int64, startedAt time.Time) (bool, error) {
	query := `
		UPDATE notification_batches
		SET batch_status = 'running', started_at = $2, updated_at = NOW()
		WHERE id = $1 AND batch_status = 'scheduled' AND is_deleted = FALSE
	`
	tag, err := r.db.Exec(ctx, query, id, startedAt)
	if err != nil {
		return false, fmt.Errorf("failed to start batch: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkCompleted moves running -> completed and freezes the final counters.
func (r *BatchRepository) MarkCompleted(ctx context.Context, id int64, completedAt time.Time, stats *model.DeliveryStats) (bool, error) {
	query := `
		UPDATE notification_batches
		SET batch_status = 'completed', completed_at = $2,
		    sent_count = $3, failed_count = $4, success_rate = $5, updated_at = NOW()
		WHERE id = $1 AND batch_status = 'running' AND is_deleted = FALSE
	`
	tag, err := r.db.Exec(ctx, query, id, completedAt, stats.Delivered, stats.Failed, stats.SuccessRate)
	if err != nil {
		return false, fmt.Errorf("failed to complete batch: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkCanceled cancels a batch that has not completed yet.
func (r *BatchRepository) MarkCanceled(ctx context.Context, id int64) (bool, error) {
	query := `
		UPDATE notification_batches
		SET batch_status = 'canceled', updated_at = NOW()
		WHERE id = $1 AND batch_status IN ('draft', 'scheduled', 'running') AND is_deleted = FALSE
	`
	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to cancel batch: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func scanBatch(row pgx.Row) (*model.Batch, error) {
	var b model.Batch
	var kind, status string
	err := row.Scan(
		&b.ID, &b.Name, &kind, &b.TemplateID, &b.TargetUserCount,
		&b.ScheduledAt, &status, &b.SentCount, &b.FailedCount, &b.BounceCount, &b.SuccessRate,
		&b.StartedAt, &b.CompletedAt, &b.CreatedBy, &b.CreatedAt, &b.UpdatedAt, &b.IsDeleted, &b.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	b.Kind = model.BatchKind(kind)
	b.Status = model.BatchStatus(status)
	return &b, nil
}
