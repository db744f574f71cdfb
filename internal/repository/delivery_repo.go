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

const attemptColumns = `id, notification_id, channel_id, delivery_channel, delivery_status,
	status_code, COALESCE(error_message, ''), retry_count, max_retries, next_retry_at,
	delivered_at, COALESCE(external_message_id, ''), COALESCE(claimed_by, ''), lease_expires_at,
	created_at, updated_at, is_deleted, deleted_at`

type DeliveryRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewDeliveryRepository(db *pgxpool.Pool, logger *zap.Logger) *DeliveryRepository {
	return &DeliveryRepository{db: db, logger: logger}
}

func insertAttemptTx(ctx context.Context, tx pgx.Tx, a *model.DeliveryAttempt) error {
	query := `
		INSERT INTO delivery_attempts
			(notification_id, channel_id, delivery_channel, delivery_status, retry_count, max_retries)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`
	err := tx.QueryRow(ctx, query,
		a.NotificationID, a.ChannelID, string(a.ChannelKind), string(a.Status), a.RetryCount, a.MaxRetries,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert delivery attempt: %w", err)
	}
	return nil
}

func (r *DeliveryRepository) GetByID(ctx context.Context, id int64) (*model.DeliveryAttempt, error) {
	query := fmt.Sprintf(`SELECT %s FROM delivery_attempts WHERE id = $1 AND is_deleted = FALSE`, attemptColumns)

	a, err := scanAttempt(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &apperr.NotFoundError{Entity: "delivery attempt", ID: id}
		}
		return nil, fmt.Errorf("failed to get delivery attempt: %w", err)
	}
	return a, nil
}

// GetPending returns attempts eligible for dispatch at `now`: pending or
// retrying, due (next_retry_at unset or elapsed), oldest due first. It
// performs no state change; callers must Claim before completing an attempt.
func (r *DeliveryRepository) GetPending(ctx context.Context, now time.Time, limit int) ([]*model.DeliveryAttempt, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM delivery_attempts
		WHERE delivery_status IN ('pending', 'retrying')
		  AND (next_retry_at IS NULL OR next_retry_at <= $1)
		  AND is_deleted = FALSE
		ORDER BY COALESCE(next_retry_at, created_at) ASC
		LIMIT $2
	`, attemptColumns)

	rows, err := r.db.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending deliveries: %w", err)
	}
	defer rows.Close()

	var attempts []*model.DeliveryAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan delivery attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// Claim takes the dispatch lease on an attempt. The conditional update only
// matches a non-terminal attempt whose previous lease has lapsed, so two
// workers can never both hold a live lease on the same attempt.
func (r *DeliveryRepository) Claim(ctx context.Context, id int64, workerID string, now, leaseUntil time.Time) (bool, error) {
	query := `
		UPDATE delivery_attempts
		SET claimed_by = $2, lease_expires_at = $4, updated_at = NOW()
		WHERE id = $1
		  AND delivery_status IN ('pending', 'retrying')
		  AND (lease_expires_at IS NULL OR lease_expires_at <= $3)
		  AND is_deleted = FALSE
	`
	tag, err := r.db.Exec(ctx, query, id, workerID, now, leaseUntil)
	if err != nil {
		return false, fmt.Errorf("failed to claim delivery attempt: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkDelivered transitions pending/retrying -> delivered. Returns false when
// the conditional update matched no row: the attempt was already terminal, or
// a non-empty workerID no longer holds the claim.
func (r *DeliveryRepository) MarkDelivered(ctx context.Context, id int64, workerID string, deliveredAt time.Time, externalMessageID string) (bool, error) {
	query := `
		UPDATE delivery_attempts
		SET delivery_status = 'delivered', delivered_at = $3,
		    external_message_id = NULLIF($4, ''), next_retry_at = NULL,
		    claimed_by = NULL, lease_expires_at = NULL, updated_at = NOW()
		WHERE id = $1 AND delivery_status IN ('pending', 'retrying') AND is_deleted = FALSE
		  AND ($2 = '' OR claimed_by = $2)
	`
	tag, err := r.db.Exec(ctx, query, id, workerID, deliveredAt, externalMessageID)
	if err != nil {
		return false, fmt.Errorf("failed to mark delivered: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkRetrying transitions pending/retrying -> retrying with the next retry
// schedule. Returns false when the attempt was already terminal or the claim
// check failed.
func (r *DeliveryRepository) MarkRetrying(ctx context.Context, id int64, workerID string, retryCount int, nextRetryAt time.Time, errorMessage string, statusCode *int) (bool, error) {
	query := `
		UPDATE delivery_attempts
		SET delivery_status = 'retrying', retry_count = $3, next_retry_at = $4,
		    error_message = $5, status_code = $6,
		    claimed_by = NULL, lease_expires_at = NULL, updated_at = NOW()
		WHERE id = $1 AND delivery_status IN ('pending', 'retrying') AND is_deleted = FALSE
		  AND ($2 = '' OR claimed_by = $2)
	`
	tag, err := r.db.Exec(ctx, query, id, workerID, retryCount, nextRetryAt, errorMessage, statusCode)
	if err != nil {
		return false, fmt.Errorf("failed to mark retrying: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkFailed transitions pending/retrying -> terminal failed and clears the
// retry schedule. Returns false when the attempt was already terminal or the
// claim check failed.
func (r *DeliveryRepository) MarkFailed(ctx context.Context, id int64, workerID string, retryCount int, errorMessage string, statusCode *int) (bool, error) {
	query := `
		UPDATE delivery_attempts
		SET delivery_status = 'failed', retry_count = $3, next_retry_at = NULL,
		    error_message = $4, status_code = $5,
		    claimed_by = NULL, lease_expires_at = NULL, updated_at = NOW()
		WHERE id = $1 AND delivery_status IN ('pending', 'retrying') AND is_deleted = FALSE
		  AND ($2 = '' OR claimed_by = $2)
	`
	tag, err := r.db.Exec(ctx, query, id, workerID, retryCount, errorMessage, statusCode)
	if err != nil {
		return false, fmt.Errorf("failed to mark failed: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *DeliveryRepository) ListByNotification(ctx context.Context, notificationID int64, includeDeleted bool) ([]*model.DeliveryAttempt, error) {
	query := fmt.Sprintf(`SELECT %s FROM delivery_attempts WHERE notification_id = $1`, attemptColumns)
	if !includeDeleted {
		query += ` AND is_deleted = FALSE`
	}
	query += ` ORDER BY created_at ASC`

	rows, err := r.db.Query(ctx, query, notificationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query delivery attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*model.DeliveryAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan delivery attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// StatsByNotification aggregates attempt counts for one notification.
func (r *DeliveryRepository) StatsByNotification(ctx context.Context, notificationID int64) (*model.DeliveryStats, error) {
	query := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE delivery_status = 'delivered'),
		       COUNT(*) FILTER (WHERE delivery_status = 'failed'),
		       COUNT(*) FILTER (WHERE delivery_status IN ('pending', 'retrying'))
		FROM delivery_attempts
		WHERE notification_id = $1 AND is_deleted = FALSE
	`
	return r.scanStats(ctx, query, notificationID)
}

// StatsByBatch aggregates attempt counts across a batch's notifications.
func (r *DeliveryRepository) StatsByBatch(ctx context.Context, batchID int64) (*model.DeliveryStats, error) {
	query := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE a.delivery_status = 'delivered'),
		       COUNT(*) FILTER (WHERE a.delivery_status = 'failed'),
		       COUNT(*) FILTER (WHERE a.delivery_status IN ('pending', 'retrying'))
		FROM delivery_attempts a
		JOIN notifications n ON n.id = a.notification_id
		WHERE n.batch_id = $1 AND a.is_deleted = FALSE
	`
	return r.scanStats(ctx, query, batchID)
}

func (r *DeliveryRepository) scanStats(ctx context.Context, query string, arg int64) (*model.DeliveryStats, error) {
	var s model.DeliveryStats
	err := r.db.QueryRow(ctx, query, arg).Scan(&s.Total, &s.Delivered, &s.Failed, &s.Pending)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate delivery stats: %w", err)
	}
	s.Finalize()
	return &s, nil
}

func scanAttempt(row pgx.Row) (*model.DeliveryAttempt, error) {
	var a model.DeliveryAttempt
	var kind, status string
	err := row.Scan(
		&a.ID, &a.NotificationID, &a.ChannelID, &kind, &status,
		&a.StatusCode, &a.ErrorMessage, &a.RetryCount, &a.MaxRetries, &a.NextRetryAt,
		&a.DeliveredAt, &a.ExternalMessageID, &a.ClaimedBy, &a.LeaseExpiresAt,
		&a.CreatedAt, &a.UpdatedAt, &a.IsDeleted, &a.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	a.ChannelKind = model.ChannelKind(kind)
	a.Status = model.DeliveryStatus(status)
	return &a, nil
}
