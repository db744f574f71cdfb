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

const notificationColumns = `id, user_id, template_id, batch_id, notification_type,
	COALESCE(title, ''), message, data_payload, priority, is_read, read_at, expires_at,
	source_system, created_at, updated_at, is_deleted, deleted_at`

type NotificationRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewNotificationRepository(db *pgxpool.Pool, logger *zap.Logger) *NotificationRepository {
	return &NotificationRepository{db: db, logger: logger}
}

// InsertWithAttempts creates a notification and its delivery attempts in one
// transaction so a crash cannot leave attempts pointing at a missing
// notification.
func (r *NotificationRepository) InsertWithAttempts(ctx context.Context, n *model.Notification, attempts []*model.DeliveryAttempt) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := insertNotificationTx(ctx, tx, n); err != nil {
		r.logger.Error("Failed to insert notification", zap.Int64("user_id", n.UserID), zap.Error(err))
		return err
	}

	for _, a := range attempts {
		a.NotificationID = n.ID
		if err := insertAttemptTx(ctx, tx, a); err != nil {
			r.logger.Error("Failed to insert delivery attempt",
				zap.Int64("notification_id", n.ID),
				zap.Int64("channel_id", a.ChannelID),
				zap.Error(err),
			)
			return err
		}
	}

	return tx.Commit(ctx)
}

func insertNotificationTx(ctx context.Context, tx pgx.Tx, n *model.Notification) error {
	query := `
		INSERT INTO notifications
			(user_id, template_id, batch_id, notification_type, title, message,
			 data_payload, priority, expires_at, source_system)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`
	var payload []byte
	if len(n.DataPayload) > 0 {
		payload = []byte(n.DataPayload)
	}
	err := tx.QueryRow(ctx, query,
		n.UserID, n.TemplateID, n.BatchID, n.Type, n.Title, n.Message,
		payload, string(n.Priority), n.ExpiresAt, n.SourceSystem,
	).Scan(&n.ID, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

func (r *NotificationRepository) GetByID(ctx context.Context, id int64, includeDeleted bool) (*model.Notification, error) {
	query := fmt.Sprintf(`SELECT %s FROM notifications WHERE id = $1`, notificationColumns)
	if !includeDeleted {
		query += ` AND is_deleted = FALSE`
	}

	n, err := scanNotification(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &apperr.NotFoundError{Entity: "notification", ID: id}
		}
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return n, nil
}

// ListByUser returns a user's notifications, newest first.
func (r *NotificationRepository) ListByUser(ctx context.Context, userID int64, unreadOnly, includeDeleted bool, limit, offset int) ([]*model.Notification, int, error) {
	where := `user_id = $1`
	if !includeDeleted {
		where += ` AND is_deleted = FALSE`
	}
	if unreadOnly {
		where += ` AND is_read = FALSE`
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM notifications WHERE ` + where
	if err := r.db.QueryRow(ctx, countQuery, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM notifications WHERE %s
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, notificationColumns, where)

	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*model.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	return notifications, total, rows.Err()
}

// MarkRead sets is_read/read_at iff the row is still unread. Returns false
// when the row was already read (the caller treats that as a no-op).
func (r *NotificationRepository) MarkRead(ctx context.Context, id int64, readAt time.Time) (bool, error) {
	query := `
		UPDATE notifications
		SET is_read = TRUE, read_at = $2, updated_at = NOW()
		WHERE id = $1 AND is_read = FALSE AND is_deleted = FALSE
	`
	tag, err := r.db.Exec(ctx, query, id, readAt)
	if err != nil {
		return false, fmt.Errorf("failed to mark notification read: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// SoftDelete flags the row deleted; it stays queryable with includeDeleted.
func (r *NotificationRepository) SoftDelete(ctx context.Context, id int64, deletedAt time.Time) error {
	query := `
		UPDATE notifications
		SET is_deleted = TRUE, deleted_at = $2, updated_at = NOW()
		WHERE id = $1 AND is_deleted = FALSE
	`
	tag, err := r.db.Exec(ctx, query, id, deletedAt)
	if err != nil {
		return fmt.Errorf("failed to soft-delete notification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &apperr.NotFoundError{Entity: "notification", ID: id}
	}
	return nil
}

func scanNotification(row pgx.Row) (*model.Notification, error) {
	var n model.Notification
	var priority string
	var payload []byte
	err := row.Scan(
		&n.ID, &n.UserID, &n.TemplateID, &n.BatchID, &n.Type,
		&n.Title, &n.Message, &payload, &priority, &n.IsRead, &n.ReadAt, &n.ExpiresAt,
		&n.SourceSystem, &n.CreatedAt, &n.UpdatedAt, &n.IsDeleted, &n.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	n.Priority = model.Priority(priority)
	if len(payload) > 0 {
		n.DataPayload = payload
	}
	return &n, nil
}
