package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"notifyhub/internal/apperr"
	"notifyhub/internal/model"
)

const channelColumns = `id, user_id, channel_type, channel_value, is_verified, is_primary,
	verification_token, verification_attempts, verified_at, is_active,
	created_at, updated_at, is_deleted, deleted_at`

type ChannelRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewChannelRepository(db *pgxpool.Pool, logger *zap.Logger) *ChannelRepository {
	return &ChannelRepository{db: db, logger: logger}
}

// Insert creates a channel. When the channel is primary, any previous primary
// of the same kind is demoted in the same transaction so at most one primary
// exists per (user, kind).
func (r *ChannelRepository) Insert(ctx context.Context, c *model.Channel) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if c.IsPrimary {
		demote := `
			UPDATE notification_channels
			SET is_primary = FALSE, updated_at = NOW()
			WHERE user_id = $1 AND channel_type = $2 AND is_primary = TRUE
		`
		if _, err := tx.Exec(ctx, demote, c.UserID, string(c.Kind)); err != nil {
			return fmt.Errorf("failed to demote primary channel: %w", err)
		}
	}

	insert := `
		INSERT INTO notification_channels
			(user_id, channel_type, channel_value, is_primary, verification_token)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`
	err = tx.QueryRow(ctx, insert,
		c.UserID, string(c.Kind), c.Value, c.IsPrimary, c.VerificationToken,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to insert channel",
			zap.Int64("user_id", c.UserID),
			zap.String("kind", string(c.Kind)),
			zap.Error(err),
		)
		return fmt.Errorf("failed to insert channel: %w", err)
	}
	c.IsActive = true

	return tx.Commit(ctx)
}

func (r *ChannelRepository) GetByID(ctx context.Context, id int64, includeDeleted bool) (*model.Channel, error) {
	query := fmt.Sprintf(`SELECT %s FROM notification_channels WHERE id = $1`, channelColumns)
	if !includeDeleted {
		query += ` AND is_deleted = FALSE`
	}

	c, err := scanChannel(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &apperr.NotFoundError{Entity: "channel", ID: id}
		}
		return nil, fmt.Errorf("failed to get channel: %w", err)
	}
	return c, nil
}

// ListByUser returns a user's channels, primary first. kind and verifiedOnly
// narrow the result.
func (r *ChannelRepository) ListByUser(ctx context.Context, userID int64, kind string, verifiedOnly, includeDeleted bool) ([]*model.Channel, error) {
	query := fmt.Sprintf(`SELECT %s FROM notification_channels WHERE user_id = $1`, channelColumns)
	args := []any{userID}
	if !includeDeleted {
		query += ` AND is_deleted = FALSE`
	}
	if kind != "" {
		args = append(args, kind)
		query += fmt.Sprintf(` AND channel_type = $%d`, len(args))
	}
	if verifiedOnly {
		query += ` AND is_verified = TRUE`
	}
	query += ` ORDER BY is_primary DESC, created_at ASC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query channels: %w", err)
	}
	defer rows.Close()

	var channels []*model.Channel
	for rows.Next() {
		c, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan channel: %w", err)
		}
		channels = append(channels, c)
	}
	return channels, rows.Err()
}

// MarkVerified flips the channel to verified iff the token matches and the
// channel is still unverified. Returns false when the conditional update
// matched no row.
func (r *ChannelRepository) MarkVerified(ctx context.Context, id int64, token string) (bool, error) {
	query := `
		UPDATE notification_channels
		SET is_verified = TRUE, verified_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND verification_token = $2 AND is_verified = FALSE AND is_deleted = FALSE
	`
	tag, err := r.db.Exec(ctx, query, id, token)
	if err != nil {
		return false, fmt.Errorf("failed to verify channel: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *ChannelRepository) IncrementVerificationAttempts(ctx context.Context, id int64) error {
	query := `
		UPDATE notification_channels
		SET verification_attempts = verification_attempts + 1, updated_at = NOW()
		WHERE id = $1
	`
	if _, err := r.db.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("failed to count verification attempt: %w", err)
	}
	return nil
}

// Deactivate soft-switches a channel off; the row and its history remain.
func (r *ChannelRepository) Deactivate(ctx context.Context, id int64) error {
	query := `
		UPDATE notification_channels
		SET is_active = FALSE, updated_at = NOW()
		WHERE id = $1 AND is_deleted = FALSE
	`
	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate channel: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &apperr.NotFoundError{Entity: "channel", ID: id}
	}
	return nil
}

func scanChannel(row pgx.Row) (*model.Channel, error) {
	var c model.Channel
	var kind string
	err := row.Scan(
		&c.ID, &c.UserID, &kind, &c.Value, &c.IsVerified, &c.IsPrimary,
		&c.VerificationToken, &c.VerificationAttempts, &c.VerifiedAt, &c.IsActive,
		&c.CreatedAt, &c.UpdatedAt, &c.IsDeleted, &c.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Kind = model.ChannelKind(kind)
	return &c, nil
}
