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

const preferenceColumns = `id, user_id, email_enabled, sms_enabled, push_enabled, in_app_enabled,
	email_frequency, sms_frequency, push_frequency,
	COALESCE(quiet_hours_start, ''), COALESCE(quiet_hours_end, ''), timezone, do_not_disturb,
	created_at, updated_at`

type PreferenceRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewPreferenceRepository(db *pgxpool.Pool, logger *zap.Logger) *PreferenceRepository {
	return &PreferenceRepository{db: db, logger: logger}
}

func (r *PreferenceRepository) GetByUserID(ctx context.Context, userID int64) (*model.Preference, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM user_notification_preferences WHERE user_id = $1 AND is_deleted = FALSE`,
		preferenceColumns)

	p, err := scanPreference(r.db.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &apperr.NotFoundError{Entity: "preference", ID: userID}
		}
		return nil, fmt.Errorf("failed to get preferences: %w", err)
	}
	return p, nil
}

// InsertDefaults creates the default preference row for a user. The conditional
// insert makes concurrent first-access races harmless: whoever loses the race
// simply reads the winner's row.
func (r *PreferenceRepository) InsertDefaults(ctx context.Context, userID int64) error {
	query := `
		INSERT INTO user_notification_preferences (user_id)
		VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`
	if _, err := r.db.Exec(ctx, query, userID); err != nil {
		r.logger.Error("Failed to insert default preferences", zap.Int64("user_id", userID), zap.Error(err))
		return fmt.Errorf("failed to insert default preferences: %w", err)
	}
	return nil
}

// Update writes the full preference row for a user.
func (r *PreferenceRepository) Update(ctx context.Context, p *model.Preference) error {
	query := `
		UPDATE user_notification_preferences
		SET email_enabled = $2, sms_enabled = $3, push_enabled = $4, in_app_enabled = $5,
		    email_frequency = $6, sms_frequency = $7, push_frequency = $8,
		    quiet_hours_start = NULLIF($9, ''), quiet_hours_end = NULLIF($10, ''),
		    timezone = $11, do_not_disturb = $12, updated_at = NOW()
		WHERE user_id = $1 AND is_deleted = FALSE
		RETURNING updated_at
	`
	err := r.db.QueryRow(ctx, query,
		p.UserID, p.EmailEnabled, p.SMSEnabled, p.PushEnabled, p.InAppEnabled,
		string(p.EmailFrequency), string(p.SMSFrequency), string(p.PushFrequency),
		p.QuietHoursStart, p.QuietHoursEnd, p.Timezone, p.DoNotDisturb,
	).Scan(&p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &apperr.NotFoundError{Entity: "preference", ID: p.UserID}
		}
		return fmt.Errorf("failed to update preferences: %w", err)
	}
	return nil
}

func scanPreference(row pgx.Row) (*model.Preference, error) {
	var p model.Preference
	var emailFreq, smsFreq, pushFreq string
	err := row.Scan(
		&p.ID, &p.UserID, &p.EmailEnabled, &p.SMSEnabled, &p.PushEnabled, &p.InAppEnabled,
		&emailFreq, &smsFreq, &pushFreq,
		&p.QuietHoursStart, &p.QuietHoursEnd, &p.Timezone, &p.DoNotDisturb,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.EmailFrequency = model.Frequency(emailFreq)
	p.SMSFrequency = model.Frequency(smsFreq)
	p.PushFrequency = model.Frequency(pushFreq)
	return &p, nil
}
