package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"notifyhub/internal/apperr"
	"notifyhub/internal/model"
)

// PreferenceRepo is the store surface the preference service needs.
type PreferenceRepo interface {
	GetByUserID(ctx context.Context, userID int64) (*model.Preference, error)
	InsertDefaults(ctx context.Context, userID int64) error
	Update(ctx context.Context, p *model.Preference) error
}

// PreferenceCache is an optional read-through cache in front of the repo.
type PreferenceCache interface {
	Get(ctx context.Context, userID int64) (*model.Preference, bool)
	Set(ctx context.Context, p *model.Preference)
	Invalidate(ctx context.Context, userID int64)
}

// PreferencePatch carries partial preference updates; nil fields are left
// untouched.
type PreferencePatch struct {
	EmailEnabled    *bool            `json:"email_enabled"`
	SMSEnabled      *bool            `json:"sms_enabled"`
	PushEnabled     *bool            `json:"push_enabled"`
	InAppEnabled    *bool            `json:"in_app_enabled"`
	EmailFrequency  *model.Frequency `json:"email_frequency"`
	SMSFrequency    *model.Frequency `json:"sms_frequency"`
	PushFrequency   *model.Frequency `json:"push_frequency"`
	QuietHoursStart *string          `json:"quiet_hours_start"`
	QuietHoursEnd   *string          `json:"quiet_hours_end"`
	Timezone        *string          `json:"timezone"`
	DoNotDisturb    *bool            `json:"do_not_disturb"`
}

type PreferenceService struct {
	repo   PreferenceRepo
	cache  PreferenceCache
	logger *zap.Logger
}

func NewPreferenceService(repo PreferenceRepo, cache PreferenceCache, logger *zap.Logger) *PreferenceService {
	return &PreferenceService{repo: repo, cache: cache, logger: logger}
}

// GetOrCreate returns the user's preferences, creating the default row on
// first access. The insert is conditional, so concurrent first access from
// two dispatchers converges on one row.
func (s *PreferenceService) GetOrCreate(ctx context.Context, userID int64) (*model.Preference, error) {
	if s.cache != nil {
		if p, ok := s.cache.Get(ctx, userID); ok {
			return p, nil
		}
	}

	p, err := s.repo.GetByUserID(ctx, userID)
	var notFound *apperr.NotFoundError
	if errors.As(err, &notFound) {
		if err := s.repo.InsertDefaults(ctx, userID); err != nil {
			return nil, err
		}
		p, err = s.repo.GetByUserID(ctx, userID)
		if err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Set(ctx, p)
	}
	return p, nil
}

// Update applies a partial patch on top of the current (or default) row.
func (s *PreferenceService) Update(ctx context.Context, userID int64, patch PreferencePatch) (*model.Preference, error) {
	if err := validatePatch(patch); err != nil {
		return nil, err
	}

	p, err := s.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	applyPatch(p, patch)
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, userID)
	}
	s.logger.Info("Preferences updated", zap.Int64("user_id", userID))
	return p, nil
}

func validatePatch(patch PreferencePatch) error {
	for _, f := range []*model.Frequency{patch.EmailFrequency, patch.SMSFrequency, patch.PushFrequency} {
		if f != nil && !f.Valid() {
			return &apperr.ValidationError{Field: "frequency", Reason: fmt.Sprintf("unknown value %q", *f)}
		}
	}
	for _, h := range []*string{patch.QuietHoursStart, patch.QuietHoursEnd} {
		if h != nil && *h != "" {
			if _, err := parseClock(*h); err != nil {
				return &apperr.ValidationError{Field: "quiet_hours", Reason: fmt.Sprintf("bad time %q, want HH:MM", *h)}
			}
		}
	}
	if patch.Timezone != nil && *patch.Timezone != "" {
		if _, err := time.LoadLocation(*patch.Timezone); err != nil {
			return &apperr.ValidationError{Field: "timezone", Reason: fmt.Sprintf("unknown timezone %q", *patch.Timezone)}
		}
	}
	return nil
}

func applyPatch(p *model.Preference, patch PreferencePatch) {
	if patch.EmailEnabled != nil {
		p.EmailEnabled = *patch.EmailEnabled
	}
	if patch.SMSEnabled != nil {
		p.SMSEnabled = *patch.SMSEnabled
	}
	if patch.PushEnabled != nil {
		p.PushEnabled = *patch.PushEnabled
	}
	if patch.InAppEnabled != nil {
		p.InAppEnabled = *patch.InAppEnabled
	}
	if patch.EmailFrequency != nil {
		p.EmailFrequency = *patch.EmailFrequency
	}
	if patch.SMSFrequency != nil {
		p.SMSFrequency = *patch.SMSFrequency
	}
	if patch.PushFrequency != nil {
		p.PushFrequency = *patch.PushFrequency
	}
	if patch.QuietHoursStart != nil {
		p.QuietHoursStart = *patch.QuietHoursStart
	}
	if patch.QuietHoursEnd != nil {
		p.QuietHoursEnd = *patch.QuietHoursEnd
	}
	if patch.Timezone != nil {
		p.Timezone = *patch.Timezone
	}
	if patch.DoNotDisturb != nil {
		p.DoNotDisturb = *patch.DoNotDisturb
	}
}
