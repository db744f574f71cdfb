package model

import "time"

// Frequency controls how often a user wants to hear from a channel.
// Only "never" affects dispatch today; digest frequencies are carried for the
// boundary API and future digest support.
type Frequency string

const (
	FrequencyImmediate Frequency = "immediate"
	FrequencyDaily     Frequency = "daily"
	FrequencyWeekly    Frequency = "weekly"
	FrequencyNever     Frequency = "never"
)

func (f Frequency) Valid() bool {
	switch f {
	case FrequencyImmediate, FrequencyDaily, FrequencyWeekly, FrequencyNever:
		return true
	}
	return false
}

// Preference holds one user's notification settings. A row is created lazily
// with defaults on first access (all channels on, immediate, DND off).
type Preference struct {
	ID              int64      `json:"id"`
	UserID          int64      `json:"user_id"`
	EmailEnabled    bool       `json:"email_enabled"`
	SMSEnabled      bool       `json:"sms_enabled"`
	PushEnabled     bool       `json:"push_enabled"`
	InAppEnabled    bool       `json:"in_app_enabled"`
	EmailFrequency  Frequency  `json:"email_frequency"`
	SMSFrequency    Frequency  `json:"sms_frequency"`
	PushFrequency   Frequency  `json:"push_frequency"`
	QuietHoursStart string     `json:"quiet_hours_start,omitempty"` // "HH:MM", empty = no window
	QuietHoursEnd   string     `json:"quiet_hours_end,omitempty"`
	Timezone        string     `json:"timezone"`
	DoNotDisturb    bool       `json:"do_not_disturb_enabled"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	IsDeleted       bool       `json:"-"`
	DeletedAt       *time.Time `json:"-"`
}

// DefaultPreference returns the settings applied on first access.
func DefaultPreference(userID int64) *Preference {
	return &Preference{
		UserID:         userID,
		EmailEnabled:   true,
		SMSEnabled:     true,
		PushEnabled:    true,
		InAppEnabled:   true,
		EmailFrequency: FrequencyImmediate,
		SMSFrequency:   FrequencyImmediate,
		PushFrequency:  FrequencyImmediate,
		Timezone:       "UTC",
	}
}

// ChannelEnabled reports the opt-in flag for a channel kind. Webhook channels
// ride on the push opt-in; an unknown kind is disabled.
func (p *Preference) ChannelEnabled(kind ChannelKind) bool {
	switch kind {
	case ChannelEmail:
		return p.EmailEnabled
	case ChannelSMS:
		return p.SMSEnabled
	case ChannelPush, ChannelWebhook:
		return p.PushEnabled
	case ChannelInApp:
		return p.InAppEnabled
	}
	return false
}

// ChannelFrequency returns the frequency setting for a channel kind. In-app
// notifications have no digest setting and are always immediate.
func (p *Preference) ChannelFrequency(kind ChannelKind) Frequency {
	switch kind {
	case ChannelEmail:
		return p.EmailFrequency
	case ChannelSMS:
		return p.SMSFrequency
	case ChannelPush, ChannelWebhook:
		return p.PushFrequency
	}
	return FrequencyImmediate
}
