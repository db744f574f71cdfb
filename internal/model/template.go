package model

import "time"

// Priority of a notification or template.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// RetryPolicy is the per-template delivery retry configuration. MaxRetries is
// copied onto every delivery attempt at creation time, so editing a template
// never changes the behavior of attempts already in flight.
type RetryPolicy struct {
	MaxRetries       int `json:"max_retries" yaml:"max_retries"`
	BaseDelaySeconds int `json:"base_delay_seconds" yaml:"base_delay_seconds"`
}

// DefaultRetryPolicy matches the delivery backoff table: three retries.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, BaseDelaySeconds: 60}
}

// Template is a reusable notification body with {{variable}} placeholders.
// Templates referenced by sent notifications are treated as immutable: edits
// only affect future sends.
type Template struct {
	ID          int64       `json:"id"`
	Name        string      `json:"template_name"`
	Kind        ChannelKind `json:"template_type"`
	Subject     string      `json:"subject,omitempty"`
	Content     string      `json:"content"`
	Variables   []string    `json:"variables,omitempty"`
	Priority    Priority    `json:"priority"`
	RetryPolicy RetryPolicy `json:"retry_policy"`
	IsActive    bool        `json:"is_active"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	IsDeleted   bool        `json:"is_deleted,omitempty"`
	DeletedAt   *time.Time  `json:"deleted_at,omitempty"`
}
