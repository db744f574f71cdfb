package model

import "time"

// DeliveryStatus is the state of one delivery attempt.
//
//	pending  → delivered            terminal success
//	pending  → retrying → … → failed
//	pending  → failed               non-retryable failure
//
// delivered and failed are terminal; no further transitions are permitted.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryRetrying  DeliveryStatus = "retrying"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s DeliveryStatus) Terminal() bool {
	return s == DeliveryDelivered || s == DeliveryFailed
}

// DeliveryAttempt tracks one try to deliver a notification over a channel.
// Exactly one attempt exists per (notification, channel) pair. MaxRetries is
// frozen from the template's retry policy at creation. ClaimedBy and
// LeaseExpiresAt implement the worker lease: a worker must hold the lease
// before completing the attempt so two workers never finish the same one.
type DeliveryAttempt struct {
	ID                int64          `json:"id"`
	NotificationID    int64          `json:"notification_id"`
	ChannelID         int64          `json:"channel_id"`
	ChannelKind       ChannelKind    `json:"delivery_channel"`
	Status            DeliveryStatus `json:"delivery_status"`
	StatusCode        *int           `json:"status_code,omitempty"`
	ErrorMessage      string         `json:"error_message,omitempty"`
	RetryCount        int            `json:"retry_count"`
	MaxRetries        int            `json:"max_retries"`
	NextRetryAt       *time.Time     `json:"next_retry_at,omitempty"`
	DeliveredAt       *time.Time     `json:"delivered_at,omitempty"`
	ExternalMessageID string         `json:"external_message_id,omitempty"`
	ClaimedBy         string         `json:"claimed_by,omitempty"`
	LeaseExpiresAt    *time.Time     `json:"lease_expires_at,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	IsDeleted         bool           `json:"-"`
	DeletedAt         *time.Time     `json:"-"`
}

// DueAt is the time the attempt becomes eligible for dispatch: NextRetryAt
// when set, otherwise creation time.
func (a *DeliveryAttempt) DueAt() time.Time {
	if a.NextRetryAt != nil {
		return *a.NextRetryAt
	}
	return a.CreatedAt
}

// DeliveryStats aggregates the attempts of one notification or batch.
// SuccessRate is delivered/(delivered+failed), nil while no attempt has
// reached a terminal state.
type DeliveryStats struct {
	Total       int      `json:"total"`
	Delivered   int      `json:"delivered"`
	Failed      int      `json:"failed"`
	Pending     int      `json:"pending"`
	SuccessRate *float64 `json:"success_rate"`
}

// Finalize computes SuccessRate from the counters.
func (s *DeliveryStats) Finalize() {
	if done := s.Delivered + s.Failed; done > 0 {
		rate := float64(s.Delivered) / float64(done)
		s.SuccessRate = &rate
	}
}
