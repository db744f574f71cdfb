package model

import "time"

// ChannelKind identifies the delivery mechanism a channel uses.
type ChannelKind string

const (
	ChannelEmail   ChannelKind = "email"
	ChannelSMS     ChannelKind = "sms"
	ChannelPush    ChannelKind = "push"
	ChannelInApp   ChannelKind = "in_app"
	ChannelWebhook ChannelKind = "webhook"
)

func (k ChannelKind) Valid() bool {
	switch k {
	case ChannelEmail, ChannelSMS, ChannelPush, ChannelInApp, ChannelWebhook:
		return true
	}
	return false
}

// SupportsSubject reports whether rendered content for this kind carries a
// subject line. Only email does.
func (k ChannelKind) SupportsSubject() bool {
	return k == ChannelEmail
}

// Channel is one destination a user can be reached at: an email address, a
// phone number, a push token or a webhook URL. A channel must be verified
// before it receives deliveries; verification is one-way.
type Channel struct {
	ID                   int64       `json:"id"`
	UserID               int64       `json:"user_id"`
	Kind                 ChannelKind `json:"channel_type"`
	Value                string      `json:"channel_value"`
	IsVerified           bool        `json:"is_verified"`
	IsPrimary            bool        `json:"is_primary"`
	VerificationToken    string      `json:"-"`
	VerificationAttempts int         `json:"-"`
	VerifiedAt           *time.Time  `json:"verified_at,omitempty"`
	IsActive             bool        `json:"is_active"`
	CreatedAt            time.Time   `json:"created_at"`
	UpdatedAt            time.Time   `json:"updated_at"`
	IsDeleted            bool        `json:"is_deleted,omitempty"`
	DeletedAt            *time.Time  `json:"deleted_at,omitempty"`
}

// Deliverable reports whether the channel may receive deliveries at all
// (independent of user preferences).
func (c *Channel) Deliverable() bool {
	return c.IsActive && c.IsVerified && !c.IsDeleted
}
