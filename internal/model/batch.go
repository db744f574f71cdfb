package model

import "time"

// BatchStatus lifecycle: draft → scheduled → running → completed | canceled.
type BatchStatus string

const (
	BatchDraft     BatchStatus = "draft"
	BatchScheduled BatchStatus = "scheduled"
	BatchRunning   BatchStatus = "running"
	BatchCompleted BatchStatus = "completed"
	BatchCanceled  BatchStatus = "canceled"
)

// BatchKind describes why a batch exists.
type BatchKind string

const (
	BatchCampaign      BatchKind = "campaign"
	BatchBulk          BatchKind = "bulk"
	BatchScheduledSend BatchKind = "scheduled"
	BatchTriggered     BatchKind = "triggered"
)

func (k BatchKind) Valid() bool {
	switch k {
	case BatchCampaign, BatchBulk, BatchScheduledSend, BatchTriggered:
		return true
	}
	return false
}

// Batch groups a bulk send of one template to many users. Counters are
// aggregates over the delivery attempts of its child notifications.
type Batch struct {
	ID              int64       `json:"id"`
	Name            string      `json:"batch_name"`
	Kind            BatchKind   `json:"batch_type"`
	TemplateID      int64       `json:"template_id"`
	TargetUserCount *int        `json:"target_user_count,omitempty"`
	ScheduledAt     *time.Time  `json:"scheduled_send_time,omitempty"`
	Status          BatchStatus `json:"batch_status"`
	SentCount       int         `json:"sent_count"`
	FailedCount     int         `json:"failed_count"`
	BounceCount     int         `json:"bounce_count"`
	SuccessRate     *float64    `json:"success_rate"`
	StartedAt       *time.Time  `json:"started_at,omitempty"`
	CompletedAt     *time.Time  `json:"completed_at,omitempty"`
	CreatedBy       *int64      `json:"created_by,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
	IsDeleted       bool        `json:"-"`
	DeletedAt       *time.Time  `json:"-"`
}
