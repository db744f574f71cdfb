package model

import (
	"encoding/json"
	"time"
)

// Notification is one message for one user. It references the template it was
// created from; content may have been overridden at send time. Read state is
// one-way and soft deletion never removes the row.
type Notification struct {
	ID           int64           `json:"id"`
	UserID       int64           `json:"user_id"`
	TemplateID   int64           `json:"template_id"`
	BatchID      *int64          `json:"batch_id,omitempty"`
	Type         string          `json:"notification_type"`
	Title        string          `json:"title,omitempty"`
	Message      string          `json:"message"`
	DataPayload  json.RawMessage `json:"data_payload,omitempty"`
	Priority     Priority        `json:"priority"`
	IsRead       bool            `json:"is_read"`
	ReadAt       *time.Time      `json:"read_at,omitempty"`
	ExpiresAt    *time.Time      `json:"expires_at,omitempty"`
	SourceSystem string          `json:"source_system"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	IsDeleted    bool            `json:"is_deleted"`
	DeletedAt    *time.Time      `json:"deleted_at,omitempty"`
}
