package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"notifyhub/internal/apperr"
	"notifyhub/internal/model"
	"notifyhub/pkg/metrics"
)

// NotificationRepo is the store surface the dispatch coordinator needs.
type NotificationRepo interface {
	InsertWithAttempts(ctx context.Context, n *model.Notification, attempts []*model.DeliveryAttempt) error
	GetByID(ctx context.Context, id int64, includeDeleted bool) (*model.Notification, error)
	ListByUser(ctx context.Context, userID int64, unreadOnly, includeDeleted bool, limit, offset int) ([]*model.Notification, int, error)
	MarkRead(ctx context.Context, id int64, readAt time.Time) (bool, error)
	SoftDelete(ctx context.Context, id int64, deletedAt time.Time) error
}

// SendInput is one dispatch request. The template is addressed by id or name;
// Title and Message override the rendered template content when set.
type SendInput struct {
	UserID       int64             `json:"user_id" binding:"required"`
	TemplateID   int64             `json:"template_id"`
	TemplateName string            `json:"template_name"`
	Variables    map[string]string `json:"variables"`
	Title        string            `json:"title"`
	Message      string            `json:"message"`
	DataPayload  json.RawMessage   `json:"data_payload"`
	Priority     model.Priority    `json:"priority"`
	ExpiresAt    *time.Time        `json:"expires_at"`
	SourceSystem string            `json:"source_system"`
	BatchID      *int64            `json:"batch_id"`
}

// SendResult reports what a dispatch produced: the stored notification and
// the delivery attempts created, plus the channels the preference gate
// skipped and why.
type SendResult struct {
	Notification *model.Notification      `json:"notification"`
	Attempts     []*model.DeliveryAttempt `json:"delivery_attempts"`
	Skipped      []SkippedChannel         `json:"skipped_channels,omitempty"`
}

// SkippedChannel names a channel the gate blocked during one dispatch.
type SkippedChannel struct {
	ChannelID int64             `json:"channel_id"`
	Kind      model.ChannelKind `json:"channel_type"`
	Reason    SkipReason        `json:"reason"`
}

// DispatchService coordinates one send: template lookup, preference gating,
// rendering, and the transactional write of the notification with its
// delivery attempts.
type DispatchService struct {
	notifications NotificationRepo
	templates     TemplateRepo
	channels      ChannelRepo
	preferences   *PreferenceService
	logger        *zap.Logger
	now           func() time.Time
}

func NewDispatchService(
	notifications NotificationRepo,
	templates TemplateRepo,
	channels ChannelRepo,
	preferences *PreferenceService,
	logger *zap.Logger,
) *DispatchService {
	return &DispatchService{
		notifications: notifications,
		templates:     templates,
		channels:      channels,
		preferences:   preferences,
		logger:        logger,
		now:           time.Now,
	}
}

// Send creates a notification from a template and fans it out to the user's
// deliverable channels, one pending attempt per channel that passes the
// preference gate. The notification row is written even when every channel is
// skipped, so the in-app history stays complete.
func (s *DispatchService) Send(ctx context.Context, in SendInput) (*SendResult, error) {
	t, err := s.lookupTemplate(ctx, in)
	if err != nil {
		return nil, err
	}
	if !t.IsActive {
		return nil, &apperr.InvalidStateError{Entity: "template", ID: t.ID, State: "inactive", Op: "send"}
	}

	pref, err := s.preferences.GetOrCreate(ctx, in.UserID)
	if err != nil {
		return nil, err
	}

	channels, err := s.channels.ListByUser(ctx, in.UserID, "", true, false)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var attempts []*model.DeliveryAttempt
	var skipped []SkippedChannel
	for _, c := range channels {
		if !c.Deliverable() {
			continue
		}
		if reason, ok := Evaluate(pref, c.Kind, now); !ok {
			metrics.IncrementChannelsSkipped(string(c.Kind), string(reason))
			skipped = append(skipped, SkippedChannel{ChannelID: c.ID, Kind: c.Kind, Reason: reason})
			continue
		}
		attempts = append(attempts, NewAttempt(0, c, t.RetryPolicy))
	}

	title, message, err := s.resolveContent(t, in)
	if err != nil {
		return nil, err
	}

	priority := in.Priority
	if priority == "" {
		priority = t.Priority
	}
	if !priority.Valid() {
		return nil, &apperr.ValidationError{Field: "priority", Reason: fmt.Sprintf("unknown value %q", priority)}
	}

	n := &model.Notification{
		UserID:       in.UserID,
		TemplateID:   t.ID,
		BatchID:      in.BatchID,
		Type:         t.Name,
		Title:        title,
		Message:      message,
		DataPayload:  in.DataPayload,
		Priority:     priority,
		ExpiresAt:    in.ExpiresAt,
		SourceSystem: in.SourceSystem,
	}
	if err := s.notifications.InsertWithAttempts(ctx, n, attempts); err != nil {
		return nil, err
	}

	metrics.IncrementNotificationsCreated(string(priority))
	for _, a := range attempts {
		metrics.IncrementDeliveryAttempts(string(a.ChannelKind), "created")
	}
	s.logger.Info("Notification dispatched",
		zap.Int64("notification_id", n.ID),
		zap.Int64("user_id", n.UserID),
		zap.String("template", t.Name),
		zap.Int("attempts", len(attempts)),
		zap.Int("skipped", len(skipped)),
	)

	return &SendResult{Notification: n, Attempts: attempts, Skipped: skipped}, nil
}

func (s *DispatchService) lookupTemplate(ctx context.Context, in SendInput) (*model.Template, error) {
	switch {
	case in.TemplateID != 0:
		return s.templates.GetByID(ctx, in.TemplateID, false)
	case in.TemplateName != "":
		return s.templates.GetByName(ctx, in.TemplateName)
	default:
		return nil, &apperr.ValidationError{Field: "template_id", Reason: "template_id or template_name required"}
	}
}

// resolveContent renders the template unless the caller supplied overrides.
// An explicit message bypasses rendering entirely, so callers can send ad-hoc
// copy through a template's delivery settings.
func (s *DispatchService) resolveContent(t *model.Template, in SendInput) (title, message string, err error) {
	if in.Message != "" {
		return in.Title, in.Message, nil
	}
	rendered, err := Render(t, in.Variables)
	if err != nil {
		return "", "", err
	}
	title = in.Title
	if title == "" {
		title = rendered.Subject
	}
	return title, rendered.Body, nil
}

// Get returns one notification after checking it belongs to userID.
func (s *DispatchService) Get(ctx context.Context, userID, id int64, includeDeleted bool) (*model.Notification, error) {
	n, err := s.notifications.GetByID(ctx, id, includeDeleted)
	if err != nil {
		return nil, err
	}
	if n.UserID != userID {
		return nil, &apperr.ForbiddenError{Entity: "notification", ID: id}
	}
	return n, nil
}

// List returns a user's notifications, newest first.
func (s *DispatchService) List(ctx context.Context, userID int64, unreadOnly, includeDeleted bool, limit, offset int) ([]*model.Notification, int, error) {
	return s.notifications.ListByUser(ctx, userID, unreadOnly, includeDeleted, limit, offset)
}

// MarkRead flips a notification to read. Reading an already-read notification
// is a no-op that returns the current row; read state never flips back.
func (s *DispatchService) MarkRead(ctx context.Context, userID, id int64) (*model.Notification, error) {
	n, err := s.notifications.GetByID(ctx, id, false)
	if err != nil {
		return nil, err
	}
	if n.UserID != userID {
		return nil, &apperr.ForbiddenError{Entity: "notification", ID: id}
	}
	if n.IsRead {
		return n, nil
	}

	if _, err := s.notifications.MarkRead(ctx, id, s.now()); err != nil {
		return nil, err
	}
	return s.notifications.GetByID(ctx, id, false)
}

// Delete soft-deletes a notification. The row and its delivery history stay
// queryable with includeDeleted.
func (s *DispatchService) Delete(ctx context.Context, userID, id int64) error {
	n, err := s.notifications.GetByID(ctx, id, false)
	if err != nil {
		return err
	}
	if n.UserID != userID {
		return &apperr.ForbiddenError{Entity: "notification", ID: id}
	}
	if err := s.notifications.SoftDelete(ctx, id, s.now()); err != nil {
		return err
	}
	s.logger.Info("Notification deleted", zap.Int64("notification_id", id), zap.Int64("user_id", userID))
	return nil
}
