package service

import (
	"context"
	"sort"
	"time"

	"notifyhub/internal/apperr"
	"notifyhub/internal/model"
)

// In-memory repository doubles. They mirror the conditional-update semantics
// of the SQL layer: transitions only match non-terminal rows and report
// whether a row changed.

type memDeliveryRepo struct {
	attempts map[int64]*model.DeliveryAttempt
	// notification id -> batch id, for batch aggregation
	batchOf map[int64]int64
	nextID  int64
}

func newMemDeliveryRepo() *memDeliveryRepo {
	return &memDeliveryRepo{
		attempts: make(map[int64]*model.DeliveryAttempt),
		batchOf:  make(map[int64]int64),
	}
}

func (m *memDeliveryRepo) add(a *model.DeliveryAttempt) *model.DeliveryAttempt {
	m.nextID++
	a.ID = m.nextID
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	m.attempts[a.ID] = a
	return a
}

func (m *memDeliveryRepo) GetByID(_ context.Context, id int64) (*model.DeliveryAttempt, error) {
	a, ok := m.attempts[id]
	if !ok {
		return nil, &apperr.NotFoundError{Entity: "delivery attempt", ID: id}
	}
	cp := *a
	return &cp, nil
}

func (m *memDeliveryRepo) GetPending(_ context.Context, now time.Time, limit int) ([]*model.DeliveryAttempt, error) {
	var due []*model.DeliveryAttempt
	for _, a := range m.attempts {
		if a.Status != model.DeliveryPending && a.Status != model.DeliveryRetrying {
			continue
		}
		if a.NextRetryAt != nil && a.NextRetryAt.After(now) {
			continue
		}
		cp := *a
		due = append(due, &cp)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].DueAt().Before(due[j].DueAt()) })
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (m *memDeliveryRepo) Claim(_ context.Context, id int64, workerID string, now, leaseUntil time.Time) (bool, error) {
	a, ok := m.attempts[id]
	if !ok || a.Status.Terminal() {
		return false, nil
	}
	if a.LeaseExpiresAt != nil && a.LeaseExpiresAt.After(now) {
		return false, nil
	}
	a.ClaimedBy = workerID
	a.LeaseExpiresAt = &leaseUntil
	return true, nil
}

func (m *memDeliveryRepo) MarkDelivered(_ context.Context, id int64, workerID string, deliveredAt time.Time, externalMessageID string) (bool, error) {
	a, ok := m.attempts[id]
	if !ok || a.Status.Terminal() {
		return false, nil
	}
	if workerID != "" && a.ClaimedBy != workerID {
		return false, nil
	}
	a.Status = model.DeliveryDelivered
	a.DeliveredAt = &deliveredAt
	a.ExternalMessageID = externalMessageID
	a.NextRetryAt = nil
	a.ClaimedBy = ""
	a.LeaseExpiresAt = nil
	return true, nil
}

func (m *memDeliveryRepo) MarkRetrying(_ context.Context, id int64, workerID string, retryCount int, nextRetryAt time.Time, errorMessage string, statusCode *int) (bool, error) {
	a, ok := m.attempts[id]
	if !ok || a.Status.Terminal() {
		return false, nil
	}
	if workerID != "" && a.ClaimedBy != workerID {
		return false, nil
	}
	a.Status = model.DeliveryRetrying
	a.RetryCount = retryCount
	a.NextRetryAt = &nextRetryAt
	a.ErrorMessage = errorMessage
	a.StatusCode = statusCode
	a.ClaimedBy = ""
	a.LeaseExpiresAt = nil
	return true, nil
}

func (m *memDeliveryRepo) MarkFailed(_ context.Context, id int64, workerID string, retryCount int, errorMessage string, statusCode *int) (bool, error) {
	a, ok := m.attempts[id]
	if !ok || a.Status.Terminal() {
		return false, nil
	}
	if workerID != "" && a.ClaimedBy != workerID {
		return false, nil
	}
	a.Status = model.DeliveryFailed
	a.RetryCount = retryCount
	a.NextRetryAt = nil
	a.ErrorMessage = errorMessage
	a.StatusCode = statusCode
	a.ClaimedBy = ""
	a.LeaseExpiresAt = nil
	return true, nil
}

func (m *memDeliveryRepo) ListByNotification(_ context.Context, notificationID int64, includeDeleted bool) ([]*model.DeliveryAttempt, error) {
	var out []*model.DeliveryAttempt
	for _, a := range m.attempts {
		if a.NotificationID != notificationID {
			continue
		}
		if a.IsDeleted && !includeDeleted {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memDeliveryRepo) StatsByNotification(_ context.Context, notificationID int64) (*model.DeliveryStats, error) {
	s := &model.DeliveryStats{}
	for _, a := range m.attempts {
		if a.NotificationID != notificationID || a.IsDeleted {
			continue
		}
		m.count(s, a)
	}
	s.Finalize()
	return s, nil
}

func (m *memDeliveryRepo) StatsByBatch(_ context.Context, batchID int64) (*model.DeliveryStats, error) {
	s := &model.DeliveryStats{}
	for _, a := range m.attempts {
		if a.IsDeleted || m.batchOf[a.NotificationID] != batchID {
			continue
		}
		m.count(s, a)
	}
	s.Finalize()
	return s, nil
}

func (m *memDeliveryRepo) count(s *model.DeliveryStats, a *model.DeliveryAttempt) {
	s.Total++
	switch a.Status {
	case model.DeliveryDelivered:
		s.Delivered++
	case model.DeliveryFailed:
		s.Failed++
	default:
		s.Pending++
	}
}

type memPreferenceRepo struct {
	prefs map[int64]*model.Preference
}

func newMemPreferenceRepo() *memPreferenceRepo {
	return &memPreferenceRepo{prefs: make(map[int64]*model.Preference)}
}

func (m *memPreferenceRepo) GetByUserID(_ context.Context, userID int64) (*model.Preference, error) {
	p, ok := m.prefs[userID]
	if !ok {
		return nil, &apperr.NotFoundError{Entity: "preference", ID: userID}
	}
	cp := *p
	return &cp, nil
}

func (m *memPreferenceRepo) InsertDefaults(_ context.Context, userID int64) error {
	if _, ok := m.prefs[userID]; !ok {
		m.prefs[userID] = model.DefaultPreference(userID)
	}
	return nil
}

func (m *memPreferenceRepo) Update(_ context.Context, p *model.Preference) error {
	if _, ok := m.prefs[p.UserID]; !ok {
		return &apperr.NotFoundError{Entity: "preference", ID: p.UserID}
	}
	cp := *p
	m.prefs[p.UserID] = &cp
	return nil
}

type memPreferenceCache struct {
	entries map[int64]*model.Preference
	hits    int
}

func newMemPreferenceCache() *memPreferenceCache {
	return &memPreferenceCache{entries: make(map[int64]*model.Preference)}
}

func (m *memPreferenceCache) Get(_ context.Context, userID int64) (*model.Preference, bool) {
	p, ok := m.entries[userID]
	if ok {
		m.hits++
	}
	return p, ok
}

func (m *memPreferenceCache) Set(_ context.Context, p *model.Preference) {
	m.entries[p.UserID] = p
}

func (m *memPreferenceCache) Invalidate(_ context.Context, userID int64) {
	delete(m.entries, userID)
}

type memTemplateRepo struct {
	templates map[int64]*model.Template
	nextID    int64
}

func newMemTemplateRepo() *memTemplateRepo {
	return &memTemplateRepo{templates: make(map[int64]*model.Template)}
}

func (m *memTemplateRepo) Insert(_ context.Context, t *model.Template) error {
	// template_name is unique; the SQL layer maps the violation the same way.
	for _, other := range m.templates {
		if other.Name == t.Name && !other.IsDeleted {
			return &apperr.ValidationError{Field: "template_name", Reason: "already exists"}
		}
	}
	m.nextID++
	t.ID = m.nextID
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	cp := *t
	m.templates[t.ID] = &cp
	return nil
}

func (m *memTemplateRepo) GetByID(_ context.Context, id int64, includeDeleted bool) (*model.Template, error) {
	t, ok := m.templates[id]
	if !ok || (t.IsDeleted && !includeDeleted) {
		return nil, &apperr.NotFoundError{Entity: "template", ID: id}
	}
	cp := *t
	return &cp, nil
}

func (m *memTemplateRepo) GetByName(_ context.Context, name string) (*model.Template, error) {
	for _, t := range m.templates {
		if t.Name == name && !t.IsDeleted {
			cp := *t
			return &cp, nil
		}
	}
	return nil, &apperr.NotFoundError{Entity: "template"}
}

func (m *memTemplateRepo) ListActive(_ context.Context, kind string, limit, offset int) ([]*model.Template, int, error) {
	var all []*model.Template
	for _, t := range m.templates {
		if t.IsDeleted || !t.IsActive {
			continue
		}
		if kind != "" && string(t.Kind) != kind {
			continue
		}
		cp := *t
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	total := len(all)
	if offset >= len(all) {
		return nil, total, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, total, nil
}

type memChannelRepo struct {
	channels map[int64]*model.Channel
	nextID   int64
}

func newMemChannelRepo() *memChannelRepo {
	return &memChannelRepo{channels: make(map[int64]*model.Channel)}
}

func (m *memChannelRepo) Insert(_ context.Context, c *model.Channel) error {
	if c.IsPrimary {
		for _, other := range m.channels {
			if other.UserID == c.UserID && other.Kind == c.Kind {
				other.IsPrimary = false
			}
		}
	}
	m.nextID++
	c.ID = m.nextID
	c.IsActive = true
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	cp := *c
	m.channels[c.ID] = &cp
	return nil
}

func (m *memChannelRepo) GetByID(_ context.Context, id int64, includeDeleted bool) (*model.Channel, error) {
	c, ok := m.channels[id]
	if !ok || (c.IsDeleted && !includeDeleted) {
		return nil, &apperr.NotFoundError{Entity: "channel", ID: id}
	}
	cp := *c
	return &cp, nil
}

func (m *memChannelRepo) ListByUser(_ context.Context, userID int64, kind string, verifiedOnly, includeDeleted bool) ([]*model.Channel, error) {
	var out []*model.Channel
	for _, c := range m.channels {
		if c.UserID != userID {
			continue
		}
		if c.IsDeleted && !includeDeleted {
			continue
		}
		if kind != "" && string(c.Kind) != kind {
			continue
		}
		if verifiedOnly && !c.IsVerified {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsPrimary != out[j].IsPrimary {
			return out[i].IsPrimary
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *memChannelRepo) MarkVerified(_ context.Context, id int64, token string) (bool, error) {
	c, ok := m.channels[id]
	if !ok || c.IsDeleted || c.IsVerified || c.VerificationToken != token {
		return false, nil
	}
	now := time.Now()
	c.IsVerified = true
	c.VerifiedAt = &now
	return true, nil
}

func (m *memChannelRepo) IncrementVerificationAttempts(_ context.Context, id int64) error {
	if c, ok := m.channels[id]; ok {
		c.VerificationAttempts++
	}
	return nil
}

func (m *memChannelRepo) Deactivate(_ context.Context, id int64) error {
	c, ok := m.channels[id]
	if !ok || c.IsDeleted {
		return &apperr.NotFoundError{Entity: "channel", ID: id}
	}
	c.IsActive = false
	return nil
}

type memNotificationRepo struct {
	notifications map[int64]*model.Notification
	attempts      *memDeliveryRepo
	nextID        int64
}

func newMemNotificationRepo(attempts *memDeliveryRepo) *memNotificationRepo {
	return &memNotificationRepo{
		notifications: make(map[int64]*model.Notification),
		attempts:      attempts,
	}
}

func (m *memNotificationRepo) InsertWithAttempts(_ context.Context, n *model.Notification, attempts []*model.DeliveryAttempt) error {
	m.nextID++
	n.ID = m.nextID
	n.CreatedAt = time.Now()
	n.UpdatedAt = n.CreatedAt
	cp := *n
	m.notifications[n.ID] = &cp
	if n.BatchID != nil {
		m.attempts.batchOf[n.ID] = *n.BatchID
	}
	for _, a := range attempts {
		a.NotificationID = n.ID
		m.attempts.add(a)
	}
	return nil
}

func (m *memNotificationRepo) GetByID(_ context.Context, id int64, includeDeleted bool) (*model.Notification, error) {
	n, ok := m.notifications[id]
	if !ok || (n.IsDeleted && !includeDeleted) {
		return nil, &apperr.NotFoundError{Entity: "notification", ID: id}
	}
	cp := *n
	return &cp, nil
}

func (m *memNotificationRepo) ListByUser(_ context.Context, userID int64, unreadOnly, includeDeleted bool, limit, offset int) ([]*model.Notification, int, error) {
	var all []*model.Notification
	for _, n := range m.notifications {
		if n.UserID != userID {
			continue
		}
		if n.IsDeleted && !includeDeleted {
			continue
		}
		if unreadOnly && n.IsRead {
			continue
		}
		cp := *n
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	total := len(all)
	if offset >= len(all) {
		return nil, total, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, total, nil
}

func (m *memNotificationRepo) MarkRead(_ context.Context, id int64, readAt time.Time) (bool, error) {
	n, ok := m.notifications[id]
	if !ok || n.IsDeleted || n.IsRead {
		return false, nil
	}
	n.IsRead = true
	n.ReadAt = &readAt
	return true, nil
}

func (m *memNotificationRepo) SoftDelete(_ context.Context, id int64, deletedAt time.Time) error {
	n, ok := m.notifications[id]
	if !ok || n.IsDeleted {
		return &apperr.NotFoundError{Entity: "notification", ID: id}
	}
	n.IsDeleted = true
	n.DeletedAt = &deletedAt
	return nil
}

type memBatchRepo struct {
	batches map[int64]*model.Batch
	nextID  int64
}

func newMemBatchRepo() *memBatchRepo {
	return &memBatchRepo{batches: make(map[int64]*model.Batch)}
}

func (m *memBatchRepo) Insert(_ context.Context, b *model.Batch) error {
	m.nextID++
	b.ID = m.nextID
	b.CreatedAt = time.Now()
	b.UpdatedAt = b.CreatedAt
	cp := *b
	m.batches[b.ID] = &cp
	return nil
}

func (m *memBatchRepo) GetByID(_ context.Context, id int64, includeDeleted bool) (*model.Batch, error) {
	b, ok := m.batches[id]
	if !ok || (b.IsDeleted && !includeDeleted) {
		return nil, &apperr.NotFoundError{Entity: "batch", ID: id}
	}
	cp := *b
	return &cp, nil
}

func (m *memBatchRepo) MarkScheduled(_ context.Context, id int64, scheduledAt time.Time) (bool, error) {
	b, ok := m.batches[id]
	if !ok || b.IsDeleted || b.Status != model.BatchDraft {
		return false, nil
	}
	b.Status = model.BatchScheduled
	b.ScheduledAt = &scheduledAt
	return true, nil
}

func (m *memBatchRepo) MarkRunning(_ context.Context, id int64, startedAt time.Time) (bool, error) {
	b, ok := m.batches[id]
	if !ok || b.IsDeleted || b.Status != model.BatchScheduled {
		return false, nil
	}
	b.Status = model.BatchRunning
	b.StartedAt = &startedAt
	return true, nil
}

func (m *memBatchRepo) MarkCompleted(_ context.Context, id int64, completedAt time.Time, stats *model.DeliveryStats) (bool, error) {
	b, ok := m.batches[id]
	if !ok || b.IsDeleted || b.Status != model.BatchRunning {
		return false, nil
	}
	b.Status = model.BatchCompleted
	b.CompletedAt = &completedAt
	b.SentCount = stats.Delivered
	b.FailedCount = stats.Failed
	b.SuccessRate = stats.SuccessRate
	return true, nil
}

func (m *memBatchRepo) MarkCanceled(_ context.Context, id int64) (bool, error) {
	b, ok := m.batches[id]
	if !ok || b.IsDeleted || b.Status == model.BatchCompleted || b.Status == model.BatchCanceled {
		return false, nil
	}
	b.Status = model.BatchCanceled
	return true, nil
}
