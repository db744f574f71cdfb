package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"notifyhub/internal/apperr"
	"notifyhub/internal/model"
	"notifyhub/pkg/metrics"
)

// retryBackoff is the delay before each retry, indexed by retry_count.
// These exact values are load-bearing for delivery pacing; levels beyond the
// table extend by the last multiplier (x3).
var retryBackoff = [...]time.Duration{
	1 * time.Minute,
	5 * time.Minute,
	15 * time.Minute,
}

// backoffFor returns the delay applied after the retryCount-th failure.
func backoffFor(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	if retryCount <= len(retryBackoff) {
		return retryBackoff[retryCount-1]
	}
	d := retryBackoff[len(retryBackoff)-1]
	for i := len(retryBackoff); i < retryCount; i++ {
		d *= 3
	}
	return d
}

// DeliveryRepo is the store surface of the retry state machine. All status
// transitions are conditional updates that only match non-terminal rows; the
// bool results report whether the transition actually happened.
type DeliveryRepo interface {
	GetByID(ctx context.Context, id int64) (*model.DeliveryAttempt, error)
	GetPending(ctx context.Context, now time.Time, limit int) ([]*model.DeliveryAttempt, error)
	Claim(ctx context.Context, id int64, workerID string, now, leaseUntil time.Time) (bool, error)
	MarkDelivered(ctx context.Context, id int64, workerID string, deliveredAt time.Time, externalMessageID string) (bool, error)
	MarkRetrying(ctx context.Context, id int64, workerID string, retryCount int, nextRetryAt time.Time, errorMessage string, statusCode *int) (bool, error)
	MarkFailed(ctx context.Context, id int64, workerID string, retryCount int, errorMessage string, statusCode *int) (bool, error)
	ListByNotification(ctx context.Context, notificationID int64, includeDeleted bool) ([]*model.DeliveryAttempt, error)
	StatsByNotification(ctx context.Context, notificationID int64) (*model.DeliveryStats, error)
	StatsByBatch(ctx context.Context, batchID int64) (*model.DeliveryStats, error)
}

// DeliveryService owns the delivery attempt state machine:
//
//	pending -> delivered | pending -> retrying -> ... -> failed | pending -> failed
//
// Retry eligibility is computed on read (GetPending), never pushed by a
// timer, so correctness does not depend on a single active clock.
type DeliveryService struct {
	repo   DeliveryRepo
	logger *zap.Logger
	now    func() time.Time
}

func NewDeliveryService(repo DeliveryRepo, logger *zap.Logger) *DeliveryService {
	return &DeliveryService{repo: repo, logger: logger, now: time.Now}
}

// NewAttempt builds the pending attempt for one notification/channel pair.
// MaxRetries is frozen from the template's retry policy.
func NewAttempt(notificationID int64, channel *model.Channel, policy model.RetryPolicy) *model.DeliveryAttempt {
	maxRetries := policy.MaxRetries
	if maxRetries <= 0 {
		maxRetries = model.DefaultRetryPolicy().MaxRetries
	}
	return &model.DeliveryAttempt{
		NotificationID: notificationID,
		ChannelID:      channel.ID,
		ChannelKind:    channel.Kind,
		Status:         model.DeliveryPending,
		MaxRetries:     maxRetries,
	}
}

// GetPending returns attempts due for dispatch, oldest due first. Read-only:
// the caller must Claim each attempt before working on it.
func (s *DeliveryService) GetPending(ctx context.Context, limit int) ([]*model.DeliveryAttempt, error) {
	return s.repo.GetPending(ctx, s.now(), limit)
}

// Claim takes the dispatch lease on an attempt for leaseDuration. A false
// result means another worker holds a live lease or the attempt is already
// terminal. Completions that pass a worker id only succeed while that worker
// still holds the claim.
func (s *DeliveryService) Claim(ctx context.Context, attemptID int64, workerID string, leaseDuration time.Duration) (bool, error) {
	if _, err := s.repo.GetByID(ctx, attemptID); err != nil {
		return false, err
	}
	now := s.now()
	return s.repo.Claim(ctx, attemptID, workerID, now, now.Add(leaseDuration))
}

// MarkDelivered transitions a pending/retrying attempt to terminal delivered.
// Completing an already-terminal attempt fails with InvalidTransitionError so
// double completions are surfaced, never swallowed. A non-empty workerID is
// checked against the current claim; an empty workerID skips the check.
func (s *DeliveryService) MarkDelivered(ctx context.Context, attemptID int64, workerID, externalMessageID string) (*model.DeliveryAttempt, error) {
	a, err := s.repo.GetByID(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if a.Status.Terminal() {
		return nil, &apperr.InvalidTransitionError{AttemptID: attemptID, From: string(a.Status), To: string(model.DeliveryDelivered)}
	}

	ok, err := s.repo.MarkDelivered(ctx, attemptID, workerID, s.now(), externalMessageID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.completionConflict(ctx, attemptID, model.DeliveryDelivered, "complete")
	}

	metrics.IncrementDeliveryAttempts(string(a.ChannelKind), "delivered")
	s.logger.Info("Delivery succeeded",
		zap.Int64("attempt_id", attemptID),
		zap.String("channel", string(a.ChannelKind)),
		zap.String("external_message_id", externalMessageID),
	)
	return s.repo.GetByID(ctx, attemptID)
}

// MarkFailed records a failed send. Retryable failures within the retry
// budget move to retrying with the next slot from the backoff table;
// everything else is terminal failed with the retry schedule cleared.
func (s *DeliveryService) MarkFailed(ctx context.Context, attemptID int64, workerID, errorMessage string, statusCode *int, shouldRetry bool) (*model.DeliveryAttempt, error) {
	a, err := s.repo.GetByID(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if a.Status.Terminal() {
		return nil, &apperr.InvalidTransitionError{AttemptID: attemptID, From: string(a.Status), To: string(model.DeliveryFailed)}
	}

	nextCount := a.RetryCount + 1
	if !shouldRetry || nextCount > a.MaxRetries {
		// retry_count stays within max_retries even on the final failure.
		terminalCount := a.RetryCount
		if shouldRetry && terminalCount < a.MaxRetries {
			terminalCount = nextCount
		}
		ok, err := s.repo.MarkFailed(ctx, attemptID, workerID, terminalCount, errorMessage, statusCode)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, s.completionConflict(ctx, attemptID, model.DeliveryFailed, "fail")
		}
		metrics.IncrementDeliveryAttempts(string(a.ChannelKind), "failed")
		s.logger.Warn("Delivery failed terminally",
			zap.Int64("attempt_id", attemptID),
			zap.String("channel", string(a.ChannelKind)),
			zap.Int("retry_count", terminalCount),
			zap.Bool("retryable", shouldRetry),
			zap.String("error", errorMessage),
		)
		return s.repo.GetByID(ctx, attemptID)
	}

	nextRetryAt := s.now().Add(backoffFor(nextCount))
	ok, err := s.repo.MarkRetrying(ctx, attemptID, workerID, nextCount, nextRetryAt, errorMessage, statusCode)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.completionConflict(ctx, attemptID, model.DeliveryRetrying, "fail")
	}

	metrics.IncrementDeliveryAttempts(string(a.ChannelKind), "retrying")
	s.logger.Info("Delivery failed, retry scheduled",
		zap.Int64("attempt_id", attemptID),
		zap.String("channel", string(a.ChannelKind)),
		zap.Int("retry_count", nextCount),
		zap.Time("next_retry_at", nextRetryAt),
	)
	return s.repo.GetByID(ctx, attemptID)
}

// completionConflict explains a conditional transition that matched no row:
// either the attempt turned terminal since the caller last read it, or the
// caller's claim was lost to another worker.
func (s *DeliveryService) completionConflict(ctx context.Context, attemptID int64, to model.DeliveryStatus, op string) error {
	cur, err := s.repo.GetByID(ctx, attemptID)
	if err != nil {
		return err
	}
	if cur.Status.Terminal() {
		return &apperr.InvalidTransitionError{AttemptID: attemptID, From: string(cur.Status), To: string(to)}
	}
	return &apperr.InvalidStateError{Entity: "delivery attempt", ID: attemptID, State: "claimed by another worker", Op: op}
}

// StatsForNotification aggregates attempt outcomes for one notification.
func (s *DeliveryService) StatsForNotification(ctx context.Context, notificationID int64) (*model.DeliveryStats, error) {
	return s.repo.StatsByNotification(ctx, notificationID)
}

// AttemptsForNotification lists the attempts of one notification.
func (s *DeliveryService) AttemptsForNotification(ctx context.Context, notificationID int64, includeDeleted bool) ([]*model.DeliveryAttempt, error) {
	return s.repo.ListByNotification(ctx, notificationID, includeDeleted)
}

// StatsForBatch aggregates attempt outcomes across a batch.
func (s *DeliveryService) StatsForBatch(ctx context.Context, batchID int64) (*model.DeliveryStats, error) {
	return s.repo.StatsByBatch(ctx, batchID)
}
