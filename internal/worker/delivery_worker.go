// Package worker runs the delivery loop: it polls for due attempts, claims
// each one under a lease, calls the channel provider and records the outcome
// through the delivery state machine.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"notifyhub/internal/apperr"
	"notifyhub/internal/model"
	"notifyhub/internal/sender"
	"notifyhub/internal/service"
	"notifyhub/pkg/circuitbreaker"
	"notifyhub/pkg/util"
)

// Config tunes the polling loop.
type Config struct {
	PollInterval  time.Duration `yaml:"poll_interval"`
	BatchSize     int           `yaml:"batch_size"`
	LeaseDuration time.Duration `yaml:"lease_duration"`
}

func DefaultConfig() Config {
	return Config{
		PollInterval:  5 * time.Second,
		BatchSize:     50,
		LeaseDuration: 2 * time.Minute,
	}
}

// notificationSource is the read side the worker needs to build messages.
type notificationSource interface {
	GetByID(ctx context.Context, id int64, includeDeleted bool) (*model.Notification, error)
}

type channelSource interface {
	GetByID(ctx context.Context, id int64, includeDeleted bool) (*model.Channel, error)
}

// DeliveryWorker drains due delivery attempts. Several workers can run
// against the same database; the claim lease keeps them off each other's
// attempts.
type DeliveryWorker struct {
	id            string
	cfg           Config
	delivery      *service.DeliveryService
	notifications notificationSource
	channels      channelSource
	senders       *sender.Registry
	breakers      map[model.ChannelKind]*circuitbreaker.CircuitBreaker
	logger        *zap.Logger
}

func NewDeliveryWorker(
	cfg Config,
	delivery *service.DeliveryService,
	notifications notificationSource,
	channels channelSource,
	senders *sender.Registry,
	logger *zap.Logger,
) *DeliveryWorker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.LeaseDuration <= 0 {
		cfg.LeaseDuration = DefaultConfig().LeaseDuration
	}

	breakers := make(map[model.ChannelKind]*circuitbreaker.CircuitBreaker)
	for _, kind := range []model.ChannelKind{
		model.ChannelEmail, model.ChannelSMS, model.ChannelPush,
		model.ChannelInApp, model.ChannelWebhook,
	} {
		breakers[kind] = circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig())
	}

	id := "worker-" + uuid.NewString()
	return &DeliveryWorker{
		id:            id,
		cfg:           cfg,
		delivery:      delivery,
		notifications: notifications,
		channels:      channels,
		senders:       senders,
		breakers:      breakers,
		logger:        logger.With(zap.String("worker_id", id)),
	}
}

// Run polls until ctx is canceled.
func (w *DeliveryWorker) Run(ctx context.Context) error {
	w.logger.Info("Delivery worker started",
		zap.Duration("poll_interval", w.cfg.PollInterval),
		zap.Int("batch_size", w.cfg.BatchSize),
	)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Delivery worker stopping")
			return ctx.Err()
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

// poll drains one batch of due attempts.
func (w *DeliveryWorker) poll(ctx context.Context) {
	attempts, err := w.delivery.GetPending(ctx, w.cfg.BatchSize)
	if err != nil {
		w.logger.Error("Failed to fetch pending deliveries", zap.Error(err))
		return
	}

	for _, a := range attempts {
		if ctx.Err() != nil {
			return
		}
		claimed, err := w.delivery.Claim(ctx, a.ID, w.id, w.cfg.LeaseDuration)
		if err != nil {
			w.logger.Error("Failed to claim delivery attempt", zap.Int64("attempt_id", a.ID), zap.Error(err))
			continue
		}
		if !claimed {
			// Another worker holds the lease.
			continue
		}
		w.process(ctx, a)
	}
}

func (w *DeliveryWorker) process(ctx context.Context, a *model.DeliveryAttempt) {
	n, err := w.notifications.GetByID(ctx, a.NotificationID, false)
	if err != nil {
		w.failOrDefer(ctx, a, err)
		return
	}
	ch, err := w.channels.GetByID(ctx, a.ChannelID, false)
	if err != nil {
		w.failOrDefer(ctx, a, err)
		return
	}
	if !ch.Deliverable() {
		w.recordFailure(ctx, a, errors.New("channel no longer deliverable"), nil, false)
		return
	}

	snd, err := w.senders.For(a.ChannelKind)
	if err != nil {
		w.recordFailure(ctx, a, err, nil, false)
		return
	}

	msg := &sender.Message{
		NotificationID: n.ID,
		ChannelKind:    a.ChannelKind,
		Destination:    ch.Value,
		Subject:        n.Title,
		Body:           n.Message,
		Priority:       n.Priority,
	}

	var result *sender.Result
	sendErr := w.breakers[a.ChannelKind].Execute(func() error {
		var err error
		result, err = snd.Send(ctx, msg)
		return err
	})

	if errors.Is(sendErr, circuitbreaker.ErrCircuitBreakerOpen) {
		// The provider is tripped. Leave the attempt claimed; the lease
		// lapses and a later poll retries without burning the budget.
		w.logger.Warn("Provider circuit open, deferring attempt",
			zap.Int64("attempt_id", a.ID),
			zap.String("channel", string(a.ChannelKind)),
		)
		return
	}
	if sendErr != nil {
		var statusCode *int
		var statusErr *util.HTTPStatusError
		if errors.As(sendErr, &statusErr) {
			statusCode = &statusErr.StatusCode
		}
		retryable, _ := util.IsRetryableError(sendErr)
		w.recordFailure(ctx, a, sendErr, statusCode, retryable)
		return
	}

	if _, err := w.delivery.MarkDelivered(ctx, a.ID, w.id, result.ExternalMessageID); err != nil {
		w.logger.Error("Failed to record delivery",
			zap.Int64("attempt_id", a.ID),
			zap.Error(err),
		)
	}
}

// failOrDefer handles a failed notification/channel load. A missing row is
// definitive and fails the attempt; anything else looks like a store outage,
// so the attempt is left claimed and retried after its lease lapses.
func (w *DeliveryWorker) failOrDefer(ctx context.Context, a *model.DeliveryAttempt, cause error) {
	var notFound *apperr.NotFoundError
	if errors.As(cause, &notFound) {
		w.recordFailure(ctx, a, cause, nil, false)
		return
	}
	w.logger.Warn("Deferring attempt, load failed",
		zap.Int64("attempt_id", a.ID),
		zap.Error(cause),
	)
}

func (w *DeliveryWorker) recordFailure(ctx context.Context, a *model.DeliveryAttempt, cause error, statusCode *int, retryable bool) {
	if _, err := w.delivery.MarkFailed(ctx, a.ID, w.id, cause.Error(), statusCode, retryable); err != nil {
		w.logger.Error("Failed to record delivery failure",
			zap.Int64("attempt_id", a.ID),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
	}
}
