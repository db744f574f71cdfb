package sender

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"notifyhub/internal/model"
	"notifyhub/pkg/metrics"
)

// LogSender is a development stand-in for a real provider: it logs the
// outbound message and reports success with a synthetic provider id. Used for
// email, sms, push and in_app until real provider credentials are wired in.
type LogSender struct {
	kind   model.ChannelKind
	logger *zap.Logger
}

func NewLogSender(kind model.ChannelKind, logger *zap.Logger) *LogSender {
	return &LogSender{kind: kind, logger: logger}
}

func (s *LogSender) Kind() model.ChannelKind { return s.kind }

func (s *LogSender) Send(ctx context.Context, msg *Message) (*Result, error) {
	start := time.Now()
	id := uuid.NewString()

	s.logger.Info("Message sent",
		zap.String("channel", string(s.kind)),
		zap.Int64("notification_id", msg.NotificationID),
		zap.String("destination", msg.Destination),
		zap.String("subject", msg.Subject),
		zap.String("external_message_id", id),
	)
	metrics.RecordSenderCallLatency(string(s.kind), "ok", time.Since(start))

	return &Result{ExternalMessageID: id, StatusCode: 200}, nil
}
