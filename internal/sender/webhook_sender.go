package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"notifyhub/internal/model"
	"notifyhub/pkg/metrics"
	"notifyhub/pkg/util"
)

// WebhookSender POSTs the notification as JSON to the channel's URL. A 2xx
// response is success; anything else is an error the worker classifies by
// status code.
type WebhookSender struct {
	client *http.Client
	logger *zap.Logger
}

func NewWebhookSender(timeout time.Duration, logger *zap.Logger) *WebhookSender {
	return &WebhookSender{
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (s *WebhookSender) Kind() model.ChannelKind { return model.ChannelWebhook }

type webhookPayload struct {
	NotificationID int64  `json:"notification_id"`
	Title          string `json:"title,omitempty"`
	Message        string `json:"message"`
	Priority       string `json:"priority"`
	SentAt         string `json:"sent_at"`
}

func (s *WebhookSender) Send(ctx context.Context, msg *Message) (*Result, error) {
	body, err := json.Marshal(webhookPayload{
		NotificationID: msg.NotificationID,
		Title:          msg.Subject,
		Message:        msg.Body,
		Priority:       string(msg.Priority),
		SentAt:         time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, msg.Destination, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		metrics.RecordSenderCallLatency(string(model.ChannelWebhook), "error", time.Since(start))
		return nil, fmt.Errorf("webhook call failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.RecordSenderCallLatency(string(model.ChannelWebhook), "error", time.Since(start))
		s.logger.Warn("Webhook rejected delivery",
			zap.Int64("notification_id", msg.NotificationID),
			zap.Int("status", resp.StatusCode),
		)
		return nil, &util.HTTPStatusError{StatusCode: resp.StatusCode}
	}

	metrics.RecordSenderCallLatency(string(model.ChannelWebhook), "ok", time.Since(start))
	return &Result{ExternalMessageID: resp.Header.Get("X-Message-ID"), StatusCode: resp.StatusCode}, nil
}
