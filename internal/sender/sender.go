// Package sender holds the channel provider adapters the delivery worker
// calls to push a notification out. Each adapter wraps one provider kind
// behind the same Send signature so the worker stays provider-agnostic.
package sender

import (
	"context"
	"fmt"

	"notifyhub/internal/model"
)

// Message is the provider-facing payload for one delivery.
type Message struct {
	NotificationID int64
	ChannelKind    model.ChannelKind
	Destination    string
	Subject        string
	Body           string
	Priority       model.Priority
}

// Result reports a successful provider call.
type Result struct {
	ExternalMessageID string
	StatusCode        int
}

// ChannelSender pushes one message to its provider. Implementations return an
// error for any failure; the worker classifies it as retryable or not.
type ChannelSender interface {
	Send(ctx context.Context, msg *Message) (*Result, error)
	Kind() model.ChannelKind
}

// Registry maps channel kinds to their senders.
type Registry struct {
	senders map[model.ChannelKind]ChannelSender
}

func NewRegistry(senders ...ChannelSender) *Registry {
	r := &Registry{senders: make(map[model.ChannelKind]ChannelSender, len(senders))}
	for _, s := range senders {
		r.senders[s.Kind()] = s
	}
	return r
}

// For returns the sender for a channel kind.
func (r *Registry) For(kind model.ChannelKind) (ChannelSender, error) {
	s, ok := r.senders[kind]
	if !ok {
		return nil, fmt.Errorf("no sender registered for channel kind %q", kind)
	}
	return s, nil
}
