package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/sitewatch/internal/core/domain"
)

// TransitionSubscriber consumes confirmed transitions from JetStream with a
// durable consumer, so a restarted consumer resumes where it stopped.
// Unsubscribing would delete the durable consumer, so subscriptions end when
// the owner drains the connection.
type TransitionSubscriber struct {
	js   nats.JetStreamContext
	subs []*nats.Subscription
}

// NewTransitionSubscriber enables JetStream on conn.
func NewTransitionSubscriber(conn *nats.Conn) (*TransitionSubscriber, error) {
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	return &TransitionSubscriber{js: js}, nil
}

// Subscribe delivers every confirmed transition to handler. A handler error
// naks the message for redelivery, up to three attempts; undecodable
// messages are terminated.
func (s *TransitionSubscriber) Subscribe(ctx context.Context, durable string, handler func(ctx context.Context, ev *domain.ConfirmedTransitionEvent) error) error {
	sub, err := s.js.Subscribe(TransitionSubjectAll, func(msg *nats.Msg) {
		var ev domain.ConfirmedTransitionEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			slog.Warn("dropping undecodable transition", "subject", msg.Subject, "error", err)
			_ = msg.Term()
			return
		}
		if err := handler(ctx, &ev); err != nil {
			slog.Warn("transition handler failed", "site_id", ev.SiteID, "event_id", ev.ID, "error", err)
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	},
		nats.BindStream(TransitionStream),
		nats.Durable(durable),
		nats.ManualAck(),
		nats.MaxDeliver(3),
	)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", TransitionSubjectAll, err)
	}
	s.subs = append(s.subs, sub)
	return nil
}

// Pending reports messages delivered to this client but not yet handled.
func (s *TransitionSubscriber) Pending() int {
	total := 0
	for _, sub := range s.subs {
		if n, _, err := sub.Pending(); err == nil {
			total += n
		}
	}
	return total
}
