package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/sitewatch/internal/core/domain"
)

// Connect opens a NATS connection that keeps reconnecting forever.
func Connect(url, name string) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return conn, nil
}

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher enables JetStream on conn and makes sure the transition
// stream exists.
func NewPublisher(conn *nats.Conn) (*Publisher, error) {
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	cfg := nats.StreamConfig{
		Name:       TransitionStream,
		Subjects:   []string{TransitionSubjectAll},
		Retention:  nats.LimitsPolicy,
		MaxAge:     7 * 24 * time.Hour,
		Storage:    nats.FileStorage,
		Duplicates: 10 * time.Minute,
	}
	if _, err := js.AddStream(&cfg); err != nil {
		// Stream may already exist, try update
		if _, err := js.UpdateStream(&cfg); err != nil {
			return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

// PublishTransition publishes ev on geofence.transition.<siteId>. The event
// id is used as the JetStream message id so a retried publish is stored once.
func (p *Publisher) PublishTransition(ctx context.Context, ev *domain.ConfirmedTransitionEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := p.js.Publish(TransitionSubject(ev.SiteID), data, nats.MsgId(ev.ID), nats.Context(ctx)); err != nil {
		return fmt.Errorf("publish transition %s: %w", ev.ID, err)
	}
	return nil
}

// UINotifier implements ports.Notifier by publishing UI updates on a core subject.
type UINotifier struct {
	conn  *nats.Conn
	names func(siteID string) (string, bool)
}

// NewUINotifier creates a notifier. names may be nil.
func NewUINotifier(conn *nats.Conn, names func(siteID string) (string, bool)) *UINotifier {
	return &UINotifier{conn: conn, names: names}
}

func (n *UINotifier) OnConfirmedEntry(siteID, siteName string) {
	n.publish(UIUpdate{SiteID: siteID, Transition: "enter", SiteName: siteName})
}

func (n *UINotifier) OnConfirmedExit(siteID string) {
	u := UIUpdate{SiteID: siteID, Transition: "exit"}
	if n.names != nil {
		u.SiteName, _ = n.names(siteID)
	}
	n.publish(u)
}

// publish is fire-and-forget: core NATS publishes only buffer locally.
func (n *UINotifier) publish(u UIUpdate) {
	data, _ := json.Marshal(u)
	_ = n.conn.Publish(UIUpdateSubject, data)
}

// Indicator implements ports.StatusIndicator by publishing the acknowledgment
// to the device. conn.Publish only writes to the client buffer, so it never
// blocks on the network.
type Indicator struct {
	conn     *nats.Conn
	subjects Subjects
}

// NewIndicator creates an indicator for one device.
func NewIndicator(conn *nats.Conn, subjects Subjects) *Indicator {
	return &Indicator{conn: conn, subjects: subjects}
}

func (i *Indicator) Acknowledge(siteID, siteName string) error {
	data, err := json.Marshal(indicatorMessage{
		SiteID:   siteID,
		SiteName: siteName,
		Text:     "Arrived at " + siteName,
	})
	if err != nil {
		return err
	}
	return i.conn.Publish(i.subjects.Indicator(), data)
}
