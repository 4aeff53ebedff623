package natsadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/sitewatch/internal/core/domain"
)

// DeviceBridge is the engine's side of the device boundary. It implements
// ports.RegionMonitor and ports.MotionUpdates over NATS request/reply and
// turns device events into raw transitions and boot signals.
//
// Device events travel on core subjects: delivery is at-most-once and
// nothing is redelivered after a crash.
type DeviceBridge struct {
	conn     *nats.Conn
	subjects Subjects
	timeout  time.Duration

	mu        sync.Mutex
	motionSub *nats.Subscription
	subs      []*nats.Subscription
}

// NewDeviceBridge creates a bridge for one device. timeout bounds every
// request to the device.
func NewDeviceBridge(conn *nats.Conn, subjects Subjects, timeout time.Duration) *DeviceBridge {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &DeviceBridge{conn: conn, subjects: subjects, timeout: timeout}
}

func (b *DeviceBridge) request(ctx context.Context, subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	msg, err := b.conn.RequestWithContext(ctx, subject, data)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) {
			return &domain.FacilityError{Code: domain.StatusNotAvailable, Message: "device not reachable"}
		}
		return fmt.Errorf("request %s: %w", subject, err)
	}

	var r reply
	if err := json.Unmarshal(msg.Data, &r); err != nil {
		return fmt.Errorf("decode reply from %s: %w", subject, err)
	}
	return r.err()
}

func (b *DeviceBridge) RemoveByHandle(ctx context.Context, handle string) error {
	return b.request(ctx, b.subjects.RemoveHandle(), removeHandleRequest{Handle: handle})
}

func (b *DeviceBridge) AddRegions(ctx context.Context, handle string, regions []domain.MonitoredRegion) error {
	return b.request(ctx, b.subjects.AddRegions(), addRegionsRequest{Handle: handle, Regions: regions})
}

func (b *DeviceBridge) RemoveByIDs(ctx context.Context, ids []string) error {
	return b.request(ctx, b.subjects.RemoveIDs(), removeIDsRequest{IDs: ids})
}

// RequestUpdates subscribes sink to motion samples and asks the device to
// start sampling at interval. A previous subscription is replaced.
func (b *DeviceBridge) RequestUpdates(ctx context.Context, interval time.Duration, sink func(domain.MotionSample)) error {
	b.mu.Lock()
	if b.motionSub != nil {
		_ = b.motionSub.Unsubscribe()
		b.motionSub = nil
	}
	sub, err := b.conn.Subscribe(b.subjects.MotionSample(), func(msg *nats.Msg) {
		var m motionMessage
		if err := json.Unmarshal(msg.Data, &m); err != nil {
			slog.Warn("dropping undecodable motion sample", "error", err)
			return
		}
		sample := m.mostProbable()
		slog.Debug("motion sample", "most_probable", sample.String(), "activities", m.Activities)
		sink(sample)
	})
	if err != nil {
		b.mu.Unlock()
		return fmt.Errorf("subscribe motion samples: %w", err)
	}
	b.motionSub = sub
	b.mu.Unlock()

	return b.request(ctx, b.subjects.MotionRequest(), motionRequest{IntervalMillis: interval.Milliseconds()})
}

// RemoveUpdates stops local delivery and asks the device to stop sampling.
func (b *DeviceBridge) RemoveUpdates(ctx context.Context) error {
	b.mu.Lock()
	if b.motionSub != nil {
		_ = b.motionSub.Unsubscribe()
		b.motionSub = nil
	}
	b.mu.Unlock()

	return b.request(ctx, b.subjects.MotionRemove(), struct{}{})
}

// SubscribeTransitions forwards raw transitions to out in delivery order
// until ctx is done. Facility error events are logged and dropped.
func (b *DeviceBridge) SubscribeTransitions(ctx context.Context, out chan<- domain.RawTransitionEvent) error {
	sub, err := b.conn.Subscribe(b.subjects.Transition(), func(msg *nats.Msg) {
		var m transitionMessage
		if err := json.Unmarshal(msg.Data, &m); err != nil {
			slog.Warn("dropping undecodable transition", "error", err)
			return
		}
		events, err := m.toRawEvents()
		if err != nil {
			slog.Error("geofencing error event", "error", err, "kind", domain.Classify(err))
			return
		}
		for _, ev := range events {
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe transitions: %w", err)
	}
	b.track(sub)
	return nil
}

// SubscribeBoot calls handler with the action of every device boot signal.
func (b *DeviceBridge) SubscribeBoot(handler func(action string)) error {
	sub, err := b.conn.Subscribe(b.subjects.Boot(), func(msg *nats.Msg) {
		var m bootMessage
		if err := json.Unmarshal(msg.Data, &m); err != nil {
			slog.Warn("dropping undecodable boot signal", "error", err)
			return
		}
		handler(m.Action)
	})
	if err != nil {
		return fmt.Errorf("subscribe boot: %w", err)
	}
	b.track(sub)
	return nil
}

func (b *DeviceBridge) track(sub *nats.Subscription) {
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
}

// Close removes every subscription made by the bridge.
func (b *DeviceBridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs {
		_ = s.Unsubscribe()
	}
	b.subs = nil
	if b.motionSub != nil {
		_ = b.motionSub.Unsubscribe()
		b.motionSub = nil
	}
}
