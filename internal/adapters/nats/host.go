package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/sitewatch/internal/core/domain"
	"github.com/samirrijal/sitewatch/internal/core/ports"
)

// HostFacility is the device-local region monitor served by a DeviceHost.
type HostFacility interface {
	ports.RegionMonitor
	// Clear drops every registration, as a reboot does.
	Clear()
}

// DeviceHost is the device's side of the boundary: it answers the engine's
// region and motion requests and publishes what the device observes.
type DeviceHost struct {
	conn     *nats.Conn
	subjects Subjects
	facility HostFacility

	mu       sync.Mutex
	sampling bool
	interval time.Duration
	subs     []*nats.Subscription
}

func NewDeviceHost(conn *nats.Conn, subjects Subjects, facility HostFacility) *DeviceHost {
	return &DeviceHost{conn: conn, subjects: subjects, facility: facility}
}

// Serve subscribes the request subjects. Requests are handled with ctx as
// their parent context.
func (h *DeviceHost) Serve(ctx context.Context) error {
	handlers := map[string]func(context.Context, []byte) error{
		h.subjects.RemoveHandle(): func(ctx context.Context, data []byte) error {
			var req removeHandleRequest
			if err := json.Unmarshal(data, &req); err != nil {
				return err
			}
			return h.facility.RemoveByHandle(ctx, req.Handle)
		},
		h.subjects.AddRegions(): func(ctx context.Context, data []byte) error {
			var req addRegionsRequest
			if err := json.Unmarshal(data, &req); err != nil {
				return err
			}
			return h.facility.AddRegions(ctx, req.Handle, req.Regions)
		},
		h.subjects.RemoveIDs(): func(ctx context.Context, data []byte) error {
			var req removeIDsRequest
			if err := json.Unmarshal(data, &req); err != nil {
				return err
			}
			return h.facility.RemoveByIDs(ctx, req.IDs)
		},
		h.subjects.MotionRequest(): func(_ context.Context, data []byte) error {
			var req motionRequest
			if err := json.Unmarshal(data, &req); err != nil {
				return err
			}
			interval := time.Duration(req.IntervalMillis) * time.Millisecond
			h.mu.Lock()
			h.sampling = true
			h.interval = interval
			h.mu.Unlock()
			slog.Info("motion sampling requested", "interval", interval.String())
			return nil
		},
		h.subjects.MotionRemove(): func(context.Context, []byte) error {
			h.stopSampling()
			slog.Info("motion sampling removed")
			return nil
		},
	}

	for subject, handle := range handlers {
		handle := handle
		sub, err := h.conn.Subscribe(subject, func(msg *nats.Msg) {
			r := replyFromError(handle(ctx, msg.Data))
			data, _ := json.Marshal(r)
			if err := msg.Respond(data); err != nil {
				slog.Warn("reply failed", "subject", msg.Subject, "error", err)
			}
		})
		if err != nil {
			h.Close()
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		h.track(sub)
	}
	return nil
}

// Sampling reports whether the engine has asked for motion samples and at
// which interval.
func (h *DeviceHost) Sampling() (bool, time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sampling, h.interval
}

func (h *DeviceHost) stopSampling() {
	h.mu.Lock()
	h.sampling = false
	h.interval = 0
	h.mu.Unlock()
}

// PublishMotion reports a classification result. Nothing is sent unless the
// engine currently requests samples; it reports whether a sample went out.
func (h *DeviceHost) PublishMotion(samples ...domain.MotionSample) (bool, error) {
	if on, _ := h.Sampling(); !on {
		return false, nil
	}
	m := motionMessage{At: time.Now().UTC()}
	for _, s := range samples {
		m.Activities = append(m.Activities, activity{Type: s.Kind, Confidence: s.ConfidencePercent})
	}
	return true, h.publish(h.subjects.MotionSample(), m)
}

// PublishTransition reports one facility event naming every triggering region.
func (h *DeviceHost) PublishTransition(kind domain.RawTransitionKind, regionIDs []string, at time.Time) error {
	return h.publish(h.subjects.Transition(), transitionMessage{
		Transition: kind.String(),
		RegionIDs:  regionIDs,
		ObservedAt: at,
	})
}

// PublishError reports a facility error event instead of a transition.
func (h *DeviceHost) PublishError(code domain.StatusCode) error {
	return h.publish(h.subjects.Transition(), transitionMessage{ErrorCode: int(code), ObservedAt: time.Now().UTC()})
}

// Boot simulates a device restart: registrations and motion sampling are
// lost, then the boot signal is published.
func (h *DeviceHost) Boot(action string) error {
	h.facility.Clear()
	h.stopSampling()
	return h.publish(h.subjects.Boot(), bootMessage{Action: action})
}

// OnIndicator calls fn for every acknowledgment the engine shows on this device.
func (h *DeviceHost) OnIndicator(fn func(siteID, siteName, text string)) error {
	return h.subscribeJSON(h.subjects.Indicator(), func(data []byte) error {
		var m indicatorMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		fn(m.SiteID, m.SiteName, m.Text)
		return nil
	})
}

// OnUIUpdate calls fn for every UI notification.
func (h *DeviceHost) OnUIUpdate(fn func(UIUpdate)) error {
	return h.subscribeJSON(UIUpdateSubject, func(data []byte) error {
		var u UIUpdate
		if err := json.Unmarshal(data, &u); err != nil {
			return err
		}
		fn(u)
		return nil
	})
}

// OnLocation calls fn for every location fix injected on the device's
// location subject.
func (h *DeviceHost) OnLocation(fn func(domain.LocationFix)) error {
	return h.subscribeJSON(h.subjects.Location(), func(data []byte) error {
		var m locationMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		at := m.At
		if at.IsZero() {
			at = time.Now().UTC()
		}
		fn(domain.LocationFix{Latitude: m.Latitude, Longitude: m.Longitude, At: at})
		return nil
	})
}

func (h *DeviceHost) subscribeJSON(subject string, fn func([]byte) error) error {
	sub, err := h.conn.Subscribe(subject, func(msg *nats.Msg) {
		if err := fn(msg.Data); err != nil {
			slog.Warn("dropping undecodable message", "subject", msg.Subject, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	h.track(sub)
	return nil
}

func (h *DeviceHost) publish(subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", subject, err)
	}
	return h.conn.Publish(subject, data)
}

func (h *DeviceHost) track(sub *nats.Subscription) {
	h.mu.Lock()
	h.subs = append(h.subs, sub)
	h.mu.Unlock()
}

func (h *DeviceHost) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.subs {
		_ = s.Unsubscribe()
	}
	h.subs = nil
}
