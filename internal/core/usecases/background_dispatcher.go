package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/samirrijal/sitewatch/internal/core/domain"
	"github.com/samirrijal/sitewatch/internal/core/ports"
	"github.com/samirrijal/sitewatch/internal/pkg/metrics"
	"github.com/samirrijal/sitewatch/internal/pkg/telemetry"
)

const tracerName = "github.com/samirrijal/sitewatch/internal/core/usecases"

// SiteNamer resolves a site name without blocking.
type SiteNamer interface {
	Name(siteID string) (string, bool)
}

// DispatcherDeps holds the dispatcher's collaborators. Publisher, Transitions
// and Analyzer are optional.
type DispatcherDeps struct {
	Names       SiteNamer
	Indicator   ports.StatusIndicator
	Notifier    ports.Notifier
	Publisher   ports.EventPublisher
	Transitions ports.TransitionRepository
	Analyzer    ports.VisitAnalyzer
}

// BackgroundDispatcher reacts to confirmed transitions.
//
// An entry is acknowledged on the caller's goroutine as soon as it is woken,
// using only in-memory data. The slower side effects run later on the Run
// worker, so a backlog of effects never delays an acknowledgment. An
// acknowledgment that lands after the deadline is a fatal
// *domain.DeadlineViolation panic.
type BackgroundDispatcher struct {
	deps          DispatcherDeps
	deadline      time.Duration
	effectTimeout time.Duration
	now           func() time.Time
	queue         chan pendingEffects
	tracer        trace.Tracer
}

// pendingEffects is an event whose acknowledgment, if any, is already done.
type pendingEffects struct {
	ev      domain.ConfirmedTransitionEvent
	name    string
	wokenAt time.Time
}

// DispatcherOption customises a BackgroundDispatcher.
type DispatcherOption func(*BackgroundDispatcher)

// WithClock overrides the wall clock used for deadline accounting.
func WithClock(now func() time.Time) DispatcherOption {
	return func(d *BackgroundDispatcher) { d.now = now }
}

// WithEffectTimeout bounds each post-acknowledgment side effect.
func WithEffectTimeout(t time.Duration) DispatcherOption {
	return func(d *BackgroundDispatcher) {
		if t > 0 {
			d.effectTimeout = t
		}
	}
}

// WithQueueSize sets how many confirmed events may wait for dispatch.
func WithQueueSize(n int) DispatcherOption {
	return func(d *BackgroundDispatcher) {
		if n > 0 {
			d.queue = make(chan pendingEffects, n)
		}
	}
}

// NewBackgroundDispatcher creates a dispatcher with the platform ack deadline.
func NewBackgroundDispatcher(deps DispatcherDeps, opts ...DispatcherOption) *BackgroundDispatcher {
	d := &BackgroundDispatcher{
		deps:          deps,
		deadline:      domain.AckDeadline,
		effectTimeout: 10 * time.Second,
		now:           time.Now,
		queue:         make(chan pendingEffects, 64),
		tracer:        otel.Tracer(tracerName),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Enqueue wakes the dispatcher for ev. Entries are acknowledged before
// Enqueue returns; the side effects are handed to the Run loop, blocking
// while the queue is full.
func (d *BackgroundDispatcher) Enqueue(ctx context.Context, ev domain.ConfirmedTransitionEvent) error {
	p, ok := d.wake(ctx, ev)
	if !ok {
		return nil
	}
	select {
	case d.queue <- p:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run performs queued side effects one event at a time until ctx is done.
// Events are not redelivered: whatever is still queued when ctx ends is
// dropped.
func (d *BackgroundDispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			if n := len(d.queue); n > 0 {
				slog.Warn("dispatcher stopping with undelivered events", "dropped", n)
			}
			return nil
		case p := <-d.queue:
			slog.Debug("dispatching side effects", "site_id", p.ev.SiteID, "lag", d.now().Sub(p.wokenAt).String())
			d.effects(ctx, p)
		}
	}
}

// Dispatch handles one confirmed event synchronously: acknowledgment first,
// then the side effects.
func (d *BackgroundDispatcher) Dispatch(ctx context.Context, ev domain.ConfirmedTransitionEvent) {
	if p, ok := d.wake(ctx, ev); ok {
		d.effects(ctx, p)
	}
}

// wake stamps the wake-up time and acknowledges entries. It reports false
// for events the dispatcher does not handle.
func (d *BackgroundDispatcher) wake(ctx context.Context, ev domain.ConfirmedTransitionEvent) (pendingEffects, bool) {
	p := pendingEffects{ev: ev, wokenAt: d.now()}
	switch ev.Kind {
	case domain.Entered:
		p.name = d.acknowledge(ctx, ev, p.wokenAt)
	case domain.Exited:
	default:
		slog.Warn("dispatcher ignoring event of unknown kind", "site_id", ev.SiteID, "kind", string(ev.Kind))
		return p, false
	}
	return p, true
}

func (d *BackgroundDispatcher) effects(ctx context.Context, p pendingEffects) {
	ev := p.ev
	ctx, span := d.tracer.Start(ctx, "dispatch "+string(ev.Kind),
		trace.WithAttributes(telemetry.TransitionAttrs(ev.ID, ev.SiteID, string(ev.Kind))...))
	defer span.End()

	if ev.Kind == domain.Entered {
		d.runEffect(ctx, "notify", func(context.Context) error {
			d.deps.Notifier.OnConfirmedEntry(ev.SiteID, p.name)
			return nil
		})
	} else {
		d.runEffect(ctx, "notify", func(context.Context) error {
			d.deps.Notifier.OnConfirmedExit(ev.SiteID)
			return nil
		})
	}

	if d.deps.Publisher != nil {
		d.runEffect(ctx, "publish", func(ctx context.Context) error {
			return d.deps.Publisher.PublishTransition(ctx, &ev)
		})
	}
	if d.deps.Transitions != nil {
		d.runEffect(ctx, "persist", func(ctx context.Context) error {
			return d.deps.Transitions.Insert(ctx, &ev)
		})
	}
	if d.deps.Analyzer != nil {
		d.runEffect(ctx, "analyze", func(ctx context.Context) error {
			return d.deps.Analyzer.Analyze(ctx, &ev)
		})
	}
}

// acknowledge issues the visible acknowledgment using only in-memory data.
// Nothing in here may block on I/O.
func (d *BackgroundDispatcher) acknowledge(ctx context.Context, ev domain.ConfirmedTransitionEvent, wokenAt time.Time) string {
	_, span := d.tracer.Start(ctx, "acknowledge")
	defer span.End()

	name, ok := d.deps.Names.Name(ev.SiteID)
	if !ok || name == "" {
		name = domain.DefaultSiteName
	}

	if err := d.deps.Indicator.Acknowledge(ev.SiteID, name); err != nil {
		metrics.SideEffectFailures.WithLabelValues("acknowledge").Inc()
		span.RecordError(err)
		slog.Error("status acknowledgment failed", "site_id", ev.SiteID, "error", err)
	}

	elapsed := d.now().Sub(wokenAt)
	metrics.AckLatency.Observe(elapsed.Seconds())
	if elapsed > d.deadline {
		panic(&domain.DeadlineViolation{SiteID: ev.SiteID, Elapsed: elapsed, Deadline: d.deadline})
	}

	slog.Info("entry acknowledged", "site_id", ev.SiteID, "site_name", name, "elapsed", elapsed.String())
	return name
}

// runEffect runs a single side effect with its own timeout. A failing or
// panicking effect is logged and counted; it never affects the others.
func (d *BackgroundDispatcher) runEffect(ctx context.Context, effect string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(ctx, d.effectTimeout)
	defer cancel()

	ctx, span := d.tracer.Start(ctx, effect, trace.WithAttributes(telemetry.AttrEffect.String(effect)))
	defer span.End()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return fn(ctx)
	}()
	if err != nil {
		metrics.SideEffectFailures.WithLabelValues(effect).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Warn("dispatch side effect failed", "effect", effect, "error", err)
	}
}
