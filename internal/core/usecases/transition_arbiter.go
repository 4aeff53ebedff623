package usecases

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/samirrijal/sitewatch/internal/core/domain"
	"github.com/samirrijal/sitewatch/internal/pkg/metrics"
)

// DefaultArbiterShards is the number of per-site worker lanes used by Run.
const DefaultArbiterShards = 8

// TransitionArbiter fuses raw region transitions with the current motion
// classification into confirmed ENTERED / EXITED events.
//
// Each site is an OUTSIDE/INSIDE state machine starting at OUTSIDE. Sites are
// hashed onto shards; a shard is consumed by exactly one goroutine in Run, so
// events for one site are handled in delivery order while different sites
// proceed in parallel.
type TransitionArbiter struct {
	motion MotionReader
	shards []*arbiterShard
	newID  func() string
}

type arbiterShard struct {
	mu     sync.Mutex
	states map[string]domain.SiteState
}

// ArbiterOption customises a TransitionArbiter.
type ArbiterOption func(*TransitionArbiter)

// WithShards sets the number of worker lanes. Values below 1 are ignored.
func WithShards(n int) ArbiterOption {
	return func(a *TransitionArbiter) {
		if n > 0 {
			a.shards = newShards(n)
		}
	}
}

// WithIDGenerator overrides event id generation.
func WithIDGenerator(fn func() string) ArbiterOption {
	return func(a *TransitionArbiter) { a.newID = fn }
}

// NewTransitionArbiter creates an arbiter reading motion from motion.
func NewTransitionArbiter(motion MotionReader, opts ...ArbiterOption) *TransitionArbiter {
	a := &TransitionArbiter{
		motion: motion,
		shards: newShards(DefaultArbiterShards),
		newID:  uuid.NewString,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

func newShards(n int) []*arbiterShard {
	shards := make([]*arbiterShard, n)
	for i := range shards {
		shards[i] = &arbiterShard{states: make(map[string]domain.SiteState)}
	}
	return shards
}

func (a *TransitionArbiter) shardIndex(siteID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(siteID))
	return int(h.Sum32() % uint32(len(a.shards)))
}

// Handle arbitrates a single raw event. It returns the confirmed event and
// true when the event changed the site's state. Every input yields either a
// transition or a no-op.
func (a *TransitionArbiter) Handle(ev domain.RawTransitionEvent) (domain.ConfirmedTransitionEvent, bool) {
	metrics.RawTransitions.WithLabelValues(ev.Kind.String()).Inc()

	shard := a.shards[a.shardIndex(ev.RegionID)]
	shard.mu.Lock()
	defer shard.mu.Unlock()

	current := shard.states[ev.RegionID]

	switch ev.Kind {
	case domain.RawEnter, domain.RawDwell:
		// Unknown or low-confidence motion is not evidence of driving.
		if a.motion.IsInVehicle() {
			metrics.SuppressedTransitions.WithLabelValues("in_vehicle").Inc()
			slog.Info("entry suppressed, user in vehicle",
				"site_id", ev.RegionID, "kind", ev.Kind.String(), "motion", a.motion.Sample().String())
			return domain.ConfirmedTransitionEvent{}, false
		}
		if current == domain.Inside {
			metrics.SuppressedTransitions.WithLabelValues("already_inside").Inc()
			slog.Debug("entry ignored, already inside", "site_id", ev.RegionID, "kind", ev.Kind.String())
			return domain.ConfirmedTransitionEvent{}, false
		}
		shard.states[ev.RegionID] = domain.Inside
		return a.confirm(ev, domain.Entered), true

	case domain.RawExit:
		if current == domain.Outside {
			metrics.SuppressedTransitions.WithLabelValues("already_outside").Inc()
			slog.Debug("exit ignored, already outside", "site_id", ev.RegionID)
			return domain.ConfirmedTransitionEvent{}, false
		}
		shard.states[ev.RegionID] = domain.Outside
		return a.confirm(ev, domain.Exited), true
	}

	metrics.SuppressedTransitions.WithLabelValues("unknown_kind").Inc()
	slog.Warn("ignoring raw transition of unknown kind", "site_id", ev.RegionID, "kind", ev.Kind.String())
	return domain.ConfirmedTransitionEvent{}, false
}

func (a *TransitionArbiter) confirm(ev domain.RawTransitionEvent, kind domain.ConfirmedKind) domain.ConfirmedTransitionEvent {
	out := domain.ConfirmedTransitionEvent{
		ID:         a.newID(),
		SiteID:     ev.RegionID,
		Kind:       kind,
		ObservedAt: ev.ObservedAt,
		Motion:     a.motion.Sample(),
	}
	metrics.ConfirmedTransitions.WithLabelValues(string(kind)).Inc()
	slog.Info("transition confirmed", "site_id", out.SiteID, "kind", string(kind), "motion", out.Motion.String())
	return out
}

// Run consumes raw events from in until it is closed or ctx is done, calling
// emit for every confirmed event. emit is called from several goroutines
// and must be safe for concurrent use.
func (a *TransitionArbiter) Run(ctx context.Context, in <-chan domain.RawTransitionEvent, emit func(domain.ConfirmedTransitionEvent)) error {
	g, ctx := errgroup.WithContext(ctx)

	lanes := make([]chan domain.RawTransitionEvent, len(a.shards))
	for i := range lanes {
		lanes[i] = make(chan domain.RawTransitionEvent, 16)
	}

	g.Go(func() error {
		defer func() {
			for _, l := range lanes {
				close(l)
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return nil
			case ev, ok := <-in:
				if !ok {
					return nil
				}
				select {
				case lanes[a.shardIndex(ev.RegionID)] <- ev:
				case <-ctx.Done():
					return nil
				}
			}
		}
	})

	for _, lane := range lanes {
		g.Go(func() error {
			for ev := range lane {
				if confirmed, ok := a.Handle(ev); ok {
					emit(confirmed)
				}
			}
			return nil
		})
	}

	return g.Wait()
}

// State returns the arbiter's current view of siteID.
func (a *TransitionArbiter) State(siteID string) domain.SiteState {
	shard := a.shards[a.shardIndex(siteID)]
	shard.mu.Lock()
	defer shard.mu.Unlock()
	return shard.states[siteID]
}

// SiteStatus pairs a site with its arbitrated state.
type SiteStatus struct {
	SiteID string           `json:"site_id"`
	State  domain.SiteState `json:"state"`
}

// Snapshot returns every site the arbiter has seen, sorted by id.
func (a *TransitionArbiter) Snapshot() []SiteStatus {
	var out []SiteStatus
	for _, shard := range a.shards {
		shard.mu.Lock()
		for id, st := range shard.states {
			out = append(out, SiteStatus{SiteID: id, State: st})
		}
		shard.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SiteID < out[j].SiteID })
	return out
}

// Inside returns the ids of sites currently INSIDE, sorted.
func (a *TransitionArbiter) Inside() []string {
	var ids []string
	for _, s := range a.Snapshot() {
		if s.State == domain.Inside {
			ids = append(ids, s.SiteID)
		}
	}
	return ids
}
