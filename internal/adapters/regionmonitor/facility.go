// Package regionmonitor is an in-memory region-monitoring facility. It
// enforces the platform's handle and capacity limits and derives ENTER,
// DWELL and EXIT transitions from a stream of location fixes.
package regionmonitor

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/samirrijal/sitewatch/internal/core/domain"
	"github.com/samirrijal/sitewatch/internal/pkg/geospatial"
)

// TransitionFunc receives one facility event naming every region that
// triggered it.
type TransitionFunc func(kind domain.RawTransitionKind, regionIDs []string, at time.Time)

type entry struct {
	region    domain.MonitoredRegion
	handle    string
	expiresAt time.Time // zero when the region never expires

	inside     bool
	enteredAt  time.Time
	dwellFired bool
}

// Facility implements ports.RegionMonitor in memory.
type Facility struct {
	mu        sync.Mutex
	available bool
	regions   map[string]*entry
	handles   map[string]map[string]struct{}
	last      *domain.LocationFix
	listener  TransitionFunc
	now       func() time.Time
}

// Option customises a Facility.
type Option func(*Facility)

// WithClock overrides the clock used for region expiry.
func WithClock(now func() time.Time) Option {
	return func(f *Facility) { f.now = now }
}

// New returns an available facility with no registrations.
func New(opts ...Option) *Facility {
	f := &Facility{
		available: true,
		regions:   make(map[string]*entry),
		handles:   make(map[string]map[string]struct{}),
		now:       time.Now,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// OnTransition sets the listener for transitions. It is called outside the
// facility's lock.
func (f *Facility) OnTransition(fn TransitionFunc) {
	f.mu.Lock()
	f.listener = fn
	f.mu.Unlock()
}

// SetAvailable toggles positioning. While unavailable every registration
// fails with status 1000.
func (f *Facility) SetAvailable(ok bool) {
	f.mu.Lock()
	f.available = ok
	f.mu.Unlock()
}

func (f *Facility) RemoveByHandle(ctx context.Context, handle string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	for id := range f.handles[handle] {
		delete(f.regions, id)
	}
	delete(f.handles, handle)
	return nil
}

func (f *Facility) RemoveByIDs(ctx context.Context, ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, id := range ids {
		f.removeLocked(id)
	}
	return nil
}

func (f *Facility) removeLocked(id string) {
	e, ok := f.regions[id]
	if !ok {
		return
	}
	delete(f.regions, id)
	if set := f.handles[e.handle]; set != nil {
		delete(set, id)
		if len(set) == 0 {
			delete(f.handles, e.handle)
		}
	}
}

// AddRegions registers regions under handle. A region whose id is already
// registered is replaced. Regions that contain the last known fix fire their
// initial trigger.
func (f *Facility) AddRegions(ctx context.Context, handle string, regions []domain.MonitoredRegion) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	if !f.available {
		f.mu.Unlock()
		return &domain.FacilityError{Code: domain.StatusNotAvailable}
	}
	if _, ok := f.handles[handle]; !ok && len(f.handles) >= domain.MaxRegistrationHandles {
		f.mu.Unlock()
		return &domain.FacilityError{Code: domain.StatusTooManyHandles}
	}

	incoming := make(map[string]struct{}, len(regions))
	for _, r := range regions {
		incoming[r.ID] = struct{}{}
	}
	total := len(incoming)
	for id := range f.regions {
		if _, replaced := incoming[id]; !replaced {
			total++
		}
	}
	if total > domain.CapacityCeiling {
		f.mu.Unlock()
		return &domain.FacilityError{Code: domain.StatusTooManyRegions}
	}

	now := f.now()
	var enter []string
	for _, r := range regions {
		f.removeLocked(r.ID)
		e := &entry{region: r, handle: handle}
		if r.Expiry > 0 {
			e.expiresAt = now.Add(r.Expiry)
		}
		if f.last != nil && f.contains(r, *f.last) {
			e.inside = true
			e.enteredAt = f.last.At
			e.dwellFired = r.InitialTrigger&domain.MaskDwell == 0
			if r.InitialTrigger&domain.MaskEnter != 0 && r.TransitionMask.Has(domain.RawEnter) {
				enter = append(enter, r.ID)
			}
		}
		f.regions[r.ID] = e
		set := f.handles[handle]
		if set == nil {
			set = make(map[string]struct{})
			f.handles[handle] = set
		}
		set[r.ID] = struct{}{}
	}
	listener := f.listener
	var at time.Time
	if f.last != nil {
		at = f.last.At
	}
	f.mu.Unlock()

	if listener != nil && len(enter) > 0 {
		sort.Strings(enter)
		listener(domain.RawEnter, enter, at)
	}
	return nil
}

// Clear drops every registration.
func (f *Facility) Clear() {
	f.mu.Lock()
	f.regions = make(map[string]*entry)
	f.handles = make(map[string]map[string]struct{})
	f.mu.Unlock()
}

// Regions returns the registered regions ordered by id.
func (f *Facility) Regions() []domain.MonitoredRegion {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pruneLocked(f.now())

	out := make([]domain.MonitoredRegion, 0, len(f.regions))
	for _, e := range f.regions {
		out = append(out, e.region)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Handles returns the number of handles in use.
func (f *Facility) Handles() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handles)
}

func (f *Facility) pruneLocked(now time.Time) {
	for id, e := range f.regions {
		if !e.expiresAt.IsZero() && !now.Before(e.expiresAt) {
			f.removeLocked(id)
		}
	}
}

func (f *Facility) contains(r domain.MonitoredRegion, fix domain.LocationFix) bool {
	return geospatial.WithinRadius(fix.Latitude, fix.Longitude, r.Latitude, r.Longitude, r.RadiusMeters)
}

// ObserveLocation feeds a position fix. Transitions are grouped by kind into
// one event each, exits first, and delivered to the listener in that order.
func (f *Facility) ObserveLocation(fix domain.LocationFix) {
	f.mu.Lock()
	f.pruneLocked(f.now())
	f.last = &fix

	var enter, dwell, exit []string
	for id, e := range f.regions {
		within := f.contains(e.region, fix)
		mask := e.region.TransitionMask
		switch {
		case within && !e.inside:
			e.inside = true
			e.enteredAt = fix.At
			e.dwellFired = false
			if mask.Has(domain.RawEnter) {
				enter = append(enter, id)
			}
		case within && !e.dwellFired && fix.At.Sub(e.enteredAt) >= e.region.DwellDelay:
			e.dwellFired = true
			if mask.Has(domain.RawDwell) {
				dwell = append(dwell, id)
			}
		case !within && e.inside:
			e.inside = false
			if mask.Has(domain.RawExit) {
				exit = append(exit, id)
			}
		}
	}
	listener := f.listener
	f.mu.Unlock()

	if listener == nil {
		return
	}
	for _, group := range []struct {
		kind domain.RawTransitionKind
		ids  []string
	}{{domain.RawExit, exit}, {domain.RawEnter, enter}, {domain.RawDwell, dwell}} {
		if len(group.ids) == 0 {
			continue
		}
		sort.Strings(group.ids)
		listener(group.kind, group.ids, fix.At)
	}
}
