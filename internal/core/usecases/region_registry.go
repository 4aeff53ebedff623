package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/samirrijal/sitewatch/internal/core/domain"
	"github.com/samirrijal/sitewatch/internal/core/ports"
	"github.com/samirrijal/sitewatch/internal/pkg/metrics"
)

// DefaultRegistrationHandle identifies this engine's registrations inside the facility.
const DefaultRegistrationHandle = "sitewatch-geofences"

// RegionRegistry converges the facility's registered regions to a desired site list.
//
// Registration is a two-step protocol: remove everything under our handle,
// then add the new set. The remove step always counts as success; only the
// add step can fail. Concurrent Register calls are not serialized, the
// facility is the source of truth for what is registered.
type RegionRegistry struct {
	monitor     ports.RegionMonitor
	permissions ports.PermissionChecker
	handle      string

	mu      sync.RWMutex
	regions []domain.MonitoredRegion
}

// NewRegionRegistry creates a registry using handle for all registrations.
func NewRegionRegistry(monitor ports.RegionMonitor, permissions ports.PermissionChecker, handle string) *RegionRegistry {
	if handle == "" {
		handle = DefaultRegistrationHandle
	}
	return &RegionRegistry{monitor: monitor, permissions: permissions, handle: handle}
}

// Register replaces the monitored regions with sites and returns how many
// regions were registered. Sites beyond CapacityCeiling are dropped in input
// order. Facility failures are returned as *domain.FacilityError and are not
// retried here.
func (r *RegionRegistry) Register(ctx context.Context, sites []domain.Site) (int, error) {
	if !r.permissions.HasLocationCapability() {
		metrics.RegistrationFailures.WithLabelValues(string(domain.PermissionError)).Inc()
		return 0, fmt.Errorf("register regions: %w", domain.ErrPermission)
	}
	if len(sites) == 0 {
		return 0, domain.ErrEmptyInput
	}

	clamped := sites
	if len(sites) > domain.CapacityCeiling {
		slog.Warn("truncating sites to facility capacity",
			"requested", len(sites), "capacity", domain.CapacityCeiling)
		clamped = sites[:domain.CapacityCeiling]
	}

	regions := make([]domain.MonitoredRegion, len(clamped))
	for i, s := range clamped {
		regions[i] = domain.RegionFromSite(s)
	}

	// Stale registrations are removed first so updated coordinates and radii
	// replace the old ones instead of living next to them.
	if err := r.monitor.RemoveByHandle(ctx, r.handle); err != nil {
		slog.Debug("remove before add reported an error, continuing", "handle", r.handle, "error", err)
	}

	if err := r.monitor.AddRegions(ctx, r.handle, regions); err != nil {
		kind := domain.Classify(err)
		metrics.RegistrationFailures.WithLabelValues(string(kind)).Inc()
		slog.Error("region registration failed", "handle", r.handle, "regions", len(regions), "kind", kind, "error", err)
		return 0, fmt.Errorf("add regions: %w", err)
	}

	r.mu.Lock()
	r.regions = regions
	r.mu.Unlock()
	metrics.RegisteredRegions.Set(float64(len(regions)))

	slog.Info("regions registered", "handle", r.handle, "count", len(regions))
	return len(regions), nil
}

// UnregisterAll removes every region under this registry's handle. Failures
// are logged, never returned.
func (r *RegionRegistry) UnregisterAll(ctx context.Context) {
	if err := r.monitor.RemoveByHandle(ctx, r.handle); err != nil {
		slog.Warn("remove all regions", "handle", r.handle, "error", err)
	}

	r.mu.Lock()
	r.regions = nil
	r.mu.Unlock()
	metrics.RegisteredRegions.Set(0)
	slog.Info("all regions removed", "handle", r.handle)
}

// Unregister removes the regions for siteIDs, best effort.
func (r *RegionRegistry) Unregister(ctx context.Context, siteIDs []string) {
	if len(siteIDs) == 0 {
		return
	}
	if err := r.monitor.RemoveByIDs(ctx, siteIDs); err != nil {
		slog.Warn("remove regions", "ids", siteIDs, "error", err)
	}

	drop := make(map[string]bool, len(siteIDs))
	for _, id := range siteIDs {
		drop[id] = true
	}

	r.mu.Lock()
	kept := r.regions[:0:0]
	for _, reg := range r.regions {
		if !drop[reg.ID] {
			kept = append(kept, reg)
		}
	}
	r.regions = kept
	r.mu.Unlock()
	metrics.RegisteredRegions.Set(float64(len(kept)))
	slog.Info("regions removed", "ids", siteIDs)
}

// Regions returns a copy of the last successfully registered set.
func (r *RegionRegistry) Regions() []domain.MonitoredRegion {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.MonitoredRegion, len(r.regions))
	copy(out, r.regions)
	return out
}

// Handle returns the registration handle.
func (r *RegionRegistry) Handle() string { return r.handle }
