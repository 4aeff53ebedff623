package ports

import (
	"context"
	"time"

	"github.com/samirrijal/sitewatch/internal/core/domain"
)

// PermissionChecker answers capability queries. It never triggers permission UI.
type PermissionChecker interface {
	HasLocationCapability() bool
	HasMotionCapability() bool
}

// SiteSource fetches the authoritative site list.
type SiteSource interface {
	FetchSites(ctx context.Context) ([]domain.Site, error)
}

// RegionMonitor is the platform region-monitoring facility.
//
// RemoveByHandle removes every region registered under handle; removing from
// an empty handle succeeds. AddRegions replaces regions with the same id.
// Failures are reported as *domain.FacilityError.
type RegionMonitor interface {
	RemoveByHandle(ctx context.Context, handle string) error
	AddRegions(ctx context.Context, handle string, regions []domain.MonitoredRegion) error
	RemoveByIDs(ctx context.Context, ids []string) error
}

// MotionUpdates is the platform motion classification channel.
type MotionUpdates interface {
	RequestUpdates(ctx context.Context, interval time.Duration, sink func(domain.MotionSample)) error
	RemoveUpdates(ctx context.Context) error
}

// StatusIndicator produces the visible acknowledgment of a wake-up. It must
// return quickly and must not perform blocking I/O.
type StatusIndicator interface {
	Acknowledge(siteID, siteName string) error
}

// Notifier forwards confirmed transitions to the UI. Fire-and-forget.
type Notifier interface {
	OnConfirmedEntry(siteID, siteName string)
	OnConfirmedExit(siteID string)
}

// EventPublisher publishes confirmed transitions to a message broker.
type EventPublisher interface {
	PublishTransition(ctx context.Context, ev *domain.ConfirmedTransitionEvent) error
}

// VisitAnalyzer hands confirmed transitions to durable visit analysis.
type VisitAnalyzer interface {
	Analyze(ctx context.Context, ev *domain.ConfirmedTransitionEvent) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}
