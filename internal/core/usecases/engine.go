package usecases

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/samirrijal/sitewatch/internal/core/domain"
	"github.com/samirrijal/sitewatch/internal/core/ports"
)

// EngineDeps holds the engine's collaborators. Sites, Cache, Publisher,
// Transitions and Analyzer may be nil.
type EngineDeps struct {
	Permissions ports.PermissionChecker
	Monitor     ports.RegionMonitor
	Motion      ports.MotionUpdates
	Sites       ports.SiteSource
	Cache       ports.CacheService
	Indicator   ports.StatusIndicator
	Notifier    ports.Notifier
	Publisher   ports.EventPublisher
	Transitions ports.TransitionRepository
	Analyzer    ports.VisitAnalyzer
}

// EngineConfig tunes the engine. Zero values select defaults.
type EngineConfig struct {
	RegistrationHandle string
	ArbiterShards      int
	DispatchQueue      int
	EffectTimeout      time.Duration
	ResyncInterval     time.Duration
	SiteCacheTTL       time.Duration
	FallbackSites      []domain.Site
}

// SyncStatus describes the outcome of the most recent sync cycle.
type SyncStatus struct {
	At      time.Time `json:"at"`
	OK      bool      `json:"ok"`
	Regions int       `json:"regions"`
	Reason  string    `json:"reason,omitempty"`
	Source  string    `json:"source,omitempty"`
}

// Engine wires the geofence lifecycle together and exposes its control surface.
type Engine struct {
	classifier  *MotionClassifier
	tracker     *MotionTracker
	registry    *RegionRegistry
	catalog     *SiteCatalog
	coordinator *SyncCoordinator
	arbiter     *TransitionArbiter
	broadcaster *Broadcaster
	dispatcher  *BackgroundDispatcher
	rehydrator  *RebootRehydrator

	resyncInterval time.Duration

	mu       sync.RWMutex
	lastSync SyncStatus
}

// NewEngine builds an engine from its collaborators.
func NewEngine(deps EngineDeps, cfg EngineConfig) *Engine {
	fallback := cfg.FallbackSites
	if fallback == nil {
		fallback = domain.FallbackSites()
	}

	e := &Engine{resyncInterval: cfg.ResyncInterval}

	e.classifier = NewMotionClassifier()
	e.tracker = NewMotionTracker(deps.Motion, deps.Permissions, e.classifier)
	e.registry = NewRegionRegistry(deps.Monitor, deps.Permissions, cfg.RegistrationHandle)
	e.catalog = NewSiteCatalog(deps.Sites, deps.Cache, fallback).WithCacheTTL(int(cfg.SiteCacheTTL.Seconds()))
	e.coordinator = NewSyncCoordinator(e.catalog, e.registry,
		OnSyncSuccess(e.syncSucceeded),
		OnSyncFailure(e.syncFailed),
	)
	e.arbiter = NewTransitionArbiter(e.classifier, WithShards(cfg.ArbiterShards))
	e.broadcaster = NewBroadcaster()
	e.dispatcher = NewBackgroundDispatcher(DispatcherDeps{
		Names:       e.catalog,
		Indicator:   deps.Indicator,
		Notifier:    deps.Notifier,
		Publisher:   deps.Publisher,
		Transitions: deps.Transitions,
		Analyzer:    deps.Analyzer,
	}, WithQueueSize(cfg.DispatchQueue), WithEffectTimeout(cfg.EffectTimeout))
	e.rehydrator = NewRebootRehydrator(e.coordinator, e.tracker)
	return e
}

// SyncAndRegister starts a fetch-and-register cycle in the background.
func (e *Engine) SyncAndRegister() { e.coordinator.SyncAndRegister() }

// Cancel stops in-flight and future sync work.
func (e *Engine) Cancel() { e.coordinator.Cancel() }

// StartMotionTracking subscribes to motion samples.
func (e *Engine) StartMotionTracking(ctx context.Context) error {
	return e.tracker.StartTracking(ctx)
}

// StopMotionTracking removes the motion subscription.
func (e *Engine) StopMotionTracking(ctx context.Context) { e.tracker.StopTracking(ctx) }

// Subscribe returns a channel of confirmed transitions and its cancel func.
func (e *Engine) Subscribe(buffer int) (<-chan domain.ConfirmedTransitionEvent, func()) {
	return e.broadcaster.Subscribe(buffer)
}

// OnBoot handles a device restart signal.
func (e *Engine) OnBoot(ctx context.Context, action string) bool {
	return e.rehydrator.OnBoot(ctx, action)
}

// Run arbitrates raw events from raw and dispatches confirmed transitions
// until ctx is done.
func (e *Engine) Run(ctx context.Context, raw <-chan domain.RawTransitionEvent) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return e.arbiter.Run(ctx, raw, func(ev domain.ConfirmedTransitionEvent) {
			e.broadcaster.Publish(ev)
			if err := e.dispatcher.Enqueue(ctx, ev); err != nil {
				slog.Warn("confirmed transition not dispatched", "site_id", ev.SiteID, "kind", string(ev.Kind), "error", err)
			}
		})
	})

	g.Go(func() error {
		return e.dispatcher.Run(ctx)
	})

	if e.resyncInterval > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(e.resyncInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					slog.Debug("periodic resync")
					e.coordinator.SyncAndRegister()
				}
			}
		})
	}

	return g.Wait()
}

// Close cancels sync work, waits for it and closes listener channels.
// Registered regions stay with the facility.
func (e *Engine) Close() {
	e.coordinator.Cancel()
	e.coordinator.Wait()
	e.broadcaster.Close()
}

// LastSync returns the outcome of the most recent sync cycle.
func (e *Engine) LastSync() SyncStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastSync
}

func (e *Engine) syncSucceeded(count int) {
	slog.Info("site sync complete", "regions", count, "source", e.catalog.Source())
	e.mu.Lock()
	e.lastSync = SyncStatus{At: time.Now(), OK: true, Regions: count, Source: e.catalog.Source()}
	e.mu.Unlock()
}

func (e *Engine) syncFailed(reason string) {
	e.mu.Lock()
	e.lastSync = SyncStatus{At: time.Now(), Reason: reason, Source: e.catalog.Source()}
	e.mu.Unlock()
}

// Classifier returns the shared motion classifier.
func (e *Engine) Classifier() *MotionClassifier { return e.classifier }

// Tracker returns the motion update subscription manager.
func (e *Engine) Tracker() *MotionTracker { return e.tracker }

// Registry returns the region registry bound to the engine's handle.
func (e *Engine) Registry() *RegionRegistry { return e.registry }

// Catalog returns the current site snapshot.
func (e *Engine) Catalog() *SiteCatalog { return e.catalog }

// Arbiter returns the per-site transition state machine.
func (e *Engine) Arbiter() *TransitionArbiter { return e.arbiter }

// Dispatcher returns the dispatcher for confirmed transitions.
func (e *Engine) Dispatcher() *BackgroundDispatcher { return e.dispatcher }
