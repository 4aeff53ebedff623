package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/samirrijal/sitewatch/internal/core/domain"
	"github.com/samirrijal/sitewatch/internal/core/ports"
	"github.com/samirrijal/sitewatch/internal/pkg/metrics"
)

// Registrar registers a desired site list with the facility.
type Registrar interface {
	Register(ctx context.Context, sites []domain.Site) (int, error)
}

// SyncCoordinator fetches the site list and registers it, asynchronously and
// on its own lifecycle. Work started by SyncAndRegister belongs to the
// coordinator, not to the caller, and ends when Cancel is called.
type SyncCoordinator struct {
	source    ports.SiteSource
	registrar Registrar

	onSuccess func(count int)
	onFailure func(reason string)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// SyncOption customises a SyncCoordinator.
type SyncOption func(*SyncCoordinator)

// OnSyncSuccess sets the callback invoked with the registered region count.
func OnSyncSuccess(fn func(count int)) SyncOption {
	return func(c *SyncCoordinator) { c.onSuccess = fn }
}

// OnSyncFailure sets the callback invoked with a failure reason.
func OnSyncFailure(fn func(reason string)) SyncOption {
	return func(c *SyncCoordinator) { c.onFailure = fn }
}

// NewSyncCoordinator creates a coordinator. Call Cancel when its owner goes away.
func NewSyncCoordinator(source ports.SiteSource, registrar Registrar, opts ...SyncOption) *SyncCoordinator {
	ctx, cancel := context.WithCancel(context.Background())
	c := &SyncCoordinator{
		source:    source,
		registrar: registrar,
		onSuccess: func(int) {},
		onFailure: func(string) {},
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SyncAndRegister starts one fetch-and-register cycle in the background and
// returns immediately. Failures go to the failure callback; nothing is
// retried within the cycle. After Cancel it does nothing.
func (c *SyncCoordinator) SyncAndRegister() {
	if c.ctx.Err() != nil {
		slog.Debug("sync coordinator cancelled, ignoring sync request")
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(c.ctx)
	}()
}

func (c *SyncCoordinator) run(ctx context.Context) {
	start := time.Now()
	defer func() { metrics.SyncDuration.Observe(time.Since(start).Seconds()) }()

	sites, err := c.source.FetchSites(ctx)
	if err != nil {
		if ctx.Err() != nil {
			slog.Info("site sync cancelled during fetch")
			return
		}
		metrics.SyncFailures.WithLabelValues("fetch").Inc()
		reason := fmt.Sprintf("fetch sites: %v", err)
		slog.Error("site sync failed", "stage", "fetch", "error", err)
		c.onFailure(reason)
		return
	}
	slog.Info("fetched sites for region registration", "count", len(sites))

	// A cancellation that landed while the fetch was running must stop the
	// registration as well.
	if ctx.Err() != nil {
		slog.Info("site sync cancelled before registration")
		return
	}

	count, err := c.registrar.Register(ctx, sites)
	if err != nil {
		metrics.SyncFailures.WithLabelValues("register").Inc()
		slog.Error("site sync failed", "stage", "register", "kind", domain.Classify(err), "error", err)
		c.onFailure(err.Error())
		return
	}
	c.onSuccess(count)
}

// Cancel stops in-flight work and disables future cycles. Safe to call more
// than once and from any goroutine.
func (c *SyncCoordinator) Cancel() {
	c.cancel()
}

// Wait blocks until every started cycle has returned.
func (c *SyncCoordinator) Wait() {
	c.wg.Wait()
}

// Cancelled reports whether Cancel has been called.
func (c *SyncCoordinator) Cancelled() bool {
	return c.ctx.Err() != nil
}
