package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/samirrijal/sitewatch/internal/core/domain"
	"github.com/samirrijal/sitewatch/internal/core/ports"
	"github.com/samirrijal/sitewatch/internal/pkg/metrics"
)

const (
	sitesCacheKey = "sites:latest"
	sitesCacheTTL = 24 * 60 * 60 // seconds
)

// SiteCatalog resolves the desired site list: remote source first, then the
// last good list in cache, then the built-in fallback. It also keeps an
// in-memory snapshot for synchronous name lookups.
type SiteCatalog struct {
	remote   ports.SiteSource
	cache    ports.CacheService
	fallback []domain.Site
	cacheTTL int

	snapshot atomic.Pointer[catalogSnapshot]
}

type catalogSnapshot struct {
	sites  []domain.Site
	byID   map[string]domain.Site
	source string
}

// NewSiteCatalog creates a catalog. remote and cache may be nil. The
// snapshot starts out as the fallback list so lookups work before the first sync.
func NewSiteCatalog(remote ports.SiteSource, cache ports.CacheService, fallback []domain.Site) *SiteCatalog {
	c := &SiteCatalog{remote: remote, cache: cache, fallback: fallback, cacheTTL: sitesCacheTTL}
	c.store(fallback, "fallback")
	return c
}

// WithCacheTTL overrides how long the last good site list is cached.
func (c *SiteCatalog) WithCacheTTL(seconds int) *SiteCatalog {
	if seconds > 0 {
		c.cacheTTL = seconds
	}
	return c
}

// FetchSites returns the current desired site list. A remote failure is not
// surfaced to the user: the cached or built-in list is served instead. An
// error is only returned when every tier is empty.
func (c *SiteCatalog) FetchSites(ctx context.Context) ([]domain.Site, error) {
	var remoteErr error
	if c.remote != nil {
		sites, err := c.remote.FetchSites(ctx)
		if err == nil && len(sites) > 0 {
			c.store(sites, "remote")
			c.saveToCache(ctx, sites)
			return sites, nil
		}
		remoteErr = err
		if remoteErr == nil {
			remoteErr = fmt.Errorf("remote returned no sites")
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Warn("site source unavailable, falling back", "error", remoteErr)
	}

	if sites := c.loadFromCache(ctx); len(sites) > 0 {
		metrics.SiteFetchFallbacks.WithLabelValues("cache").Inc()
		c.store(sites, "cache")
		return sites, nil
	}

	if len(c.fallback) > 0 {
		metrics.SiteFetchFallbacks.WithLabelValues("static").Inc()
		c.store(c.fallback, "fallback")
		return c.fallback, nil
	}

	if remoteErr == nil {
		remoteErr = fmt.Errorf("no site source configured")
	}
	return nil, fmt.Errorf("%w: %v", domain.ErrFetch, remoteErr)
}

// Name resolves a site name from the in-memory snapshot. It never blocks.
func (c *SiteCatalog) Name(siteID string) (string, bool) {
	if s, ok := c.snapshot.Load().byID[siteID]; ok {
		return s.Name, true
	}
	return "", false
}

// Site returns the snapshot entry for siteID.
func (c *SiteCatalog) Site(siteID string) (domain.Site, bool) {
	s, ok := c.snapshot.Load().byID[siteID]
	return s, ok
}

// Sites returns the current snapshot in source order.
func (c *SiteCatalog) Sites() []domain.Site {
	snap := c.snapshot.Load()
	out := make([]domain.Site, len(snap.sites))
	copy(out, snap.sites)
	return out
}

// Source reports where the current snapshot came from: remote, cache or fallback.
func (c *SiteCatalog) Source() string {
	return c.snapshot.Load().source
}

func (c *SiteCatalog) store(sites []domain.Site, source string) {
	byID := make(map[string]domain.Site, len(sites))
	for _, s := range sites {
		byID[s.ID] = s
	}
	c.snapshot.Store(&catalogSnapshot{sites: sites, byID: byID, source: source})
}

func (c *SiteCatalog) saveToCache(ctx context.Context, sites []domain.Site) {
	if c.cache == nil {
		return
	}
	data, err := json.Marshal(sites)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, sitesCacheKey, data, c.cacheTTL); err != nil {
		slog.Warn("cache site list", "error", err)
	}
}

func (c *SiteCatalog) loadFromCache(ctx context.Context) []domain.Site {
	if c.cache == nil {
		return nil
	}
	data, err := c.cache.Get(ctx, sitesCacheKey)
	if err != nil {
		metrics.CacheMisses.WithLabelValues("sites").Inc()
		return nil
	}
	var sites []domain.Site
	if err := json.Unmarshal(data, &sites); err != nil {
		metrics.CacheMisses.WithLabelValues("sites").Inc()
		return nil
	}
	metrics.CacheHits.WithLabelValues("sites").Inc()
	return sites
}
