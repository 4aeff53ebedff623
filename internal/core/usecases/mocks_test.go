package usecases_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/samirrijal/sitewatch/internal/core/domain"
)

// --- Mock PermissionChecker ---

type mockPermissions struct {
	location bool
	motion   bool
}

func (m *mockPermissions) HasLocationCapability() bool { return m.location }
func (m *mockPermissions) HasMotionCapability() bool   { return m.motion }

func granted() *mockPermissions { return &mockPermissions{location: true, motion: true} }

// --- Mock RegionMonitor ---

type mockMonitor struct {
	mu              sync.Mutex
	calls           []string
	added           []domain.MonitoredRegion
	removeByHandleF func(ctx context.Context, handle string) error
	addRegionsFn    func(ctx context.Context, handle string, regions []domain.MonitoredRegion) error
	removeByIDsFn   func(ctx context.Context, ids []string) error
}

func (m *mockMonitor) RemoveByHandle(ctx context.Context, handle string) error {
	m.mu.Lock()
	m.calls = append(m.calls, "remove:"+handle)
	m.mu.Unlock()
	if m.removeByHandleF != nil {
		return m.removeByHandleF(ctx, handle)
	}
	return nil
}

func (m *mockMonitor) AddRegions(ctx context.Context, handle string, regions []domain.MonitoredRegion) error {
	m.mu.Lock()
	m.calls = append(m.calls, "add:"+handle)
	m.mu.Unlock()
	if m.addRegionsFn != nil {
		if err := m.addRegionsFn(ctx, handle, regions); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.added = append([]domain.MonitoredRegion(nil), regions...)
	m.mu.Unlock()
	return nil
}

func (m *mockMonitor) RemoveByIDs(ctx context.Context, ids []string) error {
	m.mu.Lock()
	m.calls = append(m.calls, fmt.Sprintf("remove-ids:%d", len(ids)))
	m.mu.Unlock()
	if m.removeByIDsFn != nil {
		return m.removeByIDsFn(ctx, ids)
	}
	return nil
}

func (m *mockMonitor) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// --- Mock MotionUpdates ---

type mockMotion struct {
	mu        sync.Mutex
	requested int
	removed   int
	interval  time.Duration
	sink      func(domain.MotionSample)
	requestFn func(ctx context.Context) error
}

func (m *mockMotion) RequestUpdates(ctx context.Context, interval time.Duration, sink func(domain.MotionSample)) error {
	if m.requestFn != nil {
		if err := m.requestFn(ctx); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requested++
	m.interval = interval
	m.sink = sink
	return nil
}

func (m *mockMotion) RemoveUpdates(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed++
	m.sink = nil
	return nil
}

func (m *mockMotion) Emit(s domain.MotionSample) {
	m.mu.Lock()
	sink := m.sink
	m.mu.Unlock()
	if sink != nil {
		sink(s)
	}
}

func (m *mockMotion) Requested() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requested
}

// --- Mock SiteSource ---

type mockSiteSource struct {
	fetchFn func(ctx context.Context) ([]domain.Site, error)
}

func (m *mockSiteSource) FetchSites(ctx context.Context) ([]domain.Site, error) {
	if m.fetchFn != nil {
		return m.fetchFn(ctx)
	}
	return nil, nil
}

// --- Mock CacheService ---

type mockCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMockCache() *mockCache { return &mockCache{data: make(map[string][]byte)} }

func (m *mockCache) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, errors.New("cache miss")
	}
	return v, nil
}

func (m *mockCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *mockCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// --- Mock StatusIndicator / Notifier ---

type mockIndicator struct {
	mu     sync.Mutex
	acks   []string
	ackFn  func(siteID, siteName string) error
	events *[]string
}

func (m *mockIndicator) Acknowledge(siteID, siteName string) error {
	m.mu.Lock()
	m.acks = append(m.acks, siteID+":"+siteName)
	if m.events != nil {
		*m.events = append(*m.events, "ack:"+siteID)
	}
	m.mu.Unlock()
	if m.ackFn != nil {
		return m.ackFn(siteID, siteName)
	}
	return nil
}

func (m *mockIndicator) Acks() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.acks...)
}

type mockNotifier struct {
	mu      sync.Mutex
	entries []string
	exits   []string
	events  *[]string
}

func (m *mockNotifier) OnConfirmedEntry(siteID, siteName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, siteID+":"+siteName)
	if m.events != nil {
		*m.events = append(*m.events, "entry:"+siteID)
	}
}

func (m *mockNotifier) OnConfirmedExit(siteID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exits = append(m.exits, siteID)
	if m.events != nil {
		*m.events = append(*m.events, "exit:"+siteID)
	}
}

func (m *mockNotifier) Entries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.entries...)
}

func (m *mockNotifier) Exits() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.exits...)
}

// --- Mock EventPublisher / TransitionRepository / VisitAnalyzer ---

type mockPublisher struct {
	publishFn func(ctx context.Context, ev *domain.ConfirmedTransitionEvent) error
	published []string
}

func (m *mockPublisher) PublishTransition(ctx context.Context, ev *domain.ConfirmedTransitionEvent) error {
	m.published = append(m.published, ev.ID)
	if m.publishFn != nil {
		return m.publishFn(ctx, ev)
	}
	return nil
}

type mockTransitionRepo struct {
	insertFn func(ctx context.Context, ev *domain.ConfirmedTransitionEvent) error
	inserted []domain.ConfirmedTransitionEvent
}

func (m *mockTransitionRepo) Insert(ctx context.Context, ev *domain.ConfirmedTransitionEvent) error {
	if m.insertFn != nil {
		if err := m.insertFn(ctx, ev); err != nil {
			return err
		}
	}
	m.inserted = append(m.inserted, *ev)
	return nil
}

func (m *mockTransitionRepo) ListBySite(ctx context.Context, siteID string, limit int) ([]domain.ConfirmedTransitionEvent, error) {
	return nil, nil
}

func (m *mockTransitionRepo) InsertVisit(ctx context.Context, v *domain.VisitSummary) error {
	return nil
}

type mockAnalyzer struct {
	analyzeFn func(ctx context.Context, ev *domain.ConfirmedTransitionEvent) error
	analyzed  int
}

func (m *mockAnalyzer) Analyze(ctx context.Context, ev *domain.ConfirmedTransitionEvent) error {
	m.analyzed++
	if m.analyzeFn != nil {
		return m.analyzeFn(ctx, ev)
	}
	return nil
}

// --- Helpers ---

func makeSites(n int) []domain.Site {
	sites := make([]domain.Site, n)
	for i := range sites {
		sites[i] = domain.Site{
			ID:           fmt.Sprintf("site-%03d", i),
			Name:         fmt.Sprintf("Site %d", i),
			Latitude:     27.0 + float64(i)*0.001,
			Longitude:    78.0,
			RadiusMeters: 500,
		}
	}
	return sites
}

var tajMahal = domain.Site{ID: "3", Name: "Taj Mahal", Latitude: 27.1751, Longitude: 78.0421, RadiusMeters: 500}
