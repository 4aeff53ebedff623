package usecases_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/samirrijal/sitewatch/internal/core/domain"
	"github.com/samirrijal/sitewatch/internal/core/usecases"
)

type recordingRegistrar struct {
	calls      atomic.Int32
	registerFn func(ctx context.Context, sites []domain.Site) (int, error)
}

func (r *recordingRegistrar) Register(ctx context.Context, sites []domain.Site) (int, error) {
	r.calls.Add(1)
	if r.registerFn != nil {
		return r.registerFn(ctx, sites)
	}
	return len(sites), nil
}

func TestSyncCoordinator_Success(t *testing.T) {
	source := &mockSiteSource{fetchFn: func(ctx context.Context) ([]domain.Site, error) {
		return []domain.Site{tajMahal}, nil
	}}
	registrar := &recordingRegistrar{}

	var got atomic.Int32
	c := usecases.NewSyncCoordinator(source, registrar,
		usecases.OnSyncSuccess(func(n int) { got.Store(int32(n)) }),
		usecases.OnSyncFailure(func(reason string) { t.Errorf("unexpected failure: %s", reason) }),
	)
	defer c.Cancel()

	c.SyncAndRegister()
	c.Wait()

	if got.Load() != 1 {
		t.Errorf("expected success with 1 region, got %d", got.Load())
	}
}

func TestSyncCoordinator_FetchFailureReported(t *testing.T) {
	source := &mockSiteSource{fetchFn: func(ctx context.Context) ([]domain.Site, error) {
		return nil, errors.New("connection refused")
	}}
	registrar := &recordingRegistrar{}

	var reason string
	c := usecases.NewSyncCoordinator(source, registrar,
		usecases.OnSyncFailure(func(r string) { reason = r }),
	)
	defer c.Cancel()

	c.SyncAndRegister()
	c.Wait()

	if !strings.Contains(reason, "connection refused") {
		t.Errorf("expected fetch failure reason, got %q", reason)
	}
	if registrar.calls.Load() != 0 {
		t.Error("register must not be called after a failed fetch")
	}
}

func TestSyncCoordinator_RegisterFailureNotRetried(t *testing.T) {
	source := &mockSiteSource{fetchFn: func(ctx context.Context) ([]domain.Site, error) {
		return makeSites(2), nil
	}}
	registrar := &recordingRegistrar{registerFn: func(ctx context.Context, sites []domain.Site) (int, error) {
		return 0, &domain.FacilityError{Code: domain.StatusNotAvailable}
	}}

	failures := 0
	c := usecases.NewSyncCoordinator(source, registrar,
		usecases.OnSyncFailure(func(string) { failures++ }),
	)
	defer c.Cancel()

	c.SyncAndRegister()
	c.Wait()

	if failures != 1 {
		t.Errorf("expected one failure callback, got %d", failures)
	}
	if registrar.calls.Load() != 1 {
		t.Errorf("expected exactly one register attempt, got %d", registrar.calls.Load())
	}
}

func TestSyncCoordinator_CancelDuringFetchPreventsRegister(t *testing.T) {
	fetching := make(chan struct{})
	release := make(chan struct{})
	source := &mockSiteSource{fetchFn: func(ctx context.Context) ([]domain.Site, error) {
		close(fetching)
		// Ignore ctx so the fetch completes successfully after cancellation.
		<-release
		return makeSites(3), nil
	}}
	registrar := &recordingRegistrar{}

	failed := false
	c := usecases.NewSyncCoordinator(source, registrar,
		usecases.OnSyncFailure(func(string) { failed = true }),
	)

	c.SyncAndRegister()
	<-fetching
	c.Cancel()
	c.Cancel()
	close(release)
	c.Wait()

	if registrar.calls.Load() != 0 {
		t.Errorf("register must not run after cancel, got %d calls", registrar.calls.Load())
	}
	if failed {
		t.Error("cancellation is not a failure")
	}
}

func TestSyncCoordinator_CancelAbortsBlockedFetch(t *testing.T) {
	source := &mockSiteSource{fetchFn: func(ctx context.Context) ([]domain.Site, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	c := usecases.NewSyncCoordinator(source, &recordingRegistrar{})

	c.SyncAndRegister()
	c.Cancel()

	done := make(chan struct{})
	go func() {
		c.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight sync was not cancelled")
	}
}

func TestSyncCoordinator_NoWorkAfterCancel(t *testing.T) {
	var fetches atomic.Int32
	source := &mockSiteSource{fetchFn: func(ctx context.Context) ([]domain.Site, error) {
		fetches.Add(1)
		return makeSites(1), nil
	}}
	registrar := &recordingRegistrar{}
	c := usecases.NewSyncCoordinator(source, registrar)

	c.Cancel()
	c.SyncAndRegister()
	c.Wait()

	if !c.Cancelled() {
		t.Error("expected Cancelled() to be true")
	}
	if fetches.Load() != 0 || registrar.calls.Load() != 0 {
		t.Error("no work should start after cancel")
	}
}

func TestSyncCoordinator_CancelFromManyGoroutines(t *testing.T) {
	c := usecases.NewSyncCoordinator(&mockSiteSource{}, &recordingRegistrar{})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Cancel()
		}()
	}
	wg.Wait()
	c.Wait()
}
