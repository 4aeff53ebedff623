package regionmonitor

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/sitewatch/internal/core/domain"
)

type recorded struct {
	kind domain.RawTransitionKind
	ids  []string
}

type recorder struct {
	mu     sync.Mutex
	events []recorded
}

func (r *recorder) record(kind domain.RawTransitionKind, ids []string, _ time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recorded{kind, ids})
}

func (r *recorder) all() []recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recorded(nil), r.events...)
}

func region(id string, lat, lon float64) domain.MonitoredRegion {
	return domain.RegionFromSite(domain.Site{ID: id, Name: id, Latitude: lat, Longitude: lon, RadiusMeters: 200})
}

func regions(n int) []domain.MonitoredRegion {
	out := make([]domain.MonitoredRegion, n)
	for i := range out {
		out[i] = region(fmt.Sprintf("r-%03d", i), float64(i)*0.1, 0)
	}
	return out
}

var t0 = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func fix(lat, lon float64, at time.Time) domain.LocationFix {
	return domain.LocationFix{Latitude: lat, Longitude: lon, At: at}
}

func TestAddRegions_Limits(t *testing.T) {
	ctx := context.Background()

	t.Run("capacity ceiling", func(t *testing.T) {
		f := New()
		require.NoError(t, f.AddRegions(ctx, "h", regions(domain.CapacityCeiling)))

		err := f.AddRegions(ctx, "h", []domain.MonitoredRegion{region("extra", 50, 50)})
		assert.ErrorIs(t, err, domain.ErrTooManyRegions)
		assert.Len(t, f.Regions(), domain.CapacityCeiling)
	})

	t.Run("replacing does not count twice", func(t *testing.T) {
		f := New()
		require.NoError(t, f.AddRegions(ctx, "h", regions(domain.CapacityCeiling)))
		assert.NoError(t, f.AddRegions(ctx, "h", regions(domain.CapacityCeiling)))
	})

	t.Run("handle limit", func(t *testing.T) {
		f := New()
		for i := 0; i < domain.MaxRegistrationHandles; i++ {
			require.NoError(t, f.AddRegions(ctx, fmt.Sprintf("h%d", i), []domain.MonitoredRegion{region(fmt.Sprintf("r%d", i), 1, 1)}))
		}
		err := f.AddRegions(ctx, "one-too-many", []domain.MonitoredRegion{region("x", 1, 1)})
		assert.ErrorIs(t, err, domain.ErrTooManyHandles)

		// an existing handle keeps working
		assert.NoError(t, f.AddRegions(ctx, "h0", []domain.MonitoredRegion{region("y", 1, 1)}))
	})

	t.Run("not available", func(t *testing.T) {
		f := New()
		f.SetAvailable(false)
		err := f.AddRegions(ctx, "h", regions(1))

		var fe *domain.FacilityError
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, domain.StatusNotAvailable, fe.Code)
	})
}

func TestRemoveByHandle(t *testing.T) {
	ctx := context.Background()
	f := New()

	require.NoError(t, f.RemoveByHandle(ctx, "nothing-here"))
	require.NoError(t, f.AddRegions(ctx, "a", regions(3)))
	require.NoError(t, f.AddRegions(ctx, "b", []domain.MonitoredRegion{region("other", 10, 10)}))

	require.NoError(t, f.RemoveByHandle(ctx, "a"))
	got := f.Regions()
	require.Len(t, got, 1)
	assert.Equal(t, "other", got[0].ID)
	assert.Equal(t, 1, f.Handles())
}

func TestRemoveByIDs(t *testing.T) {
	ctx := context.Background()
	f := New()
	require.NoError(t, f.AddRegions(ctx, "h", regions(3)))

	require.NoError(t, f.RemoveByIDs(ctx, []string{"r-000", "r-002", "missing"}))
	got := f.Regions()
	require.Len(t, got, 1)
	assert.Equal(t, "r-001", got[0].ID)
}

func TestObserveLocation_EnterDwellExit(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	f := New()
	f.OnTransition(rec.record)
	require.NoError(t, f.AddRegions(ctx, "h", []domain.MonitoredRegion{region("fort", 27.1795, 78.0211)}))

	f.ObserveLocation(fix(27.0, 78.0, t0))                        // far away
	f.ObserveLocation(fix(27.1795, 78.0211, t0.Add(time.Second))) // enter
	f.ObserveLocation(fix(27.1796, 78.0211, t0.Add(10*time.Second)))
	f.ObserveLocation(fix(27.1796, 78.0212, t0.Add(31*time.Second))) // dwell
	f.ObserveLocation(fix(27.1796, 78.0212, t0.Add(60*time.Second))) // nothing new
	f.ObserveLocation(fix(27.0, 78.0, t0.Add(90*time.Second)))       // exit

	got := rec.all()
	require.Len(t, got, 3)
	assert.Equal(t, recorded{domain.RawEnter, []string{"fort"}}, got[0])
	assert.Equal(t, recorded{domain.RawDwell, []string{"fort"}}, got[1])
	assert.Equal(t, recorded{domain.RawExit, []string{"fort"}}, got[2])
}

func TestObserveLocation_GroupsOverlappingRegions(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	f := New()
	f.OnTransition(rec.record)
	require.NoError(t, f.AddRegions(ctx, "h", []domain.MonitoredRegion{
		region("b", 10, 10),
		region("a", 10.0005, 10),
		region("far", 20, 20),
	}))

	f.ObserveLocation(fix(10.0002, 10, t0))

	got := rec.all()
	require.Len(t, got, 1)
	assert.Equal(t, domain.RawEnter, got[0].kind)
	assert.Equal(t, []string{"a", "b"}, got[0].ids)
}

func TestObserveLocation_ExitBeforeEnter(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	f := New()
	f.OnTransition(rec.record)
	require.NoError(t, f.AddRegions(ctx, "h", []domain.MonitoredRegion{region("a", 10, 10), region("b", 11, 11)}))

	f.ObserveLocation(fix(10, 10, t0))
	f.ObserveLocation(fix(11, 11, t0.Add(time.Minute)))

	got := rec.all()
	require.Len(t, got, 3)
	assert.Equal(t, recorded{domain.RawExit, []string{"a"}}, got[1])
	assert.Equal(t, recorded{domain.RawEnter, []string{"b"}}, got[2])
}

func TestAddRegions_InitialTrigger(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	f := New()
	f.OnTransition(rec.record)

	f.ObserveLocation(fix(10, 10, t0))
	require.NoError(t, f.AddRegions(ctx, "h", []domain.MonitoredRegion{region("here", 10, 10), region("there", 30, 30)}))

	got := rec.all()
	require.Len(t, got, 1)
	assert.Equal(t, recorded{domain.RawEnter, []string{"here"}}, got[0])

	// initial DWELL fires once the delay has passed
	f.ObserveLocation(fix(10, 10, t0.Add(domain.DwellDelay)))
	got = rec.all()
	require.Len(t, got, 2)
	assert.Equal(t, domain.RawDwell, got[1].kind)
}

func TestAddRegions_MaskFilters(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	f := New()
	f.OnTransition(rec.record)

	r := region("exit-only", 10, 10)
	r.TransitionMask = domain.MaskExit
	require.NoError(t, f.AddRegions(ctx, "h", []domain.MonitoredRegion{r}))

	f.ObserveLocation(fix(10, 10, t0))
	f.ObserveLocation(fix(10, 10, t0.Add(time.Minute)))
	f.ObserveLocation(fix(12, 12, t0.Add(2*time.Minute)))

	got := rec.all()
	require.Len(t, got, 1)
	assert.Equal(t, domain.RawExit, got[0].kind)
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	f := New()
	require.NoError(t, f.AddRegions(ctx, "h", regions(5)))

	f.Clear()
	assert.Empty(t, f.Regions())
	assert.Zero(t, f.Handles())
}

func TestExpiry(t *testing.T) {
	ctx := context.Background()
	now := t0
	f := New(WithClock(func() time.Time { return now }))

	r := region("short", 10, 10)
	r.Expiry = time.Hour
	require.NoError(t, f.AddRegions(ctx, "h", []domain.MonitoredRegion{r, region("forever", 11, 11)}))

	now = t0.Add(2 * time.Hour)
	got := f.Regions()
	require.Len(t, got, 1)
	assert.Equal(t, "forever", got[0].ID)
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := New()
	assert.ErrorIs(t, f.AddRegions(ctx, "h", regions(1)), context.Canceled)
	assert.ErrorIs(t, f.RemoveByHandle(ctx, "h"), context.Canceled)
}
