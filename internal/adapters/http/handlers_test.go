package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	api "github.com/samirrijal/sitewatch/internal/adapters/http"
	"github.com/samirrijal/sitewatch/internal/adapters/permission"
	"github.com/samirrijal/sitewatch/internal/adapters/regionmonitor"
	"github.com/samirrijal/sitewatch/internal/core/domain"
	"github.com/samirrijal/sitewatch/internal/core/usecases"
)

var (
	tajMahal   = domain.Site{ID: "taj-mahal", Name: "Taj Mahal", Latitude: 27.1751, Longitude: 78.0421, RadiusMeters: 300}
	qutubMinar = domain.Site{ID: "qutub-minar", Name: "Qutub Minar", Latitude: 28.5245, Longitude: 77.1855, RadiusMeters: 200}
)

// --- fakes ---

type fakeMotion struct{}

func (fakeMotion) RequestUpdates(ctx context.Context, interval time.Duration, sink func(domain.MotionSample)) error {
	return nil
}
func (fakeMotion) RemoveUpdates(ctx context.Context) error { return nil }

type fakeSites struct {
	mu          sync.Mutex
	sites       []domain.Site
	upserted    []domain.Site
	deactivated []string
	upsertFn    func(sites []domain.Site) error
}

func (f *fakeSites) FetchSites(ctx context.Context) ([]domain.Site, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Site(nil), f.sites...), nil
}

func (f *fakeSites) UpsertBatch(ctx context.Context, sites []domain.Site) error {
	if f.upsertFn != nil {
		if err := f.upsertFn(sites); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserted = append(f.upserted, sites...)
	return nil
}

func (f *fakeSites) GetByID(ctx context.Context, id string) (*domain.Site, error) {
	return nil, errors.New("not used")
}

func (f *fakeSites) Deactivate(ctx context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deactivated = append(f.deactivated, ids...)
	return nil
}

type fakeTransitions struct {
	events []domain.ConfirmedTransitionEvent
	gotLim int
}

func (f *fakeTransitions) Insert(ctx context.Context, ev *domain.ConfirmedTransitionEvent) error {
	return nil
}

func (f *fakeTransitions) ListBySite(ctx context.Context, siteID string, limit int) ([]domain.ConfirmedTransitionEvent, error) {
	f.gotLim = limit
	var out []domain.ConfirmedTransitionEvent
	for _, ev := range f.events {
		if ev.SiteID == siteID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeTransitions) InsertVisit(ctx context.Context, v *domain.VisitSummary) error { return nil }

// --- helpers ---

func makeDeps(t *testing.T, perms *permission.Static, sites *fakeSites) *api.Dependencies {
	t.Helper()
	if perms == nil {
		perms = permission.NewStatic(true, true)
	}
	deps := usecases.EngineDeps{
		Permissions: perms,
		Monitor:     regionmonitor.New(),
		Motion:      fakeMotion{},
	}
	if sites != nil {
		deps.Sites = sites
	}
	e := usecases.NewEngine(deps, usecases.EngineConfig{
		RegistrationHandle: "test",
		ArbiterShards:      2,
		FallbackSites:      []domain.Site{tajMahal, qutubMinar},
	})
	t.Cleanup(e.Close)

	d := &api.Dependencies{Engine: e, Permissions: perms}
	if sites != nil {
		d.Sites = sites
	}
	return d
}

func setupApp(deps *api.Dependencies) *fiber.App {
	app := fiber.New()
	api.SetupRoutes(app, deps)
	return app
}

func do(t *testing.T, app *fiber.App, method, path, body string) (int, []byte, map[string]string) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	headers := make(map[string]string)
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}
	return resp.StatusCode, data, headers
}

func decode(t *testing.T, data []byte, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode %s: %v", string(data), err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// --- tests ---

func TestHealth(t *testing.T) {
	app := setupApp(makeDeps(t, nil, nil))
	status, body, _ := do(t, app, "GET", "/v1/health", "")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	var got map[string]string
	decode(t, body, &got)
	if got["status"] != "healthy" {
		t.Errorf("unexpected health body: %v", got)
	}
}

func TestReady_WithoutNATS(t *testing.T) {
	app := setupApp(makeDeps(t, nil, nil))
	status, body, _ := do(t, app, "GET", "/v1/ready", "")
	if status != fiber.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", status)
	}
	var got struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	decode(t, body, &got)
	if got.Checks["nats"] != "not configured" || got.Checks["database"] != "not configured" {
		t.Errorf("unexpected checks: %v", got.Checks)
	}
	if got.Checks["sync"] != "pending" {
		t.Errorf("expected sync pending, got %q", got.Checks["sync"])
	}
}

func TestListSites(t *testing.T) {
	app := setupApp(makeDeps(t, nil, nil))
	status, body, headers := do(t, app, "GET", "/v1/sites?limit=1", "")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	if headers["X-Site-Source"] != "fallback" {
		t.Errorf("expected fallback source, got %q", headers["X-Site-Source"])
	}
	var got struct {
		Data       []api.SiteView `json:"data"`
		Pagination api.Pagination `json:"pagination"`
	}
	decode(t, body, &got)
	if len(got.Data) != 1 || got.Data[0].ID != "taj-mahal" {
		t.Errorf("unexpected page: %+v", got.Data)
	}
	if got.Pagination.Total != 2 {
		t.Errorf("expected total 2, got %d", got.Pagination.Total)
	}
}

func TestGetSite(t *testing.T) {
	deps := makeDeps(t, nil, nil)
	app := setupApp(deps)

	status, body, _ := do(t, app, "GET", "/v1/sites/qutub-minar", "")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	var got map[string]interface{}
	decode(t, body, &got)
	if got["name"] != "Qutub Minar" || got["state"] != "OUTSIDE" {
		t.Errorf("unexpected site: %v", got)
	}

	status, body, _ = do(t, app, "GET", "/v1/sites/nowhere", "")
	if status != 404 {
		t.Fatalf("expected 404, got %d", status)
	}
	var apiErr api.APIError
	decode(t, body, &apiErr)
	if apiErr.Code != "not_found" {
		t.Errorf("expected not_found, got %q", apiErr.Code)
	}
}

func TestState_InsideFilter(t *testing.T) {
	deps := makeDeps(t, nil, nil)
	app := setupApp(deps)

	// Motion is unknown, so the entry is confirmed.
	if _, ok := deps.Engine.Arbiter().Handle(domain.RawTransitionEvent{
		RegionID: "taj-mahal", Kind: domain.RawEnter, ObservedAt: time.Now(),
	}); !ok {
		t.Fatal("expected entry to be confirmed")
	}

	status, body, _ := do(t, app, "GET", "/v1/state?inside=true", "")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	var got []map[string]interface{}
	decode(t, body, &got)
	if len(got) != 1 || got[0]["site_id"] != "taj-mahal" || got[0]["state"] != "INSIDE" {
		t.Errorf("unexpected state: %v", got)
	}
}

func TestSyncThenRegions(t *testing.T) {
	sites := &fakeSites{sites: []domain.Site{tajMahal}}
	deps := makeDeps(t, nil, sites)
	app := setupApp(deps)

	status, _, _ := do(t, app, "POST", "/v1/sync", "")
	if status != fiber.StatusAccepted {
		t.Fatalf("expected 202, got %d", status)
	}
	waitFor(t, "sync", func() bool { return deps.Engine.LastSync().OK })

	status, body, _ := do(t, app, "GET", "/v1/sync", "")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	var sync usecases.SyncStatus
	decode(t, body, &sync)
	if !sync.OK || sync.Regions != 1 || sync.Source != "remote" {
		t.Errorf("unexpected sync status: %+v", sync)
	}

	status, body, _ = do(t, app, "GET", "/v1/regions", "")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	var regions struct {
		Handle  string                   `json:"handle"`
		Count   int                      `json:"count"`
		Regions []domain.MonitoredRegion `json:"regions"`
	}
	decode(t, body, &regions)
	if regions.Handle != "test" || regions.Count != 1 || regions.Regions[0].ID != "taj-mahal" {
		t.Errorf("unexpected regions: %+v", regions)
	}
}

func TestGeofencesAliasIsDeprecated(t *testing.T) {
	app := setupApp(makeDeps(t, nil, nil))
	status, _, headers := do(t, app, "GET", "/v1/geofences", "")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	if headers["Deprecation"] != "true" {
		t.Errorf("expected Deprecation header, got %q", headers["Deprecation"])
	}
	if !strings.Contains(headers["Link"], "/v1/regions") {
		t.Errorf("expected successor link, got %q", headers["Link"])
	}

	_, _, headers = do(t, app, "GET", "/v1/regions", "")
	if headers["Deprecation"] != "" {
		t.Error("/v1/regions must not be marked deprecated")
	}
}

func TestMotion_StartWithoutCapability(t *testing.T) {
	app := setupApp(makeDeps(t, permission.NewStatic(true, false), nil))
	status, body, _ := do(t, app, "POST", "/v1/motion/start", "")
	if status != fiber.StatusForbidden {
		t.Fatalf("expected 403, got %d", status)
	}
	var apiErr api.APIError
	decode(t, body, &apiErr)
	if apiErr.Code != "forbidden" {
		t.Errorf("expected forbidden, got %q", apiErr.Code)
	}
}

func TestMotion_StartAndStop(t *testing.T) {
	app := setupApp(makeDeps(t, nil, nil))

	status, body, _ := do(t, app, "POST", "/v1/motion/start", "")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	var view api.MotionView
	decode(t, body, &view)
	if !view.Tracking || view.InVehicle {
		t.Errorf("unexpected motion view: %+v", view)
	}

	status, _, _ = do(t, app, "POST", "/v1/motion/stop", "")
	if status != fiber.StatusNoContent {
		t.Fatalf("expected 204, got %d", status)
	}
	_, body, _ = do(t, app, "GET", "/v1/motion", "")
	decode(t, body, &view)
	if view.Tracking {
		t.Error("expected tracking to stop")
	}
}

func TestBoot(t *testing.T) {
	sites := &fakeSites{sites: []domain.Site{qutubMinar}}
	deps := makeDeps(t, nil, sites)
	app := setupApp(deps)

	status, _, _ := do(t, app, "POST", "/v1/device/boot", `{"action":"SCREEN_ON"}`)
	if status != fiber.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}

	status, _, _ = do(t, app, "POST", "/v1/device/boot", `{"action":"BOOT_COMPLETED"}`)
	if status != fiber.StatusAccepted {
		t.Fatalf("expected 202, got %d", status)
	}
	waitFor(t, "rehydration", func() bool { return deps.Engine.LastSync().OK })
	if !deps.Engine.Tracker().Tracking() {
		t.Error("expected motion tracking after boot")
	}
}

func TestPermissions(t *testing.T) {
	deps := makeDeps(t, nil, nil)
	app := setupApp(deps)

	status, body, _ := do(t, app, "PUT", "/v1/device/permissions", `{"motion":false}`)
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	var got map[string]bool
	decode(t, body, &got)
	if !got["location"] || got["motion"] {
		t.Errorf("unexpected grants: %v", got)
	}

	deps.Permissions = nil
	app = setupApp(deps)
	status, _, _ = do(t, app, "PUT", "/v1/device/permissions", `{"motion":true}`)
	if status != fiber.StatusConflict {
		t.Fatalf("expected 409, got %d", status)
	}
}

func TestUpsertSites(t *testing.T) {
	app := setupApp(makeDeps(t, nil, nil))
	status, _, _ := do(t, app, "PUT", "/v1/sites", `[{"id":"a","name":"A","latitude":1,"longitude":1,"radius_meters":100}]`)
	if status != fiber.StatusServiceUnavailable {
		t.Fatalf("expected 503 without a repository, got %d", status)
	}

	sites := &fakeSites{}
	deps := makeDeps(t, nil, sites)
	app = setupApp(deps)

	status, _, _ = do(t, app, "PUT", "/v1/sites", `[{"id":"a","name":"A","latitude":95,"longitude":1,"radius_meters":100}]`)
	if status != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for invalid latitude, got %d", status)
	}

	status, body, _ := do(t, app, "PUT", "/v1/sites", `[{"id":"a","name":"A","latitude":1,"longitude":1,"radius_meters":100}]`)
	if status != fiber.StatusAccepted {
		t.Fatalf("expected 202, got %d", status)
	}
	var got map[string]int
	decode(t, body, &got)
	if got["upserted"] != 1 {
		t.Errorf("unexpected body: %v", got)
	}
	sites.mu.Lock()
	n := len(sites.upserted)
	sites.mu.Unlock()
	if n != 1 {
		t.Errorf("expected 1 upserted site, got %d", n)
	}
}

func TestDeactivateSite(t *testing.T) {
	sites := &fakeSites{}
	app := setupApp(makeDeps(t, nil, sites))

	status, _, _ := do(t, app, "DELETE", "/v1/sites/taj-mahal", "")
	if status != fiber.StatusNoContent {
		t.Fatalf("expected 204, got %d", status)
	}
	sites.mu.Lock()
	defer sites.mu.Unlock()
	if len(sites.deactivated) != 1 || sites.deactivated[0] != "taj-mahal" {
		t.Errorf("unexpected deactivations: %v", sites.deactivated)
	}
}

func TestSiteTransitions(t *testing.T) {
	deps := makeDeps(t, nil, nil)
	app := setupApp(deps)

	status, _, _ := do(t, app, "GET", "/v1/sites/taj-mahal/transitions", "")
	if status != fiber.StatusServiceUnavailable {
		t.Fatalf("expected 503 without history, got %d", status)
	}

	repo := &fakeTransitions{events: []domain.ConfirmedTransitionEvent{
		{ID: "1", SiteID: "taj-mahal", Kind: domain.Entered, ObservedAt: time.Now()},
		{ID: "2", SiteID: "red-fort", Kind: domain.Entered, ObservedAt: time.Now()},
	}}
	deps.Transitions = repo
	app = setupApp(deps)

	status, body, _ := do(t, app, "GET", "/v1/sites/taj-mahal/transitions?limit=500", "")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	var got []domain.ConfirmedTransitionEvent
	decode(t, body, &got)
	if len(got) != 1 || got[0].ID != "1" {
		t.Errorf("unexpected transitions: %+v", got)
	}
	if repo.gotLim != 50 {
		t.Errorf("expected out-of-range limit to fall back to 50, got %d", repo.gotLim)
	}
}

func TestGraphQL_Sites(t *testing.T) {
	app := setupApp(makeDeps(t, nil, nil))
	status, body, _ := do(t, app, "POST", "/graphql", `{"query":"{ sites { id name state } motion { tracking sample { kind } } }"}`)
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	var got struct {
		Data struct {
			Sites []struct {
				ID    string `json:"id"`
				Name  string `json:"name"`
				State string `json:"state"`
			} `json:"sites"`
			Motion struct {
				Tracking bool `json:"tracking"`
				Sample   struct {
					Kind string `json:"kind"`
				} `json:"sample"`
			} `json:"motion"`
		} `json:"data"`
		Errors []interface{} `json:"errors"`
	}
	decode(t, body, &got)
	if len(got.Errors) > 0 {
		t.Fatalf("graphql errors: %v", got.Errors)
	}
	if len(got.Data.Sites) != 2 || got.Data.Sites[1].Name != "Qutub Minar" {
		t.Errorf("unexpected sites: %+v", got.Data.Sites)
	}
	if got.Data.Motion.Sample.Kind != "UNKNOWN" {
		t.Errorf("expected UNKNOWN motion, got %q", got.Data.Motion.Sample.Kind)
	}
}

func TestGraphQL_BadBody(t *testing.T) {
	app := setupApp(makeDeps(t, nil, nil))
	status, _, _ := do(t, app, "POST", "/graphql", `{`)
	if status != fiber.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
}
