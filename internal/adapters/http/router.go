package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/sitewatch/internal/pkg/metrics"
)

// geofencesSunset is when the /v1/geofences alias goes away.
var geofencesSunset = time.Date(2027, time.June, 30, 0, 0, 0, 0, time.UTC)

// SetupRoutes registers all REST, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	// Prometheus metrics
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	app.Use(requestid.New())
	app.Use(RequestIDLogMiddleware())
	app.Use(AccessLogMiddleware())

	// Rate limiting: 120 requests per minute per IP
	app.Use(limiter.New(limiter.Config{
		Max:        120,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return newError(c, fiber.StatusTooManyRequests, "rate_limited", "too many requests, please try again later")
		},
		Next: func(c *fiber.Ctx) bool {
			// device boot signals must never be throttled
			return c.Path() == "/v1/device/boot"
		},
	}))

	// Security headers + API version
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	app.Use(ETagMiddleware())
	app.Use(CachingMiddleware())
	app.Use(DeprecationMiddleware([]DeprecatedRoute{
		{Path: "/v1/geofences", SunsetDate: geofencesSunset, Alternative: "/v1/regions"},
	}))

	// Health & readiness, no timeout
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	// REST API v1, 15s per-request timeout
	v1 := app.Group("/v1")
	v1.Get("/sites", ListSitesHandler(deps))
	v1.Put("/sites", timeout.NewWithContext(UpsertSitesHandler(deps), 15*time.Second))
	v1.Get("/sites/:id", GetSiteHandler(deps))
	v1.Delete("/sites/:id", timeout.NewWithContext(DeactivateSiteHandler(deps), 15*time.Second))
	v1.Get("/sites/:id/transitions", timeout.NewWithContext(SiteTransitionsHandler(deps), 15*time.Second))
	v1.Get("/regions", ListRegionsHandler(deps))
	v1.Get("/geofences", ListRegionsHandler(deps))
	v1.Get("/state", StateHandler(deps))
	v1.Get("/motion", MotionHandler(deps))
	v1.Post("/motion/start", timeout.NewWithContext(StartMotionHandler(deps), 15*time.Second))
	v1.Post("/motion/stop", timeout.NewWithContext(StopMotionHandler(deps), 15*time.Second))
	v1.Get("/sync", SyncStatusHandler(deps))
	v1.Post("/sync", TriggerSyncHandler(deps))
	v1.Post("/device/boot", timeout.NewWithContext(BootHandler(deps), 15*time.Second))
	v1.Put("/device/permissions", PermissionsHandler(deps))

	// GraphQL
	app.Post("/graphql", GraphQLHandler(deps))

	// API documentation (Swagger UI)
	SetupDocs(app)

	// WebSocket
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(WebSocketHandler(deps)))
}
