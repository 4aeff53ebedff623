package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.temporal.io/sdk/client"

	"github.com/samirrijal/sitewatch/internal/adapters/http"
	natsadapter "github.com/samirrijal/sitewatch/internal/adapters/nats"
	"github.com/samirrijal/sitewatch/internal/adapters/permission"
	"github.com/samirrijal/sitewatch/internal/adapters/postgres"
	"github.com/samirrijal/sitewatch/internal/adapters/sitesource"
	temporaladapter "github.com/samirrijal/sitewatch/internal/adapters/temporal"
	"github.com/samirrijal/sitewatch/internal/adapters/valkey"
	"github.com/samirrijal/sitewatch/internal/core/domain"
	"github.com/samirrijal/sitewatch/internal/core/ports"
	"github.com/samirrijal/sitewatch/internal/core/usecases"
	"github.com/samirrijal/sitewatch/internal/pkg/config"
	"github.com/samirrijal/sitewatch/internal/pkg/logging"
	"github.com/samirrijal/sitewatch/internal/pkg/metrics"
	"github.com/samirrijal/sitewatch/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("sitewatch-engine")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format, "sitewatch-engine")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.SampleRatio)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer telemetry.Shutdown(shutdown)
		}
	}

	// NATS is the device boundary, so it is required.
	nc, err := natsadapter.Connect(cfg.NATS.URL, "sitewatch-engine-"+cfg.Device.ID)
	if err != nil {
		log.Fatalf("nats: %v", err)
	}
	defer nc.Drain()

	subjects := natsadapter.NewSubjects(cfg.Device.ID)
	bridge := natsadapter.NewDeviceBridge(nc, subjects, cfg.NATS.Timeout())
	defer bridge.Close()

	var publisher ports.EventPublisher
	if p, err := natsadapter.NewPublisher(nc); err != nil {
		slog.Warn("jetstream unavailable, confirmed transitions will not be streamed", "error", err)
	} else {
		publisher = p
	}

	httpDeps := &http.Dependencies{NATS: nc}

	// Database
	var (
		siteRepo       *postgres.SiteRepo
		transitionRepo *postgres.TransitionRepo
	)
	if cfg.Database.Enabled {
		db, err := postgres.New(ctx, cfg.Database.DSN())
		if err != nil {
			if cfg.Sites.Source == "postgres" {
				log.Fatalf("database: %v", err)
			}
			slog.Warn("database unavailable, transition history disabled", "error", err)
		} else {
			defer db.Close()
			siteRepo = postgres.NewSiteRepo(db)
			transitionRepo = postgres.NewTransitionRepo(db)
			httpDeps.DB = db
			httpDeps.Sites = siteRepo
			httpDeps.Transitions = transitionRepo
			go reportPoolStats(ctx, db)
		}
	}

	// Cache
	var cache ports.CacheService
	if cfg.Valkey.Enabled {
		c, err := valkey.New(cfg.Valkey.Addr)
		if err != nil {
			slog.Warn("valkey unavailable, site list will not be cached", "error", err)
		} else {
			defer c.Close()
			cache = c
			httpDeps.Cache = c
		}
	}

	var source ports.SiteSource
	switch cfg.Sites.Source {
	case "http":
		source = sitesource.NewHTTPSource(cfg.Sites.URL, cfg.Sites.FetchTimeout())
	case "postgres":
		source = siteRepo
	}

	var analyzer ports.VisitAnalyzer
	if cfg.Temporal.Enabled && cfg.Temporal.Inline {
		tc, err := client.Dial(client.Options{
			HostPort:  cfg.Temporal.HostPort,
			Namespace: cfg.Temporal.Namespace,
		})
		if err != nil {
			slog.Warn("temporal unavailable, visits will not be analyzed", "error", err)
		} else {
			defer tc.Close()
			analyzer = temporaladapter.NewVisitAnalyzer(tc, cfg.Temporal.TaskQueue)
		}
	}

	perms := permission.NewStatic(cfg.Device.LocationCapability, cfg.Device.MotionCapability)

	var engine *usecases.Engine
	names := func(siteID string) (string, bool) { return engine.Catalog().Name(siteID) }

	deps := usecases.EngineDeps{
		Permissions: perms,
		Monitor:     bridge,
		Motion:      bridge,
		Cache:       cache,
		Indicator:   natsadapter.NewIndicator(nc, subjects),
		Notifier:    natsadapter.NewUINotifier(nc, names),
		Publisher:   publisher,
		Analyzer:    analyzer,
	}
	// Assigning a typed nil would make the engine call through it.
	if source != nil {
		deps.Sites = source
	}
	if transitionRepo != nil {
		deps.Transitions = transitionRepo
	}

	engine = usecases.NewEngine(deps, usecases.EngineConfig{
		RegistrationHandle: cfg.Engine.RegistrationHandle,
		ArbiterShards:      cfg.Engine.ArbiterShards,
		DispatchQueue:      cfg.Engine.DispatchQueue,
		EffectTimeout:      cfg.Engine.EffectTimeoutDuration(),
		ResyncInterval:     cfg.Engine.ResyncIntervalDuration(),
		SiteCacheTTL:       cfg.Sites.CacheTTLDuration(),
		FallbackSites:      domain.FallbackSites(),
	})
	defer engine.Close()

	httpDeps.Engine = engine
	httpDeps.Permissions = perms

	raw := make(chan domain.RawTransitionEvent, cfg.Engine.RawBuffer)
	if err := bridge.SubscribeTransitions(ctx, raw); err != nil {
		log.Fatalf("device transitions: %v", err)
	}
	if err := bridge.SubscribeBoot(func(action string) { engine.OnBoot(ctx, action) }); err != nil {
		log.Fatalf("device boot signals: %v", err)
	}

	// Startup sequence: register the site list, then track motion.
	engine.SyncAndRegister()
	if err := engine.StartMotionTracking(ctx); err != nil {
		slog.Warn("running without vehicle suppression", "error", err)
	}

	runErr := make(chan error, 1)
	go func() { runErr <- engine.Run(ctx, raw) }()

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024,
		AppName:      "Sitewatch Engine",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "http://localhost:3000, http://localhost:5173",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept",
		MaxAge:       3600,
	}))
	http.SetupRoutes(app, httpDeps)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("engine API starting", "addr", addr, "device", cfg.Device.ID, "sites_source", cfg.Sites.Source)
		if err := app.Listen(addr); err != nil {
			slog.Error("listen", "error", err)
			cancel()
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	case err := <-runErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("engine stopped", "error", err)
		}
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}

// reportPoolStats refreshes the connection pool gauges until ctx is done.
func reportPoolStats(ctx context.Context, db *postgres.DB) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.UpdateDBPoolMetrics(db.Stat())
		}
	}
}
