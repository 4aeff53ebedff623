package main

import (
	"context"
	"log"
	"log/slog"
	"os/signal"
	"syscall"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	natsadapter "github.com/samirrijal/sitewatch/internal/adapters/nats"
	"github.com/samirrijal/sitewatch/internal/adapters/postgres"
	temporaladapter "github.com/samirrijal/sitewatch/internal/adapters/temporal"
	"github.com/samirrijal/sitewatch/internal/pkg/config"
	"github.com/samirrijal/sitewatch/internal/pkg/logging"
	"github.com/samirrijal/sitewatch/internal/workflows"
)

// durableConsumer names the JetStream consumer that feeds visit workflows.
const durableConsumer = "visit-analyzer"

func main() {
	cfg, err := config.Load("sitewatch-visitworker")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format, "sitewatch-visitworker")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	activities := &workflows.VisitActivities{}
	if cfg.Database.Enabled {
		db, err := postgres.New(ctx, cfg.Database.DSN())
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		defer db.Close()
		activities.Visits = postgres.NewTransitionRepo(db)
	} else {
		slog.Warn("database disabled, visit summaries will only be logged")
	}

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})
	w.RegisterWorkflow(workflows.SiteVisitWorkflow)
	w.RegisterActivity(activities)

	// With temporal.inline the engine starts workflows itself.
	if !cfg.Temporal.Inline {
		nc, err := natsadapter.Connect(cfg.NATS.URL, "sitewatch-visitworker")
		if err != nil {
			log.Fatalf("nats: %v", err)
		}
		defer nc.Drain()

		sub, err := natsadapter.NewTransitionSubscriber(nc)
		if err != nil {
			log.Fatalf("transition stream: %v", err)
		}
		analyzer := temporaladapter.NewVisitAnalyzer(c, cfg.Temporal.TaskQueue)
		if err := sub.Subscribe(ctx, durableConsumer, analyzer.Analyze); err != nil {
			log.Fatalf("subscribe transitions: %v", err)
		}
		slog.Info("consuming confirmed transitions", "durable", durableConsumer)
	}

	if err := w.Start(); err != nil {
		log.Fatalf("worker: %v", err)
	}
	slog.Info("visit worker started", "task_queue", cfg.Temporal.TaskQueue)

	<-ctx.Done()
	w.Stop()
	slog.Info("visit worker stopped")
}
