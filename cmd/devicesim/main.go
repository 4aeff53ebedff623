package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	natsadapter "github.com/samirrijal/sitewatch/internal/adapters/nats"
	"github.com/samirrijal/sitewatch/internal/adapters/regionmonitor"
	"github.com/samirrijal/sitewatch/internal/core/domain"
	"github.com/samirrijal/sitewatch/internal/pkg/config"
	"github.com/samirrijal/sitewatch/internal/pkg/logging"
)

// devicesim plays the device side of the boundary: it hosts an in-memory
// region monitor, answers the engine's requests and replays a trace of
// location fixes, motion samples and boot signals.
//
//	devicesim [trace.json]
func main() {
	cfg, err := config.Load("sitewatch-devicesim")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format, "sitewatch-devicesim")

	var steps []Step
	if len(os.Args) > 1 {
		steps, err = LoadTrace(os.Args[1])
		if err != nil {
			log.Fatalf("%v", err)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	nc, err := natsadapter.Connect(cfg.NATS.URL, "sitewatch-device-"+cfg.Device.ID)
	if err != nil {
		log.Fatalf("nats: %v", err)
	}
	defer nc.Drain()

	facility := regionmonitor.New()
	host := natsadapter.NewDeviceHost(nc, natsadapter.NewSubjects(cfg.Device.ID), facility)
	defer host.Close()

	facility.OnTransition(func(kind domain.RawTransitionKind, ids []string, at time.Time) {
		slog.Info("facility transition", "kind", kind.String(), "regions", ids)
		if err := host.PublishTransition(kind, ids, at); err != nil {
			slog.Warn("publish transition", "error", err)
		}
	})

	if err := host.Serve(ctx); err != nil {
		log.Fatalf("serve device requests: %v", err)
	}
	if err := host.OnLocation(facility.ObserveLocation); err != nil {
		log.Fatalf("location fixes: %v", err)
	}
	if err := host.OnIndicator(func(siteID, siteName, text string) {
		slog.Info("indicator", "site_id", siteID, "site_name", siteName, "text", text)
	}); err != nil {
		log.Fatalf("indicator: %v", err)
	}
	if err := host.OnUIUpdate(func(u natsadapter.UIUpdate) {
		slog.Info("ui update", "site_id", u.SiteID, "site_name", u.SiteName, "transition", u.Transition)
	}); err != nil {
		log.Fatalf("ui updates: %v", err)
	}

	slog.Info("device simulator ready", "device", cfg.Device.ID, "steps", len(steps))

	// Give the engine a moment to register before the first fix.
	if len(steps) > 0 && !sleep(ctx, 2*time.Second) {
		return
	}
	replay(ctx, host, facility, steps)

	<-ctx.Done()
	slog.Info("device simulator stopped", "regions", len(facility.Regions()))
}

func replay(ctx context.Context, host *natsadapter.DeviceHost, facility *regionmonitor.Facility, steps []Step) {
	for i, s := range steps {
		if ctx.Err() != nil {
			return
		}

		if s.Available != nil {
			facility.SetAvailable(*s.Available)
			if !*s.Available {
				if err := host.PublishError(domain.StatusNotAvailable); err != nil {
					slog.Warn("publish facility error", "error", err)
				}
			}
		}
		if s.Boot != "" {
			slog.Info("simulating restart", "step", i, "action", s.Boot)
			if err := host.Boot(s.Boot); err != nil {
				slog.Warn("publish boot", "error", err)
			}
		}
		if sample, ok := s.Sample(); ok {
			sent, err := host.PublishMotion(sample)
			if err != nil {
				slog.Warn("publish motion", "error", err)
			} else if !sent {
				slog.Debug("motion sample dropped, engine is not sampling", "step", i)
			}
		}
		if fix, ok := s.Fix(time.Now().UTC()); ok {
			facility.ObserveLocation(fix)
		}

		if s.wait > 0 && !sleep(ctx, s.wait) {
			return
		}
	}
	slog.Info("trace replayed", "steps", len(steps))
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
