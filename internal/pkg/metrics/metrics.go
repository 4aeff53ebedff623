package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sitewatch",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sitewatch",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	httpResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sitewatch",
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "HTTP response size in bytes",
		Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
	}, []string{"method", "path"})

	// Engine metrics
	RawTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sitewatch",
		Subsystem: "arbiter",
		Name:      "raw_transitions_total",
		Help:      "Raw region transitions received from the facility",
	}, []string{"kind"})

	ConfirmedTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sitewatch",
		Subsystem: "arbiter",
		Name:      "confirmed_transitions_total",
		Help:      "Transitions confirmed after arbitration",
	}, []string{"kind"})

	SuppressedTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sitewatch",
		Subsystem: "arbiter",
		Name:      "suppressed_transitions_total",
		Help:      "Raw transitions that produced no confirmed event",
	}, []string{"reason"})

	RegisteredRegions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sitewatch",
		Subsystem: "registry",
		Name:      "registered_regions",
		Help:      "Regions currently registered with the facility",
	})

	RegistrationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sitewatch",
		Subsystem: "registry",
		Name:      "registration_failures_total",
		Help:      "Failed region registrations by error kind",
	}, []string{"kind"})

	SyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "sitewatch",
		Subsystem: "sync",
		Name:      "duration_seconds",
		Help:      "Duration of a fetch-and-register cycle",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})

	SyncFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sitewatch",
		Subsystem: "sync",
		Name:      "failures_total",
		Help:      "Sync failures by stage",
	}, []string{"stage"})

	SiteFetchFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sitewatch",
		Subsystem: "sync",
		Name:      "fetch_fallbacks_total",
		Help:      "Site list served from a fallback instead of the remote source",
	}, []string{"source"})

	AckLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "sitewatch",
		Subsystem: "dispatcher",
		Name:      "ack_latency_seconds",
		Help:      "Time from wake-up to visible acknowledgment",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5},
	})

	SideEffectFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sitewatch",
		Subsystem: "dispatcher",
		Name:      "side_effect_failures_total",
		Help:      "Failed post-acknowledgment side effects",
	}, []string{"effect"})

	BroadcastDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sitewatch",
		Subsystem: "broadcast",
		Name:      "dropped_total",
		Help:      "Confirmed transitions dropped for slow in-process listeners",
	})

	MotionSamples = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sitewatch",
		Subsystem: "motion",
		Name:      "samples_total",
		Help:      "Motion classification samples received",
	}, []string{"activity"})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sitewatch",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	}, []string{"operation"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sitewatch",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses",
	}, []string{"operation"})

	// Database pool metrics
	DBPoolConnsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sitewatch",
		Subsystem: "db",
		Name:      "pool_conns_open",
		Help:      "Total connections open in the database pool",
	})

	DBPoolConnsAcquired = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sitewatch",
		Subsystem: "db",
		Name:      "pool_conns_acquired",
		Help:      "Connections currently acquired from the database pool",
	})

	DBPoolConnsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sitewatch",
		Subsystem: "db",
		Name:      "pool_conns_idle",
		Help:      "Idle connections in the database pool",
	})

	DBPoolEmptyAcquires = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sitewatch",
		Subsystem: "db",
		Name:      "pool_empty_acquires",
		Help:      "Acquires that had to wait for a new connection, as reported by the pool",
	})
)

// Middleware records request metrics.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		method := c.Method()

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)
		httpResponseSize.WithLabelValues(method, path).Observe(float64(len(c.Response().Body())))

		return err
	}
}

// Handler returns a Fiber handler serving Prometheus /metrics endpoint.
func Handler() fiber.Handler {
	handler := promhttp.Handler()
	return func(c *fiber.Ctx) error {
		fasthttpadaptor.NewFastHTTPHandler(handler)(c.Context())
		return nil
	}
}

// PoolStat is the subset of pgxpool.Stat the pool gauges read.
type PoolStat interface {
	AcquiredConns() int32
	IdleConns() int32
	TotalConns() int32
	EmptyAcquireCount() int64
}

// UpdateDBPoolMetrics copies pool statistics into the db gauges.
func UpdateDBPoolMetrics(s PoolStat) {
	DBPoolConnsAcquired.Set(float64(s.AcquiredConns()))
	DBPoolConnsIdle.Set(float64(s.IdleConns()))
	DBPoolConnsOpen.Set(float64(s.TotalConns()))
	DBPoolEmptyAcquires.Set(float64(s.EmptyAcquireCount()))
}
