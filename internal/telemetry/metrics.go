// Package telemetry provides application-level observability for the Gestio
// backend.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// served on the side-channel HTTP server started by cmd/server:
//
//	GET http://<host>:<GESTIO_TELEMETRY_METRICS_PORT>/metrics
//
// Default port: 9090. The endpoint returns data in the Prometheus text
// exposition format and is intended to be scraped every 15–60 seconds. It is
// NOT served by the Gin router, so the scrape path stays off the public
// ingress and is never throttled by API middleware.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Audit pipeline counters: records written, write failures, suppressed no-op updates, diff fallbacks, ship failures
//   - Geo-IP lookup counters by outcome and a latency histogram for the external call
//   - Database connection pool gauge (polled every 30 s)
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as /api/v1/invoices/:id)
// rather than the raw request URL, and audit metrics use the entity type
// (table name), never the entity ID — both choices keep label cardinality
// bounded by the number of routes and tables, not by the number of rows or
// callers.
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics — labelled by method, route template, and status code.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - Error rate (%):                    sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//   - p99 latency per route:             histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Audit pipeline metrics — recorded by the audit recorder.
//
// AuditRecordsTotal counts records successfully appended, by lifecycle action
// and entity type. AuditWriteFailuresTotal is the alert-worthy one: the
// pipeline deliberately never fails the triggering business operation when a
// record cannot be written, so this counter (plus the accompanying
// slog.Error) is the only trace of a lost record.
//
// Example PromQL queries:
//   - Records by action:   sum by (action) (rate(audit_records_total[1h]))
//   - Alert expression:    increase(audit_write_failures_total[5m]) > 0
var (
	AuditRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_records_total",
			Help: "Total number of audit records written, by action and entity type.",
		},
		[]string{"action", "entity_type"},
	)

	AuditWriteFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_write_failures_total",
			Help: "Total number of audit records that could not be persisted. A lost record is a compliance concern; alert on any increase.",
		},
		[]string{"entity_type"},
	)

	AuditUpdatesSuppressedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_updates_suppressed_total",
			Help: "Update events skipped because no attribute changed, by entity type.",
		},
		[]string{"entity_type"},
	)

	AuditDiffFallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_diff_fallbacks_total",
			Help: "Diff computations that failed and fell back to raw snapshots with an empty change map.",
		},
	)

	AuditShipFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_ship_failures_total",
			Help: "Audit records that could not be shipped to an external destination, by destination type.",
		},
		[]string{"destination"},
	)
)

// Geo-IP enrichment metrics — recorded by the cached resolver.
//
// GeoIPLookupsTotal is labelled by outcome:
//
//	cache_hit     — country served from the 7-day cache
//	cache_miss    — external lookup performed and cached
//	error         — external lookup failed (timeout, non-2xx, bad body)
//	rate_limited  — outbound limiter denied the external call
//
// A sustained error or rate_limited rate means audit records are being
// written with ip_country="XX"; the records themselves are unaffected.
//
// Example PromQL queries:
//   - Cache hit ratio:  sum(rate(geoip_lookups_total{outcome="cache_hit"}[1h])) / sum(rate(geoip_lookups_total[1h]))
//   - p95 lookup time:  histogram_quantile(0.95, rate(geoip_lookup_duration_seconds_bucket[1h]))
var (
	GeoIPLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geoip_lookups_total",
			Help: "Geo-IP resolution attempts, by outcome (cache_hit, cache_miss, error, rate_limited).",
		},
		[]string{"outcome"},
	)

	GeoIPLookupDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "geoip_lookup_duration_seconds",
			Help:    "Latency of external geo-IP lookup calls (cache hits excluded). The client timeout caps observations at 2 seconds.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 2.5},
		},
	)
)

// DBOpenConnections is a Gauge that tracks the number of open connections currently
// held by the sql.DB connection pool.  It is sampled every 30 seconds by
// StartDBStatsCollector rather than per-request to avoid the overhead of sql.DB.Stats().
//
// Example PromQL queries:
//   - Pool utilisation (%): db_open_connections / <GESTIO_DATABASE_MAX_CONNECTIONS> * 100
//   - Alert on near-exhaustion: db_open_connections > 20  (for max_connections=25)
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB connection
// pool statistics every 30 seconds and updates the DBOpenConnections gauge.
// The goroutine exits cleanly when the database becomes unreachable (db.Ping fails),
// which happens automatically when the application shuts down and defers db.Close().
//
// Call this once, immediately after db.Connect() succeeds in main.go:
//
//	telemetry.StartDBStatsCollector(database.DB)
func StartDBStatsCollector(db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := db.Ping(); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	}()
}
