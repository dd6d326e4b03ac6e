package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики Pipewright. Регистрируются в глобальном registry
// и отдаются на /metrics через promhttp.Handler().
var (
	// BuildsTotal — завершённые сборки по статусу (SUCCEEDED, FAILED).
	BuildsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipewright_builds_total",
		Help: "Total pipeline assemblies by final status",
	}, []string{"status"})

	// BuildDuration — длительность одной сборки.
	BuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pipewright_build_duration_seconds",
		Help:    "Duration of a single pipeline assembly",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
	})

	// BuildIssues — проблемы валидации по коду и серьёзности.
	BuildIssues = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipewright_build_issues_total",
		Help: "Validation issues reported by pipeline assemblies",
	}, []string{"code", "severity"})

	// CatalogLookups — обращения к кэшу Template Store (hit, miss, not_found, error).
	CatalogLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipewright_catalog_lookups_total",
		Help: "Template store lookups by result",
	}, []string{"result"})

	// HTTPRequests — HTTP запросы API.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipewright_api_http_requests_total",
		Help: "Total HTTP requests handled by pipewright-api",
	}, []string{"method", "status"})
)
