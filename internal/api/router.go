package api

import (
	"net/http"
	"time"

	"github.com/Togather-Foundation/historia/internal/api/handlers"
	"github.com/Togather-Foundation/historia/internal/api/middleware"
	"github.com/Togather-Foundation/historia/internal/audit"
	"github.com/Togather-Foundation/historia/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// JobQueue is the in-process queue async imports are handed to.
type JobQueue interface {
	handlers.JobEnqueuer
	handlers.QueueStats
}

// RouterDeps are the services the HTTP surface is built on. Services left
// nil answer 500 or 503 rather than panicking.
type RouterDeps struct {
	Environment string
	Build       BuildInfo
	Logger      zerolog.Logger

	Review     handlers.StagedReviewer
	Wikidata   handlers.WikidataRunner
	Titles     handlers.TitleImportRunner
	Queue      JobQueue
	DB         handlers.Pinger
	Migrations handlers.MigrationStatus

	// EnqueueTimeout bounds how long async imports wait for queue room.
	EnqueueTimeout time.Duration
}

func NewRouter(deps RouterDeps) http.Handler {
	logger := deps.Logger
	auditLogger := audit.NewLogger(logger)

	var queue handlers.JobEnqueuer
	var queueStats handlers.QueueStats
	if deps.Queue != nil {
		queue, queueStats = deps.Queue, deps.Queue
	}

	health := handlers.NewHealthChecker(deps.DB, queueStats, deps.Migrations, deps.Build.WithDefaults().Version, deps.Build.WithDefaults().GitCommit)
	staged := handlers.NewAdminStagedHandler(deps.Review, auditLogger, deps.Environment)
	imports := handlers.NewAdminImportHandler(deps.Wikidata, deps.Titles, queue, auditLogger, deps.Environment, logger)
	if deps.EnqueueTimeout > 0 {
		imports.EnqueueTimeout = deps.EnqueueTimeout
	}

	reviewBody := middleware.RequestSize(middleware.DefaultMaxBodySize)
	importBody := middleware.RequestSize(middleware.ImportMaxBodySize)

	mux := http.NewServeMux()
	mux.Handle("GET /healthz", handlers.Healthz())
	mux.Handle("GET /readyz", health.Readyz())
	mux.Handle("GET /health", health.Health())
	mux.Handle("GET /version", VersionHandler(deps.Build))
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	mux.Handle("GET /api/v1/openapi.json", OpenAPIHandler())

	mux.HandleFunc("GET /api/v1/admin/staged", staged.List)
	mux.HandleFunc("GET /api/v1/admin/staged/{id}", staged.Get)
	mux.Handle("POST /api/v1/admin/staged/{id}/approve", reviewBody(http.HandlerFunc(staged.Approve)))
	mux.Handle("POST /api/v1/admin/staged/{id}/reject", reviewBody(http.HandlerFunc(staged.Reject)))

	mux.Handle("POST /api/v1/admin/imports/wikidata", reviewBody(http.HandlerFunc(imports.ImportWikidata)))
	mux.Handle("POST /api/v1/admin/imports/titles", importBody(http.HandlerFunc(imports.ImportTitles)))

	// The metrics middleware must hand the mux the same request pointer
	// Tracing holds, so both can read the matched pattern afterwards.
	var handler http.Handler = metrics.HTTPMiddleware(mux)
	handler = middleware.Tracing(handler)
	handler = middleware.Reviewer(handler)
	handler = middleware.RequestLogging(logger)(handler)
	handler = middleware.CorrelationID(logger)(handler)
	return handler
}
