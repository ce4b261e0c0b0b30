package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Togather-Foundation/historia/internal/domain/history"
	"github.com/riverqueue/river"
)

const DefaultRejectedRetention = 90 * 24 * time.Hour

// ImportRunner runs one paged import.
type ImportRunner interface {
	Run(ctx context.Context, target history.Target) (history.RunResult, error)
}

// RejectedCleaner removes rejected staged rows older than a retention window.
type RejectedCleaner interface {
	CleanupRejected(ctx context.Context, retention time.Duration) (int64, error)
}

// WikidataImportArgs defines a scheduled paged import.
type WikidataImportArgs struct {
	Target string `json:"target"`
}

func (WikidataImportArgs) Kind() string { return JobKindWikidataImport }

// WikidataImportWorker runs a paged Wikidata import. A failed run returns an
// error so River retries it; rows committed by earlier pages stay, and the
// retry skips them through the dedup index.
type WikidataImportWorker struct {
	river.WorkerDefaults[WikidataImportArgs]
	Importer ImportRunner
	Logger   *slog.Logger
}

func (WikidataImportWorker) Kind() string { return JobKindWikidataImport }

func (w WikidataImportWorker) Work(ctx context.Context, job *river.Job[WikidataImportArgs]) error {
	if w.Importer == nil {
		return fmt.Errorf("importer not configured")
	}
	if job == nil {
		return fmt.Errorf("wikidata import job missing")
	}

	target, err := history.ParseTarget(job.Args.Target)
	if err != nil {
		// A bad target will not improve on retry.
		return river.JobCancel(err)
	}

	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("starting scheduled wikidata import", "target", target, "attempt", job.Attempt)

	result, err := w.Importer.Run(ctx, target)
	if err != nil {
		return fmt.Errorf("wikidata import: %w", err)
	}

	logger.Info("scheduled wikidata import completed",
		"target", target,
		"pages", result.Pages,
		"inserted", result.Inserted,
		"duration_seconds", result.Duration.Seconds(),
	)
	return nil
}

// ReviewQueueCleanupArgs defines the job that deletes stale rejected rows.
type ReviewQueueCleanupArgs struct{}

func (ReviewQueueCleanupArgs) Kind() string { return JobKindReviewQueueCleanup }

// ReviewQueueCleanupWorker deletes rejected staged rows whose review is older
// than Retention. Pending and approved rows are never touched.
type ReviewQueueCleanupWorker struct {
	river.WorkerDefaults[ReviewQueueCleanupArgs]
	Cleaner   RejectedCleaner
	Retention time.Duration
	Logger    *slog.Logger
}

func (ReviewQueueCleanupWorker) Kind() string { return JobKindReviewQueueCleanup }

func (w ReviewQueueCleanupWorker) Work(ctx context.Context, job *river.Job[ReviewQueueCleanupArgs]) error {
	if w.Cleaner == nil {
		return fmt.Errorf("review service not configured")
	}

	retention := w.Retention
	if retention <= 0 {
		retention = DefaultRejectedRetention
	}

	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}

	start := time.Now()
	deleted, err := w.Cleaner.CleanupRejected(ctx, retention)
	if err != nil {
		logger.Error("review queue cleanup failed", "error", err)
		return fmt.Errorf("cleanup rejected: %w", err)
	}

	logger.Info("review queue cleanup completed",
		"deleted_count", deleted,
		"retention", retention.String(),
		"duration_seconds", time.Since(start).Seconds(),
	)
	return nil
}

// WorkerDeps are the services the River workers call into.
type WorkerDeps struct {
	Importer          ImportRunner
	Cleaner           RejectedCleaner
	RejectedRetention time.Duration
	Logger            *slog.Logger
}

func NewWorkers(deps WorkerDeps) *river.Workers {
	workers := river.NewWorkers()
	river.AddWorker[WikidataImportArgs](workers, WikidataImportWorker{
		Importer: deps.Importer,
		Logger:   deps.Logger,
	})
	river.AddWorker[ReviewQueueCleanupArgs](workers, ReviewQueueCleanupWorker{
		Cleaner:   deps.Cleaner,
		Retention: deps.RejectedRetention,
		Logger:    deps.Logger,
	})
	return workers
}
