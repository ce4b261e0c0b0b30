package cmd

import (
	"context"
	"fmt"

	"github.com/Togather-Foundation/historia/internal/config"
	"github.com/Togather-Foundation/historia/internal/domain/history"
	"github.com/Togather-Foundation/historia/internal/kg/wikidata"
	"github.com/Togather-Foundation/historia/internal/kg/wikipedia"
	"github.com/Togather-Foundation/historia/internal/storage/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// app wires the pipeline services shared by serve and the import commands.
type app struct {
	pool     *pgxpool.Pool
	repo     *postgres.Repository
	importer *history.Importer
	titles   *history.TitleImporter
	review   *history.ReviewService
}

func newApp(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*app, error) {
	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	repo, err := postgres.NewRepository(pool)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("repository init failed: %w", err)
	}

	sparql := wikidata.NewClient(cfg.Wikidata.Endpoint,
		wikidata.WithUserAgent(cfg.Wikidata.UserAgent),
		wikidata.WithRateLimit(cfg.Wikidata.RateLimit),
		wikidata.WithTimeout(cfg.Wikidata.Timeout),
	)
	encyclopedia := wikipedia.NewClient(cfg.Wikipedia.Endpoint,
		wikipedia.WithUserAgent(cfg.Wikipedia.UserAgent),
		wikipedia.WithRateLimit(cfg.Wikipedia.RateLimit),
		wikipedia.WithCacheTTL(cfg.Wikipedia.CacheTTL),
	)

	importer := history.NewImporter(sparql, repo.History(), history.ImporterConfig{
		Query:         cfg.Import.Query,
		PageSize:      cfg.Import.PageSize,
		PageDelay:     cfg.Import.PageDelay,
		MinYear:       cfg.Import.MinYear,
		Language:      cfg.Import.Language,
		BatchSize:     cfg.Import.BatchSize,
		CanonicalType: cfg.Import.CanonicalType,
	}, logger)

	return &app{
		pool:     pool,
		repo:     repo,
		importer: importer,
		titles:   history.NewTitleImporter(encyclopedia, importer, logger),
		review:   history.NewReviewService(repo.History(), cfg.Import.CanonicalType, logger),
	}, nil
}

func (a *app) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}
