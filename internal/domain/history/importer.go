package history

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Togather-Foundation/historia/internal/domain/ids"
	"github.com/Togather-Foundation/historia/internal/kg/wikidata"
	"github.com/Togather-Foundation/historia/internal/metrics"
	"github.com/Togather-Foundation/historia/internal/telemetry"
)

const (
	DefaultPageSize      = 500
	DefaultPageDelay     = time.Second
	DefaultBatchSize     = 50
	DefaultCanonicalType = "historical_event"
)

var tracer = telemetry.GetTracer("github.com/Togather-Foundation/historia/internal/domain/history")

// Selector runs one SPARQL SELECT query.
type Selector interface {
	Select(ctx context.Context, query string) (*wikidata.Response, error)
}

// Target selects the table a paged run writes to.
type Target string

const (
	TargetStaging   Target = "staging"
	TargetCanonical Target = "canonical"
)

func ParseTarget(s string) (Target, error) {
	switch Target(strings.ToLower(strings.TrimSpace(s))) {
	case "", TargetStaging:
		return TargetStaging, nil
	case TargetCanonical:
		return TargetCanonical, nil
	}
	return "", fmt.Errorf("unknown import target %q", s)
}

// RunState is the state of a paged run.
type RunState string

const (
	StateFetching   RunState = "fetching"
	StateProcessing RunState = "processing"
	StateAdvancing  RunState = "advancing"
	StateDone       RunState = "done"
	StateFailed     RunState = "failed"
)

type ImporterConfig struct {
	Query         string
	PageSize      int
	PageDelay     time.Duration
	MinYear       int
	Language      string
	BatchSize     int
	CanonicalType string
}

func (c ImporterConfig) withDefaults() ImporterConfig {
	if strings.TrimSpace(c.Query) == "" {
		c.Query = wikidata.DefaultEventsQuery
	}
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.PageDelay < 0 {
		c.PageDelay = 0
	}
	if c.Language == "" {
		c.Language = "en"
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.CanonicalType == "" {
		c.CanonicalType = DefaultCanonicalType
	}
	return c
}

// RunResult summarizes a paged run. LastOffset is the offset of the last
// page that was committed, or -1 when none was.
type RunResult struct {
	Target     Target        `json:"target"`
	State      RunState      `json:"state"`
	Pages      int           `json:"pages"`
	Fetched    int           `json:"fetched"`
	Admitted   int           `json:"admitted"`
	Duplicates int           `json:"duplicates"`
	Rejected   int           `json:"rejected"`
	Inserted   int           `json:"inserted"`
	LastOffset int           `json:"last_offset"`
	Duration   time.Duration `json:"duration"`
}

// IdentifierFetchResult is the merged output of FetchByIdentifiers.
type IdentifierFetchResult struct {
	Records       []ExternalRecord
	Requested     int
	Batches       int
	FailedBatches int
	Rejected      int
}

// StageResult reports what StageRecords persisted.
type StageResult struct {
	Admitted   int `json:"admitted"`
	Duplicates int `json:"duplicates"`
	Inserted   int `json:"inserted"`
}

// Importer drives Wikidata result pages through normalization and
// deduplication into storage. Pages are processed strictly in order.
type Importer struct {
	selector Selector
	repo     Repository
	cfg      ImporterConfig
	logger   zerolog.Logger
	sleep    func(ctx context.Context, d time.Duration) bool
}

func NewImporter(selector Selector, repo Repository, cfg ImporterConfig, logger zerolog.Logger) *Importer {
	return &Importer{
		selector: selector,
		repo:     repo,
		cfg:      cfg.withDefaults(),
		logger:   logger.With().Str("component", "importer").Logger(),
		sleep:    sleepCtx,
	}
}

// Run pages through the configured query from offset 0 until an empty page.
//
// A failed request ends the run in StateFailed with a *FetchError; pages
// committed before it are kept. Cancellation ends the run in StateDone with
// a nil error.
func (i *Importer) Run(ctx context.Context, target Target) (RunResult, error) {
	started := time.Now()
	result := RunResult{Target: target, State: StateFetching, LastOffset: -1}

	ctx, span := tracer.Start(ctx, "history.import.run")
	span.SetAttributes(
		attribute.String("import.target", string(target)),
		attribute.Int("import.page_size", i.cfg.PageSize),
	)
	defer span.End()

	finish := func(state RunState, err error) (RunResult, error) {
		result.State = state
		result.Duration = time.Since(started)
		metrics.ImportRunsTotal.WithLabelValues(string(target), string(state)).Inc()
		metrics.ImportRunDuration.WithLabelValues(string(target)).Observe(result.Duration.Seconds())

		span.SetAttributes(
			attribute.Int("import.pages", result.Pages),
			attribute.Int("import.inserted", result.Inserted),
		)
		event := i.logger.Info()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			event = i.logger.Error().Err(err)
		}
		event.
			Str("target", string(target)).
			Str("state", string(state)).
			Int("pages", result.Pages).
			Int("fetched", result.Fetched).
			Int("admitted", result.Admitted).
			Int("duplicates", result.Duplicates).
			Int("rejected", result.Rejected).
			Int("inserted", result.Inserted).
			Dur("duration", result.Duration).
			Msg("import run finished")
		return result, err
	}

	canonical, staged, err := i.repo.KnownIdentifiers(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return finish(StateDone, nil)
		}
		return finish(StateFailed, fmt.Errorf("load known identifiers: %w", err))
	}
	index := NewDedupIndex(canonical, staged)

	for offset := 0; ; offset += i.cfg.PageSize {
		result.State = StateFetching
		done, err := i.runPage(ctx, target, offset, index, &result)
		if err != nil {
			if ctx.Err() != nil {
				return finish(StateDone, nil)
			}
			return finish(StateFailed, err)
		}
		if done {
			return finish(StateDone, nil)
		}

		result.State = StateAdvancing
		if !i.sleep(ctx, i.cfg.PageDelay) {
			return finish(StateDone, nil)
		}
	}
}

// runPage fetches, processes and commits the page at offset. It reports
// done when the page had no bindings.
func (i *Importer) runPage(ctx context.Context, target Target, offset int, index *DedupIndex, result *RunResult) (bool, error) {
	ctx, span := tracer.Start(ctx, "history.import.page")
	span.SetAttributes(attribute.Int("import.offset", offset))
	defer span.End()

	query := wikidata.PageQuery(i.cfg.Query, wikidata.PageParams{
		Limit:    i.cfg.PageSize,
		Offset:   offset,
		MinYear:  i.cfg.MinYear,
		Language: i.cfg.Language,
	})
	resp, err := i.selector.Select(ctx, query)
	if err != nil {
		span.RecordError(err)
		return false, &FetchError{Offset: offset, Err: err}
	}
	result.Pages++
	metrics.ImportPagesTotal.WithLabelValues(string(target)).Inc()

	bindings := resp.Results.Bindings
	span.SetAttributes(attribute.Int("import.bindings", len(bindings)))
	if len(bindings) == 0 {
		return true, nil
	}

	result.State = StateProcessing
	batch, counts := i.admit(bindings, index, NormalizeOptions{MinYear: i.cfg.MinYear})
	result.Fetched += len(bindings)
	result.Admitted += counts.admitted
	result.Duplicates += counts.duplicates
	result.Rejected += counts.rejected
	counts.observe(target)

	inserted, err := i.flush(ctx, target, batch)
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("store page at offset %d: %w", offset, err)
	}
	result.Inserted += inserted
	result.LastOffset = offset
	metrics.ImportRecordsTotal.WithLabelValues(string(target), "inserted").Add(float64(inserted))

	i.logger.Debug().
		Int("offset", offset).
		Int("bindings", len(bindings)).
		Int("admitted", counts.admitted).
		Int("inserted", inserted).
		Msg("page committed")
	return false, nil
}

type admitCounts struct {
	admitted   int
	duplicates int
	rejected   int
}

func (c admitCounts) observe(target Target) {
	metrics.ImportRecordsTotal.WithLabelValues(string(target), "admitted").Add(float64(c.admitted))
	metrics.ImportRecordsTotal.WithLabelValues(string(target), "duplicate").Add(float64(c.duplicates))
	metrics.ImportRecordsTotal.WithLabelValues(string(target), "rejected").Add(float64(c.rejected))
}

func (i *Importer) admit(bindings []wikidata.Binding, index *DedupIndex, opts NormalizeOptions) ([]ExternalRecord, admitCounts) {
	var counts admitCounts
	batch := make([]ExternalRecord, 0, len(bindings))
	for _, b := range bindings {
		switch o := Normalize(b, opts).(type) {
		case Rejected:
			counts.rejected++
			metrics.ImportRejectionsTotal.WithLabelValues(string(o.Reason)).Inc()
			i.logger.Debug().
				Str("external_id", o.ExternalID).
				Str("reason", string(o.Reason)).
				Str("detail", o.Detail).
				Msg("record rejected")
		case Admitted:
			if !index.ShouldAdmit(o.Record.ExternalID) {
				counts.duplicates++
				continue
			}
			counts.admitted++
			batch = append(batch, o.Record)
		}
	}
	return batch, counts
}

func (i *Importer) flush(ctx context.Context, target Target, batch []ExternalRecord) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	if target == TargetCanonical {
		records := make([]CanonicalRecord, 0, len(batch))
		for _, rec := range batch {
			ulid, err := ids.NewULID()
			if err != nil {
				return 0, fmt.Errorf("generate ulid: %w", err)
			}
			records = append(records, CanonicalRecord{ID: ids.NewUUID(), ULID: ulid, ExternalRecord: rec, EventType: i.cfg.CanonicalType})
		}
		return i.repo.InsertCanonical(ctx, records)
	}
	return i.repo.InsertStaged(ctx, batch)
}

// FetchByIdentifiers fetches the given Wikidata items in batches, one request
// per batch. Items are normalized without the year filter and without the
// dedup index. A batch that fails is logged and skipped.
func (i *Importer) FetchByIdentifiers(ctx context.Context, identifiers []string) (IdentifierFetchResult, error) {
	ctx, span := tracer.Start(ctx, "history.import.identifiers")
	defer span.End()

	cleaned := cleanIdentifiers(identifiers)
	result := IdentifierFetchResult{Requested: len(cleaned)}
	span.SetAttributes(attribute.Int("import.identifiers", len(cleaned)))

	seen := make(map[string]bool, len(cleaned))
	for start := 0; start < len(cleaned); start += i.cfg.BatchSize {
		if start > 0 && !i.sleep(ctx, i.cfg.PageDelay) {
			break
		}
		end := min(start+i.cfg.BatchSize, len(cleaned))
		batch := cleaned[start:end]
		result.Batches++

		resp, err := i.selector.Select(ctx, wikidata.ValuesQuery(batch, i.cfg.Language))
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			result.FailedBatches++
			metrics.IdentifierBatchFailuresTotal.Inc()
			i.logger.Warn().Err(err).
				Int("batch_start", start).
				Int("batch_size", len(batch)).
				Msg("identifier batch failed, skipping")
			continue
		}

		for _, b := range resp.Results.Bindings {
			switch o := Normalize(b, NormalizeOptions{}).(type) {
			case Rejected:
				result.Rejected++
			case Admitted:
				key := dedupKey(o.Record.ExternalID)
				if seen[key] {
					continue
				}
				seen[key] = true
				result.Records = append(result.Records, o.Record)
			}
		}
	}

	return result, nil
}

// StageRecords persists records fetched on demand into the staging table,
// skipping identifiers already known to storage.
func (i *Importer) StageRecords(ctx context.Context, records []ExternalRecord) (StageResult, error) {
	var result StageResult
	if len(records) == 0 {
		return result, nil
	}

	canonical, staged, err := i.repo.KnownIdentifiers(ctx)
	if err != nil {
		return result, fmt.Errorf("load known identifiers: %w", err)
	}
	index := NewDedupIndex(canonical, staged)

	batch := make([]ExternalRecord, 0, len(records))
	for _, rec := range records {
		if !index.ShouldAdmit(rec.ExternalID) {
			result.Duplicates++
			continue
		}
		batch = append(batch, rec)
	}
	result.Admitted = len(batch)

	inserted, err := i.flush(ctx, TargetStaging, batch)
	if err != nil {
		return result, fmt.Errorf("stage records: %w", err)
	}
	result.Inserted = inserted
	metrics.ImportRecordsTotal.WithLabelValues(string(TargetStaging), "inserted").Add(float64(inserted))
	return result, nil
}

func cleanIdentifiers(identifiers []string) []string {
	seen := make(map[string]bool, len(identifiers))
	out := make([]string, 0, len(identifiers))
	for _, id := range identifiers {
		id = strings.ToUpper(strings.TrimSpace(wikidata.EntityID(id)))
		if !wikidata.IsItemID(id) || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// sleepCtx waits for d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
