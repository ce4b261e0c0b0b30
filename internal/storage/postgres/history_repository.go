package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Togather-Foundation/historia/internal/domain/history"
	"github.com/Togather-Foundation/historia/internal/domain/ids"
	"github.com/Togather-Foundation/historia/internal/metrics"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Compile-time interface assertion.
var _ history.Repository = (*HistoryRepository)(nil)

// HistoryRepository stores staged and canonical events. Uniqueness of
// external identifiers is enforced by partial unique indexes on
// lower(external_id), so concurrent writers cannot both insert the same id.
type HistoryRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func NewHistoryRepository(pool *pgxpool.Pool) *HistoryRepository {
	return &HistoryRepository{pool: pool}
}

const stagedColumns = `id, external_id, label, description, start_time, end_time,
       country_label, country_code, country_id, latitude, longitude, geometry_wkt,
       status, created_at, reviewed_at, reviewed_by, review_notes`

func (r *HistoryRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

func (r *HistoryRepository) WithTx(ctx context.Context, fn func(context.Context, history.Repository) error) error {
	if r.tx != nil {
		return fn(ctx, r)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	wrapped := &HistoryRepository{pool: r.pool, tx: tx}
	if err := fn(ctx, wrapped); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *HistoryRepository) KnownIdentifiers(ctx context.Context) (canonical []string, staged []string, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery("known_identifiers", start, err) }()

	rows, err := r.queryer().Query(ctx, `
SELECT 'canonical', external_id FROM canonical_events WHERE external_id IS NOT NULL
UNION ALL
SELECT 'staged', external_id FROM staged_events WHERE external_id IS NOT NULL
`)
	if err != nil {
		return nil, nil, fmt.Errorf("known identifiers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var source, id string
		if err = rows.Scan(&source, &id); err != nil {
			return nil, nil, fmt.Errorf("scan identifier: %w", err)
		}
		if source == "canonical" {
			canonical = append(canonical, id)
		} else {
			staged = append(staged, id)
		}
	}
	if err = rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate identifiers: %w", err)
	}
	return canonical, staged, nil
}

func (r *HistoryRepository) InsertStaged(ctx context.Context, records []history.ExternalRecord) (inserted int, err error) {
	if len(records) == 0 {
		return 0, nil
	}
	start := time.Now()
	defer func() { metrics.RecordQuery("insert_staged", start, err) }()

	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(`
INSERT INTO staged_events (external_id, label, description, start_time, end_time,
                           country_label, country_code, country_id, latitude, longitude, geometry_wkt)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT DO NOTHING
`,
			nullableText(rec.ExternalID), rec.Label, rec.Description, rec.StartTime, rec.EndTime,
			rec.CountryLabel, rec.CountryCode, rec.CountryID, rec.Latitude, rec.Longitude, rec.Geometry,
		)
	}
	inserted, err = execBatch(ctx, r.queryer(), batch)
	if err != nil {
		return 0, fmt.Errorf("insert staged events: %w", err)
	}
	return inserted, nil
}

func (r *HistoryRepository) InsertCanonical(ctx context.Context, records []history.CanonicalRecord) (inserted int, err error) {
	if len(records) == 0 {
		return 0, nil
	}
	start := time.Now()
	defer func() { metrics.RecordQuery("insert_canonical", start, err) }()

	batch := &pgx.Batch{}
	for _, rec := range records {
		id := rec.ID
		if id == "" {
			id = ids.NewUUID()
		}
		batch.Queue(`
INSERT INTO canonical_events (id, ulid, external_id, label, description, start_time, end_time,
                              country_label, country_code, country_id, latitude, longitude, geometry_wkt,
                              event_type, promoted_from)
VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
ON CONFLICT DO NOTHING
`,
			id, rec.ULID, nullableText(rec.ExternalID), rec.Label, rec.Description, rec.StartTime, rec.EndTime,
			rec.CountryLabel, rec.CountryCode, rec.CountryID, rec.Latitude, rec.Longitude, rec.Geometry,
			rec.EventType, rec.PromotedFrom,
		)
	}
	inserted, err = execBatch(ctx, r.queryer(), batch)
	if err != nil {
		return 0, fmt.Errorf("insert canonical events: %w", err)
	}
	return inserted, nil
}

func (r *HistoryRepository) GetStaged(ctx context.Context, id int64) (rec *history.StagedRecord, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery("get_staged", start, err) }()

	row := r.queryer().QueryRow(ctx, `SELECT `+stagedColumns+` FROM staged_events WHERE id = $1`, id)
	rec, err = scanStaged(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, history.ErrNotFound
		}
		return nil, fmt.Errorf("get staged event %d: %w", id, err)
	}
	return rec, nil
}

// LockStaged reads a staged row with FOR UPDATE. Outside a transaction the
// lock is released as soon as the statement completes.
func (r *HistoryRepository) LockStaged(ctx context.Context, id int64) (rec *history.StagedRecord, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery("lock_staged", start, err) }()

	row := r.queryer().QueryRow(ctx, `SELECT `+stagedColumns+` FROM staged_events WHERE id = $1 FOR UPDATE`, id)
	rec, err = scanStaged(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, history.ErrNotFound
		}
		return nil, fmt.Errorf("lock staged event %d: %w", id, err)
	}
	return rec, nil
}

func (r *HistoryRepository) ListStaged(ctx context.Context, filters history.StagedFilters) (result history.StagedListResult, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery("list_staged", start, err) }()

	filters = history.NormalizeFilters(filters)
	q := r.queryer()

	if err = q.QueryRow(ctx, `SELECT count(*) FROM staged_events WHERE status = $1`, string(filters.Status)).Scan(&result.Total); err != nil {
		return result, fmt.Errorf("count staged events: %w", err)
	}

	rows, err := q.Query(ctx, `
SELECT `+stagedColumns+`
  FROM staged_events
 WHERE status = $1
   AND id > $2
 ORDER BY id
 LIMIT $3
`, string(filters.Status), filters.After, filters.Limit+1)
	if err != nil {
		return result, fmt.Errorf("list staged events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec *history.StagedRecord
		rec, err = scanStaged(rows)
		if err != nil {
			return result, fmt.Errorf("scan staged event: %w", err)
		}
		result.Records = append(result.Records, *rec)
	}
	if err = rows.Err(); err != nil {
		return result, fmt.Errorf("iterate staged events: %w", err)
	}

	if len(result.Records) > filters.Limit {
		result.Records = result.Records[:filters.Limit]
		result.NextCursor = result.Records[len(result.Records)-1].ID
	}
	return result, nil
}

func (r *HistoryRepository) CanonicalExists(ctx context.Context, externalID string) (exists bool, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery("canonical_exists", start, err) }()

	err = r.queryer().QueryRow(ctx, `
SELECT EXISTS (SELECT 1 FROM canonical_events WHERE lower(external_id) = lower($1))
`, strings.TrimSpace(externalID)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("canonical exists: %w", err)
	}
	return exists, nil
}

// MarkReviewed applies a transition only to a pending row. A row that exists
// but is no longer pending yields history.ErrAlreadyReviewed.
func (r *HistoryRepository) MarkReviewed(ctx context.Context, update history.ReviewUpdate) (rec *history.StagedRecord, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery("mark_reviewed", start, err) }()

	q := r.queryer()
	row := q.QueryRow(ctx, `
UPDATE staged_events
   SET status = $2,
       reviewed_at = $3,
       reviewed_by = $4,
       review_notes = $5
 WHERE id = $1
   AND status = 'pending'
RETURNING `+stagedColumns,
		update.ID, string(update.Status), update.ReviewedAt, update.ReviewedBy, update.Notes,
	)
	rec, err = scanStaged(row)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("mark staged event %d reviewed: %w", update.ID, err)
	}

	var exists bool
	if err = q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM staged_events WHERE id = $1)`, update.ID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check staged event %d: %w", update.ID, err)
	}
	if !exists {
		return nil, history.ErrNotFound
	}
	return nil, history.ErrAlreadyReviewed
}

func (r *HistoryRepository) DeleteRejectedBefore(ctx context.Context, cutoff time.Time) (deleted int64, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery("delete_rejected", start, err) }()

	tag, err := r.queryer().Exec(ctx, `
DELETE FROM staged_events
 WHERE status = 'rejected'
   AND reviewed_at < $1
`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete rejected staged events: %w", err)
	}
	return tag.RowsAffected(), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStaged(row rowScanner) (*history.StagedRecord, error) {
	var (
		rec        history.StagedRecord
		externalID *string
		status     string
	)
	if err := row.Scan(
		&rec.ID,
		&externalID,
		&rec.Label,
		&rec.Description,
		&rec.StartTime,
		&rec.EndTime,
		&rec.CountryLabel,
		&rec.CountryCode,
		&rec.CountryID,
		&rec.Latitude,
		&rec.Longitude,
		&rec.Geometry,
		&status,
		&rec.CreatedAt,
		&rec.ReviewedAt,
		&rec.ReviewedBy,
		&rec.ReviewNotes,
	); err != nil {
		return nil, err
	}
	rec.ExternalID = textValue(externalID)
	rec.Status = history.ReviewStatus(status)
	rec.StartTime = rec.StartTime.UTC()
	return &rec, nil
}

// execBatch runs every queued statement and sums the affected rows.
func execBatch(ctx context.Context, q queryer, batch *pgx.Batch) (int, error) {
	results := q.SendBatch(ctx, batch)
	total := 0
	for i := 0; i < batch.Len(); i++ {
		tag, err := results.Exec()
		if err != nil {
			_ = results.Close()
			return total, err
		}
		total += int(tag.RowsAffected())
	}
	if err := results.Close(); err != nil {
		return total, err
	}
	return total, nil
}
