package history

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// memRepo is an in-memory Repository enforcing the same case-insensitive
// identifier uniqueness as the Postgres schema.
type memRepo struct {
	mu        sync.Mutex
	staged    []StagedRecord
	canonical []CanonicalRecord
	nextID    int64

	knownErr  error
	insertErr error
	inserts   int
}

func newMemRepo() *memRepo {
	return &memRepo{nextID: 1}
}

func (m *memRepo) KnownIdentifiers(ctx context.Context) ([]string, []string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.knownErr != nil {
		return nil, nil, m.knownErr
	}
	var canonical, staged []string
	for _, c := range m.canonical {
		if c.ExternalID != "" {
			canonical = append(canonical, c.ExternalID)
		}
	}
	for _, s := range m.staged {
		if s.ExternalID != "" {
			staged = append(staged, s.ExternalID)
		}
	}
	return canonical, staged, nil
}

func (m *memRepo) InsertStaged(ctx context.Context, records []ExternalRecord) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return 0, m.insertErr
	}
	m.inserts++
	inserted := 0
	for _, rec := range records {
		if rec.ExternalID != "" && m.stagedIndex(rec.ExternalID) >= 0 {
			continue
		}
		m.staged = append(m.staged, StagedRecord{
			ID:             m.nextID,
			ExternalRecord: rec,
			Status:         StatusPending,
			CreatedAt:      time.Now().UTC(),
		})
		m.nextID++
		inserted++
	}
	return inserted, nil
}

func (m *memRepo) InsertCanonical(ctx context.Context, records []CanonicalRecord) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return 0, m.insertErr
	}
	m.inserts++
	inserted := 0
	for _, rec := range records {
		if rec.ExternalID != "" && m.canonicalExists(rec.ExternalID) {
			continue
		}
		rec.CreatedAt = time.Now().UTC()
		m.canonical = append(m.canonical, rec)
		inserted++
	}
	return inserted, nil
}

func (m *memRepo) GetStaged(ctx context.Context, id int64) (*StagedRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.staged {
		if s.ID == id {
			cp := s
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memRepo) ListStaged(ctx context.Context, filters StagedFilters) (StagedListResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result StagedListResult
	var matching []StagedRecord
	for _, s := range m.staged {
		if s.Status == filters.Status {
			matching = append(matching, s)
		}
	}
	sort.Slice(matching, func(i, j int) bool { return matching[i].ID < matching[j].ID })
	result.Total = int64(len(matching))
	for _, s := range matching {
		if s.ID <= filters.After {
			continue
		}
		if len(result.Records) == filters.Limit {
			result.NextCursor = result.Records[len(result.Records)-1].ID
			break
		}
		result.Records = append(result.Records, s)
	}
	return result, nil
}

func (m *memRepo) LockStaged(ctx context.Context, id int64) (*StagedRecord, error) {
	return m.GetStaged(ctx, id)
}

func (m *memRepo) CanonicalExists(ctx context.Context, externalID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.canonicalExists(externalID), nil
}

func (m *memRepo) MarkReviewed(ctx context.Context, update ReviewUpdate) (*StagedRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.staged {
		if m.staged[i].ID != update.ID {
			continue
		}
		if m.staged[i].Status != StatusPending {
			return nil, ErrAlreadyReviewed
		}
		reviewedAt := update.ReviewedAt
		reviewer := update.ReviewedBy
		notes := update.Notes
		m.staged[i].Status = update.Status
		m.staged[i].ReviewedAt = &reviewedAt
		m.staged[i].ReviewedBy = &reviewer
		m.staged[i].ReviewNotes = &notes
		cp := m.staged[i]
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (m *memRepo) DeleteRejectedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.staged[:0]
	var deleted int64
	for _, s := range m.staged {
		if s.Status == StatusRejected && s.ReviewedAt != nil && s.ReviewedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, s)
	}
	m.staged = kept
	return deleted, nil
}

// WithTx snapshots state and restores it when fn fails.
func (m *memRepo) WithTx(ctx context.Context, fn func(ctx context.Context, tx Repository) error) error {
	m.mu.Lock()
	staged := append([]StagedRecord(nil), m.staged...)
	canonical := append([]CanonicalRecord(nil), m.canonical...)
	nextID := m.nextID
	m.mu.Unlock()

	if err := fn(ctx, m); err != nil {
		m.mu.Lock()
		m.staged, m.canonical, m.nextID = staged, canonical, nextID
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *memRepo) stagedIndex(id string) int {
	for i, s := range m.staged {
		if strings.EqualFold(s.ExternalID, id) {
			return i
		}
	}
	return -1
}

func (m *memRepo) canonicalExists(id string) bool {
	for _, c := range m.canonical {
		if strings.EqualFold(c.ExternalID, id) {
			return true
		}
	}
	return false
}

func (m *memRepo) stagedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.staged)
}

func (m *memRepo) canonicalCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.canonical)
}
