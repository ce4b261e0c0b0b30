package history

import (
	"context"
	"time"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 100
)

type StagedFilters struct {
	Status ReviewStatus
	// After is an exclusive keyset cursor on ID; 0 starts from the beginning.
	After int64
	Limit int
}

type StagedListResult struct {
	Records    []StagedRecord
	NextCursor int64
	Total      int64
}

// ReviewUpdate is the one-way transition written by MarkReviewed.
type ReviewUpdate struct {
	ID         int64
	Status     ReviewStatus
	ReviewedBy string
	Notes      string
	ReviewedAt time.Time
}

// Repository is the storage contract of the staging pipeline. Inserts skip
// rows whose external identifier already exists (case-insensitive) and
// report how many rows were written.
type Repository interface {
	KnownIdentifiers(ctx context.Context) (canonical []string, staged []string, err error)
	InsertStaged(ctx context.Context, records []ExternalRecord) (int, error)
	InsertCanonical(ctx context.Context, records []CanonicalRecord) (int, error)

	GetStaged(ctx context.Context, id int64) (*StagedRecord, error)
	ListStaged(ctx context.Context, filters StagedFilters) (StagedListResult, error)
	LockStaged(ctx context.Context, id int64) (*StagedRecord, error)
	CanonicalExists(ctx context.Context, externalID string) (bool, error)
	MarkReviewed(ctx context.Context, update ReviewUpdate) (*StagedRecord, error)
	DeleteRejectedBefore(ctx context.Context, cutoff time.Time) (int64, error)

	WithTx(ctx context.Context, fn func(ctx context.Context, tx Repository) error) error
}

// NormalizeFilters applies list defaults and clamps the limit.
func NormalizeFilters(f StagedFilters) StagedFilters {
	if f.Status == "" {
		f.Status = StatusPending
	}
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.After < 0 {
		f.After = 0
	}
	return f
}
