package history

import (
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("staged record not found")

var ErrAlreadyReviewed = errors.New("staged record already reviewed")

// ReviewStatus is the review envelope state of a staged record. Pending is
// the only state a transition may start from.
type ReviewStatus string

const (
	StatusPending  ReviewStatus = "pending"
	StatusApproved ReviewStatus = "approved"
	StatusRejected ReviewStatus = "rejected"
)

func (s ReviewStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// ExternalRecord is a normalized event as read from a source. Latitude and
// Longitude are either both set or both nil.
type ExternalRecord struct {
	ExternalID   string
	Label        string
	Description  string
	StartTime    time.Time
	EndTime      *time.Time
	CountryLabel string
	CountryCode  string
	CountryID    string
	Latitude     *float64
	Longitude    *float64
	Geometry     string
}

type StagedRecord struct {
	ID int64
	ExternalRecord
	Status      ReviewStatus
	CreatedAt   time.Time
	ReviewedAt  *time.Time
	ReviewedBy  *string
	ReviewNotes *string
}

type CanonicalRecord struct {
	ID   string
	ULID string
	ExternalRecord
	EventType    string
	PromotedFrom *int64
	CreatedAt    time.Time
}

// FetchError reports a failed page request of a paged run. Pages committed
// before Offset are kept.
type FetchError struct {
	Offset int
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch page at offset %d: %v", e.Offset, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
