package history

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Togather-Foundation/historia/internal/domain/ids"
	"github.com/Togather-Foundation/historia/internal/metrics"
)

const (
	DefaultRejectReason  = "rejected by reviewer"
	NoteAlreadyCanonical = "already present in canonical dataset"
)

// ReviewService applies the one-way Pending -> Approved|Rejected transition.
type ReviewService struct {
	repo          Repository
	canonicalType string
	logger        zerolog.Logger
	now           func() time.Time
}

func NewReviewService(repo Repository, canonicalType string, logger zerolog.Logger) *ReviewService {
	if canonicalType == "" {
		canonicalType = DefaultCanonicalType
	}
	return &ReviewService{
		repo:          repo,
		canonicalType: canonicalType,
		logger:        logger.With().Str("component", "review").Logger(),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// ApproveResult carries the reviewed row and, when one was created, the
// canonical record it was promoted to.
type ApproveResult struct {
	Staged    *StagedRecord
	Canonical *CanonicalRecord
}

func (s *ReviewService) List(ctx context.Context, filters StagedFilters) (StagedListResult, error) {
	filters = NormalizeFilters(filters)
	if !filters.Status.Valid() {
		return StagedListResult{}, fmt.Errorf("invalid status %q", filters.Status)
	}
	return s.repo.ListStaged(ctx, filters)
}

func (s *ReviewService) Get(ctx context.Context, id int64) (*StagedRecord, error) {
	return s.repo.GetStaged(ctx, id)
}

// Approve marks a pending row approved and promotes it into the canonical
// dataset in the same transaction. When the external identifier is already
// canonical, no row is created and the collision is noted on the review.
func (s *ReviewService) Approve(ctx context.Context, id int64, reviewer, notes string) (ApproveResult, error) {
	var result ApproveResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		staged, err := lockPending(ctx, tx, id)
		if err != nil {
			return err
		}

		exists := false
		if staged.ExternalID != "" {
			exists, err = tx.CanonicalExists(ctx, staged.ExternalID)
			if err != nil {
				return fmt.Errorf("check canonical: %w", err)
			}
		}

		if exists {
			notes = joinNotes(notes, NoteAlreadyCanonical)
		} else {
			ulid, err := ids.NewULID()
			if err != nil {
				return fmt.Errorf("generate ulid: %w", err)
			}
			promotedFrom := staged.ID
			canonical := CanonicalRecord{
				ID:             ids.NewUUID(),
				ULID:           ulid,
				ExternalRecord: staged.ExternalRecord,
				EventType:      s.canonicalType,
				PromotedFrom:   &promotedFrom,
			}
			inserted, err := tx.InsertCanonical(ctx, []CanonicalRecord{canonical})
			if err != nil {
				return fmt.Errorf("promote to canonical: %w", err)
			}
			if inserted == 1 {
				result.Canonical = &canonical
			} else {
				// lost a race with a concurrent import of the same identifier
				notes = joinNotes(notes, NoteAlreadyCanonical)
			}
		}

		updated, err := tx.MarkReviewed(ctx, ReviewUpdate{
			ID:         staged.ID,
			Status:     StatusApproved,
			ReviewedBy: reviewer,
			Notes:      notes,
			ReviewedAt: s.now(),
		})
		if err != nil {
			return fmt.Errorf("mark approved: %w", err)
		}
		result.Staged = updated
		return nil
	})
	if err != nil {
		return ApproveResult{}, err
	}

	promoted := result.Canonical != nil
	metrics.ReviewTransitionsTotal.WithLabelValues(string(StatusApproved), fmt.Sprint(promoted)).Inc()
	s.logger.Info().
		Int64("staged_id", id).
		Str("reviewer", reviewer).
		Bool("promoted", promoted).
		Msg("staged record approved")
	return result, nil
}

// Reject marks a pending row rejected with reason, or DefaultRejectReason
// when reason is blank.
func (s *ReviewService) Reject(ctx context.Context, id int64, reviewer, reason string) (*StagedRecord, error) {
	if strings.TrimSpace(reason) == "" {
		reason = DefaultRejectReason
	}

	var updated *StagedRecord
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		staged, err := lockPending(ctx, tx, id)
		if err != nil {
			return err
		}
		updated, err = tx.MarkReviewed(ctx, ReviewUpdate{
			ID:         staged.ID,
			Status:     StatusRejected,
			ReviewedBy: reviewer,
			Notes:      reason,
			ReviewedAt: s.now(),
		})
		if err != nil {
			return fmt.Errorf("mark rejected: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.ReviewTransitionsTotal.WithLabelValues(string(StatusRejected), "false").Inc()
	s.logger.Info().
		Int64("staged_id", id).
		Str("reviewer", reviewer).
		Msg("staged record rejected")
	return updated, nil
}

// CleanupRejected deletes rejected rows reviewed before now-retention.
func (s *ReviewService) CleanupRejected(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := s.now().Add(-retention)
	deleted, err := s.repo.DeleteRejectedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete rejected: %w", err)
	}
	metrics.StagedRecordsDeleted.Add(float64(deleted))
	return deleted, nil
}

func lockPending(ctx context.Context, tx Repository, id int64) (*StagedRecord, error) {
	staged, err := tx.LockStaged(ctx, id)
	if err != nil {
		return nil, err
	}
	if staged.Status != StatusPending {
		return nil, fmt.Errorf("%w: status is %s", ErrAlreadyReviewed, staged.Status)
	}
	return staged, nil
}

func joinNotes(notes, extra string) string {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return extra
	}
	return notes + "; " + extra
}
