package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Togather-Foundation/historia/internal/api/middleware"
	"github.com/Togather-Foundation/historia/internal/api/pagination"
	"github.com/Togather-Foundation/historia/internal/api/problem"
	"github.com/Togather-Foundation/historia/internal/audit"
	"github.com/Togather-Foundation/historia/internal/domain/history"
)

// StagedReviewer is the review workflow the staged handlers drive.
type StagedReviewer interface {
	List(ctx context.Context, filters history.StagedFilters) (history.StagedListResult, error)
	Get(ctx context.Context, id int64) (*history.StagedRecord, error)
	Approve(ctx context.Context, id int64, reviewer, notes string) (history.ApproveResult, error)
	Reject(ctx context.Context, id int64, reviewer, reason string) (*history.StagedRecord, error)
}

// AdminStagedHandler serves the staging review queue.
type AdminStagedHandler struct {
	Reviewer    StagedReviewer
	AuditLogger *audit.Logger
	Env         string
}

func NewAdminStagedHandler(reviewer StagedReviewer, auditLogger *audit.Logger, env string) *AdminStagedHandler {
	return &AdminStagedHandler{
		Reviewer:    reviewer,
		AuditLogger: auditLogger,
		Env:         env,
	}
}

type stagedItem struct {
	ID           int64      `json:"id"`
	ExternalID   string     `json:"externalId,omitempty"`
	Label        string     `json:"label"`
	Description  string     `json:"description,omitempty"`
	StartTime    time.Time  `json:"startTime"`
	EndTime      *time.Time `json:"endTime,omitempty"`
	CountryLabel string     `json:"countryLabel,omitempty"`
	CountryCode  string     `json:"countryCode,omitempty"`
	CountryID    string     `json:"countryId,omitempty"`
	Latitude     *float64   `json:"latitude,omitempty"`
	Longitude    *float64   `json:"longitude,omitempty"`
	Geometry     string     `json:"geometry,omitempty"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"createdAt"`
	ReviewedAt   *time.Time `json:"reviewedAt,omitempty"`
	ReviewedBy   *string    `json:"reviewedBy,omitempty"`
	ReviewNotes  *string    `json:"reviewNotes,omitempty"`
}

type canonicalItem struct {
	ID           string `json:"id"`
	ULID         string `json:"ulid"`
	ExternalID   string `json:"externalId,omitempty"`
	EventType    string `json:"eventType"`
	PromotedFrom *int64 `json:"promotedFrom,omitempty"`
}

type stagedListResponse struct {
	Items      []stagedItem `json:"items"`
	NextCursor string       `json:"next_cursor,omitempty"`
	Total      int64        `json:"total"`
}

type approveResponse struct {
	Staged    stagedItem     `json:"staged"`
	Canonical *canonicalItem `json:"canonical,omitempty"`
}

type approveRequest struct {
	Notes string `json:"notes"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func toStagedItem(rec history.StagedRecord) stagedItem {
	return stagedItem{
		ID:           rec.ID,
		ExternalID:   rec.ExternalID,
		Label:        rec.Label,
		Description:  rec.Description,
		StartTime:    rec.StartTime,
		EndTime:      rec.EndTime,
		CountryLabel: rec.CountryLabel,
		CountryCode:  rec.CountryCode,
		CountryID:    rec.CountryID,
		Latitude:     rec.Latitude,
		Longitude:    rec.Longitude,
		Geometry:     rec.Geometry,
		Status:       string(rec.Status),
		CreatedAt:    rec.CreatedAt,
		ReviewedAt:   rec.ReviewedAt,
		ReviewedBy:   rec.ReviewedBy,
		ReviewNotes:  rec.ReviewNotes,
	}
}

// List handles GET /api/v1/admin/staged.
// Query parameters: status (default pending), limit (1-100, default 50), cursor.
func (h *AdminStagedHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Reviewer == nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", nil, h.env())
		return
	}

	query := r.URL.Query()
	filters := history.StagedFilters{Status: history.ReviewStatus(query.Get("status"))}
	if filters.Status != "" && !filters.Status.Valid() {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid status",
			fmt.Errorf("unknown status %q", filters.Status), h.Env,
			problem.WithDetail("status must be one of pending, approved, rejected"))
		return
	}

	// Out of range limits fall back to the default.
	if raw := query.Get("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil && limit >= 1 && limit <= history.MaxListLimit {
			filters.Limit = limit
		}
	}

	if raw := query.Get("cursor"); raw != "" {
		after, err := pagination.DecodeStagedCursor(raw)
		if err != nil {
			problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid cursor", err, h.Env)
			return
		}
		filters.After = after
	}

	result, err := h.Reviewer.List(r.Context(), filters)
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
		return
	}

	items := make([]stagedItem, 0, len(result.Records))
	for _, rec := range result.Records {
		items = append(items, toStagedItem(rec))
	}
	resp := stagedListResponse{Items: items, Total: result.Total}
	if result.NextCursor > 0 {
		resp.NextCursor = pagination.EncodeStagedCursor(result.NextCursor)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/v1/admin/staged/{id}.
func (h *AdminStagedHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Reviewer == nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", nil, h.env())
		return
	}

	id, err := pathID(r)
	if err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid id", err, h.Env)
		return
	}

	rec, err := h.Reviewer.Get(r.Context(), id)
	if err != nil {
		h.writeReviewError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStagedItem(*rec))
}

// Approve handles POST /api/v1/admin/staged/{id}/approve. The row is promoted
// into the canonical dataset unless its identifier is already canonical.
func (h *AdminStagedHandler) Approve(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Reviewer == nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", nil, h.env())
		return
	}

	id, err := pathID(r)
	if err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid id", err, h.Env)
		return
	}

	var req approveRequest
	if !decodeBody(w, r, &req, h.Env) {
		return
	}

	reviewer := middleware.ReviewerFromContext(r.Context())
	result, err := h.Reviewer.Approve(r.Context(), id, reviewer, req.Notes)
	if err != nil {
		h.audit(r, reviewer, "staged.approve", id, "failure", map[string]string{"error": err.Error()})
		h.writeReviewError(w, r, err)
		return
	}

	resp := approveResponse{Staged: toStagedItem(*result.Staged)}
	details := map[string]string{"promoted": "false"}
	if c := result.Canonical; c != nil {
		resp.Canonical = &canonicalItem{
			ID:           c.ID,
			ULID:         c.ULID,
			ExternalID:   c.ExternalID,
			EventType:    c.EventType,
			PromotedFrom: c.PromotedFrom,
		}
		details["promoted"] = "true"
		details["canonical_ulid"] = c.ULID
	}
	h.audit(r, reviewer, "staged.approve", id, "success", details)
	writeJSON(w, http.StatusOK, resp)
}

// Reject handles POST /api/v1/admin/staged/{id}/reject.
func (h *AdminStagedHandler) Reject(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Reviewer == nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", nil, h.env())
		return
	}

	id, err := pathID(r)
	if err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid id", err, h.Env)
		return
	}

	var req rejectRequest
	if !decodeBody(w, r, &req, h.Env) {
		return
	}

	reviewer := middleware.ReviewerFromContext(r.Context())
	rec, err := h.Reviewer.Reject(r.Context(), id, reviewer, req.Reason)
	if err != nil {
		h.audit(r, reviewer, "staged.reject", id, "failure", map[string]string{"error": err.Error()})
		h.writeReviewError(w, r, err)
		return
	}

	h.audit(r, reviewer, "staged.reject", id, "success", map[string]string{"reason": req.Reason})
	writeJSON(w, http.StatusOK, toStagedItem(*rec))
}

func (h *AdminStagedHandler) writeReviewError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, history.ErrNotFound):
		problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "Staged record not found", err, h.Env)
	case errors.Is(err, history.ErrAlreadyReviewed):
		problem.Write(w, r, http.StatusConflict, problem.TypeConflict, "Staged record already reviewed", err, h.Env)
	default:
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
	}
}

func (h *AdminStagedHandler) audit(r *http.Request, reviewer, action string, id int64, status string, details map[string]string) {
	if h.AuditLogger == nil {
		return
	}
	h.AuditLogger.LogFromRequest(r, reviewer, action, "staged_event", strconv.FormatInt(id, 10), status, details)
}

func (h *AdminStagedHandler) env() string {
	if h == nil {
		return ""
	}
	return h.Env
}
