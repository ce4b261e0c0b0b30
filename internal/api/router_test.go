package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Togather-Foundation/historia/internal/api/middleware"
	"github.com/Togather-Foundation/historia/internal/domain/history"
	"github.com/Togather-Foundation/historia/internal/jobs"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubReviewer struct {
	approvedBy string
}

func (s *stubReviewer) List(ctx context.Context, filters history.StagedFilters) (history.StagedListResult, error) {
	return history.StagedListResult{}, nil
}

func (s *stubReviewer) Get(ctx context.Context, id int64) (*history.StagedRecord, error) {
	if id == 1 {
		return &history.StagedRecord{ID: 1, Status: history.StatusPending}, nil
	}
	return nil, history.ErrNotFound
}

func (s *stubReviewer) Approve(ctx context.Context, id int64, reviewer, notes string) (history.ApproveResult, error) {
	s.approvedBy = reviewer
	return history.ApproveResult{Staged: &history.StagedRecord{ID: id, Status: history.StatusApproved}}, nil
}

func (s *stubReviewer) Reject(ctx context.Context, id int64, reviewer, reason string) (*history.StagedRecord, error) {
	return nil, history.ErrAlreadyReviewed
}

type stubPinger struct{}

func (stubPinger) Ping(ctx context.Context) error { return nil }

func newTestRouter(reviewer *stubReviewer) http.Handler {
	return NewRouter(RouterDeps{
		Environment: "test",
		Build:       BuildInfo{Version: "1.0.0"},
		Logger:      zerolog.Nop(),
		Review:      reviewer,
		Queue:       jobs.NewQueue(4, zerolog.Nop()),
		DB:          stubPinger{},
		Migrations: func(ctx context.Context) (uint, bool, error) {
			return 1, false, nil
		},
	})
}

func TestRouter_Routes(t *testing.T) {
	router := newTestRouter(&stubReviewer{})

	tests := []struct {
		method string
		path   string
		body   string
		want   int
	}{
		{method: http.MethodGet, path: "/healthz", want: http.StatusOK},
		{method: http.MethodGet, path: "/readyz", want: http.StatusOK},
		{method: http.MethodGet, path: "/health", want: http.StatusOK},
		{method: http.MethodGet, path: "/version", want: http.StatusOK},
		{method: http.MethodGet, path: "/metrics", want: http.StatusOK},
		{method: http.MethodGet, path: "/api/v1/openapi.json", want: http.StatusOK},
		{method: http.MethodGet, path: "/api/v1/admin/staged", want: http.StatusOK},
		{method: http.MethodGet, path: "/api/v1/admin/staged/1", want: http.StatusOK},
		{method: http.MethodGet, path: "/api/v1/admin/staged/2", want: http.StatusNotFound},
		{method: http.MethodPost, path: "/api/v1/admin/staged/1/approve", want: http.StatusOK},
		{method: http.MethodPost, path: "/api/v1/admin/staged/1/reject", want: http.StatusConflict},
		{method: http.MethodDelete, path: "/api/v1/admin/staged/1", want: http.StatusMethodNotAllowed},
		{method: http.MethodGet, path: "/api/v1/admin/imports/wikidata", want: http.StatusMethodNotAllowed},
		{method: http.MethodPost, path: "/api/v1/admin/imports/wikidata", want: http.StatusInternalServerError},
		{method: http.MethodGet, path: "/api/v1/events", want: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body)))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestRouter_SetsRequestIDAndReviewer(t *testing.T) {
	reviewer := &stubReviewer{}
	router := newTestRouter(reviewer)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/staged/1/approve", nil)
	req.Header.Set(middleware.ReviewerHeader, "carol")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
	assert.Equal(t, "carol", reviewer.approvedBy)
}

func TestRouter_LimitsReviewBody(t *testing.T) {
	router := newTestRouter(&stubReviewer{})

	body := `{"notes":"` + strings.Repeat("n", int(middleware.DefaultMaxBodySize)) + `"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/admin/staged/1/approve", strings.NewReader(body)))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestRouter_AsyncImportQueuesUntilFull(t *testing.T) {
	q := jobs.NewQueue(1, zerolog.Nop())
	router := NewRouter(RouterDeps{
		Logger: zerolog.Nop(),
		Wikidata: runnerFunc(func(ctx context.Context, target history.Target) (history.RunResult, error) {
			return history.RunResult{Target: target}, nil
		}),
		Queue:          q,
		EnqueueTimeout: 50 * time.Millisecond,
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/admin/imports/wikidata", strings.NewReader(`{"async":true}`)))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, q.Len())

	// The queue is full; the next request gives up after the enqueue timeout.
	start := time.Now()
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/admin/imports/wikidata", strings.NewReader(`{"async":true}`)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

type runnerFunc func(ctx context.Context, target history.Target) (history.RunResult, error)

func (f runnerFunc) Run(ctx context.Context, target history.Target) (history.RunResult, error) {
	return f(ctx, target)
}
