package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/stretchr/testify/assert"

	"github.com/Togather-Foundation/historia/internal/kg/wikidata"
)

func TestNewRetryPolicy(t *testing.T) {
	policy := NewRetryPolicy(0)

	if policy.Default.MaxAttempts != DefaultMaxAttempts {
		t.Errorf("Default.MaxAttempts = %d, want %d", policy.Default.MaxAttempts, DefaultMaxAttempts)
	}

	tests := []struct {
		kind                string
		expectedMaxAttempts int
		expectedBaseDelay   time.Duration
		expectedMaxDelay    time.Duration
	}{
		{
			kind:                JobKindWikidataImport,
			expectedMaxAttempts: WikidataImportMaxAttempts,
			expectedBaseDelay:   5 * time.Minute,
			expectedMaxDelay:    1 * time.Hour,
		},
		{
			kind:                JobKindReviewQueueCleanup,
			expectedMaxAttempts: CleanupMaxAttempts,
			expectedBaseDelay:   1 * time.Minute,
			expectedMaxDelay:    30 * time.Minute,
		},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			config, ok := policy.ByKind[tt.kind]
			if !ok {
				t.Fatalf("kind %s not found in ByKind map", tt.kind)
			}
			if config.MaxAttempts != tt.expectedMaxAttempts {
				t.Errorf("MaxAttempts = %d, want %d", config.MaxAttempts, tt.expectedMaxAttempts)
			}
			if config.BaseDelay != tt.expectedBaseDelay {
				t.Errorf("BaseDelay = %v, want %v", config.BaseDelay, tt.expectedBaseDelay)
			}
			if config.MaxDelay != tt.expectedMaxDelay {
				t.Errorf("MaxDelay = %v, want %v", config.MaxDelay, tt.expectedMaxDelay)
			}
		})
	}

	if got := NewRetryPolicy(7).ByKind[JobKindWikidataImport].MaxAttempts; got != 7 {
		t.Errorf("override MaxAttempts = %d, want 7", got)
	}
}

func TestRetryPolicy_NextRetry(t *testing.T) {
	policy := NewRetryPolicy(0)
	now := time.Now()

	tests := []struct {
		name          string
		kind          string
		attempt       int
		expectedDelay time.Duration
	}{
		{name: "import first attempt", kind: JobKindWikidataImport, attempt: 1, expectedDelay: 5 * time.Minute},
		{name: "import second attempt", kind: JobKindWikidataImport, attempt: 2, expectedDelay: 10 * time.Minute},
		{name: "import capped", kind: JobKindWikidataImport, attempt: 6, expectedDelay: 1 * time.Hour},
		{name: "cleanup first attempt", kind: JobKindReviewQueueCleanup, attempt: 1, expectedDelay: 1 * time.Minute},
		{name: "unknown kind uses default", kind: "other", attempt: 2, expectedDelay: 1 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := &rivertype.JobRow{Kind: tt.kind, Attempt: tt.attempt, AttemptedAt: &now}
			actualDelay := policy.NextRetry(job).Sub(now)
			if actualDelay != tt.expectedDelay {
				t.Errorf("NextRetry() delay = %v, want %v", actualDelay, tt.expectedDelay)
			}
		})
	}
}

func TestRetryPolicy_InsertOpts(t *testing.T) {
	policy := NewRetryPolicy(0)

	opts := policy.InsertOpts(JobKindWikidataImport)
	assert.Equal(t, WikidataImportMaxAttempts, opts.MaxAttempts)
	assert.Equal(t, QueueImports, opts.Queue)

	opts = policy.InsertOpts(JobKindReviewQueueCleanup)
	assert.Equal(t, CleanupMaxAttempts, opts.MaxAttempts)
	assert.Empty(t, opts.Queue)
}

func TestNewPeriodicJobs(t *testing.T) {
	if got := len(NewPeriodicJobs(nil, 0)); got != 1 {
		t.Errorf("NewPeriodicJobs() without import interval returned %d jobs, want 1", got)
	}
	if got := len(NewPeriodicJobs(nil, 6*time.Hour)); got != 2 {
		t.Errorf("NewPeriodicJobs() with import interval returned %d jobs, want 2", got)
	}
}

func TestNewClientConfig(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	config := NewClientConfig(ClientOptions{Workers: river.NewWorkers(), Logger: logger})

	assert.Equal(t, DefaultMaxAttempts, config.MaxAttempts)
	assert.Equal(t, 1, config.Queues[QueueImports].MaxWorkers)
	assert.NotNil(t, config.ErrorHandler)
	assert.NotNil(t, config.RetryPolicy)
}

func TestAlertingErrorHandler(t *testing.T) {
	var notified []error
	handler := NewAlertingErrorHandler(slog.New(slog.DiscardHandler), func(ctx context.Context, job *rivertype.JobRow, err error) {
		notified = append(notified, err)
	})
	job := &rivertype.JobRow{ID: 1, Kind: JobKindWikidataImport, Attempt: 1}

	result := handler.HandleError(context.Background(), job, errors.New("timeout"))
	assert.Nil(t, result)

	result = handler.HandleError(context.Background(), job, fmt.Errorf("page: %w", wikidata.ErrMalformedResponse))
	if assert.NotNil(t, result) {
		assert.True(t, result.SetCancelled)
	}

	assert.Nil(t, handler.HandlePanic(context.Background(), job, "boom", "trace"))
	assert.Len(t, notified, 3)
}

func TestIsFinal(t *testing.T) {
	retrying := &rivertype.JobRow{Attempt: 1, MaxAttempts: 3}
	last := &rivertype.JobRow{Attempt: 3, MaxAttempts: 3}

	assert.False(t, IsFinal(retrying, errors.New("timeout")))
	assert.True(t, IsFinal(retrying, fmt.Errorf("page: %w", wikidata.ErrMalformedResponse)))
	assert.True(t, IsFinal(last, errors.New("timeout")))
	assert.True(t, IsFinal(nil, errors.New("timeout")))
}
