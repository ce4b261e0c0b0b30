package handlers

import (
	"context"

	"github.com/Togather-Foundation/historia/internal/domain/history"
	"github.com/Togather-Foundation/historia/internal/jobs"
	"github.com/stretchr/testify/mock"
)

type MockStagedReviewer struct {
	mock.Mock
}

func (m *MockStagedReviewer) List(ctx context.Context, filters history.StagedFilters) (history.StagedListResult, error) {
	args := m.Called(ctx, filters)
	return args.Get(0).(history.StagedListResult), args.Error(1)
}

func (m *MockStagedReviewer) Get(ctx context.Context, id int64) (*history.StagedRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*history.StagedRecord), args.Error(1)
}

func (m *MockStagedReviewer) Approve(ctx context.Context, id int64, reviewer, notes string) (history.ApproveResult, error) {
	args := m.Called(ctx, id, reviewer, notes)
	return args.Get(0).(history.ApproveResult), args.Error(1)
}

func (m *MockStagedReviewer) Reject(ctx context.Context, id int64, reviewer, reason string) (*history.StagedRecord, error) {
	args := m.Called(ctx, id, reviewer, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*history.StagedRecord), args.Error(1)
}

type MockWikidataRunner struct {
	mock.Mock
}

func (m *MockWikidataRunner) Run(ctx context.Context, target history.Target) (history.RunResult, error) {
	args := m.Called(ctx, target)
	return args.Get(0).(history.RunResult), args.Error(1)
}

type MockTitleImporter struct {
	mock.Mock
}

func (m *MockTitleImporter) Import(ctx context.Context, req history.TitleImportRequest) (history.TitleImportResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(history.TitleImportResult), args.Error(1)
}

// MockEnqueuer records jobs instead of running them.
type MockEnqueuer struct {
	mock.Mock
	jobs []jobs.Job
}

func (m *MockEnqueuer) Enqueue(ctx context.Context, name string, job jobs.Job) error {
	args := m.Called(ctx, name)
	if args.Error(0) == nil {
		m.jobs = append(m.jobs, job)
	}
	return args.Error(0)
}

type MockPinger struct {
	mock.Mock
}

func (m *MockPinger) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type fakeQueueStats struct {
	depth, capacity int
}

func (f fakeQueueStats) Len() int { return f.depth }
func (f fakeQueueStats) Cap() int { return f.capacity }
