package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Togather-Foundation/historia/internal/kg/wikidata"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

// AlertFunc is invoked when a job fails or panics.
type AlertFunc func(ctx context.Context, job *rivertype.JobRow, err error)

// AlertingErrorHandler logs and forwards job failures for alerting. Errors
// that a retry cannot fix cancel the job instead of scheduling another attempt.
type AlertingErrorHandler struct {
	Logger *slog.Logger
	Notify AlertFunc
}

// NewAlertingErrorHandler builds an ErrorHandler that logs and forwards errors.
func NewAlertingErrorHandler(logger *slog.Logger, notify AlertFunc) *AlertingErrorHandler {
	return &AlertingErrorHandler{
		Logger: logger,
		Notify: notify,
	}
}

func (h *AlertingErrorHandler) HandleError(ctx context.Context, job *rivertype.JobRow, err error) *river.ErrorHandlerResult {
	permanent := isPermanent(err)
	if h.Logger != nil {
		h.Logger.Error("job failed",
			"job_id", job.ID,
			"kind", job.Kind,
			"attempt", job.Attempt,
			"max_attempts", job.MaxAttempts,
			"permanent", permanent,
			"error", err,
		)
	}
	if h.Notify != nil {
		h.Notify(ctx, job, err)
	}
	if permanent {
		return &river.ErrorHandlerResult{SetCancelled: true}
	}
	return nil
}

func (h *AlertingErrorHandler) HandlePanic(ctx context.Context, job *rivertype.JobRow, panicVal any, trace string) *river.ErrorHandlerResult {
	panicErr := fmt.Errorf("panic: %v", panicVal)
	if h.Logger != nil {
		h.Logger.Error("job panicked", "job_id", job.ID, "kind", job.Kind, "attempt", job.Attempt, "error", panicErr, "trace", trace)
	}
	if h.Notify != nil {
		h.Notify(ctx, job, panicErr)
	}
	return nil
}

// IsFinal reports whether River will not run the job again after err.
func IsFinal(job *rivertype.JobRow, err error) bool {
	if job == nil {
		return true
	}
	return isPermanent(err) || job.Attempt >= job.MaxAttempts
}

// isPermanent reports errors caused by the query itself: the endpoint
// answered, but with a body the parser cannot read.
func isPermanent(err error) bool {
	return errors.Is(err, wikidata.ErrMalformedResponse)
}
