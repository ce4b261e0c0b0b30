// Package email sends operator alerts when background jobs give up.
package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"github.com/Togather-Foundation/historia/internal/config"
	"github.com/Togather-Foundation/historia/internal/jobs"
	"github.com/resend/resend-go/v2"
	"github.com/riverqueue/river/rivertype"
	"github.com/rs/zerolog"
)

const sendTimeout = 10 * time.Second

var jobFailedTemplate = template.Must(template.New("job_failed").Parse(`<!DOCTYPE html>
<html>
<body>
<h2>Historia job failed: {{.Kind}}</h2>
<table>
<tr><td>Environment</td><td>{{.Environment}}</td></tr>
<tr><td>Job</td><td>{{.ID}}</td></tr>
<tr><td>Queue</td><td>{{.Queue}}</td></tr>
<tr><td>Attempt</td><td>{{.Attempt}} of {{.MaxAttempts}}</td></tr>
<tr><td>Failed at</td><td>{{.FailedAt}}</td></tr>
</table>
<pre>{{.Error}}</pre>
</body>
</html>
`))

type jobFailedData struct {
	Environment string
	ID          int64
	Kind        string
	Queue       string
	Attempt     int
	MaxAttempts int
	FailedAt    string
	Error       string
}

// Alerter emails the configured recipients when a job exhausts its
// attempts or fails with an error a retry cannot fix. Earlier attempts are
// left to the logs.
type Alerter struct {
	config      config.AlertsConfig
	environment string
	client      *resend.Client
	logger      zerolog.Logger
	now         func() time.Time
}

func NewAlerter(cfg config.AlertsConfig, environment string, logger zerolog.Logger) *Alerter {
	a := &Alerter{
		config:      cfg,
		environment: environment,
		logger:      logger.With().Str("component", "alerts").Logger(),
		now:         time.Now,
	}
	if cfg.Enabled {
		a.client = resend.NewClient(cfg.ResendAPIKey)
	}
	return a
}

// JobFailed has the shape of jobs.AlertFunc. Send failures are logged;
// they never affect the job.
func (a *Alerter) JobFailed(ctx context.Context, job *rivertype.JobRow, err error) {
	if job == nil || !jobs.IsFinal(job, err) {
		return
	}

	subject := fmt.Sprintf("[historia/%s] %s job %d failed", a.environment, job.Kind, job.ID)
	if !a.config.Enabled {
		a.logger.Warn().
			Int64("job_id", job.ID).
			Str("kind", job.Kind).
			Err(err).
			Msg("alert email disabled, skipping job failure alert")
		return
	}

	body, renderErr := a.render(job, err)
	if renderErr != nil {
		a.logger.Error().Err(renderErr).Msg("render job failure alert")
		return
	}

	// River's context may already be cancelled when a job times out.
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
	defer cancel()
	if sendErr := a.sendViaResend(sendCtx, subject, body); sendErr != nil {
		a.logger.Error().Err(sendErr).Int64("job_id", job.ID).Msg("send job failure alert")
	}
}

func (a *Alerter) render(job *rivertype.JobRow, err error) (string, error) {
	data := jobFailedData{
		Environment: a.environment,
		ID:          job.ID,
		Kind:        job.Kind,
		Queue:       job.Queue,
		Attempt:     job.Attempt,
		MaxAttempts: job.MaxAttempts,
		FailedAt:    a.now().UTC().Format(time.RFC3339),
	}
	if err != nil {
		data.Error = err.Error()
	}

	var buf bytes.Buffer
	if execErr := jobFailedTemplate.Execute(&buf, data); execErr != nil {
		return "", execErr
	}
	return buf.String(), nil
}
