package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Togather-Foundation/historia/internal/api/middleware"
	"github.com/Togather-Foundation/historia/internal/api/problem"
	"github.com/Togather-Foundation/historia/internal/audit"
	"github.com/Togather-Foundation/historia/internal/domain/history"
	"github.com/Togather-Foundation/historia/internal/jobs"
	"github.com/Togather-Foundation/historia/internal/kg/wikipedia"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// DefaultEnqueueTimeout bounds how long an async request waits for room in
// the job queue before answering 503.
const DefaultEnqueueTimeout = 5 * time.Second

// WikidataRunner runs one paged Wikidata import.
type WikidataRunner interface {
	Run(ctx context.Context, target history.Target) (history.RunResult, error)
}

// TitleImportRunner stages the items behind a list of Wikipedia titles.
type TitleImportRunner interface {
	Import(ctx context.Context, req history.TitleImportRequest) (history.TitleImportResult, error)
}

// JobEnqueuer accepts background work. Enqueue blocks while the queue is full.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, name string, job jobs.Job) error
}

// AdminImportHandler triggers imports, either inline or on the job queue.
type AdminImportHandler struct {
	Wikidata       WikidataRunner
	Titles         TitleImportRunner
	Queue          JobEnqueuer
	AuditLogger    *audit.Logger
	Env            string
	EnqueueTimeout time.Duration

	validate *validator.Validate
	logger   zerolog.Logger
}

func NewAdminImportHandler(wikidata WikidataRunner, titles TitleImportRunner, queue JobEnqueuer, auditLogger *audit.Logger, env string, logger zerolog.Logger) *AdminImportHandler {
	return &AdminImportHandler{
		Wikidata:       wikidata,
		Titles:         titles,
		Queue:          queue,
		AuditLogger:    auditLogger,
		Env:            env,
		EnqueueTimeout: DefaultEnqueueTimeout,
		validate:       validator.New(validator.WithRequiredStructEnabled()),
		logger:         logger.With().Str("component", "import_handler").Logger(),
	}
}

type wikidataImportRequest struct {
	Async  bool   `json:"async"`
	Target string `json:"target" validate:"omitempty,oneof=staging canonical"`
}

// titleImportRequest takes either explicit titles or a page and section.
type titleImportRequest struct {
	Page    string   `json:"page" validate:"required_without=Titles,excluded_with=Titles,max=512"`
	Section string   `json:"section" validate:"required_with=Page,excluded_with=Titles,max=512"`
	Titles  []string `json:"titles" validate:"required_without=Page,max=500,dive,required,max=512"`
	Async   bool     `json:"async"`
}

type acceptedResponse struct {
	Status string `json:"status"`
	Job    string `json:"job"`
}

// ImportWikidata handles POST /api/v1/admin/imports/wikidata.
func (h *AdminImportHandler) ImportWikidata(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Wikidata == nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", nil, "")
		return
	}

	var req wikidataImportRequest
	if !decodeBody(w, r, &req, h.Env) {
		return
	}
	if !h.validRequest(w, r, &req) {
		return
	}
	target, err := history.ParseTarget(req.Target)
	if err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid target", err, h.Env)
		return
	}

	reviewer := middleware.ReviewerFromContext(r.Context())
	details := map[string]string{"target": string(target)}
	jobName := "wikidata_import:" + string(target)

	if req.Async {
		job := func(ctx context.Context) error {
			_, err := h.Wikidata.Run(ctx, target)
			return err
		}
		if !h.enqueue(w, r, jobName, job) {
			h.audit(r, reviewer, "import.wikidata", string(target), "failure", details)
			return
		}
		details["mode"] = "async"
		h.audit(r, reviewer, "import.wikidata", string(target), "success", details)
		writeJSON(w, http.StatusAccepted, acceptedResponse{Status: "queued", Job: jobName})
		return
	}

	details["mode"] = "sync"
	result, err := h.Wikidata.Run(r.Context(), target)
	if err != nil {
		details["error"] = err.Error()
		h.audit(r, reviewer, "import.wikidata", string(target), "failure", details)
		// Pages committed before the failure are kept; report how far the run got.
		problem.Write(w, r, http.StatusBadGateway, problem.TypeUpstream, "Wikidata import failed", err, h.Env,
			problem.WithErrors(map[string]interface{}{"result": result}))
		return
	}
	h.audit(r, reviewer, "import.wikidata", string(target), "success", details)
	writeJSON(w, http.StatusOK, result)
}

// ImportTitles handles POST /api/v1/admin/imports/titles.
func (h *AdminImportHandler) ImportTitles(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Titles == nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", nil, "")
		return
	}

	var req titleImportRequest
	if !decodeBody(w, r, &req, h.Env) {
		return
	}
	if !h.validRequest(w, r, &req) {
		return
	}

	importReq := history.TitleImportRequest{Page: req.Page, Section: req.Section, Titles: req.Titles}
	reviewer := middleware.ReviewerFromContext(r.Context())
	resource := req.Page
	if resource == "" {
		resource = fmt.Sprintf("%d titles", len(req.Titles))
	}

	if req.Async {
		job := func(ctx context.Context) error {
			_, err := h.Titles.Import(ctx, importReq)
			return err
		}
		if !h.enqueue(w, r, "title_import", job) {
			h.audit(r, reviewer, "import.titles", resource, "failure", nil)
			return
		}
		h.audit(r, reviewer, "import.titles", resource, "success", map[string]string{"mode": "async"})
		writeJSON(w, http.StatusAccepted, acceptedResponse{Status: "queued", Job: "title_import"})
		return
	}

	result, err := h.Titles.Import(r.Context(), importReq)
	if err != nil {
		h.audit(r, reviewer, "import.titles", resource, "failure", map[string]string{"error": err.Error()})
		switch {
		case errors.Is(err, history.ErrNoTitles):
			problem.Write(w, r, http.StatusUnprocessableEntity, problem.TypeValidation, "No titles to import", err, h.Env)
		case errors.Is(err, wikipedia.ErrPageNotFound), errors.Is(err, wikipedia.ErrSectionNotFound):
			problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "Wikipedia page or section not found", err, h.Env)
		default:
			problem.Write(w, r, http.StatusBadGateway, problem.TypeUpstream, "Title import failed", err, h.Env)
		}
		return
	}
	h.audit(r, reviewer, "import.titles", resource, "success", map[string]string{"mode": "sync"})
	writeJSON(w, http.StatusOK, result)
}

func (h *AdminImportHandler) validRequest(w http.ResponseWriter, r *http.Request, req any) bool {
	validate := h.validate
	if validate == nil {
		validate = validator.New(validator.WithRequiredStructEnabled())
	}
	err := validate.Struct(req)
	if err == nil {
		return true
	}

	fields := map[string]interface{}{}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
	}
	problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid import request", err, h.Env,
		problem.WithErrors(fields))
	return false
}

// enqueue hands job to the queue, waiting at most EnqueueTimeout for room.
// Jobs run on the worker's context, not the request's.
func (h *AdminImportHandler) enqueue(w http.ResponseWriter, r *http.Request, name string, job jobs.Job) bool {
	if h.Queue == nil {
		problem.Write(w, r, http.StatusServiceUnavailable, problem.TypeUnavailable, "Job queue unavailable", nil, h.Env)
		return false
	}

	timeout := h.EnqueueTimeout
	if timeout <= 0 {
		timeout = DefaultEnqueueTimeout
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	if err := h.Queue.Enqueue(ctx, name, job); err != nil {
		problem.Write(w, r, http.StatusServiceUnavailable, problem.TypeUnavailable, "Job queue full or stopped", err, h.Env)
		return false
	}
	h.logger.Info().Str("job", name).Msg("import queued")
	return true
}

func (h *AdminImportHandler) audit(r *http.Request, reviewer, action, resourceID, status string, details map[string]string) {
	if h.AuditLogger == nil {
		return
	}
	h.AuditLogger.LogFromRequest(r, reviewer, action, "import", resourceID, status, details)
}
