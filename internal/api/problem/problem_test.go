package problem

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) ProblemDetails {
	t.Helper()
	var body ProblemDetails
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestWrite_DevIncludesDetail(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/staged/7", nil)
	rec := httptest.NewRecorder()

	Write(rec, req, http.StatusNotFound, TypeNotFound, "Staged record not found", errors.New("staged record not found"), "development")

	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, TypeNotFound, body.Type)
	assert.Equal(t, "staged record not found", body.Detail)
	assert.Equal(t, "/api/v1/admin/staged/7", body.Instance)
}

func TestWrite_ProdSanitizesDetail(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/imports/wikidata", nil)
	rec := httptest.NewRecorder()

	Write(rec, req, http.StatusBadGateway, TypeUpstream, "Import failed", errors.New("dial tcp: connection refused"), "production")

	body := decode(t, rec)
	assert.Equal(t, http.StatusText(http.StatusBadGateway), body.Detail)
}

func TestWrite_OptionsOverrideDefaults(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/imports/wikidata", nil)
	rec := httptest.NewRecorder()

	Write(rec, req, http.StatusBadGateway, TypeUpstream, "Import failed", errors.New("boom"), "production",
		WithDetail("page fetch failed"),
		WithInstance("/runs/1"),
		WithErrors(map[string]interface{}{"pages": 3}),
	)

	body := decode(t, rec)
	assert.Equal(t, "page fetch failed", body.Detail)
	assert.Equal(t, "/runs/1", body.Instance)
	assert.EqualValues(t, 3, body.Errors["pages"])
}

func TestWrite_LogsByStatusClass(t *testing.T) {
	tests := []struct {
		name   string
		status int
		level  string
	}{
		{name: "client error", status: http.StatusConflict, level: `"level":"warn"`},
		{name: "server error", status: http.StatusInternalServerError, level: `"level":"error"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := zerolog.New(&buf)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/staged/1/approve", nil)
			req = req.WithContext(logger.WithContext(req.Context()))

			Write(httptest.NewRecorder(), req, tt.status, TypeConflict, "title", errors.New("boom"), "test")

			assert.Contains(t, buf.String(), tt.level)
			assert.Contains(t, buf.String(), `"path":"/api/v1/admin/staged/1/approve"`)
		})
	}
}

func TestWriteProblem_WritesStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteProblem(rec, ProblemDetails{Type: TypeUnavailable, Title: "Queue full", Status: http.StatusServiceUnavailable})

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "Queue full", decode(t, rec).Title)
}
