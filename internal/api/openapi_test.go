package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAPIHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	OpenAPIHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/openapi.json", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var doc struct {
		OpenAPI string                     `json:"openapi"`
		Paths   map[string]json.RawMessage `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "3.1.0", doc.OpenAPI)

	for _, path := range []string{
		"/api/v1/admin/staged",
		"/api/v1/admin/staged/{id}",
		"/api/v1/admin/staged/{id}/approve",
		"/api/v1/admin/staged/{id}/reject",
		"/api/v1/admin/imports/wikidata",
		"/api/v1/admin/imports/titles",
	} {
		assert.Contains(t, doc.Paths, path)
	}
}
