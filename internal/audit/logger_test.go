package audit

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeAudit(t *testing.T, buf *bytes.Buffer) (map[string]json.RawMessage, Entry) {
	t.Helper()
	var wrapper map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(buf.Bytes(), &wrapper), "output: %s", buf.String())

	raw, ok := wrapper["audit"]
	require.True(t, ok, "no audit field in %s", buf.String())

	var entry Entry
	require.NoError(t, json.Unmarshal(raw, &entry))
	return wrapper, entry
}

func TestLogger_Log(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(zerolog.New(&buf))

	logger.Log(Entry{
		Action:       "staged.approve",
		Reviewer:     "ana",
		ResourceType: "staged_event",
		ResourceID:   "42",
		Status:       "success",
		Details:      map[string]string{"external_id": "Q193689"},
	})

	wrapper, entry := decodeAudit(t, &buf)
	assert.Equal(t, "staged.approve", entry.Action)
	assert.Equal(t, "ana", entry.Reviewer)
	assert.Equal(t, "42", entry.ResourceID)
	assert.Equal(t, "Q193689", entry.Details["external_id"])
	assert.False(t, entry.Timestamp.IsZero())
	assert.JSONEq(t, `"info"`, string(wrapper["level"]))
	assert.JSONEq(t, `"audit"`, string(wrapper["component"]))
}

func TestLogger_FailureLoggedAtWarn(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(zerolog.New(&buf))

	logger.Log(Entry{Action: "staged.reject", Status: "failure"})

	wrapper, entry := decodeAudit(t, &buf)
	assert.JSONEq(t, `"warn"`, string(wrapper["level"]))
	assert.Equal(t, "anonymous", entry.Reviewer)
}

func TestLogger_NilIsNoop(t *testing.T) {
	var logger *Logger
	assert.NotPanics(t, func() { logger.Log(Entry{Action: "x"}) })
}

func TestLogFromRequest(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(zerolog.New(&buf))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/staged/7/reject", nil)
	req.RemoteAddr = "10.0.0.9:5123"
	logger.LogFromRequest(req, "ben", "staged.reject", "staged_event", "7", "success", nil)

	_, entry := decodeAudit(t, &buf)
	assert.Equal(t, "ben", entry.Reviewer)
	assert.Equal(t, "10.0.0.9", entry.IPAddress)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{name: "forwarded for first hop", headers: map[string]string{"X-Forwarded-For": "203.0.113.1, 10.0.0.1"}, want: "203.0.113.1"},
		{name: "real ip", headers: map[string]string{"X-Real-IP": "203.0.113.7"}, want: "203.0.113.7"},
		{name: "forwarded preferred", headers: map[string]string{"X-Forwarded-For": "203.0.113.1", "X-Real-IP": "203.0.113.7"}, want: "203.0.113.1"},
		{name: "remote addr", remote: "192.0.2.4:8080", want: "192.0.2.4"},
		{name: "remote addr without port", remote: "192.0.2.4", want: "192.0.2.4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if tt.remote != "" {
				req.RemoteAddr = tt.remote
			}
			assert.Equal(t, tt.want, clientIP(req))
		})
	}
}
