package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorResponse_Body(t *testing.T) {
	tests := []struct {
		status  int
		code    string
		message string
	}{
		{http.StatusNotFound, "source_not_found", `source "warehouse" is not configured`},
		{http.StatusInternalServerError, "internal_error", "failed to get hostname"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			rec := httptest.NewRecorder()
			require.NoError(t, ErrorResponse(rec, tt.status, tt.code, tt.message))

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, map[string]string{"error": tt.code, "message": tt.message}, body)
		})
	}
}

func TestWriteJSON_StatusAndBody(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteJSON(rec, http.StatusAccepted, PingResponse{Status: "ok", Service: "sourcesense", Sources: []string{"warehouse", "local"}}))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	var got PingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "sourcesense", got.Service)
	assert.Equal(t, []string{"warehouse", "local"}, got.Sources)
}

func TestWriteJSON_UnencodableData(t *testing.T) {
	rec := httptest.NewRecorder()
	err := WriteJSON(rec, http.StatusOK, map[string]any{"ch": make(chan int)})
	assert.Error(t, err)
}

func TestWriteJSON_DoesNotEscapeHTML(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteJSON(rec, http.StatusOK, map[string]string{"view": "SELECT * FROM orders WHERE amount > 0 AND note <> ''"}))
	assert.Contains(t, rec.Body.String(), "amount > 0 AND note <> ''")
}
