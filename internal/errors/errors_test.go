package errors

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	base := InvalidInput("snapshot precedes invoice")
	wrapped := fmt.Errorf("build features: %w", base)

	assert.True(t, HasCode(wrapped, CodeInvalidInput))
	assert.False(t, HasCode(wrapped, CodeExternalLibrary))
	assert.False(t, HasCode(fmt.Errorf("plain"), CodeInvalidInput))
	assert.False(t, HasCode(nil, CodeInvalidInput))

	nested := ExternalLibraryWrap(InvalidInput("inner"), "outer")
	assert.True(t, HasCode(nested, CodeExternalLibrary))
	assert.True(t, HasCode(nested, CodeInvalidInput))
}

func TestStatusCodes(t *testing.T) {
	tests := []struct {
		err  *AppError
		want int
	}{
		{InvalidInput("x"), http.StatusBadRequest},
		{BadRequest("x"), http.StatusBadRequest},
		{NotFound("x"), http.StatusNotFound},
		{RateLimit("x"), http.StatusTooManyRequests},
		{ExternalLibraryWrap(fmt.Errorf("boom"), "x"), http.StatusBadGateway},
		{ServiceUnavailable("x"), http.StatusServiceUnavailable},
		{Internal("x"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.err.Code), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.StatusCode)
		})
	}
}

func TestWriteError_PlainErrorBecomesInternal(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, slog.Default(), fmt.Errorf("disk on fire"), "req-1")

	require.Equal(t, http.StatusInternalServerError, w.Code)

	var resp struct {
		Success bool `json:"success"`
		Error   struct {
			Code      string `json:"code"`
			RequestID string `json:"request_id"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.False(t, resp.Success)
	assert.Equal(t, string(CodeInternal), resp.Error.Code)
	assert.Equal(t, "req-1", resp.Error.RequestID)
}

func TestWriteError_KeepsAppErrorCode(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, slog.Default(), fmt.Errorf("lookup: %w", NotFound("unknown segment")), "")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), string(CodeNotFound))
}
