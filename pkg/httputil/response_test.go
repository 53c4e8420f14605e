package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/chartpay/pkg/apperrors"
)

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) apperrors.Body {
	t.Helper()
	var env apperrors.Envelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&env))
	return env.Error
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"message": "success"}

	err := WriteJSON(w, http.StatusOK, data)

	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "success")
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   apperrors.Code
	}{
		{"validation", apperrors.Validation("bad plan"), http.StatusBadRequest, apperrors.CodeValidation},
		{"conflict", apperrors.Conflict("already active"), http.StatusConflict, apperrors.CodeConflict},
		{"state", apperrors.State("not pending"), http.StatusConflict, apperrors.CodeState},
		{"not found", apperrors.NotFound("missing"), http.StatusNotFound, apperrors.CodeNotFound},
		{"quota", apperrors.QuotaExceeded("daily", 1, 1), http.StatusTooManyRequests, apperrors.CodeQuotaExceeded},
		{"unauthorized", apperrors.Unauthorized("no token"), http.StatusUnauthorized, apperrors.CodeUnauthorized},
		{"plain error", errors.New("pq: connection reset"), http.StatusInternalServerError, apperrors.CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)

			assert.Equal(t, tt.status, w.Code)
			body := decodeEnvelope(t, w)
			assert.Equal(t, tt.code, body.Code)
		})
	}
}

func TestWriteError_HidesInternalDetails(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, nil, errors.New("pq: password authentication failed"))

	body := decodeEnvelope(t, w)
	assert.NotContains(t, body.Message, "password")
}

func TestWriteError_QuotaDetails(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, nil, apperrors.QuotaExceeded("monthly", 30, 30))

	body := decodeEnvelope(t, w)
	assert.Equal(t, "monthly", body.LimitType)
	assert.Equal(t, int64(30), body.Used)
	assert.Equal(t, int64(30), body.Limit)
}

func TestWriteBadRequestAndUnauthorized(t *testing.T) {
	w := httptest.NewRecorder()
	WriteBadRequest(w, "invalid input")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid input", decodeEnvelope(t, w).Message)

	w = httptest.NewRecorder()
	WriteUnauthorized(w, "token expired")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, apperrors.CodeUnauthorized, decodeEnvelope(t, w).Code)
}

func TestWriteCreated(t *testing.T) {
	w := httptest.NewRecorder()
	err := WriteCreated(w, map[string]string{"id": "pr-1"})

	assert.NoError(t, err)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "pr-1")
}

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	err := WriteSuccess(w, map[string]string{"status": "ok"})

	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWriteNoContent(t *testing.T) {
	w := httptest.NewRecorder()
	WriteNoContent(w)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}
