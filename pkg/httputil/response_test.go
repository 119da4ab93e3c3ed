package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gatekeeper/pkg/accesserr"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	err := WriteJSON(w, http.StatusOK, map[string]string{"message": "success"})

	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "success")
}

func TestStatusForKind(t *testing.T) {
	tests := []struct {
		kind accesserr.Kind
		want int
	}{
		{accesserr.KindRateLimitExceeded, http.StatusTooManyRequests},
		{accesserr.KindMissingToken, http.StatusUnauthorized},
		{accesserr.KindInvalidToken, http.StatusUnauthorized},
		{accesserr.KindExpired, http.StatusUnauthorized},
		{accesserr.KindAuthenticationRequired, http.StatusUnauthorized},
		{accesserr.KindForbidden, http.StatusForbidden},
		{accesserr.KindValidationFailed, http.StatusBadRequest},
		{accesserr.KindUnavailable, http.StatusServiceUnavailable},
		{accesserr.Kind("other"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, StatusForKind(tt.kind))
		})
	}
}

func TestWriteRejection_RateLimited(t *testing.T) {
	w := httptest.NewRecorder()
	WriteRejection(w, accesserr.RateLimited("login", 1500*time.Millisecond))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2", w.Header().Get("Retry-After"))

	var body RejectionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, accesserr.KindRateLimitExceeded, body.Error)
	assert.Equal(t, int64(2), body.RetryAfter)
	assert.NotEmpty(t, body.Message)
}

func TestWriteRejection_ValidationFailed(t *testing.T) {
	w := httptest.NewRecorder()
	WriteRejection(w, accesserr.ValidationFailed([]accesserr.Failure{
		{Field: "phone", Message: "phone is required"},
		{Field: "amount", Message: "amount must be an integer"},
	}))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, w.Header().Get("Retry-After"))

	var body RejectionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Failures, 2)
	assert.Equal(t, "phone", body.Failures[0].Field)
	assert.Equal(t, "amount", body.Failures[1].Field)
}

func TestWriteRejection_Auth(t *testing.T) {
	w := httptest.NewRecorder()
	WriteRejection(w, accesserr.New(accesserr.KindExpired, "token expired"))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Header().Get("WWW-Authenticate"), "Bearer")
	assert.Contains(t, w.Body.String(), `"error":"Expired"`)
}

func TestWriteRejection_UnknownError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteRejection(w, errors.New("db password is hunter2"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "hunter2")
}

func TestRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, int64(0), RetryAfterSeconds(0))
	assert.Equal(t, int64(0), RetryAfterSeconds(-time.Second))
	assert.Equal(t, int64(1), RetryAfterSeconds(time.Millisecond))
	assert.Equal(t, int64(60), RetryAfterSeconds(time.Minute))
}
