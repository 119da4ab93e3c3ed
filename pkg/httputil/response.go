// Package httputil provides HTTP handler utilities for consistent error handling,
// JSON encoding/decoding, and request parsing.
package httputil

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/platinummonkey/gatekeeper/pkg/accesserr"
)

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteErrorMessage writes a JSON error response with a custom message
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]string{
		"error": message,
	})
}

// WriteInternalError writes an internal server error response (500 Internal Server Error).
// The error itself is never shown to the caller.
func WriteInternalError(w http.ResponseWriter) {
	WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
}

// WriteSuccess writes a successful response (200 OK) with JSON data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteNoContent writes a successful response with no content (204 No Content)
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteBadRequest writes a bad request error (400)
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusBadRequest, message)
}

// WriteNotFoundError writes a not found error response (404 Not Found)
func WriteNotFoundError(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusNotFound, message)
}

// RejectionResponse is the body written for every rejected request
type RejectionResponse struct {
	Error      accesserr.Kind      `json:"error"`
	Message    string              `json:"message"`
	Failures   []accesserr.Failure `json:"failures,omitempty"`
	RetryAfter int64               `json:"retry_after,omitempty"`
}

// StatusForKind maps a rejection kind onto its HTTP status
func StatusForKind(kind accesserr.Kind) int {
	switch kind {
	case accesserr.KindRateLimitExceeded:
		return http.StatusTooManyRequests
	case accesserr.KindMissingToken, accesserr.KindInvalidToken, accesserr.KindExpired, accesserr.KindAuthenticationRequired:
		return http.StatusUnauthorized
	case accesserr.KindForbidden:
		return http.StatusForbidden
	case accesserr.KindValidationFailed:
		return http.StatusBadRequest
	case accesserr.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RetryAfterSeconds rounds a retry hint up to whole seconds, never below 1
func RetryAfterSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	secs := int64(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

// WriteRejection writes err as a rejection. Errors outside the access taxonomy
// become a 500 with no detail.
func WriteRejection(w http.ResponseWriter, err error) {
	rej, ok := accesserr.As(err)
	if !ok {
		WriteInternalError(w)
		return
	}

	body := RejectionResponse{
		Error:    rej.Kind,
		Message:  rej.Message,
		Failures: rej.Failures,
	}
	if rej.Kind == accesserr.KindRateLimitExceeded {
		body.RetryAfter = RetryAfterSeconds(rej.RetryAfter)
		if body.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.FormatInt(body.RetryAfter, 10))
		}
	}
	if rej.Kind == accesserr.KindMissingToken || rej.Kind == accesserr.KindInvalidToken || rej.Kind == accesserr.KindExpired {
		w.Header().Set("WWW-Authenticate", `Bearer realm="gatekeeper"`)
	}

	WriteJSON(w, StatusForKind(rej.Kind), body)
}
