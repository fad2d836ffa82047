package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/solarafrica/solarplanner/internal/auth"
	"github.com/solarafrica/solarplanner/internal/plans"
	"github.com/solarafrica/solarplanner/pkg/solar"
)

// Envelope wraps every JSON response.
type Envelope struct {
	Success bool     `json:"success"`
	Message string   `json:"message,omitempty"`
	Data    any      `json:"data,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, body Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("encode response failed")
	}
}

func ok(w http.ResponseWriter, r *http.Request, status int, message string, data any) {
	writeJSON(w, r, status, Envelope{Success: true, Message: message, Data: data})
}

func fail(w http.ResponseWriter, r *http.Request, status int, message string, errs ...string) {
	writeJSON(w, r, status, Envelope{Success: false, Message: message, Errors: errs})
}

// deny adapts fail to the auth middleware.
func deny(w http.ResponseWriter, r *http.Request, status int, msg string) {
	fail(w, r, status, msg)
}

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

// decode reads a JSON body into v, answering 400 (or 413 for an oversized
// body) itself on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			fail(w, r, http.StatusRequestEntityTooLarge, "Request body too large")
			return false
		}
		fail(w, r, http.StatusBadRequest, "Invalid request body", err.Error())
		return false
	}
	return true
}

// writeError maps service errors onto status codes. Access to someone
// else's private plan is reported as not found.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *solar.ValidationError
	switch {
	case errors.As(err, &verr):
		fail(w, r, http.StatusBadRequest, "Validation failed", verr.Messages...)
	case errors.Is(err, plans.ErrNotFound), errors.Is(err, plans.ErrAccessDenied):
		fail(w, r, http.StatusNotFound, "Plan not found")
	case errors.Is(err, auth.ErrInvalidInput):
		fail(w, r, http.StatusBadRequest, "Validation failed", strings.TrimPrefix(err.Error(), auth.ErrInvalidInput.Error()+": "))
	case errors.Is(err, auth.ErrUserExists):
		fail(w, r, http.StatusConflict, "User with this email already exists")
	case errors.Is(err, auth.ErrInvalidCredentials):
		fail(w, r, http.StatusUnauthorized, "Invalid email or password")
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
		fail(w, r, http.StatusInternalServerError, "Internal Server Error")
	}
}
