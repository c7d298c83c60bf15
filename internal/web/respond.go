package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/getsentry/sentry-go"

	"github.com/Gon-jpg/TaskManagerFullstack/internal/apperr"
)

// MaxJSONBodyBytes caps every JSON request body.
const MaxJSONBodyBytes = 1 << 20

// DecodeJSON wraps the body with MaxBytesReader and rejects unknown fields.
func DecodeJSON(w http.ResponseWriter, r *http.Request, into any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		Error(w, http.StatusBadRequest, "invalid json body")
		return false
	}

	return true
}

func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// Fail is the single boundary translator: domain errors from the closed
// taxonomy map 1:1 to statuses; anything else is a programming defect, captured
// in sentry and reported as a generic 500 without internal detail.
func Fail(w http.ResponseWriter, err error) {
	var locked *apperr.LockedError
	if errors.As(err, &locked) {
		retryAfter := locked.RetryAfterSeconds
		if retryAfter < 1 {
			retryAfter = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		Error(w, http.StatusTooManyRequests, "login temporarily locked")
		return
	}

	var invalid *apperr.ValidationError
	if errors.As(err, &invalid) {
		JSON(w, http.StatusBadRequest, map[string]any{
			"error":  "invalid input",
			"fields": invalid.Fields,
		})
		return
	}

	if status := apperr.StatusOf(err); status != 0 {
		Error(w, status, err.Error())
		return
	}

	sentry.CaptureException(err)
	Error(w, http.StatusInternalServerError, "internal server error")
}
