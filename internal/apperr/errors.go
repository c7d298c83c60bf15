package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Closed set of domain failures. Handlers never invent statuses; everything a
// client can observe maps through StatusOf exactly once, at the response boundary.
var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrUsernameTaken        = errors.New("username already taken")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrTokenMalformed       = errors.New("token malformed")
	ErrTokenExpired         = errors.New("token expired")
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrRefreshTokenExpired  = errors.New("refresh token expired")
	ErrForbidden            = errors.New("forbidden")
	ErrNotFound             = errors.New("resource not found")
	ErrDuplicateCategory    = errors.New("category name already taken")
	ErrCategoryInUse        = errors.New("category is referenced by tasks")
	ErrInvalidCategory      = errors.New("category does not exist")
)

// ValidationError carries per-field messages for ErrInvalidInput failures.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, message := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, message))
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// Invalid builds an ErrInvalidInput with field errors attached.
func Invalid(fields map[string]string) error {
	return &ValidationError{Fields: fields}
}

// LockedError reports a temporarily locked login, with the retry horizon.
type LockedError struct {
	RetryAfterSeconds int
}

func (e *LockedError) Error() string {
	return "login temporarily locked"
}

// StatusOf maps a domain error to its HTTP status. A zero return means the
// error is outside the taxonomy and must be treated as an internal defect.
func StatusOf(err error) int {
	var locked *LockedError
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidCategory):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrTokenMalformed),
		errors.Is(err, ErrTokenExpired):
		return http.StatusUnauthorized
	case errors.Is(err, ErrRefreshTokenNotFound),
		errors.Is(err, ErrRefreshTokenExpired),
		errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUsernameTaken),
		errors.Is(err, ErrDuplicateCategory),
		errors.Is(err, ErrCategoryInUse):
		return http.StatusConflict
	case errors.As(err, &locked):
		return http.StatusTooManyRequests
	default:
		return 0
	}
}
