package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sony/gobreaker"
)

var (
	ErrVersionMismatch = errors.New("version mismatch")
	ErrNotFound        = errors.New("not found")
	ErrForbidden       = errors.New("forbidden")
)

// APIError is a non-2xx answer from the document server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("document server %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("document server %d: %s", e.Status, e.Message)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrVersionMismatch:
		return e.Code == "VERSION_MISMATCH" || (e.Status == http.StatusConflict && e.Code == "")
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrForbidden:
		return e.Status == http.StatusForbidden || e.Status == http.StatusUnauthorized
	}
	return false
}

// IsStale reports errors that mean the client's view is out of date: a version
// mismatch on save or a document that no longer exists.
func IsStale(err error) bool {
	return errors.Is(err, ErrVersionMismatch) || errors.Is(err, ErrNotFound)
}

// IsTransient reports server-side or transport failures, including an open breaker.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= http.StatusInternalServerError
	}
	return true
}

// Degradable reports errors a read path may answer with an empty result.
func Degradable(err error) bool {
	return errors.Is(err, ErrForbidden) || IsTransient(err)
}
