package app

import (
	"errors"
	"fmt"
	"net/http"

	"docconsole/internal/backend"
	"docconsole/internal/conflict"
	"docconsole/internal/docs"
	"docconsole/internal/move"
	"docconsole/internal/refs"
	"docconsole/internal/search"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func validationError(err *docs.ValidationError) *DomainError {
	return domainError(http.StatusUnprocessableEntity, err.Code, err.Reason, map[string]string{"field": err.Field})
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var validationErr *docs.ValidationError
	if errors.As(err, &validationErr) {
		d := validationError(validationErr)
		return d.Status, d.Code, d.Message, d.Details
	}
	switch {
	case errors.Is(err, search.ErrEmptyQuery):
		return http.StatusBadRequest, "EMPTY_QUERY", "Search query is required", nil
	case errors.Is(err, refs.ErrNoScope):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", refs.ErrNoScope.Error(), nil
	case errors.Is(err, move.ErrCircularMove):
		return http.StatusUnprocessableEntity, "CIRCULAR_MOVE", "Cannot move a document into its own subtree", nil
	case errors.Is(err, move.ErrInvalidPosition):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", move.ErrInvalidPosition.Error(), nil
	case errors.Is(err, move.ErrNodeNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Document not found in tree", nil
	case errors.Is(err, conflict.ErrSaveInFlight):
		return http.StatusConflict, "SAVE_IN_FLIGHT", "A save for this document is already in progress", nil
	case errors.Is(err, conflict.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Conflict not found", nil
	case errors.Is(err, conflict.ErrAlreadyResolved):
		return http.StatusConflict, "ALREADY_RESOLVED", "Conflict already resolved", nil
	case errors.Is(err, conflict.ErrReopenLimit):
		return http.StatusConflict, "REOPEN_LIMIT", "Document keeps changing; reload and merge again", nil
	case errors.Is(err, backend.ErrVersionMismatch):
		return http.StatusConflict, "VERSION_MISMATCH", "Document changed on the server", nil
	case errors.Is(err, backend.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Not found", map[string]any{"reset": true}
	case errors.Is(err, backend.ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN", "Forbidden", nil
	case backend.IsTransient(err):
		return http.StatusBadGateway, "BACKEND_UNAVAILABLE", "Document server unavailable", nil
	}
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 {
		code := apiErr.Code
		if code == "" {
			code = "BACKEND_REJECTED"
		}
		return apiErr.Status, code, apiErr.Message, nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
