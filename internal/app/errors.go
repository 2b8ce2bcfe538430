package app

import (
	"fmt"
	"net/http"
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

func validationError(message string, details any) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, details)
}

func notFoundError(entity string) *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", entity+" not found", nil)
}

func authorizationError(message string) *DomainError {
	return domainError(http.StatusForbidden, "FORBIDDEN", message, nil)
}

func conflictError(message string) *DomainError {
	return domainError(http.StatusConflict, "CONFLICT", message, nil)
}

// dependencyError reports a failed external call. status is 502 when the
// upstream answered badly and 503 when it could not be reached at all.
func dependencyError(status int, message string) *DomainError {
	return domainError(status, "DEPENDENCY_ERROR", message, nil)
}
