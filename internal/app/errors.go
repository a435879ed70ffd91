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

func errConfigRequired() *DomainError {
	return domainError(http.StatusConflict, "CONFIG_REQUIRED", "GitLab project is not configured", nil)
}

func errForbidden(action string) *DomainError {
	return domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", map[string]any{"action": action})
}

func errUnavailable(code, message string) *DomainError {
	return domainError(http.StatusServiceUnavailable, code, message, nil)
}
