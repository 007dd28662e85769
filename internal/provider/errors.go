package provider

import (
	"errors"
	"fmt"
	"net/http"
)

var ErrAssetNotFound = errors.New("asset not found")

func NewErrAssetNotFound(jobID string, index int) error {
	return fmt.Errorf("job %s has no retrievable asset at index %d: %w", jobID, index, ErrAssetNotFound)
}

// ErrInvalidParams reports params that do not fit the provider's parameter shape.
type ErrInvalidParams struct {
	error
}

func NewErrInvalidParams(format string, args ...any) *ErrInvalidParams {
	return &ErrInvalidParams{fmt.Errorf(format, args...)}
}

// ErrProviderRequest wraps a failed call to a provider API.
type ErrProviderRequest struct {
	Provider   string
	Operation  string
	StatusCode int
	Message    string
	Raw        any
}

func (e *ErrProviderRequest) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s failed with status %d: %s", e.Provider, e.Operation, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s failed: %s", e.Provider, e.Operation, e.Message)
}

// Rejected reports whether the provider refused the content of the request.
// Auth, conflict, timeout and rate limit answers are not rejections: the same
// request may succeed when submitted again.
func (e *ErrProviderRequest) Rejected() bool {
	switch e.StatusCode {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnprocessableEntity:
		return true
	}
	return false
}
