package service

import (
	"fmt"

	api "github.com/reelqueue/reelqueue/api/v1alpha1"
)

type ErrResourceNotFound struct {
	error
}

func NewErrResourceNotFound(id string, resourceType string) *ErrResourceNotFound {
	return &ErrResourceNotFound{fmt.Errorf("%s %s not found", resourceType, id)}
}

func NewErrJobNotFound(id string) *ErrResourceNotFound {
	return NewErrResourceNotFound(id, "job")
}

func NewErrAssetNotFound(jobID string, index int) *ErrResourceNotFound {
	return &ErrResourceNotFound{fmt.Errorf("job %s has no asset at index %d", jobID, index)}
}

type ErrValidation struct {
	error
}

func NewErrValidation(format string, args ...any) *ErrValidation {
	return &ErrValidation{fmt.Errorf(format, args...)}
}

type ErrUnsupportedOperation struct {
	error
}

func NewErrUnsupportedOperation(provider api.Provider, operation string) *ErrUnsupportedOperation {
	return &ErrUnsupportedOperation{fmt.Errorf("provider %s does not support %s", provider, operation)}
}

type ErrJobNotComplete struct {
	error
}

func NewErrJobNotComplete(id string, status api.JobStatus) *ErrJobNotComplete {
	return &ErrJobNotComplete{fmt.Errorf("job %s is %s, it must be succeeded", id, status)}
}

type ErrMissingProviderJob struct {
	error
}

func NewErrMissingProviderJob(id string) *ErrMissingProviderJob {
	return &ErrMissingProviderJob{fmt.Errorf("job %s has no provider job", id)}
}

type ErrNotImplemented struct {
	error
}

func NewErrNotImplemented(provider api.Provider, operation string) *ErrNotImplemented {
	return &ErrNotImplemented{fmt.Errorf("%s is not implemented for provider %s", operation, provider)}
}
