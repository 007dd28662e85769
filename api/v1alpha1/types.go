package v1alpha1

import (
	"time"
)

// Supported providers.
const (
	ProviderSora Provider = "sora"
	ProviderVeo  Provider = "veo"
)

// Job statuses. Succeeded, failed and canceled are terminal.
const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCanceled  JobStatus = "canceled"
	JobStatusUnknown   JobStatus = "unknown"
)

// Error codes returned in the error envelope.
const (
	ErrorCodeValidation           ErrorCode = "VALIDATION_ERROR"
	ErrorCodeNotFound             ErrorCode = "NOT_FOUND"
	ErrorCodeUnsupportedOperation ErrorCode = "UNSUPPORTED_OPERATION"
	ErrorCodeJobNotComplete       ErrorCode = "JOB_NOT_COMPLETE"
	ErrorCodeMissingProviderJob   ErrorCode = "MISSING_PROVIDER_JOB"
	ErrorCodeNotImplemented       ErrorCode = "NOT_IMPLEMENTED"
	ErrorCodeMethodNotAllowed     ErrorCode = "METHOD_NOT_ALLOWED"
	ErrorCodeInternal             ErrorCode = "INTERNAL_ERROR"
)

// Provider identifies an external video generation service.
type Provider string

// JobStatus is the canonical job status shared by every provider.
type JobStatus string

// ErrorCode is the machine readable code of an error response.
type ErrorCode string

// Asset is one generated output. Uri may use a provider specific scheme;
// content is always served through the jobs content endpoint.
type Asset struct {
	Kind        string  `json:"kind"`
	Uri         string  `json:"uri"`
	BytesBase64 *string `json:"bytesBase64,omitempty"`
}

// JobError is the failure recorded on a failed job. Raw keeps the provider payload.
type JobError struct {
	Message string `json:"message"`
	Raw     any    `json:"raw,omitempty"`
}

// Job is the API representation of a video generation job.
type Job struct {
	Id            string         `json:"id"`
	Provider      Provider       `json:"provider"`
	ProviderJobId *string        `json:"providerJobId"`
	Status        JobStatus      `json:"status"`
	ProgressPct   *int           `json:"progressPct"`
	Prompt        string         `json:"prompt"`
	Params        map[string]any `json:"params"`
	Outputs       []Asset        `json:"outputs"`
	Error         *JobError      `json:"error"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

type JobListMeta struct {
	Total int64 `json:"total"`
	Limit int   `json:"limit"`
}

// JobList is one page of jobs. NextCursor is nil on the last page.
type JobList struct {
	Data       []Job       `json:"data"`
	NextCursor *string     `json:"nextCursor"`
	Meta       JobListMeta `json:"meta"`
}

// InputAsset is an asset supplied by the caller when creating a job.
type InputAsset struct {
	Kind        string  `json:"kind" validate:"required"`
	Role        string  `json:"role,omitempty" validate:"omitempty,oneof=first_frame last_frame reference video"`
	Uri         *string `json:"uri,omitempty" validate:"omitempty,url"`
	BytesBase64 *string `json:"bytesBase64,omitempty" validate:"omitempty,base64"`
	MimeType    string  `json:"mimeType,omitempty"`
}

// JobCreate is the body of POST /api/jobs.
type JobCreate struct {
	Provider Provider       `json:"provider" validate:"required,provider"`
	Prompt   string         `json:"prompt" validate:"required,prompt"`
	Mode     *string        `json:"mode,omitempty" validate:"omitempty,mode"`
	Params   map[string]any `json:"params,omitempty"`
	Assets   []InputAsset   `json:"assets,omitempty" validate:"omitempty,max=4,dive"`
}

// JobRemix is the body of a remix request. An empty prompt reuses the source prompt.
type JobRemix struct {
	Prompt *string `json:"prompt,omitempty" validate:"omitempty,prompt"`
}

// JobExtend is the body of an extend request.
type JobExtend struct {
	Prompt           *string        `json:"prompt,omitempty" validate:"omitempty,prompt"`
	SourceAssetIndex *int           `json:"sourceAssetIndex,omitempty" validate:"omitempty,min=0"`
	Params           map[string]any `json:"params,omitempty"`
}

type ProviderCapabilities struct {
	Remix          bool `json:"remix"`
	Extend         bool `json:"extend"`
	ReferenceImage bool `json:"referenceImage"`
}

// ProviderInfo describes a registered provider. Stub is set when no
// credentials are configured and answers are simulated.
type ProviderInfo struct {
	Id             Provider             `json:"id"`
	Label          string               `json:"label"`
	DefaultModel   string               `json:"defaultModel"`
	SupportedModes []string             `json:"supportedModes"`
	Capabilities   ProviderCapabilities `json:"capabilities"`
	Stub           bool                 `json:"stub"`
}

type ProviderList struct {
	Data []ProviderInfo `json:"data"`
}

type Health struct {
	Status string `json:"status"`
}

type ErrorDetail struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// Error is the envelope of every non 2xx response.
type Error struct {
	Error ErrorDetail `json:"error"`
}
