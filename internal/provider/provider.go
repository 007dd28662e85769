package provider

import (
	"context"
	"io"

	api "github.com/reelqueue/reelqueue/api/v1alpha1"
)

const (
	ModeTextToVideo      = "text-to-video"
	ModeImageToVideo     = "image-to-video"
	ModeReferenceToVideo = "reference-to-video"
)

// Job is the canonical view of a job handed to an adapter.
type Job struct {
	ID            string
	Prompt        string
	Params        map[string]any
	ProviderJobID string
	Status        api.JobStatus
	Outputs       []api.Asset
}

type SubmitResult struct {
	ProviderJobID string
	Status        api.JobStatus
	ProgressPct   *int
}

// RefreshResult carries outputs when Status is succeeded and Error when it is failed.
type RefreshResult struct {
	Status      api.JobStatus
	ProgressPct *int
	Outputs     []api.Asset
	Error       *api.JobError
}

// Content is either a redirect target or a byte stream the caller must close.
type Content struct {
	RedirectURL   string
	ContentType   string
	ContentLength int64
	Body          io.ReadCloser
}

func (c *Content) IsRedirect() bool {
	return c.RedirectURL != ""
}

type RemixInput struct {
	Prompt string
}

type ExtendInput struct {
	Prompt           string
	SourceAssetIndex int
	Params           map[string]any
}

// Adapter translates canonical job operations into one provider's API.
type Adapter interface {
	ID() api.Provider
	Metadata() api.ProviderInfo
	// ValidateParams decodes the opaque params bag into the provider's typed
	// parameters and reports the first problem found.
	ValidateParams(params map[string]any) error
	// Submit is called once per job.
	Submit(ctx context.Context, job Job) (*SubmitResult, error)
	// Refresh is safe to call any number of times.
	Refresh(ctx context.Context, job Job) (*RefreshResult, error)
	// Content fails with ErrAssetNotFound when assetIndex has nothing to serve.
	Content(ctx context.Context, job Job, assetIndex int) (*Content, error)
	// Delete is best effort.
	Delete(ctx context.Context, job Job) error
}

// Remixer is implemented by adapters whose metadata advertises remix.
type Remixer interface {
	Remix(ctx context.Context, job Job, input RemixInput) (*SubmitResult, error)
}

// Extender is implemented by adapters whose metadata advertises extend.
type Extender interface {
	Extend(ctx context.Context, job Job, input ExtendInput) (*SubmitResult, error)
}

func IntPtr(v int) *int {
	return &v
}
