package veo

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/google/uuid"
	api "github.com/reelqueue/reelqueue/api/v1alpha1"
	"github.com/reelqueue/reelqueue/internal/provider"
)

// stubCallsToComplete counts the submit call as the first one.
const stubCallsToComplete = 4

// Stub simulates Veo without network access. Its outputs carry inline bytes
// so extend works end to end.
type Stub struct {
	model    string
	location string
	progress *provider.ProgressCounter
}

var (
	_ provider.Adapter  = (*Stub)(nil)
	_ provider.Extender = (*Stub)(nil)
)

func NewStub(model string) *Stub {
	if model == "" {
		model = DefaultModel
	}
	return &Stub{model: model, location: "us-central1", progress: provider.NewProgressCounter()}
}

func (s *Stub) ID() api.Provider {
	return api.ProviderVeo
}

func (s *Stub) Metadata() api.ProviderInfo {
	return metadata(s.model, true)
}

func (s *Stub) ValidateParams(params map[string]any) error {
	_, err := decodeParams(params)
	return err
}

func (s *Stub) Submit(_ context.Context, job provider.Job) (*provider.SubmitResult, error) {
	params, err := decodeParams(job.Params)
	if err != nil {
		return nil, err
	}
	return s.start(params.model(s.model)), nil
}

func (s *Stub) Refresh(_ context.Context, job provider.Job) (*provider.RefreshResult, error) {
	if _, err := parseOperationName(job.ProviderJobID); err != nil {
		return nil, err
	}

	if s.progress.Next(job.ProviderJobID) < stubCallsToComplete {
		return &provider.RefreshResult{Status: api.JobStatusRunning}, nil
	}

	video := generatedVideo{
		BytesBase64Encoded: base64.StdEncoding.EncodeToString(provider.StubVideo()),
		MimeType:           videoKind,
	}
	return mapOperation(&operation{
		Name:     job.ProviderJobID,
		Done:     true,
		Response: &operationResponse{Videos: []generatedVideo{video}},
	}, nil), nil
}

func (s *Stub) Content(_ context.Context, job provider.Job, assetIndex int) (*provider.Content, error) {
	if assetIndex < 0 || assetIndex >= len(job.Outputs) {
		return nil, provider.NewErrAssetNotFound(job.ID, assetIndex)
	}
	asset := job.Outputs[assetIndex]
	if asset.BytesBase64 == nil {
		return nil, provider.NewErrAssetNotFound(job.ID, assetIndex)
	}
	return inlineContent(job.ID, assetIndex, asset)
}

func (s *Stub) Extend(_ context.Context, job provider.Job, input provider.ExtendInput) (*provider.SubmitResult, error) {
	params, err := decodeParams(provider.MergeParams(job.Params, input.Params))
	if err != nil {
		return nil, err
	}
	model := params.model(s.model)
	if op, err := parseOperationName(job.ProviderJobID); err == nil {
		model = op.Model
	}
	if _, err := extendSource(job, input, model); err != nil {
		return nil, err
	}
	return s.start(model), nil
}

func (s *Stub) Delete(_ context.Context, job provider.Job) error {
	s.progress.Forget(job.ProviderJobID)
	return nil
}

func (s *Stub) start(model string) *provider.SubmitResult {
	name := fmt.Sprintf("projects/stub/locations/%s/publishers/google/models/%s/operations/%s", s.location, model, uuid.NewString())
	s.progress.Next(name)
	return &provider.SubmitResult{ProviderJobID: name, Status: api.JobStatusRunning}
}
