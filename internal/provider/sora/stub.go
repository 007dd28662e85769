package sora

import (
	"bytes"
	"context"
	"io"

	"github.com/google/uuid"
	api "github.com/reelqueue/reelqueue/api/v1alpha1"
	"github.com/reelqueue/reelqueue/internal/provider"
)

// stubCallsToComplete counts the submit call as the first one.
const stubCallsToComplete = 3

// Stub simulates Sora without network access.
type Stub struct {
	model    string
	progress *provider.ProgressCounter
}

var (
	_ provider.Adapter = (*Stub)(nil)
	_ provider.Remixer = (*Stub)(nil)
)

func NewStub(model string) *Stub {
	if model == "" {
		model = DefaultModel
	}
	return &Stub{model: model, progress: provider.NewProgressCounter()}
}

func (s *Stub) ID() api.Provider {
	return api.ProviderSora
}

func (s *Stub) Metadata() api.ProviderInfo {
	return metadata(s.model, true)
}

func (s *Stub) ValidateParams(params map[string]any) error {
	_, err := decodeParams(params)
	return err
}

func (s *Stub) Submit(_ context.Context, job provider.Job) (*provider.SubmitResult, error) {
	if _, err := decodeParams(job.Params); err != nil {
		return nil, err
	}
	return s.start(), nil
}

func (s *Stub) Refresh(_ context.Context, job provider.Job) (*provider.RefreshResult, error) {
	call := s.progress.Next(job.ProviderJobID)
	if call >= stubCallsToComplete {
		return &provider.RefreshResult{
			Status:      api.JobStatusSucceeded,
			ProgressPct: provider.IntPtr(100),
			Outputs:     []api.Asset{videoAsset(job.ProviderJobID)},
		}, nil
	}
	return &provider.RefreshResult{
		Status:      api.JobStatusRunning,
		ProgressPct: provider.IntPtr(call * 100 / stubCallsToComplete),
	}, nil
}

func (s *Stub) Content(_ context.Context, job provider.Job, assetIndex int) (*provider.Content, error) {
	if assetIndex != 0 || assetIndex >= len(job.Outputs) {
		return nil, provider.NewErrAssetNotFound(job.ID, assetIndex)
	}
	data := provider.StubVideo()
	return &provider.Content{
		ContentType:   videoKind,
		ContentLength: int64(len(data)),
		Body:          io.NopCloser(bytes.NewReader(data)),
	}, nil
}

func (s *Stub) Remix(_ context.Context, _ provider.Job, _ provider.RemixInput) (*provider.SubmitResult, error) {
	return s.start(), nil
}

func (s *Stub) Delete(_ context.Context, job provider.Job) error {
	s.progress.Forget(job.ProviderJobID)
	return nil
}

func (s *Stub) start() *provider.SubmitResult {
	id := "video_stub_" + uuid.NewString()
	call := s.progress.Next(id)
	return &provider.SubmitResult{
		ProviderJobID: id,
		Status:        api.JobStatusRunning,
		ProgressPct:   provider.IntPtr(call * 100 / stubCallsToComplete),
	}
}
