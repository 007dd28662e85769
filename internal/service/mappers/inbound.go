package mappers

import (
	api "github.com/reelqueue/reelqueue/api/v1alpha1"
	"github.com/reelqueue/reelqueue/internal/provider"
	"github.com/reelqueue/reelqueue/internal/store/model"
)

const (
	ParamMode                = "mode"
	ParamAssets              = "assets"
	ParamSourceJobID         = "sourceJobId"
	ParamSourceProviderJobID = "sourceProviderJobId"
	ParamSourceAssetIndex    = "sourceAssetIndex"
)

type JobCreateForm struct {
	Provider api.Provider
	Prompt   string
	Mode     string
	Params   map[string]any
	Assets   []api.InputAsset
}

// JobParams folds mode and assets into the params bag.
func (f JobCreateForm) JobParams() map[string]any {
	params := provider.MergeParams(f.Params, nil)
	if f.Mode != "" {
		params[ParamMode] = f.Mode
	}
	if len(f.Assets) > 0 {
		params[ParamAssets] = f.Assets
	}
	return params
}

func (f JobCreateForm) ToJob() *model.Job {
	return model.NewJob(f.Provider, f.Prompt, f.JobParams())
}

type JobRemixForm struct {
	Prompt string
}

type JobExtendForm struct {
	Prompt           string
	SourceAssetIndex int
	Params           map[string]any
}

// DerivedJobParams returns the params of a job forked from source.
func DerivedJobParams(source *model.Job, overlay map[string]any) map[string]any {
	params := provider.MergeParams(source.ParamMap(), overlay)
	params[ParamSourceJobID] = source.ID
	if source.ProviderJobID != nil {
		params[ParamSourceProviderJobID] = *source.ProviderJobID
	}
	return params
}

func ProviderJobFromModel(j *model.Job) provider.Job {
	pj := provider.Job{
		ID:      j.ID,
		Prompt:  j.Prompt,
		Params:  j.ParamMap(),
		Status:  j.JobStatus(),
		Outputs: j.OutputList(),
	}
	if j.ProviderJobID != nil {
		pj.ProviderJobID = *j.ProviderJobID
	}
	return pj
}
