package mappers

import (
	api "github.com/reelqueue/reelqueue/api/v1alpha1"
	"github.com/reelqueue/reelqueue/internal/service/mappers"
)

func JobFormApi(resource api.JobCreate) mappers.JobCreateForm {
	form := mappers.JobCreateForm{
		Provider: resource.Provider,
		Prompt:   resource.Prompt,
		Params:   resource.Params,
		Assets:   resource.Assets,
	}
	if resource.Mode != nil {
		form.Mode = *resource.Mode
	}
	return form
}

func JobRemixFormApi(resource api.JobRemix) mappers.JobRemixForm {
	form := mappers.JobRemixForm{}
	if resource.Prompt != nil {
		form.Prompt = *resource.Prompt
	}
	return form
}

func JobExtendFormApi(resource api.JobExtend) mappers.JobExtendForm {
	form := mappers.JobExtendForm{Params: resource.Params}
	if resource.Prompt != nil {
		form.Prompt = *resource.Prompt
	}
	if resource.SourceAssetIndex != nil {
		form.SourceAssetIndex = *resource.SourceAssetIndex
	}
	return form
}
