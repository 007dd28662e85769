package mappers

import (
	api "github.com/reelqueue/reelqueue/api/v1alpha1"
	"github.com/reelqueue/reelqueue/internal/service/mappers"
	"github.com/reelqueue/reelqueue/internal/store/model"
)

func JobToApi(j model.Job) api.Job {
	return api.Job{
		Id:            j.ID,
		Provider:      api.Provider(j.Provider),
		ProviderJobId: j.ProviderJobID,
		Status:        j.JobStatus(),
		ProgressPct:   j.ProgressPct,
		Prompt:        j.Prompt,
		Params:        j.ParamMap(),
		Outputs:       j.OutputList(),
		Error:         j.ErrorData(),
		CreatedAt:     j.CreatedAt,
		UpdatedAt:     j.UpdatedAt,
	}
}

func JobListToApi(page mappers.JobPage) api.JobList {
	list := api.JobList{
		Data:       make([]api.Job, 0, len(page.Jobs)),
		NextCursor: page.NextCursor,
		Meta:       api.JobListMeta{Total: page.Total, Limit: page.Limit},
	}
	for _, j := range page.Jobs {
		list.Data = append(list.Data, JobToApi(j))
	}
	return list
}

func ProviderListToApi(infos []api.ProviderInfo) api.ProviderList {
	if infos == nil {
		infos = []api.ProviderInfo{}
	}
	return api.ProviderList{Data: infos}
}
