package model

import (
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
	api "github.com/reelqueue/reelqueue/api/v1alpha1"
	"gorm.io/datatypes"
)

type Job struct {
	ID            string                            `gorm:"primaryKey;type:VARCHAR(26)"`
	Provider      string                            `gorm:"type:VARCHAR(16);not null;index"`
	ProviderJobID *string                           `gorm:"column:provider_job_id;type:TEXT"`
	Status        string                            `gorm:"type:VARCHAR(16);not null;index"`
	ProgressPct   *int                              `gorm:"column:progress_pct"`
	Prompt        string                            `gorm:"type:TEXT;not null"`
	Params        datatypes.JSONMap                 `gorm:"column:params"`
	Outputs       datatypes.JSONSlice[api.Asset]    `gorm:"column:outputs"`
	Error         *datatypes.JSONType[api.JobError] `gorm:"column:error"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type JobList []Job

type JobStat struct {
	Provider string
	Status   string
	Count    int64
}

// NewJob returns a queued job with a fresh time ordered id.
func NewJob(provider api.Provider, prompt string, params map[string]any) *Job {
	if params == nil {
		params = map[string]any{}
	}
	return &Job{
		ID:       ulid.Make().String(),
		Provider: string(provider),
		Status:   string(api.JobStatusQueued),
		Prompt:   prompt,
		Params:   datatypes.JSONMap(params),
		Outputs:  datatypes.JSONSlice[api.Asset]{},
	}
}

func (j Job) String() string {
	val, _ := json.Marshal(j)
	return string(val)
}

func (j *Job) JobStatus() api.JobStatus {
	return api.StringToJobStatus(j.Status)
}

func (j *Job) ErrorData() *api.JobError {
	if j.Error == nil {
		return nil
	}
	e := j.Error.Data()
	return &e
}

func (j *Job) SetError(e *api.JobError) {
	if e == nil {
		j.Error = nil
		return
	}
	v := datatypes.NewJSONType(*e)
	j.Error = &v
}

func (j *Job) OutputList() []api.Asset {
	if j.Outputs == nil {
		return []api.Asset{}
	}
	return []api.Asset(j.Outputs)
}

func (j *Job) ParamMap() map[string]any {
	if j.Params == nil {
		return map[string]any{}
	}
	return map[string]any(j.Params)
}
