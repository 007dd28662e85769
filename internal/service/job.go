package service

import (
	"context"
	"errors"
	"reflect"

	"github.com/oklog/ulid/v2"
	api "github.com/reelqueue/reelqueue/api/v1alpha1"
	"github.com/reelqueue/reelqueue/internal/provider"
	"github.com/reelqueue/reelqueue/internal/provider/registry"
	"github.com/reelqueue/reelqueue/internal/service/mappers"
	"github.com/reelqueue/reelqueue/internal/store"
	"github.com/reelqueue/reelqueue/internal/store/model"
	"github.com/reelqueue/reelqueue/pkg/metrics"
	"go.uber.org/zap"
)

const (
	operationRemix  = "remix"
	operationExtend = "extend"
)

type JobService struct {
	store     store.Store
	providers *registry.Registry
}

func NewJobService(store store.Store, providers *registry.Registry) *JobService {
	return &JobService{store: store, providers: providers}
}

func (s *JobService) ListProviders() []api.ProviderInfo {
	adapters := s.providers.List()
	infos := make([]api.ProviderInfo, 0, len(adapters))
	for _, a := range adapters {
		infos = append(infos, a.Metadata())
	}
	return infos
}

// ListJobs returns one page of jobs, newest first. Total ignores the cursor.
func (s *JobService) ListJobs(ctx context.Context, filter *JobFilter, limit int, cursor string) (*mappers.JobPage, error) {
	if cursor != "" {
		if _, err := ulid.ParseStrict(cursor); err != nil {
			return nil, NewErrValidation("invalid cursor %q", cursor)
		}
	}

	total, err := s.store.Job().Count(ctx, filter.toStoreFilter())
	if err != nil {
		return nil, err
	}

	storeFilter := filter.toStoreFilter()
	if cursor != "" {
		storeFilter = storeFilter.BeforeID(cursor)
	}
	opts := store.NewJobQueryOptions().WithSortOrder(store.SortByIDDesc).WithLimit(limit + 1)

	jobs, err := s.store.Job().List(ctx, storeFilter, opts)
	if err != nil {
		return nil, err
	}

	page := &mappers.JobPage{Jobs: jobs, Total: total, Limit: limit}
	if len(jobs) > limit {
		page.Jobs = jobs[:limit]
		next := page.Jobs[limit-1].ID
		page.NextCursor = &next
	}
	return page, nil
}

func (s *JobService) GetJob(ctx context.Context, id string) (*model.Job, error) {
	job, err := s.store.Job().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrJobNotFound(id)
		}
		return nil, err
	}
	return job, nil
}

func (s *JobService) CreateJob(ctx context.Context, form mappers.JobCreateForm) (*model.Job, error) {
	adapter, err := s.providers.Get(form.Provider)
	if err != nil {
		return nil, NewErrValidation("%s", err)
	}

	job := form.ToJob()
	if err := adapter.ValidateParams(job.ParamMap()); err != nil {
		return nil, NewErrValidation("%s", err)
	}

	created, err := s.store.Job().Create(ctx, *job)
	if err != nil {
		return nil, err
	}

	metrics.IncreaseJobsCreatedMetric(created.Provider)
	zap.S().Named("job_service").Infow("job created", "job_id", created.ID, "provider", created.Provider)
	return created, nil
}

// RefreshJob submits a job the first time it is called and polls the provider
// afterwards. Terminal jobs are returned as they are.
func (s *JobService) RefreshJob(ctx context.Context, id string) (*model.Job, error) {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.JobStatus().IsTerminal() {
		return job, nil
	}

	adapter, err := s.adapter(job)
	if err != nil {
		return nil, err
	}

	if job.ProviderJobID == nil || *job.ProviderJobID == "" {
		return s.submit(ctx, adapter, job)
	}

	result, err := adapter.Refresh(ctx, mappers.ProviderJobFromModel(job))
	if err != nil {
		zap.S().Named("job_service").Errorw("failed to refresh job", "job_id", job.ID, "provider", job.Provider, "error", err)
		return nil, err
	}

	return s.record(ctx, job.ID, func(ctx context.Context, current *model.Job) (*model.Job, error) {
		return s.apply(ctx, current, result)
	})
}

func (s *JobService) submit(ctx context.Context, adapter provider.Adapter, job *model.Job) (*model.Job, error) {
	logger := zap.S().Named("job_service")

	result, err := adapter.Submit(ctx, mappers.ProviderJobFromModel(job))
	if err != nil {
		jobErr := rejection(err)
		if jobErr == nil {
			logger.Errorw("failed to submit job", "job_id", job.ID, "provider", job.Provider, "error", err)
			return nil, err
		}

		logger.Infow("provider rejected job", "job_id", job.ID, "provider", job.Provider, "error", err)
		return s.record(ctx, job.ID, func(ctx context.Context, current *model.Job) (*model.Job, error) {
			return s.apply(ctx, current, &provider.RefreshResult{Status: api.JobStatusFailed, Error: jobErr})
		})
	}

	settled := s.settle(ctx, adapter, job, result)
	updated, err := s.record(ctx, job.ID, func(ctx context.Context, current *model.Job) (*model.Job, error) {
		if current.ProviderJobID != nil && *current.ProviderJobID != "" {
			logger.Warnw("job was submitted concurrently", "job_id", current.ID, "kept", *current.ProviderJobID, "orphaned", result.ProviderJobID)
			return current, nil
		}
		current.ProviderJobID = &result.ProviderJobID
		return s.apply(ctx, current, settled, "provider_job_id")
	})
	if err != nil {
		return nil, err
	}

	logger.Infow("job submitted", "job_id", job.ID, "provider_job_id", result.ProviderJobID, "status", updated.Status)
	return updated, nil
}

// settle turns a submit answer into the state to store. A terminal answer
// carries neither outputs nor error, so the provider is polled once for them.
// If that poll fails the job is stored as running and the next refresh retries.
func (s *JobService) settle(ctx context.Context, adapter provider.Adapter, job *model.Job, result *provider.SubmitResult) *provider.RefreshResult {
	if !result.Status.IsTerminal() {
		return &provider.RefreshResult{Status: result.Status, ProgressPct: result.ProgressPct}
	}

	pj := mappers.ProviderJobFromModel(job)
	pj.ProviderJobID = result.ProviderJobID
	refreshed, err := adapter.Refresh(ctx, pj)
	if err == nil && refreshed.Status.IsTerminal() {
		return refreshed
	}

	zap.S().Named("job_service").Warnw("provider finished the job at submit but the result is not available yet",
		"job_id", job.ID, "provider_job_id", result.ProviderJobID, "error", err)
	return &provider.RefreshResult{Status: api.JobStatusRunning, ProgressPct: result.ProgressPct}
}

// record writes a provider answer for job id inside a transaction. The row is
// read again under lock and left alone when a concurrent refresh already
// finished it.
func (s *JobService) record(ctx context.Context, id string, write func(ctx context.Context, current *model.Job) (*model.Job, error)) (*model.Job, error) {
	var updated *model.Job
	err := store.InTransaction(ctx, s.store, func(ctx context.Context) error {
		current, err := s.store.Job().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.JobStatus().IsTerminal() {
			updated = current
			return nil
		}
		updated, err = write(ctx, current)
		return err
	})
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrJobNotFound(id)
		}
		return nil, err
	}
	return updated, nil
}

// apply persists the fields of result that differ from job, plus any extra
// columns the caller already changed.
func (s *JobService) apply(ctx context.Context, job *model.Job, result *provider.RefreshResult, extra ...string) (*model.Job, error) {
	fields := append([]string{}, extra...)

	statusChanged := job.Status != string(result.Status)
	if statusChanged {
		job.Status = string(result.Status)
		fields = append(fields, "status")
	}
	if !reflect.DeepEqual(job.ProgressPct, result.ProgressPct) {
		job.ProgressPct = result.ProgressPct
		fields = append(fields, "progress_pct")
	}

	switch result.Status {
	case api.JobStatusSucceeded:
		job.Outputs = result.Outputs
		fields = append(fields, "outputs")
	case api.JobStatusFailed:
		job.SetError(failure(result.Error))
		fields = append(fields, "error")
	}

	if len(fields) == 0 {
		return job, nil
	}

	updated, err := s.store.Job().Update(ctx, *job, fields...)
	if err != nil {
		return nil, err
	}
	if statusChanged {
		metrics.IncreaseJobTransitionMetric(updated.Provider, updated.Status)
		zap.S().Named("job_service").Infow("job status changed", "job_id", updated.ID, "status", updated.Status)
	}
	return updated, nil
}

func failure(jobErr *api.JobError) *api.JobError {
	if jobErr == nil {
		return &api.JobError{Message: "job failed"}
	}
	return jobErr
}

func (s *JobService) RemixJob(ctx context.Context, id string, form mappers.JobRemixForm) (*model.Job, error) {
	source, adapter, err := s.derivable(ctx, id, operationRemix)
	if err != nil {
		return nil, err
	}
	remixer, ok := adapter.(provider.Remixer)
	if !ok {
		return nil, NewErrNotImplemented(adapter.ID(), operationRemix)
	}

	prompt := form.Prompt
	if prompt == "" {
		prompt = source.Prompt
	}

	result, err := remixer.Remix(ctx, mappers.ProviderJobFromModel(source), provider.RemixInput{Prompt: prompt})
	if err != nil {
		return nil, derivationError(err)
	}

	return s.createDerived(ctx, adapter, source, prompt, mappers.DerivedJobParams(source, nil), result)
}

func (s *JobService) ExtendJob(ctx context.Context, id string, form mappers.JobExtendForm) (*model.Job, error) {
	source, adapter, err := s.derivable(ctx, id, operationExtend)
	if err != nil {
		return nil, err
	}
	extender, ok := adapter.(provider.Extender)
	if !ok {
		return nil, NewErrNotImplemented(adapter.ID(), operationExtend)
	}

	prompt := form.Prompt
	if prompt == "" {
		prompt = source.Prompt
	}

	input := provider.ExtendInput{Prompt: prompt, SourceAssetIndex: form.SourceAssetIndex, Params: form.Params}
	result, err := extender.Extend(ctx, mappers.ProviderJobFromModel(source), input)
	if err != nil {
		return nil, derivationError(err)
	}

	params := mappers.DerivedJobParams(source, form.Params)
	params[mappers.ParamSourceAssetIndex] = form.SourceAssetIndex
	return s.createDerived(ctx, adapter, source, prompt, params, result)
}

// derivable loads the source of a remix or extend and checks, in order, that
// it is complete, that its provider supports the operation and that it was
// submitted.
func (s *JobService) derivable(ctx context.Context, id string, operation string) (*model.Job, provider.Adapter, error) {
	source, err := s.GetJob(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if source.JobStatus() != api.JobStatusSucceeded {
		return nil, nil, NewErrJobNotComplete(source.ID, source.JobStatus())
	}

	adapter, err := s.adapter(source)
	if err != nil {
		return nil, nil, err
	}

	capabilities := adapter.Metadata().Capabilities
	supported := capabilities.Remix
	if operation == operationExtend {
		supported = capabilities.Extend
	}
	if !supported {
		return nil, nil, NewErrUnsupportedOperation(adapter.ID(), operation)
	}

	if source.ProviderJobID == nil || *source.ProviderJobID == "" {
		return nil, nil, NewErrMissingProviderJob(source.ID)
	}
	return source, adapter, nil
}

func (s *JobService) createDerived(ctx context.Context, adapter provider.Adapter, source *model.Job, prompt string, params map[string]any, result *provider.SubmitResult) (*model.Job, error) {
	job := model.NewJob(api.Provider(source.Provider), prompt, params)
	job.ProviderJobID = &result.ProviderJobID

	settled := s.settle(ctx, adapter, job, result)
	job.Status = string(settled.Status)
	job.ProgressPct = settled.ProgressPct
	switch settled.Status {
	case api.JobStatusSucceeded:
		job.Outputs = settled.Outputs
	case api.JobStatusFailed:
		job.SetError(failure(settled.Error))
	}

	var created *model.Job
	err := store.InTransaction(ctx, s.store, func(ctx context.Context) error {
		// the source may have been deleted while the provider was working
		if _, err := s.store.Job().GetForUpdate(ctx, source.ID); err != nil {
			return err
		}
		var err error
		created, err = s.store.Job().Create(ctx, *job)
		return err
	})
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrJobNotFound(source.ID)
		}
		return nil, err
	}

	metrics.IncreaseJobsCreatedMetric(created.Provider)
	metrics.IncreaseJobTransitionMetric(created.Provider, created.Status)
	zap.S().Named("job_service").Infow("derived job created", "job_id", created.ID, "source_job_id", source.ID, "provider_job_id", result.ProviderJobID)
	return created, nil
}

// GetContent returns the bytes or the location of one output of a succeeded job.
func (s *JobService) GetContent(ctx context.Context, id string, assetIndex int) (*provider.Content, error) {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.JobStatus() != api.JobStatusSucceeded {
		return nil, NewErrJobNotComplete(job.ID, job.JobStatus())
	}

	adapter, err := s.adapter(job)
	if err != nil {
		return nil, err
	}

	content, err := adapter.Content(ctx, mappers.ProviderJobFromModel(job), assetIndex)
	if err != nil {
		if errors.Is(err, provider.ErrAssetNotFound) {
			return nil, NewErrAssetNotFound(job.ID, assetIndex)
		}
		zap.S().Named("job_service").Errorw("failed to fetch content", "job_id", job.ID, "asset", assetIndex, "error", err)
		return nil, err
	}
	return content, nil
}

// DeleteJob removes the job. Cleaning up on the provider side is best effort.
func (s *JobService) DeleteJob(ctx context.Context, id string) error {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return err
	}

	if adapter, err := s.adapter(job); err == nil {
		if err := adapter.Delete(ctx, mappers.ProviderJobFromModel(job)); err != nil {
			zap.S().Named("job_service").Warnw("failed to delete provider job", "job_id", job.ID, "error", err)
		}
	}

	if err := s.store.Job().Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return NewErrJobNotFound(id)
		}
		return err
	}
	zap.S().Named("job_service").Infow("job deleted", "job_id", id)
	return nil
}

func (s *JobService) adapter(job *model.Job) (provider.Adapter, error) {
	return s.providers.Get(api.Provider(job.Provider))
}

// rejection turns an error the provider blames on the request into the error
// stored on the job. Other errors yield nil.
func rejection(err error) *api.JobError {
	var invalid *provider.ErrInvalidParams
	if errors.As(err, &invalid) {
		return &api.JobError{Message: invalid.Error()}
	}
	var perr *provider.ErrProviderRequest
	if errors.As(err, &perr) && perr.Rejected() {
		return &api.JobError{Message: perr.Message, Raw: perr.Raw}
	}
	return nil
}

func derivationError(err error) error {
	if jobErr := rejection(err); jobErr != nil {
		return NewErrValidation("%s", jobErr.Message)
	}
	return err
}

type JobFilterFunc func(f *JobFilter)

type JobFilter struct {
	Provider string
	Status   string
	Query    string
}

func NewJobFilter(filters ...JobFilterFunc) *JobFilter {
	f := &JobFilter{}
	for _, fn := range filters {
		fn(f)
	}
	return f
}

func (f *JobFilter) WithOption(o JobFilterFunc) *JobFilter {
	o(f)
	return f
}

func WithProvider(provider string) JobFilterFunc {
	return func(f *JobFilter) {
		f.Provider = provider
	}
}

func WithStatus(status string) JobFilterFunc {
	return func(f *JobFilter) {
		f.Status = status
	}
}

func WithPromptQuery(q string) JobFilterFunc {
	return func(f *JobFilter) {
		f.Query = q
	}
}

func (f *JobFilter) toStoreFilter() *store.JobQueryFilter {
	sf := store.NewJobQueryFilter()
	if f == nil {
		return sf
	}
	if f.Provider != "" {
		sf = sf.ByProvider(f.Provider)
	}
	if f.Status != "" {
		sf = sf.ByStatus(f.Status)
	}
	if f.Query != "" {
		sf = sf.ByPromptLike(f.Query)
	}
	return sf
}
