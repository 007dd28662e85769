package service_test

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	. "github.com/onsi/gomega"
	api "github.com/reelqueue/reelqueue/api/v1alpha1"
	"github.com/reelqueue/reelqueue/internal/config"
	"github.com/reelqueue/reelqueue/internal/provider"
	"github.com/reelqueue/reelqueue/internal/store"
	"github.com/reelqueue/reelqueue/internal/store/model"
)

func newTestStore() store.Store {
	cfg := config.NewDefault()
	cfg.Database.Type = "sqlite"
	cfg.Database.Name = fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())

	db, err := store.InitDB(cfg)
	Expect(err).To(BeNil())

	s := store.NewStore(db)
	Expect(s.InitialMigration(context.TODO())).To(Succeed())
	return s
}

// expectInvariants checks the relations every stored job must satisfy.
func expectInvariants(s store.Store) {
	jobs, err := s.Job().List(context.TODO(), nil, nil)
	Expect(err).To(BeNil())
	for _, j := range jobs {
		if len(j.OutputList()) > 0 {
			Expect(j.JobStatus()).To(Equal(api.JobStatusSucceeded), j.ID)
		}
		if j.ErrorData() != nil {
			Expect(j.JobStatus()).To(Equal(api.JobStatusFailed), j.ID)
		}
	}
}

// fakeAdapter lets tests control what the provider answers.
type fakeAdapter struct {
	info       api.ProviderInfo
	submitErr  error
	submitted  *provider.SubmitResult
	refresh    *provider.RefreshResult
	refreshErr error
	submits    int
	refreshes  int
}

func newFakeAdapter(id api.Provider) *fakeAdapter {
	return &fakeAdapter{info: api.ProviderInfo{Id: id, Label: "fake", Stub: true}}
}

func (f *fakeAdapter) ID() api.Provider {
	return f.info.Id
}

func (f *fakeAdapter) Metadata() api.ProviderInfo {
	return f.info
}

func (f *fakeAdapter) ValidateParams(map[string]any) error {
	return nil
}

func (f *fakeAdapter) Submit(context.Context, provider.Job) (*provider.SubmitResult, error) {
	f.submits++
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	if f.submitted != nil {
		return f.submitted, nil
	}
	return &provider.SubmitResult{ProviderJobID: "fake-1", Status: api.JobStatusQueued}, nil
}

func (f *fakeAdapter) Refresh(context.Context, provider.Job) (*provider.RefreshResult, error) {
	f.refreshes++
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	if f.refresh != nil {
		return f.refresh, nil
	}
	return &provider.RefreshResult{Status: api.JobStatusRunning}, nil
}

func (f *fakeAdapter) Content(_ context.Context, job provider.Job, index int) (*provider.Content, error) {
	return nil, provider.NewErrAssetNotFound(job.ID, index)
}

func (f *fakeAdapter) Delete(context.Context, provider.Job) error {
	return fmt.Errorf("provider unavailable")
}

func insertJob(s store.Store, job *model.Job) *model.Job {
	created, err := s.Job().Create(context.TODO(), *job)
	Expect(err).To(BeNil())
	return created
}
