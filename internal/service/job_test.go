package service_test

import (
	"context"
	"errors"
	"io"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	api "github.com/reelqueue/reelqueue/api/v1alpha1"
	"github.com/reelqueue/reelqueue/internal/provider"
	"github.com/reelqueue/reelqueue/internal/provider/registry"
	"github.com/reelqueue/reelqueue/internal/provider/sora"
	"github.com/reelqueue/reelqueue/internal/provider/veo"
	"github.com/reelqueue/reelqueue/internal/service"
	"github.com/reelqueue/reelqueue/internal/service/mappers"
	"github.com/reelqueue/reelqueue/internal/store"
	"github.com/reelqueue/reelqueue/internal/store/model"
)

var _ = Describe("job service", func() {
	var (
		s   store.Store
		srv *service.JobService
		ctx context.Context
	)

	BeforeEach(func() {
		ctx = context.TODO()
		s = newTestStore()
		srv = service.NewJobService(s, registry.NewWithAdapters(sora.NewStub(""), veo.NewStub("")))
	})

	AfterEach(func() {
		expectInvariants(s)
		_ = s.Close()
	})

	create := func(p api.Provider, prompt string) *model.Job {
		job, err := srv.CreateJob(ctx, mappers.JobCreateForm{Provider: p, Prompt: prompt})
		Expect(err).To(BeNil())
		return job
	}

	refreshN := func(id string, n int) *model.Job {
		var job *model.Job
		for i := 0; i < n; i++ {
			var err error
			job, err = srv.RefreshJob(ctx, id)
			Expect(err).To(BeNil())
		}
		return job
	}

	Context("providers", func() {
		It("lists provider metadata in a stable order", func() {
			infos := srv.ListProviders()
			Expect(infos).To(HaveLen(2))
			Expect(infos[0].Id).To(Equal(api.ProviderSora))
			Expect(infos[1].Id).To(Equal(api.ProviderVeo))
			Expect(infos[0].Stub).To(BeTrue())
		})
	})

	Context("create", func() {
		It("stores a queued job without provider job", func() {
			job := create(api.ProviderSora, "a cat")
			Expect(job.JobStatus()).To(Equal(api.JobStatusQueued))
			Expect(job.ProviderJobID).To(BeNil())
			Expect(job.OutputList()).To(BeEmpty())
		})

		It("folds mode and assets into params", func() {
			img := "aGVsbG8="
			job, err := srv.CreateJob(ctx, mappers.JobCreateForm{
				Provider: api.ProviderVeo,
				Prompt:   "a dog",
				Mode:     provider.ModeImageToVideo,
				Params:   map[string]any{"durationSeconds": 4},
				Assets:   []api.InputAsset{{Kind: "image/png", Role: "first_frame", BytesBase64: &img}},
			})
			Expect(err).To(BeNil())

			stored, err := srv.GetJob(ctx, job.ID)
			Expect(err).To(BeNil())
			Expect(stored.ParamMap()).To(HaveKeyWithValue("mode", provider.ModeImageToVideo))
			Expect(stored.ParamMap()).To(HaveKeyWithValue("durationSeconds", BeNumerically("==", 4)))
			Expect(stored.ParamMap()["assets"]).To(HaveLen(1))
		})

		It("rejects unknown providers", func() {
			_, err := srv.CreateJob(ctx, mappers.JobCreateForm{Provider: "runway", Prompt: "x"})
			var verr *service.ErrValidation
			Expect(errors.As(err, &verr)).To(BeTrue())
		})

		It("rejects params the provider does not accept", func() {
			_, err := srv.CreateJob(ctx, mappers.JobCreateForm{
				Provider: api.ProviderSora,
				Prompt:   "x",
				Params:   map[string]any{"seconds": 7},
			})
			var verr *service.ErrValidation
			Expect(errors.As(err, &verr)).To(BeTrue())
		})
	})

	Context("refresh", func() {
		It("submits then polls a sora job until it succeeds", func() {
			job := create(api.ProviderSora, "a cat")

			first := refreshN(job.ID, 1)
			Expect(first.ProviderJobID).NotTo(BeNil())
			Expect(first.JobStatus()).To(Equal(api.JobStatusRunning))
			providerJobID := *first.ProviderJobID

			second := refreshN(job.ID, 1)
			Expect(second.JobStatus()).To(Equal(api.JobStatusRunning))
			Expect(*second.ProviderJobID).To(Equal(providerJobID))

			third := refreshN(job.ID, 1)
			Expect(third.JobStatus()).To(Equal(api.JobStatusSucceeded))
			Expect(third.OutputList()).To(HaveLen(1))
			Expect(third.OutputList()[0].Kind).To(Equal("video/mp4"))
			Expect(*third.ProgressPct).To(Equal(100))
			Expect(*third.ProviderJobID).To(Equal(providerJobID))
		})

		It("leaves terminal jobs alone", func() {
			job := create(api.ProviderSora, "a cat")
			done := refreshN(job.ID, 3)

			again := refreshN(job.ID, 2)
			Expect(again.JobStatus()).To(Equal(api.JobStatusSucceeded))
			Expect(again.UpdatedAt).To(BeTemporally("==", done.UpdatedAt))
			Expect(*again.ProviderJobID).To(Equal(*done.ProviderJobID))
		})

		It("reaches success on the fourth veo call and refuses remix", func() {
			job := create(api.ProviderVeo, "a dog")

			for i := 0; i < 3; i++ {
				Expect(refreshN(job.ID, 1).JobStatus()).To(Equal(api.JobStatusRunning))
			}
			done := refreshN(job.ID, 1)
			Expect(done.JobStatus()).To(Equal(api.JobStatusSucceeded))
			Expect(done.ProgressPct).To(BeNil())

			_, err := srv.RemixJob(ctx, job.ID, mappers.JobRemixForm{})
			var unsupported *service.ErrUnsupportedOperation
			Expect(errors.As(err, &unsupported)).To(BeTrue())
		})

		It("returns not found for unknown jobs", func() {
			_, err := srv.RefreshJob(ctx, "01HZZZZZZZZZZZZZZZZZZZZZZZ")
			var notFound *service.ErrResourceNotFound
			Expect(errors.As(err, &notFound)).To(BeTrue())
		})
	})

	Context("provider answers", func() {
		var fake *fakeAdapter

		BeforeEach(func() {
			fake = newFakeAdapter(api.ProviderSora)
			srv = service.NewJobService(s, registry.NewWithAdapters(fake))
		})

		It("fails the job when the provider rejects it", func() {
			fake.submitErr = &provider.ErrProviderRequest{Provider: "sora", Operation: "submit", StatusCode: 400, Message: "prompt violates policy", Raw: map[string]any{"code": "moderation"}}
			job := create(api.ProviderSora, "something bad")

			failed, err := srv.RefreshJob(ctx, job.ID)
			Expect(err).To(BeNil())
			Expect(failed.JobStatus()).To(Equal(api.JobStatusFailed))
			Expect(failed.ErrorData().Message).To(Equal("prompt violates policy"))
			Expect(failed.ProviderJobID).To(BeNil())

			_, err = srv.RefreshJob(ctx, job.ID)
			Expect(err).To(BeNil())
			Expect(fake.submits).To(Equal(1))
		})

		It("keeps the job untouched on provider outages", func() {
			fake.submitErr = &provider.ErrProviderRequest{Provider: "sora", Operation: "submit", StatusCode: 503, Message: "overloaded"}
			job := create(api.ProviderSora, "a cat")

			_, err := srv.RefreshJob(ctx, job.ID)
			Expect(err).NotTo(BeNil())

			stored, err := srv.GetJob(ctx, job.ID)
			Expect(err).To(BeNil())
			Expect(stored.JobStatus()).To(Equal(api.JobStatusQueued))
			Expect(stored.ErrorData()).To(BeNil())
		})

		It("lets a rate limited job be submitted again", func() {
			fake.submitErr = &provider.ErrProviderRequest{Provider: "sora", Operation: "submit", StatusCode: 429, Message: "rate limit reached"}
			job := create(api.ProviderSora, "a cat")

			_, err := srv.RefreshJob(ctx, job.ID)
			Expect(err).NotTo(BeNil())

			stored, err := srv.GetJob(ctx, job.ID)
			Expect(err).To(BeNil())
			Expect(stored.JobStatus()).To(Equal(api.JobStatusQueued))
			Expect(stored.ErrorData()).To(BeNil())

			fake.submitErr = nil
			submitted, err := srv.RefreshJob(ctx, job.ID)
			Expect(err).To(BeNil())
			Expect(submitted.ProviderJobID).NotTo(BeNil())
			Expect(*submitted.ProviderJobID).To(Equal("fake-1"))
			Expect(fake.submits).To(Equal(2))
		})

		It("fetches outputs when the provider finishes at submit", func() {
			fake.submitted = &provider.SubmitResult{ProviderJobID: "fake-1", Status: api.JobStatusSucceeded}
			fake.refresh = &provider.RefreshResult{
				Status:  api.JobStatusSucceeded,
				Outputs: []api.Asset{{Kind: "video/mp4", Uri: "https://cdn.example/v.mp4"}},
			}
			job := create(api.ProviderSora, "a cat")

			done, err := srv.RefreshJob(ctx, job.ID)
			Expect(err).To(BeNil())
			Expect(done.JobStatus()).To(Equal(api.JobStatusSucceeded))
			Expect(*done.ProviderJobID).To(Equal("fake-1"))
			Expect(done.OutputList()).To(HaveLen(1))
			Expect(fake.refreshes).To(Equal(1))
		})

		It("stores the provider error when the provider fails at submit", func() {
			fake.submitted = &provider.SubmitResult{ProviderJobID: "fake-1", Status: api.JobStatusFailed}
			fake.refresh = &provider.RefreshResult{Status: api.JobStatusFailed, Error: &api.JobError{Message: "moderation blocked"}}
			job := create(api.ProviderSora, "a cat")

			failed, err := srv.RefreshJob(ctx, job.ID)
			Expect(err).To(BeNil())
			Expect(failed.JobStatus()).To(Equal(api.JobStatusFailed))
			Expect(failed.ErrorData().Message).To(Equal("moderation blocked"))
		})

		It("keeps polling when a finished submit cannot be fetched yet", func() {
			fake.submitted = &provider.SubmitResult{ProviderJobID: "fake-1", Status: api.JobStatusSucceeded}
			fake.refreshErr = errors.New("connection reset")
			job := create(api.ProviderSora, "a cat")

			pending, err := srv.RefreshJob(ctx, job.ID)
			Expect(err).To(BeNil())
			Expect(pending.JobStatus()).To(Equal(api.JobStatusRunning))
			Expect(*pending.ProviderJobID).To(Equal("fake-1"))
			Expect(pending.OutputList()).To(BeEmpty())

			fake.refreshErr = nil
			fake.refresh = &provider.RefreshResult{
				Status:  api.JobStatusSucceeded,
				Outputs: []api.Asset{{Kind: "video/mp4", Uri: "https://cdn.example/v.mp4"}},
			}
			done, err := srv.RefreshJob(ctx, job.ID)
			Expect(err).To(BeNil())
			Expect(done.JobStatus()).To(Equal(api.JobStatusSucceeded))
			Expect(fake.submits).To(Equal(1))
		})

		It("stores a default message when a failure carries none", func() {
			fake.refresh = &provider.RefreshResult{Status: api.JobStatusFailed}
			job := create(api.ProviderSora, "a cat")
			refreshN(job.ID, 1)

			failed := refreshN(job.ID, 1)
			Expect(failed.JobStatus()).To(Equal(api.JobStatusFailed))
			Expect(failed.ErrorData()).NotTo(BeNil())
			Expect(failed.OutputList()).To(BeEmpty())
		})

		It("still deletes the row when the provider delete fails", func() {
			job := create(api.ProviderSora, "a cat")
			Expect(srv.DeleteJob(ctx, job.ID)).To(Succeed())
			_, err := srv.GetJob(ctx, job.ID)
			var notFound *service.ErrResourceNotFound
			Expect(errors.As(err, &notFound)).To(BeTrue())
		})
	})

	Context("remix", func() {
		It("forks a new job from a finished sora job", func() {
			source := create(api.ProviderSora, "a cat")
			source = refreshN(source.ID, 3)

			remixed, err := srv.RemixJob(ctx, source.ID, mappers.JobRemixForm{Prompt: "a cat at night"})
			Expect(err).To(BeNil())
			Expect(remixed.ID).NotTo(Equal(source.ID))
			Expect(remixed.Provider).To(Equal(source.Provider))
			Expect(remixed.Prompt).To(Equal("a cat at night"))
			Expect(remixed.ProviderJobID).NotTo(BeNil())
			Expect(*remixed.ProviderJobID).NotTo(Equal(*source.ProviderJobID))
			Expect(remixed.ParamMap()).To(HaveKeyWithValue("sourceJobId", source.ID))
			Expect(remixed.ParamMap()).To(HaveKeyWithValue("sourceProviderJobId", *source.ProviderJobID))

			after, err := srv.GetJob(ctx, source.ID)
			Expect(err).To(BeNil())
			Expect(after.UpdatedAt).To(BeTemporally("==", source.UpdatedAt))
			Expect(after.Prompt).To(Equal("a cat"))
		})

		It("defaults to the source prompt", func() {
			source := create(api.ProviderSora, "a cat")
			refreshN(source.ID, 3)

			remixed, err := srv.RemixJob(ctx, source.ID, mappers.JobRemixForm{})
			Expect(err).To(BeNil())
			Expect(remixed.Prompt).To(Equal("a cat"))
		})

		It("needs a succeeded source whatever the provider", func() {
			for _, p := range []api.Provider{api.ProviderSora, api.ProviderVeo} {
				source := create(p, "x")
				_, err := srv.RemixJob(ctx, source.ID, mappers.JobRemixForm{})
				var notComplete *service.ErrJobNotComplete
				Expect(errors.As(err, &notComplete)).To(BeTrue(), string(p))

				_, err = srv.ExtendJob(ctx, source.ID, mappers.JobExtendForm{})
				Expect(errors.As(err, &notComplete)).To(BeTrue(), string(p))
			}
		})

		It("needs the provider job", func() {
			job := model.NewJob(api.ProviderSora, "imported", nil)
			job.Status = string(api.JobStatusSucceeded)
			job = insertJob(s, job)

			_, err := srv.RemixJob(ctx, job.ID, mappers.JobRemixForm{})
			var missing *service.ErrMissingProviderJob
			Expect(errors.As(err, &missing)).To(BeTrue())
		})

		It("reports adapters advertising remix without implementing it", func() {
			fake := newFakeAdapter(api.ProviderSora)
			fake.info.Capabilities.Remix = true
			srv = service.NewJobService(s, registry.NewWithAdapters(fake))

			job := model.NewJob(api.ProviderSora, "x", nil)
			job.Status = string(api.JobStatusSucceeded)
			id := "fake-1"
			job.ProviderJobID = &id
			job = insertJob(s, job)

			_, err := srv.RemixJob(ctx, job.ID, mappers.JobRemixForm{})
			var notImplemented *service.ErrNotImplemented
			Expect(errors.As(err, &notImplemented)).To(BeTrue())
		})

		It("returns not found before anything else", func() {
			_, err := srv.RemixJob(ctx, "01HZZZZZZZZZZZZZZZZZZZZZZZ", mappers.JobRemixForm{})
			var notFound *service.ErrResourceNotFound
			Expect(errors.As(err, &notFound)).To(BeTrue())
		})
	})

	Context("extend", func() {
		It("forks a new veo job from an output", func() {
			source := create(api.ProviderVeo, "a dog")
			source = refreshN(source.ID, 4)

			extended, err := srv.ExtendJob(ctx, source.ID, mappers.JobExtendForm{Prompt: "the dog keeps running", Params: map[string]any{"durationSeconds": 6}})
			Expect(err).To(BeNil())
			Expect(extended.JobStatus()).To(Equal(api.JobStatusRunning))
			Expect(extended.Prompt).To(Equal("the dog keeps running"))
			Expect(extended.ParamMap()).To(HaveKeyWithValue("sourceJobId", source.ID))
			Expect(extended.ParamMap()).To(HaveKeyWithValue("sourceAssetIndex", BeNumerically("==", 0)))
			Expect(extended.ParamMap()).To(HaveKeyWithValue("durationSeconds", BeNumerically("==", 6)))

			done := refreshN(extended.ID, 3)
			Expect(done.JobStatus()).To(Equal(api.JobStatusSucceeded))
		})

		It("refuses sora jobs", func() {
			source := create(api.ProviderSora, "a cat")
			refreshN(source.ID, 3)

			_, err := srv.ExtendJob(ctx, source.ID, mappers.JobExtendForm{})
			var unsupported *service.ErrUnsupportedOperation
			Expect(errors.As(err, &unsupported)).To(BeTrue())
		})

		It("rejects a missing source output", func() {
			source := create(api.ProviderVeo, "a dog")
			refreshN(source.ID, 4)

			_, err := srv.ExtendJob(ctx, source.ID, mappers.JobExtendForm{SourceAssetIndex: 3})
			var verr *service.ErrValidation
			Expect(errors.As(err, &verr)).To(BeTrue())
		})
	})

	Context("content", func() {
		It("needs a succeeded job", func() {
			job := create(api.ProviderSora, "a cat")
			_, err := srv.GetContent(ctx, job.ID, 0)
			var notComplete *service.ErrJobNotComplete
			Expect(errors.As(err, &notComplete)).To(BeTrue())
		})

		It("streams the first output and rejects other indexes", func() {
			job := create(api.ProviderSora, "a cat")
			refreshN(job.ID, 3)

			content, err := srv.GetContent(ctx, job.ID, 0)
			Expect(err).To(BeNil())
			data, err := io.ReadAll(content.Body)
			Expect(err).To(BeNil())
			Expect(data).To(Equal(provider.StubVideo()))

			for _, idx := range []int{1, 7, -1} {
				_, err := srv.GetContent(ctx, job.ID, idx)
				var notFound *service.ErrResourceNotFound
				Expect(errors.As(err, &notFound)).To(BeTrue())
			}
		})
	})

	Context("delete", func() {
		It("removes the job", func() {
			job := create(api.ProviderVeo, "a dog")
			Expect(srv.DeleteJob(ctx, job.ID)).To(Succeed())

			_, err := srv.GetJob(ctx, job.ID)
			var notFound *service.ErrResourceNotFound
			Expect(errors.As(err, &notFound)).To(BeTrue())
		})

		It("returns not found for unknown jobs", func() {
			err := srv.DeleteJob(ctx, "01HZZZZZZZZZZZZZZZZZZZZZZZ")
			var notFound *service.ErrResourceNotFound
			Expect(errors.As(err, &notFound)).To(BeTrue())
		})
	})

	Context("list", func() {
		BeforeEach(func() {
			for _, prompt := range []string{"a cat", "a dog", "a CAT on a roof", "waves", "100% fun"} {
				create(api.ProviderSora, prompt)
			}
			create(api.ProviderVeo, "a veo cat")
		})

		It("pages newest first with a cursor", func() {
			page, err := srv.ListJobs(ctx, service.NewJobFilter(), 4, "")
			Expect(err).To(BeNil())
			Expect(page.Jobs).To(HaveLen(4))
			Expect(page.Total).To(BeEquivalentTo(6))
			Expect(page.NextCursor).NotTo(BeNil())
			Expect(page.Jobs[0].Prompt).To(Equal("a veo cat"))
			for i := 1; i < len(page.Jobs); i++ {
				Expect(page.Jobs[i-1].ID > page.Jobs[i].ID).To(BeTrue())
			}

			next, err := srv.ListJobs(ctx, service.NewJobFilter(), 4, *page.NextCursor)
			Expect(err).To(BeNil())
			Expect(next.Jobs).To(HaveLen(2))
			Expect(next.Total).To(BeEquivalentTo(6))
			Expect(next.NextCursor).To(BeNil())
			Expect(next.Jobs[0].ID < page.Jobs[3].ID).To(BeTrue())
		})

		It("returns no cursor when the page holds everything", func() {
			page, err := srv.ListJobs(ctx, service.NewJobFilter(), 6, "")
			Expect(err).To(BeNil())
			Expect(page.Jobs).To(HaveLen(6))
			Expect(page.NextCursor).To(BeNil())
		})

		It("filters by provider, status and prompt", func() {
			page, err := srv.ListJobs(ctx, service.NewJobFilter(service.WithProvider("veo")), 20, "")
			Expect(err).To(BeNil())
			Expect(page.Total).To(BeEquivalentTo(1))

			page, err = srv.ListJobs(ctx, service.NewJobFilter(service.WithPromptQuery("cat")), 20, "")
			Expect(err).To(BeNil())
			Expect(page.Total).To(BeEquivalentTo(3))

			page, err = srv.ListJobs(ctx, service.NewJobFilter(service.WithPromptQuery("%")), 20, "")
			Expect(err).To(BeNil())
			Expect(page.Jobs).To(HaveLen(1))
			Expect(page.Jobs[0].Prompt).To(Equal("100% fun"))

			page, err = srv.ListJobs(ctx, service.NewJobFilter(service.WithStatus("succeeded"), service.WithProvider("sora")), 20, "")
			Expect(err).To(BeNil())
			Expect(page.Jobs).To(BeEmpty())
		})

		It("rejects malformed cursors", func() {
			_, err := srv.ListJobs(ctx, service.NewJobFilter(), 20, "not-a-cursor")
			var verr *service.ErrValidation
			Expect(errors.As(err, &verr)).To(BeTrue())
		})
	})
})
