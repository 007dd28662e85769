package sora_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	api "github.com/reelqueue/reelqueue/api/v1alpha1"
	"github.com/reelqueue/reelqueue/internal/config"
	"github.com/reelqueue/reelqueue/internal/provider"
	"github.com/reelqueue/reelqueue/internal/provider/sora"
)

var _ = Describe("sora client", func() {
	var (
		server  *httptest.Server
		handler http.HandlerFunc
		client  *sora.Client
		ctx     context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handler(w, r)
		}))
		client = sora.NewClient(config.SoraConfig{
			APIKey:  "sk-test",
			BaseURL: server.URL + "/v1/",
			Model:   "sora-2",
		}, 5*time.Second)
	})

	AfterEach(func() {
		server.Close()
	})

	writeJSON := func(w http.ResponseWriter, status int, body any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}

	Describe("Metadata", func() {
		It("advertises remix only", func() {
			md := client.Metadata()
			Expect(md.Id).To(Equal(api.ProviderSora))
			Expect(md.Capabilities.Remix).To(BeTrue())
			Expect(md.Capabilities.Extend).To(BeFalse())
			Expect(md.Stub).To(BeFalse())
		})
	})

	Describe("Submit", func() {
		It("posts a multipart form with the reference image", func() {
			image := base64.StdEncoding.EncodeToString([]byte("png-bytes"))
			handler = func(w http.ResponseWriter, r *http.Request) {
				Expect(r.Method).To(Equal(http.MethodPost))
				Expect(r.URL.Path).To(Equal("/v1/videos"))
				Expect(r.Header.Get("Authorization")).To(Equal("Bearer sk-test"))

				Expect(r.ParseMultipartForm(1 << 20)).To(Succeed())
				Expect(r.FormValue("prompt")).To(Equal("a cat"))
				Expect(r.FormValue("model")).To(Equal("sora-2-pro"))
				Expect(r.FormValue("seconds")).To(Equal("8"))
				Expect(r.FormValue("size")).To(Equal("1280x720"))

				file, header, err := r.FormFile("input_reference")
				Expect(err).To(BeNil())
				defer file.Close()
				Expect(header.Header.Get("Content-Type")).To(Equal("image/png"))
				data, _ := io.ReadAll(file)
				Expect(string(data)).To(Equal("png-bytes"))

				writeJSON(w, http.StatusOK, map[string]any{"id": "video_1", "object": "video", "status": "queued", "progress": 0})
			}

			result, err := client.Submit(ctx, provider.Job{
				ID:     "job-1",
				Prompt: "a cat",
				Params: map[string]any{
					"model":   "sora-2-pro",
					"seconds": 8,
					"size":    "1280x720",
					"assets": []any{
						map[string]any{"kind": "image/png", "bytesBase64": image},
					},
				},
			})
			Expect(err).To(BeNil())
			Expect(result.ProviderJobID).To(Equal("video_1"))
			Expect(result.Status).To(Equal(api.JobStatusQueued))
			Expect(*result.ProgressPct).To(Equal(0))
		})

		It("surfaces the provider validation message", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusBadRequest, map[string]any{
					"error": map[string]any{"message": "Invalid size", "type": "invalid_request_error"},
				})
			}

			_, err := client.Submit(ctx, provider.Job{ID: "job-1", Prompt: "a cat"})
			var perr *provider.ErrProviderRequest
			Expect(errors.As(err, &perr)).To(BeTrue())
			Expect(perr.Message).To(Equal("Invalid size"))
			Expect(perr.Rejected()).To(BeTrue())
		})

		It("rejects invalid params before calling the provider", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				Fail("provider must not be called")
			}

			_, err := client.Submit(ctx, provider.Job{ID: "job-1", Prompt: "a cat", Params: map[string]any{"seconds": "7"}})
			var invalid *provider.ErrInvalidParams
			Expect(errors.As(err, &invalid)).To(BeTrue())
		})
	})

	Describe("Refresh", func() {
		It("maps a running video", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				Expect(r.Method).To(Equal(http.MethodGet))
				Expect(r.URL.Path).To(Equal("/v1/videos/video_1"))
				writeJSON(w, http.StatusOK, map[string]any{"id": "video_1", "status": "in_progress", "progress": 42})
			}

			result, err := client.Refresh(ctx, provider.Job{ID: "job-1", ProviderJobID: "video_1"})
			Expect(err).To(BeNil())
			Expect(result.Status).To(Equal(api.JobStatusRunning))
			Expect(*result.ProgressPct).To(Equal(42))
			Expect(result.Outputs).To(BeEmpty())
			Expect(result.Error).To(BeNil())
		})

		It("returns the output of a completed video", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, map[string]any{"id": "video_1", "status": "completed", "progress": 100})
			}

			result, err := client.Refresh(ctx, provider.Job{ID: "job-1", ProviderJobID: "video_1"})
			Expect(err).To(BeNil())
			Expect(result.Status).To(Equal(api.JobStatusSucceeded))
			Expect(result.Outputs).To(ConsistOf(api.Asset{Kind: "video/mp4", Uri: "sora://video_1/video"}))
		})

		It("returns the error of a failed video", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, map[string]any{
					"id":     "video_1",
					"status": "failed",
					"error":  map[string]any{"code": "moderation_blocked", "message": "blocked by moderation"},
				})
			}

			result, err := client.Refresh(ctx, provider.Job{ID: "job-1", ProviderJobID: "video_1"})
			Expect(err).To(BeNil())
			Expect(result.Status).To(Equal(api.JobStatusFailed))
			Expect(result.Error.Message).To(Equal("blocked by moderation"))
			Expect(result.Error.Raw).NotTo(BeNil())
			Expect(result.Outputs).To(BeEmpty())
		})

		It("reports a malformed body", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("not json"))
			}

			_, err := client.Refresh(ctx, provider.Job{ID: "job-1", ProviderJobID: "video_1"})
			var perr *provider.ErrProviderRequest
			Expect(errors.As(err, &perr)).To(BeTrue())
			Expect(perr.Rejected()).To(BeFalse())
		})
	})

	Describe("Content", func() {
		job := provider.Job{
			ID:            "job-1",
			ProviderJobID: "video_1",
			Status:        api.JobStatusSucceeded,
			Outputs:       []api.Asset{{Kind: "video/mp4", Uri: "sora://video_1/video"}},
		}

		It("streams the video", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				Expect(r.URL.Path).To(Equal("/v1/videos/video_1/content"))
				w.Header().Set("Content-Type", "video/mp4")
				_, _ = w.Write([]byte("mp4"))
			}

			content, err := client.Content(ctx, job, 0)
			Expect(err).To(BeNil())
			Expect(content.IsRedirect()).To(BeFalse())
			Expect(content.ContentType).To(Equal("video/mp4"))
			data, _ := io.ReadAll(content.Body)
			Expect(content.Body.Close()).To(Succeed())
			Expect(string(data)).To(Equal("mp4"))
		})

		It("fails for an out of range asset", func() {
			_, err := client.Content(ctx, job, 1)
			Expect(errors.Is(err, provider.ErrAssetNotFound)).To(BeTrue())
		})

		It("maps an upstream 404 to a missing asset", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			}
			_, err := client.Content(ctx, job, 0)
			Expect(errors.Is(err, provider.ErrAssetNotFound)).To(BeTrue())
		})
	})

	Describe("Remix", func() {
		It("posts the prompt to the remix endpoint", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				Expect(r.Method).To(Equal(http.MethodPost))
				Expect(r.URL.Path).To(Equal("/v1/videos/video_1/remix"))
				var body map[string]string
				Expect(json.NewDecoder(r.Body).Decode(&body)).To(Succeed())
				Expect(body["prompt"]).To(Equal("make it night"))
				writeJSON(w, http.StatusOK, map[string]any{"id": "video_2", "status": "queued", "remixed_from_video_id": "video_1"})
			}

			result, err := client.Remix(ctx, provider.Job{ID: "job-1", ProviderJobID: "video_1"}, provider.RemixInput{Prompt: "make it night"})
			Expect(err).To(BeNil())
			Expect(result.ProviderJobID).To(Equal("video_2"))
			Expect(result.Status).To(Equal(api.JobStatusQueued))
		})
	})

	Describe("Delete", func() {
		It("ignores videos already gone", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				Expect(r.Method).To(Equal(http.MethodDelete))
				w.WriteHeader(http.StatusNotFound)
			}
			Expect(client.Delete(ctx, provider.Job{ID: "job-1", ProviderJobID: "video_1"})).To(Succeed())
		})

		It("reports other failures", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			}
			Expect(client.Delete(ctx, provider.Job{ID: "job-1", ProviderJobID: "video_1"})).NotTo(Succeed())
		})
	})
})
