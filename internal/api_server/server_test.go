package apiserver_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	api "github.com/reelqueue/reelqueue/api/v1alpha1"
	apiserver "github.com/reelqueue/reelqueue/internal/api_server"
	"github.com/reelqueue/reelqueue/internal/config"
	"github.com/reelqueue/reelqueue/internal/provider/registry"
	"github.com/reelqueue/reelqueue/internal/provider/sora"
	"github.com/reelqueue/reelqueue/internal/provider/veo"
	"github.com/reelqueue/reelqueue/internal/store"
	"github.com/reelqueue/reelqueue/pkg/middleware"
)

var _ = Describe("api server", func() {
	var (
		cfg *config.Config
		s   store.Store
		srv *apiserver.Server
	)

	BeforeEach(func() {
		cfg = config.NewDefault()
		cfg.Database.Type = "sqlite"
		cfg.Database.Name = fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
		cfg.Service.CorsOrigins = []string{"https://app.example.com"}

		db, err := store.InitDB(cfg)
		Expect(err).To(BeNil())
		s = store.NewStore(db)
		Expect(s.InitialMigration(context.TODO())).To(Succeed())

		srv = apiserver.New(cfg, s, nil, registry.NewWithAdapters(sora.NewStub(""), veo.NewStub("")))
	})

	AfterEach(func() {
		_ = s.Close()
	})

	It("serves the API under /api and echoes the request id", func() {
		ts := httptest.NewServer(srv.Handler(nil))
		defer ts.Close()

		req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/healthz", nil)
		Expect(err).To(BeNil())
		req.Header.Set(middleware.RequestIDHeader, "req-1")
		resp, err := http.DefaultClient.Do(req)
		Expect(err).To(BeNil())
		defer resp.Body.Close()

		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(resp.Header.Get(middleware.RequestIDHeader)).To(Equal("req-1"))
	})

	It("answers unknown paths with a JSON error", func() {
		ts := httptest.NewServer(srv.Handler(nil))
		defer ts.Close()

		resp, err := http.Get(ts.URL + "/healthz")
		Expect(err).To(BeNil())
		defer resp.Body.Close()

		Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		var e api.Error
		Expect(json.NewDecoder(resp.Body).Decode(&e)).To(Succeed())
		Expect(e.Error.Code).To(Equal(api.ErrorCodeNotFound))
	})

	It("allows configured origins", func() {
		ts := httptest.NewServer(srv.Handler(nil))
		defer ts.Close()

		req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/providers", nil)
		Expect(err).To(BeNil())
		req.Header.Set("Origin", "https://app.example.com")
		resp, err := http.DefaultClient.Do(req)
		Expect(err).To(BeNil())
		defer resp.Body.Close()

		Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("https://app.example.com"))
	})

	It("stops serving when the context is canceled", func() {
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).To(BeNil())
		running := apiserver.New(cfg, s, listener, registry.NewWithAdapters(sora.NewStub(""), veo.NewStub("")))

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			defer GinkgoRecover()
			done <- running.Run(ctx)
		}()

		Eventually(func() error {
			resp, err := http.Get("http://" + listener.Addr().String() + "/api/healthz")
			if err == nil {
				_ = resp.Body.Close()
			}
			return err
		}, 5*time.Second, 50*time.Millisecond).Should(Succeed())

		cancel()
		Eventually(done, 10*time.Second).Should(Receive(BeNil()))
	})
})
