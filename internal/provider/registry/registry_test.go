package registry_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	api "github.com/reelqueue/reelqueue/api/v1alpha1"
	"github.com/reelqueue/reelqueue/internal/config"
	"github.com/reelqueue/reelqueue/internal/provider/registry"
	"github.com/reelqueue/reelqueue/internal/provider/sora"
	"github.com/reelqueue/reelqueue/internal/provider/veo"
)

var _ = Describe("registry", func() {
	var cfg *config.Config

	BeforeEach(func() {
		cfg = config.NewDefault()
		cfg.Providers.Sora.APIKey = ""
		cfg.Providers.Veo.ProjectID = ""
		cfg.Providers.Veo.ServiceAccountJSON = ""
		cfg.Providers.Veo.ServiceAccountFile = ""
	})

	It("falls back to stubs without credentials", func() {
		r, err := registry.New(cfg)
		Expect(err).To(BeNil())

		a, err := r.Get(api.ProviderSora)
		Expect(err).To(BeNil())
		Expect(a).To(BeAssignableToTypeOf(&sora.Stub{}))

		a, err = r.Get(api.ProviderVeo)
		Expect(err).To(BeNil())
		Expect(a).To(BeAssignableToTypeOf(&veo.Stub{}))
	})

	It("builds the real sora client when a key is set", func() {
		cfg.Providers.Sora.APIKey = "sk-test"
		r, err := registry.New(cfg)
		Expect(err).To(BeNil())

		a, _ := r.Get(api.ProviderSora)
		Expect(a).To(BeAssignableToTypeOf(&sora.Client{}))
		Expect(a.Metadata().Stub).To(BeFalse())
	})

	It("honours forced stubs", func() {
		cfg.Providers.Sora.APIKey = "sk-test"
		cfg.Providers.ForceStub = true
		r, err := registry.New(cfg)
		Expect(err).To(BeNil())

		a, _ := r.Get(api.ProviderSora)
		Expect(a.Metadata().Stub).To(BeTrue())
	})

	It("fails on unusable veo credentials", func() {
		cfg.Providers.Veo.ProjectID = "p"
		cfg.Providers.Veo.ServiceAccountJSON = "{not json"
		_, err := registry.New(cfg)
		Expect(err).NotTo(BeNil())
	})

	It("returns one instance per provider in a stable order", func() {
		r, err := registry.New(cfg)
		Expect(err).To(BeNil())

		list := r.List()
		Expect(list).To(HaveLen(2))
		Expect(list[0].ID()).To(Equal(api.ProviderSora))
		Expect(list[1].ID()).To(Equal(api.ProviderVeo))

		again, _ := r.Get(api.ProviderSora)
		Expect(again).To(BeIdenticalTo(list[0]))
	})

	It("reports unknown providers", func() {
		r := registry.NewWithAdapters(sora.NewStub(""))
		_, err := r.Get(api.ProviderVeo)
		var unknown *registry.ErrUnknownProvider
		Expect(errors.As(err, &unknown)).To(BeTrue())
		Expect(r.List()).To(HaveLen(1))
	})
})
