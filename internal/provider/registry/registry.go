// Package registry holds the single adapter instance of every provider.
package registry

import (
	"fmt"

	api "github.com/reelqueue/reelqueue/api/v1alpha1"
	"github.com/reelqueue/reelqueue/internal/config"
	"github.com/reelqueue/reelqueue/internal/provider"
	"github.com/reelqueue/reelqueue/internal/provider/sora"
	"github.com/reelqueue/reelqueue/internal/provider/veo"
	"go.uber.org/zap"
)

var order = []api.Provider{api.ProviderSora, api.ProviderVeo}

type ErrUnknownProvider struct {
	Provider string
}

func (e *ErrUnknownProvider) Error() string {
	return fmt.Sprintf("unknown provider %q", e.Provider)
}

type Registry struct {
	adapters map[api.Provider]provider.Adapter
}

// New builds the real adapter of each provider whose credentials are
// configured and a stub for the others.
func New(cfg *config.Config) (*Registry, error) {
	p := cfg.Providers
	timeout := cfg.Service.ProviderTimeout

	r := &Registry{adapters: make(map[api.Provider]provider.Adapter, len(order))}

	if !p.ForceStub && p.Sora.HasCredentials() {
		r.adapters[api.ProviderSora] = sora.NewClient(p.Sora, timeout)
	} else {
		r.adapters[api.ProviderSora] = sora.NewStub(p.Sora.Model)
	}

	if !p.ForceStub && p.Veo.HasCredentials() {
		client, err := veo.NewClient(p.Veo, timeout)
		if err != nil {
			return nil, fmt.Errorf("failed to create veo adapter: %w", err)
		}
		r.adapters[api.ProviderVeo] = client
	} else {
		r.adapters[api.ProviderVeo] = veo.NewStub(p.Veo.Model)
	}

	for _, id := range order {
		zap.S().Named("registry").Infow("provider adapter ready", "provider", id, "stub", r.adapters[id].Metadata().Stub)
	}
	return r, nil
}

// NewWithAdapters is used by tests to plug in custom adapters.
func NewWithAdapters(adapters ...provider.Adapter) *Registry {
	r := &Registry{adapters: make(map[api.Provider]provider.Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.ID()] = a
	}
	return r
}

func (r *Registry) Get(id api.Provider) (provider.Adapter, error) {
	a, ok := r.adapters[id]
	if !ok {
		return nil, &ErrUnknownProvider{Provider: string(id)}
	}
	return a, nil
}

// List returns the adapters in a stable order.
func (r *Registry) List() []provider.Adapter {
	adapters := make([]provider.Adapter, 0, len(r.adapters))
	for _, id := range order {
		if a, ok := r.adapters[id]; ok {
			adapters = append(adapters, a)
		}
	}
	return adapters
}
