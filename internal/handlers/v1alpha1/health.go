package v1alpha1

import (
	"net/http"

	"github.com/go-chi/render"
	api "github.com/reelqueue/reelqueue/api/v1alpha1"
	"github.com/reelqueue/reelqueue/internal/handlers/v1alpha1/mappers"
)

// (GET /api/healthz)
func (h *ServiceHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, api.Health{Status: "ok"})
}

// (GET /api/providers)
func (h *ServiceHandler) ListProviders(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, mappers.ProviderListToApi(h.jobSrv.ListProviders()))
}
