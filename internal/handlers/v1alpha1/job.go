package v1alpha1

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	api "github.com/reelqueue/reelqueue/api/v1alpha1"
	"github.com/reelqueue/reelqueue/internal/handlers/v1alpha1/mappers"
	"github.com/reelqueue/reelqueue/internal/handlers/validator"
	"github.com/reelqueue/reelqueue/internal/service"
	"github.com/reelqueue/reelqueue/pkg/requestid"
	"go.uber.org/zap"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// (GET /api/jobs)
func (h *ServiceHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit := defaultPageLimit
	if raw := query.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > maxPageLimit {
			writeValidationError(w, r, fmt.Errorf("limit must be an integer between 1 and %d", maxPageLimit))
			return
		}
		limit = v
	}

	filter := service.NewJobFilter()
	if raw := query.Get("provider"); raw != "" {
		if _, ok := api.StringToProvider(raw); !ok {
			writeValidationError(w, r, fmt.Errorf("unknown provider %q", raw))
			return
		}
		filter = filter.WithOption(service.WithProvider(raw))
	}
	if raw := query.Get("status"); raw != "" {
		if !api.JobStatus(raw).IsValid() {
			writeValidationError(w, r, fmt.Errorf("unknown status %q", raw))
			return
		}
		filter = filter.WithOption(service.WithStatus(raw))
	}
	if q := query.Get("q"); q != "" {
		filter = filter.WithOption(service.WithPromptQuery(q))
	}

	page, err := h.jobSrv.ListJobs(r.Context(), filter, limit, query.Get("cursor"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	render.JSON(w, r, mappers.JobListToApi(*page))
}

// (POST /api/jobs)
func (h *ServiceHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var form api.JobCreate
	if err := render.DecodeJSON(r.Body, &form); err != nil {
		writeValidationError(w, r, fmt.Errorf("invalid request body: %w", err))
		return
	}

	v := validator.NewValidator()
	v.Register(validator.NewJobValidationRules()...)
	if err := v.Struct(form); err != nil {
		writeValidationError(w, r, err)
		return
	}

	job, err := h.jobSrv.CreateJob(r.Context(), mappers.JobFormApi(form))
	if err != nil {
		respondError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, mappers.JobToApi(*job))
}

// (GET /api/jobs/{id})
func (h *ServiceHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobSrv.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	render.JSON(w, r, mappers.JobToApi(*job))
}

// (DELETE /api/jobs/{id})
func (h *ServiceHandler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	if err := h.jobSrv.DeleteJob(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// (POST /api/jobs/{id}/refresh)
func (h *ServiceHandler) RefreshJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobSrv.RefreshJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	render.JSON(w, r, mappers.JobToApi(*job))
}

// (GET /api/jobs/{id}/content)
func (h *ServiceHandler) GetJobContent(w http.ResponseWriter, r *http.Request) {
	asset := 0
	if raw := r.URL.Query().Get("asset"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			writeValidationError(w, r, errors.New("asset must be a non negative integer"))
			return
		}
		asset = v
	}

	content, err := h.jobSrv.GetContent(r.Context(), chi.URLParam(r, "id"), asset)
	if err != nil {
		respondError(w, r, err)
		return
	}

	if content.IsRedirect() {
		http.Redirect(w, r, content.RedirectURL, http.StatusFound)
		return
	}
	defer func() {
		_ = content.Body.Close()
	}()

	w.Header().Set("Content-Type", content.ContentType)
	if content.ContentLength > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(content.ContentLength, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, content.Body); err != nil {
		zap.S().Named("job_handler").Warnw("content stream interrupted", "request_id", requestid.FromRequest(r), "error", err)
	}
}

// (POST /api/jobs/{id}/remix)
func (h *ServiceHandler) RemixJob(w http.ResponseWriter, r *http.Request) {
	var form api.JobRemix
	if !decodeOptionalBody(w, r, &form) {
		return
	}

	job, err := h.jobSrv.RemixJob(r.Context(), chi.URLParam(r, "id"), mappers.JobRemixFormApi(form))
	if err != nil {
		respondError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, mappers.JobToApi(*job))
}

// (POST /api/jobs/{id}/extend)
func (h *ServiceHandler) ExtendJob(w http.ResponseWriter, r *http.Request) {
	var form api.JobExtend
	if !decodeOptionalBody(w, r, &form) {
		return
	}

	job, err := h.jobSrv.ExtendJob(r.Context(), chi.URLParam(r, "id"), mappers.JobExtendFormApi(form))
	if err != nil {
		respondError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, mappers.JobToApi(*job))
}

// decodeOptionalBody decodes and validates a body that may be absent. It
// answers the request itself and returns false when the body is unusable.
func decodeOptionalBody(w http.ResponseWriter, r *http.Request, form any) bool {
	if err := render.DecodeJSON(r.Body, form); err != nil && !errors.Is(err, io.EOF) {
		writeValidationError(w, r, fmt.Errorf("invalid request body: %w", err))
		return false
	}

	v := validator.NewValidator()
	v.Register(validator.NewJobValidationRules()...)
	if err := v.Struct(form); err != nil {
		writeValidationError(w, r, err)
		return false
	}
	return true
}
