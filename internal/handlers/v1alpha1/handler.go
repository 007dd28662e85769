package v1alpha1

import (
	"errors"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	api "github.com/reelqueue/reelqueue/api/v1alpha1"
	"github.com/reelqueue/reelqueue/internal/service"
	"github.com/reelqueue/reelqueue/pkg/requestid"
	"go.uber.org/zap"
)

const internalErrorMessage = "internal server error"

type ServiceHandler struct {
	jobSrv *service.JobService
}

func NewServiceHandler(jobService *service.JobService) *ServiceHandler {
	return &ServiceHandler{jobSrv: jobService}
}

// Routes registers the API under r, which is expected to be mounted at /api.
func (h *ServiceHandler) Routes(r chi.Router) {
	r.Get("/healthz", h.GetHealth)
	r.Get("/providers", h.ListProviders)
	r.Route("/jobs", func(r chi.Router) {
		r.Get("/", h.ListJobs)
		r.Post("/", h.CreateJob)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetJob)
			r.Delete("/", h.DeleteJob)
			r.Post("/refresh", h.RefreshJob)
			r.Get("/content", h.GetJobContent)
			r.Post("/remix", h.RemixJob)
			r.Post("/extend", h.ExtendJob)
		})
	})
}

func NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusNotFound, api.ErrorCodeNotFound, "route not found")
}

func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusMethodNotAllowed, api.ErrorCodeMethodNotAllowed, r.Method+" is not allowed on "+r.URL.Path)
}

// Recoverer answers a panicking request with the INTERNAL_ERROR envelope.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			zap.S().Named("job_handler").Errorw("panic while serving request",
				"request_id", requestid.FromRequest(r), "method", r.Method, "path", r.URL.Path,
				"panic", rec, "stack", string(debug.Stack()))
			writeError(w, r, http.StatusInternalServerError, api.ErrorCodeInternal, internalErrorMessage)
		}()
		next.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code api.ErrorCode, message string) {
	render.Status(r, status)
	render.JSON(w, r, api.Error{Error: api.ErrorDetail{Code: code, Message: message}})
}

func writeValidationError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, http.StatusBadRequest, api.ErrorCodeValidation, err.Error())
}

// respondError maps service errors onto error responses. Anything unexpected
// is logged and answered with a generic message.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr     *service.ErrValidation
		notFoundErr       *service.ErrResourceNotFound
		unsupportedErr    *service.ErrUnsupportedOperation
		notCompleteErr    *service.ErrJobNotComplete
		missingJobErr     *service.ErrMissingProviderJob
		notImplementedErr *service.ErrNotImplemented
	)

	switch {
	case errors.As(err, &validationErr):
		writeError(w, r, http.StatusBadRequest, api.ErrorCodeValidation, err.Error())
	case errors.As(err, &notFoundErr):
		writeError(w, r, http.StatusNotFound, api.ErrorCodeNotFound, err.Error())
	case errors.As(err, &unsupportedErr):
		writeError(w, r, http.StatusBadRequest, api.ErrorCodeUnsupportedOperation, err.Error())
	case errors.As(err, &notCompleteErr):
		writeError(w, r, http.StatusBadRequest, api.ErrorCodeJobNotComplete, err.Error())
	case errors.As(err, &missingJobErr):
		writeError(w, r, http.StatusBadRequest, api.ErrorCodeMissingProviderJob, err.Error())
	case errors.As(err, &notImplementedErr):
		writeError(w, r, http.StatusNotImplemented, api.ErrorCodeNotImplemented, err.Error())
	default:
		zap.S().Named("job_handler").Errorw("request failed", "request_id", requestid.FromRequest(r), "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, r, http.StatusInternalServerError, api.ErrorCodeInternal, internalErrorMessage)
	}
}
