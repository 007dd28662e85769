package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/reelqueue/reelqueue/pkg/requestid"
)

const RequestIDHeader = "X-Request-Id"

// RequestID takes the request ID from the X-Request-Id header, falls back to
// one generated by chi or a fresh UUID, stores it in the request context and
// echoes it on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)

		if requestID == "" {
			requestID = middleware.GetReqID(r.Context())
		}

		if requestID == "" {
			requestID = requestid.Generate()
		}

		w.Header().Set(RequestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(requestid.ToContext(r.Context(), requestID)))
	})
}
