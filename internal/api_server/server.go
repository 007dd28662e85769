package apiserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/reelqueue/reelqueue/internal/config"
	handlers "github.com/reelqueue/reelqueue/internal/handlers/v1alpha1"
	"github.com/reelqueue/reelqueue/internal/provider/registry"
	"github.com/reelqueue/reelqueue/internal/service"
	"github.com/reelqueue/reelqueue/internal/store"
	"github.com/reelqueue/reelqueue/pkg/metrics"
	"github.com/reelqueue/reelqueue/pkg/middleware"
	"go.uber.org/zap"
)

const (
	gracefulShutdownTimeout = 5 * time.Second
)

type Server struct {
	cfg       *config.Config
	store     store.Store
	listener  net.Listener
	providers *registry.Registry
}

// New returns a new instance of a reelqueue server.
func New(
	cfg *config.Config,
	store store.Store,
	listener net.Listener,
	providers *registry.Registry,
) *Server {
	return &Server{
		cfg:       cfg,
		store:     store,
		listener:  listener,
		providers: providers,
	}
}

// Handler builds the router serving the JSON API under /api.
func (s *Server) Handler(metricMiddleware *metrics.Middleware) http.Handler {
	router := chi.NewRouter()

	if metricMiddleware != nil {
		router.Use(metricMiddleware.Handler)
	}

	router.Use(
		cors.Handler(cors.Options{
			AllowedOrigins:   s.cfg.Service.CorsOrigins,
			AllowedMethods:   []string{"GET", "POST", "DELETE", "HEAD", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			ExposedHeaders:   []string{middleware.RequestIDHeader},
			AllowCredentials: false,
			MaxAge:           300,
		}),
		chiMiddleware.RealIP,
		middleware.RequestID,
		middleware.Logger(),
		handlers.Recoverer,
	)

	router.NotFound(handlers.NotFound)
	router.MethodNotAllowed(handlers.MethodNotAllowed)

	h := handlers.NewServiceHandler(service.NewJobService(s.store, s.providers))
	router.Route("/api", h.Routes)

	return router
}

func (s *Server) Run(ctx context.Context) error {
	zap.S().Named("api_server").Info("Initializing API server")

	metricMiddleware := metrics.NewMiddleware("api_server")
	metricMiddleware.MustRegisterDefault()

	for _, p := range s.providers.List() {
		info := p.Metadata()
		zap.S().Named("api_server").Infow("provider registered", "provider", info.Id, "model", info.DefaultModel, "stub", info.Stub)
	}

	srv := http.Server{Addr: s.cfg.Service.Address, Handler: s.Handler(metricMiddleware)}

	go func() {
		<-ctx.Done()
		zap.S().Named("api_server").Infof("Shutdown signal received: %s", ctx.Err())
		ctxTimeout, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()

		srv.SetKeepAlivesEnabled(false)
		_ = srv.Shutdown(ctxTimeout)
		zap.S().Named("api_server").Info("api server terminated")
	}()

	zap.S().Named("api_server").Infof("Listening on %s...", s.listener.Addr().String())
	if err := srv.Serve(s.listener); err != nil && !errors.Is(err, net.ErrClosed) && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
