package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/m-mizutani/drover/pkg/controller/router"
	"github.com/m-mizutani/drover/pkg/domain/interfaces"
)

// config holds internal HTTP server configuration
type config struct {
	addr       string
	hookSecret string
}

// Option is a functional option for Server configuration
type Option func(*config)

// WithAddr sets the server address
func WithAddr(addr string) Option {
	return func(c *config) {
		c.addr = addr
	}
}

// WithHookSecret sets the shared secret used to verify event notifications
func WithHookSecret(secret string) Option {
	return func(c *config) {
		c.hookSecret = secret
	}
}

// Server represents the HTTP server
type Server struct {
	*http.Server
}

// NewServer creates the HTTP surface of the engine: event ingestion, scan
// triggering, the job read model and the watermark drain primitive.
func NewServer(
	ctx context.Context,
	reconciler interfaces.Reconciler,
	opts ...Option,
) (*Server, error) {
	cfg := &config{
		addr: "localhost:8080",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	mux := chi.NewRouter()

	// Global middleware
	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(LoggingMiddleware(ctx))
	mux.Use(middleware.Recoverer)

	mux.Get("/health", handleHealth(reconciler))

	hooks := NewHookHandler(cfg.hookSecret, router.New(reconciler))
	mux.Post("/hooks/scm/event", hooks.Handle)

	containers := &ContainerHandler{reconciler: reconciler}
	mux.Post("/containers/{containerID}/scan", containers.HandleScan)
	mux.Get("/containers/{containerID}/jobs", containers.HandleJobs)
	mux.Get("/drain", containers.HandleDrain)

	server := &Server{
		Server: &http.Server{
			Addr:              cfg.addr,
			Handler:           mux,
			ReadHeaderTimeout: 15 * time.Second,
		},
	}

	return server, nil
}
