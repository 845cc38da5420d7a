package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/m-mizutani/herald/pkg/domain/interfaces"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DefaultMaxBodySize is GitHub's webhook payload cap
const DefaultMaxBodySize int64 = 25 << 20

// config holds internal HTTP server configuration
type config struct {
	addr        string
	maxBodySize int64
	retryAfter  time.Duration
	pipeline    string
	signedOnly  bool
}

// Option is a functional option for Server configuration
type Option func(*config)

// WithAddr sets the server address
func WithAddr(addr string) Option {
	return func(c *config) {
		c.addr = addr
	}
}

// WithMaxBodySize limits webhook request bodies
func WithMaxBodySize(n int64) Option {
	return func(c *config) {
		if n > 0 {
			c.maxBodySize = n
		}
	}
}

// WithRetryAfter sets the Retry-After hint sent when the pipeline is unavailable
func WithRetryAfter(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.retryAfter = d
		}
	}
}

// WithPipelineInfo reports the served pipeline and security mode on /health
func WithPipelineInfo(pipeline string, signedOnly bool) Option {
	return func(c *config) {
		c.pipeline = pipeline
		c.signedOnly = signedOnly
	}
}

// Server represents the HTTP server
type Server struct {
	*http.Server
}

// NewServer creates a new HTTP server
func NewServer(
	ctx context.Context,
	triggerUC interfaces.TriggerUseCase,
	opts ...Option,
) (*Server, error) {
	cfg := &config{
		addr:        "localhost:8080",
		maxBodySize: DefaultMaxBodySize,
		retryAfter:  30 * time.Second,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	router := chi.NewRouter()

	// Global middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(LoggingMiddleware(ctx))
	router.Use(middleware.Recoverer)
	router.Use(otelhttp.NewMiddleware("herald.http"))

	router.Get("/health", newHealthHandler(cfg))

	webhookHandler := NewWebhookHandler(triggerUC,
		withMaxBodySize(cfg.maxBodySize),
		withRetryAfter(cfg.retryAfter),
	)
	router.Post("/hooks/github/release", webhookHandler.Handle)

	router.Get("/runs/{eventID}", newRunHandler(triggerUC))

	server := &Server{
		Server: &http.Server{
			Addr:              cfg.addr,
			Handler:           router,
			ReadHeaderTimeout: 15 * time.Second,
		},
	}

	return server, nil
}
