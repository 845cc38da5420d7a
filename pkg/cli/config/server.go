package config

import (
	"time"

	controller "github.com/m-mizutani/herald/pkg/controller/http"
	"github.com/urfave/cli/v3"
)

// Server holds server configuration
type Server struct {
	Addr            string
	MaxBodySize     int64
	RetryAfter      time.Duration
	DispatchTimeout time.Duration
	ShutdownTimeout time.Duration
}

// Flags returns CLI flags for server configuration
func (c *Server) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "Server address",
			Value:       "localhost:8080",
			Destination: &c.Addr,
			Sources:     cli.EnvVars("HERALD_ADDR"),
		},
		&cli.Int64Flag{
			Name:        "max-body-size",
			Usage:       "Maximum webhook body size in bytes",
			Value:       controller.DefaultMaxBodySize,
			Destination: &c.MaxBodySize,
			Sources:     cli.EnvVars("HERALD_MAX_BODY_SIZE"),
		},
		&cli.DurationFlag{
			Name:        "retry-after",
			Usage:       "Retry-After hint returned while the pipeline is unavailable",
			Value:       30 * time.Second,
			Destination: &c.RetryAfter,
			Sources:     cli.EnvVars("HERALD_RETRY_AFTER"),
		},
		&cli.DurationFlag{
			Name:        "dispatch-timeout",
			Usage:       "Timeout of the pipeline engine start call",
			Value:       30 * time.Second,
			Destination: &c.DispatchTimeout,
			Sources:     cli.EnvVars("HERALD_DISPATCH_TIMEOUT"),
		},
		&cli.DurationFlag{
			Name:        "shutdown-timeout",
			Usage:       "Grace period for in-flight requests and runs on shutdown",
			Value:       10 * time.Second,
			Destination: &c.ShutdownTimeout,
			Sources:     cli.EnvVars("HERALD_SHUTDOWN_TIMEOUT"),
		},
	}
}

// Options converts the configuration into server options
func (c *Server) Options() []controller.Option {
	return []controller.Option{
		controller.WithAddr(c.Addr),
		controller.WithMaxBodySize(c.MaxBodySize),
		controller.WithRetryAfter(c.RetryAfter),
	}
}
