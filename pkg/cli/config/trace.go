package config

import (
	"context"
	"os"

	"github.com/m-mizutani/herald/pkg/domain/types"
	"github.com/m-mizutani/herald/pkg/utils/telemetry"
	"github.com/urfave/cli/v3"
)

// Trace holds tracing configuration
type Trace struct {
	Stdout bool
}

// Flags returns CLI flags for tracing
func (c *Trace) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:        "trace-stdout",
			Usage:       "Export OpenTelemetry spans with the stdout exporter (written to stderr)",
			Destination: &c.Stdout,
			Sources:     cli.EnvVars("HERALD_TRACE_STDOUT"),
		},
	}
}

// Configure installs the tracer provider when enabled. The returned shutdown is never nil.
func (c *Trace) Configure(ctx context.Context) (telemetry.ShutdownFunc, error) {
	if !c.Stdout {
		return func(context.Context) error { return nil }, nil
	}
	return telemetry.InitTracer(ctx, "herald", types.Version, os.Stderr)
}
