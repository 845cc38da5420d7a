package cli

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/herald/pkg/cli/config"
	"github.com/m-mizutani/herald/pkg/domain/types"
	"github.com/m-mizutani/herald/pkg/utils/telemetry"
	"github.com/urfave/cli/v3"
)

// Run runs the CLI application
func Run(ctx context.Context, args []string) error {
	var (
		loggerCfg config.Logger
		sentryCfg config.Sentry
		traceCfg  config.Trace
		logger    *slog.Logger

		flushSentry   func()
		shutdownTrace telemetry.ShutdownFunc
	)

	flags := append(loggerCfg.Flags(), sentryCfg.Flags()...)
	flags = append(flags, traceCfg.Flags()...)

	app := &cli.Command{
		Name:    "herald",
		Usage:   "Trigger a release pipeline from GitHub release webhooks",
		Version: types.Version,
		Flags:   flags,
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			var err error
			logger, err = loggerCfg.Configure()
			if err != nil {
				return nil, err
			}

			slog.SetDefault(logger)
			ctx = ctxlog.With(ctx, logger)

			if flushSentry, err = sentryCfg.Configure(); err != nil {
				return nil, err
			}
			if shutdownTrace, err = traceCfg.Configure(ctx); err != nil {
				return nil, err
			}
			return ctx, nil
		},
		After: func(ctx context.Context, c *cli.Command) error {
			if flushSentry != nil {
				flushSentry()
			}
			if shutdownTrace != nil {
				return shutdownTrace(context.WithoutCancel(ctx))
			}
			return nil
		},
		Commands: []*cli.Command{
			cmdServe(&sentryCfg),
			cmdSetup(),
			cmdCancel(),
		},
	}

	if err := app.Run(ctx, args); err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("CLI execution failed", slog.Any("error", err))
		return err
	}

	return nil
}
