package cli

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/herald/pkg/cli/config"
	controller "github.com/m-mizutani/herald/pkg/controller/http"
	"github.com/m-mizutani/herald/pkg/usecase"
	"github.com/m-mizutani/herald/pkg/utils/async"
	"github.com/urfave/cli/v3"
)

func cmdServe(sentryCfg *config.Sentry) *cli.Command {
	var (
		serverCfg  config.Server
		projectCfg config.Project
		secretCfg  config.Secret
		filterCfg  config.Filter
		ledgerCfg  config.Ledger
		engineCfg  config.Engine
		watchCfg   config.Watch
		notifyCfg  config.Notify
		fileCfg    config.File
	)

	var flags []cli.Flag
	flags = append(flags, serverCfg.Flags()...)
	flags = append(flags, projectCfg.Flags()...)
	flags = append(flags, secretCfg.Flags()...)
	flags = append(flags, filterCfg.Flags()...)
	flags = append(flags, ledgerCfg.Flags()...)
	flags = append(flags, engineCfg.Flags()...)
	flags = append(flags, watchCfg.Flags()...)
	flags = append(flags, notifyCfg.Flags()...)
	flags = append(flags, fileCfg.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start the release webhook server",
		Flags:   flags,
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			return ctx, fileCfg.Apply(c, &filterCfg)
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := ctxlog.From(ctx)

			// Secrets are resolved once, before anything can accept a delivery
			store, err := secretCfg.Store(ctx)
			if err != nil {
				return err
			}
			resolver := usecase.NewSecretResolver(store)
			secrets, err := resolver.Activate(ctx, secretCfg.AccessTokenName(), secretCfg.SigningKeyName())
			if err != nil {
				return goerr.Wrap(err, "failed to activate secrets")
			}

			pipeline, entry, err := projectCfg.Pipeline(secretCfg.AccessTokenName())
			if err != nil {
				return err
			}
			filters, err := filterCfg.EventFilters()
			if err != nil {
				return err
			}

			ledger, closeLedger, err := ledgerCfg.Build(ctx)
			if err != nil {
				return err
			}
			defer func() {
				if err := closeLedger(); err != nil {
					logger.Warn("Failed to close ledger", slog.Any("error", err))
				}
			}()

			engine, shutdownEngine, err := engineCfg.Build(ctx, secrets)
			if err != nil {
				return err
			}

			gate := usecase.NewGate(secrets.SigningKey, filters)
			dispatcher := usecase.NewDispatcher(ledger, engine,
				usecase.WithDispatchTimeout(serverCfg.DispatchTimeout),
			)

			var triggerOpts []usecase.TriggerOption
			if !watchCfg.Disable {
				notifier, err := notifyCfg.Build(ctx, resolver, sentryCfg.Enabled())
				if err != nil {
					return err
				}
				watcher := usecase.NewRunWatcher(engine, ledger, notifier, watchCfg.Interval, watchCfg.Timeout)
				triggerOpts = append(triggerOpts, usecase.WithRunWatcher(watcher))
			}

			triggerUC := usecase.NewTrigger(gate, dispatcher, ledger, pipeline, entry, triggerOpts...)

			server, err := controller.NewServer(ctx, triggerUC,
				append(serverCfg.Options(),
					controller.WithPipelineInfo(string(pipeline.ID), gate.VerifiesSignature()),
				)...,
			)
			if err != nil {
				return goerr.Wrap(err, "failed to create HTTP server")
			}

			logger.Info("Starting herald server",
				slog.String("addr", serverCfg.Addr),
				slog.String("pipeline", string(pipeline.ID)),
				slog.String("entry", entry.String()),
				slog.Any("filters", filters),
				slog.Bool("signature_verification", gate.VerifiesSignature()),
				slog.String("engine", engineCfg.Backend),
				slog.String("ledger", ledgerCfg.Backend),
			)

			serverErr := make(chan error, 1)
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					serverErr <- err
				}
			}()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigChan)

			select {
			case <-ctx.Done():
				logger.Info("Context cancelled, shutting down...")
			case sig := <-sigChan:
				logger.Info("Signal received, shutting down...", slog.Any("signal", sig))
			case err := <-serverErr:
				return goerr.Wrap(err, "HTTP server failed")
			}

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), serverCfg.ShutdownTimeout)
			defer cancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				return goerr.Wrap(err, "failed to shutdown server gracefully")
			}
			if err := shutdownEngine(shutdownCtx); err != nil {
				logger.Warn("Pipeline runs still in progress at shutdown", slog.Any("error", err))
			}
			if err := async.Wait(shutdownCtx); err != nil {
				logger.Warn("Run watchers still in progress at shutdown", slog.Any("error", err))
			}

			logger.Info("Server shutdown complete")
			return nil
		},
	}
}
