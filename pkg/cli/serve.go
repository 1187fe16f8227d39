package cli

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/m-mizutani/drover/pkg/cli/config"
	controller "github.com/m-mizutani/drover/pkg/controller/http"
	"github.com/m-mizutani/drover/pkg/domain/model"
	"github.com/m-mizutani/drover/pkg/infra/build"
	slackinfra "github.com/m-mizutani/drover/pkg/infra/slack"
	"github.com/m-mizutani/drover/pkg/usecase"
)

func cmdServe() *cli.Command {
	var (
		serverCfg     config.Server
		hookCfg       config.Hook
		containersCfg config.Containers
		sentryCfg     config.Sentry
		slackCfg      config.Slack
	)

	flags := serverCfg.Flags()
	flags = append(flags, hookCfg.Flags()...)
	flags = append(flags, containersCfg.Flags()...)
	flags = append(flags, sentryCfg.Flags()...)
	flags = append(flags, slackCfg.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start the reconciliation server",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := ctxlog.From(ctx)

			if err := sentryCfg.Configure(); err != nil {
				return err
			}
			defer sentry.Flush(2 * time.Second)

			containers, err := containersCfg.Load()
			if err != nil {
				return err
			}

			var opts []usecase.Option
			if slackCfg.WebhookURL != "" {
				opts = append(opts, usecase.WithNotifier(slackinfra.New(slackCfg.WebhookURL)))
			}
			engine := usecase.New(build.NewLogExecutor(), opts...)
			for _, container := range containers {
				engine.AddContainer(container)
			}

			// Loading the configuration triggers an initial scan per
			// container unless the config suppresses it. A failed initial
			// scan is reported but does not prevent startup; the job set
			// simply stays empty until a later scan succeeds.
			for _, container := range containers {
				if !container.InitialScan() {
					logger.Info("initial scan suppressed", "container", container.ID())
					continue
				}
				result, err := engine.Scan(ctx, container.ID())
				if err != nil {
					return err
				}
				if result.Status == model.ScanFailure {
					logger.Error("initial scan failed", "container", container.ID())
				}
			}

			server, err := controller.NewServer(
				ctx,
				engine,
				controller.WithAddr(serverCfg.Addr),
				controller.WithHookSecret(hookCfg.Secret),
			)
			if err != nil {
				return goerr.Wrap(err, "failed to create HTTP server")
			}

			go func() {
				logger.Info("HTTP server starting", slog.String("addr", serverCfg.Addr))
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("HTTP server error", slog.Any("error", err))
				}
			}()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

			reloadChan := make(chan os.Signal, 1)
			signal.Notify(reloadChan, syscall.SIGHUP)

		loop:
			for {
				select {
				case <-ctx.Done():
					logger.Info("Context cancelled, shutting down...")
					break loop
				case sig := <-sigChan:
					logger.Info("Signal received, shutting down...", slog.Any("signal", sig))
					break loop
				case <-reloadChan:
					if err := reloadContainers(ctx, engine, &containersCfg); err != nil {
						logger.Error("Container topology reload failed", slog.Any("error", err))
					}
				}
			}

			// Graceful shutdown: let in-flight events finish their commit
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := engine.Wait(shutdownCtx, engine.Watermark()); err != nil {
				logger.Warn("events still in flight at shutdown", slog.Any("error", err))
			}
			if err := server.Shutdown(shutdownCtx); err != nil {
				return goerr.Wrap(err, "failed to shutdown server gracefully")
			}

			logger.Info("Server shutdown complete")
			return nil
		},
	}
}

// reloadContainers re-reads the topology file and applies it to the running
// engine. Known containers keep their job state and swap only their ranked
// source list; new containers are added. Passes already in flight finish on
// the snapshot they started with.
func reloadContainers(ctx context.Context, engine *usecase.Reconciler, cfg *config.Containers) error {
	containers, err := cfg.Load()
	if err != nil {
		return err
	}

	known := map[string]bool{}
	for _, id := range engine.ContainerIDs() {
		known[id] = true
	}

	logger := ctxlog.From(ctx)
	for _, container := range containers {
		if known[container.ID()] {
			if err := engine.UpdateSources(container.ID(), container.Sources()); err != nil {
				return err
			}
			logger.Info("Container sources reloaded", "container", container.ID())
			continue
		}
		engine.AddContainer(container)
		logger.Info("Container added", "container", container.ID())
	}
	return nil
}
