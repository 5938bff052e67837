package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sponsorscope/scope/internal/job"
	"github.com/sponsorscope/scope/internal/monitoring"
	"github.com/sponsorscope/scope/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the analysis API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}

		pipeline, store, err := buildPipeline(ctx)
		if err != nil {
			return eris.Wrap(err, "open state store")
		}
		defer store.Close()

		registry := job.NewRegistry(cfg.Jobs.TTL(), cfg.Jobs.CleanupInterval())
		defer registry.Close()

		collector, scorer, refiner := buildCollaborators()
		orch := job.NewOrchestrator(registry, collector, scorer, refiner, pipeline.Budget(), cfg.Jobs)
		monitor := monitoring.NewCollector(pipeline, registry)

		srv := server.New(cfg, pipeline, orch, monitor).HTTPServer()

		// Periodic governance alerting.
		alerter := monitoring.NewAlerter(cfg.Monitoring)
		go func() {
			ticker := time.NewTicker(time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					alerts := alerter.Evaluate(monitor.Snapshot(ctx))
					if err := alerter.Send(ctx, alerts); err != nil {
						zap.L().Warn("alert delivery failed", zap.Error(err))
					}
				}
			}
		}()

		// Graceful shutdown: stop accepting requests, then drain jobs.
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
			if err := orch.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("orchestrator drain", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
