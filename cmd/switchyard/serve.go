package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/aretw0/switchyard"
	"github.com/aretw0/switchyard/internal/presentation/tui"
	api "github.com/aretw0/switchyard/pkg/adapters/http"
)

const shutdownGrace = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler, the HTTP API and the metrics endpoint",
	Long: `Starts change detection for every configured endpoint, serves the run
and route API over HTTP and exposes Prometheus metrics. Unfinished runs are
resumed on start and left resumable on shutdown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if quiet, _ := cmd.Flags().GetBool("quiet"); !quiet {
			tui.PrintBanner(cmd.ErrOrStderr(), switchyard.Version)
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.HTTP.Addr = addr
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, appOptions{observe: true})
		if err != nil {
			return err
		}
		defer a.Close()

		apiSrv := &http.Server{
			Addr: cfg.HTTP.Addr,
			Handler: api.NewHandler(a.orch.Engine(), a.orch.Registry(), a.orch.Dispatcher(),
				api.WithLogger(logger),
				api.WithVersion(switchyard.Version),
			),
			ReadHeaderTimeout: 10 * time.Second,
		}

		metricsRouter := chi.NewRouter()
		metricsRouter.Handle("/metrics", promhttp.HandlerFor(a.metrics, promhttp.HandlerOpts{}))
		metricsSrv := &http.Server{Addr: cfg.Metrics.Addr, Handler: metricsRouter, ReadHeaderTimeout: 10 * time.Second}

		// Channel to listen for errors coming from the listeners.
		serverErrors := make(chan error, 2)
		for _, srv := range []*http.Server{apiSrv, metricsSrv} {
			go func(srv *http.Server) {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErrors <- fmt.Errorf("listen on %s: %w", srv.Addr, err)
				}
			}(srv)
		}
		logger.Info("switchyard started",
			"api", cfg.HTTP.Addr,
			"metrics", cfg.Metrics.Addr,
			"store", cfg.Store.Kind,
			"endpoints", len(cfg.Endpoints),
			"routes", len(cfg.Routes),
		)

		runCtx, cancelRun := context.WithCancel(ctx)
		defer cancelRun()
		runDone := make(chan error, 1)
		go func() { runDone <- a.orch.Run(runCtx) }()

		var runErr error
		select {
		case err := <-serverErrors:
			runErr = err
			cancelRun()
			<-runDone
		case err := <-runDone:
			runErr = err
		}

		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		for _, srv := range []*http.Server{apiSrv, metricsSrv} {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("graceful shutdown did not complete", "addr", srv.Addr, "err", err)
				srv.Close()
			}
		}
		return runErr
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "API listen address (overrides http.addr)")
	serveCmd.Flags().BoolP("quiet", "q", false, "Do not print the banner")
}
