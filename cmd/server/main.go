package main

import (
	"EkgPlatform/internal/app"
	"EkgPlatform/internal/consumers"
	"EkgPlatform/internal/consumers/ekgsignal"
	"EkgPlatform/internal/shared/config"
	"EkgPlatform/internal/shared/logger"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "EkgPlatform/internal/consumers/batch"
	_ "EkgPlatform/internal/consumers/patient"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize Logger
	baseLogger := logger.New(cfg.IsDev(), cfg.ServiceName)
	baseLogger.Info().
		Str("app_env", cfg.AppEnv).
		Str("service", cfg.ServiceName).
		Str("transport", cfg.EventBus.Transport).
		Msg("Configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Metrics registry
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// 4. Event bus with its stores
	application, err := app.New(ctx, cfg, reg, &baseLogger)
	if err != nil {
		baseLogger.Fatal().Err(err).Msg("Failed to initialize event bus")
	}

	// 5. Subscribe every handler this binary hosts
	deps := consumers.Deps{
		Signals:    ekgsignal.NewMemoryStore(),
		BaseLogger: &baseLogger,
	}
	if err := consumers.SubscribeAll(ctx, application.Bus, deps); err != nil {
		application.Close()
		baseLogger.Fatal().Err(err).Msg("Failed to subscribe handlers")
	}

	// 6. Run until signalled
	g, gctx := errgroup.WithContext(ctx)
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			baseLogger.Info().Str("addr", cfg.MetricsAddr).Msg("Serving metrics")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		baseLogger.Info().Msg("Shutting down")
		return application.Close()
	})

	baseLogger.Info().Msg("Application started")
	if err := g.Wait(); err != nil {
		baseLogger.Error().Err(err).Msg("Application stopped with error")
		os.Exit(1)
	}
	baseLogger.Info().Msg("Application stopped")
}
