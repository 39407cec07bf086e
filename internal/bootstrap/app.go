package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gitlab.com/shutterbug/web/shutterbug-core/pkg/safego"
)

// NOTE: The App struct and NewApp function are defined in providers.go for Wire.
// This file should only contain methods for the App struct, like Run().

type readiness struct {
	Status       string            `json:"status"`
	Dependencies map[string]string `json:"dependencies"`
	CacheEntries int               `json:"cache_entries"`
	OpenThreads  int               `json:"open_threads"`
}

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	a.logger.Debug(r.Context(), "Health check endpoint hit")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, `{"status":"OK"}`)
}

func (a *App) readyHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ready := true
	deps := make(map[string]string)

	// NATS is optional; only a configured but broken connection fails readiness.
	if a.subscriber == nil {
		deps["nats"] = "disabled"
	} else if status := a.subscriber.Status(); status == nats.CONNECTED {
		deps["nats"] = "connected"
	} else {
		deps["nats"] = "disconnected"
		ready = false
		a.logger.Warn(r.Context(), "Readiness check failed: NATS disconnected", "status", status.String())
	}

	response := readiness{
		Dependencies: deps,
		CacheEntries: a.cache.Len(),
		OpenThreads:  len(a.comments.OpenThreads()),
	}
	if ready {
		response.Status = "READY"
		w.WriteHeader(http.StatusOK)
	} else {
		response.Status = "NOT_READY"
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		a.logger.Error(r.Context(), "Failed to encode readiness response", "error", err.Error())
	}
}

// Run starts the application, listens for HTTP requests, and handles graceful shutdown.
func (a *App) Run(ctx context.Context) error {
	appCfg := a.configProvider.Get().App
	a.logger.Info(ctx, "Starting application", "service_name", appCfg.ServiceName, "version", appCfg.Version)

	a.httpServeMux.HandleFunc("GET /health", a.healthHandler)
	a.httpServeMux.HandleFunc("GET /ready", a.readyHandler)
	a.httpServeMux.Handle("GET /metrics", promhttp.Handler())
	a.handlers.Register(a.httpServeMux, a.adminAuth)
	a.logger.Info(ctx, "HTTP routes registered")

	if a.subscriber != nil {
		if err := a.subscriber.SubscribeInvalidations(ctx, a.invalidation); err != nil {
			// The cache still expires by TTL, so a missing subscription is not fatal.
			a.logger.Error(ctx, "Failed to subscribe to invalidation events", "error", err.Error())
		}
	}

	a.comments.StartIdleThreadReaper(ctx)

	safego.Execute(ctx, a.logger, "SignalListenerAndGracefulShutdown", func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-quit:
			a.logger.Info(context.Background(), "Shutdown signal received, initiating graceful shutdown...", "signal", sig.String())
		case <-ctx.Done():
			a.logger.Info(context.Background(), "Application context cancelled, initiating graceful shutdown...")
		}

		shutdownTimeout := 30 * time.Second
		if secs := a.configProvider.Get().App.ShutdownTimeoutSeconds; secs > 0 {
			shutdownTimeout = time.Duration(secs) * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if a.subscriber != nil {
			a.logger.Info(context.Background(), "Stopping invalidation subscriber...")
			if err := a.subscriber.Stop(); err != nil {
				a.logger.Error(context.Background(), "Error stopping invalidation subscriber", "error", err.Error())
			}
		}
		a.comments.StopIdleThreadReaper()

		if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error(context.Background(), "HTTP server graceful shutdown failed", "error", err.Error())
		}
		a.logger.Info(context.Background(), "HTTP server shut down.")
	})

	a.logger.Info(ctx, fmt.Sprintf("HTTP server listening on port %d", a.configProvider.Get().Server.HTTPPort))
	if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.logger.Error(ctx, "HTTP server ListenAndServe error", "error", err.Error())
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	a.logger.Info(ctx, "Application shut down gracefully or server closed.")
	return nil
}
