// Package obs provides observability functionality including metrics and HTTP endpoints
package obs

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewHandler serves /metrics from gatherer and a liveness-only /health.
func NewHandler(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}

// StartServer starts an HTTP server exposing /metrics and /health on port.
// It respects context cancellation for graceful shutdown
func StartServer(ctx context.Context, port string, gatherer prometheus.Gatherer, logger *zap.Logger) error {
	return Serve(ctx, port, NewHandler(gatherer), "observability", logger)
}

// Serve runs handler on port until ctx is canceled, then shuts the server down.
func Serve(ctx context.Context, port string, handler http.Handler, name string, logger *zap.Logger) error {
	// Validate port
	portNum, err := strconv.Atoi(port)
	if err != nil || portNum <= 0 || portNum > 65535 {
		return fmt.Errorf("invalid port: %s", port)
	}

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting "+name+" server",
			zap.String("address", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for context cancellation or server error
	select {
	case <-ctx.Done():
		logger.Info("Shutting down " + name + " server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error shutting down "+name+" server", zap.Error(err))
			return fmt.Errorf("error shutting down %s server: %w", name, err)
		}
		logger.Info(name + " server stopped gracefully")
		return nil
	case err := <-serverErr:
		return fmt.Errorf("%s server error: %w", name, err)
	}
}

func statusLabel(status int) string {
	return strconv.Itoa(status)
}
