package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"fault-dashboard/internal/config"
	"fault-dashboard/internal/service"
)

// Options настраивает поведение HTTP-слоя.
type Options struct {
	// Development включает подробности внутренних ошибок в ответах.
	Development bool
}

// Start запускает HTTP API и блокируется до отмены ctx, после чего
// корректно завершает сервер за cfg.ShutdownTimeout.
func Start(ctx context.Context, svc *service.ReportService, cfg config.ServerConfig, logger *zap.Logger) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      newRouter(svc, Options{Development: cfg.IsDevelopment()}, logger),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting API server", zap.String("addr", srv.Addr), zap.String("mode", cfg.Mode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("API server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("API server shutdown: %w", err)
	}
	return nil
}

// newRouter создает роутер API отчетов и раздачи вложений.
func newRouter(svc *service.ReportService, opts Options, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &handler{
		svc:     svc,
		logger:  logger.Named("http"),
		dev:     opts.Development,
		started: time.Now(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", h.health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.NotFound(h.apiNotFound)
		r.MethodNotAllowed(h.apiNotFound)
		r.Route("/faults", func(r chi.Router) {
			r.Post("/", h.createFault)
			r.Get("/", h.listFaults)
			r.Get("/export", h.exportFaults)
			r.Get("/stats/summary", h.faultStats)
			r.Get("/{id}", h.getFault)
			r.Put("/{id}", h.updateFault)
			r.Delete("/{id}", h.deleteFault)
		})
	})

	r.Route("/uploads", func(r chi.Router) {
		r.Get("/info/{filename}", h.fileInfo)
		r.Get("/fault/{faultId}/{filename}", h.serveFaultFile)
		r.Get("/{filename}", h.serveFile)
		r.Delete("/{filename}", h.deleteFile)
	})

	return r
}
