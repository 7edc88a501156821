package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/clearsight/scenario-audit-backend/internal/infrastructure/config"
)

// Server runs the HTTP API with the standard middleware chain
type Server struct {
	cfg        *config.Config
	httpServer *http.Server
	logger     *zap.Logger
}

// NewServer assembles the router, middleware chain, and http.Server.
// Chain order: request id first so every later stage can log it, recovery
// before logging so panics still produce a log line, rate limit ahead of
// the timeout so rejected requests never consume a deadline.
func NewServer(cfg *config.Config, handler *Handler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	mux := NewRouter(handler)

	h := chain(mux,
		requestIDMiddleware,
		recoveryMiddleware(logger),
		loggingMiddleware(logger, handler.registry),
		rateLimitMiddleware(cfg.Server.RateLimit.RequestsPerSecond, cfg.Server.RateLimit.BurstSize),
		timeoutMiddleware(cfg.Server.RequestTimeout),
	)

	return &Server{
		cfg:    cfg,
		logger: logger,
		httpServer: &http.Server{
			Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:        h,
			ReadTimeout:    cfg.Server.ReadTimeout,
			WriteTimeout:   cfg.Server.WriteTimeout,
			IdleTimeout:    2 * time.Minute,
			MaxHeaderBytes: 1 << 20,
		},
	}
}

// Start serves until the context is canceled or the listener fails, then
// shuts down gracefully within the configured timeout.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api server listening",
			zap.String("addr", s.httpServer.Addr),
			zap.String("environment", s.cfg.Environment))

		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("api server failed: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
		return s.Shutdown()
	}
}

// Shutdown stops accepting connections and drains in-flight requests
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("server shutdown failed", zap.Error(err))
		return err
	}

	s.logger.Info("server shutdown complete")
	return nil
}
