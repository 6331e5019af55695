package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bindery-io/bindery/internal/audit"
	"github.com/bindery-io/bindery/internal/config"
	"github.com/bindery-io/bindery/internal/session"
	"github.com/bindery-io/bindery/internal/web/middleware"
)

// Server is the Bindery edge server: the security pipeline wrapped around
// the application handler.
type Server struct {
	httpServer   *http.Server
	logger       *slog.Logger
	config       *ServerConfig
	mode         config.RuntimeMode
	startTime    time.Time
	limiter      middleware.Limiter
	sessionStore session.Store
	recorder     audit.Recorder
	app          http.Handler
}

// NewServer creates the edge server with the full middleware pipeline.
//
// Dependencies are injected explicitly rather than being part of ServerConfig.
// Configuration (what) stays separated from dependencies (how). Nil
// dependencies disable their pipeline stage:
//   - limiter: nil disables admission control (development)
//   - sessionStore: nil leaves every request anonymous
//   - recorder: nil disables audit publishing
//   - app: nil serves 404 for routes the edge does not own
func NewServer(
	cfg *ServerConfig,
	mode config.RuntimeMode,
	limiter middleware.Limiter,
	sessionStore session.Store,
	recorder audit.Recorder,
	app http.Handler,
) *Server {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	mux := http.NewServeMux()

	server := &Server{
		logger:       logger,
		config:       cfg,
		mode:         mode,
		limiter:      limiter,
		sessionStore: sessionStore,
		recorder:     recorder,
		app:          app,
	}

	server.setupRoutes(mux)

	if limiter != nil {
		logger.Info("Rate limiting middleware enabled")
	} else {
		logger.Warn("Rate limiter not configured - admission control disabled")
	}

	if sessionStore != nil {
		logger.Info("Session resolution middleware enabled")
	} else {
		logger.Warn("Session store not configured - all requests anonymous")
	}

	policyOverrides := middleware.LoadPolicyFile(middleware.PolicyPath())
	classifier := middleware.NewClassifier(policyOverrides.RouteClasses)
	headerPolicy := middleware.NewHeaderPolicy(mode, classifier)

	var enforcer *middleware.Enforcer
	if mode.IsProduction() {
		enforcer = middleware.NewEnforcer(mode, policyOverrides.HTTPSExemptPaths)
		logger.Info("HTTPS enforcement enabled")
	} else {
		logger.Info("HTTPS enforcement disabled in development mode")
	}

	corsConfig := cfg.ToCORSConfig()
	if len(policyOverrides.CORSAllowedOrigins) > 0 {
		corsConfig.AllowedOrigins = policyOverrides.CORSAllowedOrigins
	}

	// Middleware executes in the order listed (top-to-bottom):
	//   1. RequestID - tag every request and response
	//   2. Recovery - catch panics in all downstream stages
	//   3. RateLimit - reject floods before any expensive work (optional)
	//   4. SessionResolver - attach session context, never rejects (optional)
	//   5. HTTPSRedirect - 301 insecure production traffic (optional)
	//   6. RequestLogger - log only admitted requests, not rate-limited spam
	//   7. SecurityHeaders - merge hardening headers and the single CSP
	//   8. CORS - lightweight header manipulation on API routes
	handler := middleware.Apply(mux,
		middleware.WithRequestID(),
		middleware.WithRecovery(logger),
		middleware.WithRateLimit(limiter, recorder, logger),
		middleware.WithSessionResolver(sessionStore, logger),
		middleware.WithHTTPSRedirect(enforcer, recorder, logger),
		middleware.WithRequestLogger(logger),
		middleware.WithSecurityHeaders(headerPolicy),
		middleware.WithCORS(corsConfig, classifier),
	)

	server.httpServer = &http.Server{
		Addr:         cfg.Address(),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return server
}

// Handler exposes the fully wrapped pipeline. Used by tests that drive the
// server through httptest instead of a real listener.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the HTTP server and blocks until shutdown.
// It handles graceful shutdown on SIGINT and SIGTERM signals.
func (s *Server) Start() error {
	if err := s.config.Validate(); err != nil {
		return fmt.Errorf("invalid server configuration: %w", err)
	}

	s.startTime = time.Now()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("Starting Bindery edge server",
			slog.String("address", s.config.Address()),
			slog.String("mode", s.mode.String()),
			slog.Duration("read_timeout", s.config.ReadTimeout),
			slog.Duration("write_timeout", s.config.WriteTimeout),
			slog.Duration("shutdown_timeout", s.config.ShutdownTimeout),
		)

		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Server failed to start",
				slog.String("address", s.config.Address()),
				slog.String("error", err.Error()),
			)

			serverErrors <- fmt.Errorf("server failed to start: %w", err)
		}
	}()

	select {
	case err := <-serverErrors:
		return err
	case sig := <-stop:
		s.logger.Info("Received shutdown signal",
			slog.String("signal", sig.String()),
		)

		return s.shutdown()
	}
}

// shutdown gracefully shuts down the server and its dependencies.
func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Initiating server shutdown",
		slog.Duration("shutdown_timeout", s.config.ShutdownTimeout),
	)

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("Server shutdown failed",
			slog.String("error", err.Error()),
			slog.Duration("shutdown_timeout", s.config.ShutdownTimeout),
		)

		return fmt.Errorf("server shutdown failed: %w", err)
	}

	// Close session store to release database connections
	if s.sessionStore != nil {
		s.logger.Info("Closing session store")

		if store, ok := s.sessionStore.(io.Closer); ok {
			if err := store.Close(); err != nil {
				s.logger.Error("Failed to close session store", slog.String("error", err.Error()))
			} else {
				s.logger.Info("Session store closed successfully")
			}
		}
	}

	// Close rate limiter to stop background sweep goroutines
	if s.limiter != nil {
		s.logger.Info("Closing rate limiter")

		if limiter, ok := s.limiter.(io.Closer); ok {
			if err := limiter.Close(); err != nil {
				s.logger.Error("Failed to close rate limiter", slog.String("error", err.Error()))
			} else {
				s.logger.Info("Rate limiter closed successfully")
			}
		}
	}

	// Flush buffered audit events before exit
	if s.recorder != nil {
		if recorder, ok := s.recorder.(io.Closer); ok {
			s.logger.Info("Closing audit recorder")

			if err := recorder.Close(); err != nil {
				s.logger.Error("Failed to close audit recorder", slog.String("error", err.Error()))
			}
		}
	}

	s.logger.Info("Server shutdown completed successfully")

	return nil
}
