// Package server exposes the phone verification flow over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/civichero/civichero/internal/audit"
	"github.com/civichero/civichero/internal/otp"
	"github.com/civichero/civichero/internal/sms"
	"github.com/google/uuid"
)

// EnvProduction disables the development code echo.
const EnvProduction = "production"

// Config holds HTTP settings.
type Config struct {
	Addr        string
	Environment string
	// MaxBodyBytes caps request bodies.
	MaxBodyBytes int64
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration
}

// Server serves the OTP endpoints.
type Server struct {
	config   Config
	registry *otp.Registry
	sender   sms.Sender
	audit    audit.Recorder
	logger   *log.Logger
	mux      *http.ServeMux
	newID    func() string
}

// New creates a server. recorder may be nil.
func New(cfg Config, registry *otp.Registry, sender sms.Sender, recorder audit.Recorder, logger *log.Logger) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{
		config:   cfg,
		registry: registry,
		sender:   sender,
		audit:    recorder,
		logger:   logger.WithPrefix("http"),
		mux:      http.NewServeMux(),
		newID:    uuid.NewString,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("POST /otp/send", s.handleSend)
	s.mux.HandleFunc("POST /otp/verify", s.handleVerify)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
}

// Handler returns the routes wrapped in middleware.
func (s *Server) Handler() http.Handler {
	return chain(s.mux,
		s.requestID,
		s.accessLog,
		s.recoverPanics,
		s.limitBody,
		compress,
	)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("Listening", "addr", s.config.Addr, "environment", s.config.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errc
}

func (s *Server) production() bool {
	return s.config.Environment == EnvProduction
}

func (s *Server) record(ctx context.Context, number string, kind audit.Kind, detail string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, audit.Event{Phone: number, Kind: kind, Detail: detail}); err != nil {
		s.logger.Warn("Could not record audit event", "kind", kind, "err", err)
	}
}
