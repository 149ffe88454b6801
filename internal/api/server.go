package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/scttfrdmn/droprealms-api/internal/config"
	"github.com/scttfrdmn/droprealms-api/internal/metrics"
	"github.com/scttfrdmn/droprealms-api/internal/notify"
	"github.com/scttfrdmn/droprealms-api/pkg/types"
	"go.uber.org/zap"
)

// Greeting is served on GET /
const Greeting = "Welcome to droprealms!"

// InstanceController is the compute control surface the handlers drive
type InstanceController interface {
	StartInstance(ctx context.Context, ref types.InstanceRef) (*types.Operation, error)
	StopInstance(ctx context.Context, ref types.InstanceRef) (*types.Operation, error)
	DescribeInstance(ctx context.Context, ref types.InstanceRef) (*types.InstanceSnapshot, error)
	GetExternalIP(ctx context.Context, ref types.InstanceRef) (*types.ExternalIPLookup, error)
}

// Server exposes the instance control endpoints over HTTP
type Server struct {
	logger    *zap.Logger
	config    *config.Config
	instances InstanceController
	notifier  notify.Notifier
	metrics   *metrics.Recorder
	handler   http.Handler
}

// NewServer wires the routes. A nil notifier disables notifications.
func NewServer(logger *zap.Logger, cfg *config.Config, instances InstanceController, notifier notify.Notifier, recorder *metrics.Recorder) *Server {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	s := &Server{
		logger:    logger,
		config:    cfg,
		instances: instances,
		notifier:  notifier,
		metrics:   recorder,
	}
	s.handler = s.routes()
	return s
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	s.handle(mux, "GET /{$}", s.handleRoot)
	s.handle(mux, "GET /healthz", s.handleHealth)
	s.handle(mux, "POST /instance/start", s.handleStart)
	s.handle(mux, "POST /instance/stop", s.handleStop)
	s.handle(mux, "POST /instance/ip", s.handleIP)
	s.handle(mux, "POST /instance/status", s.handleStatus)

	if s.config.Metrics.Enabled && s.metrics != nil {
		mux.Handle("GET "+s.config.Metrics.Path, s.metrics.Handler())
	}

	return mux
}

// handle registers fn under pattern with request ID, logging and metrics
func (s *Server) handle(mux *http.ServeMux, pattern string, fn http.HandlerFunc) {
	mux.Handle(pattern, s.instrument(pattern, fn))
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Server.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Server.Address, err)
	}
	return s.Serve(ctx, listener)
}

// Serve is Run on an existing listener
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.handler,
		ReadTimeout:       time.Duration(s.config.Server.ReadTimeout) * time.Second,
		ReadHeaderTimeout: time.Duration(s.config.Server.ReadTimeout) * time.Second,
		WriteTimeout:      time.Duration(s.config.Server.WriteTimeout) * time.Second,
		ErrorLog:          zap.NewStdLog(s.logger.Named("http")),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("droprealms api is ready", zap.String("address", listener.Addr().String()))
		errCh <- httpServer.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("Shutdown initiated")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeoutDuration())
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}

	s.logger.Info("Shutdown complete")
	return nil
}
