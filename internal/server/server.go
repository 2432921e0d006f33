// Package server runs the HTTP API and the gRPC health listener.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/atomic"
	"google.golang.org/grpc"

	healthhandler "github.com/commentors-net/Aegis-Mint/internal/health/handler"
	"github.com/commentors-net/Aegis-Mint/internal/platform/httpjson"
)

// HTTPServerConfig configures Server.
type HTTPServerConfig struct {
	ListenAddr     string
	HealthGRPCAddr string
	Log            *slog.Logger

	DrainDuration            time.Duration
	GracefulShutdownDuration time.Duration
	ReadTimeout              time.Duration
	WriteTimeout             time.Duration
}

// Server owns the HTTP listener, the optional gRPC health listener and the drain state.
type Server struct {
	cfg     *HTTPServerConfig
	isReady atomic.Bool
	log     *slog.Logger

	srv  *http.Server
	grpc *grpc.Server
}

// Probes are the readiness dependencies. Either may be nil.
type Probes struct {
	Pinger healthhandler.Pinger
	Policy healthhandler.PolicyChecker
}

// New builds a Server. Readiness combines probes with the drain state and is served on /readyz and,
// when HealthGRPCAddr is set, on grpc.health.v1. /drain and /undrain toggle the drain state.
func New(cfg *HTTPServerConfig, deps RouterDeps, probes Probes) *Server {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	s := &Server{cfg: cfg, log: log}
	s.isReady.Store(true)
	deps.Log = log
	checker := healthhandler.NewChecker(probes.Pinger, probes.Policy, s.Ready)
	deps.Health = checker

	s.srv = &http.Server{
		Addr: cfg.ListenAddr,
		Handler: NewRouter(deps, func(r chi.Router) {
			r.Get("/drain", s.handleDrain)
			r.Get("/undrain", s.handleUndrain)
		}),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	if cfg.HealthGRPCAddr != "" {
		s.grpc = NewGRPCServer(GRPCDeps{Health: healthhandler.NewGRPCServer(checker)})
	}
	return s
}

// Ready reports whether the server is accepting traffic (not draining).
func (s *Server) Ready() bool {
	return s.isReady.Load()
}

// Handler returns the HTTP handler. Intended for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

func (s *Server) handleDrain(w http.ResponseWriter, r *http.Request) {
	if !s.isReady.Swap(false) {
		httpjson.Write(w, http.StatusOK, map[string]string{"status": "already draining"})
		return
	}
	s.log.Info("Server marked as not ready")
	httpjson.Write(w, http.StatusOK, map[string]string{"status": "draining"})
}

func (s *Server) handleUndrain(w http.ResponseWriter, r *http.Request) {
	if s.isReady.Swap(true) {
		httpjson.Write(w, http.StatusOK, map[string]string{"status": "already ready"})
		return
	}
	s.log.Info("Server marked as ready")
	httpjson.Write(w, http.StatusOK, map[string]string{"status": "ready"})
}

// RunInBackground starts the listeners.
func (s *Server) RunInBackground() {
	if s.grpc != nil {
		go func() {
			lis, err := net.Listen("tcp", s.cfg.HealthGRPCAddr)
			if err != nil {
				s.log.Error("gRPC health listen failed", "err", err)
				return
			}
			s.log.Info("Starting gRPC health server", "listenAddress", s.cfg.HealthGRPCAddr)
			if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				s.log.Error("gRPC health server failed", "err", err)
			}
		}()
	}
	go func() {
		s.log.Info("Starting HTTP server", "listenAddress", s.cfg.ListenAddr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("HTTP server failed", "err", err)
		}
	}()
}

// Shutdown marks the server not ready, waits DrainDuration so load balancers notice, then stops
// both listeners gracefully.
func (s *Server) Shutdown() {
	if s.isReady.Swap(false) && s.cfg.DrainDuration > 0 {
		s.log.Info("Draining before shutdown", "duration", s.cfg.DrainDuration)
		time.Sleep(s.cfg.DrainDuration)
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.GracefulShutdownDuration)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		s.log.Error("Graceful HTTP server shutdown failed", "err", err)
	} else {
		s.log.Info("HTTP server gracefully stopped")
	}
	if s.grpc != nil {
		s.grpc.GracefulStop()
		s.log.Info("gRPC health server stopped")
	}
}
