// Package handler reports liveness and readiness over HTTP and grpc.health.v1.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/commentors-net/Aegis-Mint/internal/platform/httpjson"
)

// checkTimeout bounds each readiness probe.
const checkTimeout = 2 * time.Second

var errDraining = errors.New("draining")

// Pinger checks the store (e.g. *sql.DB or the in-memory store).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker checks the policy engine.
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// PingContext implements Pinger.
func (f PingFunc) PingContext(ctx context.Context) error { return f(ctx) }

// Checker combines the readiness probes. Nil probes are skipped; Ready reports the drain state.
type Checker struct {
	pinger Pinger
	policy PolicyChecker
	ready  func() bool
}

// NewChecker returns a Checker. Any argument may be nil.
func NewChecker(pinger Pinger, policy PolicyChecker, ready func() bool) *Checker {
	return &Checker{pinger: pinger, policy: policy, ready: ready}
}

// Check returns nil when the service can take traffic.
func (c *Checker) Check(ctx context.Context) error {
	if c.ready != nil && !c.ready() {
		return errDraining
	}
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	if c.pinger != nil {
		if err := c.pinger.PingContext(ctx); err != nil {
			return err
		}
	}
	if c.policy != nil {
		if err := c.policy.HealthCheck(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Livez handles GET /livez.
func (c *Checker) Livez(w http.ResponseWriter, r *http.Request) {
	httpjson.Write(w, http.StatusOK, map[string]string{"status": "alive"})
}

// Readyz handles GET /readyz.
func (c *Checker) Readyz(w http.ResponseWriter, r *http.Request) {
	if err := c.Check(r.Context()); err != nil {
		slog.Warn("health: not ready", "err", err)
		httpjson.Write(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]string{"status": "ready"})
}

// GRPCServer implements grpc.health.v1 over a Checker. Only the overall service ("") is known.
type GRPCServer struct {
	healthpb.UnimplementedHealthServer
	checker *Checker
}

// NewGRPCServer returns a health server backed by checker.
func NewGRPCServer(checker *Checker) *GRPCServer {
	return &GRPCServer{checker: checker}
}

// Check reports SERVING or NOT_SERVING. Probe failures are never returned as gRPC errors.
func (s *GRPCServer) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	if req.GetService() != "" {
		return nil, status.Error(codes.NotFound, "unknown service")
	}
	if err := s.checker.Check(ctx); err != nil {
		return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}, nil
	}
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
}
