package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	healthhandler "github.com/commentors-net/Aegis-Mint/internal/health/handler"
)

// GRPCDeps holds the services exposed on the gRPC listener.
type GRPCDeps struct {
	// Health answers grpc.health.v1 checks. If nil, no health service is registered.
	Health *healthhandler.GRPCServer
}

// NewGRPCServer returns a gRPC server instrumented with OpenTelemetry and with deps registered.
func NewGRPCServer(deps GRPCDeps) *grpc.Server {
	s := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	RegisterServices(s, deps)
	return s
}

// RegisterServices registers the gRPC services in deps with s.
func RegisterServices(s grpc.ServiceRegistrar, deps GRPCDeps) {
	if deps.Health != nil {
		healthpb.RegisterHealthServer(s, deps.Health)
	}
}
