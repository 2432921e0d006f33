package server

import (
	"testing"

	"google.golang.org/grpc"

	healthhandler "github.com/commentors-net/Aegis-Mint/internal/health/handler"
)

// mockServiceRegistrar implements grpc.ServiceRegistrar for testing.
type mockServiceRegistrar struct {
	services []string
}

func (m *mockServiceRegistrar) RegisterService(desc *grpc.ServiceDesc, impl interface{}) {
	m.services = append(m.services, desc.ServiceName)
}

func TestRegisterServices_Health(t *testing.T) {
	reg := &mockServiceRegistrar{}
	RegisterServices(reg, GRPCDeps{Health: healthhandler.NewGRPCServer(healthhandler.NewChecker(nil, nil, nil))})
	if len(reg.services) != 1 || reg.services[0] != "grpc.health.v1.Health" {
		t.Errorf("services = %v, want [grpc.health.v1.Health]", reg.services)
	}
}

func TestRegisterServices_NothingWhenNil(t *testing.T) {
	reg := &mockServiceRegistrar{}
	RegisterServices(reg, GRPCDeps{})
	if len(reg.services) != 0 {
		t.Errorf("services = %v, want none", reg.services)
	}
}

func TestNewGRPCServer(t *testing.T) {
	s := NewGRPCServer(GRPCDeps{Health: healthhandler.NewGRPCServer(healthhandler.NewChecker(nil, nil, nil))})
	defer s.Stop()
	if _, ok := s.GetServiceInfo()["grpc.health.v1.Health"]; !ok {
		t.Error("health service not registered")
	}
}
