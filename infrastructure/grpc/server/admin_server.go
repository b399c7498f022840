package server

import (
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// AdminServer exposes grpc.health.v1 and server reflection for operators
// and orchestrators probing the process.
type AdminServer struct {
	log    *slog.Logger
	server *grpc.Server
	health *health.Server
}

func NewAdminServer(log *slog.Logger) *AdminServer {
	s := grpc.NewServer()
	h := health.NewServer()
	healthpb.RegisterHealthServer(s, h)
	reflection.Register(s)
	return &AdminServer{log: log, server: s, health: h}
}

// Serve blocks until Stop is called.
func (a *AdminServer) Serve(listener net.Listener) error {
	a.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	a.log.Info("Starting gRPC admin server", "address", listener.Addr().String())
	if err := a.server.Serve(listener); err != nil && err != grpc.ErrServerStopped {
		return fmt.Errorf("gRPC server error: %w", err)
	}
	return nil
}

// Stop flips health to NOT_SERVING before draining.
func (a *AdminServer) Stop() {
	a.health.Shutdown()
	a.server.GracefulStop()
}
