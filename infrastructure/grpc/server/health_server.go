package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"market-chat/contract"

	sdkgrpc "github.com/mama165/sdk-go/grpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

var _ contract.Worker = (*HealthServer)(nil)

// ServiceName is the name probed by clients that check more than the overall status.
const ServiceName = "market-chat.Chat"

// Prober reports whether a dependency answers.
type Prober interface {
	Ping() error
}

// HealthServer serves grpc.health.v1 and flips to NOT_SERVING while the store does not answer.
type HealthServer struct {
	log      *slog.Logger
	address  string
	interval time.Duration
	probe    Prober
	health   *health.Server
}

func NewHealthServer(log *slog.Logger, host string, port int, interval time.Duration, probe Prober) *HealthServer {
	return &HealthServer{
		log:      log,
		address:  net.JoinHostPort(host, fmt.Sprintf("%d", port)),
		interval: interval,
		probe:    probe,
		health:   health.NewServer(),
	}
}

// Check probes the store once and publishes the result.
func (s *HealthServer) Check() healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if err := s.probe.Ping(); err != nil {
		s.log.Warn("Store probe failed", "error", err)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
	return status
}

func (s *HealthServer) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.address, err)
	}
	return s.Serve(ctx, listener)
}

// Serve blocks until ctx is done. A new grpc.Server is built on every call
// since a stopped one cannot serve again after a supervisor restart.
func (s *HealthServer) Serve(ctx context.Context, listener net.Listener) error {
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(sdkgrpc.UnaryLoggingInterceptor(s.log)))
	healthpb.RegisterHealthServer(grpcServer, s.health)
	s.health.Resume()
	s.Check()

	errChan := make(chan error, 1)
	go func() {
		s.log.Info("Starting gRPC health server", "address", listener.Addr().String())
		if err := grpcServer.Serve(listener); err != nil && err != grpc.ErrServerStopped {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.health.Shutdown()
			grpcServer.GracefulStop()
			return nil
		case err := <-errChan:
			grpcServer.Stop()
			return err
		case <-ticker.C:
			s.Check()
		}
	}
}
