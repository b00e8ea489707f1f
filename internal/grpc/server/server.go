package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	grpctls "github.com/EternisAI/silo-runners/internal/grpc/tls"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type TLSConfig struct {
	Enabled    bool
	CertFile   string
	KeyFile    string
	CAFile     string
	ClientAuth string
}

// Server exposes the standard gRPC health service. The empty service name
// reflects the process; each monitored component gets its own entry.
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	monitors   []*HealthMonitor
	port       int
	tlsConfig  *TLSConfig

	mu       sync.Mutex
	listener net.Listener
	ready    chan struct{}
}

func NewServer(port int, tlsConfig *TLSConfig) *Server {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	return &Server{
		health:    hs,
		port:      port,
		tlsConfig: tlsConfig,
		ready:     make(chan struct{}),
	}
}

// Monitor reports source under service. It must be called before Start.
func (s *Server) Monitor(service string, source HealthSource, interval time.Duration) {
	s.monitors = append(s.monitors, NewHealthMonitor(s.health, service, source, interval))
}

func (s *Server) Start() error {
	opts := []grpc.ServerOption{}
	if s.tlsConfig != nil && s.tlsConfig.Enabled {
		creds, err := grpctls.ServerCredentials(grpctls.ServerConfig{
			CertFile:   s.tlsConfig.CertFile,
			KeyFile:    s.tlsConfig.KeyFile,
			CAFile:     s.tlsConfig.CAFile,
			ClientAuth: s.tlsConfig.ClientAuth,
		})
		if err != nil {
			return fmt.Errorf("failed to load TLS credentials: %w", err)
		}
		opts = append(opts, grpc.Creds(creds))
		slog.Info("gRPC TLS enabled", "client_auth", s.tlsConfig.ClientAuth)
	}

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.port, err)
	}

	s.mu.Lock()
	s.listener = lis
	s.grpcServer = grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	srv := s.grpcServer
	s.mu.Unlock()

	for _, m := range s.monitors {
		m.Start()
	}
	close(s.ready)

	slog.Info("Starting gRPC server", "address", lis.Addr().String())

	if err := srv.Serve(lis); err != nil {
		return fmt.Errorf("failed to serve gRPC: %w", err)
	}

	return nil
}

// Addr blocks until Start has bound its listener.
func (s *Server) Addr() net.Addr {
	<-s.ready
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listener.Addr()
}

func (s *Server) Stop(ctx context.Context) error {
	slog.Info("Stopping gRPC server")

	for _, m := range s.monitors {
		m.Stop()
	}
	s.health.Shutdown()

	s.mu.Lock()
	srv := s.grpcServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	stopped := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		slog.Info("gRPC server stopped gracefully")
	case <-ctx.Done():
		slog.Warn("gRPC server stop timeout, forcing shutdown")
		srv.Stop()
	}

	return nil
}

func (s *Server) StopWithTimeout(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.Stop(ctx)
}
