package server

import (
	"fmt"
	"net"

	"github.com/bufbuild/protovalidate-go"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	conf "github.com/webitel/batch-sync/config"
	"github.com/webitel/batch-sync/internal/errors"
	"github.com/webitel/batch-sync/internal/server/interceptor"
	"github.com/webitel/batch-sync/registry"
	"github.com/webitel/batch-sync/registry/consul"
)

type Server struct {
	Server   *grpc.Server
	Health   *health.Server
	listener net.Listener
	config   *conf.ConsulConfig
	exitChan chan error
	registry registry.ServiceRegistrator
}

// BuildServer constructs and configures a new gRPC server with interceptors.
func BuildServer(config *conf.ConsulConfig, exitChan chan error) (*Server, error) {
	// Initialize protovalidate validator
	val, err := protovalidate.New(protovalidate.WithFailFast(true))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize protovalidate: %w", err)
	}

	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			interceptor.OuterInterceptor(),
			interceptor.ValidateUnaryServerInterceptor(val),
		),
	)

	// Open a TCP listener on the configured address
	listener, err := net.Listen("tcp", config.PublicAddress)
	if err != nil {
		return nil, errors.Internal(
			err.Error(),
			errors.WithID("server.build.listen.error"),
		)
	}

	// Initialize Consul service registry
	reg, err := consul.NewConsulRegistry(config)
	if err != nil {
		_ = listener.Close()
		return nil, errors.Internal(
			err.Error(),
			errors.WithID("server.build.consul_registry.error"),
		)
	}

	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)

	// Register gRPC reflection for debugging
	reflection.Register(s)

	return &Server{
		Server:   s,
		Health:   hs,
		listener: listener,
		exitChan: exitChan,
		config:   config,
		registry: reg,
	}, nil
}

// Start registers and starts the gRPC server
func (s *Server) Start() {
	if err := s.registry.Register(); err != nil {
		s.exitChan <- err
		return
	}
	s.Health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	if err := s.Server.Serve(s.listener); err != nil {
		s.exitChan <- errors.Internal(
			err.Error(),
			errors.WithID("server.start.serve.error"),
		)
	}
}

// Stop deregisters the service and gracefully stops the gRPC server
func (s *Server) Stop() {
	s.Health.Shutdown()
	if err := s.registry.Deregister(); err != nil {
		s.exitChan <- err
		return
	}
	s.Server.GracefulStop()
}
