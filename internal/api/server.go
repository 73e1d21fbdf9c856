package api

import (
	"context"
	"fmt"
	"net"
	"time"

	"termin/internal/config"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
)

const (
	grpcStopTimeout = 10 * time.Second
	// admin payloads are a handful of ids or one slot
	grpcMaxRecvBytes = 256 << 10
)

// GRPCServer hosts the admin service and the standard health service.
type GRPCServer struct {
	server   *grpc.Server
	health   *health.Server
	listener net.Listener
	log      zerolog.Logger
}

func NewGRPCServer(cfg *config.APIConfig, admin AdminServer, logger *zerolog.Logger) (*GRPCServer, error) {
	addr := fmt.Sprintf(":%d", cfg.GRPC.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("grpc listen %s: %w", addr, err)
	}

	srv, err := newGRPCServer(cfg, lis, admin, logger)
	if err != nil {
		_ = lis.Close()
		return nil, err
	}
	return srv, nil
}

// newGRPCServer serves on an existing listener (bufconn in tests).
func newGRPCServer(cfg *config.APIConfig, lis net.Listener, admin AdminServer, logger *zerolog.Logger) (*GRPCServer, error) {
	opts, err := grpcServerOptions(cfg, logger)
	if err != nil {
		return nil, err
	}

	s := &GRPCServer{
		server:   grpc.NewServer(opts...),
		health:   health.NewServer(),
		listener: lis,
		log:      zerolog.Nop(),
	}
	if logger != nil {
		s.log = logger.With().Str("component", "grpc").Logger()
	}

	RegisterAdminServer(s.server, admin)
	healthpb.RegisterHealthServer(s.server, s.health)
	s.health.SetServingStatus(adminServiceName, healthpb.HealthCheckResponse_SERVING)

	if cfg.GRPC.Reflection {
		reflection.Register(s.server)
	}
	return s, nil
}

func grpcServerOptions(cfg *config.APIConfig, logger *zerolog.Logger) ([]grpc.ServerOption, error) {
	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			LoggingUnaryInterceptor(logger),
			NewAuthInterceptor(cfg).Unary(),
		),
		grpc.MaxRecvMsgSize(grpcMaxRecvBytes),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle: 5 * time.Minute,
			Time:              time.Minute,
			Timeout:           20 * time.Second,
		}),
	}

	if cfg.GRPC.TLS.Enabled {
		tlsCfg, err := buildTLSConfig(cfg.GRPC.TLS)
		if err != nil {
			return nil, err
		}
		opts = append(opts, grpc.Creds(credentials.NewTLS(tlsCfg)))
	}
	return opts, nil
}

func (s *GRPCServer) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *GRPCServer) Serve() error {
	s.log.Info().Str("addr", s.Addr()).Msg("gRPC admin API listening")
	return s.server.Serve(s.listener)
}

// Shutdown drains in-flight calls until ctx ends or grpcStopTimeout passes,
// then drops the rest.
func (s *GRPCServer) Shutdown(ctx context.Context) {
	// health watchers see NOT_SERVING before the connections drain
	s.health.Shutdown()

	ctx, cancel := context.WithTimeout(ctx, grpcStopTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn().Msg("gRPC graceful shutdown timed out; forcing stop")
		s.server.Stop()
	}
}
