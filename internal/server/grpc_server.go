package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/oggyb/shaadimantra/internal/auth"
	"github.com/oggyb/shaadimantra/internal/config"
	svcErr "github.com/oggyb/shaadimantra/internal/errors"
	"github.com/oggyb/shaadimantra/internal/logger"
)

// NewGRPCServer builds a gRPC server with logging, error mapping and
// authentication, and registers all provided services. Health and
// reflection are always available and never require a token.
func NewGRPCServer(log *slog.Logger, verifier *auth.Verifier, registrars ...Registrar) *grpc.Server {
	public := []string{healthpb.Health_Check_FullMethodName}
	for _, r := range registrars {
		if p, ok := r.(PublicRegistrar); ok {
			public = append(public, p.PublicMethods()...)
		}
	}

	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(
		LoggingInterceptor(log),
		ErrorInterceptor(log),
		auth.UnaryServerInterceptor(verifier, public...),
	))

	// register all services
	for _, r := range registrars {
		r.Register(grpcServer)
	}

	healthpb.RegisterHealthServer(grpcServer, health.NewServer())

	// enable reflection for easier debugging with grpcurl
	reflection.Register(grpcServer)

	return grpcServer
}

// StartGRPCServer serves on the configured address until ctx is done, then
// stops gracefully.
func StartGRPCServer(ctx context.Context, cfg *config.Config, grpcServer *grpc.Server) error {
	addr := fmt.Sprintf("%s:%s", cfg.GRPC.Host, cfg.GRPC.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	go func() {
		<-ctx.Done()
		grpcServer.GracefulStop()
	}()

	if err := grpcServer.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return err
	}
	return nil
}

// ErrorInterceptor turns domain errors into status errors.
func ErrorInterceptor(log *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		if err != nil {
			return nil, svcErr.Map(logger.FromContext(ctx, log), err)
		}
		return resp, nil
	}
}

// LoggingInterceptor attaches a request-scoped logger and logs each call.
func LoggingInterceptor(log *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		l := log.With("method", info.FullMethod)
		resp, err := handler(logger.IntoContext(ctx, l), req)

		if err != nil {
			l.WarnContext(ctx, "rpc failed", "code", status.Code(err).String(), "err", err, logger.Since(start))
		} else {
			l.DebugContext(ctx, "rpc", logger.Since(start))
		}
		return resp, err
	}
}
