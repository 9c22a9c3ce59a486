package server

import (
	"context"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"accountability-assistant/backend/internal/logger"
)

// HealthService is the service name reported on the gRPC health endpoint.
const HealthService = "accountability.auth.v1.AuthFlow"

// NewGRPCServer returns a gRPC server exposing hs as grpc.health.v1.Health, instrumented with
// otelgrpc. Reflection is registered when reflect is true.
func NewGRPCServer(hs *health.Server, log *zap.Logger, reflect bool) *grpc.Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(LoggingUnary(log)),
	)
	healthpb.RegisterHealthServer(s, hs)
	if reflect {
		reflection.Register(s)
	}
	return s
}

// LoggingUnary logs each unary RPC with its status code and duration. Health probes are logged
// at debug level.
func LoggingUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		fields := []zap.Field{
			logger.Method(info.FullMethod),
			zap.String("code", status.Code(err).String()),
			logger.Duration(time.Since(start)),
		}
		if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
			fields = append(fields, logger.ClientIP(p.Addr.String()))
		}
		if info.FullMethod == healthpb.Health_Check_FullMethodName {
			log.Debug("grpc request", fields...)
		} else {
			log.Info("grpc request", fields...)
		}
		return resp, err
	}
}
