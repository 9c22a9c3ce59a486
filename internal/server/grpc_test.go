package server

import (
	"context"
	"errors"
	"net"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func TestNewGRPCServer_ServesHealth(t *testing.T) {
	hs := health.NewServer()
	hs.SetServingStatus(HealthService, healthpb.HealthCheckResponse_SERVING)
	s := NewGRPCServer(hs, nil, true)

	lis := bufconn.Listen(1 << 20)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: HealthService})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("status = %v, want SERVING", resp.GetStatus())
	}

	_, err = healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: "unknown"})
	if status.Code(err) != codes.NotFound {
		t.Errorf("unknown service code = %v, want NotFound", status.Code(err))
	}
}

func TestLoggingUnary(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	icpt := LoggingUnary(zap.New(core))

	_, err := icpt(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/svc/Method"},
		func(ctx context.Context, req interface{}) (interface{}, error) {
			return nil, status.Error(codes.Unavailable, "down")
		})
	if status.Code(err) != codes.Unavailable {
		t.Fatalf("err = %v, want handler error passed through", err)
	}
	_, _ = icpt(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: healthpb.Health_Check_FullMethodName},
		func(ctx context.Context, req interface{}) (interface{}, error) { return nil, errors.New("x") })

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("log entries = %d, want 2", len(entries))
	}
	if entries[0].Level != zap.InfoLevel || entries[0].ContextMap()["code"] != "Unavailable" {
		t.Errorf("first entry = %+v", entries[0])
	}
	if entries[1].Level != zap.DebugLevel {
		t.Errorf("health probe logged at %v, want debug", entries[1].Level)
	}
}
