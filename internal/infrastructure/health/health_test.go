package health

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/GriffinCanCode/kioskhelper/internal/infrastructure/tracing"
)

func TestCheckReport(t *testing.T) {
	s := New(zap.NewNop(), nil)
	s.Register("kiosk.session", func(context.Context) error { return nil })
	s.Register("kiosk.platform", func(context.Context) error { return errors.New("circuit open") })

	report := s.Check(context.Background())
	assert.False(t, report.Healthy)
	assert.Equal(t, "ok", report.Checks["kiosk.session"])
	assert.Equal(t, "circuit open", report.Checks["kiosk.platform"])
	assert.Equal(t, report.Checks, s.Last().Checks)
}

func TestProbeTimeout(t *testing.T) {
	s := New(zap.NewNop(), nil)
	s.timeout = 10 * time.Millisecond
	s.Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	report := s.Check(context.Background())
	assert.False(t, report.Healthy)
	assert.Contains(t, report.Checks["slow"], "deadline")
}

func TestGRPCHealth(t *testing.T) {
	tracer := tracing.New("health-test", zap.NewNop())
	defer tracer.Close()

	s := New(zap.NewNop(), tracer)
	healthy := true
	s.Register("kiosk.session", func(context.Context) error {
		if healthy {
			return nil
		}
		return errors.New("unreadable")
	})

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = s.Serve(lis) }()
	defer s.Stop()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)

	s.Check(ctx)
	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: "kiosk.session"})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)

	healthy = false
	s.Check(ctx)
	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: "kiosk.session"})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)
}
