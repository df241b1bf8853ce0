package grpc

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/Dhoini/parking-payments/internal/config"
	"github.com/Dhoini/parking-payments/pkg/logger"
)

func startServer(t *testing.T) (*Server, *Client) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := NewServer(config.GRPCConfig{
		MaxConnectionIdle: time.Minute,
		KeepaliveTime:     time.Minute,
		KeepaliveTimeout:  time.Second,
	}, logger.NewNop())
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	opts := DefaultClientOptions()
	opts.Address = "passthrough:///bufnet"
	opts.Timeout = time.Second
	opts.DialOptions = []grpc.DialOption{
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	}
	client, err := NewClient(opts, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return srv, client
}

func TestHealth_FollowsScheduler(t *testing.T) {
	srv, client := startServer(t)
	ctx := context.Background()

	status, err := client.Check(ctx, BillingServiceName)
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status)

	status, err = client.Check(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status, "server itself is up")

	var running atomic.Bool
	running.Store(true)
	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go srv.WatchScheduler(watchCtx, running.Load, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		s, err := client.Check(ctx, BillingServiceName)
		return err == nil && s == healthpb.HealthCheckResponse_SERVING
	}, time.Second, 10*time.Millisecond)

	running.Store(false)
	require.Eventually(t, func() bool {
		s, err := client.Check(ctx, BillingServiceName)
		return err == nil && s == healthpb.HealthCheckResponse_NOT_SERVING
	}, time.Second, 10*time.Millisecond)
}

func TestHealth_UnknownService(t *testing.T) {
	_, client := startServer(t)

	_, err := client.Check(context.Background(), "nope")
	assert.Error(t, err)
}

func TestRecoveryInterceptor(t *testing.T) {
	interceptor := RecoveryInterceptor(logger.NewNop())
	_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/x/Y"},
		func(ctx context.Context, req interface{}) (interface{}, error) { panic("boom") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "internal error")
}
