package grpc

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/abgdnv/storefront/pkg/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type togglePinger struct {
	down atomic.Bool
}

func (p *togglePinger) Ping(context.Context) error {
	if p.down.Load() {
		return errors.New("connection refused")
	}
	return nil
}

func startHealthServer(t *testing.T, h *HealthServer) healthpb.HealthClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := server.NewGRPCServer(discard, false, h.Register)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return healthpb.NewHealthClient(conn)
}

func Test_HealthServer_Check(t *testing.T) {
	// given
	pinger := &togglePinger{}
	h := NewHealthServer(pinger, time.Second, discard)
	client := startHealthServer(t, h)
	ctx := context.Background()

	before, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)

	// when
	up := h.Check(ctx)
	afterUp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	pinger.down.Store(true)
	down := h.Check(ctx)
	afterDown, err := client.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)

	// then
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, before.Status)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, up)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, afterUp.Status)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, down)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, afterDown.Status)
}

func Test_HealthServer_Run(t *testing.T) {
	// given
	h := NewHealthServer(&togglePinger{}, 10*time.Millisecond, discard)
	client := startHealthServer(t, h)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	// when
	go func() { done <- h.Run(ctx) }()

	// then
	require.Eventually(t, func() bool {
		res, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
		return err == nil && res.Status == healthpb.HealthCheckResponse_SERVING
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	res, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, res.Status)
}
