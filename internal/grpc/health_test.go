package grpc

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type stubPinger struct{ err error }

func (p *stubPinger) PingContext(context.Context) error { return p.err }

func TestProbeFollowsDatabase(t *testing.T) {
	db := &stubPinger{}
	s := NewHealthServer("127.0.0.1:0", db, 0)

	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, s.Probe(context.Background()))

	db.err = errors.New("connection refused")
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, s.Probe(context.Background()))
}

func TestHealthCheckOverTheWire(t *testing.T) {
	s := NewHealthServer("", &stubPinger{}, 0)
	s.Probe(context.Background())

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := grpclib.NewServer()
	s.Register(srv)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpclib.NewClient(lis.Addr().String(), grpclib.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestServeStopsOnCancel(t *testing.T) {
	s := NewHealthServer("127.0.0.1:0", &stubPinger{}, 0)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()
	cancel()

	assert.ErrorIs(t, <-done, context.Canceled)
}
