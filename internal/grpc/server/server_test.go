package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestServer_HealthService(t *testing.T) {
	src := &flagSource{}
	src.healthy.Store(true)

	srv := NewServer(0, nil)
	srv.Monitor("reconciler", src, 5*time.Millisecond)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()
	t.Cleanup(func() {
		require.NoError(t, srv.StopWithTimeout(time.Second))
		assert.NoError(t, <-errCh)
	})

	conn, err := grpc.NewClient(srv.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)

	src.healthy.Store(false)
	require.Eventually(t, func() bool {
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: "reconciler"})
		return err == nil && resp.Status == healthpb.HealthCheckResponse_NOT_SERVING
	}, 2*time.Second, 10*time.Millisecond)

	_, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: "unknown"})
	assert.Error(t, err)
}

func TestServer_TLSMisconfigured(t *testing.T) {
	srv := NewServer(0, &TLSConfig{Enabled: true, ClientAuth: "sometimes"})
	assert.Error(t, srv.Start())
	assert.NoError(t, srv.StopWithTimeout(time.Second))
}
