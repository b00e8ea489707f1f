package server

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type MockHealthSource struct {
	mock.Mock
}

func (m *MockHealthSource) Healthy() bool {
	return m.Called().Bool(0)
}

type flagSource struct {
	healthy atomic.Bool
}

func (f *flagSource) Healthy() bool { return f.healthy.Load() }

func status(t *testing.T, hs *health.Server, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := hs.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.Status
}

func TestHealthMonitor_InitialStatus(t *testing.T) {
	src := &MockHealthSource{}
	src.On("Healthy").Return(false)

	hs := health.NewServer()
	m := NewHealthMonitor(hs, "reconciler", src, time.Hour)
	m.Start()
	defer m.Stop()

	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status(t, hs, "reconciler"))
	src.AssertNumberOfCalls(t, "Healthy", 1)
}

func TestHealthMonitor_FollowsSource(t *testing.T) {
	src := &flagSource{}
	src.healthy.Store(true)

	hs := health.NewServer()
	m := NewHealthMonitor(hs, "reconciler", src, 5*time.Millisecond)
	m.Start()
	defer m.Stop()

	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status(t, hs, "reconciler"))

	src.healthy.Store(false)
	require.Eventually(t, func() bool {
		return status(t, hs, "reconciler") == healthpb.HealthCheckResponse_NOT_SERVING
	}, time.Second, 5*time.Millisecond)

	src.healthy.Store(true)
	require.Eventually(t, func() bool {
		return status(t, hs, "reconciler") == healthpb.HealthCheckResponse_SERVING
	}, time.Second, 5*time.Millisecond)
}

func TestHealthMonitor_StopWithoutStart(t *testing.T) {
	m := NewHealthMonitor(health.NewServer(), "reconciler", &flagSource{}, time.Second)
	m.Stop()
}
