package server

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const defaultMonitorInterval = 10 * time.Second

type HealthSource interface {
	Healthy() bool
}

// HealthMonitor polls a HealthSource and mirrors it into the gRPC health
// server under one service name.
type HealthMonitor struct {
	health   *health.Server
	service  string
	source   HealthSource
	interval time.Duration

	started  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
	last     healthpb.HealthCheckResponse_ServingStatus
}

func NewHealthMonitor(hs *health.Server, service string, source HealthSource, interval time.Duration) *HealthMonitor {
	if interval <= 0 {
		interval = defaultMonitorInterval
	}
	return &HealthMonitor{
		health:   hs,
		service:  service,
		source:   source,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		last:     healthpb.HealthCheckResponse_UNKNOWN,
	}
}

func (m *HealthMonitor) Start() {
	m.started.Store(true)
	m.update()
	go m.loop()
}

func (m *HealthMonitor) Stop() {
	if !m.started.Load() {
		return
	}
	m.stopOnce.Do(func() {
		close(m.stopCh)
		<-m.doneCh
	})
}

func (m *HealthMonitor) loop() {
	defer close(m.doneCh)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.update()
		case <-m.stopCh:
			return
		}
	}
}

func (m *HealthMonitor) update() {
	status := healthpb.HealthCheckResponse_SERVING
	if !m.source.Healthy() {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	if status == m.last {
		return
	}
	if status == healthpb.HealthCheckResponse_NOT_SERVING {
		slog.Warn("Component unhealthy", "service", m.service)
	} else if m.last != healthpb.HealthCheckResponse_UNKNOWN {
		slog.Info("Component recovered", "service", m.service)
	}
	m.last = status
	m.health.SetServingStatus(m.service, status)
}
