// Package grpc exposes the standard gRPC health service, driven by store reachability.
package grpc

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health entry reported next to the overall server status.
const ServiceName = "storefront"

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthServer mirrors the store's reachability into grpc.health.v1.Health.
type HealthServer struct {
	health   *health.Server
	store    Pinger
	interval time.Duration
	logger   *slog.Logger
}

// NewHealthServer starts in NOT_SERVING until the first successful check.
func NewHealthServer(store Pinger, interval time.Duration, logger *slog.Logger) *HealthServer {
	h := &HealthServer{
		health:   health.NewServer(),
		store:    store,
		interval: interval,
		logger:   logger.With("component", "grpc-health"),
	}
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

// Register adds the health service to s.
func (h *HealthServer) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.health)
}

// Check pings the store once and updates the reported status.
func (h *HealthServer) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	pingCtx, cancel := context.WithTimeout(ctx, h.interval)
	defer cancel()
	status := healthpb.HealthCheckResponse_SERVING
	if err := h.store.Ping(pingCtx); err != nil {
		h.logger.WarnContext(ctx, "Store ping failed", "error", err)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.set(status)
	return status
}

// Run checks the store every interval until ctx is done, then reports NOT_SERVING for good.
func (h *HealthServer) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	h.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			h.health.Shutdown()
			return nil
		case <-ticker.C:
			h.Check(ctx)
		}
	}
}

func (h *HealthServer) set(status healthpb.HealthCheckResponse_ServingStatus) {
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(ServiceName, status)
}
