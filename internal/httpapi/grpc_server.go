package httpapi

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthService publishes store readiness over the standard gRPC health
// protocol, both for the whole server ("") and under serviceName.
type HealthService struct {
	srv   *health.Server
	ready ReadyProbe
	log   *zap.Logger
}

func NewHealthService(ready ReadyProbe, log *zap.Logger) *HealthService {
	if log == nil {
		log = zap.NewNop()
	}
	h := &HealthService{srv: health.NewServer(), ready: ready, log: log}
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

// Register attaches the health service to s.
func (h *HealthService) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.srv)
}

func (h *HealthService) set(status healthpb.HealthCheckResponse_ServingStatus) {
	h.srv.SetServingStatus("", status)
	h.srv.SetServingStatus(serviceName, status)
}

// Refresh pings the store once and updates the published status.
func (h *HealthService) Refresh(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := h.ready.Ping(ctx); err != nil {
		h.log.Warn("grpc health: store not ready", zap.Error(err))
		h.set(healthpb.HealthCheckResponse_NOT_SERVING)
		return
	}
	h.set(healthpb.HealthCheckResponse_SERVING)
}

// Run refreshes the status every interval until ctx ends, then reports
// NOT_SERVING to any watchers.
func (h *HealthService) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	h.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			h.srv.Shutdown()
			return
		case <-t.C:
			h.Refresh(ctx)
		}
	}
}
