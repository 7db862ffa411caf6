package httpapi

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"orgcore.org/internal/obs"
)

const serviceName = "orgcore-api"

// NewGRPCServer exposes the standard gRPC health service mirroring /readyz,
// for sidecar and load-balancer probes. The poller keeps the reported status
// in step with the backing store; stop the poller before GracefulStop.
func NewGRPCServer(probe ReadyProbe) (*grpc.Server, func()) {
	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		update := func() {
			status := healthpb.HealthCheckResponse_SERVING
			if err := probe.Check(ctx); err != nil {
				status = healthpb.HealthCheckResponse_NOT_SERVING
				obs.SetReady(false)
			} else {
				obs.SetReady(true)
			}
			hs.SetServingStatus("", status)
			hs.SetServingStatus(serviceName, status)
		}
		update()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				update()
			}
		}
	}()
	return srv, cancel
}
