package resolver

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// NewGRPCServer builds the resolver's gRPC status surface: a standard
// health service reporting SERVING once every configured chain is
// reachable, mirroring stellar-live-source/go/main.go's split between a
// gRPC server and a separate HTTP health endpoint (here folded into one
// process exposing both protocols, per spec.md §4.7's status surface).
// The caller is expected to run WatchHealth(ctx, hs) in its own
// goroutine alongside Start.
func NewGRPCServer(svc *Service) (*grpc.Server, *health.Server) {
	hs := health.NewServer()
	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	return gs, hs
}

// WatchHealth keeps hs's overall serving status in sync with the
// aggregate chain health Status reports, until ctx is cancelled.
func (s *Service) WatchHealth(ctx context.Context, hs *health.Server) {
	ticker := time.NewTicker(s.cfg.StatusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := s.Status(ctx)
			serving := healthpb.HealthCheckResponse_SERVING
			for _, c := range st.Chains {
				if c.Degraded {
					serving = healthpb.HealthCheckResponse_NOT_SERVING
					break
				}
			}
			hs.SetServingStatus("", serving)
		}
	}
}
