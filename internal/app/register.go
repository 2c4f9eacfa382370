package app

import (
	"log/slog"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/webitel/batch-sync/internal/server"
)

// serviceRegistration tracks the serving status of one gRPC health entry.
type serviceRegistration struct {
	ready func(*App) bool // Reports whether the dependency is usable
	name  string          // Health service name
}

// RegisterServices publishes the health of the sync pipeline parts on the
// gRPC health service.
func RegisterServices(srv *server.Server, appInstance *App) {
	services := []serviceRegistration{
		{
			ready: func(a *App) bool { return a.Synchronizer != nil && a.Sync != nil },
			name:  "batch_sync.Synchronizer",
		},
		{
			ready: func(a *App) bool { return a.scheduler != nil },
			name:  "batch_sync.Scheduler",
		},
	}

	for _, service := range services {
		status := healthpb.HealthCheckResponse_SERVING
		if !service.ready(appInstance) {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			slog.Warn("batch_sync.main.service_not_ready", slog.String("service", service.name))
		}
		srv.Health.SetServingStatus(service.name, status)
		slog.Debug("batch_sync.main.service_registered", slog.String("service", service.name))
	}
}
