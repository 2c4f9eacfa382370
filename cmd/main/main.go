package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	conf "github.com/webitel/batch-sync/config"
	"github.com/webitel/batch-sync/internal/app"
	"github.com/webitel/batch-sync/internal/model"
	logging "github.com/webitel/batch-sync/internal/otel"

	// ------------ logging ------------ //
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	// -------------------- plugin(s) -------------------- //
	_ "github.com/webitel/webitel-go-kit/infra/otel/sdk/log/otlp"
	_ "github.com/webitel/webitel-go-kit/infra/otel/sdk/log/stdout"
	_ "github.com/webitel/webitel-go-kit/infra/otel/sdk/metric/otlp"
	_ "github.com/webitel/webitel-go-kit/infra/otel/sdk/metric/stdout"
	_ "github.com/webitel/webitel-go-kit/infra/otel/sdk/trace/otlp"
	_ "github.com/webitel/webitel-go-kit/infra/otel/sdk/trace/stdout"
)

func Run() {

	// Load configuration
	config, appErr := conf.LoadConfig()
	if appErr != nil {
		slog.Error("batch_sync.main.configuration_error", slog.String("error", appErr.Error()))
		return
	}

	// slog + OTEL logging
	service := resource.NewSchemaless(
		semconv.ServiceName(model.AppServiceName),
		semconv.ServiceVersion(model.CurrentVersion),
		semconv.ServiceInstanceID(config.Consul.Id),
		semconv.ServiceNamespace(model.NamespaceName),
	)
	shutdown := logging.Setup(service)

	// Initialize the application
	application, appErr := app.New(config, shutdown)
	if appErr != nil {
		slog.Error("batch_sync.main.application_initialization_error", slog.String("error", appErr.Error()))
		return
	}

	// Initialize signal handling for graceful shutdown
	initSignals(application)

	slog.Debug("batch_sync.main.configuration_loaded",
		slog.String("consul", config.Consul.Address),
		slog.String("grpc_address", config.Consul.PublicAddress),
		slog.String("consul_id", config.Consul.Id),
		slog.String("remote", config.Remote.Kind),
		slog.Int("resources", len(config.Sync.Resources)),
		slog.String("schedule", config.Sync.Schedule),
	)

	slog.Info("batch_sync.main.starting_application")
	startErr := application.Start(context.Background())
	if startErr != nil {
		slog.Error("batch_sync.main.application_start_error", slog.String("error", startErr.Error()))
	} else {
		slog.Info("batch_sync.main.application_stopped")
	}
}

func initSignals(application *app.App) {
	slog.Info("batch_sync.main.initializing_stop_signals")
	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		s := <-sigch
		handleSignal(s, application)
	}()
}

func handleSignal(signal os.Signal, application *app.App) {
	if err := application.Stop(); err != nil {
		slog.Error("batch_sync.main.stop_error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info(
		"batch_sync.main.received_kill_signal",
		slog.String("signal", signal.String()),
		slog.String("status", "service gracefully stopped"),
	)
	os.Exit(0)
}
