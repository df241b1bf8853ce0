package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	grpcapi "github.com/Dhoini/parking-payments/internal/api/grpc"
	"github.com/Dhoini/parking-payments/internal/app"
	"github.com/Dhoini/parking-payments/internal/config"
	"github.com/Dhoini/parking-payments/pkg/logger"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	configPath := flag.String("config", ".", "directory with config.yaml and .env")
	healthcheck := flag.String("healthcheck", "", "probe the gRPC health service at the given address and exit")
	flag.Parse()

	if *healthcheck != "" {
		os.Exit(probe(*healthcheck))
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := initLogger(cfg.App)
	defer log.Sync()
	log.Infow("Parking payments service starting up...", "env", cfg.App.Env)

	// Контекст отменяется по SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatalw("Failed to initialize application", "error", err)
	}

	runErr := application.Run(ctx)
	if runErr != nil {
		log.Errorw("Application stopped with error", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	application.Shutdown(shutdownCtx)

	if runErr != nil {
		os.Exit(1)
	}
}

// initLogger создает логгер по настройкам приложения
func initLogger(cfg config.AppConfig) *logger.Logger {
	level := logger.ParseLevel(cfg.LogLevel)
	if cfg.LogJSON {
		return logger.NewJSON(level).Named(cfg.Name)
	}
	return logger.New(level).Named(cfg.Name)
}

// probe проверяет статус службы расчетов, для HEALTHCHECK контейнера
func probe(addr string) int {
	opts := grpcapi.DefaultClientOptions()
	opts.Address = addr
	opts.KeepAlive = false

	client, err := grpcapi.NewClient(opts, logger.NewNop())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer client.Close()

	status, err := client.Check(context.Background(), grpcapi.BillingServiceName)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Println(status.String())
	if status != healthpb.HealthCheckResponse_SERVING {
		return 1
	}
	return 0
}
