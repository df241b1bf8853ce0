package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	grpcapi "github.com/Dhoini/parking-payments/internal/api/grpc"
	"github.com/Dhoini/parking-payments/internal/api/rest"
	"github.com/Dhoini/parking-payments/internal/api/rest/handlers"
	"github.com/Dhoini/parking-payments/internal/api/rest/middleware"
	"github.com/Dhoini/parking-payments/internal/config"
	"github.com/Dhoini/parking-payments/internal/gateway"
	"github.com/Dhoini/parking-payments/internal/kafka"
	"github.com/Dhoini/parking-payments/internal/kafka/producer"
	"github.com/Dhoini/parking-payments/internal/lock"
	"github.com/Dhoini/parking-payments/internal/metrics"
	"github.com/Dhoini/parking-payments/internal/repository"
	"github.com/Dhoini/parking-payments/internal/repository/postgres"
	"github.com/Dhoini/parking-payments/internal/service"
	"github.com/Dhoini/parking-payments/internal/tasks"
	"github.com/Dhoini/parking-payments/pkg/logger"
)

// App представляет собой контейнер для всех компонентов приложения
type App struct {
	cfg *config.Config
	log *logger.Logger

	pool       *pgxpool.Pool
	redis      *redis.Client
	events     producer.EventProducer
	system     metrics.SystemMetrics
	billing    *service.Billing
	dispatcher *tasks.Dispatcher
	scheduler  *tasks.Scheduler
	http       *rest.Server
	grpc       *grpcapi.Server
}

// New подключает хранилища и собирает сервис. Redis и Kafka необязательны:
// без Redis используется блокировка в памяти и парковки читаются без кеша,
// без Kafka события не публикуются.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	a := &App{cfg: cfg, log: log}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	billingMetrics := metrics.NewBillingMetrics(registry, log)

	pool, err := postgres.NewConnection(ctx, cfg.Database.GetDSN(), postgres.PoolConfig{
		MaxConns:       cfg.Database.MaxConns,
		ConnectTimeout: cfg.Database.ConnectTimeout,
	}, log)
	if err != nil {
		return nil, err
	}
	a.pool = pool
	if cfg.Database.Migrate {
		if err := postgres.Migrate(ctx, pool, log); err != nil {
			a.Close()
			return nil, err
		}
	}

	parkings := repository.ParkingRepository(postgres.NewPostgresParkingRepository(pool))
	var locker lock.Locker = lock.NewLocalLocker(lock.Options{TTL: cfg.Redis.LockTTL, Wait: cfg.Redis.LockWait})
	if client := a.connectRedis(ctx); client != nil {
		locker = lock.NewRedisLocker(client, lock.Options{TTL: cfg.Redis.LockTTL, Wait: cfg.Redis.LockWait}, log.Named("lock"))
		cache := repository.NewRedisCacheRepository(client, cfg.Redis.CacheTTL, log)
		parkings = repository.NewCachedParkingRepository(parkings, cache, log)
		log.Info("Using Redis session locks and parking cache")
	} else {
		log.Warn("Redis is not configured or unavailable, using in-process locks and uncached parkings")
	}

	a.events = a.connectKafka(ctx)

	repos := service.Repositories{
		Sessions: postgres.NewPostgresSessionRepository(pool, log),
		Orders:   postgres.NewPostgresOrderRepository(pool, log),
		Payments: postgres.NewPostgresPaymentRepository(pool, log),
		Parkings: parkings,
		Vendors:  postgres.NewPostgresVendorRepository(pool),
		Cards:    postgres.NewPostgresCardRepository(pool, log),
	}

	gw := gateway.NewClient(gateway.Config{
		TerminalKey:    cfg.Gateway.TerminalKey,
		TerminalSecret: cfg.Gateway.TerminalSecret,
		BaseURL:        cfg.Gateway.BaseURL,
		ConnectTimeout: cfg.Gateway.ConnectTimeout,
		ReadTimeout:    cfg.Gateway.ReadTimeout,
	}, log)

	a.billing = service.NewBilling(repos, gw, locker, a.events, billingMetrics, service.Config{
		MaxCorrectionIterations: cfg.Billing.MaxCorrectionIterations,
		ConfirmAfter:            cfg.Billing.ConfirmAfter,
		PaymentDescription:      cfg.Billing.PaymentDescription,
		Receipt: service.ReceiptConfig{
			Enabled:  cfg.Billing.ReceiptEnabled,
			Email:    cfg.Billing.ReceiptEmail,
			Taxation: cfg.Billing.ReceiptTaxation,
			Tax:      cfg.Billing.ReceiptTax,
			ItemName: cfg.Billing.ReceiptItemName,
		},
	}, log)

	a.dispatcher = tasks.NewDispatcher(tasks.DispatcherConfig{
		Workers:    cfg.Billing.DispatcherWorkers,
		QueueSize:  cfg.Billing.DispatcherQueue,
		JobTimeout: cfg.Billing.JobTimeout,
	}, a.billing.ProcessSession, billingMetrics, log)
	a.billing.SetQueue(a.dispatcher)

	a.scheduler, err = tasks.NewScheduler(a.billing, tasks.SchedulerConfig{
		GenerateSpec: cfg.Billing.GenerateSpec,
		ConfirmSpec:  cfg.Billing.ConfirmSpec,
		Concurrency:  cfg.Billing.SweepConcurrency,
		JobTimeout:   cfg.Billing.JobTimeout,
		SweepTimeout: cfg.Billing.SweepTimeout,
	}, billingMetrics, log)
	if err != nil {
		a.Close()
		return nil, err
	}

	probes := map[string]metrics.Probe{
		"db_total_conns":     func() float64 { return float64(pool.Stat().TotalConns()) },
		"db_acquired_conns":  func() float64 { return float64(pool.Stat().AcquiredConns()) },
		"dispatcher_pending": func() float64 { return float64(a.dispatcher.Pending()) },
		"scheduler_running":  metrics.BoolProbe(a.scheduler.Running),
	}
	if a.redis != nil {
		probes["redis_total_conns"] = func() float64 { return float64(a.redis.PoolStats().TotalConns) }
	}
	a.system = metrics.NewSystemMetrics(registry, probes, log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	checks := map[string]handlers.HealthCheckFunc{"postgres": pool.Ping}
	if a.redis != nil {
		checks["redis"] = func(ctx context.Context) error { return a.redis.Ping(ctx).Err() }
	}
	router := rest.SetupRouter(rest.RouterDeps{
		Services: a.billing,
		Vendors:  repos.Vendors,
		Verifier: gw,
		Tokens:   &middleware.DefaultTokenValidator{Secret: []byte(cfg.Auth.JWTSecret)},
		Gatherer: registry,
		Health:   handlers.NewHealthHandler(checks),
	}, log)
	a.http = rest.NewServer(router, cfg.HTTP, log)
	a.grpc = grpcapi.NewServer(cfg.GRPC, log)

	return a, nil
}

func (a *App) connectRedis(ctx context.Context) *redis.Client {
	if a.cfg.Redis.Addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		a.log.Warnw("Failed to connect to Redis", "addr", a.cfg.Redis.Addr, "error", err)
		_ = client.Close()
		return nil
	}
	a.redis = client
	return client
}

func (a *App) connectKafka(ctx context.Context) producer.EventProducer {
	if len(a.cfg.Kafka.Brokers) == 0 {
		a.log.Warn("Kafka brokers are not configured, events are disabled")
		return producer.NopProducer{}
	}

	kafkaCfg := kafka.NewConfig(a.cfg.Kafka.Brokers)
	if a.cfg.Kafka.ClientID != "" {
		kafkaCfg.ClientID = a.cfg.Kafka.ClientID
	}
	if a.cfg.Kafka.EnsureTopics {
		if err := kafka.EnsureTopics(ctx, kafkaCfg, a.log); err != nil {
			a.log.Warnw("Failed to ensure Kafka topics", "error", err)
		}
	}

	syncProducer, err := kafka.NewSyncProducer(kafkaCfg)
	if err != nil {
		a.log.Errorw("Failed to initialize Kafka producer, continuing without event publishing", "error", err)
		return producer.NopProducer{}
	}
	a.log.Info("Kafka producer initialized")
	return producer.NewKafkaEventProducer(syncProducer, a.log)
}

// Run запускает фоновые задачи и серверы и блокируется до отмены ctx
// или падения одного из серверов
func (a *App) Run(ctx context.Context) error {
	a.system.StartRecording(15 * time.Second)
	a.dispatcher.Start(ctx)
	a.scheduler.Start()
	go a.grpc.WatchScheduler(ctx, a.scheduler.Running, 5*time.Second)

	errCh := make(chan error, 2)
	go func() { errCh <- a.http.Start() }()
	go func() { errCh <- a.grpc.Start() }()

	select {
	case <-ctx.Done():
		a.log.Info("Shutdown signal received")
		return nil
	case err := <-errCh:
		if err == nil {
			err = errors.New("server stopped unexpectedly")
		}
		return fmt.Errorf("server failed: %w", err)
	}
}

// Shutdown останавливает прием запросов, затем фоновые задачи, затем закрывает соединения
func (a *App) Shutdown(ctx context.Context) {
	if err := a.http.Shutdown(ctx); err != nil {
		a.log.Errorw("HTTP server shutdown error", "error", err)
	}
	a.grpc.Stop()
	a.scheduler.Stop(ctx)
	a.dispatcher.Stop()
	a.system.Stop()
	a.Close()
	a.log.Info("Cleanup finished")
}

// Close освобождает внешние соединения
func (a *App) Close() {
	if a.events != nil {
		if err := a.events.Close(); err != nil {
			a.log.Errorw("Error closing Kafka producer", "error", err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Errorw("Error closing Redis connection", "error", err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
