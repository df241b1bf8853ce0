package grpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/Dhoini/parking-payments/internal/config"
	"github.com/Dhoini/parking-payments/pkg/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
)

// BillingServiceName имя сервиса в протоколе grpc.health.v1
const BillingServiceName = "parking.billing"

// Server gRPC сервер со службой здоровья
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	log        *logger.Logger
	port       string
}

// NewServer создает новый gRPC сервер
func NewServer(cfg config.GRPCConfig, log *logger.Logger) *Server {
	log = log.Named("grpc")

	// Настройки keepalive для gRPC
	kaParams := keepalive.ServerParameters{
		MaxConnectionIdle:     cfg.MaxConnectionIdle, // Максимальное время простоя соединения
		MaxConnectionAge:      time.Hour,             // Максимальное время жизни соединения
		MaxConnectionAgeGrace: time.Minute * 5,       // Дополнительное время для завершения запросов при закрытии соединения
		Time:                  cfg.KeepaliveTime,     // Время между пингами для проверки активности
		Timeout:               cfg.KeepaliveTimeout,  // Таймаут после которого соединение закрывается если нет ответа на пинг
	}

	grpcServer := grpc.NewServer(
		grpc.KeepaliveParams(kaParams),
		grpc.ChainUnaryInterceptor(RecoveryInterceptor(log), LoggingInterceptor(log)),
	)

	hs := health.NewServer()
	hs.SetServingStatus(BillingServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(grpcServer, hs)

	// Включаем reflection для удобства отладки (например, с помощью grpcurl)
	reflection.Register(grpcServer)

	return &Server{
		grpcServer: grpcServer,
		health:     hs,
		log:        log,
		port:       cfg.Port,
	}
}

// SetServing переключает статус службы расчетов
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(BillingServiceName, status)
}

// WatchScheduler периодически отражает состояние планировщика в службе здоровья
func (s *Server) WatchScheduler(ctx context.Context, running func() bool, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := running()
	s.SetServing(last)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if now := running(); now != last {
				s.log.Info("Billing scheduler running: %t", now)
				s.SetServing(now)
				last = now
			}
		}
	}
}

// Start запускает gRPC сервер
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", ":"+s.port)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(listener)
}

// Serve обслуживает соединения на переданном слушателе
func (s *Server) Serve(listener net.Listener) error {
	s.log.Info("Starting gRPC server on %s", listener.Addr())
	if err := s.grpcServer.Serve(listener); err != nil {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// Stop останавливает gRPC сервер
func (s *Server) Stop() {
	s.log.Info("Stopping gRPC server")
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}
