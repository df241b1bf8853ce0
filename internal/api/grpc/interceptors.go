package grpc

import (
	"context"
	"time"

	"github.com/Dhoini/parking-payments/pkg/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// LoggingInterceptor логирует каждый unary-вызов с кодом ответа и длительностью
func LoggingInterceptor(log *logger.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		started := time.Now()
		resp, err := handler(ctx, req)

		code := status.Code(err)
		if code == codes.OK || code == codes.NotFound {
			log.Debugw("gRPC call", "method", info.FullMethod, "code", code.String(), "duration", time.Since(started))
		} else {
			log.Warnw("gRPC call failed", "method", info.FullMethod, "code", code.String(),
				"duration", time.Since(started), "error", err)
		}
		return resp, err
	}
}

// RecoveryInterceptor превращает панику обработчика в codes.Internal
func RecoveryInterceptor(log *logger.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Errorw("Panic in gRPC handler", "method", info.FullMethod, "panic", r)
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}
