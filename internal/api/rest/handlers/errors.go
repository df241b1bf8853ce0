package handlers

import (
	"errors"
	"net/http"

	"github.com/Dhoini/parking-payments/internal/domain"
	"github.com/Dhoini/parking-payments/pkg/logger"
	"github.com/Dhoini/parking-payments/pkg/res"
	"github.com/gin-gonic/gin"
)

// MessageGatewayUnavailable ответ клиенту, когда эквайринг не отвечает
const MessageGatewayUnavailable = "payment gateway unavailable"

// errorResponse сопоставляет ошибку сервиса HTTP-статусу
func errorResponse(err error) (int, res.ErrorResponse) {
	var paymentErr *domain.PaymentError
	switch {
	case errors.As(err, &paymentErr):
		msg := paymentErr.Message
		if msg == "" {
			msg = domain.ErrPaymentFailed.Error()
		}
		return http.StatusPaymentRequired, res.ErrorResponse{Error: msg, Reason: paymentErr.Category}
	case errors.Is(err, domain.ErrExternalServiceUnavailable):
		return http.StatusServiceUnavailable, res.ErrorResponse{Error: MessageGatewayUnavailable}
	case errors.Is(err, domain.ErrSessionLocked):
		return http.StatusConflict, res.ErrorResponse{Error: "session is being processed, retry later"}
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, res.ErrorResponse{Error: err.Error()}
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, res.ErrorResponse{Error: err.Error()}
	case errors.Is(err, domain.ErrInvalidOperation):
		return http.StatusConflict, res.ErrorResponse{Error: err.Error()}
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized, res.ErrorResponse{Error: err.Error()}
	}
	return http.StatusInternalServerError, res.ErrorResponse{Error: "internal server error"}
}

func writeError(c *gin.Context, err error, log *logger.Logger) {
	status, body := errorResponse(err)
	if status >= http.StatusInternalServerError {
		log.Error("[%s] %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
	} else {
		log.Warn("[%s] %s rejected: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	body.ErrorCode = status
	res.JsonResponse(c.Writer, body, status)
}
