package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/Dhoini/parking-payments/internal/gateway"
	"github.com/Dhoini/parking-payments/pkg/logger"
	"github.com/gin-gonic/gin"
)

const maxWebhookBody = 1 << 20

// CallbackService применяет уведомления эквайринга
type CallbackService interface {
	HandleCallback(ctx context.Context, n gateway.Notification) error
}

// CallbackVerifier проверяет подпись уведомления
type CallbackVerifier interface {
	VerifyCallback(body []byte) (bool, error)
}

// WebhookHandler обработчик для вебхуков
type WebhookHandler struct {
	service  CallbackService
	verifier CallbackVerifier
	log      *logger.Logger
}

// NewWebhookHandler создает новый обработчик вебхуков
func NewWebhookHandler(s CallbackService, verifier CallbackVerifier, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{service: s, verifier: verifier, log: log.Named("webhook")}
}

// HandleAcquiringWebhook обрабатывает уведомления эквайринга. Эквайринг повторяет
// уведомление, пока не получит в ответ "OK".
func (h *WebhookHandler) HandleAcquiringWebhook(c *gin.Context) {
	bodyBytes, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		h.log.Error("Failed to read webhook body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read webhook body"})
		return
	}

	// Проверяем подпись вебхука
	ok, err := h.verifier.VerifyCallback(bodyBytes)
	if err != nil || !ok {
		h.log.Error("Failed to verify webhook signature: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to verify webhook signature"})
		return
	}

	var n gateway.Notification
	if err := json.Unmarshal(bodyBytes, &n); err != nil {
		h.log.Error("Failed to decode webhook: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to decode webhook"})
		return
	}

	h.log.Info("Webhook for payment %s, order %s, status %s", n.PaymentID, n.OrderID, n.Status)
	if err := h.service.HandleCallback(c.Request.Context(), n); err != nil {
		h.log.Error("Failed to handle webhook for payment %s: %v", n.PaymentID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to handle webhook"})
		return
	}

	c.String(http.StatusOK, "OK")
}
