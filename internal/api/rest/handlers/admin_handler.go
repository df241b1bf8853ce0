package handlers

import (
	"context"
	"net/http"

	"github.com/Dhoini/parking-payments/pkg/logger"
	"github.com/gin-gonic/gin"
)

// AdminService операции поддержки
type AdminService interface {
	ForcePay(ctx context.Context, sessionID int64) error
}

// AdminHandler обработчик API поддержки
type AdminHandler struct {
	service AdminService
	log     *logger.Logger
}

func NewAdminHandler(s AdminService, log *logger.Logger) *AdminHandler {
	return &AdminHandler{service: s, log: log.Named("admin-api")}
}

// ForcePay принудительно оплачивает или подтверждает заказы сессии
func (h *AdminHandler) ForcePay(c *gin.Context) {
	id, err := sessionIDParam(c)
	if err != nil {
		writeError(c, err, h.log)
		return
	}

	if err := h.service.ForcePay(c.Request.Context(), id); err != nil {
		writeError(c, err, h.log)
		return
	}
	h.log.Info("Force pay of session %d done", id)
	c.JSON(http.StatusOK, gin.H{"session_id": id, "status": "OK"})
}
