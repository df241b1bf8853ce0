package handlers

import (
	"context"
	"net/http"

	"github.com/Dhoini/parking-payments/internal/api/rest/middleware"
	"github.com/Dhoini/parking-payments/internal/domain"
	"github.com/Dhoini/parking-payments/internal/service"
	"github.com/Dhoini/parking-payments/pkg/logger"
	"github.com/Dhoini/parking-payments/pkg/req"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// VendorService операции, доступные вендорам
type VendorService interface {
	VendorUpdate(ctx context.Context, vendor *domain.Vendor, u service.SessionUpdate) (*domain.ParkingSession, error)
	VendorBatchUpdate(ctx context.Context, vendor *domain.Vendor, updates []service.SessionUpdate) []service.BatchResult
	VendorComplete(ctx context.Context, vendor *domain.Vendor, c service.SessionComplete) (*domain.ParkingSession, error)
	VendorRefund(ctx context.Context, vendor *domain.Vendor, parkingID int64, vendorSessionID string, amount decimal.Decimal) (*domain.ParkingSession, error)
}

// VendorHandler обработчик API вендоров
type VendorHandler struct {
	service VendorService
	log     *logger.Logger
}

// NewVendorHandler создает новый обработчик API вендоров
func NewVendorHandler(s VendorService, log *logger.Logger) *VendorHandler {
	return &VendorHandler{service: s, log: log.Named("vendor-api")}
}

// Update принимает текущее состояние сессии
func (h *VendorHandler) Update(c *gin.Context) {
	body, err := req.HandleBody[SessionUpdateRequest](c.Writer, c.Request, h.log.Zap())
	if err != nil {
		return
	}

	session, err := h.service.VendorUpdate(c.Request.Context(), middleware.Vendor(c), body.toUpdate())
	if err != nil {
		writeError(c, err, h.log)
		return
	}
	c.JSON(http.StatusOK, newSessionResponse(session))
}

// UpdateList принимает пакет обновлений; ошибки отдельных сессий возвращаются поэлементно
func (h *VendorHandler) UpdateList(c *gin.Context) {
	body, err := req.HandleBody[SessionUpdateListRequest](c.Writer, c.Request, h.log.Zap())
	if err != nil {
		return
	}

	updates := make([]service.SessionUpdate, len(body.Sessions))
	for i, s := range body.Sessions {
		updates[i] = s.toUpdate()
	}

	results := h.service.VendorBatchUpdate(c.Request.Context(), middleware.Vendor(c), updates)
	items := make([]BatchItemResponse, len(results))
	for i, r := range results {
		items[i] = BatchItemResponse{VendorSessionID: r.VendorSessionID, SessionID: r.SessionID}
		if r.Err != nil {
			items[i].Error = r.Err.Error()
		}
	}
	c.JSON(http.StatusOK, gin.H{"results": items})
}

// Complete принимает завершение сессии с итоговым долгом
func (h *VendorHandler) Complete(c *gin.Context) {
	body, err := req.HandleBody[SessionCompleteRequest](c.Writer, c.Request, h.log.Zap())
	if err != nil {
		return
	}

	session, err := h.service.VendorComplete(c.Request.Context(), middleware.Vendor(c), service.SessionComplete{
		VendorSessionID: body.VendorSessionID,
		ParkingID:       body.ParkingID,
		ClientID:        body.ClientID,
		Debt:            body.Debt,
		StartedAt:       body.StartedAt,
		CompletedAt:     body.CompletedAt,
	})
	if err != nil {
		writeError(c, err, h.log)
		return
	}
	c.JSON(http.StatusOK, newSessionResponse(session))
}

// Refund увеличивает сумму возврата по сессии
func (h *VendorHandler) Refund(c *gin.Context) {
	body, err := req.HandleBody[RefundRequest](c.Writer, c.Request, h.log.Zap())
	if err != nil {
		return
	}

	session, err := h.service.VendorRefund(c.Request.Context(), middleware.Vendor(c), body.ParkingID, body.VendorSessionID, body.Amount)
	if err != nil {
		writeError(c, err, h.log)
		return
	}
	c.JSON(http.StatusAccepted, newSessionResponse(session))
}
