package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Dhoini/parking-payments/internal/api/rest/middleware"
	"github.com/Dhoini/parking-payments/internal/domain"
	"github.com/Dhoini/parking-payments/internal/service"
	"github.com/Dhoini/parking-payments/pkg/logger"
	"github.com/Dhoini/parking-payments/pkg/req"
	"github.com/gin-gonic/gin"
)

// ClientService операции, доступные клиентам приложения
type ClientService interface {
	ClientStart(ctx context.Context, clientID, parkingID int64, vendorSessionID string, startedAt time.Time) (*domain.ParkingSession, error)
	ClientComplete(ctx context.Context, clientID, sessionID int64) (*domain.ParkingSession, error)
	ClientCancel(ctx context.Context, clientID, sessionID int64) (*domain.ParkingSession, error)
	ClientPay(ctx context.Context, clientID, sessionID int64) error
	GetSession(ctx context.Context, clientID, sessionID int64) (*service.SessionView, error)
}

// ClientHandler обработчик API клиентов
type ClientHandler struct {
	service ClientService
	log     *logger.Logger
}

// NewClientHandler создает новый обработчик API клиентов
func NewClientHandler(s ClientService, log *logger.Logger) *ClientHandler {
	return &ClientHandler{service: s, log: log.Named("client-api")}
}

// Start начинает сессию со стороны клиента
func (h *ClientHandler) Start(c *gin.Context) {
	body, err := req.HandleBody[ClientStartRequest](c.Writer, c.Request, h.log.Zap())
	if err != nil {
		return
	}

	session, err := h.service.ClientStart(c.Request.Context(), middleware.ClientID(c), body.ParkingID, body.VendorSessionID, body.StartedAt)
	if err != nil {
		writeError(c, err, h.log)
		return
	}
	c.JSON(http.StatusOK, newSessionResponse(session))
}

// Complete отмечает завершение сессии клиентом
func (h *ClientHandler) Complete(c *gin.Context) {
	h.mutate(c, h.service.ClientComplete)
}

// Cancel отменяет сессию клиента
func (h *ClientHandler) Cancel(c *gin.Context) {
	h.mutate(c, h.service.ClientCancel)
}

func (h *ClientHandler) mutate(c *gin.Context, op func(ctx context.Context, clientID, sessionID int64) (*domain.ParkingSession, error)) {
	body, err := req.HandleBody[ClientSessionRequest](c.Writer, c.Request, h.log.Zap())
	if err != nil {
		return
	}

	session, err := op(c.Request.Context(), middleware.ClientID(c), body.SessionID)
	if err != nil {
		writeError(c, err, h.log)
		return
	}
	c.JSON(http.StatusOK, newSessionResponse(session))
}

// Get возвращает сессию клиента с долгом, статусом и длительностью
func (h *ClientHandler) Get(c *gin.Context) {
	id, err := sessionIDParam(c)
	if err != nil {
		writeError(c, err, h.log)
		return
	}

	view, err := h.service.GetSession(c.Request.Context(), middleware.ClientID(c), id)
	if err != nil {
		writeError(c, err, h.log)
		return
	}
	c.JSON(http.StatusOK, newSessionViewResponse(view))
}

// Pay повторяет оплату по сессии
func (h *ClientHandler) Pay(c *gin.Context) {
	id, err := sessionIDParam(c)
	if err != nil {
		writeError(c, err, h.log)
		return
	}

	if err := h.service.ClientPay(c.Request.Context(), middleware.ClientID(c), id); err != nil {
		writeError(c, err, h.log)
		return
	}

	view, err := h.service.GetSession(c.Request.Context(), middleware.ClientID(c), id)
	if err != nil {
		writeError(c, err, h.log)
		return
	}
	c.JSON(http.StatusOK, newSessionViewResponse(view))
}

func sessionIDParam(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid session id %q", domain.ErrInvalidInput, c.Param("id"))
	}
	return id, nil
}
