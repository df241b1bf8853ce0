package handlers

import (
	"time"

	"github.com/Dhoini/parking-payments/internal/domain"
	"github.com/Dhoini/parking-payments/internal/service"
	"github.com/shopspring/decimal"
)

// SessionUpdateRequest текущее состояние сессии от вендора
type SessionUpdateRequest struct {
	VendorSessionID string          `json:"vendor_session_id" validate:"required,max=128"`
	ParkingID       int64           `json:"parking_id" validate:"required,gt=0"`
	ClientID        int64           `json:"client_id" validate:"gte=0"`
	Debt            decimal.Decimal `json:"debt"`
	StartedAt       time.Time       `json:"started_at" validate:"required"`
	UpdatedAt       time.Time       `json:"updated_at" validate:"required"`
	IsSuspended     bool            `json:"is_suspended"`
}

func (r SessionUpdateRequest) toUpdate() service.SessionUpdate {
	return service.SessionUpdate{
		VendorSessionID: r.VendorSessionID,
		ParkingID:       r.ParkingID,
		ClientID:        r.ClientID,
		Debt:            r.Debt,
		StartedAt:       r.StartedAt,
		UpdatedAt:       r.UpdatedAt,
		IsSuspended:     r.IsSuspended,
	}
}

// SessionUpdateListRequest пакет обновлений
type SessionUpdateListRequest struct {
	Sessions []SessionUpdateRequest `json:"sessions" validate:"required,min=1,max=500,dive"`
}

// SessionCompleteRequest завершение сессии вендором
type SessionCompleteRequest struct {
	VendorSessionID string          `json:"vendor_session_id" validate:"required,max=128"`
	ParkingID       int64           `json:"parking_id" validate:"required,gt=0"`
	ClientID        int64           `json:"client_id" validate:"gte=0"`
	Debt            decimal.Decimal `json:"debt"`
	StartedAt       time.Time       `json:"started_at" validate:"required"`
	CompletedAt     time.Time       `json:"completed_at" validate:"required"`
}

// RefundRequest запрос возврата от вендора
type RefundRequest struct {
	VendorSessionID string          `json:"vendor_session_id" validate:"required,max=128"`
	ParkingID       int64           `json:"parking_id" validate:"required,gt=0"`
	Amount          decimal.Decimal `json:"amount"`
}

// ClientStartRequest начало сессии из приложения
type ClientStartRequest struct {
	ParkingID       int64     `json:"parking_id" validate:"required,gt=0"`
	VendorSessionID string    `json:"vendor_session_id" validate:"required,max=128"`
	StartedAt       time.Time `json:"started_at" validate:"required"`
}

// ClientSessionRequest действие клиента над своей сессией
type ClientSessionRequest struct {
	SessionID int64 `json:"session_id" validate:"required,gt=0"`
}

// SessionResponse представление сессии в ответах API
type SessionResponse struct {
	ID              int64           `json:"id"`
	VendorSessionID string          `json:"vendor_session_id"`
	ParkingID       int64           `json:"parking_id"`
	ClientID        int64           `json:"client_id,omitempty"`
	State           int             `json:"state"`
	ClientState     string          `json:"client_state"`
	Debt            decimal.Decimal `json:"debt"`
	StartedAt       time.Time       `json:"started_at"`
	UpdatedAt       *time.Time      `json:"updated_at,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	IsSuspended     bool            `json:"is_suspended"`
	TargetRefundSum decimal.Decimal `json:"target_refund_sum"`
}

func newSessionResponse(s *domain.ParkingSession) SessionResponse {
	return SessionResponse{
		ID:              s.ID,
		VendorSessionID: s.VendorSessionID,
		ParkingID:       s.ParkingID,
		ClientID:        s.ClientID,
		State:           int(s.State),
		ClientState:     s.ResolveClientStatus().String(),
		Debt:            s.Debt,
		StartedAt:       s.StartedAt,
		UpdatedAt:       s.UpdatedAt,
		CompletedAt:     s.CompletedAt,
		IsSuspended:     s.IsSuspended,
		TargetRefundSum: s.TargetRefundSum,
	}
}

// SessionViewResponse сессия клиента с расчетными значениями
type SessionViewResponse struct {
	SessionResponse
	DurationSeconds int64           `json:"duration_seconds"`
	OrderedSum      decimal.Decimal `json:"ordered_sum"`
	PaidSum         decimal.Decimal `json:"paid_sum"`
	RefundedSum     decimal.Decimal `json:"refunded_sum"`
}

func newSessionViewResponse(v *service.SessionView) SessionViewResponse {
	return SessionViewResponse{
		SessionResponse: newSessionResponse(v.Session),
		DurationSeconds: int64(v.Duration / time.Second),
		OrderedSum:      v.OrderedSum,
		PaidSum:         v.PaidSum,
		RefundedSum:     v.RefundedSum,
	}
}

// BatchItemResponse результат одного элемента пакета
type BatchItemResponse struct {
	VendorSessionID string `json:"vendor_session_id"`
	SessionID       int64  `json:"session_id,omitempty"`
	Error           string `json:"error,omitempty"`
}
