package gateway

import (
	"bytes"
	"encoding/json"

	"github.com/Dhoini/parking-payments/internal/domain"
)

// Gateway-side statuses
const (
	StatusNew             = "NEW"
	StatusFormShowed      = "FORM_SHOWED"
	StatusAuthorizing     = "AUTHORIZING"
	Status3DSChecking     = "3DS_CHECKING"
	Status3DSChecked      = "3DS_CHECKED"
	StatusAuthorized      = "AUTHORIZED"
	StatusConfirming      = "CONFIRMING"
	StatusConfirmed       = "CONFIRMED"
	StatusReversing       = "REVERSING"
	StatusReversed        = "REVERSED"
	StatusRefunding       = "REFUNDING"
	StatusPartialRefunded = "PARTIAL_REFUNDED"
	StatusRefunded        = "REFUNDED"
	StatusRejected        = "REJECTED"
	StatusAuthFail        = "AUTH_FAIL"
	StatusCanceled        = "CANCELED"
	StatusDeadlineExpired = "DEADLINE_EXPIRED"
	// StatusReceipt is a fiscal receipt notification, not a payment status
	StatusReceipt = "RECEIPT"
)

var statusMap = map[string]domain.PaymentStatus{
	StatusNew:             domain.PaymentStatusNew,
	StatusFormShowed:      domain.PaymentStatusFormShowed,
	StatusAuthorized:      domain.PaymentStatusAuthorized,
	StatusConfirmed:       domain.PaymentStatusConfirmed,
	StatusReversed:        domain.PaymentStatusReversed,
	StatusPartialRefunded: domain.PaymentStatusPartialRefunded,
	StatusRefunded:        domain.PaymentStatusRefunded,
	StatusRejected:        domain.PaymentStatusRejected,
	StatusAuthFail:        domain.PaymentStatusAuthFail,
	StatusCanceled:        domain.PaymentStatusCancel,
	StatusDeadlineExpired: domain.PaymentStatusCancel,
}

// MapStatus converts a gateway status to the local payment status.
// Intermediate statuses (AUTHORIZING, CONFIRMING, ...) report false.
func MapStatus(status string) (domain.PaymentStatus, bool) {
	st, ok := statusMap[status]
	return st, ok
}

// FlexString accepts both JSON strings and numbers. The gateway sends
// PaymentId as a string in responses and as a number in notifications.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string { return string(f) }

// ReceiptItem is one line of the fiscal receipt
type ReceiptItem struct {
	Name     string  `json:"Name"`
	Price    int64   `json:"Price"`
	Quantity float64 `json:"Quantity"`
	Amount   int64   `json:"Amount"`
	Tax      string  `json:"Tax"`
}

// Receipt is sent nested in Init and is not part of the token
type Receipt struct {
	Email    string        `json:"Email,omitempty"`
	Phone    string        `json:"Phone,omitempty"`
	Taxation string        `json:"Taxation"`
	Items    []ReceiptItem `json:"Items"`
}

// InitRequest requests a two-stage authorization hold
type InitRequest struct {
	Amount      int64
	OrderID     string
	Description string
	CustomerKey string
	Recurrent   bool
	Receipt     *Receipt
	Data        map[string]string
}

// Response is the common envelope of every gateway call
type Response struct {
	Success        bool       `json:"Success"`
	ErrorCode      string     `json:"ErrorCode"`
	TerminalKey    string     `json:"TerminalKey"`
	Status         string     `json:"Status"`
	PaymentID      FlexString `json:"PaymentId"`
	OrderID        string     `json:"OrderId"`
	Amount         int64      `json:"Amount"`
	OriginalAmount int64      `json:"OriginalAmount"`
	NewAmount      int64      `json:"NewAmount"`
	PaymentURL     string     `json:"PaymentURL"`
	Message        string     `json:"Message"`
	Details        string     `json:"Details"`
}

// Failed reports a business rejection from the gateway
func (r *Response) Failed() bool {
	return !r.Success || (r.ErrorCode != "" && r.ErrorCode != "0")
}

// Category returns the error category for a failed response
func (r *Response) Category() Category {
	return ErrorCategory(r.ErrorCode)
}

// AsError converts a failed response into a domain PaymentError
func (r *Response) AsError() error {
	if !r.Failed() {
		return nil
	}
	cat := r.Category()
	return domain.NewPaymentError(r.ErrorCode, string(cat), cat.UserMessage(), r.PaymentID.String(), nil)
}

// RemainingAmount is the amount left on the payment after Cancel.
// OriginalAmount is the amount before this operation, so only NewAmount
// tells how much of the payment is still held. ok is false when the
// response does not carry it.
func (r *Response) RemainingAmount() (remaining int64, ok bool) {
	switch r.Status {
	case StatusRefunded:
		return 0, true
	case StatusPartialRefunded:
		if r.NewAmount > 0 {
			return r.NewAmount, true
		}
	}
	return 0, false
}

// Notification is the callback body delivered to the webhook
type Notification struct {
	TerminalKey string     `json:"TerminalKey"`
	OrderID     string     `json:"OrderId"`
	Success     bool       `json:"Success"`
	Status      string     `json:"Status"`
	PaymentID   FlexString `json:"PaymentId"`
	ErrorCode   string     `json:"ErrorCode"`
	Amount      int64      `json:"Amount"`
	RebillID    FlexString `json:"RebillId,omitempty"`
	CardID      FlexString `json:"CardId"`
	Pan         string     `json:"Pan"`
	ExpDate     string     `json:"ExpDate"`
	Message     string     `json:"Message,omitempty"`
	Details     string     `json:"Details,omitempty"`
	Token       string     `json:"Token"`
}
