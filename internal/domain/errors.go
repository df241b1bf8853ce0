package domain

import (
	"errors"
	"fmt"
)

// Application errors
var (
	// ErrNotFound запись не найдена
	ErrNotFound = errors.New("record not found")

	// ErrInvalidInput неверные входные данные
	ErrInvalidInput = errors.New("invalid input data")

	// ErrUnauthenticated caller could not be authenticated
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrInvalidOperation operation is not allowed in the current state
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrExternalServiceUnavailable внешний сервис недоступен
	ErrExternalServiceUnavailable = errors.New("external service unavailable")

	// ErrPaymentFailed платеж не прошел
	ErrPaymentFailed = errors.New("payment failed")

	// ErrAlreadyProcessed the event was already applied
	ErrAlreadyProcessed = errors.New("already processed")

	// ErrSessionLocked another worker holds the session
	ErrSessionLocked = errors.New("session is locked by another worker")

	// ErrWebhookValidationFailed не удалось проверить подпись вебхука
	ErrWebhookValidationFailed = errors.New("webhook validation failed")
)

// PaymentError is a business rejection reported by the gateway
type PaymentError struct {
	Code        string
	Category    string
	Message     string
	PaymentID   string
	OriginalErr error
}

// Error реализует интерфейс error
func (e *PaymentError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("payment error [%s/%s]: %s: %v (payment_id: %s)", e.Code, e.Category, e.Message, e.OriginalErr, e.PaymentID)
	}
	return fmt.Sprintf("payment error [%s/%s]: %s (payment_id: %s)", e.Code, e.Category, e.Message, e.PaymentID)
}

// Unwrap возвращает оригинальную ошибку
func (e *PaymentError) Unwrap() error {
	return e.OriginalErr
}

// Is makes every PaymentError match ErrPaymentFailed
func (e *PaymentError) Is(target error) bool {
	return target == ErrPaymentFailed
}

// NewPaymentError создает новую ошибку платежа
func NewPaymentError(code, category, message, paymentID string, err error) *PaymentError {
	return &PaymentError{
		Code:        code,
		Category:    category,
		Message:     message,
		PaymentID:   paymentID,
		OriginalErr: err,
	}
}

// NotFoundError представляет ошибку "не найдено"
type NotFoundError struct {
	Entity string
	ID     string
}

// Error реализует интерфейс error
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Entity, e.ID)
}

// Is проверяет, является ли ошибка ошибкой типа "не найдено"
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFoundError создает новую ошибку "не найдено"
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{
		Entity: entity,
		ID:     id,
	}
}

// TransitionError reports a state change the state machine does not allow
type TransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: transition %s -> %s is not allowed", e.Entity, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidOperation
}
