package producer

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/Dhoini/parking-payments/internal/domain"
	"github.com/Dhoini/parking-payments/internal/kafka"
	"github.com/Dhoini/parking-payments/pkg/logger"
	"github.com/IBM/sarama"
	"github.com/google/uuid"
)

// Типы событий
const (
	EventSessionClosed   = "session.closed"
	EventSessionCanceled = "session.canceled"

	EventOrderCreated      = "order.created"
	EventOrderRefunded     = "order.refunded"
	EventPaymentAuthorized = "payment.authorized"
	EventPaymentConfirmed  = "payment.confirmed"
	EventPaymentReversed   = "payment.reversed"
	EventPaymentRejected   = "payment.rejected"
)

// SessionEvent представляет событие сессии для Kafka
type SessionEvent struct {
	EventID         string    `json:"event_id"`
	Type            string    `json:"type"`
	SessionID       int64     `json:"session_id"`
	VendorSessionID string    `json:"vendor_session_id"`
	ParkingID       int64     `json:"parking_id"`
	ClientID        int64     `json:"client_id"`
	State           string    `json:"state"`
	ClientState     string    `json:"client_state"`
	Debt            string    `json:"debt"`
	DurationSeconds int64     `json:"duration_seconds"`
	Timestamp       time.Time `json:"timestamp"`
}

// PaymentEvent представляет событие заказа или платежа для Kafka
type PaymentEvent struct {
	EventID       string    `json:"event_id"`
	Type          string    `json:"type"`
	OrderID       string    `json:"order_id"`
	SessionID     *int64    `json:"session_id,omitempty"`
	ClientID      int64     `json:"client_id"`
	Sum           string    `json:"sum"`
	RefundedSum   string    `json:"refunded_sum"`
	PaymentID     string    `json:"payment_id,omitempty"`
	Status        string    `json:"status,omitempty"`
	ErrorCode     string    `json:"error_code,omitempty"`
	ErrorCategory string    `json:"error_category,omitempty"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// EventProducer интерфейс для отправки событий. Ошибки публикации не
// откатывают изменения состояния, вызывающий только логирует их.
type EventProducer interface {
	PublishSessionEvent(ctx context.Context, eventType string, session *domain.ParkingSession) error
	PublishPaymentEvent(ctx context.Context, eventType string, order *domain.Order, payment *domain.Payment) error
	Close() error
}

type kafkaEventProducer struct {
	producer sarama.SyncProducer
	log      *logger.Logger
	now      func() time.Time
}

// NewKafkaEventProducer создает новый продюсер событий
func NewKafkaEventProducer(producer sarama.SyncProducer, log *logger.Logger) EventProducer {
	return &kafkaEventProducer{
		producer: producer,
		log:      log,
		now:      time.Now,
	}
}

// PublishSessionEvent публикует событие сессии
func (p *kafkaEventProducer) PublishSessionEvent(ctx context.Context, eventType string, s *domain.ParkingSession) error {
	event := SessionEvent{
		EventID:         uuid.NewString(),
		Type:            eventType,
		SessionID:       s.ID,
		VendorSessionID: s.VendorSessionID,
		ParkingID:       s.ParkingID,
		ClientID:        s.ClientID,
		State:           s.State.String(),
		ClientState:     s.ClientState.String(),
		Debt:            s.Debt.StringFixed(2),
		DurationSeconds: s.DurationSeconds(),
		Timestamp:       p.now().UTC(),
	}
	return p.publish(ctx, kafka.TopicSessionEvents, strconv.FormatInt(s.ID, 10), eventType, event)
}

// PublishPaymentEvent публикует событие заказа. payment может быть nil.
func (p *kafkaEventProducer) PublishPaymentEvent(ctx context.Context, eventType string, o *domain.Order, payment *domain.Payment) error {
	event := PaymentEvent{
		EventID:     uuid.NewString(),
		Type:        eventType,
		OrderID:     o.ID.String(),
		SessionID:   o.SessionID,
		ClientID:    o.ClientID,
		Sum:         o.Sum.StringFixed(2),
		RefundedSum: o.RefundedSum.StringFixed(2),
		Timestamp:   p.now().UTC(),
	}
	if payment != nil {
		event.PaymentID = payment.PaymentID
		event.Status = string(payment.Status)
		event.ErrorCode = payment.ErrorCode
		event.ErrorCategory = payment.ErrorCategory
		event.ErrorMessage = payment.ErrorMessage
	}

	key := o.ID.String()
	if o.SessionID != nil {
		key = strconv.FormatInt(*o.SessionID, 10)
	}
	return p.publish(ctx, kafka.TopicPaymentEvents, key, eventType, event)
}

// publish публикует событие в Kafka
func (p *kafkaEventProducer) publish(ctx context.Context, topic, key, eventType string, event interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	messageValue, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(messageValue),
		Headers: []sarama.RecordHeader{
			{
				Key:   []byte("event_type"),
				Value: []byte(eventType),
			},
		},
		Timestamp: p.now(),
	}

	partition, offset, err := p.producer.SendMessage(message)
	if err != nil {
		return fmt.Errorf("failed to publish %s event: %w", eventType, err)
	}

	p.log.Debugw("Published event", "topic", topic, "type", eventType, "partition", partition, "offset", offset)
	return nil
}

// Close закрывает продюсер
func (p *kafkaEventProducer) Close() error {
	return p.producer.Close()
}

// NopProducer используется, когда Kafka не настроена или недоступна
type NopProducer struct{}

func (NopProducer) PublishSessionEvent(context.Context, string, *domain.ParkingSession) error {
	return nil
}

func (NopProducer) PublishPaymentEvent(context.Context, string, *domain.Order, *domain.Payment) error {
	return nil
}

func (NopProducer) Close() error { return nil }
