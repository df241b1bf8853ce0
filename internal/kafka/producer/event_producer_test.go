package producer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dhoini/parking-payments/internal/domain"
	"github.com/Dhoini/parking-payments/internal/kafka"
	"github.com/Dhoini/parking-payments/pkg/logger"
)

func TestPublishSessionEvent(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	var got SessionEvent
	sp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != kafka.TopicSessionEvents {
			return errors.New("unexpected topic " + msg.Topic)
		}
		key, _ := msg.Key.Encode()
		if string(key) != "12" {
			return errors.New("unexpected key " + string(key))
		}
		value, _ := msg.Value.Encode()
		return json.Unmarshal(value, &got)
	})

	p := NewKafkaEventProducer(sp, logger.NewNop())
	s := domain.NewVendorSession(1, 2, "v", time.Now())
	s.ID = 12
	s.Debt = decimal.RequireFromString("40.5")
	require.NoError(t, p.PublishSessionEvent(context.Background(), EventSessionClosed, s))

	assert.Equal(t, EventSessionClosed, got.Type)
	assert.Equal(t, "40.50", got.Debt)
	assert.NotEmpty(t, got.EventID)
	require.NoError(t, sp.Close())
}

func TestPublishPaymentEvent(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var ev PaymentEvent
		if err := json.Unmarshal(val, &ev); err != nil {
			return err
		}
		if ev.PaymentID != "777" || ev.Status != string(domain.PaymentStatusRejected) || ev.ErrorCode != "1051" {
			return errors.New("payment fields not propagated")
		}
		return nil
	})
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewKafkaEventProducer(sp, logger.NewNop())
	o := domain.NewSessionOrder(&domain.ParkingSession{ID: 3, ClientID: 9}, decimal.NewFromInt(100), time.Now())
	pay := domain.NewPayment(o.ID, time.Now())
	pay.PaymentID = "777"
	pay.Status = domain.PaymentStatusRejected
	pay.ErrorCode = "1051"

	require.NoError(t, p.PublishPaymentEvent(context.Background(), EventPaymentRejected, o, pay))
	err := p.PublishPaymentEvent(context.Background(), EventOrderCreated, o, nil)
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, sp.Close())
}

func TestNopProducer(t *testing.T) {
	var p EventProducer = NopProducer{}
	assert.NoError(t, p.PublishSessionEvent(context.Background(), EventSessionCanceled, &domain.ParkingSession{}))
	assert.NoError(t, p.Close())
}
