package kafka

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dhoini/parking-payments/pkg/logger"
)

func TestMissingTopics(t *testing.T) {
	required := RequiredTopics(TopicsConfig{})
	require.Len(t, required, 2)
	assert.Equal(t, 1, required[0].NumPartitions)

	missing := MissingTopics(required, map[string]bool{TopicSessionEvents: true})
	require.Len(t, missing, 1)
	assert.Equal(t, TopicPaymentEvents, missing[0].Topic)

	assert.Empty(t, MissingTopics(required, map[string]bool{TopicSessionEvents: true, TopicPaymentEvents: true}))
}

func TestEnsureTopics_InvalidBroker(t *testing.T) {
	log := logger.NewNop()
	assert.Error(t, EnsureTopics(context.Background(), NewConfig(nil), log))
	assert.Error(t, EnsureTopics(context.Background(), NewConfig([]string{"no-port"}), log))
	assert.Error(t, EnsureTopics(context.Background(), NewConfig([]string{"host:abc"}), log))
}

func TestNewSaramaConfig(t *testing.T) {
	cfg := NewConfig([]string{"localhost:9092"})
	sc := NewSaramaConfig(cfg)
	assert.True(t, sc.Producer.Return.Successes)
	assert.Equal(t, "parking-payments", sc.ClientID)
	require.NoError(t, sc.Validate())
}
