package kafka

import (
	"time"

	"github.com/IBM/sarama"
)

// Топики событий сервиса
const (
	TopicSessionEvents = "parking.session.events"
	TopicPaymentEvents = "parking.payment.events"
)

// Config конфигурация для Kafka
type Config struct {
	Brokers  []string
	ClientID string
	Producer ProducerConfig
	Topics   TopicsConfig
}

// ProducerConfig конфигурация для продюсера
type ProducerConfig struct {
	MaxMessageBytes  int
	Compression      sarama.CompressionCodec
	RequiredAcks     sarama.RequiredAcks
	FlushMaxMessages int
	Timeout          time.Duration
	RetryMax         int
}

// TopicsConfig параметры создаваемых топиков
type TopicsConfig struct {
	Partitions        int
	ReplicationFactor int
}

// NewConfig создает новую конфигурацию Kafka
func NewConfig(brokers []string) *Config {
	return &Config{
		Brokers:  brokers,
		ClientID: "parking-payments",
		Producer: ProducerConfig{
			MaxMessageBytes:  1000000,
			Compression:      sarama.CompressionSnappy,
			RequiredAcks:     sarama.WaitForAll,
			FlushMaxMessages: 100,
			Timeout:          10 * time.Second,
			RetryMax:         3,
		},
		Topics: TopicsConfig{
			Partitions:        3,
			ReplicationFactor: 1,
		},
	}
}

// NewSaramaConfig создает новую конфигурацию Sarama
func NewSaramaConfig(cfg *Config) *sarama.Config {
	saramaConfig := sarama.NewConfig()

	// Версия Kafka
	saramaConfig.Version = sarama.V3_3_0_0
	saramaConfig.ClientID = cfg.ClientID

	// Настройки продюсера
	saramaConfig.Producer.MaxMessageBytes = cfg.Producer.MaxMessageBytes
	saramaConfig.Producer.Compression = cfg.Producer.Compression
	saramaConfig.Producer.RequiredAcks = cfg.Producer.RequiredAcks
	saramaConfig.Producer.Flush.MaxMessages = cfg.Producer.FlushMaxMessages
	saramaConfig.Producer.Timeout = cfg.Producer.Timeout
	saramaConfig.Producer.Retry.Max = cfg.Producer.RetryMax
	// Ключ сообщения это id сессии: события одной сессии попадают в одну партицию
	saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true

	return saramaConfig
}

// NewSyncProducer подключается к брокерам и создает синхронный продюсер
func NewSyncProducer(cfg *Config) (sarama.SyncProducer, error) {
	return sarama.NewSyncProducer(cfg.Brokers, NewSaramaConfig(cfg))
}
