package kafka

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/Dhoini/parking-payments/pkg/logger"
	kafkaGo "github.com/segmentio/kafka-go"
)

// RequiredTopics возвращает конфигурацию топиков сервиса
func RequiredTopics(cfg TopicsConfig) []kafkaGo.TopicConfig {
	partitions := cfg.Partitions
	if partitions <= 0 {
		partitions = 1
	}
	replication := cfg.ReplicationFactor
	if replication <= 0 {
		replication = 1
	}

	return []kafkaGo.TopicConfig{
		{Topic: TopicSessionEvents, NumPartitions: partitions, ReplicationFactor: replication},
		{Topic: TopicPaymentEvents, NumPartitions: partitions, ReplicationFactor: replication},
	}
}

// EnsureTopics проверяет и создает необходимые топики Kafka
func EnsureTopics(ctx context.Context, cfg *Config, log *logger.Logger) error {
	required := RequiredTopics(cfg.Topics)
	log.Infow("Ensuring Kafka topics exist", "topics", topicNames(required))

	if len(cfg.Brokers) == 0 || strings.TrimSpace(cfg.Brokers[0]) == "" {
		return errors.New("kafka broker address is empty")
	}
	broker := strings.TrimSpace(cfg.Brokers[0])
	_, portStr, err := net.SplitHostPort(broker)
	if err != nil {
		return fmt.Errorf("invalid broker address %s: %w", broker, err)
	}
	if _, err := strconv.Atoi(portStr); err != nil {
		return fmt.Errorf("invalid broker port %s: %w", broker, err)
	}

	// Админские операции выполняются через контроллер кластера
	conn, err := kafkaGo.DialContext(ctx, "tcp", broker)
	if err != nil {
		return fmt.Errorf("kafka connection failed: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("kafka controller lookup failed: %w", err)
	}
	ctrlConn, err := kafkaGo.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("kafka controller connection failed: %w", err)
	}
	defer ctrlConn.Close()

	partitions, err := ctrlConn.ReadPartitions()
	if err != nil {
		return fmt.Errorf("kafka read partitions failed: %w", err)
	}
	existing := make(map[string]bool, len(partitions))
	for _, p := range partitions {
		existing[p.Topic] = true
	}

	missing := MissingTopics(required, existing)
	if len(missing) == 0 {
		log.Infow("All required topics already exist")
		return nil
	}

	if err := ctrlConn.CreateTopics(missing...); err != nil {
		if errors.Is(err, kafkaGo.TopicAlreadyExists) {
			log.Warnw("Topics were created concurrently", "topics", topicNames(missing))
			return nil
		}
		return fmt.Errorf("kafka create topics failed: %w", err)
	}

	log.Infow("Created Kafka topics", "topics", topicNames(missing))
	return nil
}

// MissingTopics отбирает топики, которых еще нет в кластере
func MissingTopics(required []kafkaGo.TopicConfig, existing map[string]bool) []kafkaGo.TopicConfig {
	var missing []kafkaGo.TopicConfig
	for _, t := range required {
		if !existing[t.Topic] {
			missing = append(missing, t)
		}
	}
	return missing
}

func topicNames(topics []kafkaGo.TopicConfig) []string {
	names := make([]string, 0, len(topics))
	for _, t := range topics {
		names = append(names, t.Topic)
	}
	return names
}
