package app

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/retry"
)

const (
	publishBreakerMaxFailures  = 5
	publishBreakerResetTimeout = 30 * time.Second
)

// initKafkaProducer создаёт producer, если брокеры заданы.
// Ошибка подключения не фатальна: события копятся в outbox до следующего запуска.
func initKafkaProducer(brokers []string, logger *log.Entry) (*kafka.Producer, error) {
	if len(brokers) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokers)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil, err
	}

	logger.WithField("brokers", brokers).Info("kafka producer initialized")
	return producer, nil
}

// outboxPublishers собирает основной publisher с circuit breaker и publisher DLQ.
func outboxPublishers(producer *kafka.Producer, logger *log.Entry) (main, dlq *kafka.OutboxTopicPublisher) {
	if producer == nil {
		return nil, nil
	}
	breaker := retry.NewCircuitBreaker(publishBreakerMaxFailures, publishBreakerResetTimeout, logger.WithField("breaker", "kafka"))
	main = kafka.NewOutboxPublisher(producer, "", kafka.WithCircuitBreaker(breaker))
	dlq = kafka.NewOutboxPublisher(producer, kafka.TopicDeadLetterQueue)
	return main, dlq
}

// closeKafkaProducer закрывает Kafka producer если он не nil.
func closeKafkaProducer(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}
