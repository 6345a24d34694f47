package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/nimeshabuddhika/resilient-ledger/pkg"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/utils"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/views"
	"github.com/nimeshabuddhika/resilient-ledger/services/ledger-api/internal/observability"
	"go.uber.org/zap"
)

// EventPublisher hands committed ledger events to a broker. Failures are logged, never returned.
type EventPublisher interface {
	Publish(ctx context.Context, event views.LedgerEvent)
}

// NoopPublisher is used when no brokers are configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, views.LedgerEvent) {}

// messageProducer is the part of *kafka.Producer the publisher needs.
type messageProducer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
}

const (
	defaultProduceAttempts = 3
	produceBackoffBase     = 20 * time.Millisecond
	produceBackoffMax      = 500 * time.Millisecond
)

type KafkaEventPublisher struct {
	logger     *zap.Logger
	producer   messageProducer
	topic      string
	partitions int32
	attempts   int
	sleep      func(time.Duration)
}

func NewKafkaEventPublisher(logger *zap.Logger, producer *kafka.Producer, topic string, partitions int32) *KafkaEventPublisher {
	return newKafkaEventPublisher(logger, producer, topic, partitions)
}

func newKafkaEventPublisher(logger *zap.Logger, producer messageProducer, topic string, partitions int32) *KafkaEventPublisher {
	if partitions <= 0 {
		partitions = 1
	}
	return &KafkaEventPublisher{
		logger:     logger,
		producer:   producer,
		topic:      topic,
		partitions: partitions,
		attempts:   defaultProduceAttempts,
		sleep:      time.Sleep,
	}
}

// Publish produces the event keyed by transaction id. Partitioning by id keeps the
// recorded and cancelled events of one transaction in order.
func (k *KafkaEventPublisher) Publish(ctx context.Context, event views.LedgerEvent) {
	traceID := pkg.TraceIDFromContext(ctx)
	payload, err := json.Marshal(event)
	if err != nil {
		k.logger.Error("failed to encode ledger event", zap.String(pkg.TraceId, traceID), zap.Error(err))
		observability.EventsPublished.WithLabelValues(string(event.Event), "encode_error").Inc()
		return
	}

	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &k.topic,
			Partition: int32(event.TransactionID.ID() % uint32(k.partitions)),
		},
		Key:   []byte(event.TransactionID.String()),
		Value: payload,
		Headers: []kafka.Header{
			{Key: pkg.HeaderTraceId, Value: []byte(traceID)},
			{Key: "event", Value: []byte(event.Event)},
		},
	}

	for attempt := 1; attempt <= k.attempts; attempt++ {
		err = k.producer.Produce(msg, nil)
		if err == nil {
			observability.EventsPublished.WithLabelValues(string(event.Event), "ok").Inc()
			return
		}
		var kafkaErr kafka.Error
		if !errors.As(err, &kafkaErr) || kafkaErr.Code() != kafka.ErrQueueFull || attempt == k.attempts {
			break
		}
		k.sleep(utils.CalculateExponentialBackoffWithJitter(attempt, produceBackoffBase, produceBackoffMax))
	}
	observability.EventsPublished.WithLabelValues(string(event.Event), "error").Inc()
	k.logger.Error("failed to publish ledger event",
		zap.String(pkg.TraceId, traceID),
		zap.String(pkg.TransactionId, event.TransactionID.String()),
		zap.String("event", string(event.Event)),
		zap.Error(err))
}
