package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/google/uuid"
	"github.com/nimeshabuddhika/resilient-ledger/pkg"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/models"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/money"
	pkgviews "github.com/nimeshabuddhika/resilient-ledger/pkg/views"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeProducer struct {
	failures []error
	calls    int
	messages []*kafka.Message
}

func (f *fakeProducer) Produce(msg *kafka.Message, _ chan kafka.Event) error {
	f.calls++
	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		return err
	}
	f.messages = append(f.messages, msg)
	return nil
}

func testEvent() pkgviews.LedgerEvent {
	trx := models.Transaction{
		ID:                    uuid.New(),
		Type:                  pkg.TransactionTypeTransfer,
		SenderAccountNumber:   "100000000001",
		ReceiverAccountNumber: "100000000002",
		Amount:                money.FromInt(200),
		Fee:                   money.FromInt(100),
		CreatedAt:             time.Now().UTC(),
	}
	return pkgviews.NewLedgerEvent(pkgviews.EventTransactionRecorded, trx, "trace-1", time.Now())
}

func TestKafkaEventPublisher_Produces(t *testing.T) {
	producer := &fakeProducer{}
	pub := newKafkaEventPublisher(zap.NewNop(), producer, "ledger.transactions", 3)
	event := testEvent()

	pub.Publish(pkg.WithTraceID(context.Background(), "trace-1"), event)

	require.Len(t, producer.messages, 1)
	msg := producer.messages[0]
	assert.Equal(t, "ledger.transactions", *msg.TopicPartition.Topic)
	assert.Less(t, msg.TopicPartition.Partition, int32(3))
	assert.Equal(t, event.TransactionID.String(), string(msg.Key))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "transaction.recorded", decoded["event"])
	assert.Equal(t, "200.00", decoded["amount"])
	assert.Equal(t, "100.00", decoded["fee"])
	assert.Equal(t, "trace-1", decoded["traceId"])
}

func TestKafkaEventPublisher_RetriesQueueFull(t *testing.T) {
	queueFull := kafka.NewError(kafka.ErrQueueFull, "queue full", false)
	producer := &fakeProducer{failures: []error{queueFull, queueFull}}
	pub := newKafkaEventPublisher(zap.NewNop(), producer, "t", 1)
	var slept []time.Duration
	pub.sleep = func(d time.Duration) { slept = append(slept, d) }

	pub.Publish(context.Background(), testEvent())

	assert.Equal(t, 3, producer.calls)
	assert.Len(t, producer.messages, 1)
	assert.Len(t, slept, 2)
}

func TestKafkaEventPublisher_GivesUp(t *testing.T) {
	producer := &fakeProducer{failures: []error{errors.New("broker gone")}}
	pub := newKafkaEventPublisher(zap.NewNop(), producer, "t", 1)
	pub.sleep = func(time.Duration) { t.Fatal("non-retryable errors must not back off") }

	pub.Publish(context.Background(), testEvent())

	assert.Equal(t, 1, producer.calls)
	assert.Empty(t, producer.messages)
}
