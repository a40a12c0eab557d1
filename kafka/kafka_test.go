package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"backoffice-svc/models"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestCompletionPublisher_SendsOrderEvent(t *testing.T) {
	cfg := mocks.NewTestConfig()
	cfg.Producer.Return.Successes = true
	producer := mocks.NewSyncProducer(t, cfg)

	var sent OrderEvent
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "order_events" {
			return errors.New("unexpected topic " + msg.Topic)
		}
		b, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		return json.Unmarshal(b, &sent)
	})

	pub := NewCompletionPublisher(NewPublisher(producer, zaptest.NewLogger(t)), "order_events")
	err := pub.OrderCompleted(context.Background(), models.OrderCompletion{
		OrderID: "O1", CustomerID: "C1", Amount: decimal.NewFromInt(99),
	})
	require.NoError(t, err)
	require.NoError(t, producer.Close())

	assert.Equal(t, EventOrderCompleted, sent.EventType)
	assert.Equal(t, "O1", sent.OrderID)
	assert.True(t, sent.Amount.Equal(decimal.NewFromInt(99)))
}

func TestPublisher_SendFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, mocks.NewTestConfig())
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	err := NewPublisher(producer, zaptest.NewLogger(t)).Publish(context.Background(), "audit_events", "", map[string]string{"a": "b"})
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, producer.Close())
}

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafkago.Message
	committed []int64
	cancel    context.CancelFunc
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafkago.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.msgs) == 0 {
		r.cancel()
		return kafkago.Message{}, context.Canceled
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafkago.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

type recordingApplier struct {
	mu       sync.Mutex
	calls    []string
	failures int
	err      error
}

func (a *recordingApplier) ApplyOrderCompletion(_ context.Context, ev models.OrderCompletion) error {
	return a.record(ev.OrderID)
}

func (a *recordingApplier) ReverseOrderCompletion(_ context.Context, ev models.OrderCompletion) error {
	return a.record("-" + ev.OrderID)
}

func (a *recordingApplier) record(call string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, call)
	if a.failures > 0 {
		a.failures--
		return a.err
	}
	return nil
}

func message(t *testing.T, offset int64, ev OrderEvent) kafkago.Message {
	b, err := json.Marshal(ev)
	require.NoError(t, err)
	return kafkago.Message{Topic: "order_events", Offset: offset, Value: b}
}

func runConsumer(t *testing.T, applier CompletionApplier, msgs ...kafkago.Message) *fakeReader {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := &fakeReader{msgs: msgs, cancel: cancel}
	c := NewConsumer(r, applier, zaptest.NewLogger(t))
	c.backoff = time.Millisecond
	require.NoError(t, c.Run(ctx))
	return r
}

func TestConsumer_AppliesCompletionsAndCommits(t *testing.T) {
	applier := &recordingApplier{}
	r := runConsumer(t, applier,
		message(t, 1, OrderEvent{EventType: EventOrderCompleted, OrderCompletion: models.OrderCompletion{OrderID: "O1", CustomerID: "C1"}}),
		message(t, 2, OrderEvent{EventType: "order_created", OrderCompletion: models.OrderCompletion{OrderID: "O2", CustomerID: "C1"}}),
		kafkago.Message{Offset: 3, Value: []byte("{not json")},
	)

	assert.Equal(t, []string{"O1"}, applier.calls)
	assert.Equal(t, []int64{1, 2, 3}, r.committed)
}

func TestConsumer_RetriesTransientFailures(t *testing.T) {
	applier := &recordingApplier{failures: 2, err: models.ErrSourceUnavailable}
	runConsumer(t, applier,
		message(t, 1, OrderEvent{EventType: EventOrderCompleted, OrderCompletion: models.OrderCompletion{OrderID: "O1", CustomerID: "C1"}}))

	assert.Equal(t, []string{"O1", "O1", "O1"}, applier.calls)
}

func TestConsumer_DoesNotRetryMissingCustomer(t *testing.T) {
	applier := &recordingApplier{failures: 5, err: models.ErrNotFound}
	runConsumer(t, applier,
		message(t, 1, OrderEvent{EventType: EventOrderCompleted, OrderCompletion: models.OrderCompletion{OrderID: "O1", CustomerID: "C9"}}))

	assert.Equal(t, []string{"O1"}, applier.calls)
}

func TestConsumer_AppliesReversals(t *testing.T) {
	applier := &recordingApplier{}
	r := runConsumer(t, applier,
		message(t, 1, OrderEvent{EventType: EventOrderCompleted, OrderCompletion: models.OrderCompletion{OrderID: "O1", CustomerID: "C1"}}),
		message(t, 2, OrderEvent{EventType: EventOrderReversed, OrderCompletion: models.OrderCompletion{OrderID: "O1", CustomerID: "C1"}}),
		message(t, 3, OrderEvent{EventType: EventOrderReversed, OrderCompletion: models.OrderCompletion{OrderID: "O2"}}),
	)

	assert.Equal(t, []string{"O1", "-O1"}, applier.calls)
	assert.Equal(t, []int64{1, 2, 3}, r.committed)
}

func TestCompletionPublisher_SendsReversal(t *testing.T) {
	cfg := mocks.NewTestConfig()
	cfg.Producer.Return.Successes = true
	producer := mocks.NewSyncProducer(t, cfg)

	var sent OrderEvent
	var key string
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		k, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		key = string(k)
		b, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		return json.Unmarshal(b, &sent)
	})

	pub := NewCompletionPublisher(NewPublisher(producer, zaptest.NewLogger(t)), "order_events")
	require.NoError(t, pub.OrderReversed(context.Background(), models.OrderCompletion{OrderID: "O1", CustomerID: "C1"}))
	require.NoError(t, producer.Close())

	assert.Equal(t, EventOrderReversed, sent.EventType)
	assert.Equal(t, "C1", key)
}
