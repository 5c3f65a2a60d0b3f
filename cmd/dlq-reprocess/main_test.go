package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

func env(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

// deadLetterValue собирает запись так же, как её публикует outbox worker.
func deadLetterValue(t *testing.T, eventType string, payload any) []byte {
	t.Helper()

	original, err := json.Marshal(payload)
	require.NoError(t, err)
	letter, err := json.Marshal(map[string]any{
		"outbox_id":      "outbox-1",
		"aggregate_type": "order",
		"aggregate_id":   "order-1",
		"event_type":     eventType,
		"payload":        json.RawMessage(original),
		"publish_error":  "kafka: broker unreachable",
	})
	require.NoError(t, err)

	raw, err := json.Marshal(kafka.Envelope{
		ID:            "outbox-1",
		AggregateType: "order",
		AggregateID:   "order-1",
		EventType:     eventType,
		Payload:       letter,
		OccurredAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	require.NoError(t, err)
	return raw
}

func TestParseConfig_Defaults(t *testing.T) {
	cfg, err := parseConfig(nil, env(map[string]string{brokersEnv: "k1:9092, k2:9092"}))
	require.NoError(t, err)

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.brokers)
	assert.Equal(t, kafka.TopicDeadLetterQueue, cfg.sourceTopic)
	assert.Empty(t, cfg.targetTopic)
	assert.Equal(t, defaultReplayLimit, cfg.limit)
	assert.Equal(t, defaultIdleTimeout, cfg.idleTimeout)
	assert.False(t, cfg.execute)
}

func TestParseConfig_FlagsWinOverEnv(t *testing.T) {
	cfg, err := parseConfig([]string{
		"-brokers", "flag:9092",
		"-event-type", "OrderHandoffRequested",
		"-limit", "5",
		"-execute",
		"-from-newest",
	}, env(map[string]string{brokersEnv: "env:9092"}))
	require.NoError(t, err)

	assert.Equal(t, []string{"flag:9092"}, cfg.brokers)
	assert.Equal(t, "OrderHandoffRequested", cfg.eventType)
	assert.Equal(t, 5, cfg.limit)
	assert.True(t, cfg.execute)
	assert.True(t, cfg.fromNewest)
}

func TestParseConfig_ValidationErrors(t *testing.T) {
	cases := map[string][]string{
		"no brokers":        {},
		"empty source":      {"-brokers", "k:9092", "-source-topic", " "},
		"target eq source":  {"-brokers", "k:9092", "-target-topic", kafka.TopicDeadLetterQueue},
		"zero limit":        {"-brokers", "k:9092", "-limit", "0"},
		"zero idle timeout": {"-brokers", "k:9092", "-idle-timeout", "0s"},
		"unknown flag":      {"-brokers", "k:9092", "-dry"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parseConfig(args, env(nil))
			require.Error(t, err)
		})
	}
}

func TestDecodeDeadLetter_RoutesByEventType(t *testing.T) {
	raw := deadLetterValue(t, "OrderHandoffRequested", map[string]any{"orderId": "order-1"})

	replay, err := decodeDeadLetter(raw, config{})
	require.NoError(t, err)

	assert.Equal(t, kafka.TopicOrderHandoff, replay.topic)
	assert.Equal(t, "order-1", replay.key)
	assert.Equal(t, "outbox-1", replay.envelope.ID)
	assert.JSONEq(t, `{"orderId":"order-1"}`, string(replay.envelope.Payload))
	assert.Equal(t, "OrderHandoffRequested", replay.headers[kafka.HeaderEventType])
	assert.Equal(t, "outbox-1", replay.headers[kafka.HeaderOutboxID])
	assert.False(t, replay.envelope.PublishedAt.IsZero())

	replay, err = decodeDeadLetter(deadLetterValue(t, "OrderPlaced", map[string]any{}), config{})
	require.NoError(t, err)
	assert.Equal(t, kafka.TopicOrderEvents, replay.topic)

	replay, err = decodeDeadLetter(raw, config{targetTopic: "manual"})
	require.NoError(t, err)
	assert.Equal(t, "manual", replay.topic)
}

func TestDecodeDeadLetter_Rejects(t *testing.T) {
	noOriginal, err := json.Marshal(kafka.Envelope{
		ID:        "outbox-1",
		EventType: "OrderPlaced",
		Payload:   json.RawMessage(`{"outbox_id":"outbox-1","event_type":"OrderPlaced"}`),
	})
	require.NoError(t, err)

	cases := map[string][]byte{
		"not json":         []byte("not-json"),
		"empty envelope":   []byte(`{"id":"x"}`),
		"nested not json":  []byte(`{"id":"x","payload":"text"}`),
		"missing original": noOriginal,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := decodeDeadLetter(raw, config{})
			require.Error(t, err)
		})
	}
}

func TestReplay_DryRunDoesNotPublish(t *testing.T) {
	client := &stubOffsetClient{partitions: []int32{0}, offsets: map[int32]offsetRange{0: {oldest: 0, newest: 2}}}
	consumer := &stubConsumerSource{consumers: map[int32]partitionConsumer{
		0: closedPartitionConsumer(
			&sarama.ConsumerMessage{Offset: 0, Value: deadLetterValue(t, "OrderPlaced", map[string]any{"n": 1})},
			&sarama.ConsumerMessage{Offset: 1, Value: []byte("garbage")},
		),
	}}

	r := newTestReplayer(config{sourceTopic: kafka.TopicDeadLetterQueue, limit: 10, idleTimeout: 50 * time.Millisecond},
		dependencies{client: client, consumer: consumer})

	stats, err := r.replay(context.Background())
	require.NoError(t, err)
	assert.Equal(t, replayStats{processed: 2, replayed: 1, skipped: 1}, stats)
	assert.Equal(t, []consumeCall{{partition: 0, offset: 0}}, consumer.calls)
}

func TestReplay_ExecutePublishesWithReplayHeader(t *testing.T) {
	client := &stubOffsetClient{partitions: []int32{1, 0}, offsets: map[int32]offsetRange{
		0: {oldest: 0, newest: 1},
		1: {oldest: 4, newest: 5},
	}}
	consumer := &stubConsumerSource{consumers: map[int32]partitionConsumer{
		0: closedPartitionConsumer(&sarama.ConsumerMessage{Offset: 0, Value: deadLetterValue(t, "OrderHandoffRequested", map[string]any{})}),
		1: closedPartitionConsumer(&sarama.ConsumerMessage{Partition: 1, Offset: 4, Value: deadLetterValue(t, "OrderPlaced", map[string]any{})}),
	}}
	publisher := &stubPublisher{}

	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, limit: 10, execute: true, idleTimeout: 50 * time.Millisecond}
	stats, err := newTestReplayer(cfg, dependencies{client: client, consumer: consumer, publisher: publisher}).replay(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.replayed)
	require.Len(t, publisher.sent, 2)
	assert.Equal(t, kafka.TopicOrderHandoff, publisher.sent[0].topic)
	assert.Equal(t, kafka.TopicOrderEvents, publisher.sent[1].topic)
	assert.Equal(t, kafka.TopicDeadLetterQueue, publisher.sent[0].headers[HeaderReplayedFrom])
}

func TestReplay_EventTypeFilter(t *testing.T) {
	client := &stubOffsetClient{partitions: []int32{0}, offsets: map[int32]offsetRange{0: {oldest: 0, newest: 2}}}
	consumer := &stubConsumerSource{consumers: map[int32]partitionConsumer{
		0: closedPartitionConsumer(
			&sarama.ConsumerMessage{Offset: 0, Value: deadLetterValue(t, "OrderPlaced", map[string]any{})},
			&sarama.ConsumerMessage{Offset: 1, Value: deadLetterValue(t, "OrderHandoffRequested", map[string]any{})},
		),
	}}
	publisher := &stubPublisher{}

	cfg := config{sourceTopic: "dlq", eventType: "OrderHandoffRequested", limit: 10, execute: true, idleTimeout: 50 * time.Millisecond}
	stats, err := newTestReplayer(cfg, dependencies{client: client, consumer: consumer, publisher: publisher}).replay(context.Background())
	require.NoError(t, err)

	assert.Equal(t, replayStats{processed: 2, replayed: 1, skipped: 1}, stats)
	require.Len(t, publisher.sent, 1)
	assert.Equal(t, "OrderHandoffRequested", publisher.sent[0].headers[kafka.HeaderEventType])
}

func TestReplay_LimitAndFromNewest(t *testing.T) {
	client := &stubOffsetClient{partitions: []int32{0}, offsets: map[int32]offsetRange{0: {oldest: 0, newest: 10}}}
	consumer := &stubConsumerSource{consumers: map[int32]partitionConsumer{
		0: closedPartitionConsumer(
			&sarama.ConsumerMessage{Offset: 8, Value: deadLetterValue(t, "OrderPlaced", map[string]any{})},
			&sarama.ConsumerMessage{Offset: 9, Value: deadLetterValue(t, "OrderPlaced", map[string]any{})},
		),
	}}

	cfg := config{sourceTopic: "dlq", limit: 2, fromNewest: true, idleTimeout: 50 * time.Millisecond}
	stats, err := newTestReplayer(cfg, dependencies{client: client, consumer: consumer}).replay(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.processed)
	assert.Equal(t, []consumeCall{{partition: 0, offset: 8}}, consumer.calls)
}

func TestReplay_Errors(t *testing.T) {
	cfg := config{sourceTopic: "dlq", limit: 10, execute: true, idleTimeout: 50 * time.Millisecond}

	_, err := newTestReplayer(cfg, dependencies{}).replay(context.Background())
	require.ErrorContains(t, err, "client and consumer are required")

	_, err = newTestReplayer(cfg, dependencies{client: &stubOffsetClient{}, consumer: &stubConsumerSource{}}).replay(context.Background())
	require.ErrorContains(t, err, "publisher is required")

	deps := dependencies{
		client:    &stubOffsetClient{partitionsErr: errors.New("metadata")},
		consumer:  &stubConsumerSource{},
		publisher: &stubPublisher{},
	}
	_, err = newTestReplayer(cfg, deps).replay(context.Background())
	require.ErrorContains(t, err, "get partitions")

	deps.client = &stubOffsetClient{partitions: []int32{0}, offsetErr: map[int32]error{0: errors.New("offset")}}
	_, err = newTestReplayer(cfg, deps).replay(context.Background())
	require.ErrorContains(t, err, "get oldest offset")

	deps.client = &stubOffsetClient{partitions: []int32{0}, offsets: map[int32]offsetRange{0: {oldest: 0, newest: 1}}}
	deps.consumer = &stubConsumerSource{consumeErr: errors.New("boom")}
	_, err = newTestReplayer(cfg, deps).replay(context.Background())
	require.ErrorContains(t, err, "consume partition 0")

	deps.consumer = &stubConsumerSource{consumers: map[int32]partitionConsumer{
		0: closedPartitionConsumer(&sarama.ConsumerMessage{Offset: 0, Value: deadLetterValue(t, "OrderPlaced", map[string]any{})}),
	}}
	deps.publisher = &stubPublisher{err: errors.New("broker down")}
	stats, err := newTestReplayer(cfg, deps).replay(context.Background())
	require.ErrorContains(t, err, "publish replay message")
	assert.Equal(t, 1, stats.processed)
}

func TestReplay_IdleTimeoutAndCancel(t *testing.T) {
	open := &stubPartitionConsumer{
		messages: make(chan *sarama.ConsumerMessage),
		errors:   make(chan *sarama.ConsumerError),
	}
	client := &stubOffsetClient{partitions: []int32{0}, offsets: map[int32]offsetRange{0: {oldest: 0, newest: 3}}}
	cfg := config{sourceTopic: "dlq", limit: 10, idleTimeout: 10 * time.Millisecond}

	stats, err := newTestReplayer(cfg, dependencies{client: client, consumer: &stubConsumerSource{
		consumers: map[int32]partitionConsumer{0: open},
	}}).replay(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.processed)
	assert.True(t, open.closed)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg.idleTimeout = time.Minute
	_, err = newTestReplayer(cfg, dependencies{client: client, consumer: &stubConsumerSource{
		consumers: map[int32]partitionConsumer{0: &stubPartitionConsumer{
			messages: make(chan *sarama.ConsumerMessage),
			errors:   make(chan *sarama.ConsumerError),
		}},
	}}).replay(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRun_ClosesDependencies(t *testing.T) {
	client := &stubOffsetClient{partitions: []int32{0}, offsets: map[int32]offsetRange{0: {oldest: 0, newest: 0}}}
	consumer := &stubConsumerSource{}
	publisher := &stubPublisher{}

	prev := newDependencies
	t.Cleanup(func() { newDependencies = prev })
	newDependencies = func(config) (dependencies, error) {
		return dependencies{client: client, consumer: consumer, publisher: publisher}, nil
	}

	_, err := run(context.Background(), config{sourceTopic: "dlq", limit: 1, execute: true, idleTimeout: time.Millisecond})
	require.NoError(t, err)
	assert.True(t, client.closed)
	assert.True(t, consumer.closed)
	assert.True(t, publisher.closed)

	newDependencies = func(config) (dependencies, error) { return dependencies{}, errors.New("no brokers") }
	_, err = run(context.Background(), config{})
	require.ErrorContains(t, err, "no brokers")
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "b", firstNonEmpty("", " ", "b", "c"))
	assert.Empty(t, firstNonEmpty("", " "))
}

func newTestReplayer(cfg config, deps dependencies) *replayer {
	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	return &replayer{cfg: cfg, deps: deps, logger: log.NewEntry(logger)}
}

type offsetRange struct {
	oldest int64
	newest int64
}

type stubOffsetClient struct {
	partitions    []int32
	partitionsErr error
	offsets       map[int32]offsetRange
	offsetErr     map[int32]error
	closed        bool
}

func (s *stubOffsetClient) GetOffset(_ string, partition int32, marker int64) (int64, error) {
	if err, ok := s.offsetErr[partition]; ok {
		return 0, err
	}

	r := s.offsets[partition]
	switch marker {
	case sarama.OffsetOldest:
		return r.oldest, nil
	case sarama.OffsetNewest:
		return r.newest, nil
	default:
		return 0, fmt.Errorf("unsupported marker %d", marker)
	}
}

func (s *stubOffsetClient) Partitions(string) ([]int32, error) {
	if s.partitionsErr != nil {
		return nil, s.partitionsErr
	}
	return append([]int32(nil), s.partitions...), nil
}

func (s *stubOffsetClient) Close() error {
	s.closed = true
	return nil
}

type consumeCall struct {
	partition int32
	offset    int64
}

type stubConsumerSource struct {
	consumers  map[int32]partitionConsumer
	consumeErr error
	calls      []consumeCall
	closed     bool
}

func (s *stubConsumerSource) ConsumePartition(_ string, partition int32, offset int64) (partitionConsumer, error) {
	s.calls = append(s.calls, consumeCall{partition: partition, offset: offset})
	if s.consumeErr != nil {
		return nil, s.consumeErr
	}
	pc, ok := s.consumers[partition]
	if !ok {
		return nil, fmt.Errorf("partition %d not configured", partition)
	}
	return pc, nil
}

func (s *stubConsumerSource) Close() error {
	s.closed = true
	return nil
}

type stubPartitionConsumer struct {
	messages chan *sarama.ConsumerMessage
	errors   chan *sarama.ConsumerError
	closed   bool
}

func (s *stubPartitionConsumer) Messages() <-chan *sarama.ConsumerMessage { return s.messages }
func (s *stubPartitionConsumer) Errors() <-chan *sarama.ConsumerError     { return s.errors }
func (s *stubPartitionConsumer) Close() error {
	s.closed = true
	return nil
}

func closedPartitionConsumer(messages ...*sarama.ConsumerMessage) *stubPartitionConsumer {
	msgCh := make(chan *sarama.ConsumerMessage, len(messages))
	for _, msg := range messages {
		msgCh <- msg
	}
	close(msgCh)
	return &stubPartitionConsumer{messages: msgCh, errors: make(chan *sarama.ConsumerError)}
}

type sentReplay struct {
	topic   string
	key     string
	headers map[string]string
}

type stubPublisher struct {
	err    error
	sent   []sentReplay
	closed bool
}

func (s *stubPublisher) PublishEvent(_ context.Context, topic, key string, _ any, headers map[string]string) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentReplay{topic: topic, key: key, headers: headers})
	return nil
}

func (s *stubPublisher) Close() error {
	s.closed = true
	return nil
}
