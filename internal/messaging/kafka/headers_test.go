package kafka

import (
	"context"
	"testing"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestHeaderCarrier_SetOverwritesAndGet(t *testing.T) {
	msg := &sarama.ProducerMessage{}
	carrier := headerCarrier{msg: msg}

	carrier.Set(HeaderEventType, "OrderPlaced")
	carrier.Set(HeaderOutboxID, "outbox-1")
	carrier.Set(HeaderEventType, "OrderHandoffRequested")

	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "OrderHandoffRequested", carrier.Get(HeaderEventType))
	assert.Equal(t, "", carrier.Get("missing"))
	assert.ElementsMatch(t, []string{HeaderEventType, HeaderOutboxID}, carrier.Keys())
}

func TestHeaderCarrier_TraceContextRoundTrip(t *testing.T) {
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	parent := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})

	msg := &sarama.ProducerMessage{}
	propagator := propagation.TraceContext{}
	propagator.Inject(trace.ContextWithSpanContext(context.Background(), parent), headerCarrier{msg: msg})

	assert.Equal(t, "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01", headerCarrier{msg: msg}.Get("traceparent"))

	extracted := trace.SpanContextFromContext(propagator.Extract(context.Background(), headerCarrier{msg: msg}))
	assert.Equal(t, traceID, extracted.TraceID())
	assert.True(t, extracted.IsRemote())
}
