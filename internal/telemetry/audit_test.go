package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.opentelemetry.io/otel/trace"

	"chat-realtime/internal/mocks"
)

func TestEmitPublishesEnvelope(t *testing.T) {
	pub := new(mocks.PublisherMock)
	emitter := NewAuditEmitter(pub, "", "chat-realtime", "test")

	pub.On("Publish", mock.Anything, AuditRoutingKey, mock.MatchedBy(func(env AuditEnvelope) bool {
		return env.EventType == "audit_log" &&
			env.ActorID == "u1" &&
			env.Payload.Action == "message.delete" &&
			env.Payload.Outcome == "denied" &&
			env.Service == "chat-realtime"
	})).Return(nil).Once()

	emitter.Emit(context.Background(), "u1", AuditPayload{Action: "message.delete", Outcome: "denied", MessageID: "m1"})

	pub.AssertExpectations(t)
}

func TestEmitPublishErrorIsSwallowed(t *testing.T) {
	pub := new(mocks.PublisherMock)
	emitter := NewAuditEmitter(pub, "audit.custom", "chat-realtime", "test")
	pub.On("Publish", mock.Anything, "audit.custom", mock.Anything).Return(assert.AnError).Once()

	assert.NotPanics(t, func() {
		emitter.Emit(context.Background(), "u1", AuditPayload{Action: "message.delete", Outcome: "ok"})
	})
	pub.AssertExpectations(t)
}

func TestNilEmitterIsNoop(t *testing.T) {
	var emitter *AuditEmitter
	assert.NotPanics(t, func() {
		emitter.Emit(context.Background(), "u1", AuditPayload{})
	})
}

func TestEmitCarriesTraceID(t *testing.T) {
	pub := new(mocks.PublisherMock)
	emitter := NewAuditEmitter(pub, "", "chat-realtime", "test")

	traceID := trace.TraceID{0x01, 0x02}
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  trace.SpanID{0x03},
	}))
	pub.On("Publish", mock.Anything, AuditRoutingKey, mock.MatchedBy(func(env AuditEnvelope) bool {
		return env.TraceID == traceID.String()
	})).Return(nil).Once()

	emitter.Emit(ctx, "u1", AuditPayload{Action: "message.delete", Outcome: "ok"})
	pub.AssertExpectations(t)
}
