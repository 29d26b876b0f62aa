package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"chat-realtime/internal/logging"
)

const AuditRoutingKey = "audit.chat"

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// AuditEmitter records message deletions, including rejected attempts, on
// the audit routing key. A nil emitter is valid and does nothing.
type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	ActorID       string       `json:"actor_id,omitempty"`
	TraceID       string       `json:"trace_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Action         string `json:"action"`
	Outcome        string `json:"outcome"`
	ConversationID string `json:"conversation_id,omitempty"`
	MessageID      string `json:"message_id,omitempty"`
	Detail         string `json:"detail,omitempty"`
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string) *AuditEmitter {
	if routingKey == "" {
		routingKey = AuditRoutingKey
	}
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
	}
}

// Emit publishes one audit record. Publish failures are logged and dropped;
// an audit outage never fails the chat operation being audited.
func (e *AuditEmitter) Emit(ctx context.Context, actorID string, payload AuditPayload) {
	if e == nil || e.publisher == nil {
		return
	}

	var traceID string
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}

	logging.Info().
		Str("actor_id", actorID).
		Str("action", payload.Action).
		Str("outcome", payload.Outcome).
		Str("conversation_id", payload.ConversationID).
		Str("message_id", payload.MessageID).
		Str("trace_id", traceID).
		Msg("audit")

	envelope := AuditEnvelope{
		SchemaVersion: 1,
		EventType:     "audit_log",
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		ActorID:       actorID,
		TraceID:       traceID,
		Payload:       payload,
	}

	if err := e.publisher.Publish(ctx, e.routingKey, envelope); err != nil {
		logging.Warn().Err(err).Msg("audit publish failed")
	}
}
