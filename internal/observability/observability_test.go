package observability

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	routingKey string
	event      any
	err        error
}

func (p *recordingPublisher) Publish(_ context.Context, routingKey string, event any) error {
	p.routingKey = routingKey
	p.event = event
	return p.err
}

func TestPublishEventAttachesHeaders(t *testing.T) {
	pub := &recordingPublisher{}
	SetPublisher(pub)
	t.Cleanup(func() { SetPublisher(nil) })

	env := NewWSEnvelope(WSLifecycle{Event: "ws_connect", ConnID: "c1", UserID: "u1"})
	require.NoError(t, PublishEvent(context.Background(), WSRoutingKey, env, BuildHeaders("req-1", "")))

	assert.Equal(t, WSRoutingKey, pub.routingKey)
	got, ok := pub.event.(EventEnvelope)
	require.True(t, ok)
	assert.Equal(t, "ws_connect", got.EventName)
	assert.Equal(t, map[string]string{"x-request-id": "req-1"}, got.Headers)
}

func TestPublishEventCountsErrors(t *testing.T) {
	SetPublisher(&recordingPublisher{err: errors.New("channel closed")})
	t.Cleanup(func() { SetPublisher(nil) })

	before := testutil.ToFloat64(amqpPublishErrorsTotal)
	err := PublishEvent(context.Background(), WSRoutingKey, EventEnvelope{}, nil)
	require.Error(t, err)
	assert.Equal(t, before+1, testutil.ToFloat64(amqpPublishErrorsTotal))
}

func TestPublishEventWithoutPublisher(t *testing.T) {
	SetPublisher(nil)
	assert.NoError(t, PublishEvent(context.Background(), WSRoutingKey, EventEnvelope{}, nil))
}

func TestIPFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
	assert.Equal(t, "10.0.0.1", IPFromRequest(r))

	r = httptest.NewRequest("GET", "/ws", nil)
	r.RemoteAddr = "192.0.2.1:1234"
	assert.Equal(t, "192.0.2.1", IPFromRequest(r))
}

func TestRequestIDFallsBackToGenerated(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws", nil)
	assert.NotEmpty(t, RequestIDFromRequest(r))
	r.Header.Set("X-Request-Id", "abc")
	assert.Equal(t, "abc", RequestIDFromRequest(r))
}

func TestSplitFullMethod(t *testing.T) {
	svc, method := splitFullMethod("/grpc.health.v1.Health/Check")
	assert.Equal(t, "grpc.health.v1.Health", svc)
	assert.Equal(t, "Check", method)
	svc, _ = splitFullMethod("bad")
	assert.Equal(t, "unknown", svc)
}

func TestInitTracingWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), "chat-realtime", "")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
