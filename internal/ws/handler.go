package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"chat-realtime/internal/chat"
	"chat-realtime/internal/logging"
	"chat-realtime/internal/observability"
)

type HandlerConfig struct {
	AllowedOrigins  []string
	EventsPerSecond float64
	EventBurst      int
	// Heartbeat is how often an open connection refreshes its user's
	// presence key. Zero disables the server-side refresh.
	Heartbeat time.Duration
}

// Handler upgrades authenticated requests to websocket connections.
type Handler struct {
	hub        *Hub
	dispatcher *Dispatcher
	service    Service
	upgrader   websocket.Upgrader
	cfg        HandlerConfig
}

func NewHandler(hub *Hub, service Service, cfg HandlerConfig) *Handler {
	h := &Handler{
		hub:        hub,
		dispatcher: NewDispatcher(hub, service),
		service:    service,
		cfg:        cfg,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// Handle expects middleware.SessionAuth to have set userID.
func (h *Handler) Handle(c *gin.Context) {
	userID := c.GetString("userID")
	if userID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	ctx, span := observability.Tracer().Start(c.Request.Context(), "ws.handshake")
	span.SetAttributes(attribute.String("user.id", userID))
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		span.RecordError(err)
		logging.Warn().Err(err).Str("user_id", userID).Msg("websocket upgrade failed")
		return
	}

	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}

	var limiter *rate.Limiter
	if h.cfg.EventsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(h.cfg.EventsPerSecond), max(h.cfg.EventBurst, 1))
	}
	client := newClient(info, conn, limiter)
	open := h.hub.Register(client)

	// The connection outlives the upgrade request.
	connCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sess := chat.Session{UserID: userID, ConnID: info.ConnID}

	observability.IncWSActive()
	h.publishLifecycle(connCtx, info, "ws_connect", "")
	logging.Info().Str("conn_id", info.ConnID).Str("user_id", userID).Str("ip", info.IP).Msg("websocket connected")

	h.service.Connect(connCtx, sess, open)

	go client.writePump()
	go h.keepPresence(connCtx, client, sess)
	go func() {
		err := client.readPump(connCtx, h.dispatcher.Dispatch)
		cancel()
		client.close()

		_, remaining := h.hub.Unregister(info.ConnID)
		cleanupCtx, done := context.WithTimeout(context.WithoutCancel(connCtx), 5*time.Second)
		h.service.Disconnect(cleanupCtx, sess, remaining)
		done()

		reason := ""
		if err != nil {
			reason = err.Error()
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.publishLifecycle(context.WithoutCancel(connCtx), info, "ws_error", reason)
			}
		}
		observability.DecWSActive()
		h.publishLifecycle(context.WithoutCancel(connCtx), info, "ws_disconnect", reason)
		logging.Info().Str("conn_id", info.ConnID).Str("user_id", userID).Str("reason", reason).Msg("websocket disconnected")
	}()
}

func (h *Handler) keepPresence(ctx context.Context, c *Client, sess chat.Session) {
	if h.cfg.Heartbeat <= 0 {
		return
	}
	ticker := time.NewTicker(h.cfg.Heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.service.Heartbeat(ctx, sess)
		case <-c.closed():
			return
		case <-ctx.Done():
			return
		}
	}
}

func (h *Handler) publishLifecycle(ctx context.Context, info ConnInfo, event, reason string) {
	var duration int64
	if event != "ws_connect" {
		duration = time.Since(info.ConnectedAt).Milliseconds()
	}
	env := observability.NewWSEnvelope(observability.WSLifecycle{
		Event:      event,
		ConnID:     info.ConnID,
		UserID:     info.UserID,
		DeviceID:   info.DeviceID,
		IP:         info.IP,
		DurationMS: duration,
		Reason:     reason,
	})
	_ = observability.PublishEvent(ctx, observability.WSRoutingKey, env, observability.BuildHeaders(info.RequestID, info.TraceID))
	observability.IncWSEvent("lifecycle", event)
}
