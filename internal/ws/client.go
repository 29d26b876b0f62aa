package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"chat-realtime/internal/apperr"
	"chat-realtime/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 64
)

// Client is one websocket connection. Reads happen on a single goroutine,
// so events from one connection are handled in arrival order; writes are
// serialized through the send queue.
type Client struct {
	info    ConnInfo
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	limiter *rate.Limiter
}

func newClient(info ConnInfo, conn *websocket.Conn, limiter *rate.Limiter) *Client {
	return &Client{
		info:    info,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		done:    make(chan struct{}),
		limiter: limiter,
	}
}

func (c *Client) ID() string     { return c.info.ConnID }
func (c *Client) UserID() string { return c.info.UserID }

// enqueue reports false when the queue is full. Frames for a closed client
// are silently discarded.
func (c *Client) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.once.Do(func() {
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

func (c *Client) closed() <-chan struct{} { return c.done }

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}

// readPump feeds inbound frames to handle until the connection fails, and
// returns the reason.
func (c *Client) readPump(ctx context.Context, handle func(context.Context, *Client, protocol.Frame)) error {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}
		if c.limiter != nil && !c.limiter.Allow() {
			c.reject("", apperr.New(apperr.CodeInvalidArgument, "rate limit exceeded"))
			continue
		}
		frame, err := protocol.Decode(raw)
		if err != nil {
			c.reject("", apperr.InvalidArg(err.Error()))
			continue
		}
		handle(ctx, c, frame)
	}
}

func (c *Client) reject(event protocol.Event, err error) {
	frame, encErr := protocol.Encode(protocol.EventError, errorPayload(event, err))
	if encErr != nil {
		return
	}
	c.enqueue(frame)
}

func errorPayload(event protocol.Event, err error) protocol.ErrorPayload {
	msg := err.Error()
	var appErr *apperr.AppError
	if errors.As(err, &appErr) {
		msg = appErr.Message
	}
	return protocol.ErrorPayload{Event: event, Code: string(apperr.CodeOf(err)), Message: msg}
}
