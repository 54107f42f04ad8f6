package websocket

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

// Timeouts bounds the blocking operations on a connection. Zero fields take their defaults.
type Timeouts struct {
	// WriteWait is the time allowed to write a frame to the peer
	WriteWait time.Duration

	// PongWait is the time allowed to read the next frame or pong from the peer
	PongWait time.Duration

	// PingPeriod must be less than PongWait
	PingPeriod time.Duration
}

// DefaultTimeouts returns the keepalive timeouts shared by clients and transports
func DefaultTimeouts() Timeouts {
	return Timeouts{
		WriteWait:  defaultWriteWait,
		PongWait:   defaultPongWait,
		PingPeriod: defaultPingPeriod,
	}
}

func (t Timeouts) withDefaults() Timeouts {
	if t.WriteWait <= 0 {
		t.WriteWait = defaultWriteWait
	}
	if t.PongWait <= 0 {
		t.PongWait = defaultPongWait
	}
	if t.PingPeriod <= 0 || t.PingPeriod >= t.PongWait {
		t.PingPeriod = (t.PongWait * 9) / 10
	}
	return t
}

// keepalive limits inbound frames and arms the read deadline, pushed back by every pong
func keepalive(conn *websocket.Conn, limit int64, pongWait time.Duration) {
	conn.SetReadLimit(limit)
	extendReadDeadline(conn, pongWait)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

func extendReadDeadline(conn *websocket.Conn, pongWait time.Duration) {
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
}

// writeText writes one data frame. Only the connection's write pump calls it.
func writeText(conn *websocket.Conn, data []byte, wait time.Duration) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func writePing(conn *websocket.Conn, wait time.Duration) error {
	return conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wait))
}

// writeClose sends a close frame. The write gives up at wait or at the deadline of ctx,
// whichever comes first.
func writeClose(ctx context.Context, conn *websocket.Conn, code int, reason string, wait time.Duration) error {
	deadline := time.Now().Add(wait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	return conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
}
