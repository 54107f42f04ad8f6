package websocket

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/limeprotocol/limews"
	"github.com/limeprotocol/limews/internal/envelope"
	"github.com/limeprotocol/limews/internal/logging"
)

// Client is a connection accepted by Server. Its lifecycle context is cancelled once the
// connection is closed, locally or after a failed write.
type Client struct {
	id          string
	conn        *websocket.Conn
	remoteAddr  string
	timeouts    Timeouts
	ctx         context.Context
	cancel      context.CancelFunc
	sendCh      chan []byte
	closeOnce   sync.Once
	rateLimiter *rate.Limiter // Rate limiter for incoming envelopes
}

// NewClient wraps an upgraded connection and starts its write pump. Zero timeouts take
// their defaults.
func NewClient(conn *websocket.Conn, remoteAddr string, rateLimitConfig *RateLimitConfig, timeouts Timeouts) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	var limiter *rate.Limiter
	if rateLimitConfig != nil && rateLimitConfig.Enabled {
		limiter = rate.NewLimiter(rateLimitConfig.MessagesPerSecond, rateLimitConfig.Burst)
	}

	client := &Client{
		id:          uuid.New().String(),
		conn:        conn,
		remoteAddr:  remoteAddr,
		timeouts:    timeouts.withDefaults(),
		ctx:         ctx,
		cancel:      cancel,
		sendCh:      make(chan []byte, defaultSendBufferSize),
		rateLimiter: limiter,
	}

	go client.writePump()

	return client
}

func (c *Client) ID() string {
	return c.id
}

func (c *Client) RemoteAddr() string {
	return c.remoteAddr
}

// Subprotocol returns the subprotocol negotiated during the handshake
func (c *Client) Subprotocol() string {
	return c.conn.Subprotocol()
}

func (c *Client) Context() context.Context {
	return c.ctx
}

// Send encodes env and queues it for the client
func (c *Client) Send(ctx context.Context, env limews.Envelope) error {
	data, err := envelope.Encode(env)
	if err != nil {
		return err
	}
	return c.sendFrame(ctx, data)
}

// sendFrame queues an encoded envelope. The queue is never closed, so a frame racing
// with Close is either written or dropped with the connection.
func (c *Client) sendFrame(ctx context.Context, data []byte) error {
	if c.ctx.Err() != nil {
		return fmt.Errorf("%w: %s", limews.ErrConnection, limews.ErrMsgConnectionClosed)
	}

	select {
	case c.sendCh <- data:
		return nil
	case <-c.ctx.Done():
		return fmt.Errorf("%w: %s", limews.ErrConnection, limews.ErrMsgConnectionClosed)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes the connection with 1000 (Normal Closure)
func (c *Client) Close(ctx context.Context) error {
	return c.CloseWithCode(ctx, websocket.CloseNormalClosure, "")
}

// CloseWithCode sends a close frame carrying code and reason, then drops the connection.
// Writing the frame gives up at WriteWait or at the deadline of ctx. Only the first call
// has an effect.
func (c *Client) CloseWithCode(ctx context.Context, code int, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if werr := writeClose(ctx, c.conn, code, reason, c.timeouts.WriteWait); werr != nil {
			logging.Debug("Failed to write close frame",
				zap.String("client_id", c.id),
				zap.Int("code", code),
				zap.Error(werr),
			)
		}
		err = c.conn.Close()
	})
	return err
}

// IsAlive reports whether the connection has not been closed yet
func (c *Client) IsAlive() bool {
	return c.ctx.Err() == nil
}

// CheckRateLimit reports whether another inbound envelope is allowed
func (c *Client) CheckRateLimit() bool {
	if c.rateLimiter == nil {
		return true
	}
	return c.rateLimiter.Allow()
}

// writePump is the only writer of data frames. A failed write cancels the client, which
// ends its reading loop in Server.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.timeouts.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data := <-c.sendCh:
			if err := writeText(c.conn, data, c.timeouts.WriteWait); err != nil {
				c.drop(err)
				return
			}

		case <-ticker.C:
			if err := writePing(c.conn, c.timeouts.WriteWait); err != nil {
				c.drop(err)
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) drop(err error) {
	if c.ctx.Err() == nil {
		logging.Debug("Write failed, dropping client",
			zap.String("client_id", c.id),
			zap.Error(err),
		)
	}
	c.cancel()
	_ = c.conn.Close()
}
