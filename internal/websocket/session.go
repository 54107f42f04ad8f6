package websocket

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/limeprotocol/limews"
	"github.com/limeprotocol/limews/internal/envelope"
	"github.com/limeprotocol/limews/internal/logging"
)

var errCloseTimeout = errors.New("timed out waiting for the peer to acknowledge close")

// session is one open/close cycle of a Transport. It exclusively owns the socket.
type session struct {
	id     string
	uri    string
	conn   *websocket.Conn
	cfg    *Config
	ctx    context.Context
	cancel context.CancelFunc

	// Outbound frames in send order. A nil frame requests the close frame.
	sendCh chan []byte

	events *eventQueue

	// Set once the close was initiated locally.
	closing atomic.Bool

	readerDone chan struct{}
	writerDone chan struct{}

	// Written by the reader before readerDone is closed.
	readErr error
}

func newSession(conn *websocket.Conn, uri string, cfg *Config) *session {
	ctx, cancel := context.WithCancel(context.Background())
	return &session{
		id:         uuid.New().String(),
		uri:        uri,
		conn:       conn,
		cfg:        cfg,
		ctx:        ctx,
		cancel:     cancel,
		sendCh:     make(chan []byte, cfg.SendBufferSize),
		events:     newEventQueue(),
		readerDone: make(chan struct{}),
		writerDone: make(chan struct{}),
	}
}

// start launches the reader and the write pump. onPeerClose runs on the reader
// goroutine when the socket closes without a local Close.
func (s *session) start(onPeerClose func(*session)) {
	go s.writePump()
	go func() {
		s.readLoop()
		if !s.closing.Load() {
			onPeerClose(s)
		}
	}()
}

// readLoop reads frames until the socket fails or closes
func (s *session) readLoop() {
	defer close(s.readerDone)

	keepalive(s.conn, s.cfg.ReadLimit, s.cfg.PongWait)

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			s.readErr = err
			return
		}

		extendReadDeadline(s.conn, s.cfg.PongWait)

		if messageType != websocket.TextMessage {
			s.events.push(event{
				kind: eventError,
				err:  fmt.Errorf("%w: %s", limews.ErrProtocol, limews.ErrMsgBinaryFrame),
			})
			continue
		}

		logging.LogEnvelope(s.id, "received", data)

		env, err := envelope.Decode(data)
		if err != nil {
			logging.Warn("Dropping malformed frame",
				zap.String("session_id", s.id),
				zap.Error(err),
			)
			s.events.push(event{kind: eventError, err: err})
			continue
		}

		s.events.push(event{kind: eventEnvelope, env: env})
	}
}

// writePump writes queued frames and keepalive pings. It is the only goroutine
// writing data frames to the socket.
func (s *session) writePump() {
	ticker := time.NewTicker(s.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		close(s.writerDone)
	}()

	for {
		select {
		case data := <-s.sendCh:
			if data == nil {
				s.writeClose()
				<-s.ctx.Done()
				return
			}

			if err := writeText(s.conn, data, s.cfg.WriteWait); err != nil {
				s.fail(err)
				return
			}
			logging.LogEnvelope(s.id, "sent", data)

		case <-ticker.C:
			if err := writePing(s.conn, s.cfg.WriteWait); err != nil {
				s.fail(err)
				return
			}

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *session) writeClose() {
	if err := writeClose(s.ctx, s.conn, websocket.CloseNormalClosure, "", s.cfg.WriteWait); err != nil {
		logging.Debug("Failed to write close frame",
			zap.String("session_id", s.id),
			zap.Error(err),
		)
	}
}

// fail reports a write failure and drops the socket, which ends the reader.
func (s *session) fail(err error) {
	if !s.closing.Load() {
		logging.Warn("Write failed, dropping connection",
			zap.String("session_id", s.id),
			zap.Error(err),
		)
		s.events.push(event{
			kind: eventError,
			err:  fmt.Errorf("%w: %s: %w", limews.ErrConnection, limews.ErrMsgWriteFailed, err),
		})
	}
	s.cancel()
	_ = s.conn.Close()
}

// enqueue admits a frame into the outbound queue.
func (s *session) enqueue(ctx context.Context, data []byte) error {
	if s.ctx.Err() != nil {
		return fmt.Errorf("%w: %s", limews.ErrInvalidState, limews.ErrMsgDisconnected)
	}

	select {
	case s.sendCh <- data:
		return nil
	case <-s.ctx.Done():
		return fmt.Errorf("%w: %s", limews.ErrInvalidState, limews.ErrMsgDisconnected)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close runs the local close handshake: the close frame goes out after every
// frame queued before it, then the peer's acknowledgement ends the reader.
// CloseTimeout bounds both the wait for room in the queue and the wait for the
// acknowledgement.
func (s *session) close(ctx context.Context) error {
	s.closing.Store(true)

	timer := time.NewTimer(s.cfg.CloseTimeout)
	defer timer.Stop()

	var err error
	select {
	case s.sendCh <- nil:
	case <-s.ctx.Done():
	case <-timer.C:
		err = errCloseTimeout
	case <-ctx.Done():
		err = ctx.Err()
	}

	if err == nil {
		select {
		case <-s.readerDone:
		case <-timer.C:
			err = errCloseTimeout
		case <-ctx.Done():
			err = ctx.Err()
		}
	}

	s.shutdown()

	if err != nil {
		return fmt.Errorf("%w: %s: %w", limews.ErrConnection, limews.ErrMsgCloseFailed, err)
	}
	return nil
}

// shutdown cancels the session, closes the socket and joins both goroutines.
func (s *session) shutdown() {
	s.cancel()
	_ = s.conn.Close()
	<-s.readerDone
	<-s.writerDone
}

// isAbnormalClose reports whether err ended the connection in a way the peer
// did not announce with a regular close frame.
func isAbnormalClose(err error) bool {
	if err == nil {
		return false
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		switch closeErr.Code {
		case websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived:
			return false
		}
		return true
	}

	return !errors.Is(err, net.ErrClosed)
}
