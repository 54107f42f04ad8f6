package websocket

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/limeprotocol/limews"
	"github.com/limeprotocol/limews/internal/envelope"
	"github.com/limeprotocol/limews/internal/logging"
)

// Transport implements limews.Transport over a gorilla/websocket client connection.
type Transport struct {
	cfg     *Config
	handler limews.Handler
	dialer  *websocket.Dialer

	// Serializes Open and Close.
	lifecycle sync.Mutex

	mu         sync.RWMutex
	state      limews.State
	uri        string
	encryption limews.Encryption
	session    *session

	// Closed once the hooks of the previous session were all delivered.
	lastEvents <-chan struct{}
}

// New creates a closed Transport. A nil cfg uses DefaultConfig.
func New(cfg *Config) *Transport {
	cfg = cfg.withDefaults()
	return &Transport{
		cfg:     cfg,
		handler: cfg.Handler,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
			Subprotocols:     cfg.Subprotocols,
			TLSClientConfig:  cfg.TLSClientConfig,
		},
		state:      limews.StateClosed,
		encryption: limews.EncryptionNone,
	}
}

// Open connects to uri and blocks until the handshake completes.
func (t *Transport) Open(ctx context.Context, uri string) error {
	if err := t.open(ctx, uri); err != nil {
		t.handler.OnError(err)
		return err
	}
	return nil
}

func (t *Transport) open(ctx context.Context, uri string) error {
	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()

	t.mu.Lock()
	if t.state != limews.StateClosed {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", limews.ErrInvalidState, limews.ErrMsgAlreadyOpen)
	}
	t.state = limews.StateOpening
	t.uri = uri
	encryption := NegotiateEncryption(uri)
	t.encryption = encryption
	t.mu.Unlock()

	conn, resp, err := t.dialer.DialContext(ctx, uri, t.cfg.Header)
	if err != nil {
		t.setState(limews.StateClosed)
		if resp != nil {
			err = fmt.Errorf("%w: %s: %s: %w", limews.ErrConnection, limews.ErrMsgHandshakeFailed, resp.Status, err)
		} else {
			err = fmt.Errorf("%w: %s: %w", limews.ErrConnection, limews.ErrMsgHandshakeFailed, err)
		}
		logging.Warn("Handshake failed",
			zap.String("uri", uri),
			zap.Error(err),
		)
		return err
	}

	s := newSession(conn, uri, t.cfg)

	t.mu.Lock()
	t.session = s
	t.state = limews.StateOpen
	after := t.lastEvents
	t.lastEvents = s.events.done
	t.mu.Unlock()

	s.events.push(event{kind: eventOpen})
	go s.events.run(t.handler, after)
	s.start(t.handlePeerClose)

	logging.LogConnection(s.id, uri, "open")
	logging.Debug("Handshake completed",
		zap.String("session_id", s.id),
		zap.String("subprotocol", conn.Subprotocol()),
		zap.String("encryption", string(encryption)),
	)
	return nil
}

// Close sends a close frame after pending envelopes and waits for the peer's
// acknowledgement. The state is StateClosed when Close returns, even on error.
func (t *Transport) Close(ctx context.Context) error {
	t.lifecycle.Lock()

	t.mu.Lock()
	if t.state != limews.StateOpen {
		t.mu.Unlock()
		t.lifecycle.Unlock()
		err := fmt.Errorf("%w: %s", limews.ErrInvalidState, limews.ErrMsgNotOpen)
		t.handler.OnError(err)
		return err
	}
	s := t.session
	t.state = limews.StateClosing
	t.mu.Unlock()

	logging.LogConnection(s.id, s.uri, "closing")

	err := s.close(ctx)
	t.finish(s, err)

	t.lifecycle.Unlock()
	return err
}

// handlePeerClose tears down a session whose socket closed without a local Close.
func (t *Transport) handlePeerClose(s *session) {
	t.mu.Lock()
	if t.session != s || t.state != limews.StateOpen {
		t.mu.Unlock()
		return
	}
	t.state = limews.StateClosing
	t.mu.Unlock()

	logging.LogConnection(s.id, s.uri, "closed_by_peer")

	s.shutdown()

	var err error
	if isAbnormalClose(s.readErr) {
		err = fmt.Errorf("%w: %s: %w", limews.ErrConnection, limews.ErrMsgAbnormalClosure, s.readErr)
	}
	t.finish(s, err)
}

// finish moves to StateClosed and queues the final hooks of s.
func (t *Transport) finish(s *session, err error) {
	t.mu.Lock()
	t.state = limews.StateClosed
	t.session = nil
	t.mu.Unlock()

	if err != nil {
		s.events.push(event{kind: eventError, err: err})
	}
	s.events.push(event{kind: eventClose})
	s.events.close()

	logging.LogConnection(s.id, s.uri, "closed")
}

// Send encodes env and queues it behind previously sent envelopes.
func (t *Transport) Send(ctx context.Context, env limews.Envelope) error {
	if err := t.send(ctx, env); err != nil {
		t.handler.OnError(err)
		return err
	}
	return nil
}

func (t *Transport) send(ctx context.Context, env limews.Envelope) error {
	// Keep the read lock while queueing so Close cannot slip its close frame in
	// ahead of an envelope it already accepted.
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.state != limews.StateOpen {
		return fmt.Errorf("%w: %s", limews.ErrInvalidState, limews.ErrMsgDisconnected)
	}

	data, err := envelope.Encode(env)
	if err != nil {
		return err
	}

	return t.session.enqueue(ctx, data)
}

// State returns the current lifecycle state
func (t *Transport) State() limews.State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// URI returns the target of the last Open call
func (t *Transport) URI() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.uri
}

// Compression always returns limews.CompressionNone
func (t *Transport) Compression() limews.Compression {
	return limews.CompressionNone
}

// Encryption returns the mode negotiated by the last Open call
func (t *Transport) Encryption() limews.Encryption {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.encryption
}

func (t *Transport) SupportedCompression() []limews.Compression {
	return SupportedCompression()
}

func (t *Transport) SupportedEncryption() []limews.Encryption {
	return SupportedEncryption()
}

// SetCompression is a no-op; the transport never compresses.
func (t *Transport) SetCompression(limews.Compression) {}

// SetEncryption is a no-op; encryption follows the URI scheme.
func (t *Transport) SetEncryption(limews.Encryption) {}

func (t *Transport) setState(state limews.State) {
	t.mu.Lock()
	t.state = state
	t.mu.Unlock()
}

var _ limews.Transport = (*Transport)(nil)
