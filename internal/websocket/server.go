package websocket

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/limeprotocol/limews"
	"github.com/limeprotocol/limews/internal/envelope"
	"github.com/limeprotocol/limews/internal/logging"
)

// CheckOriginFn is a function that validates the origin of a WebSocket connection request.
type CheckOriginFn = func(r *http.Request) bool

// OnConnectFn is called after the handshake of a new client, before its reading loop starts.
type OnConnectFn = func(client *Client)

// OnClientDisconnectFn is called when a client disconnects. voluntary is true when the
// client closed the connection itself.
type OnClientDisconnectFn = func(client *Client, voluntary bool)

// Responder produces the reply to an inbound envelope. ok is false when there is no reply.
type Responder = func(client *Client, env limews.Envelope) (reply limews.Envelope, ok bool)

type ServerConfig struct {
	Addr string

	// Path the WebSocket endpoint is served on. Defaults to "/".
	Path string

	// Subprotocols accepted by the upgrader. Defaults to ["lime"].
	Subprotocols []string

	RateLimitConfig    *RateLimitConfig
	CheckOrigin        CheckOriginFn
	OnConnect          OnConnectFn
	OnClientDisconnect OnClientDisconnectFn

	// Responder answers inbound envelopes. Defaults to the LIME test responses.
	Responder Responder

	// Timeouts applied to every client connection. Zero fields take their defaults.
	Timeouts Timeouts
}

// RateLimitConfig defines rate limiting configuration for clients
type RateLimitConfig struct {
	// MessagesPerSecond defines how many envelopes a client can send per second
	MessagesPerSecond rate.Limit
	// Burst defines the maximum burst size (token bucket capacity)
	Burst int
	// Enabled determines if rate limiting is active
	Enabled bool
}

// DefaultRateLimitConfig returns the default rate limit configuration
// Allows 100 envelopes per second with burst of 200
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		MessagesPerSecond: 100,
		Burst:             200,
		Enabled:           true,
	}
}

// NoRateLimit returns a configuration with rate limiting disabled
func NoRateLimit() *RateLimitConfig {
	return &RateLimitConfig{
		Enabled: false,
	}
}

// Server implements limews.Server
type Server struct {
	addr      string
	path      string
	server    *http.Server
	listener  net.Listener
	clients   sync.Map // map[string]*Client
	responder Responder

	rateLimitConfig *RateLimitConfig
	timeouts        Timeouts

	mu           sync.RWMutex
	running      bool
	upgrader     websocket.Upgrader
	onConnect    OnConnectFn
	onDisconnect OnClientDisconnectFn
}

// NewServer creates a LIME test server. A nil RateLimitConfig uses DefaultRateLimitConfig
// and a nil Responder answers with LimeResponder.
func NewServer(cfg *ServerConfig) *Server {
	if cfg == nil {
		cfg = &ServerConfig{}
	}
	if cfg.RateLimitConfig == nil {
		cfg.RateLimitConfig = DefaultRateLimitConfig()
	}

	path := cfg.Path
	if path == "" {
		path = "/"
	}

	subprotocols := cfg.Subprotocols
	if len(subprotocols) == 0 {
		subprotocols = []string{limews.Subprotocol}
	}

	s := &Server{
		addr:            cfg.Addr,
		path:            path,
		rateLimitConfig: cfg.RateLimitConfig,
		timeouts:        cfg.Timeouts.withDefaults(),
		onConnect:       cfg.OnConnect,
		onDisconnect:    cfg.OnClientDisconnect,
		responder:       cfg.Responder,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			Subprotocols:    subprotocols,
			CheckOrigin:     cfg.CheckOrigin,
		},
	}
	if s.responder == nil {
		s.responder = s.limeResponder
	}
	return s
}

// Start binds the listener and serves in the background
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New(limews.ErrMsgServerRunning)
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(s.path, s.handleWebSocket)

	s.listener = ln
	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.running = true

	go func(srv *http.Server) {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logging.Error("Server stopped unexpectedly",
				zap.String("addr", ln.Addr().String()),
				zap.Error(err),
			)
		}
	}(s.server)

	logging.Info("Server listening",
		zap.String("addr", ln.Addr().String()),
		zap.String("path", s.path),
	)
	return nil
}

// Stop closes every client connection and shuts the server down
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	srv := s.server
	s.mu.Unlock()

	s.clients.Range(func(key, value interface{}) bool {
		if client, ok := value.(*Client); ok {
			_ = client.CloseWithCode(ctx, websocket.CloseGoingAway, "server shutting down")
		}
		return true
	})

	return srv.Shutdown(ctx)
}

// Addr returns the bound address once started, the configured one before
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// URL returns the ws:// URL of the endpoint
func (s *Server) URL() string {
	return "ws://" + s.Addr() + s.path
}

// handleWebSocket handles incoming WebSocket connections
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response
		logging.Warn("Failed to upgrade connection",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	client := NewClient(conn, r.RemoteAddr, s.rateLimitConfig, s.timeouts)
	s.clients.Store(client.ID(), client)

	go s.handleClient(client)
}

// handleClient reads envelopes from a connected client and answers them
func (s *Server) handleClient(client *Client) {
	voluntary := false
	defer func() {
		if s.onDisconnect != nil {
			s.onDisconnect(client, voluntary)
		}
		s.clients.Delete(client.ID())
		_ = client.Close(context.Background())
		logging.LogConnection(client.ID(), client.RemoteAddr(), "client_disconnected")
	}()

	keepalive(client.conn, envelope.MaxEnvelopeSize, s.timeouts.PongWait)

	logging.LogConnection(client.ID(), client.RemoteAddr(), "client_connected")

	if s.onConnect != nil {
		s.onConnect(client)
	}

	for {
		select {
		case <-client.Context().Done():
			return
		default:
			_, data, err := client.conn.ReadMessage()
			if err != nil {
				var closeErr *websocket.CloseError
				voluntary = client.Context().Err() == nil && errors.As(err, &closeErr)
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logging.Warn("Unexpected WebSocket close error",
						zap.String("client_id", client.ID()),
						zap.Error(err),
					)
				}
				return
			}

			extendReadDeadline(client.conn, s.timeouts.PongWait)

			if !client.CheckRateLimit() {
				logging.Warn("Rate limit exceeded",
					zap.String("client_id", client.ID()),
					zap.String("remote_addr", client.RemoteAddr()),
				)
				_ = client.CloseWithCode(context.Background(), websocket.ClosePolicyViolation, limews.ErrMsgRateLimitExceeded)
				return
			}

			env, err := envelope.Decode(data)
			if err != nil {
				_ = client.CloseWithCode(context.Background(), websocket.CloseProtocolError, limews.ErrMsgInvalidEnvelope)
				return
			}

			s.handleEnvelope(client, env)
		}
	}
}

// handleEnvelope answers env on the reading goroutine so replies keep arrival order
func (s *Server) handleEnvelope(client *Client, env limews.Envelope) {
	reply, ok := s.responder(client, env)
	if !ok {
		logging.Debug("No reply for envelope",
			zap.String("client_id", client.ID()),
			zap.String("kind", envelope.KindOf(env).String()),
		)
		return
	}

	if err := client.Send(context.Background(), reply); err != nil {
		logging.Warn("Failed to send reply",
			zap.String("client_id", client.ID()),
			zap.Error(err),
		)
	}
}

func (s *Server) limeResponder(_ *Client, env limews.Envelope) (limews.Envelope, bool) {
	return LimeResponder(s.Addr(), env)
}

// GetClient returns a client by ID
func (s *Server) GetClient(id string) (*Client, bool) {
	if client, ok := s.clients.Load(id); ok {
		return client.(*Client), true
	}
	return nil, false
}

// ClientCount returns the number of connected clients
func (s *Server) ClientCount() int {
	n := 0
	s.clients.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}

// SendTo sends an envelope to a specific client
func (s *Server) SendTo(ctx context.Context, clientID string, env limews.Envelope) error {
	client, ok := s.GetClient(clientID)
	if !ok {
		return fmt.Errorf("%s: %s", limews.ErrMsgClientNotFound, clientID)
	}

	return client.Send(ctx, env)
}

// Broadcast sends an envelope to all connected clients
func (s *Server) Broadcast(ctx context.Context, env limews.Envelope) error {
	data, err := envelope.Encode(env)
	if err != nil {
		return err
	}

	var errs []error
	s.clients.Range(func(key, value interface{}) bool {
		if client, ok := value.(*Client); ok {
			if err := client.sendFrame(ctx, data); err != nil {
				errs = append(errs, fmt.Errorf("client %s: %w", client.ID(), err))
			}
		}
		return true
	})
	return errors.Join(errs...)
}

var _ limews.Server = (*Server)(nil)
