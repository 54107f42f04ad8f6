package ws

import (
	"net/http"

	"github.com/limeprotocol/limews"
	"github.com/limeprotocol/limews/internal/websocket"
)

type Server = websocket.Server
type Client = websocket.Client
type RateLimitConfig = websocket.RateLimitConfig
type CheckOriginFn = websocket.CheckOriginFn
type OnConnectFn = websocket.OnConnectFn
type OnDisconnectFn = websocket.OnClientDisconnectFn
type Responder = websocket.Responder
type ServerConfig = *websocket.ServerConfig

// Timeouts bounds writes and keepalive on every client connection of a Server
type Timeouts = websocket.Timeouts

// NewServer creates a LIME test server.
//
// Without a Responder the server answers session negotiation, the /ping command,
// "ping" messages and "ping" notifications the way a LIME server would.
//
// Example:
//
//	server := ws.NewServer(ws.NewServerConfig(":8124", ws.DefaultRateLimitConfig(), ws.AllOrigins(), func(client *ws.Client) {
//	    log.Printf("Client connected: %s", client.ID())
//	}, nil))
//	if err := server.Start(ctx); err != nil {
//	    return err
//	}
//	defer server.Stop(ctx)
func NewServer(cfg ServerConfig) *Server {
	return websocket.NewServer(cfg)
}

// NewServerConfig builds a server configuration.
//
// Parameters:
//   - addr: The listen address (e.g., ":8124" or "localhost:8124")
//   - rateLimitConfig: Rate limiting configuration. Use DefaultRateLimitConfig() or NoRateLimit()
//   - checkOrigin: Function to validate WebSocket origins. Use AllOrigins() to allow all (dev only)
//   - onConnect: Optional callback called after the handshake, before the client's reading loop starts
//   - onDisconnect: Optional callback called when a client goes away
func NewServerConfig(addr string, rateLimitConfig *RateLimitConfig, checkOrigin CheckOriginFn, onConnect OnConnectFn, onDisconnect OnDisconnectFn) ServerConfig {
	return &websocket.ServerConfig{
		Addr:               addr,
		RateLimitConfig:    rateLimitConfig,
		CheckOrigin:        checkOrigin,
		OnConnect:          onConnect,
		OnClientDisconnect: onDisconnect,
	}
}

// AllOrigins returns a checkOrigin function that allows all origins
func AllOrigins() CheckOriginFn {
	return func(r *http.Request) bool {
		return true
	}
}

// DefaultRateLimitConfig returns the default rate limit configuration
func DefaultRateLimitConfig() *RateLimitConfig {
	return websocket.DefaultRateLimitConfig()
}

// DefaultTimeouts returns the write and keepalive timeouts used when ServerConfig.Timeouts is zero
func DefaultTimeouts() Timeouts {
	return websocket.DefaultTimeouts()
}

// NoRateLimit returns a configuration with rate limiting disabled
func NoRateLimit() *RateLimitConfig {
	return websocket.NoRateLimit()
}

// LimeResponder is the default reply table of the test server
func LimeResponder(from string, env limews.Envelope) (limews.Envelope, bool) {
	return websocket.LimeResponder(from, env)
}

// EchoResponder sends every envelope back to its sender
func EchoResponder(_ *Client, env limews.Envelope) (limews.Envelope, bool) {
	return env, true
}

var _ limews.Server = (*Server)(nil)
