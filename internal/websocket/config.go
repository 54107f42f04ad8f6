package websocket

import (
	"crypto/tls"
	"net/http"
	"time"

	"github.com/limeprotocol/limews"
	"github.com/limeprotocol/limews/internal/envelope"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultCloseTimeout     = 5 * time.Second

	// Time allowed to write a frame to the peer
	defaultWriteWait = 10 * time.Second

	// Time allowed to read the next pong from the peer
	defaultPongWait = 60 * time.Second

	// Must be less than pongWait
	defaultPingPeriod = (defaultPongWait * 9) / 10

	defaultSendBufferSize = 256
)

// Config configures a Transport. Zero fields take their defaults.
type Config struct {
	// Handler receives the transport events. Defaults to limews.NopHandler.
	Handler limews.Handler

	// Subprotocols offered during the handshake. Defaults to ["lime"].
	Subprotocols []string

	// Header is sent with the handshake request.
	Header http.Header

	// TLSClientConfig is used for wss:// URIs.
	TLSClientConfig *tls.Config

	HandshakeTimeout time.Duration
	CloseTimeout     time.Duration
	WriteWait        time.Duration
	PongWait         time.Duration
	PingPeriod       time.Duration

	// ReadLimit is the maximum inbound frame size in bytes.
	ReadLimit int64

	// SendBufferSize is the number of envelopes Send can queue before it blocks.
	SendBufferSize int
}

// DefaultConfig returns a Config with every field set to its default.
func DefaultConfig() *Config {
	return &Config{
		Handler:          limews.NopHandler{},
		Subprotocols:     []string{limews.Subprotocol},
		HandshakeTimeout: defaultHandshakeTimeout,
		CloseTimeout:     defaultCloseTimeout,
		WriteWait:        defaultWriteWait,
		PongWait:         defaultPongWait,
		PingPeriod:       defaultPingPeriod,
		ReadLimit:        envelope.MaxEnvelopeSize,
		SendBufferSize:   defaultSendBufferSize,
	}
}

// withDefaults returns a copy of cfg with zero fields filled in.
func (cfg *Config) withDefaults() *Config {
	def := DefaultConfig()
	if cfg == nil {
		return def
	}

	out := *cfg
	if out.Handler == nil {
		out.Handler = def.Handler
	}
	if len(out.Subprotocols) == 0 {
		out.Subprotocols = def.Subprotocols
	}
	if out.HandshakeTimeout <= 0 {
		out.HandshakeTimeout = def.HandshakeTimeout
	}
	if out.CloseTimeout <= 0 {
		out.CloseTimeout = def.CloseTimeout
	}
	timeouts := out.timeouts().withDefaults()
	out.WriteWait = timeouts.WriteWait
	out.PongWait = timeouts.PongWait
	out.PingPeriod = timeouts.PingPeriod
	if out.ReadLimit <= 0 {
		out.ReadLimit = def.ReadLimit
	}
	if out.SendBufferSize <= 0 {
		out.SendBufferSize = def.SendBufferSize
	}
	return &out
}

func (cfg *Config) timeouts() Timeouts {
	return Timeouts{
		WriteWait:  cfg.WriteWait,
		PongWait:   cfg.PongWait,
		PingPeriod: cfg.PingPeriod,
	}
}
