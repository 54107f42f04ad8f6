package ws

import (
	"github.com/limeprotocol/limews"
	"github.com/limeprotocol/limews/internal/websocket"
)

type Config = websocket.Config

// New creates a closed WebSocket transport. A nil cfg uses DefaultConfig.
func New(cfg *Config) limews.Transport {
	return websocket.New(cfg)
}

// NewConfig returns the default configuration delivering events to handler
func NewConfig(handler limews.Handler) *Config {
	cfg := websocket.DefaultConfig()
	if handler != nil {
		cfg.Handler = handler
	}
	return cfg
}

// DefaultConfig returns a Config with every field set to its default
func DefaultConfig() *Config {
	return websocket.DefaultConfig()
}

// NegotiateEncryption reports the encryption mode implied by the scheme of uri
func NegotiateEncryption(uri string) limews.Encryption {
	return websocket.NegotiateEncryption(uri)
}
