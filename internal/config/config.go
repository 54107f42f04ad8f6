package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"slices"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/limeprotocol/limews"
	"github.com/limeprotocol/limews/internal/websocket"
)

const DefaultServerAddr = ":8124"

// File is the root of the configuration file
type File struct {
	LogLevel  string          `yaml:"log_level"`
	Transport TransportConfig `yaml:"transport"`
	Server    ServerConfig    `yaml:"server"`
}

// TransportConfig configures the client transport used by `limews dial`
type TransportConfig struct {
	Subprotocols       []string          `yaml:"subprotocols"`
	Headers            map[string]string `yaml:"headers,omitempty"`
	InsecureSkipVerify bool              `yaml:"insecure_skip_verify"`
	HandshakeTimeout   time.Duration     `yaml:"handshake_timeout"`
	CloseTimeout       time.Duration     `yaml:"close_timeout"`
	WriteWait          time.Duration     `yaml:"write_wait"`
	PongWait           time.Duration     `yaml:"pong_wait"`
	PingPeriod         time.Duration     `yaml:"ping_period"`
	ReadLimit          int64             `yaml:"read_limit"`
	SendBufferSize     int               `yaml:"send_buffer_size"`
}

// ServerConfig configures the test server run by `limews serve`
type ServerConfig struct {
	Addr         string   `yaml:"addr"`
	Path         string   `yaml:"path"`
	Subprotocols []string `yaml:"subprotocols"`

	// AllowedOrigins lists the accepted Origin headers. "*" accepts any origin;
	// an empty list only accepts same-origin requests.
	AllowedOrigins []string        `yaml:"allowed_origins"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`

	WriteWait  time.Duration `yaml:"write_wait"`
	PongWait   time.Duration `yaml:"pong_wait"`
	PingPeriod time.Duration `yaml:"ping_period"`
}

type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	MessagesPerSecond float64 `yaml:"messages_per_second"`
	Burst             int     `yaml:"burst"`
}

// Default returns the configuration used when no file is given
func Default() *File {
	transport := websocket.DefaultConfig()
	rateLimit := websocket.DefaultRateLimitConfig()
	timeouts := websocket.DefaultTimeouts()

	return &File{
		Transport: TransportConfig{
			Subprotocols:     transport.Subprotocols,
			HandshakeTimeout: transport.HandshakeTimeout,
			CloseTimeout:     transport.CloseTimeout,
			WriteWait:        transport.WriteWait,
			PongWait:         transport.PongWait,
			PingPeriod:       transport.PingPeriod,
			ReadLimit:        transport.ReadLimit,
			SendBufferSize:   transport.SendBufferSize,
		},
		Server: ServerConfig{
			Addr:         DefaultServerAddr,
			Path:         "/",
			Subprotocols: []string{limews.Subprotocol},
			RateLimit: RateLimitConfig{
				Enabled:           rateLimit.Enabled,
				MessagesPerSecond: float64(rateLimit.MessagesPerSecond),
				Burst:             rateLimit.Burst,
			},
			WriteWait:  timeouts.WriteWait,
			PongWait:   timeouts.PongWait,
			PingPeriod: timeouts.PingPeriod,
		},
	}
}

// Load reads path on top of Default. An empty path returns Default.
func Load(path string) (*File, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return cfg, nil
}

// Validate reports every invalid value at once
func (f *File) Validate() error {
	var errs []error

	durations := map[string]time.Duration{
		"transport.handshake_timeout": f.Transport.HandshakeTimeout,
		"transport.close_timeout":     f.Transport.CloseTimeout,
		"transport.write_wait":        f.Transport.WriteWait,
		"transport.pong_wait":         f.Transport.PongWait,
		"transport.ping_period":       f.Transport.PingPeriod,
		"server.write_wait":           f.Server.WriteWait,
		"server.pong_wait":            f.Server.PongWait,
		"server.ping_period":          f.Server.PingPeriod,
	}
	names := make([]string, 0, len(durations))
	for name := range durations {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if durations[name] < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", name))
		}
	}

	if f.Transport.ReadLimit < 0 {
		errs = append(errs, errors.New("transport.read_limit must not be negative"))
	}
	if f.Transport.SendBufferSize < 0 {
		errs = append(errs, errors.New("transport.send_buffer_size must not be negative"))
	}

	if f.Server.Path != "" && !strings.HasPrefix(f.Server.Path, "/") {
		errs = append(errs, fmt.Errorf("server.path %q must start with /", f.Server.Path))
	}

	if rl := f.Server.RateLimit; rl.Enabled {
		if rl.MessagesPerSecond <= 0 {
			errs = append(errs, errors.New("server.rate_limit.messages_per_second must be positive"))
		}
		if rl.Burst <= 0 {
			errs = append(errs, errors.New("server.rate_limit.burst must be positive"))
		}
	}

	return errors.Join(errs...)
}

// WebsocketConfig builds the transport configuration delivering events to h
func (t TransportConfig) WebsocketConfig(h limews.Handler) *websocket.Config {
	cfg := &websocket.Config{
		Handler:          h,
		Subprotocols:     t.Subprotocols,
		HandshakeTimeout: t.HandshakeTimeout,
		CloseTimeout:     t.CloseTimeout,
		WriteWait:        t.WriteWait,
		PongWait:         t.PongWait,
		PingPeriod:       t.PingPeriod,
		ReadLimit:        t.ReadLimit,
		SendBufferSize:   t.SendBufferSize,
	}

	if len(t.Headers) > 0 {
		cfg.Header = make(http.Header, len(t.Headers))
		for k, v := range t.Headers {
			cfg.Header.Set(k, v)
		}
	}

	if t.InsecureSkipVerify {
		cfg.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for local servers
	}

	return cfg
}

// WebsocketConfig builds the test server configuration
func (s ServerConfig) WebsocketConfig() *websocket.ServerConfig {
	cfg := &websocket.ServerConfig{
		Addr:         s.Addr,
		Path:         s.Path,
		Subprotocols: s.Subprotocols,
		CheckOrigin:  s.checkOrigin(),
		Timeouts: websocket.Timeouts{
			WriteWait:  s.WriteWait,
			PongWait:   s.PongWait,
			PingPeriod: s.PingPeriod,
		},
	}

	if s.RateLimit.Enabled {
		cfg.RateLimitConfig = &websocket.RateLimitConfig{
			MessagesPerSecond: rate.Limit(s.RateLimit.MessagesPerSecond),
			Burst:             s.RateLimit.Burst,
			Enabled:           true,
		}
	} else {
		cfg.RateLimitConfig = websocket.NoRateLimit()
	}

	return cfg
}

func (s ServerConfig) checkOrigin() websocket.CheckOriginFn {
	if len(s.AllowedOrigins) == 0 {
		return nil
	}
	if slices.Contains(s.AllowedOrigins, "*") {
		return func(*http.Request) bool { return true }
	}

	allowed := slices.Clone(s.AllowedOrigins)
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}
