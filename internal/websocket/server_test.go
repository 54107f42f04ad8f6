package websocket

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/limeprotocol/limews"
)

// TestDefaultRateLimitConfig tests the default rate limit configuration
func TestDefaultRateLimitConfig(t *testing.T) {
	t.Parallel()

	config := DefaultRateLimitConfig()
	require.NotNil(t, config)

	assert.True(t, config.Enabled)
	assert.Equal(t, rate.Limit(100), config.MessagesPerSecond)
	assert.Equal(t, 200, config.Burst)
}

// TestNoRateLimit tests the no rate limit configuration
func TestNoRateLimit(t *testing.T) {
	t.Parallel()

	config := NoRateLimit()
	require.NotNil(t, config)
	assert.False(t, config.Enabled)
}

// TestNewServer tests server creation with various configurations
func TestNewServer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name             string
		config           *ServerConfig
		wantPath         string
		wantSubprotocols []string
		wantRateLimit    *RateLimitConfig
		wantTimeouts     Timeouts
	}{
		{
			name:             "nil config",
			config:           nil,
			wantPath:         "/",
			wantSubprotocols: []string{limews.Subprotocol},
			wantRateLimit:    DefaultRateLimitConfig(),
			wantTimeouts:     DefaultTimeouts(),
		},
		{
			name:             "custom path",
			config:           &ServerConfig{Addr: ":8124", Path: "/lime"},
			wantPath:         "/lime",
			wantSubprotocols: []string{limews.Subprotocol},
			wantRateLimit:    DefaultRateLimitConfig(),
			wantTimeouts:     DefaultTimeouts(),
		},
		{
			name:             "custom timeouts",
			config:           &ServerConfig{Timeouts: Timeouts{WriteWait: time.Second, PongWait: 4 * time.Second}},
			wantPath:         "/",
			wantSubprotocols: []string{limews.Subprotocol},
			wantRateLimit:    DefaultRateLimitConfig(),
			wantTimeouts:     Timeouts{WriteWait: time.Second, PongWait: 4 * time.Second, PingPeriod: 3600 * time.Millisecond},
		},
		{
			name: "custom subprotocols without rate limit",
			config: &ServerConfig{
				Subprotocols:    []string{"lime", "lime-v2"},
				RateLimitConfig: NoRateLimit(),
			},
			wantPath:         "/",
			wantSubprotocols: []string{"lime", "lime-v2"},
			wantRateLimit:    NoRateLimit(),
			wantTimeouts:     DefaultTimeouts(),
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := NewServer(tt.config)
			require.NotNil(t, srv)

			assert.Equal(t, tt.wantPath, srv.path)
			assert.Equal(t, tt.wantSubprotocols, srv.upgrader.Subprotocols)
			assert.Equal(t, tt.wantRateLimit, srv.rateLimitConfig)
			assert.Equal(t, tt.wantTimeouts, srv.timeouts)
			assert.Equal(t, 1024, srv.upgrader.ReadBufferSize)
			assert.Equal(t, 1024, srv.upgrader.WriteBufferSize)
			assert.NotNil(t, srv.responder)
			assert.False(t, srv.running)
			assert.Zero(t, srv.ClientCount())
		})
	}
}

func TestServerStartStop(t *testing.T) {
	t.Parallel()

	srv := NewServer(&ServerConfig{Addr: "127.0.0.1:0", Path: "/lime"})
	assert.Equal(t, "127.0.0.1:0", srv.Addr())

	// Stopping a server that never started is a no-op
	require.NoError(t, srv.Stop(context.Background()))

	require.NoError(t, srv.Start(context.Background()))
	assert.NotEqual(t, "127.0.0.1:0", srv.Addr())
	assert.Equal(t, "ws://"+srv.Addr()+"/lime", srv.URL())

	err := srv.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), limews.ErrMsgServerRunning)

	require.NoError(t, srv.Stop(context.Background()))
	require.NoError(t, srv.Stop(context.Background()))
}

func TestServerStartAddressInUse(t *testing.T) {
	t.Parallel()

	first := startServer(t, nil)

	second := NewServer(&ServerConfig{Addr: first.Addr()})
	assert.Error(t, second.Start(context.Background()))
}

func TestServerCheckOrigin(t *testing.T) {
	t.Parallel()

	srv := startServer(t, &ServerConfig{
		CheckOrigin: func(r *http.Request) bool {
			return r.Header.Get("Origin") == "http://allowed.example"
		},
	})

	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(srv.URL(), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "http://allowed.example")
	conn, _, err := websocket.DefaultDialer.Dial(srv.URL(), header)
	require.NoError(t, err)
	conn.Close()
}

func TestServerRateLimitExceeded(t *testing.T) {
	t.Parallel()

	srv := startServer(t, &ServerConfig{
		RateLimitConfig: &RateLimitConfig{MessagesPerSecond: 1, Burst: 2, Enabled: true},
	})

	conn, _, err := websocket.DefaultDialer.Dial(srv.URL(), nil)
	require.NoError(t, err)
	defer conn.Close()

	// The third envelope exceeds the burst
	for i := 0; i < 3; i++ {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"received"}`)))
	}

	_ = conn.SetReadDeadline(time.Now().Add(waitFor))
	_, _, err = conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
	assert.Equal(t, limews.ErrMsgRateLimitExceeded, closeErr.Text)
}

func TestServerDropsSilentClient(t *testing.T) {
	t.Parallel()

	disconnected := make(chan bool, 1)
	srv := startServer(t, &ServerConfig{
		Timeouts: Timeouts{PongWait: 300 * time.Millisecond, PingPeriod: 100 * time.Millisecond},
		OnClientDisconnect: func(_ *Client, voluntary bool) {
			disconnected <- voluntary
		},
	})

	// A peer that never reads never answers pings, so the read deadline expires
	conn, _, err := websocket.DefaultDialer.Dial(srv.URL(), nil)
	require.NoError(t, err)
	defer conn.Close()

	select {
	case voluntary := <-disconnected:
		assert.False(t, voluntary)
	case <-time.After(waitFor):
		t.Fatal("silent client was not dropped")
	}
	assert.Eventually(t, func() bool { return srv.ClientCount() == 0 }, waitFor, tick)
}

func TestServerRejectsMalformedEnvelope(t *testing.T) {
	t.Parallel()

	srv := startServer(t, nil)

	conn, _, err := websocket.DefaultDialer.Dial(srv.URL(), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not an envelope")))

	_ = conn.SetReadDeadline(time.Now().Add(waitFor))
	_, _, err = conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.CloseProtocolError, closeErr.Code)
}

func TestServerClientDisconnect(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	disconnects := map[string]bool{}

	srv := startServer(t, &ServerConfig{
		OnClientDisconnect: func(client *Client, voluntary bool) {
			mu.Lock()
			defer mu.Unlock()
			disconnects[client.ID()] = voluntary
		},
	})

	tr := newTransport(t, &recorder{})
	require.NoError(t, tr.Open(context.Background(), srv.URL()))
	assert.Eventually(t, func() bool { return srv.ClientCount() == 1 }, waitFor, tick)

	require.NoError(t, tr.Close(context.Background()))
	assert.Eventually(t, func() bool { return srv.ClientCount() == 0 }, waitFor, tick)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(disconnects) == 1
	}, waitFor, tick)

	mu.Lock()
	for _, voluntary := range disconnects {
		assert.True(t, voluntary)
	}
	mu.Unlock()
}

func TestServerStopClosesClients(t *testing.T) {
	t.Parallel()

	voluntary := make(chan bool, 1)
	srv := NewServer(&ServerConfig{
		Addr: "127.0.0.1:0",
		OnClientDisconnect: func(_ *Client, v bool) {
			voluntary <- v
		},
	})
	require.NoError(t, srv.Start(context.Background()))

	rec := &recorder{}
	tr := newTransport(t, rec)
	require.NoError(t, tr.Open(context.Background(), srv.URL()))
	assert.Eventually(t, func() bool { return srv.ClientCount() == 1 }, waitFor, tick)

	require.NoError(t, srv.Stop(context.Background()))

	select {
	case v := <-voluntary:
		assert.False(t, v)
	case <-time.After(waitFor):
		t.Fatal("OnClientDisconnect was not called")
	}

	// Going away is a regular closure for the transport
	assert.Eventually(t, func() bool { return tr.State() == limews.StateClosed }, waitFor, tick)
	assert.Eventually(t, func() bool {
		calls := rec.Calls()
		return len(calls) > 0 && calls[len(calls)-1] == "close"
	}, waitFor, tick)
	assert.Empty(t, rec.Errors())
}

func TestServerSendTo(t *testing.T) {
	t.Parallel()

	connected := make(chan *Client, 1)
	srv := startServer(t, &ServerConfig{
		OnConnect: func(client *Client) { connected <- client },
	})

	err := srv.SendTo(context.Background(), "missing", limews.Envelope{"event": "pong"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), limews.ErrMsgClientNotFound)

	rec := &recorder{}
	tr := newTransport(t, rec)
	require.NoError(t, tr.Open(context.Background(), srv.URL()))

	client := <-connected
	got, ok := srv.GetClient(client.ID())
	require.True(t, ok)
	assert.Same(t, client, got)

	env := limews.Envelope{"id": "42", "event": "consumed"}
	require.NoError(t, srv.SendTo(context.Background(), client.ID(), env))

	assert.Eventually(t, func() bool { return len(rec.Envelopes()) == 1 }, waitFor, tick)
	assert.Equal(t, env, rec.Envelopes()[0])
}

func TestServerBroadcastInvalidEnvelope(t *testing.T) {
	t.Parallel()

	srv := NewServer(nil)
	err := srv.Broadcast(context.Background(), nil)
	assert.ErrorIs(t, err, limews.ErrProtocol)

	// No clients, nothing to do
	assert.NoError(t, srv.Broadcast(context.Background(), limews.Envelope{"event": "pong"}))
}

func TestServerSessionNegotiation(t *testing.T) {
	t.Parallel()

	srv := startServer(t, nil)
	rec := &recorder{}
	tr := newTransport(t, rec)
	require.NoError(t, tr.Open(context.Background(), srv.URL()))

	require.NoError(t, tr.Send(context.Background(), limews.Envelope{"state": "new"}))
	require.NoError(t, tr.Send(context.Background(), limews.Envelope{"state": "authenticating"}))
	require.NoError(t, tr.Send(context.Background(), limews.Envelope{"id": "p1", "method": "get", "uri": "/ping"}))

	assert.Eventually(t, func() bool { return len(rec.Envelopes()) == 3 }, waitFor, tick)

	envelopes := rec.Envelopes()
	assert.Equal(t, limews.Envelope{"id": "0", "from": srv.Addr(), "state": "authenticating"}, envelopes[0])
	assert.Equal(t, limews.Envelope{"id": "0", "from": srv.Addr(), "state": "established"}, envelopes[1])
	assert.Equal(t, limews.Envelope{"id": "p1", "method": "get", "status": "success"}, envelopes[2])
}

// BenchmarkNewServer benchmarks server creation
func BenchmarkNewServer(b *testing.B) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = NewServer(&ServerConfig{Addr: ":8124"})
	}
}

func BenchmarkBroadcast(b *testing.B) {
	srv := NewServer(&ServerConfig{Addr: "127.0.0.1:0", RateLimitConfig: NoRateLimit()})
	if err := srv.Start(context.Background()); err != nil {
		b.Fatal(err)
	}
	defer srv.Stop(context.Background())

	for i := 0; i < 10; i++ {
		conn, _, err := websocket.DefaultDialer.Dial(srv.URL(), nil)
		if err != nil {
			b.Fatal(err)
		}
		defer conn.Close()
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}

	env := limews.Envelope{"event": "pong"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := srv.Broadcast(context.Background(), env); err != nil {
			b.Fatal(err)
		}
	}
}
