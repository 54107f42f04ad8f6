package websocket

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/limeprotocol/limews"
)

// connectClient starts a server, dials it and returns the server-side client
func connectClient(t *testing.T, cfg *ServerConfig) (*Client, *websocket.Conn) {
	t.Helper()

	if cfg == nil {
		cfg = &ServerConfig{}
	}
	connected := make(chan *Client, 1)
	cfg.OnConnect = func(client *Client) { connected <- client }

	srv := startServer(t, cfg)

	dialer := websocket.Dialer{Subprotocols: []string{limews.Subprotocol}}
	conn, _, err := dialer.Dial(srv.URL(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	select {
	case client := <-connected:
		return client, conn
	case <-time.After(waitFor):
		t.Fatal("client was not registered")
		return nil, nil
	}
}

func TestClientIdentity(t *testing.T) {
	t.Parallel()

	client, conn := connectClient(t, nil)

	_, err := uuid.Parse(client.ID())
	assert.NoError(t, err)
	assert.Equal(t, conn.LocalAddr().String(), client.RemoteAddr())
	assert.Equal(t, limews.Subprotocol, client.Subprotocol())
	assert.True(t, client.IsAlive())
	assert.NoError(t, client.Context().Err())
}

func TestClientSend(t *testing.T) {
	t.Parallel()

	client, conn := connectClient(t, nil)

	require.NoError(t, client.Send(context.Background(), limews.Envelope{"event": "pong"}))

	_ = conn.SetReadDeadline(time.Now().Add(waitFor))
	messageType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, messageType)
	assert.JSONEq(t, `{"event":"pong"}`, string(data))
}

func TestClientSendInvalidEnvelope(t *testing.T) {
	t.Parallel()

	client, _ := connectClient(t, nil)

	err := client.Send(context.Background(), nil)
	assert.ErrorIs(t, err, limews.ErrProtocol)
}

func TestClientCloseWithCode(t *testing.T) {
	t.Parallel()

	client, conn := connectClient(t, nil)

	require.NoError(t, client.CloseWithCode(context.Background(), websocket.CloseGoingAway, "bye"))
	assert.False(t, client.IsAlive())
	assert.Error(t, client.Context().Err())

	_ = conn.SetReadDeadline(time.Now().Add(waitFor))
	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.CloseGoingAway, closeErr.Code)
	assert.Equal(t, "bye", closeErr.Text)

	// Closing again is a no-op
	assert.NoError(t, client.Close(context.Background()))

	err = client.Send(context.Background(), limews.Envelope{"event": "pong"})
	assert.ErrorIs(t, err, limews.ErrConnection)
}

func TestClientRateLimit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		config  *RateLimitConfig
		allowed int
	}{
		{
			name:    "nil config",
			config:  nil,
			allowed: 50,
		},
		{
			name:    "disabled",
			config:  NoRateLimit(),
			allowed: 50,
		},
		{
			name: "burst of five",
			config: &RateLimitConfig{
				MessagesPerSecond: 1,
				Burst:             5,
				Enabled:           true,
			},
			allowed: 5,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// A nil config falls back to DefaultRateLimitConfig, whose burst exceeds 50
			client, _ := connectClient(t, &ServerConfig{RateLimitConfig: tt.config})

			allowed := 0
			for i := 0; i < 50; i++ {
				if client.CheckRateLimit() {
					allowed++
				}
			}
			assert.Equal(t, tt.allowed, allowed)
		})
	}
}

func BenchmarkClientSend(b *testing.B) {
	srv := NewServer(&ServerConfig{Addr: "127.0.0.1:0", RateLimitConfig: NoRateLimit()})
	connected := make(chan *Client, 1)
	srv.onConnect = func(client *Client) { connected <- client }
	if err := srv.Start(context.Background()); err != nil {
		b.Fatal(err)
	}
	defer srv.Stop(context.Background())

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

	client := <-connected
	env := limews.Envelope{"id": "1", "type": "text/plain", "content": "hello"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := client.Send(context.Background(), env); err != nil {
			b.Fatal(err)
		}
	}
}
