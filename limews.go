package limews

import "context"

// Subprotocol is the WebSocket subprotocol token offered for LIME connections.
const Subprotocol = "lime"

// Envelope is one LIME protocol message (session, message, command or notification).
//
// The transport does not interpret envelope contents. Each envelope travels as a single
// UTF-8 JSON text frame, so values must be JSON-compatible. Numbers received from the
// peer decode as float64.
type Envelope = map[string]any

// State is the lifecycle state of a Transport.
type State int32

const (
	StateClosed State = iota
	StateOpening
	StateOpen
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// Compression is a LIME session compression mode.
type Compression string

// Encryption is a LIME session encryption mode.
type Encryption string

const (
	CompressionNone Compression = "none"

	EncryptionNone Encryption = "none"
	EncryptionTLS  Encryption = "tls"
)

// Handler receives the lifecycle and envelope events of a Transport.
//
// Embed NopHandler to override only the hooks you need:
//
//	type printer struct {
//	    limews.NopHandler
//	}
//
//	func (printer) OnEnvelope(env limews.Envelope) {
//	    fmt.Println(env)
//	}
//
// Session events (OnOpen, OnEnvelope, asynchronous OnError and OnClose) are delivered
// in order on a dedicated goroutine per open connection. Errors caused by a synchronous
// call (a state guard violation or a failed handshake) are delivered on the caller's
// goroutine before the call returns. Hooks may call Send and Close.
type Handler interface {
	// OnOpen is called once the handshake completed and the connection is open.
	OnOpen()

	// OnClose is called exactly once per open connection, after it reached StateClosed,
	// whether the close was local or initiated by the peer.
	OnClose()

	// OnError reports failures. Use errors.Is with ErrInvalidState, ErrConnection or
	// ErrProtocol to classify them.
	OnError(err error)

	// OnEnvelope is called for every envelope received, in arrival order.
	OnEnvelope(env Envelope)
}

// NopHandler implements Handler with no-op hooks.
type NopHandler struct{}

func (NopHandler) OnOpen()             {}
func (NopHandler) OnClose()            {}
func (NopHandler) OnError(error)       {}
func (NopHandler) OnEnvelope(Envelope) {}

// HandlerFuncs adapts plain functions to the Handler interface. Nil fields are ignored.
type HandlerFuncs struct {
	Open     func()
	Close    func()
	Error    func(err error)
	Envelope func(env Envelope)
}

func (h HandlerFuncs) OnOpen() {
	if h.Open != nil {
		h.Open()
	}
}

func (h HandlerFuncs) OnClose() {
	if h.Close != nil {
		h.Close()
	}
}

func (h HandlerFuncs) OnError(err error) {
	if h.Error != nil {
		h.Error(err)
	}
}

func (h HandlerFuncs) OnEnvelope(env Envelope) {
	if h.Envelope != nil {
		h.Envelope(env)
	}
}

// Transport carries LIME envelopes over a WebSocket connection.
//
// A Transport can be opened again after it was closed, possibly against a different URI.
//
// Example usage:
//
//	import "github.com/limeprotocol/limews/ws"
//
//	transport := ws.New(ws.NewConfig(handler))
//	if err := transport.Open(ctx, "wss://msging.net:443"); err != nil {
//	    return err
//	}
//	defer transport.Close(ctx)
//
//	transport.Send(ctx, limews.Envelope{"id": "1", "state": "new"})
type Transport interface {
	// Open connects to uri and performs the WebSocket handshake, offering the LIME
	// subprotocol. It blocks until the handshake completes or fails.
	//
	// Returns an error wrapping ErrInvalidState if the transport is not closed, or
	// ErrConnection if the handshake fails.
	Open(ctx context.Context, uri string) error

	// Close sends a close frame after any pending envelopes, waits for the peer to
	// acknowledge it and releases the connection.
	//
	// Returns an error wrapping ErrInvalidState if the transport is not open.
	Close(ctx context.Context) error

	// Send encodes env and queues it for delivery. It does not wait for the peer; it
	// only blocks while the outbound queue is full. Envelopes are written in call order.
	//
	// Returns an error wrapping ErrInvalidState if the transport is not open.
	Send(ctx context.Context, env Envelope) error

	// State returns the current lifecycle state.
	State() State

	// Compression returns the session compression mode, always CompressionNone.
	Compression() Compression

	// Encryption returns the encryption mode negotiated from the URI scheme of the
	// last Open call.
	Encryption() Encryption

	// SupportedCompression returns the compression modes this transport can use.
	SupportedCompression() []Compression

	// SupportedEncryption returns the encryption modes this transport can report.
	SupportedEncryption() []Encryption

	// SetCompression is accepted for protocol compatibility and has no effect.
	SetCompression(c Compression)

	// SetEncryption is accepted for protocol compatibility and has no effect.
	SetEncryption(e Encryption)
}

// Server is a LIME peer for tests and local development. It answers a fixed set of
// envelopes (session negotiation, ping command, ping message, ping notification) and
// can broadcast envelopes to every connected client.
type Server interface {
	// Start starts listening and returns once the listener is bound.
	//
	// Returns an error if the server is already running or the address is unavailable.
	Start(ctx context.Context) error

	// Stop closes all client connections and shuts the server down.
	Stop(ctx context.Context) error

	// Addr returns the bound listener address, or the configured address before Start.
	Addr() string

	// Broadcast sends env to every connected client.
	Broadcast(ctx context.Context, env Envelope) error

	// SendTo sends env to the client with the given id.
	SendTo(ctx context.Context, clientID string, env Envelope) error

	// ClientCount returns the number of connected clients.
	ClientCount() int
}
