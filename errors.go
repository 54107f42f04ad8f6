package limews

import "errors"

// Error classes. Every error returned or reported by a Transport wraps one of these.
var (
	// ErrInvalidState means an operation was attempted in a state that forbids it.
	ErrInvalidState = errors.New("invalid state")

	// ErrConnection means the handshake or the socket failed.
	ErrConnection = errors.New("connection error")

	// ErrProtocol means an inbound frame is not a well-formed envelope.
	ErrProtocol = errors.New("protocol error")
)

// Standard error messages
const (
	// State errors
	ErrMsgAlreadyOpen  = "cannot open an already open connection"
	ErrMsgNotOpen      = "cannot close a non-open connection"
	ErrMsgDisconnected = "cannot send a message while disconnected"

	// Protocol errors
	ErrMsgInvalidEnvelope = "invalid envelope"
	ErrMsgBinaryFrame     = "unexpected binary frame"
	ErrMsgFailedToEncode  = "failed to encode envelope"

	// Connection errors
	ErrMsgHandshakeFailed   = "websocket handshake failed"
	ErrMsgWriteFailed       = "failed to write frame"
	ErrMsgAbnormalClosure   = "connection closed abnormally"
	ErrMsgCloseFailed       = "close handshake did not complete"
	ErrMsgClientNotFound    = "client not found"
	ErrMsgConnectionClosed  = "client connection is closed"
	ErrMsgContextCancelled  = "client context cancelled"
	ErrMsgServerRunning     = "server already running"
	ErrMsgRateLimitExceeded = "Rate limit exceeded"
)
