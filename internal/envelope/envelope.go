package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/limeprotocol/limews"
)

// MaxEnvelopeSize is the largest encoded envelope accepted in either direction.
const MaxEnvelopeSize = 10 * 1024 * 1024 // 10MB

// LIME values the test server recognizes.
const (
	SessionStateNew            = "new"
	SessionStateAuthenticating = "authenticating"
	SessionStateEstablished    = "established"

	URIPing = "/ping"

	MethodGet     = "get"
	StatusSuccess = "success"
)

// Kind classifies an envelope by its distinguishing field.
type Kind int

const (
	KindUnknown Kind = iota
	KindSession
	KindCommand
	KindMessage
	KindNotification
)

func (k Kind) String() string {
	switch k {
	case KindSession:
		return "session"
	case KindCommand:
		return "command"
	case KindMessage:
		return "message"
	case KindNotification:
		return "notification"
	default:
		return "unknown"
	}
}

// KindOf returns the kind of env. Sessions carry "state", commands "method",
// messages "content" and notifications "event"; the first match in that order wins.
func KindOf(env limews.Envelope) Kind {
	switch {
	case has(env, "state"):
		return KindSession
	case has(env, "method"):
		return KindCommand
	case has(env, "content"):
		return KindMessage
	case has(env, "event"):
		return KindNotification
	default:
		return KindUnknown
	}
}

func has(env limews.Envelope, key string) bool {
	_, ok := env[key]
	return ok
}

// Encode returns the JSON text frame for env.
func Encode(env limews.Envelope) ([]byte, error) {
	if env == nil {
		return nil, fmt.Errorf("%w: %s: nil envelope", limews.ErrProtocol, limews.ErrMsgFailedToEncode)
	}

	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", limews.ErrProtocol, limews.ErrMsgFailedToEncode, err)
	}

	if len(data) > MaxEnvelopeSize {
		return nil, fmt.Errorf("%w: envelope size %d exceeds maximum %d bytes", limews.ErrProtocol, len(data), MaxEnvelopeSize)
	}
	return data, nil
}

// Decode parses a text frame into an envelope. The frame must hold a single JSON object.
func Decode(data []byte) (limews.Envelope, error) {
	if len(data) > MaxEnvelopeSize {
		return nil, fmt.Errorf("%w: envelope size %d exceeds maximum %d bytes", limews.ErrProtocol, len(data), MaxEnvelopeSize)
	}

	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: %s: frame is not valid UTF-8", limews.ErrProtocol, limews.ErrMsgInvalidEnvelope)
	}

	var env limews.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", limews.ErrProtocol, limews.ErrMsgInvalidEnvelope, err)
	}

	// "null" unmarshals into a nil map without error
	if env == nil {
		return nil, fmt.Errorf("%w: %s: %w", limews.ErrProtocol, limews.ErrMsgInvalidEnvelope, errNotObject)
	}
	return env, nil
}

var errNotObject = errors.New("frame is not a JSON object")
