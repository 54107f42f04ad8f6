package websocket

import (
	"github.com/limeprotocol/limews"
	"github.com/limeprotocol/limews/internal/envelope"
)

// LimeResponder answers the envelopes a LIME client exchanges when it connects and pings:
//
//   - session "new" → session "authenticating"
//   - session "authenticating" → session "established"
//   - command to "/ping" → successful "get" response with the same id
//   - message with content "ping" → text/plain message "pong"
//   - notification with event "ping" → notification "pong"
//
// from is reported as the origin of session envelopes.
func LimeResponder(from string, env limews.Envelope) (limews.Envelope, bool) {
	switch envelope.KindOf(env) {
	case envelope.KindSession:
		switch env["state"] {
		case envelope.SessionStateNew:
			return limews.Envelope{"id": "0", "from": from, "state": envelope.SessionStateAuthenticating}, true
		case envelope.SessionStateAuthenticating:
			return limews.Envelope{"id": "0", "from": from, "state": envelope.SessionStateEstablished}, true
		}

	case envelope.KindCommand:
		if env["uri"] == envelope.URIPing {
			return limews.Envelope{"id": env["id"], "method": envelope.MethodGet, "status": envelope.StatusSuccess}, true
		}

	case envelope.KindMessage:
		if env["content"] == "ping" {
			return limews.Envelope{"type": "text/plain", "content": "pong"}, true
		}

	case envelope.KindNotification:
		if env["event"] == "ping" {
			return limews.Envelope{"event": "pong"}, true
		}
	}

	return nil, false
}
