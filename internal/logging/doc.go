// Package logging provides structured logging for limews.
//
// It wraps a global zap logger with helpers for the events the transport and the test
// server emit. Logging is silent unless Initialize is called with a level or the
// LIMEWS_LOG_LEVEL environment variable is set:
//
//	if err := logging.Initialize("debug"); err != nil {
//	    return err
//	}
//	defer logging.Sync()
//
//	logging.LogConnection(sessionID, "ws://127.0.0.1:8124/", "open")
//
// Envelope contents are only logged at debug level.
package logging
