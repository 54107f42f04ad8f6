// Package limews provides a WebSocket transport for LIME envelopes.
//
// LIME is a JSON based protocol for messaging. Every unit exchanged between two nodes is
// an envelope: a JSON object carried in a single text frame. limews owns the connection
// lifecycle, turns inbound frames into envelopes and hands them to a Handler, and writes
// outbound envelopes in the order they were sent.
//
// # Architecture
//
// The root package only declares the contracts: Envelope, State, Handler, Transport and
// Server, plus the error sentinels. The implementation lives behind the ws package:
//
//	ws.New(cfg)        // client transport
//	ws.NewServer(cfg)  // LIME peer for tests and local development
//
// Each open/close cycle of a transport owns one connection, one reader, one writer and one
// event goroutine. The event goroutine is the only caller of Handler methods, so hooks are
// never invoked concurrently and may call back into the transport.
//
// # Quick Start
//
//	import (
//	    "github.com/limeprotocol/limews"
//	    "github.com/limeprotocol/limews/ws"
//	)
//
//	transport := ws.New(ws.NewConfig(limews.HandlerFuncs{
//	    Open:     func() { log.Println("connected") },
//	    Envelope: func(env limews.Envelope) { log.Printf("received %v", env) },
//	    Error:    func(err error) { log.Printf("transport error: %v", err) },
//	    Close:    func() { log.Println("closed") },
//	}))
//
//	if err := transport.Open(ctx, "wss://msging.net:443"); err != nil {
//	    return err
//	}
//	defer transport.Close(ctx)
//
//	transport.Send(ctx, limews.Envelope{"id": "1", "state": "new"})
//
// # Lifecycle
//
//	Closed --Open--> Opening --handshake--> Open --Close/peer close--> Closing --> Closed
//
// Open on a transport that is not closed, Close on a transport that is not open and Send on
// a transport that is not open fail with ErrInvalidState. The error is both returned and
// passed to OnError. A failed handshake leaves the transport closed, so Open may be retried.
//
// Close queues the close frame behind every envelope already accepted by Send and waits for
// the peer to acknowledge it, at most Config.CloseTimeout. The transport is closed when Close
// returns, whatever the outcome.
//
// # Errors
//
//	ErrInvalidState  // operation not allowed in the current state
//	ErrConnection    // handshake failure, abnormal closure, write failure
//	ErrProtocol      // frame that is not a JSON object, binary frame, unencodable envelope
//
// Errors are wrapped, match them with errors.Is.
//
// # Encryption and Compression
//
// Compression is always "none". Encryption is "tls" for wss:// URIs and "none" otherwise; it is
// decided by the URI scheme on every Open and cannot be changed afterwards.
//
// # Test Server
//
//	server := ws.NewServer(ws.NewServerConfig(":8124", ws.DefaultRateLimitConfig(), ws.AllOrigins(), nil, nil))
//	server.Start(ctx)
//	defer server.Stop(ctx)
//
// The server negotiates the "lime" subprotocol, answers session negotiation and pings, and
// can broadcast envelopes to every connected client. Each client is rate limited with a token
// bucket; a client exceeding it is closed with code 1008 (Policy Violation).
//
// # Important
//
//   - Handler methods run on the event goroutine; a slow handler delays later hooks, not the socket
//   - OnClose for a local Close may be delivered shortly after Close returns
//   - Envelopes passed to OnEnvelope belong to the handler
//   - Configure CheckOriginFn in production (never use ws.AllOrigins() in production)
package limews
