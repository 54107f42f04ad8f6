package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/limeprotocol/limews"
	"github.com/limeprotocol/limews/internal/envelope"
	"github.com/limeprotocol/limews/internal/logging"
	"github.com/limeprotocol/limews/ws"
)

type dialOptions struct {
	wait time.Duration
}

func newDialCmd(global *globalOptions) *cobra.Command {
	opts := &dialOptions{}

	cmd := &cobra.Command{
		Use:   "dial <uri> [envelope-json...]",
		Short: "Send envelopes to a LIME endpoint",
		Long: `Open a transport to uri, send each envelope argument in order and print
every received envelope as a JSON line. The transport is closed once --wait
has elapsed or the peer closes the connection.`,
		Example: `  # Ping the local test server
  limews dial ws://localhost:8124 '{"content":"ping"}'

  # Negotiate a session
  limews dial wss://msging.net:443 '{"state":"new"}' --wait 5s`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDial(cmd, global, opts, args[0], args[1:])
		},
	}

	cmd.Flags().DurationVar(&opts.wait, "wait", 2*time.Second, "How long to wait for envelopes before closing")

	return cmd
}

func runDial(cmd *cobra.Command, global *globalOptions, opts *dialOptions, uri string, raw []string) error {
	cfg, err := global.load(cmd, "")
	if err != nil {
		return err
	}

	envelopes := make([]limews.Envelope, 0, len(raw))
	for _, arg := range raw {
		env, err := envelope.Decode([]byte(arg))
		if err != nil {
			return fmt.Errorf("invalid envelope %q: %w", arg, err)
		}
		envelopes = append(envelopes, env)
	}

	var (
		outMu  sync.Mutex
		opened atomic.Bool
		closed = make(chan struct{})
	)
	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()

	handler := limews.HandlerFuncs{
		Open: func() { opened.Store(true) },
		Envelope: func(env limews.Envelope) {
			data, err := envelope.Encode(env)
			if err != nil {
				return
			}
			outMu.Lock()
			fmt.Fprintln(out, string(data))
			outMu.Unlock()
		},
		Error: func(err error) {
			logging.Debug("Transport error", zap.Error(err))
			// Errors before the open hook are returned by Open itself
			if opened.Load() {
				outMu.Lock()
				fmt.Fprintf(errOut, "error: %v\n", err)
				outMu.Unlock()
			}
		},
		Close: func() { close(closed) },
	}

	ctx := cmd.Context()

	transport := ws.New(cfg.Transport.WebsocketConfig(handler))
	if err := transport.Open(ctx, uri); err != nil {
		return err
	}

	for _, env := range envelopes {
		if err := transport.Send(ctx, env); err != nil {
			_ = transport.Close(context.Background())
			return err
		}
	}

	timer := time.NewTimer(opts.wait)
	defer timer.Stop()

	select {
	case <-closed:
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}

	// The peer may close concurrently, in which case Close reports an invalid state
	if transport.State() == limews.StateOpen {
		if err := transport.Close(context.Background()); err != nil && !errors.Is(err, limews.ErrInvalidState) {
			return err
		}
	}
	<-closed
	return nil
}
