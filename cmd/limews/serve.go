package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/limeprotocol/limews/internal/logging"
	"github.com/limeprotocol/limews/ws"
)

const shutdownTimeout = 5 * time.Second

type serveOptions struct {
	addr        string
	path        string
	rateLimit   bool
	noRateLimit bool
}

func newServeCmd(global *globalOptions) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the LIME test server",
		Long: `Run a LIME test server until interrupted.

The server accepts the "lime" subprotocol and answers:
  - session "new" and "authenticating" envelopes
  - "get" commands to /ping
  - "ping" messages and notifications`,
		Example: `  # Listen on the default port
  limews serve

  # Custom address and path, without rate limiting
  limews serve --addr 127.0.0.1:9000 --path /lime --no-rate-limit

  # Settings from a file, verbose logs
  limews serve --config limews.yaml --log-level debug`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, global, opts)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", ":8124", "Listen address")
	cmd.Flags().StringVar(&opts.path, "path", "/", "WebSocket endpoint path")
	cmd.Flags().BoolVar(&opts.rateLimit, "rate-limit", true, "Rate limit envelopes per client")
	cmd.Flags().BoolVar(&opts.noRateLimit, "no-rate-limit", false, "Disable rate limiting")
	cmd.MarkFlagsMutuallyExclusive("rate-limit", "no-rate-limit")

	return cmd
}

func runServe(cmd *cobra.Command, global *globalOptions, opts *serveOptions) error {
	cfg, err := global.load(cmd, "info")
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.Server.Addr = opts.addr
	}
	if flags.Changed("path") {
		cfg.Server.Path = opts.path
	}
	if flags.Changed("rate-limit") {
		cfg.Server.RateLimit.Enabled = opts.rateLimit
	}
	if opts.noRateLimit {
		cfg.Server.RateLimit.Enabled = false
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx := cmd.Context()

	server := ws.NewServer(cfg.Server.WebsocketConfig())
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "LIME test server listening on %s\n", server.URL())

	<-ctx.Done()

	logging.Info("Shutting down", zap.Int("clients", server.ClientCount()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}
	return nil
}
