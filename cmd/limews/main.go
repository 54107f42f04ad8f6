// Limews runs a LIME test server or dials a LIME endpoint over WebSocket.
//
// Usage:
//
//	limews serve [flags]
//	limews dial <uri> [envelope-json...] [flags]
//
// See 'limews <command> --help' for available options.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/limeprotocol/limews/internal/config"
	"github.com/limeprotocol/limews/internal/logging"
	"github.com/limeprotocol/limews/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	logging.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalOptions are the flags shared by every command
type globalOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "limews",
		Short: "LIME over WebSocket",
		Long: `Tools for the LIME protocol over WebSocket.

'serve' runs a LIME test server that negotiates sessions and answers pings.
'dial' opens a transport to any LIME endpoint, sends envelopes and prints
what comes back as JSON lines.`,
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to a YAML configuration file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newDialCmd(opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// load reads the configuration file and sets up logging. fallbackLevel is used
// when neither the flag nor the file set a level.
func (o *globalOptions) load(cmd *cobra.Command, fallbackLevel string) (*config.File, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if cfg.LogLevel == "" && os.Getenv(logging.LogLevelEnvVar) == "" {
		cfg.LogLevel = fallbackLevel
	}

	if err := logging.Initialize(cfg.LogLevel); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "limews %s\n", version.String())
		},
	}
}
