package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tailored-agentic-units/switchboard/backend"
)

type rootOptions struct {
	configFile string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:          "switchboard",
		Short:        "Multi-session streaming chat backend",
		Long:         "switchboard routes chat commands to per-session workers and streams model output back to clients over WebSocket and Connect RPC.",
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "path to a JSON, YAML or TOML config file")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error (overrides config)")

	rootCmd.AddCommand(
		newServeCmd(opts),
		newChatCmd(opts),
		newSendCmd(),
		newSessionsCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

// load reads the configuration and builds the stderr logger it names.
func (o *rootOptions) load(stderr io.Writer) (*backend.Config, *slog.Logger, error) {
	cfg, err := backend.LoadConfig(o.configFile)
	if err != nil {
		return nil, nil, err
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}

	logger, err := newLogger(stderr, cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l})), nil
}

// defaultServer is the HTTP base URL of a locally running serve command.
func defaultServer() string {
	return "http://" + backend.DefaultConfig().Listen
}
