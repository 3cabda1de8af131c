// Command netra-mcp serves the Netra platform over the Model Context
// Protocol, on stdio or on HTTP with SSE and WebSocket.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/netra-systems/zen-sub153/config"
)

var globalFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "log-level",
		Aliases: []string{"l"},
		Usage:   "Override the log level. One of: debug, info, warn, error.",
	},
	&cli.StringFlag{
		Name:  "log-format",
		Usage: "Override the log format. One of: json, text.",
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "netra-mcp",
		Usage: "Netra MCP server",
		Flags: globalFlags,
		Commands: []*cli.Command{
			stdioCommand(),
			serveCommand(),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Transport == config.TransportHTTP {
				return runHTTP(ctx, cfg)
			}
			return runStdio(ctx, cfg)
		},
	}
}

func stdioCommand() *cli.Command {
	return &cli.Command{
		Name:  "stdio",
		Usage: "Serve newline-delimited JSON-RPC on stdin and stdout",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cfg.Transport = config.TransportStdio
			return runStdio(ctx, cfg)
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve HTTP, Server-Sent Events and WebSocket",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address, overriding NETRA_MCP_ADDR",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cfg.Transport = config.TransportHTTP
			if addr := cmd.String("addr"); addr != "" {
				cfg.Addr = addr
			}
			return runHTTP(ctx, cfg)
		},
	}
}

// loadConfig reads the environment and applies global flag overrides.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if lvl := cmd.String("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	if f := cmd.String("log-format"); f != "" {
		cfg.LogFormat = f
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
