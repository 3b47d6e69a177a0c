package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eduard256/wb-mcp-server/internal/browser"
	"github.com/eduard256/wb-mcp-server/internal/catalog"
	"github.com/eduard256/wb-mcp-server/internal/config"
	"github.com/eduard256/wb-mcp-server/internal/mcp"
)

const version = "1.0.0"

var (
	verbose   bool
	transport string
	addr      string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "wb-mcp-server",
	Short: "MCP server exposing Wildberries catalog data through a real browser session",
	Long: `wb-mcp-server renders Wildberries pages through a headless Chromium
session, extracts structured catalog records, reconciles prices through the
card descriptor endpoint, and exposes the result as MCP tools over stdio or
HTTP.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		// stdout carries the stdio transport; logs go to stderr only.
		zcfg.OutputPaths = []string{"stderr"}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if transport != "" {
		cfg.Transport = transport
	}
	if addr != "" {
		cfg.Addr = addr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	session := browser.NewSession(cfg.Browser, logger.Named("browser"))
	client := catalog.NewClient(cfg.Catalog, session, logger.Named("catalog"))
	registry := mcp.NewRegistry(client, logger.Named("tools"))
	server := mcp.NewServer("wb-mcp-server", version, registry, logger.Named("mcp"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The browser must be released before the process exits.
	defer func() {
		if err := client.Teardown(); err != nil {
			logger.Warn("browser teardown failed", zap.Error(err))
		}
	}()

	logger.Info("starting", zap.String("transport", cfg.Transport), zap.String("version", version))
	switch cfg.Transport {
	case config.TransportHTTP:
		return server.ServeContext(ctx, cfg.Addr)
	default:
		return server.ServeStdio(ctx, os.Stdin, os.Stdout)
	}
}

func main() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.Flags().StringVarP(&transport, "transport", "t", "", "transport: stdio or http (default from env, stdio)")
	rootCmd.Flags().StringVarP(&addr, "addr", "a", "", "listen address for the http transport")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
