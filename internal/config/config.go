// Package config loads server configuration from environment variables, with
// optional .env file support for local development.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/eduard256/wb-mcp-server/internal/browser"
	"github.com/eduard256/wb-mcp-server/internal/catalog"
)

// Transport names.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Config is the full server configuration.
type Config struct {
	Transport string
	Addr      string

	Browser browser.Config
	Catalog catalog.Config
}

// Default returns the configuration used when no environment overrides are
// present.
func Default() Config {
	return Config{
		Transport: TransportStdio,
		Addr:      ":8080",
		Browser:   browser.DefaultConfig(),
		Catalog:   catalog.DefaultConfig(),
	}
}

// Load reads configuration from the environment. A .env file in the working
// directory is honored when present; real environment variables win.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	cfg.Transport = envString("WB_MCP_TRANSPORT", cfg.Transport)
	cfg.Addr = envString("WB_MCP_ADDR", cfg.Addr)

	cfg.Browser.Headless = envBool("WB_MCP_HEADLESS", cfg.Browser.Headless)
	cfg.Browser.Bin = envString("WB_MCP_CHROME_BIN", cfg.Browser.Bin)
	cfg.Browser.NavigationTimeoutMs = envInt("WB_MCP_NAV_TIMEOUT_MS", cfg.Browser.NavigationTimeoutMs)
	cfg.Browser.WarmupSettleMs = envInt("WB_MCP_WARMUP_SETTLE_MS", cfg.Browser.WarmupSettleMs)

	cfg.Catalog.WaitTimeoutMs = envInt("WB_MCP_WAIT_TIMEOUT_MS", cfg.Catalog.WaitTimeoutMs)
	cfg.Catalog.SettleDelayMs = envInt("WB_MCP_SETTLE_DELAY_MS", cfg.Catalog.SettleDelayMs)
	cfg.Catalog.DefaultDest = envString("WB_MCP_DEFAULT_DEST", cfg.Catalog.DefaultDest)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the server cannot run with.
func (c Config) Validate() error {
	if c.Transport != TransportStdio && c.Transport != TransportHTTP {
		return fmt.Errorf("invalid transport %q: must be %q or %q", c.Transport, TransportStdio, TransportHTTP)
	}
	if c.Transport == TransportHTTP && c.Addr == "" {
		return fmt.Errorf("http transport requires a listen address")
	}
	if c.Catalog.WaitTimeoutMs < 0 || c.Catalog.SettleDelayMs < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	return nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return parsed
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return parsed
}
