package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, TransportStdio, cfg.Transport)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "-1257786", cfg.Catalog.DefaultDest)
	require.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("WB_MCP_TRANSPORT", "http")
	t.Setenv("WB_MCP_ADDR", ":9090")
	t.Setenv("WB_MCP_HEADLESS", "false")
	t.Setenv("WB_MCP_CHROME_BIN", "/usr/bin/chromium")
	t.Setenv("WB_MCP_NAV_TIMEOUT_MS", "15000")
	t.Setenv("WB_MCP_DEFAULT_DEST", "-446085")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, TransportHTTP, cfg.Transport)
	assert.Equal(t, ":9090", cfg.Addr)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, "/usr/bin/chromium", cfg.Browser.Bin)
	assert.Equal(t, 15000, cfg.Browser.NavigationTimeoutMs)
	assert.Equal(t, "-446085", cfg.Catalog.DefaultDest)
}

func TestLoad_MalformedValuesKeepDefaults(t *testing.T) {
	t.Setenv("WB_MCP_HEADLESS", "maybe")
	t.Setenv("WB_MCP_NAV_TIMEOUT_MS", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default().Browser.Headless, cfg.Browser.Headless)
	assert.Equal(t, Default().Browser.NavigationTimeoutMs, cfg.Browser.NavigationTimeoutMs)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Transport = "grpc"
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Transport = TransportHTTP
	cfg.Addr = ""
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Catalog.SettleDelayMs = -1
	require.Error(t, cfg.Validate())
}
