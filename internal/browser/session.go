// Package browser owns the single automated Chromium instance and the
// persistent page every catalog extraction runs against. The page carries the
// anti-bot cookies established during warm-up, so it must never be recreated
// per request.
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// Config holds browser configuration.
type Config struct {
	Bin                 string `json:"bin"`
	Headless            bool   `json:"headless"`
	UserAgent           string `json:"user_agent"`
	AcceptLanguage      string `json:"accept_language"`
	Locale              string `json:"locale"`
	Timezone            string `json:"timezone"`
	ViewportWidth       int    `json:"viewport_width"`
	ViewportHeight      int    `json:"viewport_height"`
	NavigationTimeoutMs int    `json:"navigation_timeout_ms"`
	WarmupURL           string `json:"warmup_url"`
	WarmupSettleMs      int    `json:"warmup_settle_ms"`
}

// DefaultConfig returns sensible defaults tuned for the target site.
func DefaultConfig() Config {
	return Config{
		Headless:            true,
		UserAgent:           "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		AcceptLanguage:      "ru-RU,ru;q=0.9,en-US;q=0.8,en;q=0.7",
		Locale:              "ru-RU",
		Timezone:            "Europe/Moscow",
		ViewportWidth:       1920,
		ViewportHeight:      1080,
		NavigationTimeoutMs: 30000,
		WarmupURL:           "https://www.wildberries.ru/",
		WarmupSettleMs:      3000,
	}
}

// NavigationTimeout returns the navigation timeout.
func (c Config) NavigationTimeout() time.Duration {
	if c.NavigationTimeoutMs == 0 {
		return 30 * time.Second
	}
	return time.Duration(c.NavigationTimeoutMs) * time.Millisecond
}

// stealthScript hides the automation signal from page-level introspection
// before any site script runs.
const stealthScript = `() => {
	Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
	Object.defineProperty(navigator, 'languages', { get: () => ['ru-RU', 'ru', 'en-US', 'en'] });
	Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5] });
	window.chrome = window.chrome || { runtime: {} };
	const origQuery = window.navigator.permissions && window.navigator.permissions.query;
	if (origQuery) {
		window.navigator.permissions.query = (parameters) => (
			parameters.name === 'notifications'
				? Promise.resolve({ state: Notification.permission })
				: origQuery(parameters)
		);
	}
}`

// Session owns one long-lived browser and its single page context.
// All methods are safe for concurrent use; callers that navigate the shared
// page must serialize navigation themselves (see catalog.Client).
type Session struct {
	cfg Config
	log *zap.Logger

	mu      sync.Mutex
	control *launcher.Launcher
	browser *rod.Browser
	page    *rod.Page
	cancel  context.CancelFunc
}

// NewSession creates an uninitialized session. The browser is launched lazily
// on the first EnsureReady call.
func NewSession(cfg Config, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{cfg: cfg, log: log}
}

// EnsureReady launches the browser, opens the persistent page with a realistic
// device profile, and performs one warm-up navigation so session cookies and
// anti-bot tokens are established. Idempotent; subsequent calls are no-ops.
// On failure the session is left uninitialized so the next call retries from
// scratch.
func (s *Session) EnsureReady(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.page != nil {
		return nil
	}

	if err := s.initLocked(ctx); err != nil {
		s.resetLocked()
		return fmt.Errorf("browser session init: %w", err)
	}
	return nil
}

func (s *Session) initLocked(ctx context.Context) error {
	control := launcher.New().
		Headless(s.cfg.Headless).
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-dev-shm-usage").
		Set("no-sandbox").
		Set("lang", s.cfg.Locale)
	if s.cfg.Bin != "" {
		control = control.Bin(s.cfg.Bin)
	}

	controlURL, err := control.Launch()
	if err != nil {
		return fmt.Errorf("launch chrome: %w", err)
	}
	s.control = control

	// The connection must outlive the caller's request: bind it to a
	// session-owned context so later teardown still closes gracefully.
	browserCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	browser := rod.New().ControlURL(controlURL).Context(browserCtx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}
	s.browser = browser

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return fmt.Errorf("create page: %w", err)
	}
	s.page = page

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             s.cfg.ViewportWidth,
		Height:            s.cfg.ViewportHeight,
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		return fmt.Errorf("set viewport: %w", err)
	}
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      s.cfg.UserAgent,
		AcceptLanguage: s.cfg.AcceptLanguage,
	}); err != nil {
		return fmt.Errorf("set user agent: %w", err)
	}
	if err := (proto.EmulationSetTimezoneOverride{TimezoneID: s.cfg.Timezone}).Call(page); err != nil {
		return fmt.Errorf("set timezone: %w", err)
	}
	if _, err := page.EvalOnNewDocument(stealthScript); err != nil {
		return fmt.Errorf("install stealth script: %w", err)
	}

	if s.cfg.WarmupURL != "" {
		if err := page.Context(ctx).Timeout(s.cfg.NavigationTimeout()).Navigate(s.cfg.WarmupURL); err != nil {
			return fmt.Errorf("warm-up navigation: %w", err)
		}
		_ = page.Context(ctx).Timeout(s.cfg.NavigationTimeout()).WaitLoad()
		// Let the anti-bot token exchange finish before the first real request.
		settle := time.Duration(s.cfg.WarmupSettleMs) * time.Millisecond
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(settle):
		}
	}

	s.log.Info("browser session ready",
		zap.Bool("headless", s.cfg.Headless),
		zap.String("warmup_url", s.cfg.WarmupURL))
	return nil
}

func (s *Session) resetLocked() {
	if s.page != nil {
		_ = s.page.Close()
		s.page = nil
	}
	if s.browser != nil {
		_ = s.browser.Close()
		s.browser = nil
	}
	if s.control != nil {
		s.control.Kill()
		s.control = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// Page returns the persistent page. Callers must have called EnsureReady.
func (s *Session) Page() (*rod.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.page == nil {
		return nil, fmt.Errorf("browser session not initialized")
	}
	return s.page, nil
}

// Ready reports whether the session is initialized.
func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page != nil
}

// Navigate drives the shared page to a URL, bounded by the configured timeout.
func (s *Session) Navigate(ctx context.Context, url string) error {
	page, err := s.Page()
	if err != nil {
		return err
	}
	if err := page.Context(ctx).Timeout(s.cfg.NavigationTimeout()).Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	_ = page.Context(ctx).Timeout(s.cfg.NavigationTimeout()).WaitLoad()
	return nil
}

// Teardown closes the browser and clears all session state. Safe to call when
// the session was never initialized.
func (s *Session) Teardown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.browser == nil && s.page == nil && s.control == nil {
		return nil
	}

	var err error
	if s.page != nil {
		_ = s.page.Close()
		s.page = nil
	}
	if s.browser != nil {
		err = s.browser.Close()
		s.browser = nil
	}
	if s.control != nil {
		s.control.Kill()
		s.control = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.log.Info("browser session closed")
	return err
}
