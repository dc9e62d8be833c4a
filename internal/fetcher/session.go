package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/url"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/google/uuid"

	"github.com/IshaanNene/CommentGoat/internal/config"
	"github.com/IshaanNene/CommentGoat/internal/types"
)

// BrowserSession is a launched browser with one prepared page.
type BrowserSession struct {
	id      string
	browser *rod.Browser
	page    *rod.Page
	proxy   *url.URL
}

// ID implements types.Session.
func (s *BrowserSession) ID() string { return s.id }

// Page returns the session's page.
func (s *BrowserSession) Page() *rod.Page { return s.page }

// BrowserSessions launches and tears down browser sessions.
type BrowserSessions struct {
	cfg        config.BrowserConfig
	userAgents []string
	proxies    ProxyPool
	logger     *slog.Logger
}

// NewBrowserSessions creates a session provider. proxies may be nil.
func NewBrowserSessions(cfg *config.Config, proxies *ProxyManager, logger *slog.Logger) *BrowserSessions {
	bs := &BrowserSessions{
		cfg:        cfg.Browser,
		userAgents: cfg.Fetcher.UserAgents,
		logger:     logger.With("component", "browser_sessions"),
	}
	if proxies != nil {
		bs.proxies = proxies
	}
	return bs
}

// OpenSession starts a Chromium instance and prepares a page with a
// spoofed fingerprint.
func (bs *BrowserSessions) OpenSession(ctx context.Context) (types.Session, error) {
	sc := NewStealthConfig(bs.cfg)

	var proxy *url.URL
	if bs.proxies != nil {
		proxy = bs.proxies.Current()
	}

	l := launcher.New().
		Context(ctx).
		Headless(bs.cfg.Headless).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("no-sandbox").
		Set("disable-setuid-sandbox").
		Set("disable-blink-features", "AutomationControlled").
		Set("window-size", sc.WindowSize()).
		Set("lang", sc.Language)
	if proxy != nil {
		l = l.Proxy(proxy.String())
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().Context(ctx).ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	page, err := bs.preparePage(browser, sc)
	if err != nil {
		_ = browser.Close()
		return nil, err
	}

	s := &BrowserSession{
		id:      uuid.NewString(),
		browser: browser,
		page:    page,
		proxy:   proxy,
	}
	bs.logger.Info("browser session opened",
		"session", s.id,
		"headless", bs.cfg.Headless,
		"stealth", bs.cfg.Stealth,
		"proxy", proxyHost(proxy),
	)
	return s, nil
}

func (bs *BrowserSessions) preparePage(browser *rod.Browser, sc *StealthConfig) (*rod.Page, error) {
	var (
		page *rod.Page
		err  error
	)
	if bs.cfg.Stealth {
		page, err = stealth.Page(browser)
	} else {
		page, err = browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	}
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             sc.ViewportWidth,
		Height:            sc.ViewportHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		return nil, fmt.Errorf("set viewport: %w", err)
	}

	if len(bs.userAgents) > 0 {
		ua := bs.userAgents[rand.Intn(len(bs.userAgents))]
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      ua,
			AcceptLanguage: sc.Language,
		}); err != nil {
			bs.logger.Warn("failed to set user agent", "error", err)
		}
	}

	if sc.Timezone != "" {
		if err := (proto.EmulationSetTimezoneOverride{TimezoneID: sc.Timezone}).Call(page); err != nil {
			bs.logger.Warn("failed to set timezone", "timezone", sc.Timezone, "error", err)
		}
	}

	if bs.cfg.Stealth {
		if _, err := page.EvalOnNewDocument(sc.StealthJS()); err != nil {
			bs.logger.Warn("failed to inject stealth script", "error", err)
		}
	}
	return page, nil
}

// CloseSession closes the session's page and browser.
func (bs *BrowserSessions) CloseSession(s types.Session) error {
	sess, ok := s.(*BrowserSession)
	if !ok || sess == nil {
		return types.ErrNoSession
	}

	var firstErr error
	if sess.page != nil {
		if err := sess.page.Close(); err != nil {
			firstErr = err
		}
	}
	if sess.browser != nil {
		if err := sess.browser.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	bs.logger.Info("browser session closed", "session", sess.id)
	return firstErr
}
