package fetcher

import (
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/IshaanNene/CommentGoat/internal/config"
)

// ProxyManager rotates through a list of proxies. The current proxy is
// kept for RotationFrequency requests, or until Rotate is called.
type ProxyManager struct {
	proxies   []*proxyEntry
	rotation  string
	frequency int
	current   int
	requests  int
	mu        sync.Mutex
	random    func(n int) int
	logger    *slog.Logger
}

type proxyEntry struct {
	URL     *url.URL
	Healthy bool
	LastErr error
	LastUse time.Time
}

// NewProxyManager creates a new ProxyManager from configuration.
func NewProxyManager(cfg config.ProxyConfig, logger *slog.Logger) *ProxyManager {
	pm := &ProxyManager{
		proxies:   make([]*proxyEntry, 0, len(cfg.URLs)),
		rotation:  cfg.Rotation,
		frequency: cfg.RotationFrequency,
		random:    rand.Intn,
		logger:    logger.With("component", "proxy_manager"),
	}

	for _, rawURL := range cfg.URLs {
		if err := pm.AddProxy(rawURL); err != nil {
			pm.logger.Warn("invalid proxy URL", "url", rawURL, "error", err)
		}
	}

	if len(pm.proxies) == 0 {
		pm.logger.Warn("no proxies configured, connecting directly")
	} else {
		pm.logger.Info("proxy manager initialized", "count", len(pm.proxies), "rotation", cfg.Rotation)
	}
	return pm
}

// ProxyFunc returns an http.Transport-compatible proxy function.
func (pm *ProxyManager) ProxyFunc() func(*http.Request) (*url.URL, error) {
	return func(*http.Request) (*url.URL, error) {
		return pm.Next(), nil // nil means a direct connection
	}
}

// Current returns the proxy in use without counting a request.
func (pm *ProxyManager) Current() *url.URL {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if e := pm.currentEntry(); e != nil {
		return e.URL
	}
	return nil
}

// Rotate switches to another healthy proxy and returns it.
func (pm *ProxyManager) Rotate() *url.URL {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if len(pm.proxies) == 0 {
		return nil
	}
	pm.advance()
	pm.requests = 0

	e := pm.currentEntry()
	if e == nil {
		pm.logger.Warn("no healthy proxies left")
		return nil
	}
	pm.logger.Info("rotated proxy", "proxy", e.URL.Host, "position", pm.current+1, "of", len(pm.proxies))
	return e.URL
}

// Next counts a request against the current proxy and returns the proxy to
// use for it, rotating once the current one has served its share.
func (pm *ProxyManager) Next() *url.URL {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if len(pm.proxies) == 0 {
		return nil
	}
	if pm.frequency > 0 && pm.requests >= pm.frequency {
		pm.logger.Debug("rotation frequency reached", "requests", pm.requests)
		pm.advance()
		pm.requests = 0
	}

	e := pm.currentEntry()
	if e == nil {
		return nil
	}
	pm.requests++
	e.LastUse = time.Now()
	return e.URL
}

// MarkFailed marks a proxy as unhealthy and moves off it if it is current.
func (pm *ProxyManager) MarkFailed(proxyURL *url.URL, err error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	for i, p := range pm.proxies {
		if p.URL.String() == proxyURL.String() {
			p.Healthy = false
			p.LastErr = err
			pm.logger.Warn("proxy marked unhealthy",
				"proxy", proxyURL.Host,
				"error", err,
			)
			if i == pm.current {
				pm.advance()
				pm.requests = 0
			}
			break
		}
	}
}

// MarkHealthy marks a proxy as healthy.
func (pm *ProxyManager) MarkHealthy(proxyURL *url.URL) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	for _, p := range pm.proxies {
		if p.URL.String() == proxyURL.String() {
			p.Healthy = true
			p.LastErr = nil
			break
		}
	}
}

// Count returns the total number of proxies.
func (pm *ProxyManager) Count() int {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return len(pm.proxies)
}

// HealthyCount returns the number of healthy proxies.
func (pm *ProxyManager) HealthyCount() int {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	n := 0
	for _, p := range pm.proxies {
		if p.Healthy {
			n++
		}
	}
	return n
}

// AddProxy adds a new proxy URL at runtime.
func (pm *ProxyManager) AddProxy(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid proxy URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid proxy URL %q: scheme and host required", rawURL)
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.proxies = append(pm.proxies, &proxyEntry{
		URL:     u,
		Healthy: true,
	})
	return nil
}

// currentEntry returns the current proxy, moving to a healthy one first if
// needed. Callers hold pm.mu.
func (pm *ProxyManager) currentEntry() *proxyEntry {
	if len(pm.proxies) == 0 {
		return nil
	}
	if !pm.proxies[pm.current].Healthy {
		pm.advance()
	}
	if e := pm.proxies[pm.current]; e.Healthy {
		return e
	}
	return nil
}

// advance moves current to another healthy proxy. It stays put when no
// other healthy proxy exists. Callers hold pm.mu.
func (pm *ProxyManager) advance() {
	n := len(pm.proxies)
	if n < 2 {
		return
	}

	if pm.rotation == "random" {
		var others []int
		for i, p := range pm.proxies {
			if i != pm.current && p.Healthy {
				others = append(others, i)
			}
		}
		if len(others) > 0 {
			pm.current = others[pm.random(len(others))]
		}
		return
	}

	// round_robin
	for step := 1; step < n; step++ {
		i := (pm.current + step) % n
		if pm.proxies[i].Healthy {
			pm.current = i
			return
		}
	}
}
