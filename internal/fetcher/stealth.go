package fetcher

import (
	"crypto/tls"
	"fmt"
	"math/rand"

	"github.com/IshaanNene/CommentGoat/internal/config"
)

// StealthConfig configures anti-detection and fingerprint spoofing.
type StealthConfig struct {
	// Custom viewport dimensions
	ViewportWidth  int
	ViewportHeight int

	// Timezone override (e.g., "America/New_York")
	Timezone string

	// Language override (e.g., "en-US")
	Language string

	// Platform override (e.g., "Win32", "MacIntel", "Linux x86_64")
	Platform string

	// Hardware concurrency (number of CPU cores to report)
	HardwareConcurrency int

	// DeviceMemory (GB of RAM to report)
	DeviceMemory int

	// CanvasNoise perturbs canvas reads so fingerprints differ per session.
	CanvasNoise bool
}

// NewStealthConfig derives a stealth profile from the browser settings,
// randomizing what a real desktop fleet would vary.
func NewStealthConfig(cfg config.BrowserConfig) *StealthConfig {
	platforms := []string{"Win32", "MacIntel", "Linux x86_64"}

	return &StealthConfig{
		ViewportWidth:       cfg.ViewportWidth,
		ViewportHeight:      cfg.ViewportHeight,
		Timezone:            cfg.Timezone,
		Language:            cfg.Locale,
		Platform:            platforms[rand.Intn(len(platforms))],
		HardwareConcurrency: 4 + rand.Intn(13), // 4-16 cores
		DeviceMemory:        8,
		CanvasNoise:         true,
	}
}

// WindowSize formats the viewport for the browser's window-size flag.
func (sc *StealthConfig) WindowSize() string {
	return fmt.Sprintf("%d,%d", sc.ViewportWidth, sc.ViewportHeight)
}

// StealthJS returns JavaScript to inject for fingerprint spoofing.
// This is injected into every page before any other scripts run.
func (sc *StealthConfig) StealthJS() string {
	js := fmt.Sprintf(`
// Override navigator properties
Object.defineProperty(navigator, 'platform', { get: () => '%s' });
Object.defineProperty(navigator, 'language', { get: () => '%s' });
Object.defineProperty(navigator, 'languages', { get: () => ['%s', 'en'] });
Object.defineProperty(navigator, 'hardwareConcurrency', { get: () => %d });
Object.defineProperty(navigator, 'deviceMemory', { get: () => %d });

// Remove webdriver flag
Object.defineProperty(navigator, 'webdriver', { get: () => false });

// Fix permissions API
const originalQuery = window.navigator.permissions.query;
window.navigator.permissions.query = (parameters) => (
	parameters.name === 'notifications' ?
		Promise.resolve({ state: Notification.permission }) :
		originalQuery(parameters)
);
`, sc.Platform, sc.Language, sc.Language, sc.HardwareConcurrency, sc.DeviceMemory)

	if sc.CanvasNoise {
		js += `
// Add slight noise to canvas reads
const originalGetImageData = CanvasRenderingContext2D.prototype.getImageData;
CanvasRenderingContext2D.prototype.getImageData = function(x, y, w, h) {
	const imageData = originalGetImageData.call(this, x, y, w, h);
	const data = imageData.data;
	for (let i = 0; i < data.length; i += 4) {
		data[i] = data[i] + Math.floor(Math.random() * 2);
		data[i+1] = data[i+1] + Math.floor(Math.random() * 2);
		data[i+2] = data[i+2] + Math.floor(Math.random() * 2);
	}
	return imageData;
};
`
	}
	return js
}

// randomTLSConfig creates a TLS config that mimics browser fingerprints.
func randomTLSConfig() *tls.Config {
	// Cipher suites commonly used by Chrome/Firefox
	cipherSuites := [][]uint16{
		// Chrome-like
		{
			tls.TLS_AES_128_GCM_SHA256,
			tls.TLS_AES_256_GCM_SHA384,
			tls.TLS_CHACHA20_POLY1305_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
		},
		// Firefox-like
		{
			tls.TLS_AES_128_GCM_SHA256,
			tls.TLS_CHACHA20_POLY1305_SHA256,
			tls.TLS_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
		},
	}

	selected := cipherSuites[rand.Intn(len(cipherSuites))]

	return &tls.Config{
		CipherSuites: selected,
		MinVersion:   tls.VersionTLS12,
		MaxVersion:   tls.VersionTLS13,
		CurvePreferences: []tls.CurveID{
			tls.X25519,
			tls.CurveP256,
			tls.CurveP384,
		},
	}
}
