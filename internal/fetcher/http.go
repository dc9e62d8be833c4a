package fetcher

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/IshaanNene/CommentGoat/internal/config"
	"github.com/IshaanNene/CommentGoat/internal/types"
)

// HTTPFetcher fetches raw post pages over plain HTTP.
type HTTPFetcher struct {
	client     *http.Client
	cfg        *config.FetcherConfig
	pacer      Pacer
	proxies    ProxyPool
	logger     *slog.Logger
	userAgents []string
	referers   []string
	uaIndex    atomic.Int64
	random     func() float64
}

// NewHTTPFetcher creates a new HTTP fetcher. proxies may be nil.
func NewHTTPFetcher(cfg *config.Config, pacer Pacer, proxies *ProxyManager, logger *slog.Logger) (*HTTPFetcher, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	tlsCfg := randomTLSConfig()
	tlsCfg.InsecureSkipVerify = cfg.Fetcher.TLSInsecure

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        cfg.Fetcher.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.Fetcher.MaxIdleConns / 2,
		IdleConnTimeout:     cfg.Fetcher.IdleConnTimeout,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig:     tlsCfg,
		DisableCompression:  true, // We handle decompression ourselves (including brotli)
	}

	f := &HTTPFetcher{
		cfg:        &cfg.Fetcher,
		pacer:      pacer,
		logger:     logger.With("component", "http_fetcher"),
		userAgents: cfg.Fetcher.UserAgents,
		referers:   cfg.Fetcher.Referers,
		random:     rand.Float64,
	}
	if proxies != nil {
		transport.Proxy = proxies.ProxyFunc()
		f.proxies = proxies
	}

	redirectPolicy := func(req *http.Request, via []*http.Request) error {
		if !cfg.Fetcher.FollowRedirects {
			return http.ErrUseLastResponse
		}
		if len(via) >= cfg.Fetcher.MaxRedirects {
			return fmt.Errorf("max redirects (%d) reached", cfg.Fetcher.MaxRedirects)
		}
		return nil
	}

	f.client = &http.Client{
		Transport:     transport,
		Jar:           jar,
		Timeout:       cfg.Engine.RequestTimeout,
		CheckRedirect: redirectPolicy,
	}
	return f, nil
}

// FetchLight GETs rawURL and returns the decoded body. Blocking statuses
// (403, 429, 503) and request timeouts slow the pacer down and rotate the
// proxy. The request timeout starts once the pacer releases the request.
func (f *HTTPFetcher) FetchLight(ctx context.Context, rawURL string) (string, error) {
	if err := f.pacer.Wait(ctx); err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", &types.FetchError{URL: rawURL, Err: err}
	}
	f.setHeaders(httpReq)

	start := time.Now()
	httpResp, err := f.client.Do(httpReq)
	duration := time.Since(start)

	if err != nil {
		// The caller giving up says nothing about the site.
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		// Only the client's own request timeout counts as the site stalling.
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			f.blocked(rawURL, 0)
		}
		return "", &types.FetchError{
			URL:       rawURL,
			Err:       err,
			Retryable: isRetryableError(err),
		}
	}
	defer httpResp.Body.Close()

	switch code := httpResp.StatusCode; {
	case code == http.StatusForbidden || code == http.StatusTooManyRequests || code == http.StatusServiceUnavailable:
		f.blocked(rawURL, code)
		fe := &types.FetchError{
			URL:        rawURL,
			StatusCode: code,
			Err:        fmt.Errorf("HTTP %d: %s", code, snippet(httpResp.Body)),
			Retryable:  true,
		}
		if code == http.StatusTooManyRequests {
			fe.RetryAfter = parseRetryAfter(httpResp.Header.Get("Retry-After"))
		}
		return "", fe
	case code < 200 || code >= 300:
		return "", &types.FetchError{
			URL:        rawURL,
			StatusCode: code,
			Err:        fmt.Errorf("HTTP %d: %s", code, snippet(httpResp.Body)),
			Retryable:  code >= 500,
		}
	}

	// Read body with size limit
	var reader io.Reader = httpResp.Body
	if f.cfg.MaxBodySize > 0 {
		reader = io.LimitReader(reader, f.cfg.MaxBodySize)
	}

	// Decompress if needed (gzip, deflate, brotli)
	reader, err = decompressReader(httpResp, reader)
	if err != nil {
		return "", &types.FetchError{URL: rawURL, StatusCode: httpResp.StatusCode, Err: err}
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return "", &types.FetchError{URL: rawURL, StatusCode: httpResp.StatusCode, Err: err, Retryable: true}
	}

	page := string(body)
	if kind, _ := DetectCAPTCHA(page); kind != "" || IsCheckpoint(httpResp.Request.URL) {
		if kind == "" {
			kind = CAPTCHACheckpoint
		}
		f.blocked(rawURL, httpResp.StatusCode)
		return "", &types.FetchError{
			URL:        rawURL,
			StatusCode: httpResp.StatusCode,
			Err:        fmt.Errorf("%w: %s", ErrChallenge, kind),
			Retryable:  true,
		}
	}

	f.pacer.OnSuccess()
	f.logger.Debug("fetch complete",
		"url", rawURL,
		"status", httpResp.StatusCode,
		"size", len(body),
		"duration", duration,
	)

	if strings.TrimSpace(page) == "" {
		return "", &types.FetchError{URL: rawURL, StatusCode: httpResp.StatusCode, Err: types.ErrEmptyResponse}
	}
	return page, nil
}

// Close releases resources.
func (f *HTTPFetcher) Close() error {
	f.client.CloseIdleConnections()
	return nil
}

// blocked applies backpressure after the site refused or stalled a request.
func (f *HTTPFetcher) blocked(rawURL string, status int) {
	f.pacer.OnFailure()
	if f.proxies == nil {
		f.logger.Warn("request blocked", "url", rawURL, "status", status)
		return
	}
	next := f.proxies.Rotate()
	f.logger.Warn("request blocked, rotating proxy", "url", rawURL, "status", status, "proxy", proxyHost(next))
}

func (f *HTTPFetcher) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", f.nextUserAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("Cache-Control", "max-age=0")

	// A referer on roughly half the requests looks like ordinary browsing.
	if len(f.referers) > 0 && f.random() > 0.5 {
		idx := int(f.random() * float64(len(f.referers)))
		if idx >= len(f.referers) {
			idx = len(f.referers) - 1
		}
		req.Header.Set("Referer", f.referers[idx])
	}
}

// nextUserAgent returns the next User-Agent in rotation.
func (f *HTTPFetcher) nextUserAgent() string {
	if len(f.userAgents) == 0 {
		return "CommentGoat/" + config.Version
	}
	idx := f.uaIndex.Add(1) % int64(len(f.userAgents))
	return f.userAgents[idx]
}

func snippet(r io.Reader) string {
	body, _ := io.ReadAll(io.LimitReader(r, 512))
	return strings.TrimSpace(string(body))
}

func proxyHost(u *url.URL) string {
	if u == nil {
		return "direct"
	}
	return u.Host
}

// decompressReader wraps a reader with the appropriate decompressor.
// Handles gzip, deflate, and brotli (br) encodings.
func decompressReader(resp *http.Response, reader io.Reader) (io.Reader, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		return gzip.NewReader(reader)
	case "deflate":
		return flate.NewReader(reader), nil
	case "br":
		return brotli.NewReader(reader), nil
	default:
		return reader, nil
	}
}

// isRetryableError checks if a network error warrants a retry.
// Covers timeouts, connection resets, unexpected EOF, and connection refused.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	// Context cancellation is NOT retryable
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if errors.Is(opErr.Err, syscall.ECONNRESET) ||
			errors.Is(opErr.Err, syscall.ECONNREFUSED) {
			return true
		}
	}
	return false
}

// parseRetryAfter parses the Retry-After header value.
// Supports both integer seconds and HTTP-date formats.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 5 * time.Second // default back-off
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(header)); err == nil {
		if secs > 120 {
			secs = 120 // cap at 2 minutes
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		d := time.Until(t)
		if d < 0 {
			return time.Second
		}
		if d > 2*time.Minute {
			return 2 * time.Minute
		}
		return d
	}
	return 5 * time.Second
}
