package fetcher

import (
	"context"
	"net/url"

	"github.com/IshaanNene/CommentGoat/internal/types"
)

// Pacer spaces outbound requests and receives their outcome.
type Pacer interface {
	Wait(ctx context.Context) error
	OnSuccess()
	OnFailure()
}

// ProxyPool hands out the proxy for outbound requests. Both methods return
// nil when no proxy is available.
type ProxyPool interface {
	Current() *url.URL
	Rotate() *url.URL
}

// Tiered combines the light HTTP fetcher with the rendered browser fetcher.
// A nil Browser makes every rendered fetch fail with types.ErrNoSession.
type Tiered struct {
	HTTP    *HTTPFetcher
	Browser *BrowserFetcher
}

// FetchLight fetches the raw page over HTTP.
func (t *Tiered) FetchLight(ctx context.Context, rawURL string) (string, error) {
	return t.HTTP.FetchLight(ctx, rawURL)
}

// FetchRendered loads the page in the session's browser.
func (t *Tiered) FetchRendered(ctx context.Context, rawURL string, s types.Session, opts types.RenderOptions) (string, error) {
	if t.Browser == nil {
		return "", types.ErrNoSession
	}
	return t.Browser.FetchRendered(ctx, rawURL, s, opts)
}

// Close releases idle HTTP connections.
func (t *Tiered) Close() error {
	return t.HTTP.Close()
}
