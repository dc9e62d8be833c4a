package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/IshaanNene/CommentGoat/internal/automation"
	"github.com/IshaanNene/CommentGoat/internal/config"
	"github.com/IshaanNene/CommentGoat/internal/types"
)

// BrowserFetcher renders post pages in a browser session.
type BrowserFetcher struct {
	cfg     config.BrowserConfig
	timeout time.Duration
	pacer   Pacer
	logger  *slog.Logger
}

// NewBrowserFetcher creates a rendered-page fetcher.
func NewBrowserFetcher(cfg *config.Config, pacer Pacer, logger *slog.Logger) *BrowserFetcher {
	return &BrowserFetcher{
		cfg:     cfg.Browser,
		timeout: cfg.Engine.RequestTimeout,
		pacer:   pacer,
		logger:  logger.With("component", "browser_fetcher"),
	}
}

// FetchRendered navigates the session's page to rawURL and returns the
// rendered HTML. With opts.ScrollForMore it first expands collapsed
// comment threads and scrolls to trigger lazy loading.
func (bf *BrowserFetcher) FetchRendered(ctx context.Context, rawURL string, s types.Session, opts types.RenderOptions) (string, error) {
	sess, ok := s.(*BrowserSession)
	if !ok || sess == nil || sess.page == nil {
		return "", types.ErrNoSession
	}

	if err := bf.pacer.Wait(ctx); err != nil {
		return "", err
	}

	start := time.Now()
	navCtx := ctx
	if bf.timeout > 0 {
		var cancel context.CancelFunc
		navCtx, cancel = context.WithTimeout(ctx, bf.timeout)
		defer cancel()
	}
	page := sess.page.Context(navCtx)

	if err := page.Navigate(rawURL); err != nil {
		return "", bf.fail(ctx, rawURL, fmt.Errorf("navigate: %w", err))
	}

	if err := page.WaitStable(bf.cfg.StableWait); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		bf.logger.Warn("page stability timeout, continuing", "url", rawURL, "error", err)
	}

	actions := automation.NewPageActions(page, bf.logger)
	if _, err := actions.AcceptCookies(navCtx); err != nil {
		bf.logger.Debug("cookie banner check failed", "error", err)
	}

	if opts.ScrollForMore {
		if err := automation.Sleep(navCtx, 2*time.Second); err != nil {
			return "", bf.fail(ctx, rawURL, err)
		}
		clicked, err := actions.ExpandComments(navCtx, bf.cfg.ExpandRounds)
		if err != nil {
			bf.logger.Warn("expanding comments failed", "url", rawURL, "error", err)
		}
		if err := actions.Scroll(navCtx, bf.cfg.ScrollRounds, bf.cfg.ScrollStep); err != nil {
			bf.logger.Warn("scrolling failed", "url", rawURL, "error", err)
		}
		bf.logger.Debug("page expanded", "url", rawURL, "clicked", clicked)
	}

	html, err := page.HTML()
	if err != nil {
		return "", bf.fail(ctx, rawURL, fmt.Errorf("read html: %w", err))
	}

	bf.pacer.OnSuccess()
	bf.logger.Debug("browser fetch complete",
		"url", rawURL,
		"session", sess.id,
		"size", len(html),
		"duration", time.Since(start),
	)
	return html, nil
}

// fail records a failed render. Caller cancellation or deadline is passed
// through without touching the pacer.
func (bf *BrowserFetcher) fail(ctx context.Context, rawURL string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	bf.pacer.OnFailure()
	return &types.FetchError{URL: rawURL, Err: err, Retryable: true}
}
