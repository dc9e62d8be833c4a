// Package automation drives page interactions that reveal post comments.
package automation

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// CookieButtons match consent banners that block the comment area.
var CookieButtons = []string{
	`button[data-cookiebanner="accept_button"]`,
	`button[data-testid="cookie-policy-manage-dialog-accept-button"]`,
	`button[title="Accept All"]`,
	`button[title="Accept all"]`,
}

// MoreCommentsLabels are the texts of controls that load hidden comments.
var MoreCommentsLabels = []string{
	"View more comments",
	"See more comments",
	"See more",
}

// clickByTextJS clicks every button-like element whose own text equals one
// of the labels and returns how many were clicked.
const clickByTextJS = `(labels) => {
	const nodes = document.querySelectorAll('div[role="button"], a, span, button');
	let clicked = 0;
	for (const el of nodes) {
		const text = (el.innerText || '').trim();
		if (labels.includes(text)) {
			el.click();
			clicked++;
		}
	}
	return clicked;
}`

// PageActions wraps a Rod page with the interactions needed before its
// HTML is captured.
type PageActions struct {
	page   *rod.Page
	logger *slog.Logger
	random func() float64
}

// NewPageActions wraps a Rod page with automation helpers.
func NewPageActions(page *rod.Page, logger *slog.Logger) *PageActions {
	return &PageActions{
		page:   page,
		logger: logger.With("component", "page_actions"),
		random: rand.Float64,
	}
}

// AcceptCookies clicks the first consent button present. It reports
// whether one was clicked.
func (pa *PageActions) AcceptCookies(ctx context.Context) (bool, error) {
	for _, selector := range CookieButtons {
		has, el, err := pa.page.Has(selector)
		if err != nil {
			return false, err
		}
		if !has {
			continue
		}
		if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
			pa.logger.Debug("cookie button not clickable", "selector", selector, "error", err)
			continue
		}
		pa.logger.Info("accepted cookies")
		return true, Sleep(ctx, time.Second)
	}
	return false, nil
}

// ExpandComments clicks "view more" controls for up to rounds rounds,
// stopping early once a round finds nothing to click. It returns the
// number of controls clicked.
func (pa *PageActions) ExpandComments(ctx context.Context, rounds int) (int, error) {
	total := 0
	for i := 0; i < rounds; i++ {
		res, err := pa.page.Eval(clickByTextJS, MoreCommentsLabels)
		if err != nil {
			return total, fmt.Errorf("expand comments: %w", err)
		}
		n := res.Value.Int()
		if n == 0 {
			break
		}
		total += n
		pa.logger.Debug("expanded comment threads", "round", i+1, "clicked", n)
		if err := Sleep(ctx, 2*time.Second); err != nil {
			return total, err
		}
	}
	return total, nil
}

// ScrollBy scrolls by a specific amount.
func (pa *PageActions) ScrollBy(x, y int) error {
	_, err := pa.page.Eval(`(x, y) => window.scrollBy(x, y)`, x, y)
	return err
}

// Scroll scrolls down step pixels rounds times, pausing a random 0.5-1.5s
// between scrolls so lazily loaded comments can arrive.
func (pa *PageActions) Scroll(ctx context.Context, rounds, step int) error {
	for i := 0; i < rounds; i++ {
		if err := pa.ScrollBy(0, step); err != nil {
			return fmt.Errorf("scroll: %w", err)
		}
		pause := 500*time.Millisecond + time.Duration(pa.random()*float64(time.Second))
		if err := Sleep(ctx, pause); err != nil {
			return err
		}
	}
	return nil
}

// Sleep pauses for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
