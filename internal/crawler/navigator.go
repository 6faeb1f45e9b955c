package crawler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Browser is the rendering backend a Navigator drives. One Browser is one
// render surface; it must not be shared between sessions.
type Browser interface {
	SetViewport(ctx context.Context, width, height int) error
	SetUserAgent(ctx context.Context, userAgent string) error
	Navigate(ctx context.Context, url string) error
	WaitReady(ctx context.Context, selector string) error
	ScrollBy(ctx context.Context, distance int) error
	ScrollHeight(ctx context.Context) (int, error)
	// Document returns the serialized DOM as it is right now.
	Document(ctx context.Context) (string, error)
	Close() error
}

// BrowserFactory opens a fresh render surface.
type BrowserFactory func(ctx context.Context) (Browser, error)

// Clock lets tests run the settle wait and scroll loop without real delays.
type Clock interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RealClock sleeps on the wall clock.
func RealClock() Clock { return realClock{} }

type NavigatorConfig struct {
	ViewportWidth     int
	ViewportHeight    int
	UserAgent         string
	NavigationTimeout time.Duration
	RenderSelector    string
	RenderTimeout     time.Duration
	SettleDelay       time.Duration
	ScrollStep        int
	ScrollInterval    time.Duration
	ScrollCeiling     int
}

// DefaultNavigatorConfig mirrors what a desktop visitor would look like.
func DefaultNavigatorConfig() NavigatorConfig {
	return NavigatorConfig{
		ViewportWidth:     1920,
		ViewportHeight:    1080,
		UserAgent:         DefaultUserAgent,
		NavigationTimeout: 60 * time.Second,
		RenderSelector:    FeedSelector,
		RenderTimeout:     30 * time.Second,
		SettleDelay:       5 * time.Second,
		ScrollStep:        500,
		ScrollInterval:    200 * time.Millisecond,
		ScrollCeiling:     5000,
	}
}

// FeedSelector matches the search results container. It is present on an
// empty search too, so waiting on it never turns "no results" into a timeout.
const FeedSelector = `div[role="main"]`

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// ScrollStats describes one run of the dynamic-load loop.
type ScrollStats struct {
	Steps      int
	Distance   int
	LastHeight int
	HitCeiling bool
}

type Navigator struct {
	cfg     NavigatorConfig
	open    BrowserFactory
	clock   Clock
	lastRun ScrollStats
}

func NewNavigator(cfg NavigatorConfig, open BrowserFactory, clock Clock) *Navigator {
	if clock == nil {
		clock = RealClock()
	}
	return &Navigator{cfg: cfg, open: open, clock: clock}
}

// LastScroll reports the scroll loop statistics of the latest Load.
func (n *Navigator) LastScroll() ScrollStats {
	return n.lastRun
}

// Load renders targetURL, scrolls the feed until it stops growing or the
// ceiling is reached, and returns a snapshot of the expanded document. The
// browser is always released before Load returns.
func (n *Navigator) Load(ctx context.Context, targetURL string) (view DocumentView, err error) {
	n.lastRun = ScrollStats{}

	browser, err := n.open(ctx)
	if err != nil {
		return nil, &NavigationError{URL: targetURL, Err: fmt.Errorf("open browser: %w", err)}
	}
	defer func() {
		if cerr := browser.Close(); cerr != nil && err == nil {
			err = &NavigationError{URL: targetURL, Err: fmt.Errorf("release browser: %w", cerr)}
			view = nil
		}
	}()

	if err := browser.SetViewport(ctx, n.cfg.ViewportWidth, n.cfg.ViewportHeight); err != nil {
		return nil, &NavigationError{URL: targetURL, Err: fmt.Errorf("set viewport: %w", err)}
	}
	if err := browser.SetUserAgent(ctx, n.cfg.UserAgent); err != nil {
		return nil, &NavigationError{URL: targetURL, Err: fmt.Errorf("set user agent: %w", err)}
	}

	if err := n.navigate(ctx, browser, targetURL); err != nil {
		return nil, err
	}
	if err := n.waitForFeed(ctx, browser, targetURL); err != nil {
		return nil, err
	}

	stats, err := n.scrollFeed(ctx, browser)
	n.lastRun = stats
	if err != nil {
		return nil, &NavigationError{URL: targetURL, Err: fmt.Errorf("scroll feed: %w", err)}
	}

	raw, err := browser.Document(ctx)
	if err != nil {
		return nil, &NavigationError{URL: targetURL, Err: fmt.Errorf("capture document: %w", err)}
	}
	view, err = NewDocumentView(strings.NewReader(raw), targetURL)
	if err != nil {
		return nil, &NavigationError{URL: targetURL, Err: err}
	}
	return view, nil
}

func (n *Navigator) navigate(ctx context.Context, browser Browser, targetURL string) error {
	navCtx, cancel := withTimeout(ctx, n.cfg.NavigationTimeout)
	defer cancel()

	if err := browser.Navigate(navCtx, targetURL); err != nil {
		return &NavigationError{URL: targetURL, Err: err}
	}
	return nil
}

// waitForFeed waits for the feed container, then gives the page a fixed
// settle period: there is no reliable "loaded" marker to wait on instead.
func (n *Navigator) waitForFeed(ctx context.Context, browser Browser, targetURL string) error {
	renderCtx, cancel := withTimeout(ctx, n.cfg.RenderTimeout)
	defer cancel()

	if err := browser.WaitReady(renderCtx, n.cfg.RenderSelector); err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return &RenderTimeoutError{URL: targetURL, Selector: n.cfg.RenderSelector, Err: err}
		}
		return &NavigationError{URL: targetURL, Err: fmt.Errorf("wait for %q: %w", n.cfg.RenderSelector, err)}
	}

	if err := n.clock.Sleep(ctx, n.cfg.SettleDelay); err != nil {
		return &NavigationError{URL: targetURL, Err: err}
	}
	return nil
}

// scrollFeed advances the viewport one step per interval until the scrolled
// distance covers the page height or reaches the ceiling.
func (n *Navigator) scrollFeed(ctx context.Context, browser Browser) (ScrollStats, error) {
	var stats ScrollStats
	step := n.cfg.ScrollStep
	if step <= 0 {
		return stats, nil
	}

	for {
		if err := n.clock.Sleep(ctx, n.cfg.ScrollInterval); err != nil {
			return stats, err
		}

		height, err := browser.ScrollHeight(ctx)
		if err != nil {
			return stats, err
		}
		if err := browser.ScrollBy(ctx, step); err != nil {
			return stats, err
		}
		stats.Steps++
		stats.Distance += step
		stats.LastHeight = height

		if stats.Distance >= n.cfg.ScrollCeiling {
			stats.HitCeiling = true
			return stats, nil
		}
		if stats.Distance >= height {
			return stats, nil
		}
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
