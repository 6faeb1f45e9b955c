package crawler

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"marketplace-scraper/pkg/models"
)

// hideWebdriver runs before any page script so navigator.webdriver reads like
// a normal desktop browser.
const hideWebdriver = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined});`

// ChromeBrowser drives one headless Chrome tab through chromedp.
type ChromeBrowser struct {
	ctx         context.Context
	cancelAlloc context.CancelFunc
	cancelTab   context.CancelFunc
}

// NewChromeFactory returns a BrowserFactory launching a dedicated Chrome
// process per session with the given proxy and identity options.
func NewChromeFactory(opts models.BrowserOptions) BrowserFactory {
	return func(ctx context.Context) (Browser, error) {
		return NewChromeBrowser(ctx, opts)
	}
}

func NewChromeBrowser(ctx context.Context, opts models.BrowserOptions) (*ChromeBrowser, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
	)
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if opts.ViewportWidth > 0 && opts.ViewportHeight > 0 {
		allocOpts = append(allocOpts, chromedp.WindowSize(opts.ViewportWidth, opts.ViewportHeight))
	}
	if opts.ProxyServer != "" {
		allocOpts = append(allocOpts, chromedp.ProxyServer(opts.ProxyServer))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocOpts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	b := &ChromeBrowser{ctx: tabCtx, cancelAlloc: cancelAlloc, cancelTab: cancelTab}

	// The first Run starts the browser process.
	err := b.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(hideWebdriver).Do(ctx)
		return err
	}))
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("start chrome: %w", err)
	}
	return b, nil
}

func (b *ChromeBrowser) SetViewport(ctx context.Context, width, height int) error {
	return b.run(ctx, chromedp.EmulateViewport(int64(width), int64(height)))
}

func (b *ChromeBrowser) SetUserAgent(ctx context.Context, userAgent string) error {
	if userAgent == "" {
		return nil
	}
	return b.run(ctx, emulation.SetUserAgentOverride(userAgent))
}

func (b *ChromeBrowser) Navigate(ctx context.Context, url string) error {
	return b.run(ctx, chromedp.Navigate(url))
}

func (b *ChromeBrowser) WaitReady(ctx context.Context, selector string) error {
	return b.run(ctx, chromedp.WaitReady(selector, chromedp.ByQuery))
}

func (b *ChromeBrowser) ScrollBy(ctx context.Context, distance int) error {
	return b.run(ctx, chromedp.Evaluate(fmt.Sprintf(`window.scrollBy(0, %d);`, distance), nil))
}

func (b *ChromeBrowser) ScrollHeight(ctx context.Context) (int, error) {
	var height int
	err := b.run(ctx, chromedp.Evaluate(`document.body ? document.body.scrollHeight : 0`, &height))
	return height, err
}

func (b *ChromeBrowser) Document(ctx context.Context) (string, error) {
	var html string
	err := b.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

// Close shuts the tab and the Chrome process.
func (b *ChromeBrowser) Close() error {
	b.cancelTab()
	b.cancelAlloc()
	return nil
}

// run executes actions on the tab while honouring the caller's deadline and
// cancellation. chromedp needs a context derived from the tab context, so the
// caller's ctx is bridged onto it.
func (b *ChromeBrowser) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(b.ctx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}
