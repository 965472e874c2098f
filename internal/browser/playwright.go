package browser

import (
	"fmt"
	"io"
	"regexp"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"
)

// Runtime owns the Playwright driver process shared by every backend
type Runtime struct {
	mu      sync.Mutex
	pw      *playwright.Playwright
	stopped bool
}

// StartRuntime installs (if needed) and starts the Playwright driver.
// Driver output is discarded so it does not interleave with our logs.
func StartRuntime(logger *zap.Logger) (*Runtime, error) {
	opts := &playwright.RunOptions{
		Browsers: []string{"chromium"},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}

	logger.Debug("Installing playwright driver")
	if err := playwright.Install(opts); err != nil {
		return nil, fmt.Errorf("failed to install playwright: %w", err)
	}

	pw, err := playwright.Run(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	return &Runtime{pw: pw}, nil
}

func (r *Runtime) chromium() (playwright.BrowserType, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return nil, fmt.Errorf("playwright runtime stopped")
	}
	return r.pw.Chromium, nil
}

// Stop shuts the driver down; later calls are no-ops
func (r *Runtime) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return nil
	}
	r.stopped = true
	if err := r.pw.Stop(); err != nil {
		return fmt.Errorf("failed to stop playwright: %w", err)
	}
	return nil
}

// millis converts a duration to Playwright's millisecond timeouts; zero means default
func millis(d time.Duration) *float64 {
	if d <= 0 {
		return nil
	}
	return playwright.Float(float64(d.Milliseconds()))
}

func toSize(v *Viewport) *playwright.Size {
	if v == nil {
		return nil
	}
	return &playwright.Size{Width: v.Width, Height: v.Height}
}

type pwBrowser struct {
	browser  playwright.Browser
	viewport *Viewport
}

func (b *pwBrowser) NewPage() (Page, error) {
	page, err := b.browser.NewPage(playwright.BrowserNewPageOptions{
		Viewport: toSize(b.viewport),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	return &pwPage{page: page}, nil
}

func (b *pwBrowser) Close() error {
	return b.browser.Close()
}

// pwContext adapts a Playwright persistent context. onClose runs after the
// context is closed, for backends that own more than the browser process.
type pwContext struct {
	context    playwright.BrowserContext
	connectURL string
	onClose    func() error
	closeOnce  sync.Once
	closeErr   error
}

func (c *pwContext) NewPage() (Page, error) {
	page, err := c.context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	return &pwPage{page: page}, nil
}

func (c *pwContext) ConnectURL() string {
	return c.connectURL
}

func (c *pwContext) Close() error {
	c.closeOnce.Do(func() {
		if err := c.context.Close(); err != nil {
			c.closeErr = fmt.Errorf("failed to close context: %w", err)
		}
		if c.onClose != nil {
			if err := c.onClose(); err != nil && c.closeErr == nil {
				c.closeErr = err
			}
		}
	})
	return c.closeErr
}

type pwPage struct {
	page playwright.Page
}

func (p *pwPage) Goto(url string, opts GotoOptions) error {
	playwrightOpts := playwright.PageGotoOptions{
		Timeout: millis(opts.Timeout),
	}
	if opts.WaitUntil != "" {
		waitUntil := playwright.WaitUntilState(opts.WaitUntil)
		playwrightOpts.WaitUntil = &waitUntil
	}

	if _, err := p.page.Goto(url, playwrightOpts); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

func (p *pwPage) WaitForResponse(pattern *regexp.Regexp, timeout time.Duration) (string, error) {
	resp, err := p.page.ExpectResponse(pattern, func() error { return nil }, playwright.PageExpectResponseOptions{
		Timeout: millis(timeout),
	})
	if err != nil {
		return "", err
	}
	return resp.URL(), nil
}

func (p *pwPage) Title() (string, error) {
	return p.page.Title()
}

func (p *pwPage) Evaluate(expression string) (interface{}, error) {
	return p.page.Evaluate(expression)
}

func (p *pwPage) Screenshot(path string) ([]byte, error) {
	opts := playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(true),
	}
	if path != "" {
		opts.Path = playwright.String(path)
	}
	return p.page.Screenshot(opts)
}

func (p *pwPage) URL() string {
	return p.page.URL()
}

func (p *pwPage) Close() error {
	return p.page.Close()
}
