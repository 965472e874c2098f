// Package browsertest provides an in-memory browser.Driver for tests.
package browsertest

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/shehryarbajwa/warmcontext/internal/browser"
)

// PNG is the screenshot payload returned by fake pages
var PNG = []byte("\x89PNG fake")

// Navigation records one Goto call
type Navigation struct {
	URL       string
	WaitUntil browser.WaitUntil
	Timeout   time.Duration
}

// Driver is a scriptable browser.Driver. Zero value is ready to use.
type Driver struct {
	mu sync.Mutex

	NameValue string

	LaunchErr     error
	PersistentErr error
	GotoErr       error
	ResponseURL   string
	ResponseErr   error
	TitleValue    string
	TitleErr      error
	EvaluateValue interface{}
	EvaluateErr   error
	ConnectURL    string

	// OnPersistentLaunch runs with the profile dir, standing in for the
	// engine writing its cache
	OnPersistentLaunch func(userDataDir string) error

	// OnGoto runs before a navigation completes, without the driver lock held
	OnGoto func(url string)

	launches           int
	persistentLaunches int
	openBrowsers       int
	openContexts       int
	profiles           []string
	navigations        []Navigation
	screenshots        []string
	closed             bool
}

func (d *Driver) Name() string {
	if d.NameValue == "" {
		return browser.BackendLocal
	}
	return d.NameValue
}

func (d *Driver) Launch(ctx context.Context, opts browser.LaunchOptions) (browser.Browser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.LaunchErr != nil {
		return nil, d.LaunchErr
	}
	d.launches++
	d.openBrowsers++
	return &fakeBrowser{driver: d}, nil
}

func (d *Driver) LaunchPersistent(ctx context.Context, userDataDir string, opts browser.LaunchOptions) (browser.Context, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	if d.PersistentErr != nil {
		d.mu.Unlock()
		return nil, d.PersistentErr
	}
	hook := d.OnPersistentLaunch
	d.persistentLaunches++
	d.openContexts++
	d.profiles = append(d.profiles, userDataDir)
	d.mu.Unlock()

	if hook != nil {
		if err := hook(userDataDir); err != nil {
			return nil, fmt.Errorf("persistent launch hook: %w", err)
		}
	}
	return &fakeContext{driver: d}, nil
}

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Launches returns how many throwaway browsers were launched
func (d *Driver) Launches() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.launches
}

// PersistentLaunches returns how many persistent contexts were launched
func (d *Driver) PersistentLaunches() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.persistentLaunches
}

// OpenBrowsers returns throwaway browsers not yet closed
func (d *Driver) OpenBrowsers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.openBrowsers
}

// OpenContexts returns persistent contexts not yet closed
func (d *Driver) OpenContexts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.openContexts
}

// Profiles returns every profile dir a persistent context was launched on
func (d *Driver) Profiles() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.profiles...)
}

// Navigations returns every Goto call made on any page
func (d *Driver) Navigations() []Navigation {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Navigation(nil), d.navigations...)
}

// Screenshots returns every screenshot path requested
func (d *Driver) Screenshots() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.screenshots...)
}

// Closed reports whether Close was called on the driver
func (d *Driver) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

type fakeBrowser struct {
	driver *Driver
	once   sync.Once
}

func (b *fakeBrowser) NewPage() (browser.Page, error) {
	return &fakePage{driver: b.driver, url: "about:blank"}, nil
}

func (b *fakeBrowser) Close() error {
	b.once.Do(func() {
		b.driver.mu.Lock()
		b.driver.openBrowsers--
		b.driver.mu.Unlock()
	})
	return nil
}

type fakeContext struct {
	driver *Driver
	once   sync.Once
}

func (c *fakeContext) NewPage() (browser.Page, error) {
	return &fakePage{driver: c.driver, url: "about:blank"}, nil
}

func (c *fakeContext) ConnectURL() string {
	c.driver.mu.Lock()
	defer c.driver.mu.Unlock()
	return c.driver.ConnectURL
}

func (c *fakeContext) Close() error {
	c.once.Do(func() {
		c.driver.mu.Lock()
		c.driver.openContexts--
		c.driver.mu.Unlock()
	})
	return nil
}

type fakePage struct {
	driver *Driver
	mu     sync.Mutex
	url    string
}

func (p *fakePage) Goto(url string, opts browser.GotoOptions) error {
	p.driver.mu.Lock()
	p.driver.navigations = append(p.driver.navigations, Navigation{URL: url, WaitUntil: opts.WaitUntil, Timeout: opts.Timeout})
	err := p.driver.GotoErr
	hook := p.driver.OnGoto
	p.driver.mu.Unlock()

	if hook != nil {
		hook(url)
	}
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.url = url
	p.mu.Unlock()
	return nil
}

func (p *fakePage) WaitForResponse(pattern *regexp.Regexp, timeout time.Duration) (string, error) {
	p.driver.mu.Lock()
	defer p.driver.mu.Unlock()

	if p.driver.ResponseErr != nil {
		return "", p.driver.ResponseErr
	}
	if p.driver.ResponseURL == "" || !pattern.MatchString(p.driver.ResponseURL) {
		return "", fmt.Errorf("timeout %s exceeded waiting for response", timeout)
	}
	return p.driver.ResponseURL, nil
}

func (p *fakePage) Title() (string, error) {
	p.driver.mu.Lock()
	defer p.driver.mu.Unlock()
	return p.driver.TitleValue, p.driver.TitleErr
}

func (p *fakePage) Evaluate(expression string) (interface{}, error) {
	p.driver.mu.Lock()
	defer p.driver.mu.Unlock()
	return p.driver.EvaluateValue, p.driver.EvaluateErr
}

func (p *fakePage) Screenshot(path string) ([]byte, error) {
	p.driver.mu.Lock()
	defer p.driver.mu.Unlock()
	p.driver.screenshots = append(p.driver.screenshots, path)
	return PNG, nil
}

func (p *fakePage) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *fakePage) Close() error {
	return nil
}
