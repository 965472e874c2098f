// Package browser puts the browser engine behind a small capability
// interface so the context store and lifecycle code never depend on a
// particular automation backend.
package browser

import (
	"context"
	"regexp"
	"time"
)

// WaitUntil names the page load milestone a navigation waits for
type WaitUntil string

const (
	WaitCommit           WaitUntil = "commit"
	WaitLoad             WaitUntil = "load"
	WaitDOMContentLoaded WaitUntil = "domcontentloaded"
	WaitNetworkIdle      WaitUntil = "networkidle"
)

// Viewport represents the browser viewport dimensions.
type Viewport struct {
	Width  int
	Height int
}

// LaunchOptions configures a browser launch
type LaunchOptions struct {
	// SessionID labels backend resources (containers) with the owning session
	SessionID string

	Headless bool
	Viewport *Viewport

	// RemoteDebugging exposes a CDP websocket endpoint for the launched browser
	RemoteDebugging bool

	// Timeout bounds the launch itself
	Timeout time.Duration
}

// GotoOptions configures page navigation behavior.
type GotoOptions struct {
	WaitUntil WaitUntil
	Timeout   time.Duration
}

// Driver launches browsers. Implementations must be safe for use by several
// lifecycle wrappers at once.
type Driver interface {
	// Name returns the backend name the driver is registered under
	Name() string

	// Launch starts a browser with a throwaway profile
	Launch(ctx context.Context, opts LaunchOptions) (Browser, error)

	// LaunchPersistent starts a browser whose profile lives in userDataDir.
	// The directory is created by the engine when it does not exist yet.
	LaunchPersistent(ctx context.Context, userDataDir string, opts LaunchOptions) (Context, error)

	// Close releases driver-wide resources
	Close() error
}

// Browser is a browser with a throwaway profile
type Browser interface {
	NewPage() (Page, error)
	Close() error
}

// Context is a live browser bound to an on-disk profile directory.
// Close flushes the profile to disk.
type Context interface {
	NewPage() (Page, error)

	// ConnectURL returns the CDP websocket endpoint, or "" when not exposed
	ConnectURL() string

	Close() error
}

// Page is a single tab
type Page interface {
	Goto(url string, opts GotoOptions) error

	// WaitForResponse blocks until a response whose URL matches pattern
	// arrives or timeout elapses, and returns the matching URL
	WaitForResponse(pattern *regexp.Regexp, timeout time.Duration) (string, error)

	Title() (string, error)
	Evaluate(expression string) (interface{}, error)

	// Screenshot writes a PNG to path and returns its bytes
	Screenshot(path string) ([]byte, error)

	URL() string
	Close() error
}
