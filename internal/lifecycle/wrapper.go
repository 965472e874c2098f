// Package lifecycle drives a browser against on-disk profiles: warming the
// base profile and opening session copies.
//
// A Wrapper moves through
//
//	Uninitialized -> DriverReady -> (PersistentContextOpen -> DriverReady)* -> Uninitialized
//
// and holds at most one persistent context at a time. Opening one closes
// the throwaway ("ambient") browser first and brings it back afterwards.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/warmcontext/internal/browser"
	ctxmgr "github.com/shehryarbajwa/warmcontext/internal/context"
	"github.com/shehryarbajwa/warmcontext/pkg/models"
)

var (
	// ErrContextOpen is returned when a persistent context is already open
	ErrContextOpen = errors.New("a persistent context is already open")

	// ErrDriverNotReady is returned by operations that need the ambient browser
	ErrDriverNotReady = errors.New("browser driver not initialized")

	// ErrNotOpen is returned when closing a context this wrapper does not hold
	ErrNotOpen = errors.New("context is not open in this wrapper")
)

// State is the lifecycle state of a Wrapper
type State int

const (
	StateUninitialized State = iota
	StateDriverReady
	StatePersistentOpen
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateDriverReady:
		return "driver-ready"
	case StatePersistentOpen:
		return "persistent-open"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// OpenContext is a live persistent context handed to the caller
type OpenContext struct {
	Path           string
	Context        browser.Context
	Page           browser.Page
	NavigationTime time.Duration
}

// Wrapper mediates between callers and a browser.Driver. It is safe for
// concurrent use, but operations on one Wrapper run one at a time.
type Wrapper struct {
	mu             sync.Mutex
	driver         browser.Driver
	store          *ctxmgr.Store
	opts           Options
	logger         *zap.Logger
	ambient        browser.Browser
	open           *OpenContext
	restoreAmbient bool
	state          State
}

// New creates a wrapper in the Uninitialized state
func New(driver browser.Driver, store *ctxmgr.Store, opts Options, logger *zap.Logger) *Wrapper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Wrapper{
		driver: driver,
		store:  store,
		opts:   opts,
		logger: logger.With(zap.String("backend", driver.Name())),
	}
}

// State returns the current lifecycle state
func (w *Wrapper) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// InitializeDriver starts the ambient browser, replacing any running one
func (w *Wrapper) InitializeDriver(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == StatePersistentOpen {
		return ErrContextOpen
	}
	return w.initializeLocked(ctx)
}

func (w *Wrapper) initializeLocked(ctx context.Context) error {
	w.closeAmbientLocked()

	b, err := w.driver.Launch(ctx, w.opts.Launch)
	if err != nil {
		w.state = StateUninitialized
		return fmt.Errorf("failed to initialize driver: %w", err)
	}

	w.ambient = b
	w.state = StateDriverReady
	return nil
}

func (w *Wrapper) closeAmbientLocked() {
	if w.ambient == nil {
		return
	}
	if err := w.ambient.Close(); err != nil {
		w.logger.Warn("Failed to close browser", zap.Error(err))
	}
	w.ambient = nil
}

// restoreLocked leaves the persistent state, relaunching the ambient
// browser when one was running before
func (w *Wrapper) restoreLocked(ctx context.Context, hadAmbient bool) error {
	if hadAmbient {
		return w.initializeLocked(ctx)
	}
	w.state = StateUninitialized
	return nil
}

// Preflight loads url in the ambient browser to check it is reachable
func (w *Wrapper) Preflight(ctx context.Context, url string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != StateDriverReady || w.ambient == nil {
		return ErrDriverNotReady
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	page, err := w.ambient.NewPage()
	if err != nil {
		return err
	}
	defer page.Close()

	if err := page.Goto(url, browser.GotoOptions{
		WaitUntil: browser.WaitLoad,
		Timeout:   w.opts.NavigationTimeout,
	}); err != nil {
		return fmt.Errorf("preflight %s: %w", url, err)
	}
	return nil
}

// OpenBaseContext warms the profile at path by loading url in a persistent
// context. The context is always closed before returning so the profile is
// flushed to disk.
//
// The ambient browser is relaunched afterwards only if it was running when
// the call started. A wrapper that was never initialized returns to
// Uninitialized rather than starting a browser nobody asked for; call
// InitializeDriver to get one.
func (w *Wrapper) OpenBaseContext(ctx context.Context, path, url string) (*models.WarmResult, error) {
	if url == "" {
		return nil, fmt.Errorf("url is required to warm a context")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == StatePersistentOpen {
		return nil, ErrContextOpen
	}
	if err := w.store.EnsureDirectory(path); err != nil {
		return nil, err
	}

	hadAmbient := w.ambient != nil
	w.closeAmbientLocked()
	w.state = StatePersistentOpen

	start := time.Now()
	bc, err := w.driver.LaunchPersistent(ctx, path, w.opts.Launch)
	if err != nil {
		return nil, errors.Join(
			fmt.Errorf("failed to open base context: %w", err),
			w.restoreLocked(ctx, hadAmbient))
	}

	result, warmErr := w.warm(ctx, bc, url)

	var closeErr error
	if err := bc.Close(); err != nil {
		closeErr = fmt.Errorf("failed to close base context: %w", err)
	}
	restoreErr := w.restoreLocked(ctx, hadAmbient)

	if err := errors.Join(warmErr, closeErr, restoreErr); err != nil {
		return nil, err
	}

	result.Path = path
	result.ElapsedMillis = time.Since(start).Milliseconds()
	result.SizeBytes = w.store.MeasureTreeSize(path)
	result.Size = ctxmgr.FormatByteCount(result.SizeBytes)

	w.logger.Info("Base context warmed",
		zap.String("path", path),
		zap.String("size", result.Size),
		zap.Bool("assetDetected", result.AssetDetected))

	return result, nil
}

func (w *Wrapper) warm(ctx context.Context, bc browser.Context, url string) (*models.WarmResult, error) {
	page, err := bc.NewPage()
	if err != nil {
		return nil, err
	}

	if err := page.Goto(url, browser.GotoOptions{
		WaitUntil: browser.WaitNetworkIdle,
		Timeout:   w.opts.NavigationTimeout,
	}); err != nil {
		return nil, err
	}

	if w.opts.GraceInterval > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(w.opts.GraceInterval):
		}
	}

	result := &models.WarmResult{URL: url}
	if w.opts.AssetPattern == nil || w.opts.AssetWaitTimeout <= 0 {
		return result, nil
	}

	assetURL, err := page.WaitForResponse(w.opts.AssetPattern, w.opts.AssetWaitTimeout)
	if err != nil {
		w.logger.Info("No asset response observed while warming",
			zap.String("pattern", w.opts.AssetPattern.String()),
			zap.Error(err))
		return result, nil
	}

	result.AssetDetected = true
	result.AssetURL = assetURL
	return result, nil
}

// OpenExistingContext launches a persistent context on path and, when url
// is given, navigates to it. The caller owns the returned context and must
// release it with CloseContext.
func (w *Wrapper) OpenExistingContext(ctx context.Context, path, url string) (*OpenContext, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == StatePersistentOpen {
		return nil, ErrContextOpen
	}
	if err := w.store.EnsureDirectory(path); err != nil {
		return nil, err
	}

	hadAmbient := w.ambient != nil
	w.closeAmbientLocked()
	w.state = StatePersistentOpen

	bc, err := w.driver.LaunchPersistent(ctx, path, w.opts.Launch)
	if err != nil {
		return nil, errors.Join(
			fmt.Errorf("failed to open context: %w", err),
			w.restoreLocked(ctx, hadAmbient))
	}

	oc, err := w.openPage(bc, path, url)
	if err != nil {
		_ = bc.Close() // Ignore errors, navigation already failed
		return nil, errors.Join(err, w.restoreLocked(ctx, hadAmbient))
	}

	w.open = oc
	w.restoreAmbient = hadAmbient
	return oc, nil
}

func (w *Wrapper) openPage(bc browser.Context, path, url string) (*OpenContext, error) {
	page, err := bc.NewPage()
	if err != nil {
		return nil, err
	}

	oc := &OpenContext{Path: path, Context: bc, Page: page}
	if url == "" {
		return oc, nil
	}

	start := time.Now()
	if err := page.Goto(url, browser.GotoOptions{
		WaitUntil: browser.WaitDOMContentLoaded,
		Timeout:   w.opts.NavigationTimeout,
	}); err != nil {
		return nil, err
	}
	oc.NavigationTime = time.Since(start)

	w.logger.Info("Context opened",
		zap.String("path", path),
		zap.String("url", url),
		zap.Duration("navigation", oc.NavigationTime))

	return oc, nil
}

// CloseContext closes a context returned by OpenExistingContext
func (w *Wrapper) CloseContext(ctx context.Context, oc *OpenContext) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if oc == nil || w.open != oc {
		return ErrNotOpen
	}

	var closeErr error
	if err := oc.Context.Close(); err != nil {
		closeErr = fmt.Errorf("failed to close context: %w", err)
	}
	w.open = nil

	return errors.Join(closeErr, w.restoreLocked(ctx, w.restoreAmbient))
}

// TeardownDriver closes the ambient browser and any context still open.
// Calling it again is a no-op.
func (w *Wrapper) TeardownDriver() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var err error
	if w.open != nil {
		if cerr := w.open.Context.Close(); cerr != nil {
			err = fmt.Errorf("failed to close context: %w", cerr)
		}
		w.open = nil
	}
	w.closeAmbientLocked()
	w.restoreAmbient = false
	w.state = StateUninitialized
	return err
}
