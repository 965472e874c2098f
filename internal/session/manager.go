package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/shehryarbajwa/warmcontext/internal/browser"
	ctxmgr "github.com/shehryarbajwa/warmcontext/internal/context"
	"github.com/shehryarbajwa/warmcontext/internal/lifecycle"
	"github.com/shehryarbajwa/warmcontext/pkg/models"
)

var (
	ErrBaseContextMissing = errors.New("base context is missing or empty; run init first")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionNotRunning  = errors.New("session is not running")
	ErrConcurrencyLimit   = errors.New("concurrency limit reached")

	// ErrInvalidRequest wraps every rejection caused by the caller's input
	ErrInvalidRequest = errors.New("invalid request")
)

// Session timeout bounds, in seconds
const (
	MinTimeout     = 60
	MaxTimeout     = 21600
	DefaultTimeout = 3600
)

// cacheStatsScript counts resource timing entries; a zero transfer size
// with a non-empty body means the response came from the HTTP cache
const cacheStatsScript = `(() => {
  const entries = performance.getEntriesByType('resource');
  return {
    resources: entries.length,
    fromCache: entries.filter(e => e.transferSize === 0 && e.decodedBodySize > 0).length,
  };
})()`

// Config configures a Manager
type Config struct {
	MaxSessions    int64
	ScreenshotsDir string
	Lifecycle      lifecycle.Options

	// DefaultTimeout applies to requests without a timeout, in seconds
	DefaultTimeout int
}

// liveSession is a session plus the browser resources backing it.
// mu guards info and is only held briefly; opMu serializes page operations,
// which can run for a whole navigation timeout.
type liveSession struct {
	mu       sync.Mutex
	opMu     sync.Mutex
	info     models.Session
	wrapper  *lifecycle.Wrapper
	open     *lifecycle.OpenContext
	done     chan struct{}
	stopOnce sync.Once
	stopErr  error
}

func (ls *liveSession) snapshot() *models.Session {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	info := ls.info
	return &info
}

// Manager handles warming the base context and running sessions on copies of it
type Manager struct {
	sessions sync.Map // sessionID -> *liveSession
	slots    *semaphore.Weighted
	baseMu   sync.RWMutex // held exclusively while warming, shared while cloning
	store    *ctxmgr.Store
	registry *browser.Registry
	cfg      Config
	logger   *zap.Logger

	timeoutUnit time.Duration
}

// NewManager creates a new session manager
func NewManager(store *ctxmgr.Store, registry *browser.Registry, cfg Config, logger *zap.Logger) *Manager {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 10
	}
	if cfg.DefaultTimeout == 0 {
		cfg.DefaultTimeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		slots:    semaphore.NewWeighted(cfg.MaxSessions),
		store:    store,
		registry: registry,
		cfg:      cfg,
		logger:   logger,

		timeoutUnit: time.Second,
	}
}

// Store returns the context store sessions are cloned from
func (m *Manager) Store() *ctxmgr.Store {
	return m.store
}

// WarmBase loads the request URL into the base profile so its assets are cached
func (m *Manager) WarmBase(ctx context.Context, req models.WarmBaseRequest) (*models.WarmResult, error) {
	if req.URL == "" {
		return nil, fmt.Errorf("%w: url is required", ErrInvalidRequest)
	}

	m.baseMu.Lock()
	defer m.baseMu.Unlock()

	w := lifecycle.New(m.registry.Route(req.Backend), m.store, m.cfg.Lifecycle, m.logger)
	defer func() {
		if err := w.TeardownDriver(); err != nil {
			m.logger.Warn("Failed to tear down driver", zap.Error(err))
		}
	}()

	if req.Preflight {
		if err := w.InitializeDriver(ctx); err != nil {
			return nil, err
		}
		if err := w.Preflight(ctx, req.URL); err != nil {
			return nil, err
		}
	}

	m.logger.Info("Warming base context",
		zap.String("path", m.store.BasePath()),
		zap.String("url", req.URL))

	return w.OpenBaseContext(ctx, m.store.BasePath(), req.URL)
}

// CreateSession copies the base profile into a fresh directory and opens a browser on it
func (m *Manager) CreateSession(ctx context.Context, req models.CreateSessionRequest) (*models.Session, error) {
	if req.Timeout == 0 {
		req.Timeout = m.cfg.DefaultTimeout
	}
	if err := ValidateTimeout(req.Timeout); err != nil {
		return nil, err
	}

	if !m.slots.TryAcquire(1) {
		return nil, ErrConcurrencyLimit
	}

	sessionID := ctxmgr.NewSessionID()
	path, size, err := m.cloneBase(sessionID)
	if err != nil {
		m.slots.Release(1)
		return nil, err
	}

	driver := m.registry.Route(req.Backend)
	opts := m.cfg.Lifecycle
	opts.Launch.SessionID = sessionID
	w := lifecycle.New(driver, m.store, opts, m.logger.With(zap.String("session", sessionID)))

	oc, err := w.OpenExistingContext(ctx, path, req.URL)
	if err != nil {
		m.discard(sessionID)
		m.slots.Release(1)
		return nil, fmt.Errorf("failed to open session context: %w", err)
	}

	now := time.Now()
	ls := &liveSession{
		info: models.Session{
			ID:               sessionID,
			Status:           models.StatusRunning,
			Backend:          driver.Name(),
			ContextPath:      path,
			URL:              req.URL,
			NavigationMillis: oc.NavigationTime.Milliseconds(),
			SizeBytes:        size,
			StartedAt:        now,
			ExpiresAt:        now.Add(time.Duration(req.Timeout) * m.timeoutUnit),
			Timeout:          req.Timeout,
			ConnectURL:       oc.Context.ConnectURL(),
		},
		wrapper: w,
		open:    oc,
		done:    make(chan struct{}),
	}
	if req.URL != "" {
		ls.info.Title = m.pageTitle(ls)
	}

	m.sessions.Store(sessionID, ls)
	go m.handleTimeout(ls)

	m.logger.Info("Session started",
		zap.String("session", sessionID),
		zap.String("backend", driver.Name()),
		zap.String("size", ctxmgr.FormatByteCount(size)))

	return ls.snapshot(), nil
}

// ValidateTimeout checks a session timeout in seconds
func ValidateTimeout(seconds int) error {
	if seconds < MinTimeout || seconds > MaxTimeout {
		return fmt.Errorf("%w: timeout must be between %d and %d seconds", ErrInvalidRequest, MinTimeout, MaxTimeout)
	}
	return nil
}

// cloneBase copies the base into the session directory while no warming run can write to it
func (m *Manager) cloneBase(sessionID string) (string, int64, error) {
	m.baseMu.RLock()
	defer m.baseMu.RUnlock()

	if _, ok := m.store.BaseContext(); !ok {
		return "", 0, ErrBaseContextMissing
	}

	path, err := m.store.CloneBase(sessionID)
	if err != nil {
		m.discard(sessionID)
		return "", 0, fmt.Errorf("failed to copy base context: %w", err)
	}
	return path, m.store.MeasureTreeSize(path), nil
}

func (m *Manager) discard(sessionID string) {
	if err := m.store.RemoveSession(sessionID); err != nil {
		m.logger.Warn("Failed to remove session context", zap.String("session", sessionID), zap.Error(err))
	}
}

// pageTitle reads the page title; failures are logged and yield ""
func (m *Manager) pageTitle(ls *liveSession) string {
	title, err := ls.open.Page.Title()
	if err != nil {
		m.logger.Warn("Could not read page title", zap.String("session", ls.info.ID), zap.Error(err))
		return ""
	}
	return title
}

func (m *Manager) lookup(id string) (*liveSession, error) {
	value, ok := m.sessions.Load(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return value.(*liveSession), nil
}

// pageOp returns a running session with opMu held. The caller must unlock it.
func (m *Manager) pageOp(id string) (*liveSession, error) {
	ls, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	ls.opMu.Lock()
	if ls.snapshot().Status != models.StatusRunning {
		ls.opMu.Unlock()
		return nil, ErrSessionNotRunning
	}
	return ls, nil
}

// GetSession retrieves a session by ID
func (m *Manager) GetSession(id string) (*models.Session, error) {
	ls, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	return ls.snapshot(), nil
}

// ListSessions returns all sessions, optionally filtered by status, oldest first
func (m *Manager) ListSessions(status models.SessionStatus) []*models.Session {
	sessions := []*models.Session{}

	m.sessions.Range(func(key, value interface{}) bool {
		session := value.(*liveSession).snapshot()
		if status != "" && session.Status != status {
			return true
		}
		sessions = append(sessions, session)
		return true
	})

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartedAt.Before(sessions[j].StartedAt)
	})
	return sessions
}

// Navigate points a running session's page at url
func (m *Manager) Navigate(id, url string) (*models.Session, error) {
	if url == "" {
		return nil, fmt.Errorf("%w: url is required", ErrInvalidRequest)
	}
	ls, err := m.pageOp(id)
	if err != nil {
		return nil, err
	}
	defer ls.opMu.Unlock()

	start := time.Now()
	err = ls.open.Page.Goto(url, browser.GotoOptions{
		WaitUntil: browser.WaitDOMContentLoaded,
		Timeout:   m.cfg.Lifecycle.NavigationTimeout,
	})
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)
	current := ls.open.Page.URL()
	title := m.pageTitle(ls)

	ls.mu.Lock()
	ls.info.URL = current
	ls.info.NavigationMillis = elapsed.Milliseconds()
	ls.info.Title = title
	ls.mu.Unlock()

	return ls.snapshot(), nil
}

// ScreenshotPath returns where a session's screenshot is written
func (m *Manager) ScreenshotPath(id string) string {
	return filepath.Join(m.cfg.ScreenshotsDir, fmt.Sprintf("session-%s.png", id))
}

// Screenshot captures the session's page to its screenshot file and returns the PNG
func (m *Manager) Screenshot(id string) ([]byte, error) {
	ls, err := m.pageOp(id)
	if err != nil {
		return nil, err
	}
	defer ls.opMu.Unlock()

	if err := m.store.EnsureDirectory(m.cfg.ScreenshotsDir); err != nil {
		return nil, err
	}

	path := m.ScreenshotPath(id)
	data, err := ls.open.Page.Screenshot(path)
	if err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}

	ls.mu.Lock()
	ls.info.ScreenshotPath = path
	ls.mu.Unlock()
	return data, nil
}

// CacheStats reports how many of the page's resources came from the HTTP cache
func (m *Manager) CacheStats(id string) (*models.CacheStats, error) {
	ls, err := m.pageOp(id)
	if err != nil {
		return nil, err
	}
	defer ls.opMu.Unlock()

	value, err := ls.open.Page.Evaluate(cacheStatsScript)
	if err != nil {
		return nil, fmt.Errorf("evaluate failed: %w", err)
	}
	return parseCacheStats(value)
}

func parseCacheStats(value interface{}) (*models.CacheStats, error) {
	fields, ok := value.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected evaluation result %T", value)
	}
	return &models.CacheStats{
		Resources: toInt(fields["resources"]),
		FromCache: toInt(fields["fromCache"]),
	}, nil
}

func toInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

// DeleteSession closes a running session. Its profile directory is removed
// unless keepData is set. A session that stopped in the meantime, for
// example by timing out, yields ErrSessionNotRunning and keepData is not
// honored.
func (m *Manager) DeleteSession(id string, keepData bool) error {
	ls, err := m.lookup(id)
	if err != nil {
		return err
	}
	stopped, err := m.stop(ls, models.StatusCompleted, keepData)
	if !stopped {
		return ErrSessionNotRunning
	}
	return err
}

// stop releases a session's browser, directory and slot exactly once.
// It reports whether this call did the work.
func (m *Manager) stop(ls *liveSession, status models.SessionStatus, keepData bool) (bool, error) {
	stopped := false
	ls.stopOnce.Do(func() {
		stopped = true
		close(ls.done)

		// Closing the context aborts any page operation still in flight
		id := ls.snapshot().ID
		var errs []error
		if err := ls.wrapper.CloseContext(context.Background(), ls.open); err != nil {
			errs = append(errs, err)
		}
		if err := ls.wrapper.TeardownDriver(); err != nil {
			errs = append(errs, err)
		}

		ls.mu.Lock()
		ls.info.Status = status
		if len(errs) > 0 {
			ls.info.Status = models.StatusError
		}
		ls.mu.Unlock()

		if !keepData {
			if err := m.store.RemoveSession(id); err != nil {
				errs = append(errs, err)
			}
		}

		m.slots.Release(1)
		ls.stopErr = errors.Join(errs...)

		m.logger.Info("Session stopped",
			zap.String("session", id),
			zap.String("status", string(status)),
			zap.Bool("keptData", keepData))
	})
	return stopped, ls.stopErr
}

// handleTimeout automatically terminates a session after its timeout
func (m *Manager) handleTimeout(ls *liveSession) {
	timer := time.NewTimer(time.Until(ls.snapshot().ExpiresAt))
	defer timer.Stop()

	select {
	case <-ls.done:
		return
	case <-timer.C:
	}

	if _, err := m.stop(ls, models.StatusTimedOut, false); err != nil {
		m.logger.Warn("Failed to stop timed out session", zap.String("session", ls.snapshot().ID), zap.Error(err))
	}
}

// Shutdown stops every running session and removes their directories
func (m *Manager) Shutdown() error {
	var errs []error
	m.sessions.Range(func(key, value interface{}) bool {
		ls := value.(*liveSession)
		if ls.snapshot().Status == models.StatusRunning {
			if _, err := m.stop(ls, models.StatusCompleted, false); err != nil {
				errs = append(errs, err)
			}
		}
		return true
	})
	return errors.Join(errs...)
}
