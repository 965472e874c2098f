package browser

import (
	"context"
	"fmt"
	"net"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"
)

// BackendLocal is the name of the in-process Chromium backend
const BackendLocal = "local"

// LocalDriver launches Chromium on this host through Playwright
type LocalDriver struct {
	runtime *Runtime
	logger  *zap.Logger
}

// NewLocalDriver creates a driver that launches Chromium locally
func NewLocalDriver(runtime *Runtime, logger *zap.Logger) *LocalDriver {
	return &LocalDriver{runtime: runtime, logger: logger}
}

func (d *LocalDriver) Name() string {
	return BackendLocal
}

func (d *LocalDriver) Launch(ctx context.Context, opts LaunchOptions) (Browser, error) {
	chromium, err := d.runtime.chromium()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	browser, err := chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Timeout:  millis(opts.Timeout),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	return &pwBrowser{browser: browser, viewport: opts.Viewport}, nil
}

func (d *LocalDriver) LaunchPersistent(ctx context.Context, userDataDir string, opts LaunchOptions) (Context, error) {
	chromium, err := d.runtime.chromium()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var args []string
	var debugPort int
	if opts.RemoteDebugging {
		debugPort, err = freePort()
		if err != nil {
			return nil, fmt.Errorf("failed to reserve debugging port: %w", err)
		}
		args = append(args, fmt.Sprintf("--remote-debugging-port=%d", debugPort))
	}

	bc, err := chromium.LaunchPersistentContext(userDataDir, playwright.BrowserTypeLaunchPersistentContextOptions{
		Headless: playwright.Bool(opts.Headless),
		Args:     args,
		Viewport: toSize(opts.Viewport),
		Timeout:  millis(opts.Timeout),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to launch persistent context: %w", err)
	}

	pc := &pwContext{context: bc}
	if debugPort != 0 {
		info, err := waitForDebugger(ctx, fmt.Sprintf("127.0.0.1:%d", debugPort))
		if err != nil {
			d.logger.Warn("Remote debugging endpoint unavailable",
				zap.String("session", opts.SessionID),
				zap.Error(err))
		} else {
			pc.connectURL = info.WebSocketDebuggerURL
		}
	}

	return pc, nil
}

// Close is a no-op; the shared runtime is stopped by its owner
func (d *LocalDriver) Close() error {
	return nil
}

func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
