package lifecycle

import (
	"regexp"
	"time"

	"github.com/shehryarbajwa/warmcontext/internal/browser"
)

// DefaultAssetPattern matches responses for the large assets worth caching
const DefaultAssetPattern = `(?i)\.(wasm|db|sqlite3?)(\?|#|$)`

// Default values for lifecycle operations
const (
	DefaultNavigationTimeout = 60 * time.Second
	DefaultGraceInterval     = 3 * time.Second
	DefaultAssetWaitTimeout  = 10 * time.Second
	DefaultViewportWidth     = 1280
	DefaultViewportHeight    = 720
)

// Options configures a Wrapper
type Options struct {
	Launch browser.LaunchOptions

	// NavigationTimeout bounds every page navigation; hitting it fails the call
	NavigationTimeout time.Duration

	// GraceInterval is how long a warming run idles after network-idle so
	// deferred fetches land in the cache
	GraceInterval time.Duration

	// AssetWaitTimeout bounds the advisory wait for an asset response.
	// Zero disables the wait.
	AssetWaitTimeout time.Duration

	// AssetPattern is matched against response URLs during warming
	AssetPattern *regexp.Regexp
}

// DefaultOptions returns headless options with the default timeouts
func DefaultOptions() Options {
	return Options{
		Launch: browser.LaunchOptions{
			Headless: true,
			Viewport: &browser.Viewport{
				Width:  DefaultViewportWidth,
				Height: DefaultViewportHeight,
			},
		},
		NavigationTimeout: DefaultNavigationTimeout,
		GraceInterval:     DefaultGraceInterval,
		AssetWaitTimeout:  DefaultAssetWaitTimeout,
		AssetPattern:      regexp.MustCompile(DefaultAssetPattern),
	}
}
