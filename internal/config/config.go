// Package config loads warmcontext settings from defaults, an optional YAML
// file, a .env file and WARMCTX_ environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/shehryarbajwa/warmcontext/internal/browser"
	"github.com/shehryarbajwa/warmcontext/internal/lifecycle"
	"github.com/shehryarbajwa/warmcontext/internal/session"
)

// EnvPrefix prefixes every environment variable read by Load
const EnvPrefix = "WARMCTX"

// Config holds all runtime settings
type Config struct {
	DataDir   string `yaml:"data_dir" envconfig:"DATA_DIR"`
	TargetURL string `yaml:"target_url" envconfig:"TARGET_URL"`
	Backend   string `yaml:"backend" envconfig:"BACKEND"`
	Headless  bool   `yaml:"headless" envconfig:"HEADLESS"`
	LogLevel  string `yaml:"log_level" envconfig:"LOG_LEVEL"`

	NavigationTimeout time.Duration `yaml:"navigation_timeout" envconfig:"NAVIGATION_TIMEOUT"`
	GraceInterval     time.Duration `yaml:"grace_interval" envconfig:"GRACE_INTERVAL"`
	AssetWaitTimeout  time.Duration `yaml:"asset_wait_timeout" envconfig:"ASSET_WAIT_TIMEOUT"`
	AssetPattern      string        `yaml:"asset_pattern" envconfig:"ASSET_PATTERN"`

	ViewportWidth   int  `yaml:"viewport_width" envconfig:"VIEWPORT_WIDTH"`
	ViewportHeight  int  `yaml:"viewport_height" envconfig:"VIEWPORT_HEIGHT"`
	RemoteDebugging bool `yaml:"remote_debugging" envconfig:"REMOTE_DEBUGGING"`

	ListenAddr       string `yaml:"listen_addr" envconfig:"LISTEN_ADDR"`
	MaxSessions      int64  `yaml:"max_sessions" envconfig:"MAX_SESSIONS"`
	SessionTimeout   int    `yaml:"session_timeout" envconfig:"SESSION_TIMEOUT"`
	RateLimitPerHour int    `yaml:"rate_limit_per_hour" envconfig:"RATE_LIMIT_PER_HOUR"`
	RateLimitBurst   int    `yaml:"rate_limit_burst" envconfig:"RATE_LIMIT_BURST"`

	DockerImage string `yaml:"docker_image" envconfig:"DOCKER_IMAGE"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		DataDir:  "./storage",
		Backend:  browser.BackendLocal,
		Headless: true,
		LogLevel: "info",

		NavigationTimeout: lifecycle.DefaultNavigationTimeout,
		GraceInterval:     lifecycle.DefaultGraceInterval,
		AssetWaitTimeout:  lifecycle.DefaultAssetWaitTimeout,
		AssetPattern:      lifecycle.DefaultAssetPattern,

		ViewportWidth:  lifecycle.DefaultViewportWidth,
		ViewportHeight: lifecycle.DefaultViewportHeight,

		ListenAddr:       ":8080",
		MaxSessions:      10,
		SessionTimeout:   session.DefaultTimeout,
		RateLimitPerHour: 100,
		RateLimitBurst:   10,

		DockerImage: browser.DefaultDockerImage,
	}
}

// Load builds the configuration. An empty path skips the YAML layer; a
// path that does not exist is an error.
func Load(fs afero.Fs, path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := afero.ReadFile(fs, path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	// .env only fills variables the environment does not already set
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting
func (c *Config) Validate() error {
	switch {
	case c.DataDir == "":
		return fmt.Errorf("data_dir must not be empty")
	case c.Backend != browser.BackendLocal && c.Backend != browser.BackendDocker:
		return fmt.Errorf("unknown backend %q", c.Backend)
	case c.NavigationTimeout <= 0:
		return fmt.Errorf("navigation_timeout must be positive")
	case c.GraceInterval < 0 || c.AssetWaitTimeout < 0:
		return fmt.Errorf("grace_interval and asset_wait_timeout must not be negative")
	case c.ViewportWidth <= 0 || c.ViewportHeight <= 0:
		return fmt.Errorf("viewport must be positive, got %dx%d", c.ViewportWidth, c.ViewportHeight)
	case c.MaxSessions <= 0:
		return fmt.Errorf("max_sessions must be positive")
	case c.RateLimitPerHour <= 0 || c.RateLimitBurst <= 0:
		return fmt.Errorf("rate limits must be positive")
	}
	if err := session.ValidateTimeout(c.SessionTimeout); err != nil {
		return fmt.Errorf("session_timeout: %w", err)
	}
	if _, err := regexp.Compile(c.AssetPattern); err != nil {
		return fmt.Errorf("invalid asset_pattern: %w", err)
	}
	return nil
}

// ContextsDir is where the base and session profiles live
func (c *Config) ContextsDir() string {
	return filepath.Join(c.DataDir, "contexts")
}

// ScreenshotsDir is where session screenshots are written
func (c *Config) ScreenshotsDir() string {
	return filepath.Join(c.DataDir, "screenshots")
}

// LifecycleOptions converts the settings into wrapper options
func (c *Config) LifecycleOptions() (lifecycle.Options, error) {
	pattern, err := regexp.Compile(c.AssetPattern)
	if err != nil {
		return lifecycle.Options{}, fmt.Errorf("invalid asset_pattern: %w", err)
	}
	return lifecycle.Options{
		Launch: browser.LaunchOptions{
			Headless: c.Headless,
			Viewport: &browser.Viewport{
				Width:  c.ViewportWidth,
				Height: c.ViewportHeight,
			},
			RemoteDebugging: c.RemoteDebugging,
			Timeout:         c.NavigationTimeout,
		},
		NavigationTimeout: c.NavigationTimeout,
		GraceInterval:     c.GraceInterval,
		AssetWaitTimeout:  c.AssetWaitTimeout,
		AssetPattern:      pattern,
	}, nil
}
