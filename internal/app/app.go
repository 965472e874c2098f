// Package app wires configuration, browser drivers, the context store and the
// session manager into one runnable stack shared by the server and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/warmcontext/internal/browser"
	"github.com/shehryarbajwa/warmcontext/internal/config"
	ctxmgr "github.com/shehryarbajwa/warmcontext/internal/context"
	"github.com/shehryarbajwa/warmcontext/internal/session"
)

const imagePullTimeout = 5 * time.Minute

// App owns every long-lived component
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Store    *ctxmgr.Store
	Registry *browser.Registry
	Sessions *session.Manager

	runtime *browser.Runtime
}

// OpenStore opens the context store on the host filesystem
func OpenStore(cfg *config.Config, logger *zap.Logger) (*ctxmgr.Store, error) {
	store, err := ctxmgr.NewStore(afero.NewOsFs(), cfg.ContextsDir(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open context store: %w", err)
	}
	return store, nil
}

// New starts the browser runtime and builds the session manager on top of it
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	store, err := OpenStore(cfg, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("Context store ready", zap.String("root", store.Root()))

	opts, err := cfg.LifecycleOptions()
	if err != nil {
		return nil, err
	}

	runtime, err := browser.StartRuntime(logger)
	if err != nil {
		return nil, err
	}

	drivers := []browser.Driver{browser.NewLocalDriver(runtime, logger)}
	if cfg.Backend == browser.BackendDocker {
		docker, err := newDockerDriver(ctx, runtime, cfg.DockerImage, logger)
		if err != nil {
			_ = runtime.Stop()
			return nil, err
		}
		drivers = append(drivers, docker)
	}

	registry, err := browser.NewRegistry(drivers...)
	if err == nil {
		err = registry.SetDefault(cfg.Backend)
	}
	if err != nil {
		_ = runtime.Stop()
		return nil, err
	}
	logger.Info("Browser backends ready",
		zap.Strings("backends", registry.Backends()),
		zap.String("default", cfg.Backend))

	sessions := session.NewManager(store, registry, session.Config{
		MaxSessions:    cfg.MaxSessions,
		ScreenshotsDir: cfg.ScreenshotsDir(),
		Lifecycle:      opts,
		DefaultTimeout: cfg.SessionTimeout,
	}, logger)

	return &App{
		Config:   cfg,
		Logger:   logger,
		Store:    store,
		Registry: registry,
		Sessions: sessions,
		runtime:  runtime,
	}, nil
}

func newDockerDriver(ctx context.Context, runtime *browser.Runtime, image string, logger *zap.Logger) (*browser.DockerDriver, error) {
	docker, err := browser.NewDockerDriver(runtime, image, logger)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, imagePullTimeout)
	defer cancel()

	logger.Info("Ensuring browser image is available", zap.String("image", image))
	if err := docker.EnsureImage(ctx); err != nil {
		_ = docker.Close()
		return nil, fmt.Errorf("failed to ensure image %s: %w", image, err)
	}
	return docker, nil
}

// Close stops every session, then the drivers and the runtime
func (a *App) Close() error {
	return errors.Join(
		a.Sessions.Shutdown(),
		a.Registry.Close(),
		a.runtime.Stop(),
	)
}
