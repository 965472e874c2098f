package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shehryarbajwa/warmcontext/internal/api"
	"github.com/shehryarbajwa/warmcontext/internal/app"
	"github.com/shehryarbajwa/warmcontext/internal/config"
	"github.com/shehryarbajwa/warmcontext/internal/logging"
	"github.com/shehryarbajwa/warmcontext/internal/proxy"
	"github.com/shehryarbajwa/warmcontext/internal/ratelimit"
)

const limiterPruneInterval = 10 * time.Minute

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:           "server",
	Short:         "Serve warm browser contexts over HTTP",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(afero.NewOsFs(), configPath)
		if err != nil {
			return err
		}

		logger, err := logging.New(cfg.LogLevel, verbose)
		if err != nil {
			return err
		}
		defer logger.Sync()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return serve(ctx, cfg, logger)
	},
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Starting warmcontext server")

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("Shutdown finished with errors", zap.Error(err))
		}
	}()

	proxyServer := proxy.NewServer(a.Sessions, logger)
	rateLimiter := ratelimit.NewLimiter(cfg.RateLimitPerHour, cfg.RateLimitBurst)

	sessionHandler := api.NewHandler(a.Sessions, logger)
	contextHandler := api.NewContextHandler(a.Sessions, cfg.TargetURL, logger)
	router := sessionHandler.SetupRoutes(contextHandler, proxyServer, rateLimiter)

	// Warming a base waits out navigation plus the grace and asset windows
	writeTimeout := cfg.NavigationTimeout + cfg.GraceInterval + cfg.AssetWaitTimeout + 15*time.Second

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Server listening",
			zap.String("addr", cfg.ListenAddr),
			zap.Int("rateLimitPerHour", cfg.RateLimitPerHour),
			zap.Int64("maxSessions", cfg.MaxSessions))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		ticker := time.NewTicker(limiterPruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if n := rateLimiter.Prune(time.Hour); n > 0 {
					logger.Debug("Pruned idle rate limit buckets", zap.Int("clients", n))
				}
			}
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server gracefully")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Server stopped cleanly")
	return nil
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
