package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/warmcontext/internal/app"
	ctxmgr "github.com/shehryarbajwa/warmcontext/internal/context"
	"github.com/shehryarbajwa/warmcontext/internal/session"
	"github.com/shehryarbajwa/warmcontext/pkg/models"
)

func (c *cli) initCmd() *cobra.Command {
	var (
		url       string
		preflight bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create or refresh the base context",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if url == "" {
				url = c.config.TargetURL
			}
			if url == "" {
				return fmt.Errorf("no target URL: pass --url or set WARMCTX_TARGET_URL")
			}

			a, err := app.New(cmd.Context(), c.config, c.logger)
			if err != nil {
				return err
			}
			defer c.closeApp(a)

			result, err := a.Sessions.WarmBase(cmd.Context(), models.WarmBaseRequest{
				URL:       url,
				Backend:   c.config.Backend,
				Preflight: preflight,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Base context ready at %s\n", result.Path)
			fmt.Fprintf(out, "  size:   %s\n", result.Size)
			fmt.Fprintf(out, "  warmed: %s in %s\n", result.URL, time.Duration(result.ElapsedMillis)*time.Millisecond)
			if result.AssetDetected {
				fmt.Fprintf(out, "  asset:  %s\n", result.AssetURL)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "page to warm (defaults to the configured target URL)")
	cmd.Flags().BoolVar(&preflight, "preflight", false, "check the URL loads in a throwaway browser first")
	return cmd
}

func (c *cli) copyAndRunCmd() *cobra.Command {
	var (
		url  string
		keep bool
	)

	cmd := &cobra.Command{
		Use:   "copy-and-run",
		Short: "Copy the base context into a new session and open it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := app.OpenStore(c.config, c.logger)
			if err != nil {
				return err
			}
			if _, ok := store.BaseContext(); !ok {
				fmt.Fprintf(cmd.ErrOrStderr(), "No base context found at %s. Run `warmctx init` first.\n", store.BasePath())
				return session.ErrBaseContextMissing
			}
			if url == "" {
				url = c.config.TargetURL
			}

			a, err := app.New(cmd.Context(), c.config, c.logger)
			if err != nil {
				return err
			}
			defer c.closeApp(a)

			sess, err := a.Sessions.CreateSession(cmd.Context(), models.CreateSessionRequest{
				URL:     url,
				Backend: c.config.Backend,
				Timeout: session.MaxTimeout,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Session %s\n", sess.ID)
			fmt.Fprintf(out, "  context: %s (%s)\n", sess.ContextPath, ctxmgr.FormatByteCount(sess.SizeBytes))
			if url != "" {
				fmt.Fprintf(out, "  loaded:  %s in %s\n", sess.URL, time.Duration(sess.NavigationMillis)*time.Millisecond)
				fmt.Fprintf(out, "  title:   %s\n", sess.Title)

				if stats, err := a.Sessions.CacheStats(sess.ID); err != nil {
					c.logger.Warn("Could not read cache stats", zap.Error(err))
				} else {
					fmt.Fprintf(out, "  cache:   %d of %d resources served from cache\n", stats.FromCache, stats.Resources)
				}

				if _, err := a.Sessions.Screenshot(sess.ID); err != nil {
					c.logger.Warn("Could not take screenshot", zap.Error(err))
				} else {
					fmt.Fprintf(out, "  screenshot: %s\n", a.Sessions.ScreenshotPath(sess.ID))
				}
			}

			return a.Sessions.DeleteSession(sess.ID, keep)
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "page to open (defaults to the configured target URL)")
	cmd.Flags().BoolVar(&keep, "keep", true, "keep the session directory after the run")
	return cmd
}

func (c *cli) cleanCmd() *cobra.Command {
	var base bool

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove session contexts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := app.OpenStore(c.config, c.logger)
			if err != nil {
				return err
			}
			contexts, err := store.ListContexts()
			if err != nil {
				return err
			}

			removed := 0
			for _, entry := range contexts {
				if entry.Kind != models.KindSession {
					continue
				}
				if err := store.RemoveSession(entry.ID); err != nil {
					return err
				}
				removed++
			}
			if base {
				if err := store.RemoveBase(); err != nil {
					return err
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d session context(s)\n", removed)
			return nil
		},
	}

	cmd.Flags().BoolVar(&base, "base", false, "also remove the base context")
	return cmd
}

func (c *cli) exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <file>",
		Short: "Write the base context to a tar.gz archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := app.OpenStore(c.config, c.logger)
			if err != nil {
				return err
			}

			f, err := os.Create(args[0])
			if err != nil {
				return err
			}
			if err := store.ExportBase(f); err != nil {
				f.Close()
				os.Remove(args[0])
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Exported %s to %s\n", store.BasePath(), args[0])
			return nil
		},
	}
}

func (c *cli) importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the base context with a tar.gz archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := app.OpenStore(c.config, c.logger)
			if err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			if err := store.ImportBase(f); err != nil {
				return err
			}
			base, ok := store.BaseContext()
			if !ok {
				return session.ErrBaseContextMissing
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Imported base context (%s)\n", base.Size)
			return nil
		},
	}
}

func (c *cli) closeApp(a *app.App) {
	if err := a.Close(); err != nil {
		c.logger.Warn("Shutdown finished with errors", zap.Error(err))
	}
}
