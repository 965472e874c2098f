package main

import (
	"fmt"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/warmcontext/internal/config"
	"github.com/shehryarbajwa/warmcontext/internal/logging"
)

// cli carries state shared by every subcommand
type cli struct {
	configPath string
	verbose    bool

	config *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	rootCmd := &cobra.Command{
		Use:   "warmctx",
		Short: "Warm a browser profile once, then run sessions on copies of it",
		Long: `warmctx keeps a "base" browser profile whose HTTP cache already holds a
site's large assets. Each session runs on a fresh copy of that profile, so it
starts with a warm cache.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(afero.NewOsFs(), c.configPath)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.LogLevel, c.verbose)
			if err != nil {
				return err
			}
			c.config = cfg
			c.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&c.configPath, "config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(
		c.initCmd(),
		c.copyAndRunCmd(),
		c.cleanCmd(),
		c.exportCmd(),
		c.importCmd(),
	)
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
