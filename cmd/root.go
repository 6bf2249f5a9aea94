// Package cmd implements the vpadmin command-line interface using Cobra.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gosub/vpadmin/internal/category"
	"github.com/gosub/vpadmin/internal/config"
	"github.com/gosub/vpadmin/internal/content"
	"github.com/gosub/vpadmin/internal/logging"
	"github.com/gosub/vpadmin/internal/metrics"
	"github.com/gosub/vpadmin/internal/nav"
	"github.com/gosub/vpadmin/internal/posts"
	"github.com/gosub/vpadmin/internal/registry"
	"github.com/gosub/vpadmin/internal/usage"
)

var rootCmd = &cobra.Command{
	Use:   "vpadmin",
	Short: "vpadmin – a local admin backend for a VitePress blog",
	Long: `vpadmin manages the Markdown posts of a VitePress blog, keeps the
category registry in sync with the directories on disk and regenerates the
navigation artifact the site's theme reads at build time.`,
	SilenceUsage: true,
}

var (
	rootDir    string
	configFile string
	logLevel   string
)

// Execute runs the root command and exits on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", ".", "project root (the directory holding docs/)")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default: <root>/"+config.FileName+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")
}

// app is the wired service graph shared by all subcommands.
type app struct {
	cfg        config.Config
	log        *zap.Logger
	metrics    *metrics.Metrics
	tree       *content.Tree
	registry   *registry.Store
	usage      *usage.Engine
	nav        *nav.Synchronizer
	posts      *posts.Service
	categories *category.Service
}

func loadApp() (*app, error) {
	cfg, err := config.Load(rootDir, configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return newApp(cfg), nil
}

func newApp(cfg config.Config) *app {
	log := logging.New(logging.Options{
		Level: cfg.LogLevel,
		File:  logFile(cfg),
		JSON:  cfg.LogJSON,
	})
	zap.ReplaceGlobals(log)

	m := metrics.New()
	tree := content.NewTree(cfg.Path(cfg.BlogDir), cfg.Path(cfg.TrashDir), log)
	reg := registry.NewStore(cfg.Path(cfg.Registry), log, m)
	eng := usage.New(tree, log, m)
	sync := nav.New(reg, eng, tree, cfg.Path(cfg.Nav), log, m)
	return &app{
		cfg:        cfg,
		log:        log,
		metrics:    m,
		tree:       tree,
		registry:   reg,
		usage:      eng,
		nav:        sync,
		posts:      posts.New(tree, reg, eng, sync, log),
		categories: category.New(tree, reg, eng, sync, log),
	}
}

func logFile(cfg config.Config) string {
	if cfg.LogFile == "" {
		return ""
	}
	return cfg.Path(cfg.LogFile)
}
