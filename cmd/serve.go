package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gosub/vpadmin/internal/api"
	"github.com/gosub/vpadmin/internal/auth"
	"github.com/gosub/vpadmin/internal/repo"
	"github.com/gosub/vpadmin/internal/site"
	"github.com/gosub/vpadmin/internal/ui"
	"github.com/gosub/vpadmin/internal/watch"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the admin web server",
	Long: `Start the local HTTP server that serves the admin web UI and JSON API.

Posts, categories and the navigation artifact are read from and written to
the project at --root. Open http://<host>:<port> in your browser to log in.`,
	RunE: runServe,
}

var (
	servePort  int
	serveHost  string
	serveWatch bool
)

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "HTTP port to listen on (default from config, 5174)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "address to bind (default from config, 127.0.0.1)")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "resync the nav when Markdown files change on disk")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.log.Sync() }()

	cfg := a.cfg
	if servePort != 0 {
		cfg.Port = servePort
	}
	if serveHost != "" {
		cfg.Host = serveHost
	}
	if serveWatch {
		cfg.Watch = true
	}
	if cfg.PasswordFallback {
		a.log.Warn("no admin password configured, using the built-in fallback; set ADMIN_PASSWORD")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A project without git still works; status and autocommit are disabled.
	var r *repo.Repo
	if opened, err := repo.Open(cfg.Root); err == nil {
		r = opened
		r.Author, r.Email = cfg.GitAuthor, cfg.GitEmail
		a.log.Info("git repository", zap.String("path", r.Path))
	} else {
		a.log.Info("no git repository, git status and autocommit disabled", zap.String("root", cfg.Root))
	}

	if cfg.Watch {
		w, err := watch.New(a.tree.BlogDir, func() {
			if res := a.nav.SafeSync(); res.OK {
				a.log.Info("nav resynced after file change")
			}
		}, a.log)
		if err != nil {
			a.log.Warn("file watcher disabled", zap.Error(err))
		} else {
			go w.Run(ctx)
		}
	}

	if res := a.nav.SafeSync(); !res.OK {
		a.log.Warn("initial nav sync failed", zap.String("error", res.Error))
	}

	srv := api.New(api.Options{
		Config:     cfg,
		Posts:      a.posts,
		Categories: a.categories,
		Nav:        a.nav,
		Auth:       auth.New(cfg.Password, cfg.SessionTTL, nil, a.log),
		Site:       site.New(cfg.Root, cfg.Path(cfg.DistDir), cfg.PreviewPort, cfg.BuildCommand, cfg.DeployCommand, cfg.CommandTimeout, a.log),
		Repo:       r,
		Metrics:    a.metrics,
		Log:        a.log,
	})
	return srv.ListenAndServe(ctx, ui.StaticFS)
}
