// Package api implements the vpadmin HTTP server and JSON API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gosub/vpadmin/internal/auth"
	"github.com/gosub/vpadmin/internal/category"
	"github.com/gosub/vpadmin/internal/config"
	"github.com/gosub/vpadmin/internal/errs"
	"github.com/gosub/vpadmin/internal/metrics"
	"github.com/gosub/vpadmin/internal/nav"
	"github.com/gosub/vpadmin/internal/posts"
	"github.com/gosub/vpadmin/internal/repo"
	"github.com/gosub/vpadmin/internal/site"
)

// Options holds the collaborators of a Server. Repo, Site and Metrics may be
// nil; the matching endpoints then degrade gracefully.
type Options struct {
	Config     config.Config
	Posts      *posts.Service
	Categories *category.Service
	Nav        *nav.Synchronizer
	Auth       *auth.Authenticator
	Site       *site.Runner
	Repo       *repo.Repo
	Metrics    *metrics.Metrics
	Log        *zap.Logger
}

// Server holds runtime state for the HTTP server.
type Server struct {
	cfg        config.Config
	posts      *posts.Service
	categories *category.Service
	nav        *nav.Synchronizer
	auth       *auth.Authenticator
	site       *site.Runner
	repo       *repo.Repo
	metrics    *metrics.Metrics
	log        *zap.Logger

	mu sync.Mutex // serializes mutating requests
}

// New creates a Server.
func New(opts Options) *Server {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		cfg:        opts.Config,
		posts:      opts.Posts,
		categories: opts.Categories,
		nav:        opts.Nav,
		auth:       opts.Auth,
		site:       opts.Site,
		repo:       opts.Repo,
		metrics:    opts.Metrics,
		log:        log,
	}
}

// Handler returns an http.Handler with all routes registered.
// staticFS is typically ui.StaticFS.
func (s *Server) Handler(staticFS fs.FS) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("POST /api/logout", s.handleLogout)

	mux.Handle("GET /api/status", s.authed(s.handleStatus))
	mux.Handle("GET /api/list", s.authed(s.handleList))
	mux.Handle("GET /api/preview", s.authed(s.handlePreview))
	mux.Handle("POST /api/new-local", s.mutating(s.handleNewLocal))
	mux.Handle("POST /api/promote", s.mutating(s.handlePromote))
	mux.Handle("POST /api/archive", s.mutating(s.handleArchive))
	mux.Handle("POST /api/republish", s.mutating(s.handleRepublish))
	mux.Handle("POST /api/remove", s.mutating(s.handleRemove))
	mux.Handle("POST /api/update-meta", s.mutating(s.handleUpdateMeta))

	mux.Handle("GET /api/trash", s.authed(s.handleTrash))
	mux.Handle("POST /api/trash/restore", s.mutating(s.handleTrashRestore))
	mux.Handle("POST /api/trash/delete", s.mutating(s.handleTrashDelete))

	mux.Handle("GET /api/categories", s.authed(s.handleCategories))
	mux.Handle("GET /api/categories/usage", s.authed(s.handleCategoryUsage))
	mux.Handle("POST /api/categories", s.mutating(s.handleCreateCategory))
	mux.Handle("POST /api/categories/update", s.mutating(s.handleUpdateCategory))
	mux.Handle("POST /api/categories/toggle", s.mutating(s.handleToggleCategory))
	mux.Handle("POST /api/categories/delete", s.mutating(s.handleDeleteCategory))
	mux.Handle("POST /api/categories/rewrite", s.mutating(s.handleRewriteCategory))
	mux.Handle("POST /api/categories/nav-sync", s.mutating(s.handleNavSync))
	mux.Handle("GET /api/nav", s.authed(s.handleNav))

	mux.Handle("POST /api/build", s.mutating(s.handleBuild))
	mux.Handle("POST /api/preview-site", s.authed(s.handlePreviewSite))
	mux.Handle("POST /api/deploy", s.mutating(s.handleDeploy))

	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	mux.Handle("/", http.FileServer(http.FS(staticFS)))
	return s.instrument(mux)
}

// ListenAndServe serves on the configured address until ctx is cancelled,
// then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, staticFS fs.FS) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.Handler(staticFS),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.log.Info("vpadmin listening", zap.String("url", "http://"+s.cfg.Addr()), zap.String("root", s.cfg.Root))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ---- middleware ------------------------------------------------------------

// authed rejects requests without a live session token.
func (s *Server) authed(h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.auth == nil || !s.auth.Verify(auth.TokenFromRequest(r)) {
			s.apiError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		h(w, r)
	})
}

// mutating is authed plus the server-wide write lock.
func (s *Server) mutating(h http.HandlerFunc) http.Handler {
	return s.authed(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		h(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		s.metrics.Request(route, rec.code)
		if rec.code >= http.StatusInternalServerError {
			s.log.Error("request failed", zap.String("route", route), zap.Int("code", rec.code))
		}
	})
}

// ---- helpers ---------------------------------------------------------------

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("write response", zap.Error(err))
	}
}

// readJSON decodes the request body into v. An empty body leaves v untouched.
func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (s *Server) apiError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, ErrorResponse{Error: msg})
}

// fail maps a service error to its HTTP status.
func (s *Server) fail(w http.ResponseWriter, err error) {
	var (
		verr   *errs.Validation
		cerr   *errs.Conflict
		nerr   *errs.NotFound
		inUse  *errs.InUse
		cmdErr *site.CommandError
	)
	switch {
	case errors.As(err, &inUse):
		s.writeJSON(w, http.StatusConflict, ErrorResponse{Error: inUse.Msg, Checklist: inUse.Checklist})
	case errors.As(err, &verr):
		s.apiError(w, http.StatusBadRequest, verr.Msg)
	case errors.As(err, &cerr):
		s.apiError(w, http.StatusConflict, cerr.Msg)
	case errors.As(err, &nerr):
		s.apiError(w, http.StatusNotFound, nerr.Msg)
	case errors.As(err, &cmdErr):
		s.writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Out: cmdErr.Out, Err: cmdErr.Err})
	default:
		s.log.Error("request error", zap.Error(err))
		s.apiError(w, http.StatusInternalServerError, err.Error())
	}
}

// commit records a mutation in git when autocommit is on. Failures are
// logged and never fail the request.
func (s *Server) commit(message string) {
	if s.repo == nil || !s.cfg.AutoCommit {
		return
	}
	hash, err := s.repo.CommitAll(message)
	if err != nil {
		s.log.Warn("autocommit failed", zap.String("message", message), zap.Error(err))
		return
	}
	if hash != "" {
		s.log.Info("autocommit", zap.String("hash", hash), zap.String("message", message))
	}
}
