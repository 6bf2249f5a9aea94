package api

import (
	"errors"
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/gosub/vpadmin/internal/auth"
	"github.com/gosub/vpadmin/internal/category"
	"github.com/gosub/vpadmin/internal/posts"
)

// ---- auth ------------------------------------------------------------------

// POST /api/login
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := readJSON(r, &req); err != nil {
		s.apiError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if s.auth == nil {
		s.apiError(w, http.StatusServiceUnavailable, "auth not configured")
		return
	}
	sess, err := s.auth.Login(clientIP(r), req.Password)
	switch {
	case errors.Is(err, auth.ErrRateLimited):
		s.apiError(w, http.StatusTooManyRequests, err.Error())
		return
	case err != nil:
		s.apiError(w, http.StatusUnauthorized, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, LoginResponse{OK: true, Token: sess.Token, TTL: s.auth.TTL.Milliseconds()})
}

// POST /api/logout
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if s.auth != nil {
		s.auth.Logout(auth.TokenFromRequest(r))
	}
	s.writeJSON(w, http.StatusOK, OKResponse{OK: true})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// GET /api/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		OK:               true,
		Root:             s.cfg.Root,
		BlogDir:          s.cfg.Path(s.cfg.BlogDir),
		PreviewPort:      s.cfg.PreviewPort,
		PasswordFallback: s.cfg.PasswordFallback,
		Watch:            s.cfg.Watch,
		AutoCommit:       s.cfg.AutoCommit,
	}
	if s.repo != nil {
		if st, err := s.repo.Status(); err == nil {
			resp.Git = &st
		} else {
			s.log.Warn("git status", zap.Error(err))
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// ---- posts -----------------------------------------------------------------

// GET /api/list
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	items, err := s.posts.List()
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ListResponse{OK: true, Items: items})
}

// GET /api/preview?rel=
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	rel := r.URL.Query().Get("rel")
	if rel == "" {
		s.apiError(w, http.StatusBadRequest, "rel is required")
		return
	}
	p, err := s.posts.Preview(rel)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, PreviewResponse{OK: true, Preview: p})
}

// POST /api/new-local
func (s *Server) handleNewLocal(w http.ResponseWriter, r *http.Request) {
	var req posts.NewPost
	if err := readJSON(r, &req); err != nil {
		s.apiError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	s.postResult(w, "new draft", func() (posts.Result, error) { return s.posts.NewLocal(req) })
}

// POST /api/promote
func (s *Server) handlePromote(w http.ResponseWriter, r *http.Request) {
	var req PromoteRequest
	if !s.readRef(w, r, &req, &req.Rel) {
		return
	}
	s.postResult(w, "promote "+req.Rel, func() (posts.Result, error) { return s.posts.Promote(req.Rel, req.SetDate) })
}

// POST /api/archive
func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	var req RefRequest
	if !s.readRef(w, r, &req, &req.Rel) {
		return
	}
	s.postResult(w, "archive "+req.Rel, func() (posts.Result, error) { return s.posts.Archive(req.Rel) })
}

// POST /api/republish
func (s *Server) handleRepublish(w http.ResponseWriter, r *http.Request) {
	var req RefRequest
	if !s.readRef(w, r, &req, &req.Rel) {
		return
	}
	s.postResult(w, "republish "+req.Rel, func() (posts.Result, error) { return s.posts.Republish(req.Rel) })
}

// POST /api/remove
func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	var req RemoveRequest
	if !s.readRef(w, r, &req, &req.Rel) {
		return
	}
	s.postResult(w, "remove "+req.Rel, func() (posts.Result, error) { return s.posts.Remove(req.Rel, req.Hard) })
}

// POST /api/update-meta
func (s *Server) handleUpdateMeta(w http.ResponseWriter, r *http.Request) {
	var req UpdateMetaRequest
	if !s.readRef(w, r, &req, &req.Rel) {
		return
	}
	s.postResult(w, "update "+req.Rel, func() (posts.Result, error) { return s.posts.UpdateMeta(req.Rel, req.Patch) })
}

// readRef decodes a request that must name a post in *rel.
func (s *Server) readRef(w http.ResponseWriter, r *http.Request, v any, rel *string) bool {
	if err := readJSON(r, v); err != nil {
		s.apiError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	*rel = strings.TrimSpace(*rel)
	if *rel == "" {
		s.apiError(w, http.StatusBadRequest, "rel is required")
		return false
	}
	return true
}

func (s *Server) postResult(w http.ResponseWriter, action string, op func() (posts.Result, error)) {
	res, err := op()
	if err != nil {
		s.fail(w, err)
		return
	}
	s.commit("admin: " + action)
	s.writeJSON(w, http.StatusOK, PostResponse{OK: true, Result: res})
}

// ---- trash -----------------------------------------------------------------

// GET /api/trash
func (s *Server) handleTrash(w http.ResponseWriter, r *http.Request) {
	items, err := s.posts.Trash()
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, TrashResponse{OK: true, Items: items})
}

// POST /api/trash/restore
func (s *Server) handleTrashRestore(w http.ResponseWriter, r *http.Request) {
	var req TrashRequest
	if err := readJSON(r, &req); err != nil {
		s.apiError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Name == "" {
		s.apiError(w, http.StatusBadRequest, "name is required")
		return
	}
	res, err := s.posts.RestoreTrash(req.Name, req.Slug)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.commit("admin: restore " + req.Name)
	s.writeJSON(w, http.StatusOK, RestoreResponse{OK: true, Name: req.Name, Result: res})
}

// POST /api/trash/delete
func (s *Server) handleTrashDelete(w http.ResponseWriter, r *http.Request) {
	var req TrashRequest
	if err := readJSON(r, &req); err != nil {
		s.apiError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Name == "" {
		s.apiError(w, http.StatusBadRequest, "name is required")
		return
	}
	if err := s.posts.DeleteTrash(req.Name); err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, OKResponse{OK: true})
}

// ---- categories ------------------------------------------------------------

// GET /api/categories
func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	l, err := s.categories.List()
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, CategoriesResponse{OK: true, Listing: l})
}

// GET /api/categories/usage?title=
func (s *Server) handleCategoryUsage(w http.ResponseWriter, r *http.Request) {
	title := strings.TrimSpace(r.URL.Query().Get("title"))
	if title == "" {
		s.apiError(w, http.StatusBadRequest, "title is required")
		return
	}
	u, err := s.categories.UsageOf(title)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, UsageResponse{OK: true, Usage: u})
}

// POST /api/categories
func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req category.CreateRequest
	if err := readJSON(r, &req); err != nil {
		s.apiError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	s.categoryResult(w, "create category "+req.Title, func() (category.Result, error) { return s.categories.Create(req) })
}

// POST /api/categories/update
func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	var req category.UpdateRequest
	if err := readJSON(r, &req); err != nil {
		s.apiError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Dir) == "" {
		s.apiError(w, http.StatusBadRequest, "dir is required")
		return
	}
	s.categoryResult(w, "update category "+req.Dir, func() (category.Result, error) { return s.categories.Update(req) })
}

// POST /api/categories/toggle
func (s *Server) handleToggleCategory(w http.ResponseWriter, r *http.Request) {
	var req ToggleRequest
	if err := readJSON(r, &req); err != nil {
		s.apiError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Dir == "" {
		s.apiError(w, http.StatusBadRequest, "dir is required")
		return
	}
	s.categoryResult(w, "toggle "+req.Field+" of "+req.Dir, func() (category.Result, error) {
		return s.categories.Toggle(req.Dir, req.Field, req.Value)
	})
}

// POST /api/categories/delete
func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	var req DeleteCategoryRequest
	if err := readJSON(r, &req); err != nil {
		s.apiError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Dir == "" {
		s.apiError(w, http.StatusBadRequest, "dir is required")
		return
	}
	s.categoryResult(w, "delete category "+req.Dir, func() (category.Result, error) {
		return s.categories.Delete(req.Dir, req.Hard)
	})
}

// POST /api/categories/rewrite
func (s *Server) handleRewriteCategory(w http.ResponseWriter, r *http.Request) {
	var req category.RewriteRequest
	if err := readJSON(r, &req); err != nil {
		s.apiError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	res, err := s.categories.Rewrite(req)
	if err != nil {
		s.fail(w, err)
		return
	}
	if !req.DryRun {
		s.commit("admin: rewrite category " + req.From)
	}
	s.writeJSON(w, http.StatusOK, CategoryResponse{OK: true, Result: res})
}

func (s *Server) categoryResult(w http.ResponseWriter, action string, op func() (category.Result, error)) {
	res, err := op()
	if err != nil {
		s.fail(w, err)
		return
	}
	s.commit("admin: " + action)
	s.writeJSON(w, http.StatusOK, CategoryResponse{OK: true, Result: res})
}

// POST /api/categories/nav-sync
func (s *Server) handleNavSync(w http.ResponseWriter, r *http.Request) {
	res := s.nav.SafeSync()
	if !res.OK {
		s.writeJSON(w, http.StatusInternalServerError, res)
		return
	}
	s.commit("admin: sync nav")
	s.writeJSON(w, http.StatusOK, res)
}

// GET /api/nav
func (s *Server) handleNav(w http.ResponseWriter, r *http.Request) {
	art, err := s.nav.ReadArtifact()
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, NavResponse{OK: true, Artifact: art})
}

// ---- site ------------------------------------------------------------------

// POST /api/build
func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	if s.site == nil {
		s.apiError(w, http.StatusServiceUnavailable, "site commands not configured")
		return
	}
	out, err := s.site.Build(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, CommandResponse{OK: true, Out: out.Out})
}

// POST /api/preview-site
func (s *Server) handlePreviewSite(w http.ResponseWriter, r *http.Request) {
	if s.site == nil {
		s.apiError(w, http.StatusServiceUnavailable, "site commands not configured")
		return
	}
	url, err := s.site.Preview(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, CommandResponse{OK: true, URL: url})
}

// POST /api/deploy
func (s *Server) handleDeploy(w http.ResponseWriter, r *http.Request) {
	if s.site == nil {
		s.apiError(w, http.StatusServiceUnavailable, "site commands not configured")
		return
	}
	out, err := s.site.Deploy(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, CommandResponse{OK: true, Out: out.Out})
}
