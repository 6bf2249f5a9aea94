package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gosub/vpadmin/internal/api"
	"github.com/gosub/vpadmin/internal/auth"
	"github.com/gosub/vpadmin/internal/category"
	"github.com/gosub/vpadmin/internal/config"
	"github.com/gosub/vpadmin/internal/content"
	"github.com/gosub/vpadmin/internal/metrics"
	"github.com/gosub/vpadmin/internal/nav"
	"github.com/gosub/vpadmin/internal/posts"
	"github.com/gosub/vpadmin/internal/registry"
	"github.com/gosub/vpadmin/internal/site"
	"github.com/gosub/vpadmin/internal/ui"
	"github.com/gosub/vpadmin/internal/usage"
)

const password = "s3cret"

type fixture struct {
	srv     *api.Server
	handler http.Handler
	cfg     config.Config
	token   string
}

// setupBlog creates a blog fixture with one registered category and one
// published post, and returns a logged-in fixture.
func setupBlog(t *testing.T, withSite bool) *fixture {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default(root)
	cfg.Password = password

	blog := cfg.Path(cfg.BlogDir)
	writeFile(t, filepath.Join(blog, "tech", "index.md"), "---\ntitle: Tech\npublish: true\n---\n")
	writeFile(t, filepath.Join(blog, "tech", "hello.md"),
		"---\ntitle: Hello\ndate: 2024/01/01 00:00:00\ncategories: [Tech]\npublish: true\n---\n# Hello\n")

	m := metrics.New()
	tree := content.NewTree(blog, cfg.Path(cfg.TrashDir), nil)
	reg := registry.NewStore(cfg.Path(cfg.Registry), nil, m)
	title := "Tech"
	if _, err := reg.Upsert("tech", registry.Patch{Title: &title}); err != nil {
		t.Fatal(err)
	}
	eng := usage.New(tree, nil, m)
	sync := nav.New(reg, eng, tree, cfg.Path(cfg.Nav), nil, m)

	opts := api.Options{
		Config:     cfg,
		Posts:      posts.New(tree, reg, eng, sync, nil),
		Categories: category.New(tree, reg, eng, sync, nil),
		Nav:        sync,
		Auth:       auth.New(cfg.Password, time.Hour, nil, nil),
		Metrics:    m,
	}
	if withSite {
		r := site.New(root, cfg.Path(cfg.DistDir), cfg.PreviewPort, cfg.BuildCommand, cfg.DeployCommand, time.Minute, nil)
		r.Run = func(_ context.Context, _ string, args []string) (site.Output, error) {
			return site.Output{Out: "ran " + strings.Join(args, " ")}, nil
		}
		r.Start = func(string, []string) error { return nil }
		opts.Site = r
	}
	srv := api.New(opts)
	f := &fixture{srv: srv, handler: srv.Handler(ui.StaticFS), cfg: cfg}

	w := f.hitJSON(t, "POST", "/api/login", api.LoginRequest{Password: password})
	if w.Code != http.StatusOK {
		t.Fatalf("login: status %d body %s", w.Code, w.Body.String())
	}
	var login api.LoginResponse
	decodeJSON(t, w, &login)
	f.token = login.Token
	return f
}

func writeFile(t *testing.T, path, text string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatal(err)
	}
}

// hit sends an authenticated request through the server's handler and
// returns the recorder.
func (f *fixture) hit(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

// hitJSON sends an authenticated request with a JSON body.
func (f *fixture) hitJSON(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("Content-Type: got %q, want application/json", ct)
	}
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v\nbody: %s", err, w.Body.String())
	}
}

func expectCode(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status: got %d, want %d\nbody: %s", w.Code, want, w.Body.String())
	}
}

// ---- auth ------------------------------------------------------------------

func TestLoginRequired(t *testing.T) {
	f := setupBlog(t, false)
	token := f.token

	f.token = ""
	w := f.hit(t, "GET", "/api/list")
	expectCode(t, w, http.StatusUnauthorized)
	var e api.ErrorResponse
	decodeJSON(t, w, &e)
	if e.OK || e.Error == "" {
		t.Errorf("unexpected error body: %+v", e)
	}

	w = f.hitJSON(t, "POST", "/api/login", api.LoginRequest{Password: "wrong"})
	expectCode(t, w, http.StatusUnauthorized)

	f.token = token
	expectCode(t, f.hit(t, "GET", "/api/list"), http.StatusOK)

	expectCode(t, f.hit(t, "POST", "/api/logout"), http.StatusOK)
	expectCode(t, f.hit(t, "GET", "/api/list"), http.StatusUnauthorized)
}

// ---- status ----------------------------------------------------------------

func TestHandleStatus(t *testing.T) {
	f := setupBlog(t, false)
	w := f.hit(t, "GET", "/api/status")
	expectCode(t, w, http.StatusOK)
	var resp api.StatusResponse
	decodeJSON(t, w, &resp)
	if !resp.OK || resp.Root != f.cfg.Root {
		t.Errorf("unexpected status: %+v", resp)
	}
	if resp.Git != nil {
		t.Error("Git: expected nil without a repository")
	}
	if resp.PreviewPort != 4173 {
		t.Errorf("PreviewPort: got %d", resp.PreviewPort)
	}
}

// ---- posts -----------------------------------------------------------------

func TestPostLifecycle(t *testing.T) {
	f := setupBlog(t, false)

	w := f.hitJSON(t, "POST", "/api/new-local", posts.NewPost{Title: "Draft One", Categories: []string{"Tech"}})
	expectCode(t, w, http.StatusOK)
	var created api.PostResponse
	decodeJSON(t, w, &created)
	if created.Rel != "_local/draft-one.md" {
		t.Fatalf("Rel: got %q", created.Rel)
	}
	if !created.Nav.OK {
		t.Errorf("nav sync failed: %s", created.Nav.Error)
	}

	w = f.hitJSON(t, "POST", "/api/new-local", posts.NewPost{Title: "Draft One"})
	expectCode(t, w, http.StatusConflict)

	w = f.hitJSON(t, "POST", "/api/promote", api.PromoteRequest{Rel: created.Rel})
	expectCode(t, w, http.StatusOK)
	var promoted api.PostResponse
	decodeJSON(t, w, &promoted)
	if promoted.Rel != "tech/draft-one.md" {
		t.Errorf("promoted Rel: got %q", promoted.Rel)
	}

	w = f.hit(t, "GET", "/api/list")
	expectCode(t, w, http.StatusOK)
	var list api.ListResponse
	decodeJSON(t, w, &list)
	if len(list.Items) != 3 {
		t.Errorf("Items: got %d, want 3", len(list.Items))
	}

	w = f.hitJSON(t, "POST", "/api/archive", api.RefRequest{Rel: promoted.Rel})
	expectCode(t, w, http.StatusOK)

	patch := "New Title"
	w = f.hitJSON(t, "POST", "/api/update-meta", api.UpdateMetaRequest{Rel: promoted.Rel, Patch: posts.MetaPatch{Title: &patch}})
	expectCode(t, w, http.StatusOK)

	w = f.hit(t, "GET", "/api/preview?rel=tech/hello.md")
	expectCode(t, w, http.StatusOK)
	var p api.PreviewResponse
	decodeJSON(t, w, &p)
	if !strings.Contains(p.HTML, "<h1>Hello</h1>") {
		t.Errorf("HTML: got %q", p.HTML)
	}

	expectCode(t, f.hit(t, "GET", "/api/preview"), http.StatusBadRequest)
	expectCode(t, f.hit(t, "GET", "/api/preview?rel=nope"), http.StatusNotFound)
	expectCode(t, f.hitJSON(t, "POST", "/api/archive", api.RefRequest{}), http.StatusBadRequest)
}

func TestRemoveAndTrash(t *testing.T) {
	f := setupBlog(t, false)

	w := f.hitJSON(t, "POST", "/api/remove", api.RemoveRequest{Rel: "tech/hello.md"})
	expectCode(t, w, http.StatusOK)
	var removed api.PostResponse
	decodeJSON(t, w, &removed)
	if removed.Trashed == "" {
		t.Fatal("expected a trash name")
	}

	w = f.hit(t, "GET", "/api/trash")
	expectCode(t, w, http.StatusOK)
	var trash api.TrashResponse
	decodeJSON(t, w, &trash)
	if len(trash.Items) != 1 || trash.Items[0].Name != removed.Trashed {
		t.Fatalf("trash: got %+v", trash.Items)
	}

	w = f.hitJSON(t, "POST", "/api/trash/restore", api.TrashRequest{Name: removed.Trashed, Slug: "hello-again"})
	expectCode(t, w, http.StatusOK)
	var restored api.RestoreResponse
	decodeJSON(t, w, &restored)
	if restored.Rel != "_local/hello-again.md" {
		t.Errorf("restored Rel: got %q", restored.Rel)
	}

	expectCode(t, f.hitJSON(t, "POST", "/api/trash/delete", api.TrashRequest{Name: removed.Trashed}), http.StatusNotFound)
	expectCode(t, f.hitJSON(t, "POST", "/api/trash/delete", api.TrashRequest{Name: "../x"}), http.StatusBadRequest)
}

// ---- categories ------------------------------------------------------------

func TestCategoryEndpoints(t *testing.T) {
	f := setupBlog(t, false)

	w := f.hit(t, "GET", "/api/categories")
	expectCode(t, w, http.StatusOK)
	var list api.CategoriesResponse
	decodeJSON(t, w, &list)
	if len(list.Items) != 1 || list.Items[0].Title != "Tech" || list.Items[0].Total != 1 {
		t.Fatalf("Items: got %+v", list.Items)
	}

	w = f.hitJSON(t, "POST", "/api/categories", category.CreateRequest{Title: "Life", Dir: "life"})
	expectCode(t, w, http.StatusOK)
	var created api.CategoryResponse
	decodeJSON(t, w, &created)
	if created.Entry == nil || created.Entry.Dir != "life" {
		t.Fatalf("Entry: got %+v", created.Entry)
	}
	expectCode(t, f.hitJSON(t, "POST", "/api/categories", category.CreateRequest{Title: "Life", Dir: "life2"}), http.StatusConflict)
	expectCode(t, f.hitJSON(t, "POST", "/api/categories", category.CreateRequest{Dir: "x"}), http.StatusBadRequest)

	off := false
	w = f.hitJSON(t, "POST", "/api/categories/toggle", api.ToggleRequest{Dir: "life", Field: "menuEnabled", Value: &off})
	expectCode(t, w, http.StatusOK)

	w = f.hit(t, "GET", "/api/categories/usage?title=Tech")
	expectCode(t, w, http.StatusOK)
	var u api.UsageResponse
	decodeJSON(t, w, &u)
	if u.Total != 1 {
		t.Errorf("usage Total: got %d", u.Total)
	}
}

func TestDeleteCategoryGuard(t *testing.T) {
	f := setupBlog(t, false)

	w := f.hitJSON(t, "POST", "/api/categories/delete", api.DeleteCategoryRequest{Dir: "tech", Hard: true})
	expectCode(t, w, http.StatusConflict)
	var e struct {
		OK        bool            `json:"ok"`
		Error     string          `json:"error"`
		Checklist usage.Checklist `json:"checklist"`
	}
	decodeJSON(t, w, &e)
	if e.Checklist.Total != 1 || e.Checklist.JobEndpoint != usage.RewriteEndpoint {
		t.Fatalf("checklist: got %+v", e.Checklist)
	}

	w = f.hitJSON(t, "POST", "/api/categories/rewrite", category.RewriteRequest{From: "Tech", Mode: usage.ModeRemove, DryRun: true})
	expectCode(t, w, http.StatusOK)
	var dry api.CategoryResponse
	decodeJSON(t, w, &dry)
	if dry.Summary != "1 file(s) would be updated" {
		t.Errorf("Summary: got %q", dry.Summary)
	}

	expectCode(t, f.hitJSON(t, "POST", "/api/categories/rewrite", category.RewriteRequest{From: "Tech", Mode: usage.ModeRemove}), http.StatusOK)
	expectCode(t, f.hitJSON(t, "POST", "/api/categories/delete", api.DeleteCategoryRequest{Dir: "tech"}), http.StatusNotFound)
}

func TestUpdateCategoryRename(t *testing.T) {
	f := setupBlog(t, false)
	title := "Technology"
	w := f.hitJSON(t, "POST", "/api/categories/update", category.UpdateRequest{Dir: "tech", Title: &title})
	expectCode(t, w, http.StatusOK)
	var res api.CategoryResponse
	decodeJSON(t, w, &res)
	if res.Rewrite == nil || res.Rewrite.Updated != 1 {
		t.Fatalf("Rewrite: got %+v", res.Rewrite)
	}

	data, err := os.ReadFile(filepath.Join(f.cfg.Path(f.cfg.BlogDir), "tech", "hello.md"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "categories: [Technology]") {
		t.Errorf("post not rewritten:\n%s", data)
	}
	expectCode(t, f.hitJSON(t, "POST", "/api/categories/update", category.UpdateRequest{}), http.StatusBadRequest)
}

// ---- nav -------------------------------------------------------------------

func TestNavSyncAndRead(t *testing.T) {
	f := setupBlog(t, false)

	w := f.hit(t, "POST", "/api/categories/nav-sync")
	expectCode(t, w, http.StatusOK)
	var res nav.SafeResult
	decodeJSON(t, w, &res)
	if !res.OK || len(res.Items) != 1 {
		t.Fatalf("nav sync: got %+v", res)
	}
	if res.Items[0].Link != "/blog/tech/hello" {
		t.Errorf("Link: got %q", res.Items[0].Link)
	}

	w = f.hit(t, "GET", "/api/nav")
	expectCode(t, w, http.StatusOK)
	var art api.NavResponse
	decodeJSON(t, w, &art)
	if len(art.Items) != 1 || art.Items[0].Category != "Tech" {
		t.Errorf("artifact: got %+v", art.Items)
	}
}

// ---- site ------------------------------------------------------------------

func TestSiteCommands(t *testing.T) {
	f := setupBlog(t, false)
	expectCode(t, f.hit(t, "POST", "/api/build"), http.StatusServiceUnavailable)

	f = setupBlog(t, true)
	w := f.hit(t, "POST", "/api/build")
	expectCode(t, w, http.StatusOK)
	var out api.CommandResponse
	decodeJSON(t, w, &out)
	if out.Out != "ran npx vitepress build docs" {
		t.Errorf("Out: got %q", out.Out)
	}

	w = f.hit(t, "POST", "/api/preview-site")
	expectCode(t, w, http.StatusOK)
	decodeJSON(t, w, &out)
	if out.URL != "http://127.0.0.1:4173" {
		t.Errorf("URL: got %q", out.URL)
	}

	expectCode(t, f.hit(t, "POST", "/api/deploy"), http.StatusOK)
}

// ---- metrics and static ----------------------------------------------------

func TestMetricsAndStatic(t *testing.T) {
	f := setupBlog(t, false)
	f.hit(t, "GET", "/api/list")

	w := f.hit(t, "GET", "/metrics")
	expectCode(t, w, http.StatusOK)
	body := w.Body.String()
	if !strings.Contains(body, `vpadmin_http_requests_total{code="200",route="GET /api/list"}`) {
		t.Errorf("request counter missing from metrics:\n%s", body)
	}

	f.token = ""
	w = f.hit(t, "GET", "/")
	expectCode(t, w, http.StatusOK)
	if !strings.Contains(w.Body.String(), "<html") {
		t.Error("index.html not served")
	}
}
