// Package category implements the category admin operations on top of the
// registry, the usage engine and the content tree.
package category

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/gosub/vpadmin/internal/content"
	"github.com/gosub/vpadmin/internal/errs"
	"github.com/gosub/vpadmin/internal/frontmatter"
	"github.com/gosub/vpadmin/internal/nav"
	"github.com/gosub/vpadmin/internal/registry"
	"github.com/gosub/vpadmin/internal/usage"
)

// Issues reported for a category in the listing.
const (
	IssueMissingDir   = "missing-dir"
	IssueMissingIndex = "missing-index"
	IssueUnpublished  = "unpublished"
	IssueMenuDisabled = "menu-disabled"
	IssueUnused       = "unused"
)

// Service performs category operations. Every mutation resyncs the nav.
type Service struct {
	Tree     *content.Tree
	Registry *registry.Store
	Usage    *usage.Engine
	Nav      *nav.Synchronizer
	Log      *zap.Logger
}

// New returns a Service.
func New(tree *content.Tree, reg *registry.Store, eng *usage.Engine, sync *nav.Synchronizer, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{Tree: tree, Registry: reg, Usage: eng, Nav: sync, Log: log}
}

// Summary is one registry entry with its diagnostics.
type Summary struct {
	registry.Entry
	Exists       bool     `json:"exists"`
	HasIndex     bool     `json:"hasIndex"`
	Total        int      `json:"total"`
	Published    int      `json:"published"`
	LatestPostAt string   `json:"latestPostAt,omitempty"`
	LatestRel    string   `json:"latestRel,omitempty"`
	Issues       []string `json:"issues"`
}

// Listing is the category overview.
type Listing struct {
	Version   int            `json:"version"`
	UpdatedAt string         `json:"updatedAt"`
	Items     []Summary      `json:"items"`
	Orphans   []usage.Orphan `json:"orphans"`
}

// Result is returned by mutating operations.
type Result struct {
	Entry   *registry.Entry      `json:"entry,omitempty"`
	Rewrite *usage.RewriteResult `json:"rewrite,omitempty"`
	Removed bool                 `json:"removed,omitempty"`
	Trashed string               `json:"trashed,omitempty"`
	Kept    []string             `json:"kept,omitempty"`
	Summary string               `json:"summary,omitempty"`
	Nav     nav.SafeResult       `json:"nav"`
}

// List returns every registered category with usage stats and issues, plus
// the orphan titles found only in posts.
func (s *Service) List() (Listing, error) {
	reg, err := s.Registry.Load()
	if err != nil {
		return Listing{}, err
	}
	overview, err := s.Usage.Overview()
	if err != nil {
		return Listing{}, err
	}

	out := Listing{
		Version:   reg.Version,
		UpdatedAt: reg.UpdatedAt,
		Items:     make([]Summary, 0, len(reg.Items)),
		Orphans:   usage.Orphans(overview, reg.Items),
	}
	for _, e := range reg.Items {
		sum := Summary{Entry: e, Issues: []string{}}
		abs := s.dirPath(e.Dir)
		sum.Exists = content.IsDir(abs)
		sum.HasIndex = sum.Exists && content.Exists(filepath.Join(abs, "index.md"))
		if b := overview[e.Title]; b != nil {
			sum.Total, sum.Published = b.Total, b.Published
			if b.LatestAny != nil {
				sum.LatestPostAt, sum.LatestRel = b.LatestAny.At, b.LatestAny.Rel
			}
		}

		if !sum.Exists {
			sum.Issues = append(sum.Issues, IssueMissingDir)
		} else if !sum.HasIndex {
			sum.Issues = append(sum.Issues, IssueMissingIndex)
		}
		if !e.Publish {
			sum.Issues = append(sum.Issues, IssueUnpublished)
		}
		if !e.MenuEnabled {
			sum.Issues = append(sum.Issues, IssueMenuDisabled)
		}
		if sum.Total == 0 {
			sum.Issues = append(sum.Issues, IssueUnused)
		}
		out.Items = append(out.Items, sum)
	}
	return out, nil
}

// CreateRequest describes a new category.
type CreateRequest struct {
	Title       string `json:"title"`
	Dir         string `json:"dir"`
	MenuLabel   string `json:"menuLabel"`
	Publish     *bool  `json:"publish"`
	MenuEnabled *bool  `json:"menuEnabled"`
	MenuOrder   *int   `json:"menuOrder"`
	CreateDir   *bool  `json:"createDir"`
}

// Create registers a category and, unless CreateDir is false, creates its
// directory with an index page.
func (s *Service) Create(req CreateRequest) (Result, error) {
	title := strings.TrimSpace(req.Title)
	dir := content.NormalizeDir(req.Dir)
	if title == "" || dir == "" {
		return Result{}, errs.Validationf("title and dir are required")
	}
	if e, err := s.Registry.FindByDir(dir); err != nil {
		return Result{}, err
	} else if e != nil {
		return Result{}, errs.Conflictf("directory %q is already registered to %q", dir, e.Title)
	}
	if e, err := s.Registry.FindByTitle(title); err != nil {
		return Result{}, err
	} else if e != nil {
		return Result{}, errs.Conflictf("title %q is already used by %q", title, e.Dir)
	}

	publish := true
	if req.Publish != nil {
		publish = *req.Publish
	}
	menuEnabled := publish
	if req.MenuEnabled != nil {
		menuEnabled = *req.MenuEnabled
	}

	if req.CreateDir == nil || *req.CreateDir {
		if err := s.createDir(dir, title, publish); err != nil {
			return Result{}, err
		}
	}

	label := strings.TrimSpace(req.MenuLabel)
	e, err := s.Registry.Upsert(dir, registry.Patch{
		Title:       &title,
		MenuLabel:   &label,
		Publish:     &publish,
		MenuEnabled: &menuEnabled,
		MenuOrder:   req.MenuOrder,
	})
	if err != nil {
		return Result{}, err
	}
	s.Log.Info("created category", zap.String("dir", dir), zap.String("title", title))
	return s.done(Result{Entry: e}), nil
}

func (s *Service) createDir(dir, title string, publish bool) error {
	abs := s.dirPath(dir)
	if !content.Within(s.Tree.BlogDir, abs) {
		return errs.Validationf("directory %q escapes the blog root", dir)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	index := filepath.Join(abs, "index.md")
	if content.Exists(index) {
		return nil
	}
	head, err := frontmatter.Render(frontmatter.Set("title", title), frontmatter.Set("publish", publish))
	if err != nil {
		return err
	}
	return content.WriteFile(index, []byte(head+"\n# "+title+"\n"))
}

// UpdateRequest changes an existing category, identified by Dir.
type UpdateRequest struct {
	Dir         string  `json:"dir"`
	NewDir      *string `json:"newDir"`
	Title       *string `json:"title"`
	MenuLabel   *string `json:"menuLabel"`
	Publish     *bool   `json:"publish"`
	MenuEnabled *bool   `json:"menuEnabled"`
	MenuOrder   *int    `json:"menuOrder"`
	Rewrite     *bool   `json:"rewrite"`
}

// Update applies req. Moving the directory moves it on disk; renaming the
// title rewrites every post that references the old title unless Rewrite is
// false.
func (s *Service) Update(req UpdateRequest) (Result, error) {
	dir := content.NormalizeDir(req.Dir)
	cur, err := s.Registry.FindByDir(dir)
	if err != nil {
		return Result{}, err
	}
	if cur == nil {
		return Result{}, errs.NotFoundf("category %q not found", req.Dir)
	}
	// Validate everything before touching the disk or the registry.
	newDir := dir
	if req.NewDir != nil {
		newDir = content.NormalizeDir(*req.NewDir)
		if newDir == "" {
			return Result{}, errs.Validationf("invalid directory %q", *req.NewDir)
		}
		if newDir != dir {
			if e, err := s.Registry.FindByDir(newDir); err != nil {
				return Result{}, err
			} else if e != nil {
				return Result{}, errs.Conflictf("directory %q is already registered to %q", newDir, e.Title)
			}
			if err := s.checkMove(newDir); err != nil {
				return Result{}, err
			}
		}
	}
	newTitle := cur.Title
	if req.Title != nil {
		newTitle = strings.TrimSpace(*req.Title)
		if newTitle == "" {
			return Result{}, errs.Validationf("title cannot be empty")
		}
		if newTitle != cur.Title {
			if e, err := s.Registry.FindByTitle(newTitle); err != nil {
				return Result{}, err
			} else if e != nil {
				return Result{}, errs.Conflictf("title %q is already used by %q", newTitle, e.Dir)
			}
		}
	}

	var res Result
	if newDir != dir {
		if err := s.moveDir(dir, newDir); err != nil {
			return Result{}, err
		}
		if e, err := s.Registry.RenameDir(dir, newDir); err != nil {
			return Result{}, err
		} else if e == nil {
			return Result{}, errs.Conflictf("directory %q is already registered", newDir)
		}
		dir = newDir
	}

	if newTitle != cur.Title {
		index := filepath.Join(s.dirPath(dir), "index.md")
		if req.Rewrite == nil || *req.Rewrite {
			rw, err := s.Usage.Rewrite(usage.RewriteOptions{
				From:    cur.Title,
				To:      newTitle,
				Mode:    usage.ModeRename,
				Exclude: []string{index},
			})
			if err != nil {
				return Result{}, err
			}
			res.Rewrite = &rw
		}
		if err := s.editIndex(index, frontmatter.Set("title", newTitle)); err != nil {
			return Result{}, err
		}
		if _, err := s.Registry.RenameTitle(cur.Title, newTitle); err != nil {
			return Result{}, err
		}
	}

	if req.Publish != nil {
		if err := s.editIndex(filepath.Join(s.dirPath(dir), "index.md"), frontmatter.Set("publish", *req.Publish)); err != nil {
			return Result{}, err
		}
	}
	e, err := s.Registry.Upsert(dir, registry.Patch{
		MenuLabel:   req.MenuLabel,
		Publish:     req.Publish,
		MenuEnabled: req.MenuEnabled,
		MenuOrder:   req.MenuOrder,
	})
	if err != nil {
		return Result{}, err
	}
	res.Entry = e
	return s.done(res), nil
}

// checkMove reports why a category directory cannot be moved to to.
func (s *Service) checkMove(to string) error {
	dst := s.dirPath(to)
	if !content.Within(s.Tree.BlogDir, dst) {
		return errs.Validationf("directory %q escapes the blog root", to)
	}
	if content.Exists(dst) {
		return errs.Conflictf("directory %q already exists", to)
	}
	return nil
}

func (s *Service) moveDir(from, to string) error {
	if err := s.checkMove(to); err != nil {
		return err
	}
	src, dst := s.dirPath(from), s.dirPath(to)
	if !content.IsDir(src) {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create parent of %s: %w", to, err)
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("move %s to %s: %w", from, to, err)
	}
	s.Log.Info("moved category directory", zap.String("from", from), zap.String("to", to))
	return nil
}

// editIndex updates the category index page when there is one.
func (s *Service) editIndex(index string, fields ...frontmatter.Field) error {
	data, err := os.ReadFile(index)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", index, err)
	}
	out, err := frontmatter.Update(string(data), fields...)
	if err == frontmatter.ErrNoFrontmatter {
		return nil
	}
	if err != nil {
		return err
	}
	return content.WriteFile(index, []byte(out))
}

// Toggle flips or sets a boolean field. field is "publish" or "menuEnabled"
// ("menu" is accepted too). A nil value flips the current state.
func (s *Service) Toggle(dir, field string, value *bool) (Result, error) {
	cur, err := s.Registry.FindByDir(dir)
	if err != nil {
		return Result{}, err
	}
	if cur == nil {
		return Result{}, errs.NotFoundf("category %q not found", dir)
	}
	var patch registry.Patch
	switch field {
	case "publish":
		v := !cur.Publish
		if value != nil {
			v = *value
		}
		patch.Publish = &v
		if err := s.editIndex(filepath.Join(s.dirPath(cur.Dir), "index.md"), frontmatter.Set("publish", v)); err != nil {
			return Result{}, err
		}
	case "menu", "menuEnabled":
		v := !cur.MenuEnabled
		if value != nil {
			v = *value
		}
		patch.MenuEnabled = &v
	default:
		return Result{}, errs.Validationf("unknown field %q", field)
	}
	e, err := s.Registry.Upsert(cur.Dir, patch)
	if err != nil {
		return Result{}, err
	}
	return s.done(Result{Entry: e}), nil
}

// Delete unregisters a category. It is refused while posts reference the
// title. A hard delete also removes the directory when it is empty, or holds
// nothing but its index page (which goes to the trash).
func (s *Service) Delete(dir string, hard bool) (Result, error) {
	cur, err := s.Registry.FindByDir(dir)
	if err != nil {
		return Result{}, err
	}
	if cur == nil {
		return Result{}, errs.NotFoundf("category %q not found", dir)
	}
	u, err := s.Usage.Collect(cur.Title)
	if err != nil {
		return Result{}, err
	}
	indexRel := cur.Dir + "/index.md"
	if err := usage.Guard(u, cur.Dir, indexRel); err != nil {
		return Result{}, err
	}

	var res Result
	if hard {
		if err := s.removeDir(cur.Dir, &res); err != nil {
			return Result{}, err
		}
	}
	if _, err := s.Registry.RemoveByDir(cur.Dir); err != nil {
		return Result{}, err
	}
	res.Removed = true
	s.Log.Info("deleted category", zap.String("dir", cur.Dir), zap.Bool("hard", hard))
	return s.done(res), nil
}

func (s *Service) removeDir(dir string, res *Result) error {
	abs := s.dirPath(dir)
	entries, err := os.ReadDir(abs)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", dir, err)
	}
	if len(entries) == 1 && !entries[0].IsDir() && entries[0].Name() == "index.md" {
		name, err := s.Tree.MoveToTrash(filepath.Join(abs, "index.md"))
		if err != nil {
			return err
		}
		res.Trashed = name
		entries = nil
	}
	if len(entries) > 0 {
		for _, e := range entries {
			res.Kept = append(res.Kept, e.Name())
		}
		return nil
	}
	if err := os.Remove(abs); err != nil {
		return fmt.Errorf("remove %s: %w", dir, err)
	}
	return nil
}

// RewriteRequest renames or removes a category title across all posts.
type RewriteRequest struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Mode   string `json:"mode"`
	DryRun bool   `json:"dryRun"`
}

// Rewrite runs a bulk rewrite and, unless it is a dry run, renames or
// removes the registry entry to match.
func (s *Service) Rewrite(req RewriteRequest) (Result, error) {
	from := strings.TrimSpace(req.From)
	if from == "" {
		return Result{}, errs.Validationf("from is required")
	}
	mode := req.Mode
	if mode == "" {
		mode = usage.ModeRename
	}
	to := strings.TrimSpace(req.To)
	if mode == usage.ModeRename && to == "" {
		return Result{}, errs.Validationf("to is required for rename")
	}

	rw, err := s.Usage.Rewrite(usage.RewriteOptions{From: from, To: to, Mode: mode, DryRun: req.DryRun})
	if err != nil {
		return Result{}, err
	}
	res := Result{Rewrite: &rw}
	if req.DryRun {
		res.Summary = fmt.Sprintf("%d file(s) would be updated", rw.Updated)
		return res, nil
	}

	switch mode {
	case usage.ModeRename:
		e, err := s.Registry.RenameTitle(from, to)
		if err != nil {
			return Result{}, err
		}
		res.Entry = e
	case usage.ModeRemove:
		if _, err := s.Registry.RemoveByTitle(from); err != nil {
			return Result{}, err
		}
	}
	res.Summary = fmt.Sprintf("%d file(s) updated", rw.Updated)
	if len(rw.Failed) > 0 {
		res.Summary += fmt.Sprintf(", %d failed", len(rw.Failed))
	}
	return s.done(res), nil
}

// UsageOf returns the posts that reference title.
func (s *Service) UsageOf(title string) (usage.Usage, error) {
	return s.Usage.Collect(title)
}

// SyncNav regenerates the nav artifact.
func (s *Service) SyncNav() nav.SafeResult { return s.Nav.SafeSync() }

func (s *Service) dirPath(dir string) string {
	return filepath.Join(s.Tree.BlogDir, filepath.FromSlash(dir))
}

func (s *Service) done(res Result) Result {
	res.Nav = s.Nav.SafeSync()
	return res
}
