// Package posts implements the lifecycle operations on individual Markdown
// posts: drafting, promotion, archiving, removal, metadata edits and the
// trash. Every mutation ends with a navigation resync.
package posts

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gosub/vpadmin/internal/content"
	"github.com/gosub/vpadmin/internal/errs"
	"github.com/gosub/vpadmin/internal/frontmatter"
	"github.com/gosub/vpadmin/internal/nav"
	"github.com/gosub/vpadmin/internal/registry"
	"github.com/gosub/vpadmin/internal/usage"
)

// Service wires the post operations to the content tree, registry and nav.
type Service struct {
	Tree     *content.Tree
	Registry *registry.Store
	Usage    *usage.Engine
	Nav      *nav.Synchronizer

	Now func() time.Time
	Log *zap.Logger
}

// New returns a Service.
func New(tree *content.Tree, reg *registry.Store, eng *usage.Engine, sync *nav.Synchronizer, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{Tree: tree, Registry: reg, Usage: eng, Nav: sync, Now: time.Now, Log: log}
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// Item is one row of the post listing.
type Item struct {
	Slug        string       `json:"slug"`
	Rel         string       `json:"rel"`
	Path        string       `json:"path"`
	Title       string       `json:"title"`
	Date        string       `json:"date"`
	Description string       `json:"description,omitempty"`
	Publish     bool         `json:"publish"`
	Draft       bool         `json:"draft"`
	Tags        []string     `json:"tags"`
	Categories  []string     `json:"categories"`
	Cover       string       `json:"cover,omitempty"`
	Kind        content.Kind `json:"kind"`
	Type        string       `json:"type,omitempty"`
	Hidden      bool         `json:"hidden"`
	IsLocal     bool         `json:"isLocal"`
	UpdatedAt   time.Time    `json:"updatedAt"`

	sortTime time.Time
}

// Result is returned by every mutating operation.
type Result struct {
	Rel     string               `json:"rel,omitempty"`
	Path    string               `json:"path,omitempty"`
	Trashed string               `json:"trashed,omitempty"`
	Deleted bool                 `json:"deleted,omitempty"`
	Rewrite *usage.RewriteResult `json:"rewrite,omitempty"`
	Nav     nav.SafeResult       `json:"nav"`
}

// List returns every Markdown file, newest first.
func (s *Service) List() ([]Item, error) {
	docs, err := s.Tree.Scan()
	if err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(docs))
	for _, d := range docs {
		ts, ok := content.ParseDate(d.Meta.Date)
		if !ok {
			ts = d.ModTime
		}
		items = append(items, Item{
			Slug:        d.Slug(),
			Rel:         d.Rel,
			Path:        content.Route(d.Rel),
			Title:       d.DisplayTitle(),
			Date:        d.Meta.Date,
			Description: d.Meta.Description,
			Publish:     frontmatter.IsTrue(d.Meta.Publish),
			Draft:       frontmatter.IsTrue(d.Meta.Draft),
			Tags:        nonNil(d.Meta.Tags),
			Categories:  nonNil(d.Meta.Categories),
			Cover:       d.Meta.Cover,
			Kind:        d.Kind,
			Type:        d.Meta.Type,
			Hidden:      frontmatter.IsTrue(d.Meta.Hidden),
			IsLocal:     d.IsLocal(),
			UpdatedAt:   d.ModTime,
			sortTime:    ts,
		})
	}
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].sortTime.Equal(items[j].sortTime) {
			return items[i].sortTime.After(items[j].sortTime)
		}
		return items[i].Rel < items[j].Rel
	})
	return items, nil
}

// resolve finds a post by relative path, or by slug when ref has no .md
// suffix. Slugs must be unique.
func (s *Service) resolve(ref string) (content.Doc, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return content.Doc{}, errs.Validationf("missing post reference")
	}
	if strings.HasSuffix(strings.ToLower(ref), ".md") {
		abs, err := s.Tree.Abs(ref)
		if err != nil {
			return content.Doc{}, errs.Validationf("%v", err)
		}
		if !content.Exists(abs) {
			return content.Doc{}, errs.NotFoundf("post %q not found", ref)
		}
		return s.Tree.Load(abs)
	}

	docs, err := s.Tree.Scan()
	if err != nil {
		return content.Doc{}, err
	}
	var found []content.Doc
	for _, d := range docs {
		if d.Slug() == ref {
			found = append(found, d)
		}
	}
	switch len(found) {
	case 0:
		return content.Doc{}, errs.NotFoundf("post %q not found", ref)
	case 1:
		return found[0], nil
	}
	return content.Doc{}, errs.Conflictf("slug %q is ambiguous, use the relative path", ref)
}

func (s *Service) edit(doc content.Doc, fields ...frontmatter.Field) error {
	data, err := os.ReadFile(doc.Abs)
	if err != nil {
		return fmt.Errorf("read %s: %w", doc.Rel, err)
	}
	text := string(data)
	if _, ok := frontmatter.Split(text); !ok {
		head, err := frontmatter.Render(frontmatter.Set("title", doc.DisplayTitle()))
		if err != nil {
			return err
		}
		text = head + "\n" + text
	}
	out, err := frontmatter.Update(text, fields...)
	if err != nil {
		return fmt.Errorf("update %s: %w", doc.Rel, err)
	}
	return content.WriteFile(doc.Abs, []byte(out))
}

func (s *Service) done(res Result) Result {
	res.Nav = s.Nav.SafeSync()
	return res
}

// NewPost describes a draft created in the local drafts folder.
type NewPost struct {
	Title       string   `json:"title"`
	Slug        string   `json:"slug"`
	Date        string   `json:"date"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Categories  []string `json:"categories"`
	Cover       string   `json:"cover"`
}

// NewLocal creates _local/<slug>.md as an unpublished draft.
func (s *Service) NewLocal(p NewPost) (Result, error) {
	title := strings.TrimSpace(p.Title)
	if title == "" {
		return Result{}, errs.Validationf("title is required")
	}
	slug := content.Slugify(p.Slug)
	if slug == "" {
		slug = content.Slugify(title)
	}
	if slug == "" {
		return Result{}, errs.Validationf("cannot derive a file name from %q", title)
	}
	abs := filepath.Join(s.Tree.LocalDir, slug+".md")
	if content.Exists(abs) {
		return Result{}, errs.Conflictf("draft %q already exists", slug)
	}
	date := strings.TrimSpace(p.Date)
	if date == "" {
		date = s.now().Format(content.DateLayout)
	}

	fields := []frontmatter.Field{
		frontmatter.Set("title", title),
		frontmatter.Set("date", date),
	}
	if p.Description != "" {
		fields = append(fields, frontmatter.Set("description", p.Description))
	}
	fields = append(fields,
		frontmatter.Set("tags", nonNil(p.Tags)),
		frontmatter.Set("categories", nonNil(p.Categories)),
	)
	if p.Cover != "" {
		fields = append(fields, frontmatter.Set("cover", p.Cover))
	}
	fields = append(fields, frontmatter.Set("publish", false), frontmatter.Set("draft", true))

	head, err := frontmatter.Render(fields...)
	if err != nil {
		return Result{}, err
	}
	if err := content.WriteFile(abs, []byte(head+"\n# "+title+"\n")); err != nil {
		return Result{}, err
	}
	rel := s.Tree.Rel(abs)
	s.Log.Info("created draft", zap.String("rel", rel))
	return s.done(Result{Rel: rel, Path: content.Route(rel)}), nil
}

// Promote publishes a draft. Drafts in the local folder move into the
// directory of their primary category, or a year folder when the category
// is not registered.
func (s *Service) Promote(ref string, setDate bool) (Result, error) {
	doc, err := s.resolve(ref)
	if err != nil {
		return Result{}, err
	}
	if doc.Kind == content.KindSection {
		return Result{}, errs.Validationf("%s is a category index, use archive/republish", doc.Rel)
	}

	fields := []frontmatter.Field{frontmatter.Set("publish", true), frontmatter.Set("draft", false)}
	if setDate {
		fields = append(fields, frontmatter.Set("date", s.now().Format(content.DateLayout)))
	}

	if !doc.IsLocal() {
		if err := s.edit(doc, fields...); err != nil {
			return Result{}, err
		}
		return s.done(Result{Rel: doc.Rel, Path: content.Route(doc.Rel)}), nil
	}

	dir, err := s.targetDir(doc)
	if err != nil {
		return Result{}, err
	}
	dst := filepath.Join(s.Tree.BlogDir, filepath.FromSlash(dir), filepath.Base(doc.Abs))
	if content.Exists(dst) {
		return Result{}, errs.Conflictf("%s already exists", s.Tree.Rel(dst))
	}
	if err := s.edit(doc, fields...); err != nil {
		return Result{}, err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return Result{}, fmt.Errorf("create %s: %w", dir, err)
	}
	if err := os.Rename(doc.Abs, dst); err != nil {
		return Result{}, fmt.Errorf("move draft: %w", err)
	}
	rel := s.Tree.Rel(dst)
	s.Log.Info("promoted draft", zap.String("from", doc.Rel), zap.String("to", rel))
	return s.done(Result{Rel: rel, Path: content.Route(rel)}), nil
}

func (s *Service) targetDir(doc content.Doc) (string, error) {
	if len(doc.Meta.Categories) > 0 {
		e, err := s.Registry.FindByTitle(doc.Meta.Categories[0])
		if err != nil {
			return "", err
		}
		if e != nil && e.Dir != "" {
			return e.Dir, nil
		}
	}
	if ts, ok := content.ParseDate(doc.Meta.Date); ok {
		return fmt.Sprint(ts.Year()), nil
	}
	return fmt.Sprint(s.now().Year()), nil
}

// Archive unpublishes a post. For a category index the registry entry is
// unpublished too.
func (s *Service) Archive(ref string) (Result, error) {
	return s.setPublish(ref, false)
}

// Republish publishes a post again.
func (s *Service) Republish(ref string) (Result, error) {
	return s.setPublish(ref, true)
}

func (s *Service) setPublish(ref string, publish bool) (Result, error) {
	doc, err := s.resolve(ref)
	if err != nil {
		return Result{}, err
	}
	fields := []frontmatter.Field{frontmatter.Set("publish", publish)}
	if publish {
		fields = append(fields, frontmatter.Set("draft", false))
	}
	if err := s.edit(doc, fields...); err != nil {
		return Result{}, err
	}
	if doc.Kind == content.KindSection {
		if _, err := s.Registry.Upsert(content.SectionDir(doc.Rel), registry.Patch{Publish: &publish}); err != nil {
			return Result{}, err
		}
	}
	return s.done(Result{Rel: doc.Rel, Path: content.Route(doc.Rel)}), nil
}

// Remove deletes a post. Soft removal of an ordinary post moves it to the
// trash; hard removal deletes the file. A category index is only
// unpublished on soft removal; hard removal is refused while posts still
// reference the category, and otherwise trashes the index and drops the
// registry entry.
func (s *Service) Remove(ref string, hard bool) (Result, error) {
	doc, err := s.resolve(ref)
	if err != nil {
		return Result{}, err
	}

	if doc.Kind == content.KindSection {
		dir := content.SectionDir(doc.Rel)
		if !hard {
			publish := false
			if err := s.edit(doc, frontmatter.Set("publish", false)); err != nil {
				return Result{}, err
			}
			if _, err := s.Registry.Upsert(dir, registry.Patch{Publish: &publish}); err != nil {
				return Result{}, err
			}
			return s.done(Result{Rel: doc.Rel}), nil
		}

		title := doc.Meta.Title
		if e, err := s.Registry.FindByDir(dir); err != nil {
			return Result{}, err
		} else if e != nil {
			title = e.Title
		}
		if title == "" {
			title = dir
		}
		u, err := s.Usage.Collect(title)
		if err != nil {
			return Result{}, err
		}
		if err := usage.Guard(u, dir, doc.Rel); err != nil {
			return Result{}, err
		}
		name, err := s.Tree.MoveToTrash(doc.Abs)
		if err != nil {
			return Result{}, err
		}
		if _, err := s.Registry.RemoveByDir(dir); err != nil {
			return Result{}, err
		}
		if _, err := s.Registry.RemoveByTitle(title); err != nil {
			return Result{}, err
		}
		return s.done(Result{Rel: doc.Rel, Trashed: name}), nil
	}

	if !hard {
		name, err := s.Tree.MoveToTrash(doc.Abs)
		if err != nil {
			return Result{}, err
		}
		return s.done(Result{Rel: doc.Rel, Trashed: name}), nil
	}
	if err := os.Remove(doc.Abs); err != nil {
		return Result{}, fmt.Errorf("delete %s: %w", doc.Rel, err)
	}
	s.Log.Info("deleted post", zap.String("rel", doc.Rel))
	return s.done(Result{Rel: doc.Rel, Deleted: true}), nil
}

// MetaPatch lists frontmatter fields to change. Nil fields are untouched.
type MetaPatch struct {
	Title       *string   `json:"title"`
	Date        *string   `json:"date"`
	Description *string   `json:"description"`
	Cover       *string   `json:"cover"`
	Tags        *[]string `json:"tags"`
	Categories  *[]string `json:"categories"`
	Publish     *bool     `json:"publish"`
	Draft       *bool     `json:"draft"`
}

func (p MetaPatch) fields() []frontmatter.Field {
	var fields []frontmatter.Field
	str := func(key string, v *string) {
		if v != nil {
			fields = append(fields, frontmatter.Set(key, strings.TrimSpace(*v)))
		}
	}
	str("title", p.Title)
	str("date", p.Date)
	str("description", p.Description)
	str("cover", p.Cover)
	if p.Tags != nil {
		fields = append(fields, frontmatter.Set("tags", trimAll(*p.Tags)))
	}
	if p.Categories != nil {
		fields = append(fields, frontmatter.Set("categories", trimAll(*p.Categories)))
	}
	if p.Publish != nil {
		fields = append(fields, frontmatter.Set("publish", *p.Publish))
	}
	if p.Draft != nil {
		fields = append(fields, frontmatter.Set("draft", *p.Draft))
	}
	return fields
}

// UpdateMeta edits the frontmatter of a post. Renaming a category index
// renames the category: every post that references the old title is
// rewritten and the registry entry follows. A title already carried by
// another category is refused before anything is written.
func (s *Service) UpdateMeta(ref string, p MetaPatch) (Result, error) {
	doc, err := s.resolve(ref)
	if err != nil {
		return Result{}, err
	}
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return Result{}, errs.Validationf("title cannot be empty")
	}
	fields := p.fields()
	if len(fields) == 0 {
		return Result{}, errs.Validationf("nothing to update")
	}

	var dir, oldTitle, newTitle string
	if doc.Kind == content.KindSection {
		dir = content.SectionDir(doc.Rel)
	}
	if dir != "" {
		oldTitle = doc.Meta.Title
		if e, err := s.Registry.FindByDir(dir); err != nil {
			return Result{}, err
		} else if e != nil {
			oldTitle = e.Title
		}
		if p.Title != nil {
			newTitle = strings.TrimSpace(*p.Title)
		}
		if newTitle != "" && newTitle != oldTitle {
			if e, err := s.Registry.FindByTitle(newTitle); err != nil {
				return Result{}, err
			} else if e != nil && e.Dir != dir {
				return Result{}, errs.Conflictf("title %q is already used by %q", newTitle, e.Dir)
			}
		}
	}

	if err := s.edit(doc, fields...); err != nil {
		return Result{}, err
	}
	res := Result{Rel: doc.Rel, Path: content.Route(doc.Rel)}
	if dir == "" {
		return s.done(res), nil
	}

	if newTitle != "" && oldTitle != "" && newTitle != oldTitle {
		rw, err := s.Usage.Rewrite(usage.RewriteOptions{
			From:    oldTitle,
			To:      newTitle,
			Mode:    usage.ModeRename,
			Exclude: []string{doc.Abs},
		})
		if err != nil {
			return Result{}, err
		}
		res.Rewrite = &rw
		if _, err := s.Registry.RenameTitle(oldTitle, newTitle); err != nil {
			return Result{}, err
		}
	}

	patch := registry.Patch{Publish: p.Publish}
	if newTitle != "" {
		patch.Title = &newTitle
	}
	if _, err := s.Registry.Upsert(dir, patch); err != nil {
		return Result{}, err
	}
	return s.done(res), nil
}

// Preview is a rendered post.
type Preview struct {
	Rel   string `json:"rel"`
	Title string `json:"title"`
	HTML  string `json:"html"`
}

// Preview renders the body of a post to HTML.
func (s *Service) Preview(ref string) (Preview, error) {
	doc, err := s.resolve(ref)
	if err != nil {
		return Preview{}, err
	}
	data, err := os.ReadFile(doc.Abs)
	if err != nil {
		return Preview{}, fmt.Errorf("read %s: %w", doc.Rel, err)
	}
	html, err := content.RenderPreview(string(data))
	if err != nil {
		return Preview{}, fmt.Errorf("render %s: %w", doc.Rel, err)
	}
	return Preview{Rel: doc.Rel, Title: doc.DisplayTitle(), HTML: html}, nil
}

// Trash lists trashed files.
func (s *Service) Trash() ([]content.TrashEntry, error) { return s.Tree.ListTrash() }

// RestoreTrash brings a trashed file back as a local draft.
func (s *Service) RestoreTrash(name, slug string) (Result, error) {
	rel, err := s.Tree.RestoreTrash(name, slug)
	if err != nil {
		return Result{}, err
	}
	return s.done(Result{Rel: rel, Path: content.Route(rel)}), nil
}

// DeleteTrash permanently deletes a trashed file.
func (s *Service) DeleteTrash(name string) error { return s.Tree.DeleteTrash(name) }

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func trimAll(list []string) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
