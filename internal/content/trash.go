package content

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gosub/vpadmin/internal/errs"
	"github.com/gosub/vpadmin/internal/frontmatter"
)

const trashStamp = "20060102150405"

// TrashEntry describes one file in the trash folder.
type TrashEntry struct {
	Name    string    `json:"name"`
	Slug    string    `json:"slug"`
	Title   string    `json:"title"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mtime"`
}

// MoveToTrash moves abs into the trash folder as
// <YYYYMMDDHHMMSS>-<rel with "/" replaced by "_">. It returns the trash name.
func (t *Tree) MoveToTrash(abs string) (string, error) {
	if err := os.MkdirAll(t.TrashDir, 0o755); err != nil {
		return "", fmt.Errorf("create trash dir: %w", err)
	}
	rel := t.Rel(abs)
	if !Within(t.BlogDir, abs) {
		rel = filepath.Base(abs)
	}
	flat := strings.ReplaceAll(rel, "/", "_")
	if !strings.EqualFold(filepath.Ext(flat), ".md") {
		flat += ".md"
	}
	base := t.now().Format(trashStamp) + "-" + strings.TrimSuffix(flat, filepath.Ext(flat))

	name := base + ".md"
	for i := 1; Exists(filepath.Join(t.TrashDir, name)); i++ {
		name = fmt.Sprintf("%s-%d.md", base, i)
	}
	if err := os.Rename(abs, filepath.Join(t.TrashDir, name)); err != nil {
		return "", fmt.Errorf("move %s to trash: %w", rel, err)
	}
	t.Log.Info("moved to trash", zap.String("rel", rel), zap.String("name", name))
	return name, nil
}

// ListTrash returns trashed files, newest first. A missing trash folder is an
// empty list.
func (t *Tree) ListTrash() ([]TrashEntry, error) {
	entries, err := os.ReadDir(t.TrashDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []TrashEntry{}, nil
		}
		return nil, fmt.Errorf("read trash: %w", err)
	}
	out := make([]TrashEntry, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".md") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		entry := TrashEntry{
			Name:    e.Name(),
			Slug:    slugFromTrashName(e.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		}
		if data, err := os.ReadFile(filepath.Join(t.TrashDir, e.Name())); err == nil {
			entry.Title = frontmatter.Parse(string(data)).Title
		}
		out = append(out, entry)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].ModTime.Equal(out[j].ModTime) {
			return out[i].ModTime.After(out[j].ModTime)
		}
		return out[i].Name > out[j].Name
	})
	return out, nil
}

// RestoreTrash moves a trashed file back into the drafts folder and marks it
// as an unpublished draft. slug overrides the derived file name. The new
// path relative to the blog root is returned.
func (t *Tree) RestoreTrash(name, slug string) (string, error) {
	src, err := t.trashPath(name)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(src)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errs.NotFoundf("trash file %q not found", name)
		}
		return "", fmt.Errorf("read trash file: %w", err)
	}
	text := string(data)
	meta := frontmatter.Parse(text)

	slug = SanitizeSlug(slug)
	if slug == "" {
		slug = slugFromTrashName(name)
	}
	if slug == "" {
		slug = SanitizeSlug(meta.Title)
	}
	if slug == "" {
		slug = fmt.Sprintf("restored-%d", t.now().UnixMilli())
	}

	dst := filepath.Join(t.LocalDir, slug+".md")
	for i := 1; Exists(dst); i++ {
		dst = filepath.Join(t.LocalDir, fmt.Sprintf("%s-%d.md", slug, i))
	}

	title := meta.Title
	if title == "" {
		title = slug
	}
	restored, err := frontmatter.EnsureDraft(text, title)
	if err != nil {
		return "", fmt.Errorf("mark restored file as draft: %w", err)
	}
	if err := WriteFile(dst, []byte(restored)); err != nil {
		return "", err
	}
	if err := os.Remove(src); err != nil {
		return "", fmt.Errorf("remove trash file: %w", err)
	}
	rel := t.Rel(dst)
	t.Log.Info("restored from trash", zap.String("name", name), zap.String("rel", rel))
	return rel, nil
}

// DeleteTrash permanently removes a trashed file.
func (t *Tree) DeleteTrash(name string) error {
	p, err := t.trashPath(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if os.IsNotExist(err) {
			return errs.NotFoundf("trash file %q not found", name)
		}
		return fmt.Errorf("delete trash file: %w", err)
	}
	t.Log.Info("deleted from trash", zap.String("name", name))
	return nil
}

func (t *Tree) trashPath(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return "", errs.Validationf("invalid trash name %q", name)
	}
	return filepath.Join(t.TrashDir, name), nil
}

var (
	trashSplitStampRE = regexp.MustCompile(`^\d{8}-\d{6}-(.+)$`)
	trashStampRE      = regexp.MustCompile(`^\d{14}-(.+)$`)
)

// slugFromTrashName strips the timestamp prefix from a trash file name and
// maps the flattened path back to a slug.
func slugFromTrashName(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	if m := trashSplitStampRE.FindStringSubmatch(base); m != nil {
		base = m[1]
	} else if m := trashStampRE.FindStringSubmatch(base); m != nil {
		base = m[1]
	}
	return SanitizeSlug(strings.ReplaceAll(base, "_", "-"))
}
