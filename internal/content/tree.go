// Package content scans the Markdown tree of the blog and provides the path,
// route and slug helpers shared by the admin services.
package content

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/natefinch/atomic"
	"go.uber.org/zap"

	"github.com/gosub/vpadmin/internal/frontmatter"
)

// LocalDirName is the folder under the blog root that holds unpublished
// drafts.
const LocalDirName = "_local"

// Tree is the blog content tree on disk.
type Tree struct {
	BlogDir  string // docs/blog
	TrashDir string // docs/.trash
	LocalDir string // docs/blog/_local

	Now func() time.Time
	Log *zap.Logger
}

// NewTree returns a Tree rooted at blogDir with its drafts folder inside it.
func NewTree(blogDir, trashDir string, log *zap.Logger) *Tree {
	if log == nil {
		log = zap.NewNop()
	}
	return &Tree{
		BlogDir:  blogDir,
		TrashDir: trashDir,
		LocalDir: filepath.Join(blogDir, LocalDirName),
		Now:      time.Now,
		Log:      log,
	}
}

func (t *Tree) now() time.Time {
	if t.Now == nil {
		return time.Now()
	}
	return t.Now()
}

// Doc is one scanned Markdown file.
type Doc struct {
	Abs     string
	Rel     string // slash separated, relative to the blog root
	Kind    Kind
	Meta    frontmatter.Meta
	ModTime time.Time
}

// Slug returns the file name without extension.
func (d Doc) Slug() string { return SlugOf(d.Rel) }

// IsLocal reports whether the doc lives in the drafts folder.
func (d Doc) IsLocal() bool { return strings.HasPrefix(d.Rel, LocalDirName+"/") }

// DisplayTitle is the frontmatter title, or the slug when the title is empty.
func (d Doc) DisplayTitle() string {
	if d.Meta.Title != "" {
		return d.Meta.Title
	}
	return d.Slug()
}

// Walk returns the absolute paths of every .md file under the blog root,
// sorted. Hidden (dot) directories and unreadable directories are skipped.
func (t *Tree) Walk() ([]string, error) {
	var files []string
	err := filepath.WalkDir(t.BlogDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == t.BlogDir {
				return err
			}
			t.Log.Warn("skip unreadable path", zap.String("path", p), zap.Error(err))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if p != t.BlogDir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.EqualFold(filepath.Ext(p), ".md") {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("walk %s: %w", t.BlogDir, err)
	}
	sort.Strings(files)
	return files, nil
}

// Scan reads and classifies every Markdown file in the tree.
func (t *Tree) Scan() ([]Doc, error) {
	files, err := t.Walk()
	if err != nil {
		return nil, err
	}
	ignore := t.loadIgnore()
	docs := make([]Doc, 0, len(files))
	for _, abs := range files {
		doc, err := t.read(abs, ignore)
		if err != nil {
			t.Log.Warn("skip unreadable post", zap.String("file", abs), zap.Error(err))
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Load reads and classifies a single file.
func (t *Tree) Load(abs string) (Doc, error) {
	return t.read(abs, t.loadIgnore())
}

func (t *Tree) read(abs string, ignore ignoreRules) (Doc, error) {
	data, err := os.ReadFile(abs)
	if err != nil {
		return Doc{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return Doc{}, err
	}
	rel := t.Rel(abs)
	meta := frontmatter.Parse(string(data))
	return Doc{
		Abs:     abs,
		Rel:     rel,
		Kind:    classify(rel, meta, ignore),
		Meta:    meta,
		ModTime: info.ModTime(),
	}, nil
}

// Rel returns abs relative to the blog root, slash separated.
func (t *Tree) Rel(abs string) string {
	rel, err := filepath.Rel(t.BlogDir, abs)
	if err != nil {
		return filepath.ToSlash(abs)
	}
	return filepath.ToSlash(rel)
}

// Abs resolves a slash separated path relative to the blog root. It fails
// when rel escapes the root.
func (t *Tree) Abs(rel string) (string, error) {
	rel = strings.TrimPrefix(strings.ReplaceAll(rel, `\`, "/"), "/")
	abs := filepath.Join(t.BlogDir, filepath.FromSlash(rel))
	if !Within(t.BlogDir, abs) {
		return "", fmt.Errorf("path %q escapes the blog root", rel)
	}
	return abs, nil
}

// Within reports whether p is root itself or inside it.
func Within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// Route maps a relative Markdown path to its public VitePress URL.
func Route(rel string) string {
	rel = strings.TrimPrefix(filepath.ToSlash(rel), "/")
	if rel == "index.md" {
		return "/blog/"
	}
	if strings.HasSuffix(rel, "/index.md") {
		return "/blog/" + strings.TrimSuffix(rel, "index.md")
	}
	return "/blog/" + strings.TrimSuffix(rel, path.Ext(rel))
}

// DirRoute is the landing URL of a category directory.
func DirRoute(dir string) string {
	if dir == "" {
		return "/blog/"
	}
	return "/blog/" + dir + "/"
}

// SlugOf returns the base name of rel without its extension.
func SlugOf(rel string) string {
	base := path.Base(filepath.ToSlash(rel))
	return strings.TrimSuffix(base, path.Ext(base))
}

// SectionDir returns the category directory that an index.md belongs to;
// "" for the blog root index.
func SectionDir(rel string) string {
	d := path.Dir(filepath.ToSlash(rel))
	if d == "." {
		return ""
	}
	return d
}

// NormalizeDir cleans a category directory into the registry form: slash
// separated, no leading or trailing slash. Paths that climb out of the root
// normalize to "".
func NormalizeDir(dir string) string {
	dir = strings.TrimSpace(strings.ReplaceAll(dir, `\`, "/"))
	dir = strings.Trim(dir, "/")
	if dir == "" {
		return ""
	}
	dir = path.Clean(dir)
	if dir == "." || dir == ".." || strings.HasPrefix(dir, "../") {
		return ""
	}
	return dir
}

// WriteFile atomically replaces path with data, creating parent directories
// and keeping the mode of any file it replaces.
func WriteFile(p string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", p, err)
	}
	mode := fs.FileMode(0o644)
	if info, err := os.Stat(p); err == nil {
		mode = info.Mode().Perm()
	}
	if err := atomic.WriteFile(p, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write %s: %w", p, err)
	}
	if err := os.Chmod(p, mode); err != nil {
		return fmt.Errorf("chmod %s: %w", p, err)
	}
	return nil
}

// Exists reports whether p exists.
func Exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// IsDir reports whether p exists and is a directory.
func IsDir(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}
