// Package usage answers which posts reference a category and rewrites those
// references in bulk.
package usage

import (
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gosub/vpadmin/internal/content"
	"github.com/gosub/vpadmin/internal/frontmatter"
	"github.com/gosub/vpadmin/internal/metrics"
	"github.com/gosub/vpadmin/internal/registry"
)

// Engine scans the content tree on every call; nothing is cached.
type Engine struct {
	Tree    *content.Tree
	Log     *zap.Logger
	Metrics *metrics.Metrics
}

// New returns an Engine over tree.
func New(tree *content.Tree, log *zap.Logger, m *metrics.Metrics) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{Tree: tree, Log: log, Metrics: m}
}

// Post is a file that references a category.
type Post struct {
	Rel        string   `json:"rel"`
	Title      string   `json:"title"`
	Publish    bool     `json:"publish"`
	Draft      bool     `json:"draft"`
	IsLocal    bool     `json:"isLocal"`
	Categories []string `json:"categories"`
}

// Usage lists the posts carrying one category title.
type Usage struct {
	Category string `json:"category"`
	Total    int    `json:"total"`
	Posts    []Post `json:"posts"`
}

// Collect returns every non-section file whose categories contain title
// exactly (after trimming), sorted by path.
func (e *Engine) Collect(title string) (Usage, error) {
	title = strings.TrimSpace(title)
	u := Usage{Category: title, Posts: []Post{}}
	if title == "" {
		return u, nil
	}
	docs, err := e.Tree.Scan()
	if err != nil {
		return u, err
	}
	for _, d := range docs {
		if d.Kind == content.KindSection || !contains(d.Meta.Categories, title) {
			continue
		}
		u.Posts = append(u.Posts, Post{
			Rel:        d.Rel,
			Title:      d.DisplayTitle(),
			Publish:    frontmatter.IsTrue(d.Meta.Publish),
			Draft:      frontmatter.IsTrue(d.Meta.Draft),
			IsLocal:    d.IsLocal(),
			Categories: d.Meta.Categories,
		})
	}
	sort.Slice(u.Posts, func(i, j int) bool { return u.Posts[i].Rel < u.Posts[j].Rel })
	u.Total = len(u.Posts)
	return u, nil
}

// Ref points at one post with the timestamp it was ranked by.
type Ref struct {
	Rel   string    `json:"rel"`
	Title string    `json:"title"`
	At    string    `json:"at"`
	Time  time.Time `json:"-"`
}

// Route is the public URL of the referenced post.
func (r *Ref) Route() string { return content.Route(r.Rel) }

// Bucket aggregates the posts of one category title.
type Bucket struct {
	Total             int  `json:"total"`
	Published         int  `json:"published"`
	LatestAny         *Ref `json:"latestAny,omitempty"`
	LatestPublished   *Ref `json:"latestPublished,omitempty"`
	EarliestPublished *Ref `json:"earliestPublished,omitempty"`

	routes map[string]bool
}

// HasPublishedRoute reports whether route belongs to a published post of
// this category.
func (b *Bucket) HasPublishedRoute(route string) bool {
	return b != nil && b.routes[route]
}

// Overview buckets every non-section post by each category title it
// carries. A post is published when publish is true and draft is not. Posts
// are ranked by their frontmatter date, or their mtime when it has none.
func (e *Engine) Overview() (map[string]*Bucket, error) {
	docs, err := e.Tree.Scan()
	if err != nil {
		return nil, err
	}
	e.Metrics.Scanned(len(docs))

	out := map[string]*Bucket{}
	for _, d := range docs {
		if d.Kind == content.KindSection || len(d.Meta.Categories) == 0 {
			continue
		}
		ts, ok := content.ParseDate(d.Meta.Date)
		if !ok {
			ts = d.ModTime
		}
		ref := Ref{Rel: d.Rel, Title: d.DisplayTitle(), At: registry.FormatTime(ts), Time: ts}
		published := frontmatter.IsTrue(d.Meta.Publish) && !frontmatter.IsTrue(d.Meta.Draft)

		for _, title := range unique(d.Meta.Categories) {
			b := out[title]
			if b == nil {
				b = &Bucket{routes: map[string]bool{}}
				out[title] = b
			}
			b.Total++
			if b.LatestAny == nil || ts.After(b.LatestAny.Time) {
				b.LatestAny = refCopy(ref)
			}
			if !published {
				continue
			}
			b.Published++
			b.routes[content.Route(d.Rel)] = true
			if b.LatestPublished == nil || ts.After(b.LatestPublished.Time) {
				b.LatestPublished = refCopy(ref)
			}
			if b.EarliestPublished == nil || ts.Before(b.EarliestPublished.Time) {
				b.EarliestPublished = refCopy(ref)
			}
		}
	}
	return out, nil
}

// Orphan is a category title used by posts but absent from the registry.
type Orphan struct {
	Title        string `json:"title"`
	Total        int    `json:"total"`
	Published    int    `json:"published"`
	LatestPostAt string `json:"latestPostAt,omitempty"`
	LatestRel    string `json:"latestRel,omitempty"`

	latest time.Time
}

// Orphans lists titles found in overview that no registry entry carries,
// most recently active first.
func Orphans(overview map[string]*Bucket, items []registry.Entry) []Orphan {
	known := map[string]bool{}
	for _, e := range items {
		known[e.Title] = true
	}
	out := []Orphan{}
	for title, b := range overview {
		if known[title] {
			continue
		}
		o := Orphan{Title: title, Total: b.Total, Published: b.Published}
		if b.LatestAny != nil {
			o.LatestPostAt = b.LatestAny.At
			o.LatestRel = b.LatestAny.Rel
			o.latest = b.LatestAny.Time
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].latest.Equal(out[j].latest) {
			return out[i].latest.After(out[j].latest)
		}
		return out[i].Title < out[j].Title
	})
	return out
}

func refCopy(r Ref) *Ref { return &r }

func contains(list []string, s string) bool {
	for _, v := range list {
		if strings.TrimSpace(v) == s {
			return true
		}
	}
	return false
}

func unique(list []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(list))
	for _, v := range list {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
