// Package nav regenerates the navigation artifact VitePress reads at build
// time from the category registry and the current posts.
package nav

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/gosub/vpadmin/internal/content"
	"github.com/gosub/vpadmin/internal/metrics"
	"github.com/gosub/vpadmin/internal/registry"
	"github.com/gosub/vpadmin/internal/usage"
)

// Item is one top-level menu entry.
type Item struct {
	Text            string `json:"text"`
	Category        string `json:"category"`
	Dir             string `json:"dir"`
	Link            string `json:"link"`
	Fallback        string `json:"fallback"`
	MenuOrder       int    `json:"menuOrder"`
	LatestLink      string `json:"latestLink,omitempty"`
	LatestTitle     string `json:"latestTitle,omitempty"`
	LatestUpdatedAt string `json:"latestUpdatedAt,omitempty"`
	PostCount       int    `json:"postCount"`
	PublishedCount  int    `json:"publishedCount"`
}

// Artifact is the file written to ArtifactPath.
type Artifact struct {
	UpdatedAt string `json:"updatedAt"`
	Items     []Item `json:"items"`
}

// Result is returned by Sync.
type Result struct {
	UpdatedAt    string `json:"updatedAt"`
	Items        []Item `json:"items"`
	ArtifactPath string `json:"artifactPath"`
}

// SafeResult is the error-free form of Sync used after every mutation.
type SafeResult struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	*Result
}

// Synchronizer builds the navigation artifact.
type Synchronizer struct {
	Registry     *registry.Store
	Usage        *usage.Engine
	Tree         *content.Tree
	ArtifactPath string

	Now     func() time.Time
	Log     *zap.Logger
	Metrics *metrics.Metrics
}

// New returns a Synchronizer writing to artifactPath.
func New(reg *registry.Store, eng *usage.Engine, tree *content.Tree, artifactPath string, log *zap.Logger, m *metrics.Metrics) *Synchronizer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Synchronizer{
		Registry:     reg,
		Usage:        eng,
		Tree:         tree,
		ArtifactPath: artifactPath,
		Now:          time.Now,
		Log:          log,
		Metrics:      m,
	}
}

// Sync recomputes the menu and rewrites the artifact.
//
// Each menu-enabled category whose directory exists gets one item. Its link
// is, in order of preference: the blog root when nothing is published; the
// previously written link while it still points at a published post of the
// category; the earliest published post; the latest published post; the
// directory landing page.
func (s *Synchronizer) Sync() (*Result, error) {
	reg, err := s.Registry.Load()
	if err != nil {
		return nil, fmt.Errorf("load registry: %w", err)
	}
	overview, err := s.Usage.Overview()
	if err != nil {
		return nil, fmt.Errorf("collect category overview: %w", err)
	}
	previous := s.previousLinks()

	items := []Item{}
	for _, e := range reg.Items {
		if !e.MenuEnabled || e.Dir == "" {
			continue
		}
		abs := filepath.Join(s.Tree.BlogDir, filepath.FromSlash(e.Dir))
		if !content.Within(s.Tree.BlogDir, abs) || !content.IsDir(abs) {
			continue
		}

		fallback := "/blog/"
		if content.Exists(filepath.Join(abs, "index.md")) {
			fallback = content.DirRoute(e.Dir)
		}

		stats := overview[e.Title]
		if stats == nil {
			stats = overview[e.MenuLabel]
		}

		text := e.MenuLabel
		if text == "" {
			text = e.Title
		}
		item := Item{
			Text:      text,
			Category:  e.Title,
			Dir:       e.Dir,
			Fallback:  fallback,
			MenuOrder: e.MenuOrder,
			Link:      pickLink(stats, previous[e.Dir], fallback),
		}
		if stats != nil {
			item.PostCount = stats.Total
			item.PublishedCount = stats.Published
			if lp := stats.LatestPublished; lp != nil {
				item.LatestLink = lp.Route()
				item.LatestTitle = lp.Title
				item.LatestUpdatedAt = lp.At
			}
		}
		items = append(items, item)
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].MenuOrder != items[j].MenuOrder {
			return items[i].MenuOrder < items[j].MenuOrder
		}
		return items[i].Text < items[j].Text
	})

	art := Artifact{UpdatedAt: registry.FormatTime(s.now()), Items: items}
	if err := s.write(art); err != nil {
		return nil, err
	}
	s.Log.Debug("nav synced", zap.Int("items", len(items)), zap.String("path", s.ArtifactPath))
	return &Result{UpdatedAt: art.UpdatedAt, Items: items, ArtifactPath: s.ArtifactPath}, nil
}

func pickLink(stats *usage.Bucket, previous, fallback string) string {
	switch {
	case stats == nil || stats.Published == 0:
		return "/blog/"
	case previous != "" && stats.HasPublishedRoute(previous):
		return previous
	case stats.EarliestPublished != nil:
		return stats.EarliestPublished.Route()
	case stats.LatestPublished != nil:
		return stats.LatestPublished.Route()
	}
	return fallback
}

// SafeSync runs Sync and reports failure in the result instead of an error.
// A failed sync leaves the previous artifact in place.
func (s *Synchronizer) SafeSync() (res SafeResult) {
	defer func() {
		if r := recover(); r != nil {
			s.Log.Error("nav sync panicked", zap.Any("panic", r))
			s.Metrics.NavSynced(false)
			res = SafeResult{OK: false, Error: fmt.Sprint(r)}
		}
	}()
	out, err := s.Sync()
	if err != nil {
		s.Log.Error("nav sync failed", zap.Error(err))
		s.Metrics.NavSynced(false)
		return SafeResult{OK: false, Error: err.Error()}
	}
	s.Metrics.NavSynced(true)
	return SafeResult{OK: true, Result: out}
}

// ReadArtifact returns the artifact currently on disk. A missing file is an
// empty artifact.
func (s *Synchronizer) ReadArtifact() (Artifact, error) {
	art := Artifact{Items: []Item{}}
	data, err := os.ReadFile(s.ArtifactPath)
	if errors.Is(err, os.ErrNotExist) {
		return art, nil
	}
	if err != nil {
		return art, fmt.Errorf("read nav artifact: %w", err)
	}
	if err := json.Unmarshal(data, &art); err != nil {
		return art, fmt.Errorf("decode nav artifact: %w", err)
	}
	return art, nil
}

func (s *Synchronizer) previousLinks() map[string]string {
	links := map[string]string{}
	art, err := s.ReadArtifact()
	if err != nil {
		s.Log.Warn("ignoring unreadable nav artifact", zap.Error(err))
		return links
	}
	for _, it := range art.Items {
		if it.Dir != "" && it.Link != "" {
			links[it.Dir] = it.Link
		}
	}
	return links
}

func (s *Synchronizer) write(art Artifact) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(art); err != nil {
		return fmt.Errorf("encode nav artifact: %w", err)
	}
	if err := content.WriteFile(s.ArtifactPath, buf.Bytes()); err != nil {
		return fmt.Errorf("write nav artifact: %w", err)
	}
	return nil
}

func (s *Synchronizer) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}
