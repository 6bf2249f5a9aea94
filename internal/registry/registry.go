// Package registry persists the category registry: the JSON file that maps
// blog directories to category titles, publish state and menu placement.
//
// The file is reread on every call and rewritten whole on every mutation.
// There is no cache and no locking; callers that need read-modify-write
// atomicity across requests serialize above this package.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gosub/vpadmin/internal/content"
	"github.com/gosub/vpadmin/internal/metrics"
)

// Version is the current on-disk schema version.
const Version = 2

// Entry is one category.
type Entry struct {
	Dir         string `json:"dir"`
	Title       string `json:"title"`
	MenuLabel   string `json:"menuLabel"`
	Publish     bool   `json:"publish"`
	MenuEnabled bool   `json:"menuEnabled"`
	MenuOrder   int    `json:"menuOrder"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt"`
}

// Registry is the whole file.
type Registry struct {
	Version   int     `json:"version"`
	UpdatedAt string  `json:"updatedAt"`
	Items     []Entry `json:"items"`
}

// Patch lists the fields an Upsert should change. Nil fields are left alone.
type Patch struct {
	Title       *string
	MenuLabel   *string
	Publish     *bool
	MenuEnabled *bool
	MenuOrder   *int
}

// Store reads and writes the registry file at Path.
type Store struct {
	Path    string
	Now     func() time.Time
	Log     *zap.Logger
	Metrics *metrics.Metrics
}

// NewStore returns a Store for the registry file at path.
func NewStore(path string, log *zap.Logger, m *metrics.Metrics) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{Path: path, Now: time.Now, Log: log, Metrics: m}
}

func (s *Store) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func (s *Store) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

// Normalize converts raw registry bytes of any supported shape to the
// canonical form. now is used for timestamps the input does not carry.
func Normalize(data []byte, now time.Time) Registry {
	raw := decodeRaw(data)
	updatedAt := coerceTime(raw.UpdatedAt, FormatTime(now))
	items := make([]Entry, 0, len(raw.Records))
	for _, rec := range raw.Records {
		if e, ok := fromRecord(rec, updatedAt); ok {
			items = append(items, e)
		}
	}
	return Registry{Version: Version, UpdatedAt: updatedAt, Items: canonicalize(items)}
}

// Load reads and normalizes the registry. A missing, blank or unreadable
// JSON file yields an empty registry. Files from another schema version are
// backed up and rewritten; a missing file is created.
func (s *Store) Load() (Registry, error) {
	data, err := os.ReadFile(s.Path)
	missing := errors.Is(err, os.ErrNotExist)
	if err != nil && !missing {
		return Registry{}, fmt.Errorf("read registry: %w", err)
	}

	reg := Normalize(data, s.now())
	raw := decodeRaw(data)

	switch {
	case missing:
		return s.Write(reg)
	case raw.Version != Version && strings.TrimSpace(string(data)) != "":
		s.backup(data)
		s.log().Info("migrated category registry",
			zap.String("path", s.Path), zap.Int("from", raw.Version), zap.Int("to", Version))
		return s.Write(reg)
	}
	return reg, nil
}

func (s *Store) backup(data []byte) {
	name := s.Path + ".bak-" + s.now().Format("20060102150405")
	if err := os.WriteFile(name, data, 0o644); err != nil {
		s.log().Warn("registry backup failed", zap.String("path", name), zap.Error(err))
	}
}

// Write stamps updatedAt, normalizes and persists reg. The persisted form is
// returned.
func (s *Store) Write(reg Registry) (Registry, error) {
	out := Registry{
		Version:   Version,
		UpdatedAt: FormatTime(s.now()),
		Items:     canonicalize(reg.Items),
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return Registry{}, fmt.Errorf("encode registry: %w", err)
	}
	if err := content.WriteFile(s.Path, buf.Bytes()); err != nil {
		return Registry{}, fmt.Errorf("write registry: %w", err)
	}
	s.Metrics.RegistryWritten()
	return out, nil
}

// FindByDir returns the entry for dir, or nil.
func (s *Store) FindByDir(dir string) (*Entry, error) {
	reg, err := s.Load()
	if err != nil {
		return nil, err
	}
	return findDir(reg.Items, content.NormalizeDir(dir)), nil
}

// FindByTitle returns the first entry whose title equals title, or nil.
func (s *Store) FindByTitle(title string) (*Entry, error) {
	reg, err := s.Load()
	if err != nil {
		return nil, err
	}
	return findTitle(reg.Items, strings.TrimSpace(title)), nil
}

// Upsert creates or updates the entry for dir. New entries are published,
// shown in the menu and placed last. An empty dir is a no-op.
func (s *Store) Upsert(dir string, p Patch) (*Entry, error) {
	dir = content.NormalizeDir(dir)
	if dir == "" {
		return nil, nil
	}
	reg, err := s.Load()
	if err != nil {
		return nil, err
	}
	now := FormatTime(s.now())

	e := findDir(reg.Items, dir)
	if e == nil {
		reg.Items = append(reg.Items, Entry{
			Dir:         dir,
			Title:       dir,
			Publish:     true,
			MenuEnabled: true,
			MenuOrder:   NextMenuOrder(reg.Items),
			CreatedAt:   now,
		})
		e = &reg.Items[len(reg.Items)-1]
	}

	if p.Title != nil {
		if t := strings.TrimSpace(*p.Title); t != "" {
			e.Title = t
		}
	}
	if p.MenuLabel != nil {
		e.MenuLabel = strings.TrimSpace(*p.MenuLabel)
	}
	if e.MenuLabel == "" {
		e.MenuLabel = e.Title
	}
	if p.Publish != nil {
		e.Publish = *p.Publish
	}
	if p.MenuEnabled != nil {
		e.MenuEnabled = *p.MenuEnabled
	}
	if p.MenuOrder != nil && *p.MenuOrder > 0 {
		e.MenuOrder = *p.MenuOrder
	}
	if e.CreatedAt == "" {
		e.CreatedAt = now
	}
	e.UpdatedAt = now

	return s.writeAndFind(reg, dir)
}

// RenameDir moves the entry at from to to. It returns nil when from does not
// exist or to is already taken by another entry.
func (s *Store) RenameDir(from, to string) (*Entry, error) {
	from, to = content.NormalizeDir(from), content.NormalizeDir(to)
	if from == "" || to == "" {
		return nil, nil
	}
	reg, err := s.Load()
	if err != nil {
		return nil, err
	}
	e := findDir(reg.Items, from)
	if e == nil {
		return nil, nil
	}
	if from == to {
		return e, nil
	}
	if findDir(reg.Items, to) != nil {
		return nil, nil
	}
	e.Dir = to
	e.UpdatedAt = FormatTime(s.now())
	return s.writeAndFind(reg, to)
}

// RenameTitle renames the category titled from. The menu label follows the
// title when it mirrored the old title. When another entry already carries
// the new title the two are merged: the renamed entry is dropped and the
// existing one is returned.
func (s *Store) RenameTitle(from, to string) (*Entry, error) {
	from, to = strings.TrimSpace(from), strings.TrimSpace(to)
	if from == "" || to == "" {
		return nil, nil
	}
	reg, err := s.Load()
	if err != nil {
		return nil, err
	}
	e := findTitle(reg.Items, from)
	if e == nil {
		return nil, nil
	}
	if from == to {
		return e, nil
	}

	if target := findTitle(reg.Items, to); target != nil {
		dir := target.Dir
		reg.Items = without(reg.Items, func(x Entry) bool { return x.Title == from })
		s.log().Info("merged category into existing title",
			zap.String("from", from), zap.String("to", to), zap.String("dir", dir))
		return s.writeAndFind(reg, dir)
	}

	if e.MenuLabel == "" || e.MenuLabel == from {
		e.MenuLabel = to
	}
	e.Title = to
	e.UpdatedAt = FormatTime(s.now())
	return s.writeAndFind(reg, e.Dir)
}

// RemoveByDir deletes the entry for dir and reports whether one existed.
func (s *Store) RemoveByDir(dir string) (bool, error) {
	dir = content.NormalizeDir(dir)
	return s.remove(func(e Entry) bool { return dir != "" && e.Dir == dir })
}

// RemoveByTitle deletes every entry titled title.
func (s *Store) RemoveByTitle(title string) (bool, error) {
	title = strings.TrimSpace(title)
	return s.remove(func(e Entry) bool { return title != "" && e.Title == title })
}

func (s *Store) remove(match func(Entry) bool) (bool, error) {
	reg, err := s.Load()
	if err != nil {
		return false, err
	}
	kept := without(reg.Items, match)
	if len(kept) == len(reg.Items) {
		return false, nil
	}
	reg.Items = kept
	if _, err := s.Write(reg); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) writeAndFind(reg Registry, dir string) (*Entry, error) {
	out, err := s.Write(reg)
	if err != nil {
		return nil, err
	}
	return findDir(out.Items, dir), nil
}

func findDir(items []Entry, dir string) *Entry {
	for i := range items {
		if items[i].Dir == dir {
			return &items[i]
		}
	}
	return nil
}

func findTitle(items []Entry, title string) *Entry {
	for i := range items {
		if items[i].Title == title {
			return &items[i]
		}
	}
	return nil
}

func without(items []Entry, match func(Entry) bool) []Entry {
	out := make([]Entry, 0, len(items))
	for _, e := range items {
		if !match(e) {
			out = append(out, e)
		}
	}
	return out
}
