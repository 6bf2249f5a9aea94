package usage

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/gosub/vpadmin/internal/content"
	"github.com/gosub/vpadmin/internal/errs"
	"github.com/gosub/vpadmin/internal/frontmatter"
)

// Rewrite modes.
const (
	ModeRename = "rename"
	ModeRemove = "remove"
)

// RewriteOptions selects which references to change.
type RewriteOptions struct {
	From    string
	To      string
	Mode    string // ModeRename or ModeRemove
	DryRun  bool
	Exclude []string // absolute paths to leave untouched
}

// FileChange is one file whose categories changed (or would change).
type FileChange struct {
	File   string   `json:"file"`
	Rel    string   `json:"rel"`
	Before []string `json:"before"`
	After  []string `json:"after"`
}

// FileError is a file the rewrite could not process.
type FileError struct {
	File  string `json:"file"`
	Rel   string `json:"rel"`
	Error string `json:"error"`
}

// RewriteResult summarizes a rewrite.
type RewriteResult struct {
	Mode    string       `json:"mode"`
	DryRun  bool         `json:"dryRun"`
	Updated int          `json:"updated"`
	Files   []FileChange `json:"files"`
	Failed  []FileError  `json:"failed,omitempty"`
}

// Rewrite renames or removes a category title in the frontmatter of every
// Markdown file. Order is preserved and duplicates collapse to their first
// occurrence. Only the categories key is touched. A failure on one file is
// recorded and the rest are still processed.
func (e *Engine) Rewrite(opts RewriteOptions) (RewriteResult, error) {
	from, to := strings.TrimSpace(opts.From), strings.TrimSpace(opts.To)
	mode := opts.Mode
	if mode == "" {
		mode = ModeRename
	}
	res := RewriteResult{Mode: mode, DryRun: opts.DryRun, Files: []FileChange{}}
	if mode != ModeRename && mode != ModeRemove {
		return res, errs.Validationf("unknown rewrite mode %q", opts.Mode)
	}
	if from == "" || (mode == ModeRename && (to == "" || to == from)) {
		return res, nil
	}

	exclude := map[string]bool{}
	for _, p := range opts.Exclude {
		exclude[filepath.Clean(p)] = true
	}

	files, err := e.Tree.Walk()
	if err != nil {
		return res, err
	}
	for _, abs := range files {
		if exclude[filepath.Clean(abs)] {
			continue
		}
		rel := e.Tree.Rel(abs)
		change, err := rewriteFile(abs, from, to, mode, opts.DryRun)
		if err != nil {
			e.Log.Warn("category rewrite failed", zap.String("file", rel), zap.Error(err))
			res.Failed = append(res.Failed, FileError{File: abs, Rel: rel, Error: err.Error()})
			continue
		}
		if change == nil {
			continue
		}
		change.File, change.Rel = abs, rel
		res.Files = append(res.Files, *change)
	}
	res.Updated = len(res.Files)

	if !opts.DryRun {
		e.Metrics.FilesRewritten(mode, res.Updated)
		e.Log.Info("rewrote category references",
			zap.String("mode", mode), zap.String("from", from), zap.String("to", to),
			zap.Int("updated", res.Updated), zap.Int("failed", len(res.Failed)))
	}
	return res, nil
}

func rewriteFile(abs, from, to, mode string, dryRun bool) (*FileChange, error) {
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}
	text := string(data)
	before := frontmatter.Parse(text).Categories
	if !contains(before, from) {
		return nil, nil
	}
	after := rewriteList(before, from, to, mode)
	if slices.Equal(before, after) {
		return nil, nil
	}
	if !dryRun {
		out, err := frontmatter.Update(text, frontmatter.Set("categories", after))
		if err != nil {
			return nil, fmt.Errorf("update frontmatter: %w", err)
		}
		if err := content.WriteFile(abs, []byte(out)); err != nil {
			return nil, err
		}
	}
	return &FileChange{Before: before, After: after}, nil
}

func rewriteList(list []string, from, to, mode string) []string {
	out := make([]string, 0, len(list))
	seen := map[string]bool{}
	for _, v := range list {
		v = strings.TrimSpace(v)
		if v == from {
			if mode == ModeRemove {
				continue
			}
			v = to
		}
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
