package content

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/gosub/vpadmin/internal/frontmatter"
)

// Kind classifies a Markdown file. It is resolved once, at scan time.
type Kind int

const (
	KindPost Kind = iota
	KindSection
	KindPage
)

func (k Kind) String() string {
	switch k {
	case KindSection:
		return "section"
	case KindPage:
		return "page"
	default:
		return "post"
	}
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "section":
		*k = KindSection
	case "page":
		*k = KindPage
	case "post", "":
		*k = KindPost
	default:
		return fmt.Errorf("unknown kind %q", b)
	}
	return nil
}

// IgnoreFile lists glob patterns (one per line, # comments) of files the
// admin treats as pages instead of posts.
const IgnoreFile = ".adminignore"

var builtinIgnore = []string{"blog.md"}

type ignoreRules []string

func (t *Tree) loadIgnore() ignoreRules {
	rules := ignoreRules(append([]string(nil), builtinIgnore...))
	f, err := os.Open(filepath.Join(t.BlogDir, IgnoreFile))
	if err != nil {
		return rules
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rules = append(rules, strings.ToLower(strings.TrimPrefix(line, "/")))
	}
	if err := sc.Err(); err != nil {
		t.Log.Warn("read ignore file", zap.Error(err))
	}
	return rules
}

func (r ignoreRules) match(rel string) bool {
	rel = strings.ToLower(rel)
	base := path.Base(rel)
	for _, pattern := range r {
		target := rel
		if !strings.Contains(pattern, "/") {
			target = base
		}
		if ok, err := doublestar.Match(pattern, target); err == nil && ok {
			return true
		}
	}
	return false
}

func classify(rel string, meta frontmatter.Meta, ignore ignoreRules) Kind {
	switch meta.Type {
	case "post":
		return KindPost
	case "section":
		return KindSection
	case "page":
		return KindPage
	}
	if path.Base(rel) == "index.md" {
		return KindSection
	}
	if frontmatter.IsFalse(meta.List) || frontmatter.IsTrue(meta.Hidden) || ignore.match(rel) {
		return KindPage
	}
	return KindPost
}
