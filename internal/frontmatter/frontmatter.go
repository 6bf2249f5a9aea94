// Package frontmatter reads and edits the YAML-ish header block at the top of
// a Markdown post.
//
// Edits are surgical: only the keys being changed are rewritten, every other
// line of the block and the whole body are kept byte for byte.
package frontmatter

import (
	"errors"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrNoFrontmatter is returned by Update when the content has no leading
// "---" block to edit.
var ErrNoFrontmatter = errors.New("frontmatter: no frontmatter block")

// blockRE captures the opening fence, the inner lines (with their trailing
// newline) and the closing fence.
var blockRE = regexp.MustCompile(`(?s)\A(\s*---[ \t]*\r?\n)(.*?\r?\n)?(---)[ \t]*(?:\r?\n|\z)`)

// Block locates the frontmatter inside a document.
type Block struct {
	Inner string // block text without fences or the final newline
	Body  string // everything after the closing fence line

	innerStart int
	innerEnd   int
	hasInner   bool
}

// Split locates the leading frontmatter block. ok is false when the
// content does not start with one.
func Split(content string) (Block, bool) {
	m := blockRE.FindStringSubmatchIndex(content)
	if m == nil {
		return Block{Body: content}, false
	}
	b := Block{Body: content[m[1]:]}
	if m[4] >= 0 {
		b.hasInner = true
		b.innerStart, b.innerEnd = m[4], m[5]
		b.Inner = strings.TrimSuffix(strings.TrimSuffix(content[m[4]:m[5]], "\n"), "\r")
	} else {
		b.innerStart, b.innerEnd = m[6], m[6]
	}
	return b, true
}

// Value is one decoded frontmatter entry: either a scalar or a list.
type Value struct {
	Scalar string
	List   []string
	IsList bool
}

// Meta holds the fields the admin cares about. Raw keeps every key found so
// callers can read fields Meta does not model.
type Meta struct {
	Title       string
	Date        string
	Description string
	Cover       string
	Type        string
	Publish     *bool
	Draft       *bool
	List        *bool
	Hidden      *bool
	Tags        []string
	Categories  []string
	Raw         map[string]Value
}

// Has reports whether the block declared key at all.
func (m Meta) Has(key string) bool {
	_, ok := m.Raw[key]
	return ok
}

// Parse decodes the frontmatter of content. A document without a block
// yields an empty Meta.
func Parse(content string) Meta {
	b, ok := Split(content)
	if !ok {
		return Meta{Raw: map[string]Value{}}
	}
	return ParseBlock(b.Inner)
}

// ParseBlock decodes the inner text of a block. Valid YAML is decoded with
// yaml.v3; anything else goes through a lenient line scanner so that hand
// edited posts with stray colons still load.
func ParseBlock(inner string) Meta {
	raw, err := decodeYAML(inner)
	if err != nil {
		raw = scanLines(inner)
	}

	m := Meta{Raw: raw}
	m.Title = scalar(raw, "title")
	m.Date = scalar(raw, "date")
	m.Description = scalar(raw, "description")
	m.Cover = scalar(raw, "cover")
	m.Type = strings.ToLower(scalar(raw, "type"))
	m.Publish = flag(raw, "publish")
	m.Draft = flag(raw, "draft")
	m.List = flag(raw, "list")
	m.Hidden = flag(raw, "hidden")
	m.Tags = list(raw, "tags")
	m.Categories = list(raw, "categories")
	return m
}

func decodeYAML(inner string) (map[string]Value, error) {
	out := map[string]Value{}
	if strings.TrimSpace(inner) == "" {
		return out, nil
	}
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(inner), &doc); err != nil {
		return nil, err
	}
	if len(doc.Content) == 0 {
		return out, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, errors.New("frontmatter: not a mapping")
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, val := root.Content[i].Value, root.Content[i+1]
		switch val.Kind {
		case yaml.SequenceNode:
			items := make([]string, 0, len(val.Content))
			for _, n := range val.Content {
				if n.Kind == yaml.ScalarNode {
					items = append(items, strings.TrimSpace(n.Value))
				}
			}
			out[key] = Value{List: items, IsList: true}
		case yaml.ScalarNode:
			if val.Tag == "!!null" {
				out[key] = Value{}
				continue
			}
			out[key] = Value{Scalar: strings.TrimSpace(val.Value)}
		default:
			out[key] = Value{}
		}
	}
	return out, nil
}

var (
	keyLineRE  = regexp.MustCompile(`^([A-Za-z0-9_-]+)\s*:\s*(.*)$`)
	listItemRE = regexp.MustCompile(`^\s*-\s*(.*)$`)
)

func scanLines(inner string) map[string]Value {
	out := map[string]Value{}
	lines := splitLines(inner)
	for i := 0; i < len(lines); i++ {
		m := keyLineRE.FindStringSubmatch(lines[i])
		if m == nil {
			continue
		}
		key, rest := m[1], strings.TrimSpace(m[2])
		switch {
		case rest == "":
			var items []string
			for i+1 < len(lines) {
				lm := listItemRE.FindStringSubmatch(lines[i+1])
				if lm == nil {
					break
				}
				items = append(items, cleanScalar(lm[1]))
				i++
			}
			if items != nil {
				out[key] = Value{List: items, IsList: true}
			} else {
				out[key] = Value{}
			}
		case strings.HasPrefix(rest, "[") && strings.HasSuffix(rest, "]"):
			out[key] = Value{List: splitInline(rest[1 : len(rest)-1]), IsList: true}
		default:
			out[key] = Value{Scalar: cleanScalar(rest)}
		}
	}
	return out
}

func splitInline(s string) []string {
	items := []string{}
	for _, part := range strings.Split(s, ",") {
		if v := cleanScalar(part); v != "" {
			items = append(items, v)
		}
	}
	return items
}

// cleanScalar trims whitespace and one pair of matching quotes.
func cleanScalar(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			s = s[1 : len(s)-1]
		}
	}
	return strings.TrimSpace(s)
}

func scalar(raw map[string]Value, key string) string {
	v, ok := raw[key]
	if !ok {
		return ""
	}
	if v.IsList {
		return strings.Join(v.List, ", ")
	}
	return v.Scalar
}

func list(raw map[string]Value, key string) []string {
	v, ok := raw[key]
	if !ok {
		return nil
	}
	var items []string
	if v.IsList {
		items = v.List
	} else if v.Scalar != "" {
		items = []string{v.Scalar}
	}
	out := make([]string, 0, len(items))
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func flag(raw map[string]Value, key string) *bool {
	v, ok := raw[key]
	if !ok || v.IsList {
		return nil
	}
	return ParseBool(v.Scalar)
}

// ParseBool accepts true/false, yes/no and 1/0. Anything else is nil.
func ParseBool(s string) *bool {
	var b bool
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "1":
		b = true
	case "false", "no", "0":
		b = false
	default:
		return nil
	}
	return &b
}

// IsTrue reports whether the tri-state flag is set and true.
func IsTrue(b *bool) bool { return b != nil && *b }

// IsFalse reports whether the tri-state flag is set and false.
func IsFalse(b *bool) bool { return b != nil && !*b }

func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
