package frontmatter

import (
	"fmt"
	"regexp"
	"strings"
)

// Field is one key to write. Value must be a string, bool, int or []string.
type Field struct {
	Key   string
	Value any
}

// Set is shorthand for building a Field.
func Set(key string, value any) Field { return Field{Key: key, Value: value} }

// Update rewrites the given keys in the frontmatter of content. Existing keys
// are replaced in place (including a block-style list under the key);
// missing keys are appended to the end of the block.
func Update(content string, fields ...Field) (string, error) {
	b, ok := Split(content)
	if !ok {
		return "", ErrNoFrontmatter
	}

	nl := "\n"
	if strings.Contains(content[:b.innerEnd], "\r\n") {
		nl = "\r\n"
	}

	lines := splitLines(b.Inner)
	for _, f := range fields {
		line, err := renderLine(f)
		if err != nil {
			return "", err
		}
		lines = replaceKey(lines, f.Key, line)
	}

	inner := strings.Join(lines, nl)
	if inner != "" {
		inner += nl
	}
	return content[:b.innerStart] + inner + content[b.innerEnd:], nil
}

func replaceKey(lines []string, key, line string) []string {
	re := regexp.MustCompile(`^` + regexp.QuoteMeta(key) + `\s*:`)
	for i, l := range lines {
		if !re.MatchString(l) {
			continue
		}
		end := i + 1
		if strings.TrimSpace(l[strings.Index(l, ":")+1:]) == "" {
			for end < len(lines) && isContinuation(lines[end]) {
				end++
			}
		}
		out := make([]string, 0, len(lines)-(end-i)+1)
		out = append(out, lines[:i]...)
		out = append(out, line)
		return append(out, lines[end:]...)
	}
	return append(lines, line)
}

func isContinuation(l string) bool {
	if listItemRE.MatchString(l) {
		return true
	}
	return l != "" && (l[0] == ' ' || l[0] == '\t')
}

func renderLine(f Field) (string, error) {
	switch v := f.Value.(type) {
	case string:
		return f.Key + ": " + quote(v), nil
	case bool:
		return fmt.Sprintf("%s: %t", f.Key, v), nil
	case int:
		return fmt.Sprintf("%s: %d", f.Key, v), nil
	case []string:
		items := make([]string, 0, len(v))
		for _, s := range v {
			items = append(items, quoteListItem(s))
		}
		return f.Key + ": [" + strings.Join(items, ", ") + "]", nil
	default:
		return "", fmt.Errorf("frontmatter: unsupported value type %T for %q", f.Value, f.Key)
	}
}

var plainRE = regexp.MustCompile(`^[^\s"'\[\]{}#&*!|>%@,:` + "`" + `-][^"#:\[\]{},]*$`)

// quote leaves plain words alone and double-quotes anything YAML could
// misread (colons, leading indicators, booleans, numbers, empty strings).
func quote(s string) string {
	if s == "" || s != strings.TrimSpace(s) || !plainRE.MatchString(s) || ParseBool(s) != nil || looksNumeric(s) {
		return doubleQuote(s)
	}
	return s
}

func quoteListItem(s string) string {
	if strings.ContainsAny(s, ",[]") {
		return doubleQuote(s)
	}
	return quote(s)
}

func doubleQuote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}

var numericRE = regexp.MustCompile(`^[-+]?(\d+\.?\d*|\.\d+)([eE][-+]?\d+)?$`)

func looksNumeric(s string) bool { return numericRE.MatchString(s) }

// Render builds a complete frontmatter block from fields, fences included.
func Render(fields ...Field) (string, error) {
	var sb strings.Builder
	sb.WriteString("---\n")
	for _, f := range fields {
		line, err := renderLine(f)
		if err != nil {
			return "", err
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	sb.WriteString("---\n")
	return sb.String(), nil
}

// SetPublish flips the publish flag. Publishing also clears draft.
func SetPublish(content string, publish bool) (string, error) {
	fields := []Field{Set("publish", publish)}
	if publish {
		fields = append(fields, Set("draft", false))
	}
	return Update(content, fields...)
}

// EnsureDraft marks content as an unpublished draft, adding a block with
// title when the document has none.
func EnsureDraft(content, title string) (string, error) {
	if _, ok := Split(content); ok {
		return Update(content, Set("publish", false), Set("draft", true))
	}
	fields := []Field{}
	if title != "" {
		fields = append(fields, Set("title", title))
	}
	fields = append(fields, Set("publish", false), Set("draft", true))
	head, err := Render(fields...)
	if err != nil {
		return "", err
	}
	return head + "\n" + content, nil
}
