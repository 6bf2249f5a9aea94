package content

import (
	"regexp"
	"strings"
	"time"
	"unicode"
)

var (
	badSlugChars = regexp.MustCompile(`[<>:"|?*#%&{}$!'@+=` + "`" + `]`)
	whitespaceRE = regexp.MustCompile(`\s+`)
	dashRunRE    = regexp.MustCompile(`-{2,}`)
)

// SanitizeSlug turns free text into a file-name-safe slug. Path separators
// and shell-hostile characters are dropped, whitespace becomes "-". Non-ASCII
// letters are kept.
func SanitizeSlug(s string) string {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer("/", "", `\`, "").Replace(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	s = badSlugChars.ReplaceAllString(s, "")
	s = whitespaceRE.ReplaceAllString(s, "-")
	s = dashRunRE.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-_.")
	return s
}

// Slugify is SanitizeSlug with ASCII letters lowered, used for new posts.
func Slugify(title string) string {
	return strings.ToLower(SanitizeSlug(title))
}

// DateLayout is the frontmatter date format used by the blog.
const DateLayout = "2006/01/02 15:04:05"

var dateLayouts = []string{
	DateLayout,
	"2006/01/02 15:04",
	"2006/01/02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// ParseDate parses the date formats found in post frontmatter. Values
// without a zone are read in local time.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
