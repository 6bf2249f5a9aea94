package content

import (
	"bytes"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/gosub/vpadmin/internal/frontmatter"
)

var mdRenderer = goldmark.New(goldmark.WithExtensions(extension.GFM))

// RenderPreview converts the body of a post (frontmatter stripped) to HTML.
// Raw HTML in the source is not passed through.
func RenderPreview(src string) (string, error) {
	b, _ := frontmatter.Split(src)
	var buf bytes.Buffer
	if err := mdRenderer.Convert([]byte(b.Body), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
