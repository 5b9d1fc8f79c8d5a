package blogs

import (
	"html/template"
	"strings"

	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
)

var contentPolicy = bluemonday.UGCPolicy()

// RenderContent converts a blog body from markdown to sanitized HTML.
// A one-line body renders as a single <p>.
func RenderContent(content string) template.HTML {
	extensions := parser.CommonExtensions | parser.NoEmptyLineBeforeBlock
	p := parser.NewWithExtensions(extensions)
	doc := p.Parse([]byte(strings.TrimSpace(content)))

	renderer := mdhtml.NewRenderer(mdhtml.RendererOptions{
		Flags: mdhtml.CommonFlags | mdhtml.HrefTargetBlank,
	})

	unsafe := markdown.Render(doc, renderer)
	return template.HTML(strings.TrimSpace(string(contentPolicy.SanitizeBytes(unsafe))))
}
