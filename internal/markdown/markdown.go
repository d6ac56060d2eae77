// Package markdown reduces Markdown fragments to the text a reader sees.
// Sentence length statistics are computed on that text so that link
// targets, emphasis markers and heading hashes do not skew length ratios.
package markdown

import (
	"bytes"
	"html"
	"strings"

	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

func ToHTML(md []byte) string {
	opts := mdhtml.RendererOptions{
		Flags: mdhtml.CommonFlags | mdhtml.HrefTargetBlank,
	}
	renderer := mdhtml.NewRenderer(opts)
	ext := parser.CommonExtensions | parser.Attributes
	p := parser.NewWithExtensions(ext)
	doc := p.Parse(md)
	return string(markdown.Render(doc, renderer))
}

// ToPlainText renders md and strips the resulting markup, decoding HTML
// entities and collapsing whitespace runs to single spaces.
func ToPlainText(md []byte) string {
	htmlContent := ToHTML(md)
	text := html.UnescapeString(StripHTMLTags(htmlContent))
	return strings.Join(strings.Fields(text), " ")
}

// PlainText is ToPlainText for strings. Fragments without any Markdown
// syntax characters skip the parser.
func PlainText(s string) string {
	if !strings.ContainsAny(s, "*_`#[]<>|~-+") {
		return strings.Join(strings.Fields(s), " ")
	}
	out := ToPlainText([]byte(s))
	if out == "" {
		// Fragments made only of markup (a lone "---", a code fence) keep
		// their raw text so they still have a length.
		return strings.Join(strings.Fields(s), " ")
	}
	return out
}

func StripHTMLTags(htmlContent string) string {
	var result bytes.Buffer
	inTag := false

	for _, ch := range htmlContent {
		switch ch {
		case '<':
			inTag = true
		case '>':
			inTag = false
		default:
			if !inTag {
				result.WriteRune(ch)
			}
		}
	}

	return result.String()
}
