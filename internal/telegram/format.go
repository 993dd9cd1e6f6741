package telegram

import (
	"bytes"
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
)

var (
	blockTagRegex  = regexp.MustCompile(`<br\s*/?>|</?p>|</?div>|</?pre>|</?h[1-6]>|</?li>`)
	blankLineRegex = regexp.MustCompile(`\n\s*\n+`)
)

// plainText renders model output as plain text: markdown is converted to
// HTML and every tag stripped, keeping paragraph breaks.
type plainText struct {
	policy   *bluemonday.Policy
	markdown goldmark.Markdown
}

func newPlainText() *plainText {
	return &plainText{
		policy:   bluemonday.StrictPolicy(),
		markdown: goldmark.New(),
	}
}

func (p *plainText) Render(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	var buf bytes.Buffer
	if err := p.markdown.Convert([]byte(text), &buf); err != nil {
		return text
	}

	out := blockTagRegex.ReplaceAllString(buf.String(), "\n")
	out = p.policy.Sanitize(out)
	out = blankLineRegex.ReplaceAllString(out, "\n\n")
	out = strings.TrimSpace(html.UnescapeString(out))
	if out == "" {
		return strings.TrimSpace(text)
	}
	return out
}
