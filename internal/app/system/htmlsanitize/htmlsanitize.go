// Package htmlsanitize cleans user-supplied HTML and renders Markdown for the
// note board. Everything that reaches a client as HTML passes through Sanitize.
package htmlsanitize

import (
	"bytes"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	policyOnce sync.Once
	policy     *bluemonday.Policy

	// Raw HTML passes the renderer and is cleaned by the policy afterwards.
	md = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(html.WithUnsafe()),
	)
)

func getPolicy() *bluemonday.Policy {
	policyOnce.Do(func() {
		p := bluemonday.UGCPolicy()
		p.AllowElements("u", "s", "sub", "sup", "mark", "hr", "br")
		p.AllowTables()
		p.AllowAttrs("class").OnElements("table", "thead", "tbody", "tfoot", "tr", "th", "td")
		p.AllowAttrs("colspan", "rowspan").OnElements("th", "td")
		p.AllowStyles("width", "text-align").OnElements("table", "th", "td")
		policy = p
	})
	return policy
}

// Sanitize strips scripts, event handlers and unsafe URLs while keeping
// ordinary formatting.
func Sanitize(s string) string {
	if s == "" {
		return ""
	}
	return getPolicy().Sanitize(s)
}

// Markdown renders s as GitHub-flavored Markdown and sanitizes the output.
// Inline HTML the policy allows survives; the rest is stripped.
func Markdown(s string) (string, error) {
	if strings.TrimSpace(s) == "" {
		return "", nil
	}
	var buf bytes.Buffer
	if err := md.Convert([]byte(s), &buf); err != nil {
		return "", err
	}
	return Sanitize(buf.String()), nil
}
