// Package text turns assistant replies into plain prose suitable for
// speech synthesis.
package text

import (
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var (
	markdownParser = goldmark.New()

	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Speakable strips markdown structure from a reply, returning the prose a
// voice should read aloud. Code blocks are dropped entirely, headings and
// paragraphs become sentences, and link text survives without its URL.
func Speakable(source string) string {
	if strings.TrimSpace(source) == "" {
		return ""
	}

	src := []byte(source)
	doc := markdownParser.Parser().Parse(text.NewReader(src))

	var parts []string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.FencedCodeBlock, *ast.CodeBlock, *ast.HTMLBlock:
			// Nobody wants to hear code read out character by character.
			return ast.WalkSkipChildren, nil
		case *ast.Image:
			if alt := nodeText(node, src); alt != "" {
				parts = append(parts, alt)
			}
			return ast.WalkSkipChildren, nil
		case *ast.Heading, *ast.Paragraph:
			if t := nodeText(node, src); t != "" {
				parts = append(parts, t)
			}
			return ast.WalkSkipChildren, nil
		case *ast.ListItem:
			if t := nodeText(node, src); t != "" {
				parts = append(parts, t)
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	out := strings.Join(parts, " ")
	out = whitespaceRe.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}

// nodeText collects the literal text beneath a node, skipping any nested
// code.
func nodeText(node ast.Node, source []byte) string {
	var sb strings.Builder
	_ = ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := n.(type) {
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			sb.Write(t.Segment.Value(source))
			if t.HardLineBreak() || t.SoftLineBreak() {
				sb.WriteByte(' ')
			}
		case *ast.CodeSpan:
			// Inline code is usually a short identifier; keep it.
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}
