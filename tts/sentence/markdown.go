package sentence

import (
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var md = goldmark.New()

// PlainText converts lesson markdown into text suitable for speech. Code
// blocks, raw HTML and images are dropped, link and emphasis text is kept.
// Every block ends with a sentence terminator so headings and list items do
// not run into the next block when chunked.
func PlainText(source []byte) string {
	doc := md.Parser().Parse(text.NewReader(source))

	var b strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch n := n.(type) {
		case *ast.FencedCodeBlock, *ast.CodeBlock, *ast.HTMLBlock, *ast.RawHTML, *ast.Image:
			return ast.WalkSkipChildren, nil
		case *ast.CodeSpan:
			if entering {
				for c := n.FirstChild(); c != nil; c = c.NextSibling() {
					if t, ok := c.(*ast.Text); ok {
						b.Write(t.Segment.Value(source))
					}
				}
			}
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			if entering {
				b.Write(n.Segment.Value(source))
				if n.SoftLineBreak() || n.HardLineBreak() {
					b.WriteByte(' ')
				}
			}
		case *ast.String:
			if entering {
				b.Write(n.Value)
			}
		case *ast.Heading, *ast.Paragraph, *ast.TextBlock:
			if !entering {
				endBlock(&b)
			}
		}
		return ast.WalkContinue, nil
	})

	return strings.Join(strings.Fields(b.String()), " ")
}

func endBlock(b *strings.Builder) {
	s := strings.TrimRight(b.String(), " \t\n")
	if s == "" {
		return
	}
	last, _ := utf8.DecodeLastRuneInString(s)
	b.Reset()
	b.WriteString(s)
	if !isTerminal(last) && !isCloser(last) {
		b.WriteByte('.')
	}
	b.WriteByte(' ')
}
