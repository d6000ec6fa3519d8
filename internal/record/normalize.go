package record

import (
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"
)

// whitespaceRegex matches one or more whitespace characters.
var whitespaceRegex = regexp.MustCompile(`\s+`)

// markdown is the shared parser used for plain-text extraction.
// Parsing is stateless; the instance is safe to share.
var markdown = goldmark.New()

// Normalize produces the canonical form of record text used for
// fingerprinting:
//  1. Markdown structure is stripped to plain text, so formatting-only
//     differences (heading markers, emphasis, list bullets) do not defeat
//     duplicate detection.
//  2. Lowercase.
//  3. Leading/trailing whitespace trimmed, internal whitespace collapsed
//     to single spaces.
//
// Identical normalized text always yields an identical exact fingerprint.
func Normalize(s string) string {
	s = StripMarkdown(s)
	s = strings.TrimSpace(s)
	s = strings.ToLower(s)
	s = whitespaceRegex.ReplaceAllString(s, " ")
	return s
}

// StripMarkdown extracts the plain text content of a markdown document by
// walking its parsed AST. Non-markdown input passes through essentially
// unchanged.
func StripMarkdown(s string) string {
	src := []byte(s)
	doc := markdown.Parser().Parse(gmtext.NewReader(src))

	var buf strings.Builder
	buf.Grow(len(src))

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			// Separate block-level nodes so adjacent paragraphs do not fuse
			// into one token.
			if n.Type() == ast.TypeBlock {
				buf.WriteByte('\n')
			}
			return ast.WalkContinue, nil
		}

		switch v := n.(type) {
		case *ast.Text:
			buf.Write(v.Segment.Value(src))
			if v.SoftLineBreak() || v.HardLineBreak() {
				buf.WriteByte('\n')
			}
		case *ast.FencedCodeBlock:
			writeLines(&buf, src, v)
		case *ast.CodeBlock:
			writeLines(&buf, src, v)
		}
		return ast.WalkContinue, nil
	})

	return buf.String()
}

// writeLines copies the raw lines of a code block node.
func writeLines(buf *strings.Builder, src []byte, n ast.Node) {
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(src))
	}
}

// Tokens splits normalized text into whitespace-delimited tokens.
func Tokens(normalized string) []string {
	return strings.Fields(normalized)
}
