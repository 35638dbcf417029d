// internal/pdf/blocks.go
package pdf

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// BlockKind is the visual role of a block in the document.
type BlockKind int

const (
	BlockBody BlockKind = iota
	BlockTitle
	BlockSubtitle
	BlockBullet
	BlockSpacer
	BlockTable
)

// Block is one printable unit extracted from Markdown. Text is plain text
// with inline markers removed; Rows is set for tables, header row first.
type Block struct {
	Kind BlockKind
	Text string
	Rows [][]string
}

var markdown = goldmark.New(goldmark.WithExtensions(extension.Table, extension.Strikethrough))

// ParseBlocks turns model-written Markdown into printable blocks.
func ParseBlocks(source string) []Block {
	src := []byte(source)
	doc := markdown.Parser().Parse(text.NewReader(src))

	var blocks []Block
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		blocks = appendBlocks(blocks, n, src)
	}
	return blocks
}

func appendBlocks(blocks []Block, n ast.Node, src []byte) []Block {
	switch node := n.(type) {
	case *ast.Heading:
		kind := BlockSubtitle
		if node.Level <= 2 {
			kind = BlockTitle
		}
		if t := plainText(node, src); t != "" {
			blocks = append(blocks, Block{Kind: kind, Text: t})
		}
	case *ast.Paragraph:
		blocks = appendParagraph(blocks, node, src)
	case *ast.TextBlock:
		if t := plainText(node, src); t != "" {
			blocks = append(blocks, Block{Kind: BlockBody, Text: t})
		}
	case *ast.List:
		blocks = appendList(blocks, node, src)
	case *ast.ThematicBreak:
		blocks = append(blocks, Block{Kind: BlockSpacer})
	case *east.Table:
		if rows := tableRows(node, src); len(rows) > 0 {
			blocks = append(blocks, Block{Kind: BlockTable, Rows: rows})
		}
	case *ast.Blockquote:
		for c := node.FirstChild(); c != nil; c = c.NextSibling() {
			blocks = appendBlocks(blocks, c, src)
		}
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		if t := strings.TrimSpace(rawLines(n, src, " ")); t != "" {
			blocks = append(blocks, Block{Kind: BlockBody, Text: t})
		}
	}
	return blocks
}

// appendParagraph handles the two paragraph shapes models use as structure:
// a lone bold span is a subtitle and lines starting with "• " are bullets.
func appendParagraph(blocks []Block, p *ast.Paragraph, src []byte) []Block {
	if isBoldOnly(p) {
		if t := plainText(p, src); t != "" {
			return append(blocks, Block{Kind: BlockSubtitle, Text: t})
		}
	}

	raw := rawLines(p, src, "\n")
	if strings.HasPrefix(strings.TrimSpace(raw), "•") {
		for _, line := range strings.Split(raw, "\n") {
			line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "•"))
			if line != "" {
				blocks = append(blocks, Block{Kind: BlockBullet, Text: stripInline(line)})
			}
		}
		return blocks
	}

	if t := plainText(p, src); t != "" {
		blocks = append(blocks, Block{Kind: BlockBody, Text: t})
	}
	return blocks
}

func isBoldOnly(p *ast.Paragraph) bool {
	first := p.FirstChild()
	if first == nil || first.NextSibling() != nil {
		return false
	}
	em, ok := first.(*ast.Emphasis)
	return ok && em.Level == 2
}

func appendList(blocks []Block, list *ast.List, src []byte) []Block {
	for item := list.FirstChild(); item != nil; item = item.NextSibling() {
		var nested []*ast.List
		var parts []string
		for c := item.FirstChild(); c != nil; c = c.NextSibling() {
			if l, ok := c.(*ast.List); ok {
				nested = append(nested, l)
				continue
			}
			if t := plainText(c, src); t != "" {
				parts = append(parts, t)
			}
		}
		if len(parts) > 0 {
			blocks = append(blocks, Block{Kind: BlockBullet, Text: strings.Join(parts, " ")})
		}
		for _, l := range nested {
			blocks = appendList(blocks, l, src)
		}
	}
	return blocks
}

func tableRows(table *east.Table, src []byte) [][]string {
	var rows [][]string
	for r := table.FirstChild(); r != nil; r = r.NextSibling() {
		var row []string
		for c := r.FirstChild(); c != nil; c = c.NextSibling() {
			row = append(row, plainText(c, src))
		}
		rows = append(rows, row)
	}
	return rows
}

// plainText concatenates the text under n, turning line breaks into spaces.
func plainText(n ast.Node, src []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := node.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(t.Value)
		case *ast.AutoLink:
			b.Write(t.URL(src))
		case *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return strings.Join(strings.Fields(stripInline(b.String())), " ")
}

func rawLines(n ast.Node, src []byte, sep string) string {
	lines := n.Lines()
	parts := make([]string, 0, lines.Len())
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		parts = append(parts, strings.TrimRight(string(seg.Value(src)), "\r\n"))
	}
	return strings.Join(parts, sep)
}

// stripInline removes emphasis markers the parser left in place, such as
// unbalanced asterisks.
func stripInline(s string) string {
	return strings.NewReplacer("**", "", "__", "", "*", "").Replace(s)
}
