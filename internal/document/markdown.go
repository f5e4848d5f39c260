package document

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/dgnsrekt/aloud/utils"
)

// ParseMarkdown splits markdown into sections at headings up to
// SplitLevel. Each paragraph, list item, quoted paragraph and heading is
// one unit. The frontmatter title, or else the first top-level heading,
// names the document.
func ParseMarkdown(name string, content []byte, opts Options) (*Document, error) {
	if opts.SplitLevel <= 0 {
		opts.SplitLevel = DefaultOptions().SplitLevel
	}

	front, body := utils.SplitFrontmatter(content)
	fm, err := parseFrontmatter(front)
	if err != nil {
		return nil, err
	}

	reader := text.NewReader(body)
	root := goldmark.New().Parser().Parse(reader)

	w := &walker{source: reader.Source(), opts: opts, builder: newBuilder(opts)}
	for n := root.FirstChild(); n != nil; n = n.NextSibling() {
		w.block(n)
	}

	title := fm.Title
	if title == "" {
		title = w.firstTitle
	}
	if title == "" {
		title = baseTitle(name)
	}

	return &Document{Name: name, Title: title, Sections: w.builder.finish()}, nil
}

type walker struct {
	source     []byte
	opts       Options
	builder    *builder
	firstTitle string
}

// block turns one block node into units.
func (w *walker) block(node ast.Node) {
	switch n := node.(type) {
	case *ast.Heading:
		title := w.inline(n)
		if n.Level <= w.opts.SplitLevel {
			if n.Level == 1 && w.firstTitle == "" {
				w.firstTitle = title
			}
			w.builder.open(title)
		}
		w.builder.add(title)

	case *ast.Paragraph, *ast.TextBlock:
		w.builder.add(w.inline(n))

	case *ast.List:
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			w.block(c)
		}

	case *ast.ListItem:
		// nested lists become their own units
		var parts []string
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			switch c.(type) {
			case *ast.Paragraph, *ast.TextBlock:
				parts = append(parts, w.inline(c))
			default:
				w.builder.add(strings.Join(parts, " "))
				parts = nil
				w.block(c)
			}
		}
		w.builder.add(strings.Join(parts, " "))

	case *ast.Blockquote:
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			w.block(c)
		}

	case *ast.FencedCodeBlock, *ast.CodeBlock:
		if !w.opts.IncludeCode {
			return
		}
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			w.builder.add(string(seg.Value(w.source)))
		}

	case *ast.HTMLBlock, *ast.ThematicBreak:
		return

	default:
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			w.block(c)
		}
	}
}

// inline returns the speakable text of node's inline children.
func (w *walker) inline(node ast.Node) string {
	var buf strings.Builder
	w.walkInline(node, &buf)
	return strings.TrimSpace(buf.String())
}

func (w *walker) walkInline(node ast.Node, buf *strings.Builder) {
	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		switch n := c.(type) {
		case *ast.Text:
			buf.Write(n.Segment.Value(w.source))
			if n.SoftLineBreak() || n.HardLineBreak() {
				buf.WriteByte(' ')
			}

		case *ast.String:
			buf.Write(n.Value)

		case *ast.AutoLink:
			buf.Write(n.Label(w.source))

		case *ast.RawHTML:
			continue

		default:
			// emphasis, links, code spans and image alt text
			w.walkInline(n, buf)
		}
	}
}
