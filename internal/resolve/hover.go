package resolve

import (
	"fmt"
	"strings"

	"github.com/jward/bbls/internal/docs"
	"github.com/jward/bbls/internal/document"
)

// Hover is markdown content for a token.
type Hover struct {
	Contents string         `json:"contents"`
	Range    document.Range `json:"range"`
}

// Hover returns the documentation of the token at pos, or nil when there is
// none. Comment blocks written above declarations come first, aggregated
// over the scope chain, followed by the built-in documentation.
func (r *Resolver) Hover(uri string, pos document.Position) *Hover {
	doc := r.docs[uri]
	if doc == nil {
		return nil
	}
	t, ok := doc.Index.TokenAt(pos)
	if !ok {
		return nil
	}

	var sections []string
	switch t.Kind {
	case document.TokenKeyword:
		if text, ok := docs.KeywordDoc(t.Name); ok {
			sections = append(sections, text)
		}
	case document.TokenVariable:
		sections = r.appendComments(sections, uri, t.Name)
		if text, ok := r.catalog.Variable(t.Name); ok {
			sections = append(sections, docSection(t.Name, text))
		}
	case document.TokenFunction, document.TokenTask:
		sections = r.appendComments(sections, uri, t.Name)
		if text, ok := r.catalog.Task(t.Name); ok {
			sections = append(sections, docSection(t.Name, text))
		}
	case document.TokenFlag:
		if text, ok := r.catalog.Flag(t.Name); ok {
			sections = append(sections, docSection(t.Name, text))
		}
	case document.TokenAccessor:
		if text, ok := r.catalog.Function(t.Name); ok {
			sections = append(sections, docSection(t.Name, text))
		}
	}
	if len(sections) == 0 {
		return nil
	}
	return &Hover{Contents: strings.Join(sections, "\n\n"), Range: t.Range}
}

// Comments returns every comment block attached to name in the scope chain of
// uri, in scope order.
func (r *Resolver) Comments(uri, name string) []document.CommentBlock {
	var blocks []document.CommentBlock
	for _, doc := range r.Scope(uri) {
		blocks = append(blocks, doc.Index.CommentsFor(name)...)
	}
	return blocks
}

func (r *Resolver) appendComments(sections []string, uri, name string) []string {
	blocks := r.Comments(uri, name)
	if len(blocks) == 0 {
		return sections
	}
	parts := make([]string, len(blocks))
	for i, b := range blocks {
		parts[i] = fmt.Sprintf("%s\n\nSource: %s `L: %d`", b.Text, document.PathOf(b.URI), b.Line)
	}
	return append(sections, "**Comments**\n___\n"+strings.Join(parts, "\n___\n"))
}

func docSection(name, text string) string {
	return "**" + name + "**\n___\n" + text
}
