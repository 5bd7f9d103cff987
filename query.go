package bbls

import (
	"sort"

	"github.com/jward/bbls/internal/document"
	"github.com/jward/bbls/internal/project"
	"github.com/jward/bbls/internal/resolve"
)

// QueryBuilder answers queries against one captured state of the Engine.
type QueryBuilder struct {
	docs     map[string]*document.Document
	snap     *project.Snapshot
	resolver *resolve.Resolver
}

// DefinitionAt finds the declarations or files the token at (line, col) of
// uri refers to. Lines and columns are 0-based; columns count bytes. The
// result is empty, not nil, when nothing matches.
func (q *QueryBuilder) DefinitionAt(uri string, line, col int) []Location {
	return q.resolver.Definition(uri, Position{Line: line, Col: col})
}

// HoverAt returns the hover documentation at (line, col) of uri, or nil when
// the position has none.
func (q *QueryBuilder) HoverAt(uri string, line, col int) *Hover {
	return q.resolver.Hover(uri, Position{Line: line, Col: col})
}

// Scope returns the URIs of uri and every open document its directives pull
// in, in resolution order.
func (q *QueryBuilder) Scope(uri string) []string {
	var uris []string
	for _, doc := range q.resolver.Scope(uri) {
		uris = append(uris, doc.URI)
	}
	return uris
}

// SymbolsNamed returns the declarations of name in every open document,
// ordered by URI and position.
func (q *QueryBuilder) SymbolsNamed(name string) []Symbol {
	uris := make([]string, 0, len(q.docs))
	for uri := range q.docs {
		uris = append(uris, uri)
	}
	sort.Strings(uris)

	var out []Symbol
	for _, uri := range uris {
		out = append(out, q.docs[uri].Index.Declarations(name)...)
	}
	return out
}

// Recipe returns the recipe called name, or nil.
func (q *QueryBuilder) Recipe(name string) *Element {
	return q.snap.Recipe(name)
}

// Layers returns the layers of the snapshot.
func (q *QueryBuilder) Layers() []Layer {
	return q.snap.Layers
}

// Recipes returns the recipes of the snapshot. A non-empty layer keeps only
// recipes whose first provider is that layer.
func (q *QueryBuilder) Recipes(layer string) []Element {
	if layer == "" {
		return q.snap.Recipes
	}
	var out []Element
	for _, r := range q.snap.Recipes {
		if r.Layer != nil && r.Layer.Name == layer {
			out = append(out, r)
		}
	}
	return out
}
