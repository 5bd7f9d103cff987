// Package resolve answers definition and hover queries over a set of parsed
// documents, a project snapshot and a documentation catalog.
//
// A Resolver is a value over immutable inputs: it performs no I/O, holds no
// locks, and the same query always gives the same answer. Documents a query
// needs but that are not in the set contribute nothing.
package resolve

import (
	"path/filepath"
	"strings"

	"github.com/jward/bbls/internal/docs"
	"github.com/jward/bbls/internal/document"
	"github.com/jward/bbls/internal/project"
)

// Location is a range in a document. Whole-file targets use the zero range.
type Location struct {
	URI   string         `json:"uri"`
	Range document.Range `json:"range"`
}

type Resolver struct {
	docs    map[string]*document.Document
	snap    *project.Snapshot
	catalog *docs.Catalog
}

// New returns a Resolver. Nil arguments are treated as empty.
func New(documents map[string]*document.Document, snap *project.Snapshot, catalog *docs.Catalog) *Resolver {
	if documents == nil {
		documents = map[string]*document.Document{}
	}
	if snap == nil {
		snap = project.Empty()
	}
	if catalog == nil {
		catalog = docs.NewCatalog()
	}
	return &Resolver{docs: documents, snap: snap, catalog: catalog}
}

// Targets returns the files a directive refers to: classes for inherit,
// include files for include and require, matched by base name. Path
// literals are matched by Literal.
func (r *Resolver) Targets(d document.Directive) []string {
	var elems []project.Element
	switch d.Kind {
	case document.DirectiveInherit:
		elems = r.snap.ClassesNamed(project.Stem(d.Target))
	case document.DirectiveInclude, document.DirectiveRequire:
		elems = r.snap.IncludesNamed(project.Stem(d.Target))
	case document.DirectivePathLiteral:
		return r.Literal(d.Target)
	}
	var paths []string
	for _, e := range elems {
		if e.Path != "" {
			paths = append(paths, e.Path)
		}
	}
	return paths
}

// Scope returns the document at uri followed by every document it pulls in
// through inherit, include and require, depth first in directive order.
// Each document appears once.
func (r *Resolver) Scope(uri string) []*document.Document {
	var out []*document.Document
	visited := map[string]bool{}
	var visit func(doc *document.Document)
	visit = func(doc *document.Document) {
		if visited[doc.URI] {
			return
		}
		visited[doc.URI] = true
		out = append(out, doc)
		for _, d := range doc.Index.ScopeDirectives() {
			for _, path := range r.Targets(d) {
				if child := r.docs[document.FileURI(path)]; child != nil {
					visit(child)
				}
			}
		}
	}
	if doc := r.docs[uri]; doc != nil {
		visit(doc)
	}
	return out
}

// Unloaded returns the directive targets reachable from uri whose documents
// are not in the set, in discovery order.
func (r *Resolver) Unloaded(uri string) []string {
	var missing []string
	seen := map[string]bool{}
	for _, doc := range r.Scope(uri) {
		for _, d := range doc.Index.ScopeDirectives() {
			for _, path := range r.Targets(d) {
				if seen[path] {
					continue
				}
				seen[path] = true
				if r.docs[document.FileURI(path)] == nil {
					missing = append(missing, path)
				}
			}
		}
	}
	return missing
}

// Definition resolves the position to declaration or file locations. The
// result is never nil.
//
// A directive resolves to the start of its target files. A variable,
// function or task name resolves to every declaration of that name in the
// current document, then in each document of the scope chain. A path-shaped
// word of an assignment value resolves to the files it names.
func (r *Resolver) Definition(uri string, pos document.Position) []Location {
	locs := []Location{}
	doc := r.docs[uri]
	if doc == nil {
		return locs
	}
	ix := doc.Index

	if d, ok := ix.DirectiveAt(pos); ok {
		return anchors(r.Targets(d))
	}
	if t, ok := ix.TokenAt(pos); ok && isSymbolToken(t.Kind) {
		for _, scoped := range r.Scope(uri) {
			for _, s := range scoped.Index.Declarations(t.Name) {
				locs = append(locs, Location{URI: scoped.URI, Range: s.Range})
			}
		}
		return locs
	}
	if d, ok := ix.PathLiteralAt(pos); ok {
		return anchors(r.Literal(d.Target))
	}
	return locs
}

func isSymbolToken(k document.TokenKind) bool {
	return k == document.TokenVariable || k == document.TokenFunction || k == document.TokenTask
}

// Literal matches a path-shaped word against the snapshot. A URI scheme and
// `;` parameters are ignored; the extension selects which kinds are searched
// (none searches all). A matched recipe contributes its file and its append
// files; `.bbappend` contributes the appends only. Duplicates are dropped.
func (r *Resolver) Literal(word string) []string {
	if _, rest, ok := strings.Cut(word, "://"); ok {
		word = rest
	}
	word, _, _ = strings.Cut(word, ";")
	base := filepath.Base(word)
	if base == "." || base == "/" || base == "" {
		return nil
	}
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	switch ext {
	case "", project.ExtRecipe, project.ExtAppend, project.ExtClass, project.ExtInclude:
	default:
		stem, ext = base, ""
	}
	if ext == project.ExtAppend {
		stem, _ = project.SplitVersioned(base)
	}

	var paths []string
	seen := map[string]bool{}
	add := func(p string) {
		if p != "" && !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}

	if ext == "" || ext == project.ExtRecipe || ext == project.ExtAppend {
		for _, rec := range r.snap.Recipes {
			if rec.Name != stem && (rec.Path == "" || project.Stem(rec.Path) != stem) {
				continue
			}
			if ext != project.ExtAppend {
				add(rec.Path)
			}
			for _, a := range rec.Appends {
				add(a.Path)
			}
		}
	}
	if ext == "" || ext == project.ExtClass {
		for _, c := range r.snap.ClassesNamed(stem) {
			add(c.Path)
		}
	}
	if ext == "" || ext == project.ExtInclude {
		for _, inc := range r.snap.IncludesNamed(stem) {
			add(inc.Path)
		}
	}
	return paths
}

func anchors(paths []string) []Location {
	locs := make([]Location, 0, len(paths))
	for _, p := range paths {
		locs = append(locs, Location{URI: document.FileURI(p)})
	}
	return locs
}
