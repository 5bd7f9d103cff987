// Package document parses BitBake recipe, class, include and configuration
// files into an Index of symbol declarations, comment blocks, directive
// references and hoverable tokens.
//
// The parser is line oriented and covers the statement forms of the BitBake
// language: assignments with operators, overrides, flags and `export`;
// shell and python functions; `def` blocks; inherit/include/require; and the
// addtask, deltask, addhandler, EXPORT_FUNCTIONS and unset statements.
// Python code (python functions, def blocks and inline `${@...}`
// expressions) is parsed with tree-sitter to find datastore accessor calls.
//
// Positions are 0-based lines and byte columns.
package document

import (
	"strings"
)

const fileScheme = "file://"

// FileURI returns the file URI of an absolute path.
func FileURI(path string) string {
	if strings.HasPrefix(path, fileScheme) {
		return path
	}
	return fileScheme + path
}

// PathOf returns the path of a file URI. Other strings are returned as given.
func PathOf(uri string) string {
	return strings.TrimPrefix(uri, fileScheme)
}

type Position struct {
	Line int `json:"line"`
	Col  int `json:"col"`
}

func (p Position) Before(o Position) bool {
	return p.Line < o.Line || (p.Line == o.Line && p.Col < o.Col)
}

// Range is half-open: Start is inside, End is not.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

func (r Range) Contains(p Position) bool {
	return !p.Before(r.Start) && p.Before(r.End)
}

type SymbolKind int

const (
	SymbolVariable SymbolKind = iota
	SymbolFunction
	SymbolTask
)

func (k SymbolKind) String() string {
	switch k {
	case SymbolVariable:
		return "variable"
	case SymbolFunction:
		return "function"
	case SymbolTask:
		return "task"
	}
	return "unknown"
}

// Symbol is one declaration. Range covers the whole statement; NameRange
// covers the declared name only.
type Symbol struct {
	Name      string
	Kind      SymbolKind
	URI       string
	Range     Range
	NameRange Range
}

// CommentBlock holds the comment lines directly above a declaration, with the
// leading '#' removed. Line is the 1-based line of the declaration.
type CommentBlock struct {
	Name string
	Text string
	URI  string
	Line int
}

type DirectiveKind int

const (
	DirectiveInherit DirectiveKind = iota
	DirectiveInclude
	DirectiveRequire
	DirectivePathLiteral
)

func (k DirectiveKind) String() string {
	switch k {
	case DirectiveInherit:
		return "inherit"
	case DirectiveInclude:
		return "include"
	case DirectiveRequire:
		return "require"
	case DirectivePathLiteral:
		return "path"
	}
	return "unknown"
}

// Directive references another file: a class, an include file, or a
// path-shaped word inside an assignment value.
type Directive struct {
	Kind   DirectiveKind
	Target string
	Range  Range
}

type TokenKind int

const (
	TokenVariable TokenKind = iota
	TokenFunction
	TokenTask
	TokenFlag
	TokenKeyword
	TokenAccessor
)

func (k TokenKind) String() string {
	switch k {
	case TokenVariable:
		return "variable"
	case TokenFunction:
		return "function"
	case TokenTask:
		return "task"
	case TokenFlag:
		return "flag"
	case TokenKeyword:
		return "keyword"
	case TokenAccessor:
		return "accessor"
	}
	return "unknown"
}

// Token is a hoverable name occurrence.
type Token struct {
	Kind  TokenKind
	Name  string
	Range Range
}

// Document is one parsed source file. It is immutable; a text change
// produces a new Document.
type Document struct {
	URI   string
	Text  string
	Index *Index
}

// Parse parses text as the document at uri.
func Parse(uri, text string) *Document {
	return &Document{URI: uri, Text: text, Index: buildIndex(uri, text)}
}

// Path returns the filesystem path of the document.
func (d *Document) Path() string { return PathOf(d.URI) }
