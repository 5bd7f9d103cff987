package document

// Index is everything the resolver needs from one document. Every slice is
// in file order.
type Index struct {
	URI        string
	Symbols    []Symbol
	Comments   []CommentBlock
	Directives []Directive
	Tokens     []Token
}

// Declarations returns every declaration of name, in file order.
func (ix *Index) Declarations(name string) []Symbol {
	var out []Symbol
	for _, s := range ix.Symbols {
		if s.Name == name {
			out = append(out, s)
		}
	}
	return out
}

// CommentsFor returns the comment blocks attached to declarations of name.
func (ix *Index) CommentsFor(name string) []CommentBlock {
	var out []CommentBlock
	for _, c := range ix.Comments {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// ScopeDirectives returns the inherit, include and require directives.
func (ix *Index) ScopeDirectives() []Directive {
	var out []Directive
	for _, d := range ix.Directives {
		if d.Kind != DirectivePathLiteral {
			out = append(out, d)
		}
	}
	return out
}

// DirectiveAt returns the inherit, include or require directive at pos.
func (ix *Index) DirectiveAt(pos Position) (Directive, bool) {
	for _, d := range ix.Directives {
		if d.Kind != DirectivePathLiteral && d.Range.Contains(pos) {
			return d, true
		}
	}
	return Directive{}, false
}

// PathLiteralAt returns the path-shaped word at pos.
func (ix *Index) PathLiteralAt(pos Position) (Directive, bool) {
	for _, d := range ix.Directives {
		if d.Kind == DirectivePathLiteral && d.Range.Contains(pos) {
			return d, true
		}
	}
	return Directive{}, false
}

// TokenAt returns the token at pos. Tokens do not overlap.
func (ix *Index) TokenAt(pos Position) (Token, bool) {
	for _, t := range ix.Tokens {
		if t.Range.Contains(pos) {
			return t, true
		}
	}
	return Token{}, false
}
