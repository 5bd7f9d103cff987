package document

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// AccessorMethods are the datastore methods whose first argument names a
// variable.
var AccessorMethods = map[string]bool{
	"getVar":         true,
	"getVarFlag":     true,
	"getVarFlags":    true,
	"setVar":         true,
	"setVarFlag":     true,
	"setVarFlags":    true,
	"appendVar":      true,
	"appendVarFlag":  true,
	"prependVar":     true,
	"prependVarFlag": true,
	"delVar":         true,
	"delVarFlag":     true,
	"delVarFlags":    true,
	"renameVar":      true,
}

// datastoreObjects are the expressions that refer to the datastore inside
// recipe python code.
var datastoreObjects = map[string]bool{
	"d":      true,
	"e.data": true,
}

// pythonScanner finds datastore accessor calls in python source. It is not
// safe for concurrent use.
type pythonScanner struct {
	parser *sitter.Parser
}

func newPythonScanner() *pythonScanner {
	p := sitter.NewParser()
	p.SetLanguage(python.GetLanguage())
	return &pythonScanner{parser: p}
}

func (p *pythonScanner) close() {
	p.parser.Close()
}

// scan returns accessor and variable tokens for src. origin is where src
// starts in the document; indent is added to the column of every line, the
// first line additionally starts at origin.Col.
func (p *pythonScanner) scan(src string, origin Position, indent int) []Token {
	content := []byte(src)
	tree, err := p.parser.ParseCtx(context.Background(), nil, content)
	if err != nil || tree == nil {
		return nil
	}
	defer tree.Close()

	place := func(pt sitter.Point, offset int) Position {
		col := int(pt.Column) + indent + offset
		if pt.Row == 0 {
			col += origin.Col
		}
		return Position{Line: origin.Line + int(pt.Row), Col: col}
	}

	var tokens []Token
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		if n.Type() == "call" {
			tokens = append(tokens, accessorCall(n, content, place)...)
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(tree.RootNode())
	return tokens
}

func accessorCall(call *sitter.Node, content []byte, place func(sitter.Point, int) Position) []Token {
	fn := call.ChildByFieldName("function")
	if fn == nil || fn.Type() != "attribute" {
		return nil
	}
	object := fn.ChildByFieldName("object")
	attr := fn.ChildByFieldName("attribute")
	if object == nil || attr == nil {
		return nil
	}
	method := attr.Content(content)
	if !datastoreObjects[strings.TrimSpace(object.Content(content))] || !AccessorMethods[method] {
		return nil
	}

	tokens := []Token{{
		Kind:  TokenAccessor,
		Name:  method,
		Range: Range{Start: place(attr.StartPoint(), 0), End: place(attr.EndPoint(), 0)},
	}}

	args := call.ChildByFieldName("arguments")
	if args == nil || args.NamedChildCount() == 0 {
		return tokens
	}
	arg := args.NamedChild(0)
	if arg.Type() != "string" {
		return tokens
	}
	name, offset, ok := stringLiteral(arg.Content(content))
	if !ok || name == "" {
		return tokens
	}
	start := place(arg.StartPoint(), offset)
	return append(tokens, Token{
		Kind:  TokenVariable,
		Name:  name,
		Range: Range{Start: start, End: Position{Line: start.Line, Col: start.Col + len(name)}},
	})
}

// stringLiteral returns the contents of a single-line python string literal
// and the offset of the contents inside the literal.
func stringLiteral(lit string) (string, int, bool) {
	prefix := 0
	for prefix < len(lit) && strings.ContainsRune("rRbBuUfF", rune(lit[prefix])) {
		prefix++
	}
	rest := lit[prefix:]
	quote := 1
	if strings.HasPrefix(rest, `"""`) || strings.HasPrefix(rest, `'''`) {
		quote = 3
	}
	if len(rest) < 2*quote {
		return "", 0, false
	}
	inner := rest[quote : len(rest)-quote]
	if strings.ContainsAny(inner, "\n") {
		return "", 0, false
	}
	return inner, prefix + quote, true
}
