package document

import (
	"regexp"
	"strings"
)

var (
	assignmentRe = regexp.MustCompile(
		`^(export\s+)?([\w${}/~-]+)((?::[\w${}/~.+-]+)*)(?:\[([\w${}.+-]*)\])?\s*(\?\?=|\?=|:=|\+=|=\+|\.=|=\.|=)\s*`)
	functionRe = regexp.MustCompile(
		`^(?:fakeroot\s+)?(python\s+)?(?:fakeroot\s+)?([\w${}.+-]*(?::[\w${}.+-]+)*)\s*\(\s*\)\s*\{\s*$`)
	defRe = regexp.MustCompile(`^def\s+([A-Za-z_]\w*)\s*\(`)
)

// Submatch indexes of assignmentRe.
const (
	asName = 4
	asFlag = 8
)

type builder struct {
	uri     string
	lines   []string
	ix      *Index
	py      *pythonScanner
	pending []string
}

func buildIndex(uri, text string) *Index {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	b := &builder{
		uri:   uri,
		lines: strings.Split(text, "\n"),
		ix:    &Index{URI: uri},
		py:    newPythonScanner(),
	}
	defer b.py.close()

	for i := 0; i < len(b.lines); {
		i = b.statement(i)
	}
	return b.ix
}

// statement consumes the statement starting at line i and returns the index
// of the next unconsumed line.
func (b *builder) statement(i int) int {
	line := b.lines[i]
	trimmed := strings.TrimLeft(line, " \t")
	indent := len(line) - len(trimmed)

	if strings.TrimSpace(line) == "" {
		b.pending = nil
		return i + 1
	}
	if strings.HasPrefix(trimmed, "#") {
		b.pending = append(b.pending, trimmed[1:])
		return i + 1
	}
	comments := b.pending
	b.pending = nil

	if m := functionRe.FindStringSubmatchIndex(trimmed); m != nil {
		return b.function(i, indent, trimmed, m, comments)
	}
	if indent == 0 {
		if m := defRe.FindStringSubmatchIndex(line); m != nil {
			return b.pythonDef(i, m, comments)
		}
	}
	if m := assignmentRe.FindStringSubmatchIndex(trimmed); m != nil {
		return b.assignment(i, indent, trimmed, m, comments)
	}

	words := splitWords(trimmed, indent)
	if len(words) > 0 {
		switch words[0].text {
		case "inherit", "inherit_defer":
			b.keyword(i, words[0])
			for _, w := range words[1:] {
				b.directive(DirectiveInherit, i, w)
			}
			return i + 1
		case "include", "require":
			b.keyword(i, words[0])
			kind := DirectiveInclude
			if words[0].text == "require" {
				kind = DirectiveRequire
			}
			if len(words) > 1 {
				b.directive(kind, i, words[1])
			}
			return i + 1
		case "addtask", "deltask":
			for _, w := range words[1:] {
				if w.text == "after" || w.text == "before" {
					continue
				}
				b.token(TokenTask, taskName(w.text), i, w.col, w.col+len(w.text))
			}
			return i + 1
		case "addhandler", "EXPORT_FUNCTIONS":
			for _, w := range words[1:] {
				b.token(TokenFunction, w.text, i, w.col, w.col+len(w.text))
			}
			return i + 1
		case "unset", "export":
			for _, w := range words[1:] {
				b.nameWithFlag(i, w)
			}
			return i + 1
		}
	}

	// Unrecognized statement: still index the expansions it uses.
	end := b.continuationEnd(i)
	for k := i; k <= end; k++ {
		b.expansions(k, 0, b.lines[k])
	}
	return end + 1
}

func (b *builder) assignment(i, indent int, trimmed string, m []int, comments []string) int {
	name := trimmed[m[asName]:m[asName+1]]
	nameRange := Range{
		Start: Position{Line: i, Col: indent + m[asName]},
		End:   Position{Line: i, Col: indent + m[asName+1]},
	}
	end := b.continuationEnd(i)
	stmt := Range{
		Start: Position{Line: i, Col: indent},
		End:   Position{Line: end, Col: len(b.lines[end])},
	}

	if m[asFlag] >= 0 {
		kind := TokenVariable
		if strings.HasPrefix(name, "do_") {
			kind = TokenTask
		}
		b.ix.Tokens = append(b.ix.Tokens, Token{Kind: kind, Name: name, Range: nameRange})
		b.token(TokenFlag, trimmed[m[asFlag]:m[asFlag+1]], i, indent+m[asFlag], indent+m[asFlag+1])
	} else {
		b.ix.Tokens = append(b.ix.Tokens, Token{Kind: TokenVariable, Name: name, Range: nameRange})
		b.declare(name, SymbolVariable, stmt, nameRange, comments)
	}

	for k := i; k <= end; k++ {
		start := 0
		if k == i {
			start = indent + m[1]
		}
		value := b.lines[k][start:]
		b.expansions(k, start, value)
		b.pathLiterals(k, start, value)
	}
	return end + 1
}

func (b *builder) function(i, indent int, trimmed string, m []int, comments []string) int {
	python := m[2] >= 0
	end := b.closingBrace(i)

	full := trimmed[m[4]:m[5]]
	if full == "python" {
		// `python() {` is an anonymous python function.
		python, full = true, ""
	}
	if full != "" {
		name, _, _ := strings.Cut(full, ":")
		kind := SymbolFunction
		tokenKind := TokenFunction
		if strings.HasPrefix(name, "do_") {
			kind, tokenKind = SymbolTask, TokenTask
		}
		nameRange := Range{
			Start: Position{Line: i, Col: indent + m[4]},
			End:   Position{Line: i, Col: indent + m[4] + len(name)},
		}
		stmt := Range{
			Start: Position{Line: i, Col: indent},
			End:   Position{Line: end, Col: len(b.lines[end])},
		}
		b.ix.Tokens = append(b.ix.Tokens, Token{Kind: tokenKind, Name: name, Range: nameRange})
		b.declare(name, kind, stmt, nameRange, comments)
	}

	bodyEnd := end
	if bodyEnd > i && strings.HasPrefix(b.lines[bodyEnd], "}") {
		bodyEnd--
	}
	if bodyEnd <= i {
		return end + 1
	}
	body := b.lines[i+1 : bodyEnd+1]
	if python {
		src, dedent := dedentLines(body)
		b.ix.Tokens = append(b.ix.Tokens, b.py.scan(src, Position{Line: i + 1}, dedent)...)
	} else {
		for k := i + 1; k <= bodyEnd; k++ {
			b.expansions(k, 0, b.lines[k])
		}
	}
	return end + 1
}

// pythonDef indexes a top-level `def` block: the header line and every
// following indented or blank line.
func (b *builder) pythonDef(i int, m []int, comments []string) int {
	end := i
	for k := i + 1; k < len(b.lines); k++ {
		l := b.lines[k]
		if strings.TrimSpace(l) == "" {
			continue
		}
		if l[0] != ' ' && l[0] != '\t' {
			break
		}
		end = k
	}

	name := b.lines[i][m[2]:m[3]]
	nameRange := Range{Start: Position{Line: i, Col: m[2]}, End: Position{Line: i, Col: m[3]}}
	stmt := Range{Start: Position{Line: i}, End: Position{Line: end, Col: len(b.lines[end])}}
	b.ix.Tokens = append(b.ix.Tokens, Token{Kind: TokenFunction, Name: name, Range: nameRange})
	b.declare(name, SymbolFunction, stmt, nameRange, comments)

	src := strings.Join(b.lines[i:end+1], "\n")
	b.ix.Tokens = append(b.ix.Tokens, b.py.scan(src, Position{Line: i}, 0)...)
	return end + 1
}

func (b *builder) declare(name string, kind SymbolKind, stmt, nameRange Range, comments []string) {
	b.ix.Symbols = append(b.ix.Symbols, Symbol{
		Name:      name,
		Kind:      kind,
		URI:       b.uri,
		Range:     stmt,
		NameRange: nameRange,
	})
	if len(comments) > 0 {
		b.ix.Comments = append(b.ix.Comments, CommentBlock{
			Name: name,
			Text: strings.Join(comments, "\n"),
			URI:  b.uri,
			Line: stmt.Start.Line + 1,
		})
	}
}

func (b *builder) keyword(i int, w word) {
	b.token(TokenKeyword, w.text, i, w.col, w.col+len(w.text))
}

func (b *builder) directive(kind DirectiveKind, i int, w word) {
	if strings.Contains(w.text, "$") {
		return
	}
	b.ix.Directives = append(b.ix.Directives, Directive{
		Kind:   kind,
		Target: w.text,
		Range:  Range{Start: Position{Line: i, Col: w.col}, End: Position{Line: i, Col: w.col + len(w.text)}},
	})
}

// nameWithFlag indexes `NAME` or `NAME[flag]` as used by unset and export.
func (b *builder) nameWithFlag(i int, w word) {
	name, rest, hasFlag := strings.Cut(w.text, "[")
	if name == "" {
		return
	}
	b.token(TokenVariable, name, i, w.col, w.col+len(name))
	if flag, ok := strings.CutSuffix(rest, "]"); hasFlag && ok && flag != "" {
		start := w.col + len(name) + 1
		b.token(TokenFlag, flag, i, start, start+len(flag))
	}
}

func (b *builder) token(kind TokenKind, name string, line, start, end int) {
	b.ix.Tokens = append(b.ix.Tokens, Token{
		Kind:  kind,
		Name:  name,
		Range: Range{Start: Position{Line: line, Col: start}, End: Position{Line: line, Col: end}},
	})
}

// expansions indexes `${NAME}` references and inline python `${@...}` in
// text, which starts at column col of line.
func (b *builder) expansions(line, col int, text string) {
	for pos := 0; pos < len(text); {
		rel := strings.Index(text[pos:], "${")
		if rel < 0 {
			return
		}
		start := pos + rel
		if start+2 < len(text) && text[start+2] == '@' {
			end := matchingBrace(text, start+1)
			if end < 0 {
				return
			}
			origin := Position{Line: line, Col: col + start + 3}
			b.ix.Tokens = append(b.ix.Tokens, b.py.scan(text[start+3:end], origin, 0)...)
			pos = end + 1
			continue
		}
		n := start + 2
		for n < len(text) && isNameByte(text[n]) {
			n++
		}
		if n < len(text) && text[n] == '}' && n > start+2 {
			b.token(TokenVariable, text[start+2:n], line, col+start+2, col+n)
			pos = n + 1
			continue
		}
		pos = start + 2
	}
}

// pathLiterals records every word of an assignment value that could name a
// file. Words using expansions are skipped.
func (b *builder) pathLiterals(line, col int, text string) {
	for _, w := range splitValueWords(maskExpansions(text)) {
		if strings.Contains(w.text, "$") || !strings.ContainsAny(w.text, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ") {
			continue
		}
		b.ix.Directives = append(b.ix.Directives, Directive{
			Kind:   DirectivePathLiteral,
			Target: w.text,
			Range: Range{
				Start: Position{Line: line, Col: col + w.col},
				End:   Position{Line: line, Col: col + w.col + len(w.text)},
			},
		})
	}
}

// continuationEnd returns the last line of the logical line starting at i,
// following trailing backslashes.
func (b *builder) continuationEnd(i int) int {
	for i < len(b.lines)-1 && strings.HasSuffix(strings.TrimRight(b.lines[i], " \t"), `\`) {
		i++
	}
	return i
}

// closingBrace returns the line of the `}` closing a function that starts at
// line i, or the last line when it is missing.
func (b *builder) closingBrace(i int) int {
	for k := i + 1; k < len(b.lines); k++ {
		if strings.HasPrefix(b.lines[k], "}") {
			return k
		}
	}
	return len(b.lines) - 1
}

type word struct {
	text string
	col  int
}

// splitWords splits s on blanks; col is added to each word's column.
func splitWords(s string, col int) []word {
	return splitFunc(s, col, func(c byte) bool { return c == ' ' || c == '\t' })
}

// splitValueWords splits an assignment value on blanks, quotes and line
// continuation backslashes.
func splitValueWords(s string) []word {
	return splitFunc(s, 0, func(c byte) bool {
		return c == ' ' || c == '\t' || c == '"' || c == '\'' || c == '\\'
	})
}

func splitFunc(s string, col int, sep func(byte) bool) []word {
	var words []word
	start := -1
	for i := 0; i <= len(s); i++ {
		if i == len(s) || sep(s[i]) {
			if start >= 0 {
				words = append(words, word{text: s[start:i], col: col + start})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	return words
}

func isNameByte(c byte) bool {
	return c == '_' || c == '-' || c == '.' || c == '+' || c == ':' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// matchingBrace returns the index of the '}' closing the '{' at open, skipping
// quoted strings, or -1.
func matchingBrace(s string, open int) int {
	depth := 0
	var quote byte
	for i := open; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// maskExpansions blanks every `${...}` in s, keeping byte offsets intact.
func maskExpansions(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	out := []byte(s)
	for pos := 0; pos < len(s); {
		rel := strings.Index(s[pos:], "${")
		if rel < 0 {
			break
		}
		start := pos + rel
		end := matchingBrace(s, start+1)
		if end < 0 {
			end = len(s) - 1
		}
		for k := start; k <= end; k++ {
			out[k] = ' '
		}
		pos = end + 1
	}
	return string(out)
}

// taskName adds the do_ prefix addtask and deltask allow to omit.
func taskName(name string) string {
	if strings.HasPrefix(name, "do_") {
		return name
	}
	return "do_" + name
}

// dedentLines joins lines after removing their common leading whitespace and
// returns the number of bytes removed from each line.
func dedentLines(lines []string) (string, int) {
	common := -1
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		n := len(l) - len(strings.TrimLeft(l, " \t"))
		if common < 0 || n < common {
			common = n
		}
	}
	if common <= 0 {
		return strings.Join(lines, "\n"), 0
	}
	out := make([]string, len(lines))
	for i, l := range lines {
		if len(l) >= common {
			out[i] = l[common:]
		} else {
			out[i] = strings.TrimLeft(l, " \t")
		}
	}
	return strings.Join(out, "\n"), common
}
