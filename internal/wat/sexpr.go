package wat

import "github.com/pkg/errors"

// node is a parsed S-expression: either an atom (a single non-paren token)
// or a list of child nodes enclosed in parens.
type node struct {
	Atom     *token
	List     []*node
	IsList   bool
	Line, Col int
}

// parseSExprs reads top-level S-expressions until the tokens are exhausted.
func parseSExprs(tokens []*token) ([]*node, error) {
	p := &sexprParser{tokens: tokens}
	var out []*node
	for !p.atEnd() {
		n, err := p.parseOne()
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

type sexprParser struct {
	tokens []*token
	pos    int
}

func (p *sexprParser) atEnd() bool { return p.pos >= len(p.tokens) }

func (p *sexprParser) parseOne() (*node, error) {
	if p.atEnd() {
		return nil, errors.New("unexpected end of input")
	}
	tok := p.tokens[p.pos]
	if tok.Type == tokenRParen {
		return nil, errors.Errorf("unexpected %q at %d:%d", ")", tok.Line, tok.Column)
	}
	if tok.Type != tokenLParen {
		p.pos++
		return &node{Atom: tok, Line: tok.Line, Col: tok.Column}, nil
	}

	p.pos++ // consume '('
	list := &node{IsList: true, Line: tok.Line, Col: tok.Column}
	for {
		if p.atEnd() {
			return nil, errors.Errorf("unterminated list starting at %d:%d", tok.Line, tok.Column)
		}
		if p.tokens[p.pos].Type == tokenRParen {
			p.pos++
			return list, nil
		}
		child, err := p.parseOne()
		if err != nil {
			return nil, err
		}
		list.List = append(list.List, child)
	}
}

// keyword returns the head keyword of a list node, or "" if n isn't a
// non-empty list headed by a keyword atom.
func (n *node) keyword() string {
	if !n.IsList || len(n.List) == 0 || n.List[0].Atom == nil {
		return ""
	}
	if n.List[0].Atom.Type != tokenKeyword {
		return ""
	}
	return n.List[0].Atom.Value
}

// text returns an atom node's literal value, or "" if n is not an atom.
func (n *node) text() string {
	if n.Atom == nil {
		return ""
	}
	return n.Atom.Value
}

func (n *node) isAtomType(t tokenType) bool {
	return n.Atom != nil && n.Atom.Type == t
}

func (n *node) errorf(format string, args ...interface{}) error {
	return errors.Errorf("%d:%d: "+format, append([]interface{}{n.Line, n.Col}, args...)...)
}
