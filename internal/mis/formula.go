package mis

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Node is a parsed formula expression.
type Node interface {
	String() string
}

// Number is a numeric literal.
type Number struct {
	Value decimal.Decimal
}

// Ref names an earlier rule or a trial balance particular.
type Ref struct {
	Name string
	Pos  int
}

// Unary is a negation.
type Unary struct {
	Op byte
	X  Node
}

// Binary is an arithmetic operation.
type Binary struct {
	Op   byte
	L, R Node
}

func (n Number) String() string { return n.Value.String() }
func (r Ref) String() string    { return "[" + r.Name + "]" }
func (u Unary) String() string  { return "(" + string(u.Op) + u.X.String() + ")" }
func (b Binary) String() string {
	return "(" + b.L.String() + " " + string(b.Op) + " " + b.R.String() + ")"
}

// FormulaError reports a syntax error at a 1-based character position.
type FormulaError struct {
	Formula string
	Pos     int
	Msg     string
}

func (e *FormulaError) Error() string {
	return fmt.Sprintf("mis: formula %q: %s at position %d", e.Formula, e.Msg, e.Pos)
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokName
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
	num  decimal.Decimal
	pos  int
}

func isOperator(r rune) bool {
	switch r {
	case '+', '-', '*', '/', '(', ')', '[', ']', '"':
		return true
	}
	return false
}

// tokenize splits a formula. A bare run of non-operator characters is a number
// when it parses as one, otherwise an operand name (spaces allowed). Names with
// operator characters must be written as [name] or "name".
func tokenize(src string) ([]token, error) {
	runes := []rune(src)
	var toks []token
	fail := func(pos int, msg string) error {
		return &FormulaError{Formula: src, Pos: pos + 1, Msg: msg}
	}
	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			i++
		case r == '+' || r == '-' || r == '*' || r == '/':
			toks = append(toks, token{kind: tokOp, text: string(r), pos: i})
			i++
		case r == '(':
			toks = append(toks, token{kind: tokLParen, text: "(", pos: i})
			i++
		case r == ')':
			toks = append(toks, token{kind: tokRParen, text: ")", pos: i})
			i++
		case r == '[' || r == '"':
			closer := ']'
			if r == '"' {
				closer = '"'
			}
			j := i + 1
			for j < len(runes) && runes[j] != closer {
				j++
			}
			if j >= len(runes) {
				return nil, fail(i, "unterminated name")
			}
			name := strings.TrimSpace(string(runes[i+1 : j]))
			if name == "" {
				return nil, fail(i, "empty name")
			}
			toks = append(toks, token{kind: tokName, text: name, pos: i})
			i = j + 1
		case r == ']':
			return nil, fail(i, "unexpected ']'")
		default:
			j := i
			for j < len(runes) && !isOperator(runes[j]) {
				j++
			}
			text := strings.TrimSpace(string(runes[i:j]))
			if d, err := decimal.NewFromString(text); err == nil {
				toks = append(toks, token{kind: tokNumber, text: text, num: d, pos: i})
			} else {
				toks = append(toks, token{kind: tokName, text: strings.Join(strings.Fields(text), " "), pos: i})
			}
			i = j
		}
	}
	toks = append(toks, token{kind: tokEOF, pos: len(runes)})
	return toks, nil
}

type parser struct {
	src  string
	toks []token
	at   int
}

// Parse compiles a formula into an expression tree.
//
//	expr    := term (('+'|'-') term)*
//	term    := unary (('*'|'/') unary)*
//	unary   := '-' unary | '+' unary | primary
//	primary := number | name | '(' expr ')'
func Parse(src string) (Node, error) {
	if strings.TrimSpace(src) == "" {
		return nil, &FormulaError{Formula: src, Pos: 1, Msg: "empty formula"}
	}
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{src: src, toks: toks}
	node, err := p.expr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, p.errorf(tok, "unexpected %q", tok.text)
	}
	return node, nil
}

func (p *parser) peek() token { return p.toks[p.at] }

func (p *parser) next() token {
	tok := p.toks[p.at]
	if tok.kind != tokEOF {
		p.at++
	}
	return tok
}

func (p *parser) errorf(tok token, format string, args ...any) error {
	return &FormulaError{Formula: p.src, Pos: tok.pos + 1, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) expr() (Node, error) {
	left, err := p.term()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		if tok.kind != tokOp || (tok.text != "+" && tok.text != "-") {
			return left, nil
		}
		p.next()
		right, err := p.term()
		if err != nil {
			return nil, err
		}
		left = Binary{Op: tok.text[0], L: left, R: right}
	}
}

func (p *parser) term() (Node, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		if tok.kind != tokOp || (tok.text != "*" && tok.text != "/") {
			return left, nil
		}
		p.next()
		right, err := p.unary()
		if err != nil {
			return nil, err
		}
		left = Binary{Op: tok.text[0], L: left, R: right}
	}
}

func (p *parser) unary() (Node, error) {
	tok := p.peek()
	if tok.kind == tokOp && (tok.text == "-" || tok.text == "+") {
		p.next()
		x, err := p.unary()
		if err != nil {
			return nil, err
		}
		if tok.text == "+" {
			return x, nil
		}
		return Unary{Op: '-', X: x}, nil
	}
	return p.primary()
}

func (p *parser) primary() (Node, error) {
	tok := p.next()
	switch tok.kind {
	case tokNumber:
		return Number{Value: tok.num}, nil
	case tokName:
		return Ref{Name: tok.text, Pos: tok.pos + 1}, nil
	case tokLParen:
		inner, err := p.expr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, p.errorf(closing, "expected ')'")
		}
		return inner, nil
	case tokEOF:
		return nil, p.errorf(tok, "unexpected end of formula")
	default:
		return nil, p.errorf(tok, "unexpected %q", tok.text)
	}
}

// Refs lists the operand names referenced by node, once each in order.
func Refs(node Node) []string {
	var out []string
	seen := make(map[string]bool)
	var walk func(Node)
	walk = func(n Node) {
		switch v := n.(type) {
		case Ref:
			key := foldName(v.Name)
			if !seen[key] {
				seen[key] = true
				out = append(out, v.Name)
			}
		case Unary:
			walk(v.X)
		case Binary:
			walk(v.L)
			walk(v.R)
		}
	}
	walk(node)
	return out
}
