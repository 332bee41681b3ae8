package condition

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var ErrInvalidExpression = errors.New("invalid condition logic")

// Expr — разобранное булево выражение над ссылками на условия.
type Expr interface {
	Eval(resolve func(ref string) (bool, error)) (bool, error)
	// Refs перечисляет ссылки слева направо, с повторами.
	Refs() []string
}

type refExpr struct{ ref string }

type notExpr struct{ x Expr }

type binExpr struct {
	and  bool
	l, r Expr
}

func (e refExpr) Eval(resolve func(string) (bool, error)) (bool, error) { return resolve(e.ref) }

func (e refExpr) Refs() []string { return []string{e.ref} }
func (e notExpr) Refs() []string { return e.x.Refs() }
func (e binExpr) Refs() []string { return append(e.l.Refs(), e.r.Refs()...) }

func (e notExpr) Eval(resolve func(string) (bool, error)) (bool, error) {
	v, err := e.x.Eval(resolve)
	return !v, err
}

func (e binExpr) Eval(resolve func(string) (bool, error)) (bool, error) {
	l, err := e.l.Eval(resolve)
	if err != nil {
		return false, err
	}
	// Короткое замыкание
	if e.and && !l {
		return false, nil
	}
	if !e.and && l {
		return true, nil
	}
	return e.r.Eval(resolve)
}

// ParseLogic разбирает выражение вида "1 AND (2 OR NOT c3)".
// Поддерживаются AND/OR/NOT, &&/||/! и скобки; ссылки — индексы (с 1) или id условий.
func ParseLogic(expr string) (Expr, error) {
	toks, err := tokenize(expr)
	if err != nil {
		return nil, err
	}
	if len(toks) == 0 {
		return nil, fmt.Errorf("%w: empty expression", ErrInvalidExpression)
	}
	p := &parser{toks: toks}
	e, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.toks) {
		return nil, fmt.Errorf("%w: unexpected %q", ErrInvalidExpression, p.toks[p.pos])
	}
	return e, nil
}

func tokenize(s string) ([]string, error) {
	var toks []string
	rs := []rune(s)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(' || r == ')' || r == '!':
			toks = append(toks, string(r))
			i++
		case r == '&' || r == '|':
			if i+1 >= len(rs) || rs[i+1] != r {
				return nil, fmt.Errorf("%w: dangling %q", ErrInvalidExpression, r)
			}
			toks = append(toks, string([]rune{r, r}))
			i += 2
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-':
			j := i
			for j < len(rs) && (unicode.IsLetter(rs[j]) || unicode.IsDigit(rs[j]) || rs[j] == '_' || rs[j] == '-') {
				j++
			}
			toks = append(toks, string(rs[i:j]))
			i = j
		default:
			return nil, fmt.Errorf("%w: unexpected character %q", ErrInvalidExpression, r)
		}
	}
	return toks, nil
}

type parser struct {
	toks []string
	pos  int
}

func (p *parser) peek() string {
	if p.pos < len(p.toks) {
		return p.toks[p.pos]
	}
	return ""
}

func isOr(t string) bool  { return t == "||" || strings.EqualFold(t, "or") }
func isAnd(t string) bool { return t == "&&" || strings.EqualFold(t, "and") }
func isNot(t string) bool { return t == "!" || strings.EqualFold(t, "not") }

func (p *parser) parseOr() (Expr, error) {
	l, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for isOr(p.peek()) {
		p.pos++
		r, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		l = binExpr{and: false, l: l, r: r}
	}
	return l, nil
}

func (p *parser) parseAnd() (Expr, error) {
	l, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for isAnd(p.peek()) {
		p.pos++
		r, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		l = binExpr{and: true, l: l, r: r}
	}
	return l, nil
}

func (p *parser) parseNot() (Expr, error) {
	if isNot(p.peek()) {
		p.pos++
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return notExpr{x: x}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Expr, error) {
	t := p.peek()
	switch {
	case t == "":
		return nil, fmt.Errorf("%w: unexpected end", ErrInvalidExpression)
	case t == "(":
		p.pos++
		e, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.peek() != ")" {
			return nil, fmt.Errorf("%w: missing ')'", ErrInvalidExpression)
		}
		p.pos++
		return e, nil
	case t == ")" || isOr(t) || isAnd(t):
		return nil, fmt.Errorf("%w: unexpected %q", ErrInvalidExpression, t)
	default:
		p.pos++
		return refExpr{ref: t}, nil
	}
}
