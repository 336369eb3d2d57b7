package sbmlio

import (
	"math/big"
	"strings"

	"github.com/spatialmodel/kinetics/expr"
	"github.com/spatialmodel/kinetics/kinerr"
)

// Resolver maps an identifier in a formula string to its interned
// symbol reference. The exchange reader supplies a resolver that checks
// the reaction-local kinetic-law scope first, then the model scope.
type Resolver func(name string) (expr.Expr, bool)

// ParseFormula parses a conventional infix rate-law formula (the plain
// text representation the exchange format stores) into an expression
// tree. The grammar covers what the writer emits and what the supported
// model fragment needs: + - * / ^, unary minus, parentheses, numeric
// literals, identifiers, and the exp/log/abs calls.
func ParseFormula(s string, resolve Resolver) (expr.Expr, error) {
	p := &formulaParser{src: s, resolve: resolve}
	e, err := p.parseSum()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, kinerr.Wrap(kinerr.SemanticError, "formula %q: unexpected input at offset %d", s, p.pos)
	}
	return e, nil
}

type formulaParser struct {
	src     string
	pos     int
	resolve Resolver
}

func (p *formulaParser) skipSpace() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t' || p.src[p.pos] == '\n') {
		p.pos++
	}
}

func (p *formulaParser) peek() byte {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *formulaParser) parseSum() (expr.Expr, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		switch p.peek() {
		case '+':
			p.pos++
			right, err := p.parseTerm()
			if err != nil {
				return nil, err
			}
			left = expr.Add(left, right)
		case '-':
			p.pos++
			right, err := p.parseTerm()
			if err != nil {
				return nil, err
			}
			left = expr.Sub(left, right)
		default:
			return left, nil
		}
	}
}

func (p *formulaParser) parseTerm() (expr.Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.peek() {
		case '*':
			p.pos++
			right, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			left = expr.Mul(left, right)
		case '/':
			p.pos++
			right, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			left = expr.Div(left, right)
		default:
			return left, nil
		}
	}
}

func (p *formulaParser) parseUnary() (expr.Expr, error) {
	if p.peek() == '-' {
		p.pos++
		e, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return expr.Neg(e), nil
	}
	return p.parsePower()
}

func (p *formulaParser) parsePower() (expr.Expr, error) {
	base, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	if p.peek() != '^' {
		return base, nil
	}
	p.pos++
	// Right-associative; an exponent that reduces to an integer
	// constant becomes an integer power node.
	exp, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	if c, ok := exp.(expr.Const); ok && c.IsRat && c.Rat.IsInt() && c.Rat.Num().IsInt64() {
		return expr.Pow{Base: base, Exp: int(c.Rat.Num().Int64())}, nil
	}
	if pr, ok := exp.(expr.Product); ok && len(pr.Factors) == 1 {
		// Unary minus wraps its operand in a coefficient -1 product.
		if c, ok := pr.Factors[0].(expr.Const); ok && c.IsRat && pr.Coeff.IsRat &&
			pr.Coeff.Rat.Cmp(big.NewRat(-1, 1)) == 0 && c.Rat.IsInt() && c.Rat.Num().IsInt64() {
			return expr.Pow{Base: base, Exp: -int(c.Rat.Num().Int64())}, nil
		}
	}
	return expr.PowExpr{Base: base, Exp: exp}, nil
}

func (p *formulaParser) parseAtom() (expr.Expr, error) {
	c := p.peek()
	switch {
	case c == '(':
		p.pos++
		e, err := p.parseSum()
		if err != nil {
			return nil, err
		}
		if p.peek() != ')' {
			return nil, kinerr.Wrap(kinerr.SemanticError, "formula %q: missing ')' at offset %d", p.src, p.pos)
		}
		p.pos++
		return e, nil
	case c >= '0' && c <= '9' || c == '.':
		return p.parseNumber()
	case isIdentStart(c):
		return p.parseIdent()
	default:
		return nil, kinerr.Wrap(kinerr.SemanticError, "formula %q: unexpected character %q at offset %d", p.src, c, p.pos)
	}
}

func (p *formulaParser) parseNumber() (expr.Expr, error) {
	start := p.pos
	seenExp := false
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c >= '0' && c <= '9' || c == '.' {
			p.pos++
			continue
		}
		if (c == 'e' || c == 'E') && !seenExp && p.pos+1 < len(p.src) {
			next := p.src[p.pos+1]
			if next >= '0' && next <= '9' || next == '+' || next == '-' {
				seenExp = true
				p.pos += 2
				continue
			}
		}
		break
	}
	text := p.src[start:p.pos]
	r, ok := new(big.Rat).SetString(text)
	if !ok {
		return nil, kinerr.Wrap(kinerr.SemanticError, "formula %q: bad numeric literal %q", p.src, text)
	}
	if !strings.ContainsAny(text, ".eE") {
		return expr.Const{IsRat: true, Rat: r}, nil
	}
	f, _ := r.Float64()
	return expr.NewFloat(f), nil
}

func (p *formulaParser) parseIdent() (expr.Expr, error) {
	start := p.pos
	for p.pos < len(p.src) && isIdentPart(p.src[p.pos]) {
		p.pos++
	}
	name := p.src[start:p.pos]

	if p.peek() == '(' {
		fn, ok := map[string]func(expr.Expr) expr.Expr{
			"exp": expr.Exp, "log": expr.Log, "abs": expr.Abs,
		}[name]
		if !ok {
			return nil, kinerr.Wrap(kinerr.UnsupportedFeature, "formula %q: unknown function %q", p.src, name)
		}
		p.pos++
		arg, err := p.parseSum()
		if err != nil {
			return nil, err
		}
		if p.peek() != ')' {
			return nil, kinerr.Wrap(kinerr.SemanticError, "formula %q: missing ')' after %s(", p.src, name)
		}
		p.pos++
		return fn(arg), nil
	}

	e, ok := p.resolve(name)
	if !ok {
		return nil, kinerr.Wrap(kinerr.SemanticError, "formula %q: identifier %q is not resolvable", p.src, name)
	}
	return e, nil
}

func isIdentStart(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || c >= '0' && c <= '9'
}
