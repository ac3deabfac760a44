package expr

import (
	"fmt"
	"strconv"
)

// Parse parses a formula string into an AST. Identifiers are resolved
// against params (by position) and then against the named constants.
func Parse(input string, params []string) (Expr, error) {
	tokens, err := Lex(input)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens, params: make(map[string]int, len(params))}
	for i, name := range params {
		if _, dup := p.params[name]; dup {
			return nil, fmt.Errorf("duplicate parameter %q", name)
		}
		p.params[name] = i
	}
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.current().Kind != TokenEOF {
		return nil, fmt.Errorf("unexpected token %s at position %d", p.current().Kind, p.current().Pos)
	}
	return expr, nil
}

type parser struct {
	tokens []Token
	pos    int
	params map[string]int
}

func (p *parser) current() Token {
	if p.pos >= len(p.tokens) {
		return Token{Kind: TokenEOF}
	}
	return p.tokens[p.pos]
}

func (p *parser) advance() Token {
	tok := p.current()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

func (p *parser) expect(kind TokenKind) (Token, error) {
	tok := p.current()
	if tok.Kind != kind {
		return tok, fmt.Errorf("expected %s but got %s at position %d", kind, tok.Kind, tok.Pos)
	}
	p.advance()
	return tok, nil
}

// Precedence levels (low to high):
// 1. || (logical or)
// 2. && (logical and)
// 3. ==, != (equality)
// 4. <, >, <=, >= (comparison)
// 5. +, - (additive)
// 6. *, /, % (multiplicative)
// 7. -, +, ! (unary)
// 8. ^ (power, right-associative)

func (p *parser) parseExpr() (Expr, error) {
	return p.parseOr()
}

// parseLeft parses a left-associative level whose operands come from next.
func (p *parser) parseLeft(next func() (Expr, error), ops ...TokenKind) (Expr, error) {
	left, err := next()
	if err != nil {
		return nil, err
	}
	for p.currentIs(ops...) {
		op := p.advance()
		right, err := next()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Left: left, Op: op.Kind, Right: right}
	}
	return left, nil
}

func (p *parser) currentIs(kinds ...TokenKind) bool {
	cur := p.current().Kind
	for _, k := range kinds {
		if cur == k {
			return true
		}
	}
	return false
}

func (p *parser) parseOr() (Expr, error) {
	return p.parseLeft(p.parseAnd, TokenOr)
}

func (p *parser) parseAnd() (Expr, error) {
	return p.parseLeft(p.parseEquality, TokenAnd)
}

func (p *parser) parseEquality() (Expr, error) {
	return p.parseLeft(p.parseComparison, TokenEq, TokenNeq)
}

func (p *parser) parseComparison() (Expr, error) {
	return p.parseLeft(p.parseAdditive, TokenGt, TokenGte, TokenLt, TokenLte)
}

func (p *parser) parseAdditive() (Expr, error) {
	return p.parseLeft(p.parseMultiplicative, TokenPlus, TokenMinus)
}

func (p *parser) parseMultiplicative() (Expr, error) {
	return p.parseLeft(p.parseUnary, TokenStar, TokenSlash, TokenPercent)
}

func (p *parser) parseUnary() (Expr, error) {
	if p.currentIs(TokenMinus, TokenPlus, TokenNot) {
		op := p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Op: op.Kind, Operand: operand}, nil
	}
	return p.parsePower()
}

func (p *parser) parsePower() (Expr, error) {
	base, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	if p.current().Kind != TokenCaret {
		return base, nil
	}
	op := p.advance()
	// -2^2 is -(2^2) but 2^-1 is allowed, so the exponent re-enters at unary.
	exp, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	return &BinaryExpr{Left: base, Op: op.Kind, Right: exp}, nil
}

func (p *parser) parsePrimary() (Expr, error) {
	tok := p.current()

	switch tok.Kind {
	case TokenNumber:
		p.advance()
		val, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q at position %d", tok.Value, tok.Pos)
		}
		return &NumberExpr{Value: val}, nil

	case TokenIdent:
		p.advance()
		if p.current().Kind == TokenLParen {
			return p.parseCall(tok)
		}
		if idx, ok := p.params[tok.Value]; ok {
			return &ParamExpr{Name: tok.Value, Index: idx}, nil
		}
		if v, ok := constants[tok.Value]; ok {
			return &NumberExpr{Value: v}, nil
		}
		return nil, fmt.Errorf("unknown identifier %q at position %d", tok.Value, tok.Pos)

	case TokenLParen:
		p.advance()
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRParen); err != nil {
			return nil, err
		}
		return expr, nil

	default:
		return nil, fmt.Errorf("unexpected token %s at position %d", tok.Kind, tok.Pos)
	}
}

func (p *parser) parseCall(name Token) (Expr, error) {
	fn, ok := functions[name.Value]
	if !ok {
		return nil, fmt.Errorf("unknown function %q at position %d", name.Value, name.Pos)
	}
	p.advance() // skip (
	var args []Expr
	if p.current().Kind != TokenRParen {
		for {
			arg, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.current().Kind != TokenComma {
				break
			}
			p.advance() // skip comma
		}
	}
	if _, err := p.expect(TokenRParen); err != nil {
		return nil, err
	}
	if len(args) < fn.minArgs || (fn.maxArgs >= 0 && len(args) > fn.maxArgs) {
		return nil, fmt.Errorf("%s: wrong number of arguments (%d) at position %d", name.Value, len(args), name.Pos)
	}
	return &CallExpr{Name: name.Value, Args: args, fn: fn}, nil
}
