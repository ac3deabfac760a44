package expr

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

// TokenKind identifies the type of a lexer token.
type TokenKind int

const (
	// Literals and identifiers
	TokenIdent  TokenKind = iota // identifier
	TokenNumber                  // numeric literal

	// Arithmetic
	TokenPlus    // +
	TokenMinus   // -
	TokenStar    // *
	TokenSlash   // /
	TokenPercent // %
	TokenCaret   // ^

	// Comparison and logic
	TokenEq  // == or =
	TokenNeq // !=
	TokenGt  // >
	TokenGte // >=
	TokenLt  // <
	TokenLte // <=
	TokenAnd // && or &
	TokenOr  // || or |
	TokenNot // !

	// Delimiters
	TokenLParen // (
	TokenRParen // )
	TokenComma  // ,

	TokenEOF
)

var tokenNames = map[TokenKind]string{
	TokenIdent:   "identifier",
	TokenNumber:  "number",
	TokenPlus:    "+",
	TokenMinus:   "-",
	TokenStar:    "*",
	TokenSlash:   "/",
	TokenPercent: "%",
	TokenCaret:   "^",
	TokenEq:      "==",
	TokenNeq:     "!=",
	TokenGt:      ">",
	TokenGte:     ">=",
	TokenLt:      "<",
	TokenLte:     "<=",
	TokenAnd:     "&&",
	TokenOr:      "||",
	TokenNot:     "!",
	TokenLParen:  "(",
	TokenRParen:  ")",
	TokenComma:   ",",
	TokenEOF:     "EOF",
}

func (k TokenKind) String() string {
	if name, ok := tokenNames[k]; ok {
		return name
	}
	return fmt.Sprintf("token(%d)", int(k))
}

// Token is a lexed token with position information.
type Token struct {
	Kind  TokenKind
	Value string // raw text of the token
	Pos   int    // byte offset in source
}

// Lexer tokenizes formula strings.
type Lexer struct {
	src    string
	pos    int
	tokens []Token
}

// Lex tokenizes the input string and returns all tokens.
func Lex(src string) ([]Token, error) {
	l := &Lexer{src: src}
	if err := l.lexAll(); err != nil {
		return nil, err
	}
	return l.tokens, nil
}

func (l *Lexer) lexAll() error {
	for {
		l.skipWhitespace()
		if l.pos >= len(l.src) {
			l.tokens = append(l.tokens, Token{Kind: TokenEOF, Pos: l.pos})
			return nil
		}

		ch, _ := utf8.DecodeRuneInString(l.src[l.pos:])
		if l.tryEmitDoubleCharToken(ch) || l.tryEmitSingleCharToken(ch) {
			continue
		}

		switch {
		case isDigit(ch) || (ch == '.' && isDigit(rune(l.peekNext()))):
			if err := l.lexNumber(); err != nil {
				return err
			}
		case isIdentStart(ch):
			l.lexIdent()
		default:
			return fmt.Errorf("unexpected character %q at position %d", string(ch), l.pos)
		}
	}
}

func (l *Lexer) tryEmitDoubleCharToken(ch rune) bool {
	switch {
	case ch == '=' && l.peekNext() == '=':
		l.emit2(TokenEq)
	case ch == '!' && l.peekNext() == '=':
		l.emit2(TokenNeq)
	case ch == '>' && l.peekNext() == '=':
		l.emit2(TokenGte)
	case ch == '<' && l.peekNext() == '=':
		l.emit2(TokenLte)
	case ch == '&' && l.peekNext() == '&':
		l.emit2(TokenAnd)
	case ch == '|' && l.peekNext() == '|':
		l.emit2(TokenOr)
	default:
		return false
	}
	return true
}

func (l *Lexer) tryEmitSingleCharToken(ch rune) bool {
	switch ch {
	case '+':
		l.emit1(TokenPlus)
	case '-':
		l.emit1(TokenMinus)
	case '*':
		l.emit1(TokenStar)
	case '/':
		l.emit1(TokenSlash)
	case '%':
		l.emit1(TokenPercent)
	case '^':
		l.emit1(TokenCaret)
	case '=':
		l.emit1(TokenEq)
	case '>':
		l.emit1(TokenGt)
	case '<':
		l.emit1(TokenLt)
	case '&':
		l.emit1(TokenAnd)
	case '|':
		l.emit1(TokenOr)
	case '!':
		l.emit1(TokenNot)
	case '(':
		l.emit1(TokenLParen)
	case ')':
		l.emit1(TokenRParen)
	case ',':
		l.emit1(TokenComma)
	default:
		return false
	}
	return true
}

func (l *Lexer) peekNext() byte {
	next := l.pos + 1
	if next >= len(l.src) {
		return 0
	}
	return l.src[next]
}

func (l *Lexer) emit1(kind TokenKind) {
	l.tokens = append(l.tokens, Token{Kind: kind, Value: l.src[l.pos : l.pos+1], Pos: l.pos})
	l.pos++
}

func (l *Lexer) emit2(kind TokenKind) {
	l.tokens = append(l.tokens, Token{Kind: kind, Value: l.src[l.pos : l.pos+2], Pos: l.pos})
	l.pos += 2
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.src) {
		ch, size := utf8.DecodeRuneInString(l.src[l.pos:])
		if !unicode.IsSpace(ch) {
			break
		}
		l.pos += size
	}
}

func (l *Lexer) lexNumber() error {
	start := l.pos
	l.skipDigits()
	if l.pos < len(l.src) && l.src[l.pos] == '.' {
		l.pos++
		l.skipDigits()
	}
	// exponent: 1e3, 2.5E-4
	if l.pos < len(l.src) && (l.src[l.pos] == 'e' || l.src[l.pos] == 'E') {
		mark := l.pos
		l.pos++
		if l.pos < len(l.src) && (l.src[l.pos] == '+' || l.src[l.pos] == '-') {
			l.pos++
		}
		if l.pos >= len(l.src) || !isDigit(rune(l.src[l.pos])) {
			// "2e" is a number followed by the constant e.
			l.pos = mark
		} else {
			l.skipDigits()
		}
	}
	if l.pos < len(l.src) && l.src[l.pos] == '.' {
		return fmt.Errorf("malformed number %q at position %d", l.src[start:l.pos+1], start)
	}
	l.tokens = append(l.tokens, Token{Kind: TokenNumber, Value: l.src[start:l.pos], Pos: start})
	return nil
}

func (l *Lexer) skipDigits() {
	for l.pos < len(l.src) && isDigit(rune(l.src[l.pos])) {
		l.pos++
	}
}

func (l *Lexer) lexIdent() {
	start := l.pos
	for l.pos < len(l.src) {
		ch, size := utf8.DecodeRuneInString(l.src[l.pos:])
		if !isIdentPart(ch) {
			break
		}
		l.pos += size
	}
	l.tokens = append(l.tokens, Token{Kind: TokenIdent, Value: l.src[start:l.pos], Pos: start})
}

func isDigit(ch rune) bool {
	return ch >= '0' && ch <= '9'
}

func isIdentStart(ch rune) bool {
	return ch == '_' || unicode.IsLetter(ch)
}

func isIdentPart(ch rune) bool {
	return ch == '_' || unicode.IsLetter(ch) || unicode.IsDigit(ch)
}
