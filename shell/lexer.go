package shell

import (
	"strings"
	"unicode/utf8"
)

// Lexer tokenizes one line of shell input.
type Lexer struct {
	input string
	pos   int  // current byte position
	width int  // byte width of current rune
	ch    rune // current character, 0 at EOF
}

// NewLexer creates a lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input}
	if len(input) > 0 {
		l.ch, l.width = utf8.DecodeRuneInString(input)
	}
	return l
}

func (l *Lexer) advance() {
	l.pos += l.width
	if l.pos >= len(l.input) {
		l.ch = 0
		l.width = 0
	} else {
		l.ch, l.width = utf8.DecodeRuneInString(l.input[l.pos:])
	}
}

func (l *Lexer) peek() rune {
	next := l.pos + l.width
	if next >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[next:])
	return r
}

// NextToken returns the next token from the input.
func (l *Lexer) NextToken() Token {
	l.skipWhitespace()
	start := l.pos

	switch {
	case l.ch == 0:
		return Token{Type: TokenEOF, Pos: start}
	case l.ch == '@':
		l.advance()
		return Token{Type: TokenAt, Literal: "@", Pos: start}
	case l.ch == '=':
		l.advance()
		return Token{Type: TokenEq, Literal: "=", Pos: start}
	case l.ch == ';':
		l.advance()
		return Token{Type: TokenSemicolon, Literal: ";", Pos: start}
	case l.ch == '\'':
		return l.readString(start)
	default:
		return l.readWord(start)
	}
}

func (l *Lexer) skipWhitespace() {
	for {
		for isSpace(l.ch) {
			l.advance()
		}
		if l.ch == '#' {
			for l.ch != 0 && l.ch != '\n' {
				l.advance()
			}
			continue
		}
		break
	}
}

// readString reads a single-quoted string. A doubled quote inside it
// stands for one quote.
func (l *Lexer) readString(start int) Token {
	l.advance() // skip opening quote
	var buf strings.Builder
	for {
		if l.ch == 0 {
			return Token{Type: TokenIllegal, Literal: buf.String(), Pos: start}
		}
		if l.ch == '\'' {
			if l.peek() == '\'' {
				buf.WriteByte('\'')
				l.advance()
				l.advance()
				continue
			}
			l.advance() // skip closing quote
			return Token{Type: TokenString, Literal: buf.String(), Pos: start}
		}
		buf.WriteRune(l.ch)
		l.advance()
	}
}

func (l *Lexer) readWord(start int) Token {
	begin := l.pos
	for l.ch != 0 && !isSpace(l.ch) && !isSpecial(l.ch) {
		l.advance()
	}
	return Token{Type: TokenWord, Literal: l.input[begin:l.pos], Pos: start}
}

func isSpace(ch rune) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r'
}

// isSpecial reports whether ch ends a bare word.
func isSpecial(ch rune) bool {
	switch ch {
	case '@', '=', ';', '\'', '#':
		return true
	}
	return false
}

// Quote returns s as it must be written to lex back to a single word or
// string token.
func Quote(s string) string {
	if s != "" && !strings.ContainsFunc(s, func(r rune) bool { return isSpace(r) || isSpecial(r) }) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
