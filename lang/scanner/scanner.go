// Package scanner implements the Pascal tokenizer: it streams tokens with
// category and sub-type, populating the integer/real/string token values
// consumed by the compiler.
package scanner

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/patacongo/pascal-pcode/lang/token"
)

type (
	Error     = token.Error
	ErrorList = token.ErrorList
)

// ScanFile tokenizes the full contents of a single source file and returns
// every token.Value, in order, terminated by an EOF value. The returned
// error, if non-nil, is a token.ErrorList.
func ScanFile(file *token.File, src []byte) ([]token.Value, error) {
	var (
		s  Scanner
		el ErrorList
	)
	s.Init(file, src, el.Add)

	var vals []token.Value
	for {
		v := s.Scan()
		vals = append(vals, v)
		if v.Tok == token.EOF {
			break
		}
	}
	el.Sort()
	return vals, el.Err()
}

// Scanner tokenizes a single Pascal source file.
type Scanner struct {
	file *token.File
	src  []byte
	err  func(token.Position, string)

	cur  rune
	off  int
	roff int
}

// Init prepares the scanner to tokenize src, which must have exactly
// file.Size() bytes.
func (s *Scanner) Init(file *token.File, src []byte, errHandler func(token.Position, string)) {
	if file.Size() != len(src) {
		panic(fmt.Sprintf("scanner.Init: file size (%d) != len(src) (%d)", file.Size(), len(src)))
	}
	s.file = file
	s.src = src
	s.err = errHandler
	s.cur = ' '
	s.off = 0
	s.roff = 0
	s.advance()
}

func (s *Scanner) advance() {
	// s.off is still the offset of the current rune; record the line break
	// before the cursor moves (AddLine wants the '\n' position itself)
	if s.cur == '\n' {
		s.file.AddLine(s.off)
	}
	if s.roff >= len(s.src) {
		s.off = len(s.src)
		s.cur = -1
		return
	}
	s.off = s.roff
	r, w := rune(s.src[s.roff]), 1
	if r >= utf8.RuneSelf {
		r, w = utf8.DecodeRune(s.src[s.roff:])
		if r == utf8.RuneError && w == 1 {
			s.error(s.off, "illegal UTF-8 encoding")
		}
	}
	s.roff += w
	s.cur = r
}

func (s *Scanner) peek() byte {
	if s.roff < len(s.src) {
		return s.src[s.roff]
	}
	return 0
}

func (s *Scanner) error(off int, msg string) {
	if s.err != nil {
		s.err(s.file.Position(s.file.Pos(off)), msg)
	}
}

func (s *Scanner) errorf(off int, format string, args ...any) {
	s.error(off, fmt.Sprintf(format, args...))
}

// Scan returns the next token.Value in the source, case-folding keywords
// since Pascal reserved words are case-insensitive.
func (s *Scanner) Scan() token.Value {
	s.skipWhitespaceAndComments()

	start := s.off
	pos := s.file.Pos(start)

	switch cur := s.cur; {
	case isLetter(cur):
		lit := s.ident()
		tok := token.IDENT
		if kw, ok := token.Reserved[strings.ToLower(lit)]; ok {
			tok = kw
		}
		return token.Value{Tok: tok, Pos: pos, Raw: lit}

	case isDigit(cur):
		return s.number(pos)

	case cur == '\'':
		return s.quotedString(pos)

	case cur == -1:
		return token.Value{Tok: token.EOF, Pos: pos}

	default:
		return s.punct(pos, start)
	}
}

func (s *Scanner) ident() string {
	start := s.off
	for isLetter(s.cur) || isDigit(s.cur) {
		s.advance()
	}
	return string(s.src[start:s.off])
}

// number scans an unsigned integer or real literal: digit+ ['.' digit+]
// [('e'|'E') ['+'|'-'] digit+].
func (s *Scanner) number(pos token.Pos) token.Value {
	start := s.off
	for isDigit(s.cur) {
		s.advance()
	}
	isReal := false
	if s.cur == '.' && isDigit(rune(s.peek())) {
		isReal = true
		s.advance()
		for isDigit(s.cur) {
			s.advance()
		}
	}
	if s.cur == 'e' || s.cur == 'E' {
		isReal = true
		s.advance()
		if s.cur == '+' || s.cur == '-' {
			s.advance()
		}
		for isDigit(s.cur) {
			s.advance()
		}
	}
	lit := string(s.src[start:s.off])
	if isReal {
		f, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			s.errorf(start, "malformed real literal %q: %s", lit, err)
		}
		return token.Value{Tok: token.REALLIT, Pos: pos, Raw: lit, Real: f}
	}
	n, err := strconv.ParseInt(lit, 10, 64)
	if err != nil {
		s.errorf(start, "malformed integer literal %q: %s", lit, err)
	}
	return token.Value{Tok: token.INTLIT, Pos: pos, Raw: lit, Int: n}
}

// quotedString scans a Pascal string literal delimited by single quotes,
// where '' is an escaped quote. A literal of exactly one character is also
// returned as CHARLIT so the compiler can treat 'x' as a char constant.
func (s *Scanner) quotedString(pos token.Pos) token.Value {
	start := s.off
	var buf bytes.Buffer
	s.advance() // consume opening quote
	for {
		if s.cur == -1 {
			s.error(start, "unterminated string literal")
			break
		}
		if s.cur == '\'' {
			s.advance()
			if s.cur == '\'' {
				buf.WriteByte('\'')
				s.advance()
				continue
			}
			break
		}
		if s.cur == '\n' {
			s.error(start, "unterminated string literal")
			break
		}
		buf.WriteRune(s.cur)
		s.advance()
	}
	raw := string(s.src[start:s.off])
	val := buf.String()
	tok := token.STRINGLIT
	if utf8.RuneCountInString(val) == 1 {
		tok = token.CHARLIT
	}
	return token.Value{Tok: tok, Pos: pos, Raw: raw, String: val}
}

func (s *Scanner) punct(pos token.Pos, start int) token.Value {
	cur := s.cur
	s.advance()
	mk := func(tok token.Token) token.Value { return token.Value{Tok: tok, Pos: pos, Raw: string(s.src[start:s.off])} }

	switch cur {
	case '+':
		return mk(token.PLUS)
	case '-':
		return mk(token.MINUS)
	case '*':
		return mk(token.STAR)
	case '/':
		return mk(token.SLASH)
	case '=':
		return mk(token.EQ)
	case '<':
		if s.cur == '>' {
			s.advance()
			return mk(token.NEQ)
		}
		if s.cur == '=' {
			s.advance()
			return mk(token.LE)
		}
		return mk(token.LT)
	case '>':
		if s.cur == '=' {
			s.advance()
			return mk(token.GE)
		}
		return mk(token.GT)
	case '(':
		return mk(token.LPAREN)
	case ')':
		return mk(token.RPAREN)
	case '[':
		return mk(token.LBRACK)
	case ']':
		return mk(token.RBRACK)
	case ',':
		return mk(token.COMMA)
	case ';':
		return mk(token.SEMI)
	case ':':
		if s.cur == '=' {
			s.advance()
			return mk(token.ASSIGN)
		}
		return mk(token.COLON)
	case '.':
		if s.cur == '.' {
			s.advance()
			return mk(token.DOTDOT)
		}
		return mk(token.DOT)
	case '^':
		return mk(token.CARET)
	case '@':
		return mk(token.AT)
	default:
		if cur == utf8.RuneError {
			s.errorf(start, "illegal UTF-8 byte")
		} else {
			s.errorf(start, "illegal character %#U", cur)
		}
		return mk(token.ILLEGAL)
	}
}

// skipWhitespaceAndComments consumes whitespace, '{ }' comments and '(* *)'
// comments; Pascal comments do not nest.
func (s *Scanner) skipWhitespaceAndComments() {
	for {
		switch {
		case isWhitespace(s.cur):
			s.advance()
		case s.cur == '{':
			start := s.off
			s.advance()
			for s.cur != '}' && s.cur != -1 {
				s.advance()
			}
			if s.cur == -1 {
				s.error(start, "unterminated comment")
				return
			}
			s.advance()
		case s.cur == '(' && s.peek() == '*':
			start := s.off
			s.advance()
			s.advance()
			for !(s.cur == '*' && s.peek() == ')') && s.cur != -1 {
				s.advance()
			}
			if s.cur == -1 {
				s.error(start, "unterminated comment")
				return
			}
			s.advance()
			s.advance()
		default:
			return
		}
	}
}

func isWhitespace(r rune) bool { return r == ' ' || r == '\t' || r == '\n' || r == '\r' }

func isLetter(r rune) bool {
	return 'a' <= r && r <= 'z' || 'A' <= r && r <= 'Z' || r == '_' ||
		r >= utf8.RuneSelf && unicode.IsLetter(r)
}

func isDigit(r rune) bool { return '0' <= r && r <= '9' }
