package scanner

import (
	"testing"

	"github.com/patacongo/pascal-pcode/lang/token"
)

func scanAll(t *testing.T, src string) []token.Value {
	t.Helper()
	fset := token.NewFileSet()
	f := fset.AddFile("test.pas", len(src))
	vals, err := ScanFile(f, []byte(src))
	if err != nil {
		t.Fatalf("ScanFile: %v", err)
	}
	return vals
}

func TestScanKeywordsCaseInsensitive(t *testing.T) {
	vals := scanAll(t, "BEGIN begin Begin END")
	want := []token.Token{token.BEGIN, token.BEGIN, token.BEGIN, token.END, token.EOF}
	if len(vals) != len(want) {
		t.Fatalf("got %d tokens, want %d", len(vals), len(want))
	}
	for i, w := range want {
		if vals[i].Tok != w {
			t.Errorf("token %d: got %v, want %v", i, vals[i].Tok, w)
		}
	}
}

func TestScanTwoCharOperators(t *testing.T) {
	vals := scanAll(t, ":= <= >= <> ..")
	want := []token.Token{token.ASSIGN, token.LE, token.GE, token.NEQ, token.DOTDOT, token.EOF}
	for i, w := range want {
		if vals[i].Tok != w {
			t.Errorf("token %d: got %v, want %v", i, vals[i].Tok, w)
		}
	}
}

func TestScanNumbers(t *testing.T) {
	vals := scanAll(t, "42 3.14 1e10")
	if vals[0].Tok != token.INTLIT || vals[0].Int != 42 {
		t.Errorf("got %+v", vals[0])
	}
	if vals[1].Tok != token.REALLIT || vals[1].Real != 3.14 {
		t.Errorf("got %+v", vals[1])
	}
	if vals[2].Tok != token.REALLIT {
		t.Errorf("got %+v", vals[2])
	}
}

func TestScanStrings(t *testing.T) {
	vals := scanAll(t, `'hi' 'x' 'it''s'`)
	if vals[0].Tok != token.STRINGLIT || vals[0].String != "hi" {
		t.Errorf("got %+v", vals[0])
	}
	if vals[1].Tok != token.CHARLIT || vals[1].String != "x" {
		t.Errorf("got %+v", vals[1])
	}
	if vals[2].Tok != token.STRINGLIT || vals[2].String != "it's" {
		t.Errorf("got %+v", vals[2])
	}
}

func TestScanComments(t *testing.T) {
	vals := scanAll(t, "x { a comment } := (* another *) 1")
	want := []token.Token{token.IDENT, token.ASSIGN, token.INTLIT, token.EOF}
	for i, w := range want {
		if vals[i].Tok != w {
			t.Errorf("token %d: got %v, want %v", i, vals[i].Tok, w)
		}
	}
}

func TestScanUnterminatedString(t *testing.T) {
	fset := token.NewFileSet()
	f := fset.AddFile("t.pas", 4)
	_, err := ScanFile(f, []byte("'abc"))
	if err == nil {
		t.Fatal("expected an error for unterminated string")
	}
}

func TestScanPositions(t *testing.T) {
	src := "program t;\nbegin\nend.\n"
	fset := token.NewFileSet()
	f := fset.AddFile("t.pas", len(src))
	vals, err := ScanFile(f, []byte(src))
	if err != nil {
		t.Fatal(err)
	}

	want := []struct {
		tok       token.Token
		line, col int
	}{
		{token.PROGRAM, 1, 1},
		{token.IDENT, 1, 9},
		{token.SEMI, 1, 10},
		{token.BEGIN, 2, 1},
		{token.END, 3, 1},
		{token.DOT, 3, 4},
		{token.EOF, 4, 1},
	}
	if len(vals) != len(want) {
		t.Fatalf("got %d tokens, want %d", len(vals), len(want))
	}
	for i, w := range want {
		pos := f.Position(vals[i].Pos)
		if vals[i].Tok != w.tok || pos.Line != w.line || pos.Column != w.col {
			t.Errorf("token %d: got %v at %d:%d, want %v at %d:%d",
				i, vals[i].Tok, pos.Line, pos.Column, w.tok, w.line, w.col)
		}
	}
}
