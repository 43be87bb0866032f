package compiler

import (
	"fmt"

	"github.com/patacongo/pascal-pcode/lang/emitter"
	"github.com/patacongo/pascal-pcode/lang/object"
	"github.com/patacongo/pascal-pcode/lang/symtab"
	"github.com/patacongo/pascal-pcode/lang/token"
	"github.com/patacongo/pascal-pcode/lang/types"
)

// withContext is the single mutable WITH-statement context. One slot is
// enough: each WITH saves and restores it around its body, and nested
// WITHs on record-typed fields rewrite the slot in place rather than
// pushing a new one.
type withContext struct {
	active     bool
	level      int
	pointer    bool
	varParm    bool
	offset     int
	index      int // extra byte offset applied after the pointer load (pointer/VAR-param records)
	recordType symtab.Ref
}

// Compiler holds all per-compilation mutable state: the token cursor, the
// symbol table, the emitter and its object sink, the label counter, the
// error counters and the WITH context. There is exactly one instance per
// compiled file; nothing here is safe for concurrent use, by design.
type Compiler struct {
	file   *token.File
	toks   []token.Value
	pos    int // index into toks of the current token
	cur    token.Value

	Sym *symtab.Table
	Em  *emitter.Emitter

	tableBase symtab.Ref // level-0 scope base, restored at block exit

	with withContext

	// frameOffset is the next free byte offset for a local VAR declared in
	// the block currently being compiled; paramOffset is the next (negative,
	// growing downward) offset for a parameter of the procedure/function
	// currently being declared.
	frameOffset int
	paramOffset int

	// pendingInits accumulates the variables the current block's Initializer
	// pass must act on; nil outside of block().
	pendingInits *[]initTarget

	// typeFixups accumulates forward pointer-type references (`^Name` before
	// `Name` is declared) pending resolution within the current TYPE section.
	typeFixups *[]pendingPtrFixup

	nextLabel int

	nWarnings int
	nErrors   int

	diags []Diagnostic
}

// New creates a Compiler over an already-scanned token stream.
func New(file *token.File, toks []token.Value, sink object.Sink) *Compiler {
	c := &Compiler{
		file: file,
		toks: toks,
		Sym:  symtab.NewTable(),
		Em:   emitter.New(sink),
	}
	c.tableBase = c.Sym.Mark()
	if len(toks) > 0 {
		c.cur = toks[0]
	}
	return c
}

// Diagnostics returns every diagnostic recorded so far, in emission order.
func (c *Compiler) Diagnostics() []Diagnostic { return c.diags }

// ErrorCount reports how many Error/Fatal diagnostics have been recorded.
func (c *Compiler) ErrorCount() int { return c.nErrors }

func (c *Compiler) curPos() token.Position { return c.file.Position(c.cur.Pos) }

func (c *Compiler) advance() {
	if c.pos < len(c.toks)-1 {
		c.pos++
	}
	c.cur = c.toks[c.pos]
}

func (c *Compiler) at(tok token.Token) bool { return c.cur.Tok == tok }

// expect consumes the current token if it matches tok, else reports a
// missing-punctuator/keyword diagnostic and does not advance.
func (c *Compiler) expect(tok token.Token) bool {
	if c.at(tok) {
		c.advance()
		return true
	}
	code := CodeMissingPunctuator
	if tok.IsKeyword() {
		code = CodeMissingKeyword
	}
	c.errorf(code, "expected %v, found %v", tok, c.cur.Tok)
	return false
}

// report records a diagnostic and, for Error/Fatal severities, increments
// the error count, escalating to fatal once the threshold is crossed.
func (c *Compiler) report(sev Severity, code Code, format string, args ...any) {
	d := Diagnostic{
		Pos:      c.curPos(),
		Severity: sev,
		Code:     code,
		Tok:      c.cur.Tok,
		TokStr:   c.cur.Raw,
		Message:  fmt.Sprintf(format, args...),
	}
	c.diags = append(c.diags, d)
	switch sev {
	case SevWarning:
		c.nWarnings++
	case SevError:
		c.nErrors++
		if c.nErrors > maxRecoverableErrors {
			d2 := d
			d2.Severity = SevFatal
			panic(FatalError{Diag: d2})
		}
	case SevFatal:
		panic(FatalError{Diag: d})
	}
}

func (c *Compiler) errorf(code Code, format string, args ...any) {
	c.report(SevError, code, format, args...)
}

func (c *Compiler) fatalf(code Code, format string, args ...any) {
	c.report(SevFatal, code, format, args...)
}

func (c *Compiler) warnf(code Code, format string, args ...any) {
	c.report(SevWarning, code, format, args...)
}

// newLabel allocates a fresh compile-time label number.
func (c *Compiler) newLabel() int {
	c.nextLabel++
	return c.nextLabel
}

// addSymbol wraps a symtab Add* call, turning ErrTableFull into a fatal
// diagnostic.
func addSymbol[T any](c *Compiler, r T, err error) T {
	if err != nil {
		c.fatalf(CodeSymbolTableFull, "%v", err)
	}
	return r
}

// typeKindOf resolves the types.Kind a symtab type-symbol denotes, following
// RefType the way the rest of the compiler expects (an abstract type's
// RefType is itself for most kinds, but e.g. a Subrange's RefType is its
// base ordinal kind).
func (c *Compiler) typeKindOf(typeSym symtab.Ref) types.Kind {
	return c.Sym.Symbol(typeSym).RefType
}
