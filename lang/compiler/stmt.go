package compiler

import (
	"github.com/patacongo/pascal-pcode/lang/pcode"
	"github.com/patacongo/pascal-pcode/lang/symtab"
	"github.com/patacongo/pascal-pcode/lang/token"
	"github.com/patacongo/pascal-pcode/lang/types"
)

// statementList compiles statements separated by ';' until end (which is
// left unconsumed).
func (c *Compiler) statementList(end token.Token) {
	for {
		if c.at(end) || c.at(token.EOF) {
			return
		}
		c.statement()
		if c.at(token.SEMI) {
			c.advance()
			continue
		}
		return
	}
}

// statement compiles one statement. Every non-empty statement
// brackets its execution in a PUSHS/POPS pair so transient string
// temporaries are released at its end; a leading `n :` label
// definition lands before the bracket so a GOTO entering here observes a
// clean string stack.
func (c *Compiler) statement() {
	for c.at(token.INTLIT) && c.peekTok() == token.COLON {
		c.labelStatement()
	}
	switch c.cur.Tok {
	case token.SEMI, token.END, token.UNTIL, token.ELSE, token.EOF, token.DOT:
		return // empty statement
	}

	c.Em.EmitLineNumber(c.file.Name(), c.curPos().Line)
	c.Em.EmitSimple(pcode.PUSHS)
	c.statementBody()
	c.Em.EmitSimple(pcode.POPS)
}

func (c *Compiler) peekTok() token.Token {
	if c.pos+1 < len(c.toks) {
		return c.toks[c.pos+1].Tok
	}
	return token.EOF
}

func (c *Compiler) statementBody() {
	switch c.cur.Tok {
	case token.BEGIN:
		c.advance()
		c.statementList(token.END)
		c.expect(token.END)
	case token.IF:
		c.ifStatement()
	case token.CASE:
		c.caseStatement()
	case token.WHILE:
		c.whileStatement()
	case token.REPEAT:
		c.repeatStatement()
	case token.FOR:
		c.forStatement()
	case token.WITH:
		c.withStatement()
	case token.GOTO:
		c.gotoStatement()
	case token.IDENT:
		c.identStatement()
	default:
		c.errorf(CodeMissingKeyword, "unexpected token %v at start of statement", c.cur.Tok)
		c.skipToSemi()
	}
}

// identStatement compiles a statement beginning with an identifier: a
// standard procedure, a declared procedure call, or an assignment (possibly
// through the active WITH record).
func (c *Compiler) identStatement() {
	name := c.cur.Raw
	if proc, ok := stdProcs[lower(name)]; ok {
		c.advance()
		proc(c)
		return
	}
	if _, isField := c.withField(name); !isField {
		if ref, ok := c.Sym.FindSymbol(name, 0); ok {
			sym := c.Sym.Symbol(ref)
			if sym.Kind == symtab.KindProcedure {
				c.advance()
				c.compileCallArgs(sym)
				c.Em.EmitProcedureCall(sym)
				return
			}
		}
	}
	c.advance()
	c.Assignment(name)
}

// labelStatement compiles `n :` — locate the label symbol, emit the label
// opcode and clear undefined. Because a GOTO may enter from
// anywhere, the label emission invalidates the LSP cache.
func (c *Compiler) labelStatement() {
	name := c.cur.Raw
	ref, ok := c.Sym.FindSymbol(name, 0)
	c.advance()
	c.expect(token.COLON)
	if !ok || c.Sym.Symbol(ref).Kind != symtab.KindLabel {
		c.errorf(CodeUndefinedLabel, "label %s was not declared", name)
		return
	}
	sym := c.Sym.Symbol(ref)
	if !sym.Undefined {
		c.errorf(CodeLabelRedefinition, "label %s is already defined", name)
		return
	}
	c.Em.EmitLabel(sym.LabelNum)
	c.Sym.DefineLabel(ref)
}

// gotoStatement compiles `GOTO n`.
func (c *Compiler) gotoStatement() {
	c.advance() // GOTO
	if !c.at(token.INTLIT) {
		c.errorf(CodeMissingPunctuator, "expected a label number after GOTO")
		return
	}
	name := c.cur.Raw
	c.advance()
	ref, ok := c.Sym.FindSymbol(name, 0)
	if !ok || c.Sym.Symbol(ref).Kind != symtab.KindLabel {
		c.errorf(CodeUndefinedLabel, "label %s was not declared", name)
		return
	}
	c.Em.EmitJump(pcode.JMP, c.Sym.Symbol(ref).LabelNum)
}

// ifStatement compiles `IF expr THEN stmt [ELSE stmt]`,
// reconciling the LSP cache at the merge point: when both arms leave the
// same valid LSP the cache is restored after the merge label, otherwise it
// stays invalidated.
func (c *Compiler) ifStatement() {
	c.advance() // IF
	c.Expression(types.T(types.Boolean), nil)
	lElse := c.newLabel()
	c.Em.EmitJump(pcode.JEQUZ, lElse)
	lspAtIf := c.Em.GetLevel()

	c.expect(token.THEN)
	c.statement()
	thenLSP := c.Em.GetLevel()

	if c.at(token.ELSE) {
		c.advance()
		lEnd := c.newLabel()
		c.Em.EmitJump(pcode.JMP, lEnd)
		c.Em.EmitLabel(lElse)
		if lspAtIf >= 0 {
			c.Em.SetLevel(lspAtIf)
		}
		c.statement()
		elseLSP := c.Em.GetLevel()
		c.Em.EmitLabel(lEnd)
		if thenLSP == elseLSP && thenLSP >= 0 {
			c.Em.SetLevel(thenLSP)
		} else {
			c.Em.InvalidateLevel()
		}
		return
	}

	c.Em.EmitLabel(lElse)
	if thenLSP == lspAtIf && lspAtIf >= 0 {
		c.Em.SetLevel(lspAtIf)
	} else {
		c.Em.InvalidateLevel()
	}
}

// caseStatement compiles `CASE expr OF arms [ELSE stmts] END`: the
// selector stays on the stack for the duration, each arm's
// constant list duplicates it for its equality tests (JEQUZ to the body for
// all but the last constant, JNEQZ past the arm for the last), and the
// selector is dropped with INDS at end-case.
func (c *Compiler) caseStatement() {
	c.advance() // CASE
	c.Expression(types.T(types.AnyOrdinal), nil)
	c.expect(token.OF)

	lEnd := c.newLabel()
	entryLSP := c.Em.GetLevel()

	const lspUnset = -2
	armLSP := lspUnset
	consistent := true
	noteArm := func() {
		l := c.Em.GetLevel()
		if armLSP == lspUnset {
			armLSP = l
		} else if armLSP != l {
			consistent = false
		}
	}

	for !c.at(token.END) && !c.at(token.EOF) {
		if c.at(token.ELSE) {
			c.advance()
			c.statementList(token.END)
			noteArm()
			break
		}

		lBody := c.newLabel()
		lNext := c.newLabel()
		for {
			v := c.constOrdinalValue()
			c.Em.EmitSimple(pcode.DUP)
			c.Em.EmitDataOp(pcode.PUSH, uint32(v))
			c.Em.EmitSimple(pcode.SUB)
			if c.at(token.COMMA) {
				c.Em.EmitJump(pcode.JEQUZ, lBody)
				c.advance()
				continue
			}
			c.Em.EmitJump(pcode.JNEQZ, lNext)
			break
		}
		c.expect(token.COLON)

		c.Em.EmitLabel(lBody)
		if entryLSP >= 0 {
			c.Em.SetLevel(entryLSP)
		}
		c.statement()
		noteArm()
		c.Em.EmitJump(pcode.JMP, lEnd)

		c.Em.EmitLabel(lNext)
		if entryLSP >= 0 {
			c.Em.SetLevel(entryLSP)
		}
		if c.at(token.SEMI) {
			c.advance()
		}
	}
	c.expect(token.END)

	c.Em.EmitLabel(lEnd)
	if consistent && armLSP >= 0 {
		c.Em.SetLevel(armLSP)
	} else {
		c.Em.InvalidateLevel()
	}
	c.Em.EmitDataOp(pcode.INDS, uint32(negWordSize))
}

// whileStatement compiles `WHILE expr DO stmt`. If the
// condition evaluation itself modified the LSP, its value determines the
// LSP at the exit label; otherwise the body must have preserved the
// snapshot or the cache is invalidated.
func (c *Compiler) whileStatement() {
	c.advance() // WHILE
	lTop := c.newLabel()
	lBot := c.newLabel()

	c.Em.EmitLabel(lTop)
	lspBeforeCond := c.Em.GetLevel()
	c.Expression(types.T(types.Boolean), nil)
	lspAfterCond := c.Em.GetLevel()
	c.Em.EmitJump(pcode.JEQUZ, lBot)

	c.expect(token.DO)
	c.statement()
	bodyLSP := c.Em.GetLevel()
	c.Em.EmitJump(pcode.JMP, lTop)
	c.Em.EmitLabel(lBot)

	switch {
	case lspAfterCond != lspBeforeCond:
		if lspAfterCond >= 0 {
			c.Em.SetLevel(lspAfterCond)
		}
	case bodyLSP == lspAfterCond && bodyLSP >= 0:
		c.Em.SetLevel(bodyLSP)
	default:
		c.Em.InvalidateLevel()
	}
}

// repeatStatement compiles `REPEAT stmts UNTIL expr`. No LSP
// reconciliation is needed: fall-through always executes the body at least
// once.
func (c *Compiler) repeatStatement() {
	c.advance() // REPEAT
	lTop := c.newLabel()
	c.Em.EmitLabel(lTop)
	c.statementList(token.UNTIL)
	c.expect(token.UNTIL)
	c.Expression(types.T(types.Boolean), nil)
	c.Em.EmitJump(pcode.JEQUZ, lTop)
}

// forStatement compiles `FOR v := lo TO|DOWNTO hi DO stmt`:
// the upper bound is kept on the stack for the loop's duration, duplicated
// for each iteration's comparison, and dropped with INDS at exit, so a
// degenerate range executes zero iterations and still balances the stack.
// The exit comparison is LT (TO) or GT (DOWNTO) followed by JNEQZ, since
// the control opcodes are only zero-tests.
func (c *Compiler) forStatement() {
	c.advance() // FOR
	if !c.at(token.IDENT) {
		c.errorf(CodeMissingPunctuator, "expected a loop variable")
		c.skipToSemi()
		return
	}
	name := c.cur.Raw
	c.advance()
	ref, ok := c.Sym.FindSymbol(name, 0)
	if !ok || c.Sym.Symbol(ref).Kind != symtab.KindVariable {
		c.errorf(CodeUndefinedIdentifier, "undefined loop variable %q", name)
		c.skipToSemi()
		return
	}
	varSym := c.Sym.Symbol(ref)
	want := types.T(c.typeKindOf(varSym.ParentType))
	if !want.Kind.IsOrdinal() {
		c.errorf(CodeInvalidTypeInContext, "FOR loop variable must be ordinal")
		want = types.T(types.Integer)
	}

	c.expect(token.ASSIGN)
	c.Expression(want, nil)
	c.Em.EmitStackRef(pcode.ST, varSym)

	down := false
	if c.at(token.DOWNTO) {
		down = true
		c.advance()
	} else {
		c.expect(token.TO)
	}
	c.Expression(want, nil) // the bound stays on the stack

	lTop := c.newLabel()
	lBot := c.newLabel()
	c.Em.EmitLabel(lTop)
	c.Em.EmitSimple(pcode.DUP)
	c.Em.EmitStackRef(pcode.LD, varSym)
	if down {
		c.Em.EmitSimple(pcode.GT)
	} else {
		c.Em.EmitSimple(pcode.LT)
	}
	c.Em.EmitJump(pcode.JNEQZ, lBot)
	snapshot := c.Em.GetLevel()

	c.expect(token.DO)
	c.statement()
	if c.Em.GetLevel() != snapshot {
		c.Em.InvalidateLevel()
	}

	c.Em.EmitStackRef(pcode.LD, varSym)
	if down {
		c.Em.EmitSimple(pcode.DEC)
	} else {
		c.Em.EmitSimple(pcode.INC)
	}
	c.Em.EmitStackRef(pcode.ST, varSym)
	c.Em.EmitJump(pcode.JMP, lTop)
	c.Em.EmitLabel(lBot)
	c.Em.EmitDataOp(pcode.INDS, uint32(negWordSize))
}

// withStatement compiles `WITH recvar {, recvar} DO stmt`:
// the single WITH context cell is saved, rewritten by each element of the
// list, and restored after the controlled statement.
func (c *Compiler) withStatement() {
	c.advance() // WITH
	saved := c.with
	for {
		c.withTarget()
		if !c.at(token.COMMA) {
			break
		}
		c.advance()
	}
	c.expect(token.DO)
	c.statement()
	c.with = saved
}

// withTarget rewrites the WITH context for one element of a WITH list: a
// plain RECORD variable, a VAR parameter to a RECORD, a pointer-to-RECORD
// followed by `^`, or a record-typed field of the record currently WITH'd.
func (c *Compiler) withTarget() {
	if !c.at(token.IDENT) {
		c.errorf(CodeMissingPunctuator, "expected a record variable in WITH")
		c.skipToSemi()
		return
	}
	name := c.cur.Raw

	// nesting on a record-typed field of the active record
	if c.with.active {
		if fieldRef, ok := c.Sym.FindField(c.with.recordType, name); ok {
			f := c.Sym.Symbol(fieldRef)
			if c.Sym.Symbol(f.FieldType).Type != types.Record {
				c.errorf(CodeInvalidTypeInContext, "WITH field %q is not a record", name)
				c.advance()
				return
			}
			c.advance()
			if c.with.pointer {
				c.with.index += f.FieldOffset
			} else {
				c.with.offset += f.FieldOffset
			}
			c.with.recordType = f.FieldType
			return
		}
	}

	ref, ok := c.Sym.FindSymbol(name, 0)
	if !ok || c.Sym.Symbol(ref).Kind != symtab.KindVariable {
		c.errorf(CodeUndefinedIdentifier, "undefined record variable %q", name)
		c.advance()
		return
	}
	sym := c.Sym.Symbol(ref)
	c.advance()
	ty := c.Sym.Symbol(sym.ParentType)

	switch {
	case ty.Type == types.Record && sym.VarFlags&symtab.FlagVarParam != 0:
		c.with = withContext{active: true, level: sym.Level, pointer: true, varParm: true, offset: sym.Offset, recordType: sym.ParentType}
	case ty.Type == types.Record:
		c.with = withContext{active: true, level: sym.Level, offset: sym.Offset, recordType: sym.ParentType}
	case ty.Type == types.Pointer && c.Sym.Symbol(ty.ParentType).Type == types.Record:
		if !c.at(token.CARET) {
			c.errorf(CodePointerTypeRequired, "WITH on a pointer requires ^")
			return
		}
		c.advance()
		c.with = withContext{active: true, level: sym.Level, pointer: true, offset: sym.Offset, recordType: ty.ParentType}
	default:
		c.errorf(CodeInvalidTypeInContext, "WITH requires a record variable")
	}
}
