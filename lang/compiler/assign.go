package compiler

import (
	"github.com/patacongo/pascal-pcode/lang/pcode"
	"github.com/patacongo/pascal-pcode/lang/symtab"
	"github.com/patacongo/pascal-pcode/lang/token"
	"github.com/patacongo/pascal-pcode/lang/types"
)

// Assignment compiles `variable-access ':=' expression`: the
// complex-LVALUE walker mirrors the complex-factor walker but finishes with
// a store. The destination's index contributions are computed during the
// LHS walk; a deferred pointer dereference is materialized only after the
// RHS value is on the stack, so the STI address lands on top. name is the
// already-consumed identifier.
func (c *Compiler) Assignment(name string) {
	seed, ok := c.withField(name)
	if !ok {
		ref, found := c.Sym.FindSymbol(name, 0)
		if !found {
			c.errorf(CodeUndefinedIdentifier, "undefined identifier %q", name)
			c.skipToSemi()
			return
		}
		sym := c.Sym.Symbol(ref)
		if sym.Kind != symtab.KindVariable {
			c.errorf(CodeWrongKindOfIdentifier, "%q is not assignable", name)
			c.skipToSemi()
			return
		}
		seed = seedFromVar(sym)
	}

	w := c.newWalker(seed, factorFlags{})
	w.walkSelectors()
	c.finishAssignment(w)
}

// finishAssignment parses ':=' and the RHS, then emits the store shape the
// walk's final state selects.
func (c *Compiler) finishAssignment(w *accessWalker) {
	ty := c.Sym.Symbol(w.seed.curType)
	kind := ty.RefType
	want := types.T(kind)
	if ty.Type.IsAbstract() {
		want = types.Abs(kind, w.seed.curType)
	}
	if ty.Type == types.Pointer && !w.consumedDeref() {
		want.Pointer = true
	}

	if !c.expect(token.ASSIGN) {
		c.skipToSemi()
		return
	}

	// A STRING destination dispatches to a library copy call instead of a
	// primitive store; everything else uses the ST family.
	if kind.IsAnyString() && ty.Type != types.Pointer {
		c.assignString(w)
		return
	}

	var abs *symtab.Ref
	if want.Kind.IsAbstract() && want.Abstract != symtab.NoRef {
		a := want.Abstract
		abs = &a
	}
	c.Expression(want, abs)

	multi := kind.IsMultiWord()
	slot := symtab.Symbol{Level: w.seed.level, Offset: w.seed.offset}

	switch {
	case w.pending:
		// value is on the stack; now load the target address and store
		// through it (`p^ := 42` becomes PUSH 42; LDS p; STI).
		w.materialize()
		c.emitIndirectStore(multi, ty.AllocSize)

	case w.mode == refStatic:
		if multi {
			c.Em.EmitDataSize(ty.AllocSize)
			c.Em.EmitStackRef(pcode.STM, slot)
		} else {
			c.Em.EmitStackRef(pcode.ST, slot)
		}

	case w.mode == refIndexed:
		if multi {
			c.Em.EmitDataSize(ty.AllocSize)
			c.Em.EmitStackRef(pcode.STXM, slot)
		} else {
			c.Em.EmitStackRef(pcode.STX, slot)
		}

	default: // refAddr: the address was materialized before the value
		c.Em.EmitSimple(pcode.XCHG)
		c.emitIndirectStore(multi, ty.AllocSize)
	}
}

func (c *Compiler) emitIndirectStore(multi bool, size int) {
	if multi {
		c.Em.EmitDataSize(size)
		c.Em.EmitSimple(pcode.STIM)
	} else {
		c.Em.EmitSimple(pcode.STI)
	}
}

// assignString dispatches a string assignment to one of the library copy
// routines based on the source category and the indexed flag. The source
// is evaluated first, then the destination address is pushed on top, then
// the matching copy routine is invoked (`s := 'hi'` becomes LAC K; PUSH 2;
// LAS s; strcpy). A Char source is first made a one-character stack string
// (mkstkc) and then copied like any other stack string.
func (c *Compiler) assignString(w *accessWalker) {
	want := types.T(types.AnyString)
	src := c.exprNoCheck(want, nil)
	if src.Kind == types.Char && !src.Pointer {
		c.Em.EmitLibCall(pcode.MKSTKC)
		src = types.T(types.StkString)
	} else if !want.Matches(src) {
		c.errorf(CodeExpressionTypeMismatch, "expected %v, got %v", want, src)
		src = types.T(types.Unknown)
	}

	slot := symtab.Symbol{Level: w.seed.level, Offset: w.seed.offset}
	indexed := false
	switch {
	case w.pending:
		w.materialize()
	case w.mode == refStatic:
		c.Em.EmitStackRef(pcode.LA, slot)
	case w.mode == refIndexed:
		// the scaled index is below the source operands; the X-variant copy
		// routines take it as an extra argument, so push only the base.
		c.Em.EmitStackRef(pcode.LA, slot)
		indexed = true
	default: // refAddr: address already on the stack, below the source
		indexed = true
	}

	var lc pcode.LibCall
	switch {
	case src.Kind == types.CString && indexed:
		lc = pcode.CSTR2STRX
	case src.Kind == types.CString:
		lc = pcode.CSTR2STR
	case src.Kind == types.StkString && indexed:
		lc = pcode.SSTRCPYX
	case src.Kind == types.StkString:
		lc = pcode.SSTRCPY
	case indexed:
		lc = pcode.STRCPYX
	default:
		lc = pcode.STRCPY
	}
	c.Em.EmitLibCall(lc)
}

// skipToSemi is the synchronizing-token recovery used after a recoverable
// parse error inside a statement.
func (c *Compiler) skipToSemi() {
	for !c.at(token.SEMI) && !c.at(token.END) && !c.at(token.EOF) {
		c.advance()
	}
}
