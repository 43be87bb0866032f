package compiler

import (
	"strings"

	"github.com/patacongo/pascal-pcode/lang/object"
	"github.com/patacongo/pascal-pcode/lang/pcode"
	"github.com/patacongo/pascal-pcode/lang/symtab"
	"github.com/patacongo/pascal-pcode/lang/token"
	"github.com/patacongo/pascal-pcode/lang/types"
)

// word/real sizes mirror symtab's own private constants; kept here too
// since lang/compiler must compute AllocSize for every type it declares.
const (
	wordSize = 4
	realSize = 8
)

// negWordSize is -wordSize kept as a variable (not a constant expression) so
// uint32(negWordSize) can two's-complement-wrap instead of failing the
// compiler's constant-overflow check.
var negWordSize int32 = -wordSize

// Compile parses and compiles one complete PROGRAM or UNIT and
// returns the accumulated diagnostics error, if any. It is the sole public
// entry point a driver calls once per source file.
func (c *Compiler) Compile() (err error) {
	defer func() {
		if r := recover(); r != nil {
			if fe, ok := r.(FatalError); ok {
				err = fe
				return
			}
			panic(r)
		}
	}()

	kind, name := c.programHeader()
	c.Em.Sink.SetHeader(kind, "pcode", name)

	c.block(true)
	c.expect(token.DOT)

	if errs := c.Sym.VerifyLabels(c.tableBase); len(errs) > 0 {
		for _, e := range errs {
			c.errorf(CodeUndefinedLabel, "%v", e)
		}
	}
	c.Em.EmitEnd()

	if c.nErrors > 0 {
		err = DiagnosticsError(c.diags)
	}
	return err
}

// DiagnosticsError adapts a Diagnostic slice to the error interface so a
// caller (internal/driver) can report every recorded diagnostic.
type DiagnosticsError []Diagnostic

func (d DiagnosticsError) Error() string {
	var b strings.Builder
	for i, diag := range d {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(diag.String())
	}
	return b.String()
}

// programHeader parses `PROGRAM ident ['(' identlist ')'] ';'` or
// `UNIT ident ';'`.
func (c *Compiler) programHeader() (object.FileKind, string) {
	switch c.cur.Tok {
	case token.PROGRAM:
		c.advance()
		name := c.identName()
		if c.at(token.LPAREN) {
			c.advance()
			for {
				c.identName()
				if !c.at(token.COMMA) {
					break
				}
				c.advance()
			}
			c.expect(token.RPAREN)
		}
		c.expect(token.SEMI)
		return object.FileProgram, name
	case token.UNIT:
		c.advance()
		name := c.identName()
		c.expect(token.SEMI)
		if c.at(token.INTERFACE) {
			c.advance()
			c.uses()
		}
		return object.FileUnit, name
	default:
		c.errorf(CodeMissingKeyword, "expected PROGRAM or UNIT, found %v", c.cur.Tok)
		return object.FileProgram, ""
	}
}

func (c *Compiler) uses() {
	if c.at(token.USES) {
		c.advance()
		for {
			c.identName()
			if !c.at(token.COMMA) {
				break
			}
			c.advance()
		}
		c.expect(token.SEMI)
	}
}

func (c *Compiler) identName() string {
	if !c.at(token.IDENT) {
		c.errorf(CodeMissingPunctuator, "expected an identifier, found %v", c.cur.Tok)
		return ""
	}
	name := c.cur.Raw
	c.advance()
	return name
}

// block compiles one LABEL/CONST/TYPE/VAR/procedure-function declaration
// sequence followed by a compound statement. isProgram marks the outermost
// program/unit block, whose labels are not verified here but by Compile
// after the final '.'.
func (c *Compiler) block(isProgram bool) {
	savedBase := c.tableBase
	c.tableBase = c.Sym.Mark()
	savedFrame, savedParam := c.frameOffset, c.paramOffset
	savedInits := c.pendingInits

	c.uses()
	if c.at(token.IMPLEMENTATION) {
		c.advance()
		c.uses()
	}

	c.labelDeclarations()
	c.constDeclarations()
	c.typeDeclarations()
	var inits []initTarget
	c.pendingInits = &inits
	c.varDeclarations()
	if c.at(token.PROCEDURE) || c.at(token.FUNCTION) {
		// nested bodies are emitted in place; skip over them on the way to
		// this block's own statements
		skip := c.newLabel()
		c.Em.EmitJump(pcode.JMP, skip)
		c.procAndFuncDeclarations()
		c.Em.EmitLabel(skip)
	}

	c.emitInitPass(inits)

	if c.at(token.INITIALIZATION) {
		c.advance()
		c.statementList(token.END)
	} else {
		c.expect(token.BEGIN)
		c.statementList(token.END)
	}
	c.expect(token.END)

	c.emitFinalizePass(inits)
	c.pendingInits = savedInits

	if errs := c.Sym.VerifyLabels(c.tableBase); len(errs) > 0 && !isProgram {
		for _, e := range errs {
			c.errorf(CodeUndefinedLabel, "%v", e)
		}
	}

	c.tableBase = savedBase
	c.frameOffset, c.paramOffset = savedFrame, savedParam
}

// --- LABEL ---

func (c *Compiler) labelDeclarations() {
	if !c.at(token.LABEL) {
		return
	}
	c.advance()
	for {
		if !c.at(token.INTLIT) {
			c.errorf(CodeMissingPunctuator, "expected a label number")
			break
		}
		name := c.cur.Raw
		c.advance()
		// the user's number is the label's name; the emitted target comes
		// from the compiler's own label sequence so user labels and
		// control-flow labels share one namespace
		__r1, __e1 := c.Sym.AddLabel(name, c.newLabel())
		addSymbol(c, __r1, __e1)
		if !c.at(token.COMMA) {
			break
		}
		c.advance()
	}
	c.expect(token.SEMI)
}

// --- CONST ---

func (c *Compiler) constDeclarations() {
	if !c.at(token.CONST) {
		return
	}
	c.advance()
	for c.at(token.IDENT) {
		name := c.cur.Raw
		c.advance()
		c.expect(token.EQ)
		c.constValue(name)
		c.expect(token.SEMI)
	}
}

// constValue parses and folds one constant expression (integer, real,
// char, string, or a previously-declared scalar/ordinal constant),
// registering `name` in the symbol table.
func (c *Compiler) constValue(name string) {
	neg := false
	if c.at(token.MINUS) {
		neg = true
		c.advance()
	} else if c.at(token.PLUS) {
		c.advance()
	}

	switch c.cur.Tok {
	case token.INTLIT:
		v := c.cur.Int
		c.advance()
		if neg {
			v = -v
		}
		__r2, __e2 := c.Sym.AddConstant(name, types.Integer, symtab.NoRef)
		addSymbol(c, __r2, __e2)
		ref, _ := c.Sym.FindSymbol(name, 0)
		c.Sym.Update(ref, func(s *symtab.Symbol) { s.ConstInt = v })

	case token.REALLIT:
		v := c.cur.Real
		c.advance()
		if neg {
			v = -v
		}
		__r3, __e3 := c.Sym.AddConstant(name, types.Real, symtab.NoRef)
		addSymbol(c, __r3, __e3)
		ref, _ := c.Sym.FindSymbol(name, 0)
		c.Sym.Update(ref, func(s *symtab.Symbol) { s.ConstReal = v })

	case token.CHARLIT:
		b := byte(0)
		if len(c.cur.String) > 0 {
			b = c.cur.String[0]
		}
		c.advance()
		__r4, __e4 := c.Sym.AddConstant(name, types.Char, symtab.NoRef)
		addSymbol(c, __r4, __e4)
		ref, _ := c.Sym.FindSymbol(name, 0)
		c.Sym.Update(ref, func(s *symtab.Symbol) { s.ConstInt = int64(b) })

	case token.STRINGLIT:
		s := c.cur.String
		c.advance()
		off := c.Em.Sink.AddRoDataString([]byte(s))
		__r5, __e5 := c.Sym.AddStringConst(name, off, len(s))
		addSymbol(c, __r5, __e5)

	case token.IDENT:
		// a constant-folded builtin applied to an ordinal constant:
		// evaluated on the parsed value, nothing is emitted
		if fold, ok := constFolds[lower(c.cur.Raw)]; ok && c.peekTok() == token.LPAREN {
			c.advance()
			c.advance()
			v := fold.fn(c.constOrdinalValue())
			c.expect(token.RPAREN)
			if neg {
				v = -v
			}
			__r6, __e6 := c.Sym.AddConstant(name, fold.kind, symtab.NoRef)
			cref := addSymbol(c, __r6, __e6)
			c.Sym.Update(cref, func(s *symtab.Symbol) { s.ConstInt = v })
			return
		}

		// An alias for another already-declared ordinal/scalar constant, or a
		// scalar enumeration literal used as a const value.
		ref, ok := c.Sym.FindSymbol(c.cur.Raw, 0)
		c.advance()
		if !ok {
			c.errorf(CodeUndefinedIdentifier, "undefined identifier in constant expression")
			return
		}
		src := c.Sym.Symbol(ref)
		v, r := src.ConstInt, src.ConstReal
		if neg {
			if src.ConstKind == types.Real {
				r = -r
			} else {
				v = -v
			}
		}
		__r7, __e7 := c.Sym.AddConstant(name, src.ConstKind, src.ParentType)
		addSymbol(c, __r7, __e7)
		newRef, _ := c.Sym.FindSymbol(name, 0)
		c.Sym.Update(newRef, func(s *symtab.Symbol) { s.ConstInt = v; s.ConstReal = r })

	default:
		c.errorf(CodeInvalidTypeInContext, "invalid constant expression")
	}
}

// constFolds are the builtins evaluable at compile time over an ordinal
// constant argument.
var constFolds = map[string]struct {
	fn   func(int64) int64
	kind types.Kind
}{
	"abs": {func(v int64) int64 {
		if v < 0 {
			return -v
		}
		return v
	}, types.Integer},
	"sqr":  {func(v int64) int64 { return v * v }, types.Integer},
	"pred": {func(v int64) int64 { return v - 1 }, types.Integer},
	"succ": {func(v int64) int64 { return v + 1 }, types.Integer},
	"odd":  {func(v int64) int64 { return v & 1 }, types.Boolean},
	"ord":  {func(v int64) int64 { return v }, types.Integer},
	"chr":  {func(v int64) int64 { return v }, types.Char},
}

// --- TYPE ---

// pendingPtrFixup records a `^Name` pointer type whose target hadn't been
// declared yet at parse time, so the pointer's ParentType can be patched in
// once TYPE Name = ... completes later in the same section (Pascal's
// standard forward-pointer allowance within one TYPE block).
type pendingPtrFixup struct {
	target    string
	pointerTy symtab.Ref
}

func (c *Compiler) typeDeclarations() {
	if !c.at(token.TYPE) {
		return
	}
	c.advance()
	var fixups []pendingPtrFixup
	c.typeFixups = &fixups
	for c.at(token.IDENT) {
		name := c.cur.Raw
		c.advance()
		c.expect(token.EQ)
		mark := c.Sym.Mark()
		ty := c.parseType()
		namedRef := ty
		if ty >= mark {
			// parseType minted this type symbol for us: claim it as the
			// declared name, preserving its identity (scalar constants and
			// record fields already point at it)
			c.Sym.Update(ty, func(s *symtab.Symbol) { s.Name = name })
		} else {
			// an alias for an already-named type: a fresh symbol sharing
			// the same shape
			base := c.Sym.Symbol(ty)
			__r8, __e8 := c.Sym.AddType(name, base.Type, base.RefType)
			namedRef = addSymbol(c, __r8, __e8)
			c.Sym.Update(namedRef, func(s *symtab.Symbol) {
				lvl := s.Level
				*s = base
				s.Name = name
				s.Level = lvl
			})
		}
		for i := range fixups {
			if strings.EqualFold(fixups[i].target, name) {
				c.Sym.Update(fixups[i].pointerTy, func(s *symtab.Symbol) { s.ParentType = namedRef })
			}
		}
		c.expect(token.SEMI)
	}
	c.typeFixups = nil
}

// parseType compiles one type denotation and
// returns the symtab.Ref of a (possibly freshly minted, anonymous) Type
// symbol describing it.
func (c *Compiler) parseType() symtab.Ref {
	switch c.cur.Tok {
	case token.CARET:
		c.advance()
		name := c.identName()
		__r9, __e9 := c.Sym.AddType("^"+name, types.Pointer, types.Integer)
		ptrRef := addSymbol(c, __r9, __e9)
		if target, ok := c.Sym.FindSymbol(name, 0); ok {
			c.Sym.Update(ptrRef, func(s *symtab.Symbol) {
				tgt := c.Sym.Symbol(target)
				s.ParentType = target
				s.RefType = tgt.RefType
				s.AllocSize = wordSize
				s.RefSize = wordSize
			})
		} else if c.typeFixups != nil {
			*c.typeFixups = append(*c.typeFixups, pendingPtrFixup{target: name, pointerTy: ptrRef})
			c.Sym.Update(ptrRef, func(s *symtab.Symbol) { s.AllocSize = wordSize; s.RefSize = wordSize })
		} else {
			c.errorf(CodeUndefinedIdentifier, "undefined type %q", name)
		}
		return ptrRef

	case token.ARRAY:
		c.advance()
		c.expect(token.LBRACK)
		idxRef := c.subrangeOrScalar()
		c.expect(token.RBRACK)
		c.expect(token.OF)
		elemRef := c.parseType()
		elem := c.Sym.Symbol(elemRef)
		idx := c.Sym.Symbol(idxRef)
		count := int(idx.MaxValue-idx.MinValue) + 1
		__r10, __e10 := c.Sym.AddType("array", types.Array, elem.RefType)
		arrRef := addSymbol(c, __r10, __e10)
		c.Sym.Update(arrRef, func(s *symtab.Symbol) {
			s.ParentType = elemRef
			s.IndexType = idxRef
			s.AllocSize = count * elem.AllocSize
			s.RefSize = elem.AllocSize
		})
		return arrRef

	case token.RECORD:
		c.advance()
		return c.recordType()

	case token.FILEKW:
		c.advance()
		c.expect(token.OF)
		elemRef := c.parseType()
		elem := c.Sym.Symbol(elemRef)
		__r11, __e11 := c.Sym.AddType("file", types.File, elem.RefType)
		fileRef := addSymbol(c, __r11, __e11)
		c.Sym.Update(fileRef, func(s *symtab.Symbol) { s.ParentType = elemRef; s.AllocSize = wordSize })
		return fileRef

	case token.SET:
		c.advance()
		c.expect(token.OF)
		baseRef := c.subrangeOrScalar()
		base := c.Sym.Symbol(baseRef)
		__r12, __e12 := c.Sym.AddType("set", types.Set, types.Set)
		setRef := addSymbol(c, __r12, __e12)
		bits := int(base.MaxValue-base.MinValue) + 1
		c.Sym.Update(setRef, func(s *symtab.Symbol) {
			s.ParentType = baseRef
			s.MinValue, s.MaxValue = base.MinValue, base.MaxValue
			s.AllocSize = (bits + 31) / 32 * wordSize
			if s.AllocSize == 0 {
				s.AllocSize = wordSize
			}
		})
		return setRef

	case token.PACKED:
		c.advance()
		return c.parseType()

	case token.LPAREN:
		// anonymous scalar enumeration: '(' ident {, ident} ')'
		return c.scalarEnum()

	case token.IDENT:
		return c.subrangeOrScalar()

	default:
		c.errorf(CodeInvalidTypeInContext, "unexpected token %v in type", c.cur.Tok)
		return symtab.SymInteger
	}
}

// recordType parses `RECORD fieldlist END`, chaining each field onto the
// new record type's FirstField list with contiguous, immutable offsets.
func (c *Compiler) recordType() symtab.Ref {
	__r13, __e13 := c.Sym.AddType("record", types.Record, types.Record)
	recRef := addSymbol(c, __r13, __e13)
	offset := 0
	var head symtab.Ref = symtab.NoRef
	for !c.at(token.END) && !c.at(token.EOF) {
		var names []string
		names = append(names, c.identName())
		for c.at(token.COMMA) {
			c.advance()
			names = append(names, c.identName())
		}
		c.expect(token.COLON)
		fieldTypeRef := c.parseType()
		ft := c.Sym.Symbol(fieldTypeRef)
		for _, nm := range names {
			__r14, __e14 := c.Sym.AddField(nm, recRef, fieldTypeRef, offset, ft.AllocSize)
			fref := addSymbol(c, __r14, __e14)
			head = c.Sym.LinkField(head, fref)
			offset += ft.AllocSize
		}
		if c.at(token.SEMI) {
			c.advance()
		} else {
			break
		}
	}
	c.expect(token.END)
	c.Sym.SetFirstField(recRef, head)
	c.Sym.Update(recRef, func(s *symtab.Symbol) { s.AllocSize = offset; s.RefSize = offset })
	return recRef
}

// subrangeOrScalar parses either `lo '..' hi` or a bare identifier
// reference to an already-declared type/constant, synthesizing a Subrange
// type symbol in the former case.
func (c *Compiler) subrangeOrScalar() symtab.Ref {
	if c.at(token.IDENT) {
		name := c.cur.Raw
		if ref, ok := c.Sym.FindSymbol(name, 0); ok {
			sym := c.Sym.Symbol(ref)
			if sym.Kind == symtab.KindType {
				c.advance()
				return ref
			}
			if sym.Kind == symtab.KindConstant {
				// a constant used as the low bound of `lo..hi`
				lo := sym.ConstInt
				c.advance()
				c.expect(token.DOTDOT)
				hi := c.constOrdinalValue()
				return c.makeSubrange(types.Integer, symtab.NoRef, lo, hi)
			}
		}
	}
	lo := c.constOrdinalValue()
	c.expect(token.DOTDOT)
	hi := c.constOrdinalValue()
	return c.makeSubrange(types.Integer, symtab.NoRef, lo, hi)
}

// constOrdinalValue parses one signed integer/char literal or named
// constant, returning its ordinal value (used for subrange bounds).
func (c *Compiler) constOrdinalValue() int64 {
	neg := false
	if c.at(token.MINUS) {
		neg = true
		c.advance()
	}
	switch c.cur.Tok {
	case token.INTLIT:
		v := c.cur.Int
		c.advance()
		if neg {
			v = -v
		}
		return v
	case token.CHARLIT:
		b := int64(0)
		if len(c.cur.String) > 0 {
			b = int64(c.cur.String[0])
		}
		c.advance()
		return b
	case token.IDENT:
		if fold, ok := constFolds[lower(c.cur.Raw)]; ok && c.peekTok() == token.LPAREN {
			c.advance()
			c.advance()
			v := fold.fn(c.constOrdinalValue())
			c.expect(token.RPAREN)
			if neg {
				v = -v
			}
			return v
		}
		ref, ok := c.Sym.FindSymbol(c.cur.Raw, 0)
		c.advance()
		if !ok {
			c.errorf(CodeUndefinedIdentifier, "undefined identifier in subrange bound")
			return 0
		}
		v := c.Sym.Symbol(ref).ConstInt
		if neg {
			v = -v
		}
		return v
	default:
		c.errorf(CodeInvalidTypeInContext, "expected an ordinal constant")
		return 0
	}
}

func (c *Compiler) makeSubrange(base types.Kind, baseType symtab.Ref, lo, hi int64) symtab.Ref {
	__r15, __e15 := c.Sym.AddType("subrange", types.Subrange, base)
	ref := addSymbol(c, __r15, __e15)
	c.Sym.Update(ref, func(s *symtab.Symbol) {
		s.SubType = baseType
		s.MinValue, s.MaxValue = lo, hi
		s.AllocSize = wordSize
		s.RefSize = wordSize
	})
	return ref
}

// scalarEnum parses `'(' ident {, ident} ')'`, declaring each identifier as
// an Integer-valued Constant of the new Scalar type, numbered from 0.
func (c *Compiler) scalarEnum() symtab.Ref {
	c.expect(token.LPAREN)
	__r16, __e16 := c.Sym.AddType("scalar", types.Scalar, types.Scalar)
	scalarRef := addSymbol(c, __r16, __e16)
	n := int64(0)
	for {
		name := c.identName()
		__r17, __e17 := c.Sym.AddConstant(name, types.Scalar, scalarRef)
		cref := addSymbol(c, __r17, __e17)
		c.Sym.Update(cref, func(s *symtab.Symbol) { s.ConstInt = n })
		n++
		if !c.at(token.COMMA) {
			break
		}
		c.advance()
	}
	c.expect(token.RPAREN)
	c.Sym.Update(scalarRef, func(s *symtab.Symbol) {
		s.MinValue, s.MaxValue = 0, n-1
		s.AllocSize, s.RefSize = wordSize, wordSize
	})
	return scalarRef
}

// --- VAR ---

// varDeclarations parses `VAR ident {, ident} ':' type ';' ...`, allocating
// each variable a frame offset and, when its type needs one, queuing it
// onto the block's pending Initializer list.
func (c *Compiler) varDeclarations() {
	if !c.at(token.VAR) {
		return
	}
	c.advance()
	for c.at(token.IDENT) {
		var names []string
		names = append(names, c.identName())
		for c.at(token.COMMA) {
			c.advance()
			names = append(names, c.identName())
		}
		c.expect(token.COLON)
		typeRef := c.parseType()
		ty := c.Sym.Symbol(typeRef)

		var val initTarget
		if c.at(token.EQ) {
			// a declared initial value, applied by the Initializer's
			// value-assignment pass
			c.advance()
			if len(names) > 1 {
				c.errorf(CodeMisplacedDeclaration, "an initial value requires a single variable")
			}
			val = c.varInitValue()
		}

		for _, nm := range names {
			offset := c.frameOffset
			c.frameOffset += ty.AllocSize
			__r18, __e18 := c.Sym.AddVariable(nm, 0, offset, ty.AllocSize, typeRef)
			vref := addSymbol(c, __r18, __e18)
			if c.Sym.Level == 0 {
				sym := c.Sym.Symbol(vref)
				c.Em.ExportStackSymbol(&sym)
				c.Sym.Set(vref, sym)
			}
			c.queueInit(vref, typeRef, val)
		}
		c.expect(token.SEMI)
	}
}

// varInitValue parses the literal after `=` in a variable declaration.
func (c *Compiler) varInitValue() initTarget {
	t := initTarget{hasValue: true}
	neg := false
	if c.at(token.MINUS) {
		neg = true
		c.advance()
	}
	switch c.cur.Tok {
	case token.INTLIT:
		t.valKind, t.valInt = types.Integer, c.cur.Int
	case token.REALLIT:
		t.valKind = types.Real
	case token.CHARLIT:
		t.valKind = types.Char
		if len(c.cur.String) > 0 {
			t.valInt = int64(c.cur.String[0])
		}
	case token.STRINGLIT:
		t.valKind, t.valStr = types.String, c.cur.String
	default:
		c.errorf(CodeInvalidTypeInContext, "invalid initial value")
		t.hasValue = false
		return t
	}
	c.advance()
	if neg {
		t.valInt = -t.valInt
	}
	return t
}

// queueInit appends varRef to the current block's pending Initializer list
// when its type requires resource setup or teardown (a FILE, a STRING, or a
// RECORD containing one), or when it declares an initial value.
func (c *Compiler) queueInit(varRef, typeRef symtab.Ref, val initTarget) {
	if c.pendingInits == nil {
		return
	}
	kind := c.needsInit(typeRef)
	if kind == initNone && !val.hasValue {
		return
	}
	if len(*c.pendingInits) >= maxInitializers {
		c.fatalf(CodeTooManyInitializers, "too many initializers in one block")
		return
	}
	t := val
	t.varRef, t.typeRef, t.kind = varRef, typeRef, kind
	*c.pendingInits = append(*c.pendingInits, t)
}

func (c *Compiler) needsInit(typeRef symtab.Ref) initKind {
	ty := c.Sym.Symbol(typeRef)
	switch ty.Type {
	case types.File:
		return initFile
	case types.String:
		return initString
	case types.Record:
		for f := ty.FirstField; f != symtab.NoRef; f = c.Sym.Symbol(f).NextField {
			field := c.Sym.Symbol(f)
			if c.needsInit(field.FieldType) != initNone {
				return initRecord
			}
		}
	}
	return initNone
}

// --- PROCEDURE / FUNCTION ---

func (c *Compiler) procAndFuncDeclarations() {
	for c.at(token.PROCEDURE) || c.at(token.FUNCTION) {
		isFunc := c.at(token.FUNCTION)
		c.advance()
		name := c.identName()

		label := c.newLabel()
		var procRef symtab.Ref
		if isFunc {
			__r19, __e19 := c.Sym.AddFunction(name, label, 0, symtab.NoRef)
			procRef = addSymbol(c, __r19, __e19)
		} else {
			__r20, __e20 := c.Sym.AddProcedure(name, label, 0)
			procRef = addSymbol(c, __r20, __e20)
		}

		savedFrame, savedParam := c.frameOffset, c.paramOffset
		c.Sym.EnterLevel()
		c.Em.CurrentLevel = c.Sym.Level
		scopeMark := c.Sym.Mark()
		c.frameOffset = 0
		c.paramOffset = -wordSize // return address/dynamic link occupy 0 and below

		paramCount, paramVarMask := c.paramList()

		retSize := 0
		if isFunc {
			c.expect(token.COLON)
			retName := c.identName()
			retRef, ok := c.Sym.FindSymbol(retName, 0)
			if !ok {
				c.errorf(CodeUndefinedIdentifier, "undefined type %q", retName)
				retRef = symtab.SymInteger
			}
			c.Sym.Update(procRef, func(s *symtab.Symbol) { s.ParentType = retRef })
			// the result slot sits below the parameters; a same-named local
			// shadows the function symbol so `name := expr` inside the body
			// resolves to a plain variable store
			retSize = c.Sym.Symbol(retRef).AllocSize
			c.paramOffset -= retSize
			__r21, __e21 := c.Sym.AddVariable(name, 0, c.paramOffset, retSize, retRef)
			addSymbol(c, __r21, __e21)
		}
		c.Sym.Update(procRef, func(s *symtab.Symbol) {
			s.ParamCount = paramCount
			s.ParamVarMask = paramVarMask
		})
		c.expect(token.SEMI)

		c.Em.EmitLabel(label)

		if c.Sym.Level == 1 {
			sym := c.Sym.Symbol(procRef)
			c.Em.ExportProc(&sym)
			c.Sym.Set(procRef, sym)
		}

		c.block(false)
		c.expect(token.SEMI)
		c.Em.EmitEnd()

		// the parameters are the first paramCount variables declared in this
		// scope (type symbols minted by the parameter list may interleave)
		var paramSizes []int
		for i := scopeMark; int(i) < int(c.Sym.Mark()) && len(paramSizes) < paramCount; i++ {
			if s := c.Sym.Symbol(i); s.Kind == symtab.KindVariable {
				paramSizes = append(paramSizes, s.Size)
			}
		}
		c.Em.EmitDebugInfo(c.Sym.Symbol(procRef), retSize, paramSizes)

		// parameters, the result slot and everything the body declared go
		// out of scope; the procedure symbol itself stays visible
		c.Sym.Truncate(scopeMark)
		c.Sym.LeaveLevel()
		c.Em.CurrentLevel = c.Sym.Level
		c.frameOffset, c.paramOffset = savedFrame, savedParam
	}
}

// paramList parses `'(' [VAR] ident {, ident} ':' type {';' [VAR] ...} ')'`,
// allocating each parameter a negative frame offset. It returns
// the parameter count and the VAR-parameter bitmask recorded on the
// procedure symbol, which is what call sites consult once the parameter
// symbols themselves have gone out of scope.
func (c *Compiler) paramList() (count int, varMask uint32) {
	if !c.at(token.LPAREN) {
		return 0, 0
	}
	c.advance()
	for {
		isVar := false
		if c.at(token.VAR) {
			isVar = true
			c.advance()
		}
		var names []string
		names = append(names, c.identName())
		for c.at(token.COMMA) {
			c.advance()
			names = append(names, c.identName())
		}
		c.expect(token.COLON)
		typeRef := c.parseType()
		ty := c.Sym.Symbol(typeRef)

		size := ty.AllocSize
		flags := symtab.VarFlags(0)
		if isVar {
			flags |= symtab.FlagVarParam
			size = wordSize // a VAR parameter is a hidden pointer
		}

		for _, nm := range names {
			if isVar {
				varMask |= 1 << count
			}
			count++
			offset := c.paramOffset - size
			c.paramOffset = offset
			__r22, __e22 := c.Sym.AddVariable(nm, flags, offset, size, typeRef)
			addSymbol(c, __r22, __e22)
		}

		if c.at(token.SEMI) {
			c.advance()
			continue
		}
		break
	}
	c.expect(token.RPAREN)
	return count, varMask
}
