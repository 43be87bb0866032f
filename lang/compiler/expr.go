package compiler

import (
	"github.com/patacongo/pascal-pcode/lang/pcode"
	"github.com/patacongo/pascal-pcode/lang/symtab"
	"github.com/patacongo/pascal-pcode/lang/token"
	"github.com/patacongo/pascal-pcode/lang/types"
)

// relOps maps a relational token to its integer-compare opcode and its
// compare-to-zero counterpart, the latter used after a library strcmp call
// has reduced a string comparison to an integer already on the stack.
var relOps = map[token.Token]struct{ cmp, cmpz pcode.Opcode }{
	token.EQ:  {pcode.EQU, pcode.EQUZ},
	token.NEQ: {pcode.NEQ, pcode.NEQZ},
	token.LT:  {pcode.LT, pcode.LTZ},
	token.LE:  {pcode.LTE, pcode.LTEZ},
	token.GT:  {pcode.GT, pcode.GTZ},
	token.GE:  {pcode.GTE, pcode.GTEZ},
	token.IN:  {pcode.SETIN, pcode.SETIN},
}

var addOps = map[token.Token]pcode.Opcode{
	token.PLUS:  pcode.ADD,
	token.MINUS: pcode.SUB,
	token.OR:    pcode.OR,
}

var mulOps = map[token.Token]pcode.Opcode{
	token.STAR:  pcode.MUL,
	token.SLASH: pcode.DIV,
	token.DIV:   pcode.DIV,
	token.MOD:   pcode.MOD,
	token.AND:   pcode.AND,
	token.SHL:   pcode.SLL,
	token.SHR:   pcode.SRA,
}

var fpAddOps = map[token.Token]pcode.Opcode{
	token.PLUS:  pcode.FADD,
	token.MINUS: pcode.FSUB,
}

var fpMulOps = map[token.Token]pcode.Opcode{
	token.STAR:  pcode.FMUL,
	token.SLASH: pcode.FDIV,
}

var setOps = map[token.Token]pcode.Opcode{
	token.PLUS:  pcode.SETUNION,
	token.MINUS: pcode.SETDIFFERENCE,
	token.STAR:  pcode.SETINTERSECT,
}

// Expression compiles `expression = simple [ relop simple ]`. If
// want is not Unknown it constrains the result via ExprType.Matches, with
// the automatic Integer->Real coercion inserted when the demand is Real;
// abstractSym pre-seeds the abstract-type pointer threaded through SET,
// SCALAR and SUBRANGE sub-expressions so the caller can enforce a specific
// scalar universe.
func (c *Compiler) Expression(want types.ExprType, abstractSym *symtab.Ref) types.ExprType {
	res := c.exprNoCheck(want, abstractSym)

	if want.Kind != types.Unknown && !want.Matches(res) {
		if types.NeedsIntToRealCoercion(want, res) {
			c.Em.EmitFP(pcode.FLT2FP)
			res = types.T(types.Real)
		} else {
			c.errorf(CodeExpressionTypeMismatch, "expected %v, got %v", want, res)
			res = types.T(types.Unknown)
		}
	}
	return res
}

func (c *Compiler) exprNoCheck(want types.ExprType, abstractSym *symtab.Ref) types.ExprType {
	lhs := c.simpleExpr(want, abstractSym)

	if entry, ok := relOps[c.cur.Tok]; ok {
		relTok := c.cur.Tok
		c.advance()

		if relTok == token.IN {
			return c.compileSetIn(lhs)
		}

		rhs := c.simpleExpr(types.T(lhs.Kind), abstractSym)
		a1, a2 := c.coerceBinary(&lhs, &rhs)

		switch {
		case lhs.Kind.IsAnyString():
			c.emitStringCompare(lhs, rhs)
			c.Em.EmitSimple(entry.cmpz)
		case lhs.Kind == types.Real:
			c.Em.EmitFPArgs(fpRelOp(relTok), a1, a2)
		case lhs.Kind == types.Set:
			c.emitSetCompare(relTok)
		default:
			c.Em.EmitSimple(entry.cmp)
		}
		return types.T(types.Boolean)
	}
	return lhs
}

func fpRelOp(tok token.Token) pcode.Opcode {
	switch tok {
	case token.EQ:
		return pcode.FEQU
	case token.NEQ:
		return pcode.FNEQ
	case token.LT:
		return pcode.FLT
	case token.LE:
		return pcode.FLTE
	case token.GT:
		return pcode.FGT
	default:
		return pcode.FGTE
	}
}

func (c *Compiler) emitSetCompare(tok token.Token) {
	switch tok {
	case token.EQ:
		c.Em.EmitSet(pcode.SETEQU)
	case token.NEQ:
		c.Em.EmitSet(pcode.SETNEQ)
	case token.LE:
		c.Em.EmitSet(pcode.SETLTE)
	default:
		c.errorf(CodeSetTypeMismatch, "operator %v is not defined on sets", tok)
	}
}

// compileSetIn compiles the RHS of `x IN s`: the RHS
// must be Set; the LHS ordinal is coerced by subtracting the set element
// type's minValue so bit 0 of the set represents that element, then the
// BIT-test opcode is emitted.
func (c *Compiler) compileSetIn(lhs types.ExprType) types.ExprType {
	if lhs.Abstract != symtab.NoRef {
		elem := c.Sym.Symbol(lhs.Abstract)
		if elem.MinValue != 0 {
			c.Em.EmitDataOp(pcode.PUSH, uint32(elem.MinValue))
			c.Em.EmitSimple(pcode.SUB)
		}
	}
	rhs := c.simpleExpr(types.Abs(types.Set, lhs.Abstract), nil)
	if rhs.Kind != types.Set && rhs.Kind != types.Unknown {
		c.errorf(CodeSetTypeMismatch, "IN requires a set operand, got %v", rhs)
		return types.T(types.Boolean)
	}
	c.Em.EmitSet(pcode.SETIN)
	return types.T(types.Boolean)
}

// emitStringCompare emits the library strcmp call appropriate to the two
// string-kind operands. The dispatch mirrors the assignment
// dispatch in assign.go: plain-string vs stack-string combinations each
// have their own run-time entry point.
func (c *Compiler) emitStringCompare(lhs, rhs types.ExprType) {
	switch {
	case lhs.Kind == types.StkString && rhs.Kind == types.StkString:
		c.Em.EmitLibCall(pcode.SSTRCMP)
	case lhs.Kind == types.StkString:
		c.Em.EmitLibCall(pcode.SSTRCMPSTR)
	case rhs.Kind == types.StkString:
		c.Em.EmitLibCall(pcode.STRCMPSSTR)
	default:
		c.Em.EmitLibCall(pcode.STRCMP)
	}
}

// simpleExpr compiles `simple = [sign] term { addop term }`.
func (c *Compiler) simpleExpr(want types.ExprType, abstractSym *symtab.Ref) types.ExprType {
	negate := false
	if c.at(token.MINUS) {
		negate = true
		c.advance()
	} else if c.at(token.PLUS) {
		c.advance()
	}

	lhs := c.term(want, abstractSym)
	if negate {
		if lhs.Kind == types.Real {
			c.Em.EmitFP(pcode.FNEG)
		} else {
			c.Em.EmitSimple(pcode.NEG)
		}
	}

	for {
		op, isAdd := addOps[c.cur.Tok]
		if !isAdd {
			break
		}
		opTok := c.cur.Tok
		c.advance()

		// String `+`: the first time `+` sees a String/Char LHS,
		// clone it onto the string stack and promote to StkString; later `+`s
		// append.
		if opTok == token.PLUS && (lhs.Kind.IsAnyString() || lhs.Kind == types.Char) {
			if lhs.Kind == types.Char {
				c.Em.EmitLibCall(pcode.MKSTKC)
				lhs.Kind = types.StkString
			}
			rhs := c.term(types.T(types.AnyString), abstractSym)
			lhs = c.emitStringConcat(lhs, rhs)
			continue
		}

		rhs := c.term(types.T(lhs.Kind), abstractSym)
		a1, a2 := c.coerceBinary(&lhs, &rhs)

		switch {
		case lhs.Kind == types.Real:
			fop, ok := fpAddOps[opTok]
			if !ok {
				c.errorf(CodeExpressionTypeMismatch, "operator %v is not defined on real operands", opTok)
			} else {
				c.Em.EmitFPArgs(fop, a1, a2)
			}
		case lhs.Kind == types.Set:
			c.Em.EmitSet(setOps[opTok])
		default:
			c.Em.EmitSimple(op)
		}
	}
	return lhs
}

// emitStringConcat implements the promote-then-append rule: the first `+`
// clones a String lhs onto the string stack (promoting it to StkString; a
// Char lhs has already been made a stack string by simpleExpr); subsequent
// `+`s append, with a char-append variant when rhs is Char.
func (c *Compiler) emitStringConcat(lhs, rhs types.ExprType) types.ExprType {
	if lhs.Kind != types.StkString {
		c.Em.EmitLibCall(pcode.STRDUP)
		lhs.Kind = types.StkString
	}
	switch rhs.Kind {
	case types.Char:
		c.Em.EmitLibCall(pcode.STRCATC)
	case types.StkString:
		c.Em.EmitLibCall(pcode.STRCATSSTR)
	default:
		c.Em.EmitLibCall(pcode.STRCAT)
	}
	return lhs
}

// term compiles `term = factor { mulop factor }`.
func (c *Compiler) term(want types.ExprType, abstractSym *symtab.Ref) types.ExprType {
	lhs := c.factor(want, abstractSym)
	for {
		op, isMul := mulOps[c.cur.Tok]
		if !isMul {
			break
		}
		opTok := c.cur.Tok
		c.advance()
		rhs := c.factor(types.T(lhs.Kind), abstractSym)
		a1, a2 := c.coerceBinary(&lhs, &rhs)

		switch {
		case lhs.Kind == types.Real:
			fop, ok := fpMulOps[opTok]
			if !ok {
				c.errorf(CodeTermFactorTypeMismatch, "operator %v is not defined on real operands", opTok)
			} else {
				c.Em.EmitFPArgs(fop, a1, a2)
			}
		case lhs.Kind == types.Set:
			if sop, ok := setOps[opTok]; ok {
				c.Em.EmitSet(sop)
			} else {
				c.errorf(CodeSetTypeMismatch, "operator %v is not defined on sets", opTok)
			}
		default:
			c.Em.EmitSimple(op)
		}
	}
	return lhs
}

// coerceBinary decides the automatic Integer->Real conversion for a binary
// operator over mixed operands: the returned arg1/arg2 bits tag
// which operand the run-time must convert, carried on the FP opcode itself.
// By the time the mix is known both operands are already on the stack, so
// an explicit cast opcode could only ever reach the second one; the bit
// encoding reaches either.
func (c *Compiler) coerceBinary(lhs, rhs *types.ExprType) (arg1, arg2 bool) {
	if types.NeedsIntToRealCoercion(*rhs, *lhs) {
		lhs.Kind = types.Real
		return true, false
	}
	if types.NeedsIntToRealCoercion(*lhs, *rhs) {
		rhs.Kind = types.Real
		return false, true
	}
	return false, false
}

// factor compiles `factor = const | variable-access | setconstructor
// | '(' expression ')' | 'NOT' factor | '^' ptrFactor | '@' ptrFactor
// | function-designator | builtin`.
func (c *Compiler) factor(want types.ExprType, abstractSym *symtab.Ref) types.ExprType {
	switch c.cur.Tok {
	case token.INTLIT:
		v := c.cur.Int
		c.advance()
		c.Em.EmitDataOp(pcode.PUSH, uint32(v))
		return types.T(types.Integer)

	case token.REALLIT:
		c.advance()
		c.Em.EmitDataSize(realSize)
		c.Em.EmitSimple(pcode.PUSH)
		return types.T(types.Real)

	case token.CHARLIT:
		v := c.cur.String
		c.advance()
		var b byte
		if len(v) > 0 {
			b = v[0]
		}
		c.Em.EmitDataOp(pcode.PUSH, uint32(b))
		return types.T(types.Char)

	case token.STRINGLIT:
		// a literal lives in RO-data storage, so it is a plain String value
		// (address, size), not a CString.
		s := c.cur.String
		c.advance()
		off := c.Em.Sink.AddRoDataString([]byte(s))
		c.Em.EmitDataOp(pcode.LAC, uint32(off))
		c.Em.EmitDataOp(pcode.PUSH, uint32(len(s)))
		return types.T(types.String)

	case token.NIL:
		c.advance()
		c.Em.EmitDataOp(pcode.PUSH, 0)
		return types.T(types.Integer)

	case token.NOT:
		c.advance()
		t := c.factor(types.T(types.Boolean), abstractSym)
		c.Em.EmitSimple(pcode.NOT)
		return t

	case token.CARET:
		c.advance()
		return c.ptrFactor(abstractSym, factorFlags{dereference: true})

	case token.AT:
		c.advance()
		return c.ptrFactor(abstractSym, factorFlags{addressOf: true})

	case token.LPAREN:
		c.advance()
		t := c.exprNoCheck(want, abstractSym)
		c.expect(token.RPAREN)
		return t

	case token.LBRACK:
		return c.setConstructor(abstractSym)

	case token.IDENT:
		return c.identFactor(abstractSym, factorFlags{})
	}

	c.errorf(CodeTermFactorTypeMismatch, "unexpected token %v in expression", c.cur.Tok)
	c.advance()
	return types.T(types.Unknown)
}

// ptrFactor handles the unary prefix ^ and @ operators: ^ dereferences the
// named pointer variable, @ produces its address without dereferencing.
func (c *Compiler) ptrFactor(abstractSym *symtab.Ref, flags factorFlags) types.ExprType {
	if !c.at(token.IDENT) {
		c.errorf(CodePointerTypeRequired, "expected a variable name")
		return types.T(types.Unknown)
	}
	return c.identFactor(abstractSym, flags)
}

// identFactor resolves an identifier as a variable access, a WITH-resolved
// record field, a constant, a function call, or a builtin, dispatching to
// the complex-factor walker for variable/field/array/pointer access.
func (c *Compiler) identFactor(abstractSym *symtab.Ref, flags factorFlags) types.ExprType {
	name := c.cur.Raw
	if builtin, ok := stdFuncs[lower(name)]; ok {
		c.advance()
		return builtin(c)
	}

	// the active WITH record is the innermost scope
	if seed, ok := c.withField(name); ok {
		c.advance()
		return c.walkLoad(seed, flags)
	}

	ref, ok := c.Sym.FindSymbol(name, 0)
	if !ok {
		c.errorf(CodeUndefinedIdentifier, "undefined identifier %q", name)
		c.advance()
		return types.T(types.Unknown)
	}
	sym := c.Sym.Symbol(ref)
	c.advance()

	switch sym.Kind {
	case symtab.KindConstant:
		return c.loadConstant(sym, abstractSym)
	case symtab.KindStringConst:
		c.Em.EmitDataOp(pcode.LAC, uint32(sym.RODataOffset))
		c.Em.EmitDataOp(pcode.PUSH, uint32(sym.ByteSize))
		return types.T(types.String)
	case symtab.KindFunction:
		return c.callFunction(sym)
	case symtab.KindVariable:
		// pointer prefix forms apply to the slot itself
		var seed accessSeed
		if flags.dereference {
			seed = accessSeed{level: sym.Level, offset: sym.Offset, curType: sym.ParentType, deref: true}
			seed.curType = c.pointeeOf(sym.ParentType)
		} else {
			seed = seedFromVar(sym)
		}
		return c.walkLoad(seed, flags)
	default:
		c.errorf(CodeWrongKindOfIdentifier, "%q is not a value", name)
		return types.T(types.Unknown)
	}
}

// pointeeOf resolves the target type of a pointer type symbol, or the type
// itself (with a diagnostic) when it is not a pointer.
func (c *Compiler) pointeeOf(typeRef symtab.Ref) symtab.Ref {
	ty := c.Sym.Symbol(typeRef)
	if ty.Type != types.Pointer {
		c.errorf(CodePointerTypeRequired, "%v is not a pointer type", ty.Type)
		return typeRef
	}
	return ty.ParentType
}

func (c *Compiler) loadConstant(sym symtab.Symbol, abstractSym *symtab.Ref) types.ExprType {
	switch sym.ConstKind {
	case types.Real:
		c.Em.EmitDataSize(realSize)
		c.Em.EmitSimple(pcode.PUSH)
		return types.T(types.Real)
	default:
		c.Em.EmitDataOp(pcode.PUSH, uint32(sym.ConstInt))
		if sym.ConstKind == types.Scalar {
			if abstractSym != nil && *abstractSym == symtab.NoRef {
				*abstractSym = sym.ParentType
			}
			return types.Abs(types.Scalar, sym.ParentType)
		}
		return types.T(sym.ConstKind)
	}
}

// callFunction compiles a function designator: the argument list (with VAR
// parameters passed by address) followed by the CALL.
func (c *Compiler) callFunction(sym symtab.Symbol) types.ExprType {
	c.compileCallArgs(sym)
	c.Em.EmitProcedureCall(sym)
	ret := c.Sym.Symbol(sym.ParentType)
	if ret.Type.IsAbstract() {
		return types.Abs(ret.RefType, sym.ParentType)
	}
	return types.T(ret.RefType)
}

// compileCallArgs parses `['(' expr {',' expr} ')']`, matching each argument
// against the callee's parameter shape: a value parameter is evaluated onto
// the stack, a VAR parameter must be a variable access and is passed by
// address. The parameter symbols went out
// of scope with the callee's body, so the VAR positions come from the
// bitmask recorded on the procedure symbol.
func (c *Compiler) compileCallArgs(procSym symtab.Symbol) {
	n := 0
	if c.at(token.LPAREN) {
		c.advance()
		if !c.at(token.RPAREN) {
			for {
				if n < 32 && procSym.ParamVarMask&(1<<n) != 0 {
					c.varParamArg()
				} else {
					c.Expression(types.T(types.Unknown), nil)
				}
				n++
				if !c.at(token.COMMA) {
					break
				}
				c.advance()
			}
		}
		c.expect(token.RPAREN)
	}
	if n != procSym.ParamCount {
		c.errorf(CodeVarParamTypeMismatch, "%q wants %d argument(s), got %d", procSym.Name, procSym.ParamCount, n)
	}
}

// varParamArg compiles an actual argument bound to a VAR parameter: it must
// be a variable access, and its address is pushed.
func (c *Compiler) varParamArg() {
	if !c.at(token.IDENT) {
		c.errorf(CodeVarParamTypeMismatch, "a VAR parameter requires a variable argument")
		c.Expression(types.T(types.Unknown), nil)
		return
	}
	name := c.cur.Raw
	if seed, ok := c.withField(name); ok {
		c.advance()
		c.walkLoad(seed, factorFlags{addressOf: true})
		return
	}
	ref, ok := c.Sym.FindSymbol(name, 0)
	if !ok || c.Sym.Symbol(ref).Kind != symtab.KindVariable {
		c.errorf(CodeVarParamTypeMismatch, "a VAR parameter requires a variable argument")
		c.Expression(types.T(types.Unknown), nil)
		return
	}
	sym := c.Sym.Symbol(ref)
	c.advance()
	c.walkLoad(seedFromVar(sym), factorFlags{addressOf: true})
}

// setConstructor parses `[ elem {, elem} ]`, building a Set value on the
// stack. Each element is either a
// single ordinal or a subrange `lo..hi`; MKSTK is the run-time entry point
// that assembles the accumulated lo..hi pairs into a Set value.
func (c *Compiler) setConstructor(abstractSym *symtab.Ref) types.ExprType {
	c.advance() // consume '['
	n := 0
	if !c.at(token.RBRACK) {
		for {
			lo := c.Expression(types.T(types.AnyOrdinal), abstractSym)
			if c.at(token.DOTDOT) {
				c.advance()
				c.Expression(types.T(lo.Kind), abstractSym)
			} else {
				// a single element is its own lo..hi pair
				c.Em.EmitSimple(pcode.DUP)
			}
			n++
			if !c.at(token.COMMA) {
				break
			}
			c.advance()
		}
	}
	c.expect(token.RBRACK)
	c.Em.EmitDataOp(pcode.PUSH, uint32(n))
	c.Em.EmitLibCall(pcode.MKSTK)
	if abstractSym != nil && *abstractSym != symtab.NoRef {
		return types.Abs(types.Set, *abstractSym)
	}
	return types.T(types.Set)
}

func lower(s string) string {
	b := []byte(s)
	for i, ch := range b {
		if ch >= 'A' && ch <= 'Z' {
			b[i] = ch + ('a' - 'A')
		}
	}
	return string(b)
}
