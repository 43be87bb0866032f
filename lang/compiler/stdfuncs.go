package compiler

import (
	"github.com/patacongo/pascal-pcode/lang/pcode"
	"github.com/patacongo/pascal-pcode/lang/symtab"
	"github.com/patacongo/pascal-pcode/lang/token"
	"github.com/patacongo/pascal-pcode/lang/types"
)

// stdFunc is a standard function's compile-time handler: it has already
// consumed the function name and is positioned at (or past) the opening
// parenthesis of its argument list.
type stdFunc func(c *Compiler) types.ExprType

// stdFuncs is the closed table of standard functions. Each is an
// open-coded sequence of opcode emissions over its evaluated argument with
// appropriate type checks, rather than a library call: ABS, SQR, ODD and
// friends are cheap enough to inline at every call site.
var stdFuncs map[string]stdFunc

// stdFuncs' entries transitively refer back to stdFuncs itself (e.g.
// identFactor looks up stdFuncs), which Go's initialization-dependency
// analysis treats as a cycle when the map is built as a var initializer.
// Assigning it in init() instead defers construction past package var
// initialization, sidestepping that false cycle.
func init() {
	stdFuncs = map[string]stdFunc{
		"abs":    stdABS,
		"sqr":    stdSQR,
		"pred":   stdPRED,
		"succ":   stdSUCC,
		"odd":    stdODD,
		"chr":    stdCHR,
		"ord":    stdORD,
		"round":  stdROUND,
		"trunc":  stdTRUNC,
		"sqrt":   stdUnaryFP(pcode.FSQRT),
		"sin":    stdUnaryFP(pcode.FSIN),
		"cos":    stdUnaryFP(pcode.FCOS),
		"arctan": stdUnaryFP(pcode.FARCTAN),
		"ln":     stdUnaryFP(pcode.FLN),
		"exp":    stdUnaryFP(pcode.FEXP),
		"eof":    stdEOF,
		"eoln":   stdEOLN,
		"getenv": stdGETENV,
	}
}

// oneArg parses `( expr )` demanding want, and returns the argument's
// resolved type.
func (c *Compiler) oneArg(want types.ExprType) types.ExprType {
	c.expect(token.LPAREN)
	t := c.Expression(want, nil)
	c.expect(token.RPAREN)
	return t
}

func stdABS(c *Compiler) types.ExprType {
	c.expect(token.LPAREN)
	t := c.Expression(types.T(types.Unknown), nil)
	c.expect(token.RPAREN)
	if t.Kind == types.Real {
		c.Em.EmitFP(pcode.FABS)
		return types.T(types.Real)
	}
	c.Em.EmitSimple(pcode.ABS)
	return types.T(types.Integer)
}

func stdSQR(c *Compiler) types.ExprType {
	c.expect(token.LPAREN)
	t := c.Expression(types.T(types.Unknown), nil)
	c.expect(token.RPAREN)
	if t.Kind == types.Real {
		c.Em.EmitFP(pcode.FSQR)
		return types.T(types.Real)
	}
	c.Em.EmitSimple(pcode.DUP)
	c.Em.EmitSimple(pcode.MUL)
	return types.T(types.Integer)
}

func stdPRED(c *Compiler) types.ExprType {
	t := c.oneArg(types.T(types.AnyOrdinal))
	c.Em.EmitSimple(pcode.DEC)
	return t
}

func stdSUCC(c *Compiler) types.ExprType {
	t := c.oneArg(types.T(types.AnyOrdinal))
	c.Em.EmitSimple(pcode.INC)
	return t
}

func stdODD(c *Compiler) types.ExprType {
	c.oneArg(types.T(types.Integer))
	c.Em.EmitDataOp(pcode.PUSH, 1)
	c.Em.EmitSimple(pcode.AND)
	c.Em.EmitSimple(pcode.NEQZ)
	return types.T(types.Boolean)
}

func stdROUND(c *Compiler) types.ExprType {
	c.oneArg(types.T(types.Real))
	c.Em.EmitFP(pcode.FROUND)
	return types.T(types.Integer)
}

func stdTRUNC(c *Compiler) types.ExprType {
	c.oneArg(types.T(types.Real))
	c.Em.EmitFP(pcode.FTRUNC)
	return types.T(types.Integer)
}

func stdCHR(c *Compiler) types.ExprType {
	c.oneArg(types.T(types.Integer))
	return types.T(types.Char)
}

func stdORD(c *Compiler) types.ExprType {
	c.oneArg(types.T(types.AnyOrdinal))
	return types.T(types.Integer)
}

// stdUnaryFP builds a handler for the transcendental functions that accept
// either Integer or Real, casting an Integer argument to real first.
func stdUnaryFP(op pcode.Opcode) stdFunc {
	return func(c *Compiler) types.ExprType {
		c.expect(token.LPAREN)
		t := c.Expression(types.T(types.Unknown), nil)
		c.expect(token.RPAREN)
		if t.Kind == types.Integer {
			c.Em.EmitFP(pcode.FLT2FP)
		}
		c.Em.EmitFP(op)
		return types.T(types.Real)
	}
}

// stdEOF and stdEOLN take an optional file argument (defaulting to INPUT),
// reserve a boolean result slot, and emit the matching I/O opcode.
func stdEOF(c *Compiler) types.ExprType { return stdFileTest(c, pcode.IOEOF) }

func stdEOLN(c *Compiler) types.ExprType { return stdFileTest(c, pcode.IOEOLN) }

func stdFileTest(c *Compiler, op pcode.Opcode) types.ExprType {
	fileSlot := c.Sym.InputFileSlot
	if c.at(token.LPAREN) {
		c.advance()
		if c.at(token.IDENT) {
			if ref, ok := c.Sym.FindSymbol(c.cur.Raw, 0); ok {
				sym := c.Sym.Symbol(ref)
				if sym.Kind == symtab.KindFile {
					fileSlot = sym.FileSlot
				}
			}
			c.advance()
		}
		c.expect(token.RPAREN)
	}
	c.Em.EmitDataOp(pcode.INDS, 4)
	c.Em.EmitDataOp(op, uint32(fileSlot))
	return types.T(types.Boolean)
}

func stdGETENV(c *Compiler) types.ExprType {
	c.oneArg(types.T(types.AnyString))
	c.Em.EmitLibCall(pcode.GETENV)
	return types.T(types.CString)
}
