package compiler

import (
	"github.com/patacongo/pascal-pcode/lang/pcode"
	"github.com/patacongo/pascal-pcode/lang/symtab"
	"github.com/patacongo/pascal-pcode/lang/token"
	"github.com/patacongo/pascal-pcode/lang/types"
)

// factorFlags is the set of four flags threaded through the complex-factor
// and complex-assignment walkers: {dereference, addressOf,
// indexed, varParm}, each set monotonically as the walker descends.
type factorFlags struct {
	dereference bool
	addressOf   bool
	indexed     bool
	varParm     bool
}

// accessMode tracks how far the walker has had to lower a variable access.
// refStatic: (level, offset) fully known at compile time. refIndexed: a
// scaled index value is outstanding on the stack, base still static.
// refAddr: the target address itself is on the stack.
type accessMode uint8

const (
	refStatic accessMode = iota
	refIndexed
	refAddr
)

// accessSeed is the starting state of a complex-factor or complex-assignment
// walk: where the named variable (or WITH-resolved field) lives and whether
// its slot holds the target value or the target's address.
type accessSeed struct {
	level   int
	offset  int
	curType symtab.Ref

	// deref: the slot holds the address of the target, not the target
	// itself (a VAR parameter, or a pointer/VAR-param WITH record).
	deref   bool
	varParm bool

	// extraOffset is a compile-time byte offset applied after loading the
	// slot's address (a field offset below a pointer-based WITH record).
	extraOffset int
}

func seedFromVar(sym symtab.Symbol) accessSeed {
	s := accessSeed{level: sym.Level, offset: sym.Offset, curType: sym.ParentType}
	if sym.VarFlags&symtab.FlagVarParam != 0 {
		s.deref = true
		s.varParm = true
	}
	return s
}

// withField resolves name as a field of the active WITH record, if any.
// The WITH scope is innermost, so it is consulted before the symbol table
// proper.
func (c *Compiler) withField(name string) (accessSeed, bool) {
	if !c.with.active {
		return accessSeed{}, false
	}
	fieldRef, ok := c.Sym.FindField(c.with.recordType, name)
	if !ok {
		return accessSeed{}, false
	}
	f := c.Sym.Symbol(fieldRef)
	s := accessSeed{level: c.with.level, offset: c.with.offset, curType: f.FieldType}
	if c.with.pointer {
		s.deref = true
		s.varParm = c.with.varParm
		s.extraOffset = c.with.index + f.FieldOffset
	} else {
		s.offset += c.with.index + f.FieldOffset
	}
	return s, true
}

// accessWalker reduces an arbitrary nesting of ARRAY[], .field, ^deref,
// VAR-parameter indirection and SUBRANGE bases down to one of the primitive
// reference shapes.
type accessWalker struct {
	c     *Compiler
	mode  accessMode
	seed  accessSeed
	flags factorFlags

	// pending: the seed's deref has not been materialized yet. The store
	// walker defers it so the address load lands after the RHS value, per
	// the STI stack discipline.
	pending bool
}

func (c *Compiler) newWalker(seed accessSeed, flags factorFlags) *accessWalker {
	w := &accessWalker{c: c, seed: seed, flags: flags}
	if seed.deref {
		w.flags.dereference = true
		w.flags.varParm = seed.varParm
		w.pending = true
	}
	return w
}

// materialize loads the target address held in the seed's slot onto the
// stack (plus any pointer-WITH field offset), moving the walk to refAddr.
// Only a pending walk materializes, and pending implies the base is still
// static.
func (w *accessWalker) materialize() {
	c := w.c
	c.Em.EmitStackRef(pcode.LD, symtab.Symbol{Level: w.seed.level, Offset: w.seed.offset})
	if w.seed.extraOffset != 0 {
		c.Em.EmitDataOp(pcode.PUSH, uint32(w.seed.extraOffset))
		c.Em.EmitSimple(pcode.ADD)
	}
	w.mode = refAddr
	w.pending = false
}

// walkSelectors consumes `.field`, `[index]` and `^` selectors, updating the
// walker state. It stops at the first token that is not a selector (or at a
// file-buffer `^`, which the I/O builtins own).
func (w *accessWalker) walkSelectors() {
	c := w.c
	for {
		ty := c.Sym.Symbol(w.seed.curType)
		switch {
		case c.at(token.DOT) && ty.Type == types.Record:
			c.advance()
			if !c.at(token.IDENT) {
				c.errorf(CodeMissingPunctuator, "expected a field name")
				return
			}
			fieldRef, ok := c.Sym.FindField(w.seed.curType, c.cur.Raw)
			if !ok {
				c.errorf(CodeUndefinedIdentifier, "undefined field %q", c.cur.Raw)
				c.advance()
				return
			}
			f := c.Sym.Symbol(fieldRef)
			c.advance()
			if w.pending {
				w.materialize()
			}
			switch w.mode {
			case refStatic:
				w.seed.offset += f.FieldOffset
			default:
				if f.FieldOffset != 0 {
					c.Em.EmitDataOp(pcode.PUSH, uint32(f.FieldOffset))
					c.Em.EmitSimple(pcode.ADD)
				}
			}
			w.seed.curType = f.FieldType

		case c.at(token.CARET) && ty.Type == types.File:
			// file-buffer access belongs to the I/O builtins, not the walker
			return

		case c.at(token.CARET):
			if ty.Type != types.Pointer {
				c.errorf(CodePointerTypeRequired, "%v is not a pointer type", ty.Type)
				c.advance()
				return
			}
			c.advance()
			w.flags.dereference = true
			switch {
			case w.pending:
				// the slot holds the pointer's address: load it, then the
				// pointer's value
				w.materialize()
				c.Em.EmitSimple(pcode.LDI)
			case w.mode == refStatic:
				// the slot holds the pointee's address; defer the load so a
				// store can place it after the value
				w.pending = true
			case w.mode == refIndexed:
				c.Em.EmitStackRef(pcode.LDX, symtab.Symbol{Level: w.seed.level, Offset: w.seed.offset})
				w.mode = refAddr
			default: // refAddr
				c.Em.EmitSimple(pcode.LDI)
			}
			w.seed.curType = ty.ParentType

		case c.at(token.LBRACK):
			c.advance()
			w.flags.indexed = true
			if w.pending {
				w.materialize()
			}
			idxType := c.Sym.Symbol(ty.IndexType)
			c.Expression(types.T(idxType.RefType), nil)
			if idxType.MinValue != 0 {
				c.Em.EmitDataOp(pcode.PUSH, uint32(idxType.MinValue))
				c.Em.EmitSimple(pcode.SUB)
			}
			elem := c.Sym.Symbol(ty.ParentType)
			c.Em.EmitDataOp(pcode.PUSH, uint32(elem.AllocSize))
			c.Em.EmitSimple(pcode.MUL)
			switch w.mode {
			case refStatic:
				w.mode = refIndexed
			default:
				// fold this index into the outstanding index or address
				c.Em.EmitSimple(pcode.ADD)
			}
			c.expect(token.RBRACK)
			w.seed.curType = ty.ParentType

		default:
			return
		}
	}
}

// resultType computes the expression type the finished walk produces.
func (w *accessWalker) resultType() types.ExprType {
	ty := w.c.Sym.Symbol(w.seed.curType)
	kind := ty.RefType
	var res types.ExprType
	if ty.Type.IsAbstract() {
		res = types.Abs(kind, w.seed.curType)
	} else {
		res = types.T(kind)
	}
	if w.flags.addressOf || (ty.Type == types.Pointer && !w.consumedDeref()) {
		res.Pointer = true
	}
	return res
}

// consumedDeref reports whether the final `^` was applied, i.e. curType is
// past the pointer. A pointer variable accessed without `^` produces the
// pointer value itself.
func (w *accessWalker) consumedDeref() bool {
	return w.c.Sym.Symbol(w.seed.curType).Type != types.Pointer
}

// emitLoad finishes a load walk: exactly one of the primitive load shapes,
// selected by (mode, addressOf, isMultiWord).
func (w *accessWalker) emitLoad() types.ExprType {
	c := w.c
	if w.pending {
		w.materialize()
	}
	ty := c.Sym.Symbol(w.seed.curType)
	multi := ty.RefType.IsMultiWord()
	slot := symtab.Symbol{Level: w.seed.level, Offset: w.seed.offset}

	switch {
	case w.flags.addressOf:
		switch w.mode {
		case refStatic:
			c.Em.EmitStackRef(pcode.LA, slot)
		case refIndexed:
			c.Em.EmitStackRef(pcode.LAX, slot)
		case refAddr:
			// the address is already on the stack
		}

	case w.mode == refStatic:
		if multi {
			c.Em.EmitDataSize(ty.AllocSize)
			c.Em.EmitStackRef(pcode.LDM, slot)
		} else {
			c.Em.EmitStackRef(pcode.LD, slot)
		}

	case w.mode == refIndexed:
		if multi {
			c.Em.EmitDataSize(ty.AllocSize)
			c.Em.EmitStackRef(pcode.LDXM, slot)
		} else {
			c.Em.EmitStackRef(pcode.LDX, slot)
		}

	default: // refAddr
		if multi {
			c.Em.EmitDataSize(ty.AllocSize)
			c.Em.EmitSimple(pcode.LDIM)
		} else {
			c.Em.EmitSimple(pcode.LDI)
		}
	}
	return w.resultType()
}

// walkLoad runs a complete load walk for seed: selectors, then the primitive
// load.
func (c *Compiler) walkLoad(seed accessSeed, flags factorFlags) types.ExprType {
	w := c.newWalker(seed, flags)
	w.walkSelectors()
	return w.emitLoad()
}
