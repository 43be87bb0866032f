package compiler

import (
	"github.com/patacongo/pascal-pcode/lang/pcode"
	"github.com/patacongo/pascal-pcode/lang/symtab"
	"github.com/patacongo/pascal-pcode/lang/types"
)

// initKind classifies what kind of block-entry work a declared variable
// needs.
type initKind uint8

const (
	initNone initKind = iota
	initFile
	initString
	initRecord
)

// initTarget is one entry of a block's pending Initializer list: the
// variable, its type, the resource work it needs, and an optional declared
// initial value for the value-assignment pass.
type initTarget struct {
	varRef  symtab.Ref
	typeRef symtab.Ref
	kind    initKind

	hasValue bool
	valKind  types.Kind
	valInt   int64
	valStr   string
}

// maxInitializers bounds a single block's initializer list.
const maxInitializers = 64

// emitInitPass runs the two-pass block-entry emission: first resource
// allocation (files allocated and stored, the string stack pushed once and
// each string variable initialized, record fields walked), then value
// assignment for declarations carrying initial values.
func (c *Compiler) emitInitPass(inits []initTarget) {
	// pass 1: resource allocation
	pushed := false
	for _, t := range inits {
		v := c.Sym.Symbol(t.varRef)
		switch t.kind {
		case initFile:
			c.Em.EmitIO(pcode.IOALLOCFILE)
			c.Em.EmitStackRef(pcode.ST, v)
		case initString:
			if !pushed {
				c.Em.EmitSimple(pcode.PUSHS)
				pushed = true
			}
			c.Em.EmitStackRef(pcode.LA, v)
			c.Em.EmitLibCall(pcode.STRINIT)
		case initRecord:
			pushed = c.initRecordFields(v, t.typeRef, 0, pushed)
		}
	}

	// pass 2: value assignment
	for _, t := range inits {
		if !t.hasValue {
			continue
		}
		v := c.Sym.Symbol(t.varRef)
		switch {
		case t.valKind == types.Real:
			c.Em.EmitDataSize(realSize)
			c.Em.EmitSimple(pcode.PUSH)
			c.Em.EmitDataSize(realSize)
			c.Em.EmitStackRef(pcode.STM, v)
		case t.valKind == types.String:
			off := c.Em.Sink.AddRoDataString([]byte(t.valStr))
			c.Em.EmitDataOp(pcode.LAC, uint32(off))
			c.Em.EmitDataOp(pcode.PUSH, uint32(len(t.valStr)))
			c.Em.EmitStackRef(pcode.LA, v)
			c.Em.EmitLibCall(pcode.STRCPY)
		default:
			c.Em.EmitDataOp(pcode.PUSH, uint32(t.valInt))
			c.Em.EmitStackRef(pcode.ST, v)
		}
	}
}

// initRecordFields walks a record type's field chain and allocates the
// resources of any file or string field, computing each field's address at
// runtime from the record base. It recurses into record-typed
// fields and reports whether the string stack has been pushed.
func (c *Compiler) initRecordFields(base symtab.Symbol, recType symtab.Ref, extra int, pushed bool) bool {
	ty := c.Sym.Symbol(recType)
	for f := ty.FirstField; f != symtab.NoRef; f = c.Sym.Symbol(f).NextField {
		field := c.Sym.Symbol(f)
		ft := c.Sym.Symbol(field.FieldType)
		off := extra + field.FieldOffset
		switch ft.Type {
		case types.File:
			c.Em.EmitIO(pcode.IOALLOCFILE)
			c.emitFieldAddr(base, off)
			c.Em.EmitSimple(pcode.STI)
		case types.String:
			if !pushed {
				c.Em.EmitSimple(pcode.PUSHS)
				pushed = true
			}
			c.emitFieldAddr(base, off)
			c.Em.EmitLibCall(pcode.STRINIT)
		case types.Record:
			pushed = c.initRecordFields(base, field.FieldType, off, pushed)
		}
	}
	return pushed
}

func (c *Compiler) emitFieldAddr(base symtab.Symbol, off int) {
	c.Em.EmitStackRef(pcode.LA, base)
	if off != 0 {
		c.Em.EmitDataOp(pcode.PUSH, uint32(off))
		c.Em.EmitSimple(pcode.ADD)
	}
}

// emitFinalizePass is the mirror image of emitInitPass: every
// allocated file is freed, and if any string was initialized the single
// string-stack frame is popped at block exit. The primed INPUT/OUTPUT
// slots are file symbols, not variables, so nothing pre-allocated is ever
// freed here.
func (c *Compiler) emitFinalizePass(inits []initTarget) {
	pushed := false
	for _, t := range inits {
		v := c.Sym.Symbol(t.varRef)
		switch t.kind {
		case initFile:
			c.Em.EmitStackRef(pcode.LD, v)
			c.Em.EmitIO(pcode.IOFREEFILE)
		case initString:
			pushed = true
		case initRecord:
			pushed = c.finalizeRecordFields(v, t.typeRef, 0) || pushed
		}
	}
	if pushed {
		c.Em.EmitSimple(pcode.POPS)
	}
}

func (c *Compiler) finalizeRecordFields(base symtab.Symbol, recType symtab.Ref, extra int) bool {
	ty := c.Sym.Symbol(recType)
	hadString := false
	for f := ty.FirstField; f != symtab.NoRef; f = c.Sym.Symbol(f).NextField {
		field := c.Sym.Symbol(f)
		ft := c.Sym.Symbol(field.FieldType)
		off := extra + field.FieldOffset
		switch ft.Type {
		case types.File:
			c.emitFieldAddr(base, off)
			c.Em.EmitSimple(pcode.LDI)
			c.Em.EmitIO(pcode.IOFREEFILE)
		case types.String:
			hadString = true
		case types.Record:
			hadString = c.finalizeRecordFields(base, field.FieldType, off) || hadString
		}
	}
	return hadString
}
