package compiler

import (
	"github.com/patacongo/pascal-pcode/lang/pcode"
	"github.com/patacongo/pascal-pcode/lang/symtab"
	"github.com/patacongo/pascal-pcode/lang/token"
	"github.com/patacongo/pascal-pcode/lang/types"
)

// stdProc is a standard procedure's compile-time handler: the procedure
// name has been consumed and the handler owns its own argument-list state
// machine.
type stdProc func(c *Compiler)

var stdProcs = map[string]stdProc{
	"read":    func(c *Compiler) { c.stdRead(false) },
	"readln":  func(c *Compiler) { c.stdRead(true) },
	"write":   func(c *Compiler) { c.stdWrite(false) },
	"writeln": func(c *Compiler) { c.stdWrite(true) },
	"get":     func(c *Compiler) { c.stdFileOp(pcode.IOGET, true) },
	"put":     func(c *Compiler) { c.stdFileOp(pcode.IOPUT, false) },
	"reset":   func(c *Compiler) { c.stdFileOp(pcode.IORESET, true) },
	"rewrite": func(c *Compiler) { c.stdFileOp(pcode.IOREWRITE, false) },
	"page":    func(c *Compiler) { c.stdFileOp(pcode.IOPAGE, false) },
	"halt":    stdHALT,
	"new":     stdNEW,
	"pack":    stdNotYet,
	"unpack":  stdNotYet,
	"val":     stdVAL,
}

// fileArg consumes a leading file-variable argument from an already-open
// argument list, if present, and returns the file slot to use; defaultIn
// selects INPUT vs OUTPUT as the fallback.
func (c *Compiler) fileArg(defaultIn bool) (slot int, consumed bool) {
	slot = c.Sym.OutputFileSlot
	if defaultIn {
		slot = c.Sym.InputFileSlot
	}
	if !c.at(token.IDENT) {
		return slot, false
	}
	ref, ok := c.Sym.FindSymbol(c.cur.Raw, 0)
	if !ok {
		return slot, false
	}
	sym := c.Sym.Symbol(ref)
	switch sym.Kind {
	case symtab.KindFile:
		c.advance()
		return sym.FileSlot, true
	case symtab.KindVariable:
		if c.Sym.Symbol(sym.ParentType).Type == types.File {
			c.advance()
			c.walkLoad(seedFromVar(sym), factorFlags{})
			// the file number is on the stack; -1 marks a runtime slot
			return -1, true
		}
	}
	return slot, false
}

// stdFileOp handles GET/PUT/RESET/REWRITE/PAGE: an optional file argument,
// then the I/O opcode with the file slot.
func (c *Compiler) stdFileOp(op pcode.Opcode, defaultIn bool) {
	slot := c.Sym.OutputFileSlot
	if defaultIn {
		slot = c.Sym.InputFileSlot
	}
	if c.at(token.LPAREN) {
		c.advance()
		slot, _ = c.fileArg(defaultIn)
		c.expect(token.RPAREN)
	}
	if slot >= 0 {
		c.Em.EmitDataOp(pcode.PUSH, uint32(slot))
	}
	c.Em.EmitIO(op)
}

// stdRead handles READ/READLN: an optional leading file argument, then a
// list of variable accesses, each read via its address; READLN finishes
// with the line-consuming opcode.
func (c *Compiler) stdRead(line bool) {
	slot := c.Sym.InputFileSlot
	if c.at(token.LPAREN) {
		c.advance()
		var consumed bool
		slot, consumed = c.fileArg(true)
		if consumed && c.at(token.COMMA) {
			c.advance()
		}
		for c.at(token.IDENT) {
			c.readTarget(slot)
			if !c.at(token.COMMA) {
				break
			}
			c.advance()
		}
		c.expect(token.RPAREN)
	}
	if line {
		if slot >= 0 {
			c.Em.EmitDataOp(pcode.PUSH, uint32(slot))
		}
		c.Em.EmitIO(pcode.IOREADLN)
	}
}

// readTarget compiles one READ destination: the variable's address is
// pushed, then the read opcode for its slot.
func (c *Compiler) readTarget(slot int) {
	name := c.cur.Raw
	seed, ok := c.withField(name)
	if !ok {
		ref, found := c.Sym.FindSymbol(name, 0)
		if !found || c.Sym.Symbol(ref).Kind != symtab.KindVariable {
			c.errorf(CodeWrongKindOfIdentifier, "READ requires a variable, got %q", name)
			c.advance()
			return
		}
		seed = seedFromVar(c.Sym.Symbol(ref))
	}
	c.advance()
	c.walkLoad(seed, factorFlags{addressOf: true})
	if slot >= 0 {
		c.Em.EmitDataOp(pcode.PUSH, uint32(slot))
	}
	c.Em.EmitIO(pcode.IOREAD)
}

// stdWrite handles WRITE/WRITELN: an optional leading file argument, then a
// list of value expressions, each written with the I/O opcode; WRITELN
// finishes with the line-terminating opcode.
func (c *Compiler) stdWrite(line bool) {
	slot := c.Sym.OutputFileSlot
	if c.at(token.LPAREN) {
		c.advance()
		var consumed bool
		slot, consumed = c.fileArg(false)
		if consumed && c.at(token.COMMA) {
			c.advance()
		}
		if !c.at(token.RPAREN) {
			for {
				c.Expression(types.T(types.Unknown), nil)
				if slot >= 0 {
					c.Em.EmitDataOp(pcode.PUSH, uint32(slot))
				}
				c.Em.EmitIO(pcode.IOWRITE)
				if !c.at(token.COMMA) {
					break
				}
				c.advance()
			}
		}
		c.expect(token.RPAREN)
	}
	if line {
		if slot >= 0 {
			c.Em.EmitDataOp(pcode.PUSH, uint32(slot))
		}
		c.Em.EmitIO(pcode.IOWRITELN)
	}
}

// stdHALT handles HALT with an optional exit code (defaulting to zero).
func stdHALT(c *Compiler) {
	if c.at(token.LPAREN) {
		c.advance()
		c.Expression(types.T(types.Integer), nil)
		c.expect(token.RPAREN)
	} else {
		c.Em.EmitDataOp(pcode.PUSH, 0)
	}
	c.Em.EmitLibCall(pcode.HALT)
}

// stdNEW parses NEW's pointer argument but reports it unimplemented: the
// run-time library has no heap allocation service to dispatch to.
func stdNEW(c *Compiler) {
	c.expect(token.LPAREN)
	if c.at(token.IDENT) {
		c.advance()
	}
	c.expect(token.RPAREN)
	c.warnf(CodeNotYetImplemented, "NEW is not supported by the run-time")
}

// stdNotYet parses and discards an argument list; PACK and UNPACK have no
// run-time support.
func stdNotYet(c *Compiler) {
	if c.at(token.LPAREN) {
		depth := 0
		for !c.at(token.EOF) {
			if c.at(token.LPAREN) {
				depth++
			}
			if c.at(token.RPAREN) {
				depth--
				if depth == 0 {
					c.advance()
					break
				}
			}
			c.advance()
		}
	}
	c.warnf(CodeNotYetImplemented, "PACK and UNPACK are not supported by the run-time")
}

// stdVAL handles VAL(s, v, code): the string is evaluated, then the
// addresses of the numeric destination and the status code, then the
// library conversion routine.
func stdVAL(c *Compiler) {
	c.expect(token.LPAREN)
	c.Expression(types.T(types.AnyString), nil)
	c.expect(token.COMMA)
	c.valAddrArg()
	c.expect(token.COMMA)
	c.valAddrArg()
	c.expect(token.RPAREN)
	c.Em.EmitLibCall(pcode.VAL)
}

func (c *Compiler) valAddrArg() {
	if !c.at(token.IDENT) {
		c.errorf(CodeWrongKindOfIdentifier, "VAL requires variable arguments")
		return
	}
	name := c.cur.Raw
	seed, ok := c.withField(name)
	if !ok {
		ref, found := c.Sym.FindSymbol(name, 0)
		if !found || c.Sym.Symbol(ref).Kind != symtab.KindVariable {
			c.errorf(CodeWrongKindOfIdentifier, "VAL requires variable arguments")
			c.advance()
			return
		}
		seed = seedFromVar(c.Sym.Symbol(ref))
	}
	c.advance()
	c.walkLoad(seed, factorFlags{addressOf: true})
}
