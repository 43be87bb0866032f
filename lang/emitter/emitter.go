// Package emitter implements the code emitter: a sequence of
// opcode-emitting entry points that translate already-validated operands
// into object-sink records, plus the level-stack-pointer (LSP) cache used
// by the statement compiler to reconcile control-flow joins.
package emitter

import (
	"github.com/patacongo/pascal-pcode/lang/object"
	"github.com/patacongo/pascal-pcode/lang/pcode"
	"github.com/patacongo/pascal-pcode/lang/symtab"
)

// sizeInt is the machine word size in bytes used throughout offset/size
// arithmetic.
const sizeInt = 4

// Emitter wraps an object.Sink with the opcode-shape decisions that belong
// to the emitter layer: level-0 short-form substitution, external
// relocation recording, and the LSP cache.
type Emitter struct {
	Sink object.Sink

	// CurrentLevel is the static nesting level of the code currently being
	// compiled; it is what EmitStackRef subtracts a variable's declaration
	// level from.
	CurrentLevel int

	// stackLevel is the LSP cache: negative means invalid/unknown.
	stackLevel int
	nChanges   int
}

// New creates an Emitter writing to sink.
func New(sink object.Sink) *Emitter {
	return &Emitter{Sink: sink, stackLevel: -1}
}

// --- simple, argument-free or immediate-argument opcode families ---

func (e *Emitter) emitSimple(op pcode.Opcode) {
	e.Sink.Emit(object.Insn{Op: op})
}

func (e *Emitter) emitDataOp(op pcode.Opcode, imm32 uint32) {
	e.Sink.Emit(object.Insn{Op: op, HasArg: true, Arg2: imm32})
}

func (e *Emitter) emitDataSize(bytes int) {
	e.emitDataOp(pcode.PUSH, uint32(bytes))
}

func (e *Emitter) emitFP(op pcode.Opcode) { e.emitSimple(op) }

// emitFPArgs emits a binary floating-point opcode tagged with the arg1/arg2
// coercion bits: bit 0 set means the first operand is an
// integer the run-time must convert to real, bit 1 the second. The
// explicit-cast opcode (FLT2FP) is reserved for unary demand coercion where
// the integer is on top of the stack; a given op never mixes the two
// encodings.
func (e *Emitter) emitFPArgs(op pcode.Opcode, arg1, arg2 bool) {
	var bits uint16
	if arg1 {
		bits |= 1
	}
	if arg2 {
		bits |= 2
	}
	if bits == 0 {
		e.emitSimple(op)
		return
	}
	e.Sink.Emit(object.Insn{Op: op, HasArg: true, Arg1: bits})
}

func (e *Emitter) emitSet(op pcode.Opcode) { e.emitSimple(op) }

func (e *Emitter) emitIO(op pcode.Opcode) { e.emitSimple(op) }

func (e *Emitter) emitLibCall(lc pcode.LibCall) {
	e.Sink.Emit(object.Insn{Op: pcode.LIBCALL, HasArg: true, Arg1: uint16(lc)})
}

func (e *Emitter) emitLineNumber(file string, line int) {
	e.Sink.EmitLineNumber(file, line)
}

// EmitSimple, EmitDataOp, ... are the exported forms of the above, used by
// lang/compiler; the unexported names above keep the opcode families
// grouped so this file reads top-to-bottom.
func (e *Emitter) EmitSimple(op pcode.Opcode)               { e.emitSimple(op) }
func (e *Emitter) EmitDataOp(op pcode.Opcode, imm32 uint32) { e.emitDataOp(op, imm32) }
func (e *Emitter) EmitDataSize(bytes int)                   { e.emitDataSize(bytes) }
func (e *Emitter) EmitFP(op pcode.Opcode)                   { e.emitFP(op) }
func (e *Emitter) EmitFPArgs(op pcode.Opcode, a1, a2 bool)  { e.emitFPArgs(op, a1, a2) }
func (e *Emitter) EmitSet(op pcode.Opcode)                  { e.emitSet(op) }
func (e *Emitter) EmitIO(op pcode.Opcode)                   { e.emitIO(op) }
func (e *Emitter) EmitLibCall(lc pcode.LibCall)             { e.emitLibCall(lc) }
func (e *Emitter) EmitLineNumber(file string, line int)     { e.emitLineNumber(file, line) }

func (e *Emitter) EmitLabel(label int) {
	e.Sink.Emit(object.Insn{Op: pcode.LABEL, HasArg: true, Arg2: uint32(label)})
	// A GOTO may enter a label from anywhere, so the LSP can no longer be
	// trusted at a label definition.
	e.invalidateLevel()
}

func (e *Emitter) EmitJump(op pcode.Opcode, label int) {
	e.Sink.Emit(object.Insn{Op: op, HasArg: true, Arg2: uint32(label)})
}

func (e *Emitter) EmitEnd() { e.emitSimple(pcode.END) }

// --- level-0 short-form substitution ---

// EmitLevelRef emits op with a (level, offset) operand pair, substituting
// the level-0 short form when level == 0 and one exists.
func (e *Emitter) EmitLevelRef(op pcode.Opcode, level, offset int) {
	if level == 0 {
		if short, ok := pcode.ShortForm(op); ok {
			e.Sink.Emit(object.Insn{Op: short, HasArg: true, Arg2: uint32(offset)})
			return
		}
	}
	// A general-form reference loads the machine's level-stack-pointer
	// register for that delta; the cache now mirrors it.
	e.SetLevel(level)
	e.Sink.Emit(object.Insn{Op: op, HasArg: true, Arg1: uint16(level), Arg2: uint32(offset)})
}

// EmitStackRef emits a reference to varSym: at
// level 0 it uses the short form; if the variable is external, it also
// records a load-store relocation against its object-sink symbol index.
// Otherwise it defers to EmitLevelRef with (currentLevel - varSym.Level).
func (e *Emitter) EmitStackRef(op pcode.Opcode, varSym symtab.Symbol) {
	if varSym.Level == 0 {
		if short, ok := pcode.ShortForm(op); ok {
			op = short
		}
		if varSym.VarFlags&symtab.FlagExternal != 0 {
			e.Sink.EmitReloc(object.Reloc{
				Kind:        object.RelocLoadStore,
				SymbolIndex: varSym.ObjSymIndex,
				Offset:      varSym.Offset,
			})
		}
		e.Sink.Emit(object.Insn{Op: op, HasArg: true, Arg2: uint32(varSym.Offset)})
		return
	}
	e.EmitLevelRef(op, e.CurrentLevel-varSym.Level, varSym.Offset)
}

// EmitProcedureCall emits a CALL with level = procSym.Level+1 (the callee
// executes one level deeper than its declaration site) and target label
// procSym.EntryLabel.
func (e *Emitter) EmitProcedureCall(procSym symtab.Symbol) {
	if procSym.ProcFlags&symtab.FlagExternal != 0 && procSym.ObjSymIndex >= 0 {
		e.Sink.EmitReloc(object.Reloc{
			Kind:        object.RelocProcCall,
			SymbolIndex: procSym.ObjSymIndex,
			Offset:      procSym.EntryLabel,
		})
	}
	e.Sink.Emit(object.Insn{
		Op:     pcode.CALL,
		HasArg: true,
		Arg1:   uint16(procSym.Level + 1),
		Arg2:   uint32(procSym.EntryLabel),
	})
	// A called procedure may have its own internal PUSHS/POPS framing; the
	// caller's LSP is unaffected only if the callee does not touch strings
	// visible to us, which we cannot assume in general.
	e.invalidateLevel()
}

// EmitDebugInfo publishes a function-debug record for procSym.
func (e *Emitter) EmitDebugInfo(procSym symtab.Symbol, returnSize int, paramSizes []int) {
	e.Sink.AddDebugInfo(object.DebugInfo{
		Label:      procSym.EntryLabel,
		ReturnSize: returnSize,
		ParamSizes: paramSizes,
	})
}

// --- export/import of level-0 symbols ---

// ExportStackSymbol publishes varSym (level 0 only) to the object sink as a
// DEFINED data symbol.
func (e *Emitter) ExportStackSymbol(varSym *symtab.Symbol) {
	idx := e.Sink.DefineSymbol(object.SymData, varSym.Name, sizeInt, object.SymFlagNone, varSym.Offset, varSym.Size)
	varSym.ObjSymIndex = idx
}

// ImportStackSymbol publishes varSym (level 0 only) to the object sink as
// an UNDEFINED data symbol and records the allocated index for later
// relocation fixups.
func (e *Emitter) ImportStackSymbol(varSym *symtab.Symbol) {
	idx := e.Sink.DefineSymbol(object.SymData, varSym.Name, sizeInt, object.SymFlagUndefined, 0, varSym.Size)
	varSym.ObjSymIndex = idx
	varSym.VarFlags |= symtab.FlagExternal
}

// ExportProc publishes procSym as a DEFINED proc/func symbol.
func (e *Emitter) ExportProc(procSym *symtab.Symbol) {
	kind := object.SymProc
	if procSym.Kind == symtab.KindFunction {
		kind = object.SymFunc
	}
	idx := e.Sink.DefineSymbol(kind, procSym.Name, 1, object.SymFlagNone, procSym.EntryLabel, 0)
	procSym.ObjSymIndex = idx
}

// ImportProc publishes procSym as an UNDEFINED proc/func symbol.
func (e *Emitter) ImportProc(procSym *symtab.Symbol) {
	kind := object.SymProc
	if procSym.Kind == symtab.KindFunction {
		kind = object.SymFunc
	}
	idx := e.Sink.DefineSymbol(kind, procSym.Name, 1, object.SymFlagUndefined, 0, 0)
	procSym.ObjSymIndex = idx
	procSym.ProcFlags |= symtab.FlagExternal
}

// --- LSP cache ---

// InvalidateLevel marks the LSP as unknown; the next control-flow merge
// that needs it must re-derive it rather than trust the cache.
func (e *Emitter) InvalidateLevel() { e.invalidateLevel() }

func (e *Emitter) invalidateLevel() {
	if e.stackLevel >= 0 {
		e.nChanges++
	}
	e.stackLevel = -1
}

// SetLevel records the current LSP value.
func (e *Emitter) SetLevel(v int) {
	if v != e.stackLevel {
		e.nChanges++
	}
	e.stackLevel = v
}

// GetLevel returns the current LSP value, or -1 if invalid.
func (e *Emitter) GetLevel() int { return e.stackLevel }

// NStackLevelChanges returns how many times the LSP cache has been set or
// invalidated to a new value, for tests that assert on invalidation
// counts.
func (e *Emitter) NStackLevelChanges() int { return e.nChanges }
