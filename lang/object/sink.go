// Package object implements the object sink: the opaque
// collaborator the compiler core emits a stream of records to. The core
// never inspects the sink's own encoding; it only calls the Sink interface.
package object

import "github.com/patacongo/pascal-pcode/lang/pcode"

// FileKind distinguishes a PROGRAM object file from a UNIT object file in
// the file header.
type FileKind uint8

const (
	FileProgram FileKind = iota
	FileUnit
)

func (k FileKind) String() string {
	if k == FileUnit {
		return "unit"
	}
	return "program"
}

// SymKind classifies a symbol-table-entry record.
type SymKind uint8

const (
	SymData SymKind = iota
	SymProc
	SymFunc
)

func (k SymKind) String() string {
	switch k {
	case SymProc:
		return "proc"
	case SymFunc:
		return "func"
	}
	return "data"
}

// SymFlag is the small bitset on a symbol-table-entry record.
type SymFlag uint8

const (
	SymFlagNone      SymFlag = 0
	SymFlagUndefined SymFlag = 1 << iota
)

// RelocKind classifies a relocation record.
type RelocKind uint8

const (
	RelocLoadStore RelocKind = iota
	RelocProcCall
)

func (k RelocKind) String() string {
	if k == RelocProcCall {
		return "proc-call"
	}
	return "load-store"
}

// Insn is one opcode record: the opcode plus its optional immediate and the
// optional extra arg1 (16-bit, used for e.g. FP coercion bits or level) and
// arg2 (32-bit, an offset/label/size) fields.
type Insn struct {
	Op       pcode.Opcode
	HasArg   bool
	Arg1     uint16
	Arg2     uint32
}

// Reloc is a relocation record.
type Reloc struct {
	Kind        RelocKind
	SymbolIndex int
	Offset      int
}

// DebugInfo is a function-debug record.
type DebugInfo struct {
	Label      int
	ReturnSize int
	ParamSizes []int
}

// Sink is the object sink's contract: the core emits records to
// it, in order, and never reads them back except for the index returned by
// DefineSymbol/AddRoDataString.
type Sink interface {
	// SetHeader publishes the file-header fields. Must be called exactly
	// once, before any other record.
	SetHeader(kind FileKind, arch string, programName string)

	// Emit appends one opcode record.
	Emit(insn Insn)

	// EmitReloc appends one relocation record.
	EmitReloc(r Reloc)

	// DefineSymbol adds a symbol-table-entry record and returns its
	// assigned index (used for later relocation fixups against it, notably
	// when the symbol was added as undefined on import).
	DefineSymbol(kind SymKind, name string, alignment int, flags SymFlag, value, size int) int

	// AddDebugInfo publishes a function-debug record.
	AddDebugInfo(info DebugInfo)

	// AddRoDataString interns bytes into the read-only data section and
	// returns its byte offset, stable for the remainder of the compilation.
	AddRoDataString(b []byte) int

	// EmitLineNumber publishes a line-number record correlating subsequent
	// opcode records with source position.
	EmitLineNumber(file string, line int)
}
