// Package symtab implements the named-scope symbol table with
// nested-level discipline. All symbols live in one append-only
// arena for the lifetime of a compilation; cross-references between
// symbols (a field's owning record, a variable's type, a type's parent or
// index type) are logical Refs into that arena, never Go pointers, so a
// symbol value can be copied by value without aliasing the table.
package symtab

import "github.com/patacongo/pascal-pcode/lang/types"

// Ref is an index into a Table's symbol arena. It aliases types.SymRef so
// lang/types can define abstract-type identity without importing symtab.
type Ref = types.SymRef

// NoRef is the sentinel meaning "no symbol".
const NoRef = types.NoSymRef

// Kind discriminates the payload of a Symbol.
type Kind uint8

//nolint:revive
const (
	KindType Kind = iota
	KindConstant
	KindStringConst
	KindLabel
	KindVariable
	KindProcedure
	KindFunction
	KindField
	KindFile
)

func (k Kind) String() string {
	switch k {
	case KindType:
		return "type"
	case KindConstant:
		return "constant"
	case KindStringConst:
		return "string-const"
	case KindLabel:
		return "label"
	case KindVariable:
		return "variable"
	case KindProcedure:
		return "procedure"
	case KindFunction:
		return "function"
	case KindField:
		return "field"
	case KindFile:
		return "file"
	}
	return "kind(?)"
}

// VarFlags are the small bitset of flags carried by variable, procedure and
// function symbols.
type VarFlags uint8

const (
	FlagExternal VarFlags = 1 << iota // symbol is defined outside this compilation unit
	FlagVarParam                      // a VAR parameter (passed as a hidden pointer)
)

// TypeFlags are flags on a Kind=Type symbol.
type TypeFlags uint8

const (
	TypeFlagVarSized TypeFlags = 1 << iota // e.g. a variable-sized string buffer
)

// Symbol is a single symbol-table entry: the fixed header (Name, Kind,
// Level) plus the fields relevant to its Kind. Go has no tagged unions, so
// every kind's fields coexist in the struct, zero-valued when irrelevant.
type Symbol struct {
	Name  string
	Kind  Kind
	Level int

	// Kind == KindType
	Type       types.Kind
	RefType    types.Kind
	SubType    Ref // for Subrange: the base ordinal type
	TypeFlags  TypeFlags
	AllocSize  int
	RefSize    int
	MinValue   int64
	MaxValue   int64
	ParentType Ref // for pointers and arrays: the pointee/element type; for functions: the return type
	IndexType  Ref // for arrays: the index (subrange/scalar) type
	FirstField Ref // for records: the head of the field chain (via Symbol.NextField)

	// Kind == KindConstant
	ConstKind types.Kind // Integer, Real or Scalar
	ConstInt  int64
	ConstReal float64

	// Kind == KindStringConst
	RODataOffset int
	ByteSize     int

	// Kind == KindLabel
	LabelNum  int
	Undefined bool

	// Kind == KindVariable
	VarFlags    VarFlags
	Offset      int
	Size        int
	ObjSymIndex int // object-sink symbol index for an external variable; -1 if none

	// Kind == KindProcedure / KindFunction
	EntryLabel   int
	ParamCount   int
	ParamVarMask uint32   // bit i set: parameter i is a VAR parameter
	ProcFlags    VarFlags // FlagExternal applies

	// Kind == KindField
	FieldOffset int
	RecordOwner Ref
	FieldType   Ref
	NextField   Ref

	// Kind == KindFile
	FileSlot int
}
