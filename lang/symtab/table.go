package symtab

import (
	"fmt"
	"strings"

	"github.com/dolthub/swiss"
	"github.com/patacongo/pascal-pcode/lang/token"
	"github.com/patacongo/pascal-pcode/lang/types"
)

// DefaultMaxSymbols bounds the arena the way classic P-code Pascal
// compilers bound their fixed-size symbol table.
const DefaultMaxSymbols = 8192

// ErrTableFull is returned by the Add* methods once the arena has reached
// its MaxSymbols capacity. The caller (lang/compiler) escalates this to a
// fatal diagnostic and terminates the compilation.
var ErrTableFull = fmt.Errorf("symbol table is full")

// predefined symbol indices, set by NewTable's priming.
const (
	SymInteger Ref = iota
	SymBoolean
	SymReal
	SymChar
	SymText
	SymString
	SymTrue
	SymFalse
	SymNil
	SymMaxint
	numPrimed
)

// Table is the append-only symbol arena plus a reserved-word lookup
// (FindReserved). The scanner classifies keywords from token.Reserved
// directly and does not call FindReserved.
type Table struct {
	entries []Symbol

	// Level is the current static nesting depth; level 0 is the program or
	// unit body. Bumped by EnterLevel/LeaveLevel around procedure/function
	// bodies.
	Level int

	MaxSymbols int

	reserved *swiss.Map[string, token.Token]

	InputFileSlot, OutputFileSlot int
}

// NewTable creates a Table primed with the standard constants, types and
// the predefined INPUT/OUTPUT files.
func NewTable() *Table {
	t := &Table{
		MaxSymbols: DefaultMaxSymbols,
		reserved:   swiss.NewMap[string, token.Token](uint32(len(token.Reserved))),
	}
	for kw, tok := range token.Reserved {
		t.reserved.Put(kw, tok)
	}
	t.prime()
	return t
}

func (t *Table) prime() {
	add := func(name string, k types.Kind, minV, maxV int64, allocSize int) Ref {
		r := Ref(len(t.entries))
		t.entries = append(t.entries, Symbol{
			Name: name, Kind: KindType, Level: 0,
			Type: k, RefType: k, MinValue: minV, MaxValue: maxV, AllocSize: allocSize, RefSize: allocSize,
		})
		return r
	}
	add("integer", types.Integer, minInt, maxInt, intSize)
	add("boolean", types.Boolean, 0, 1, intSize)
	add("real", types.Real, 0, 0, realSize)
	add("char", types.Char, 0, 255, intSize)

	textRef := Ref(len(t.entries))
	t.entries = append(t.entries, Symbol{Name: "text", Kind: KindType, Type: types.File, RefType: types.Char, AllocSize: intSize})
	_ = textRef

	strRef := Ref(len(t.entries))
	t.entries = append(t.entries, Symbol{
		Name: "string", Kind: KindType, Type: types.String, RefType: types.String,
		TypeFlags: TypeFlagVarSized, AllocSize: defaultStringSize,
	})
	_ = strRef

	t.entries = append(t.entries, Symbol{Name: "true", Kind: KindConstant, ConstKind: types.Boolean, ConstInt: -1})
	t.entries = append(t.entries, Symbol{Name: "false", Kind: KindConstant, ConstKind: types.Boolean, ConstInt: 0})
	t.entries = append(t.entries, Symbol{Name: "nil", Kind: KindConstant, ConstKind: types.Integer, ConstInt: 0})
	t.entries = append(t.entries, Symbol{Name: "maxint", Kind: KindConstant, ConstKind: types.Integer, ConstInt: maxInt})

	t.InputFileSlot = 0
	t.OutputFileSlot = 1
	t.entries = append(t.entries, Symbol{Name: "input", Kind: KindFile, FileSlot: t.InputFileSlot})
	t.entries = append(t.entries, Symbol{Name: "output", Kind: KindFile, FileSlot: t.OutputFileSlot})
}

const (
	intSize           = 4
	realSize          = 8
	defaultStringSize = 256
	minInt            = -(1 << 31)
	maxInt            = (1 << 31) - 1
)

// Mark returns the current arena length, to be used as a later FindSymbol
// tableBase or VerifyLabels base.
func (t *Table) Mark() Ref { return Ref(len(t.entries)) }

// Truncate discards every entry at or above mark, restoring the scope that
// was in effect when Mark returned it. Refs taken above mark
// must not be used afterwards.
func (t *Table) Truncate(mark Ref) {
	if mark >= 0 && int(mark) <= len(t.entries) {
		t.entries = t.entries[:mark]
	}
}

// Symbol returns a by-value copy of the entry at r. Copying by value is
// required whenever a walker (the complex-factor/assignment LVALUE
// decomposition) needs a snapshot it can freely read while the table
// itself may grow from recursive processing of sub-expressions.
func (t *Table) Symbol(r Ref) Symbol {
	if r < 0 || int(r) >= len(t.entries) {
		return Symbol{}
	}
	return t.entries[r]
}

// Set overwrites the entry at r (e.g. to clear a label's Undefined flag, or
// assign a field's offset once computed).
func (t *Table) Set(r Ref, sym Symbol) {
	if r >= 0 && int(r) < len(t.entries) {
		t.entries[r] = sym
	}
}

// Update applies fn to the entry at r in place.
func (t *Table) Update(r Ref, fn func(*Symbol)) {
	if r >= 0 && int(r) < len(t.entries) {
		fn(&t.entries[r])
	}
}

// FindReserved performs a case-insensitive search of the compile-time
// reserved-word table, returning the matching Token.
func (t *Table) FindReserved(name string) (token.Token, bool) {
	tok, ok := t.reserved.Get(strings.ToLower(name))
	return tok, ok
}

// FindSymbol searches from the newest entry back to tableBase, returning
// the innermost (most recently added) binding for name, case-insensitively.
// It reports false if no matching entry exists in that range.
func (t *Table) FindSymbol(name string, tableBase Ref) (Ref, bool) {
	lower := strings.ToLower(name)
	for i := len(t.entries) - 1; i >= int(tableBase); i-- {
		if strings.ToLower(t.entries[i].Name) == lower {
			return Ref(i), true
		}
	}
	return NoRef, false
}

func (t *Table) add(sym Symbol) (Ref, error) {
	if len(t.entries) >= t.MaxSymbols {
		return NoRef, ErrTableFull
	}
	sym.Level = t.Level
	r := Ref(len(t.entries))
	t.entries = append(t.entries, sym)
	return r, nil
}

// AddType appends a new Kind=Type entry.
func (t *Table) AddType(name string, prim, refType types.Kind) (Ref, error) {
	return t.add(Symbol{Name: name, Kind: KindType, Type: prim, RefType: refType, ParentType: NoRef, IndexType: NoRef, SubType: NoRef, FirstField: NoRef})
}

// SetFirstField records the head of curType's field chain, called once the
// record's field list has been fully parsed.
func (t *Table) SetFirstField(curType Ref, first Ref) {
	t.Update(curType, func(s *Symbol) { s.FirstField = first })
}

// LinkField appends next onto the end of the field chain rooted at head,
// returning the (possibly unchanged) head. Pass NoRef as head to start a
// new chain.
func (t *Table) LinkField(head, next Ref) Ref {
	if head == NoRef {
		return next
	}
	cur := head
	for {
		s := t.Symbol(cur)
		if s.NextField == NoRef {
			t.Update(cur, func(s *Symbol) { s.NextField = next })
			return head
		}
		cur = s.NextField
	}
}

// FindField searches curType's field chain for name, case-insensitively.
func (t *Table) FindField(curType Ref, name string) (Ref, bool) {
	cur := t.Symbol(curType).FirstField
	for cur != NoRef {
		f := t.Symbol(cur)
		if strings.EqualFold(f.Name, name) {
			return cur, true
		}
		cur = f.NextField
	}
	return NoRef, false
}

// AddConstant appends a new Kind=Constant entry.
func (t *Table) AddConstant(name string, ck types.Kind, parent Ref) (Ref, error) {
	return t.add(Symbol{Name: name, Kind: KindConstant, ConstKind: ck, ParentType: parent})
}

// AddStringConst appends a new Kind=StringConst entry referring to an
// RO-data offset already published via the object sink.
func (t *Table) AddStringConst(name string, roOffset, size int) (Ref, error) {
	return t.add(Symbol{Name: name, Kind: KindStringConst, RODataOffset: roOffset, ByteSize: size})
}

// AddFile appends a new Kind=File entry.
func (t *Table) AddFile(name string, slot int) (Ref, error) {
	return t.add(Symbol{Name: name, Kind: KindFile, FileSlot: slot})
}

// AddVariable appends a new Kind=Variable entry.
func (t *Table) AddVariable(name string, flags VarFlags, offset, size int, parentType Ref) (Ref, error) {
	return t.add(Symbol{Name: name, Kind: KindVariable, VarFlags: flags, Offset: offset, Size: size, ParentType: parentType, ObjSymIndex: -1})
}

// AddProcedure appends a new Kind=Procedure entry.
func (t *Table) AddProcedure(name string, entryLabel int, flags VarFlags) (Ref, error) {
	return t.add(Symbol{Name: name, Kind: KindProcedure, EntryLabel: entryLabel, ProcFlags: flags, ObjSymIndex: -1})
}

// AddFunction appends a new Kind=Function entry; parentType is the return
// type.
func (t *Table) AddFunction(name string, entryLabel int, flags VarFlags, parentType Ref) (Ref, error) {
	return t.add(Symbol{Name: name, Kind: KindFunction, EntryLabel: entryLabel, ProcFlags: flags, ParentType: parentType, ObjSymIndex: -1})
}

// AddLabel appends a new Kind=Label entry, initially Undefined.
func (t *Table) AddLabel(name string, num int) (Ref, error) {
	return t.add(Symbol{Name: name, Kind: KindLabel, LabelNum: num, Undefined: true})
}

// AddField appends a new Kind=Field entry.
func (t *Table) AddField(name string, owner, fieldType Ref, offset, size int) (Ref, error) {
	return t.add(Symbol{Name: name, Kind: KindField, RecordOwner: owner, FieldType: fieldType, FieldOffset: offset, Size: size, NextField: NoRef})
}

// DefineLabel clears the Undefined flag of the label at r.
func (t *Table) DefineLabel(r Ref) {
	t.Update(r, func(s *Symbol) { s.Undefined = false })
}

// VerifyLabels scans all labels added at or above base and returns one error
// per label still Undefined.
func (t *Table) VerifyLabels(base Ref) []error {
	var errs []error
	for i := int(base); i < len(t.entries); i++ {
		s := t.entries[i]
		if s.Kind == KindLabel && s.Undefined {
			errs = append(errs, fmt.Errorf("label %s declared but not defined", s.Name))
		}
	}
	return errs
}

// EnterLevel increments the current static nesting level, called when
// compilation descends into a nested procedure or function body.
func (t *Table) EnterLevel() { t.Level++ }

// LeaveLevel decrements the current static nesting level.
func (t *Table) LeaveLevel() { t.Level-- }
