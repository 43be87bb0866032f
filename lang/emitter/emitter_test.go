package emitter

import (
	"testing"

	"github.com/patacongo/pascal-pcode/lang/object"
	"github.com/patacongo/pascal-pcode/lang/pcode"
	"github.com/patacongo/pascal-pcode/lang/symtab"
)

func TestEmitStackRefLevelZeroUsesShortForm(t *testing.T) {
	sink := object.NewTextSink()
	e := New(sink)
	sym := symtab.Symbol{Name: "x", Level: 0, Offset: 8}

	e.EmitStackRef(pcode.LD, sym)

	code := sink.Code()
	if len(code) != 1 || code[0].Op != pcode.LDS || code[0].Arg2 != 8 {
		t.Fatalf("got %+v, want a single LDS 8", code)
	}
}

func TestEmitStackRefExternalRecordsRelocation(t *testing.T) {
	sink := object.NewTextSink()
	e := New(sink)
	sym := symtab.Symbol{Name: "x", Level: 0, Offset: 4, VarFlags: symtab.FlagExternal, ObjSymIndex: 3}

	e.EmitStackRef(pcode.ST, sym)

	relocs := sink.Relocs()
	if len(relocs) != 1 || relocs[0].SymbolIndex != 3 || relocs[0].Offset != 4 {
		t.Fatalf("got %+v, want exactly one relocation against symbol 3 offset 4", relocs)
	}
}

func TestEmitStackRefNonZeroLevelUsesGeneralForm(t *testing.T) {
	sink := object.NewTextSink()
	e := New(sink)
	e.CurrentLevel = 2
	sym := symtab.Symbol{Name: "x", Level: 1, Offset: 4}

	e.EmitStackRef(pcode.LD, sym)

	code := sink.Code()
	if len(code) != 1 || code[0].Op != pcode.LD || code[0].Arg1 != 1 || code[0].Arg2 != 4 {
		t.Fatalf("got %+v, want general-form LD at relative level 1 offset 4", code)
	}
}

func TestEmitProcedureCallLevelAndLabel(t *testing.T) {
	sink := object.NewTextSink()
	e := New(sink)
	proc := symtab.Symbol{Name: "p", Level: 0, EntryLabel: 17}

	e.EmitProcedureCall(proc)

	code := sink.Code()
	if len(code) != 1 || code[0].Op != pcode.CALL || code[0].Arg1 != 1 || code[0].Arg2 != 17 {
		t.Fatalf("got %+v, want CALL level=1 label=17", code)
	}
}

func TestImportThenExportStackSymbolReusesIndex(t *testing.T) {
	sink := object.NewTextSink()
	e := New(sink)
	sym := symtab.Symbol{Name: "shared", Size: 4}

	e.ImportStackSymbol(&sym)
	importedIdx := sym.ObjSymIndex
	if sym.VarFlags&symtab.FlagExternal == 0 {
		t.Fatal("ImportStackSymbol must mark the symbol external")
	}

	e.ExportStackSymbol(&sym)
	if sym.ObjSymIndex != importedIdx {
		t.Fatalf("export after import must reuse the same object-sink index")
	}
}

func TestLSPInvalidateCountsOnce(t *testing.T) {
	sink := object.NewTextSink()
	e := New(sink)

	e.SetLevel(4)
	before := e.NStackLevelChanges()
	e.InvalidateLevel()
	e.InvalidateLevel()
	after := e.NStackLevelChanges()

	if after != before+1 {
		t.Fatalf("invalidating an already-invalid level must not re-count: before=%d after=%d", before, after)
	}
	if e.GetLevel() >= 0 {
		t.Fatalf("expected GetLevel to report invalid (<0), got %d", e.GetLevel())
	}
}

func TestEmitLabelInvalidatesLSP(t *testing.T) {
	sink := object.NewTextSink()
	e := New(sink)
	e.SetLevel(2)

	e.EmitLabel(5)

	if e.GetLevel() >= 0 {
		t.Fatalf("a label definition must invalidate the LSP: a goto may enter from anywhere")
	}
}
