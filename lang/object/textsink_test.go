package object

import (
	"strings"
	"testing"

	"github.com/patacongo/pascal-pcode/lang/pcode"
)

func TestDefineSymbolAssignsStableIndices(t *testing.T) {
	s := NewTextSink()
	s.SetHeader(FileProgram, "pcode32", "p")

	idx1 := s.DefineSymbol(SymData, "x", 4, SymFlagUndefined, 0, 4)
	idx2 := s.DefineSymbol(SymData, "y", 4, SymFlagUndefined, 0, 4)
	if idx1 == idx2 {
		t.Fatalf("distinct symbols must get distinct indices")
	}

	// Re-defining x (the import -> real-definition transition) must keep
	// its original index so existing relocations against it remain valid.
	idx1b := s.DefineSymbol(SymData, "x", 4, SymFlagNone, 100, 4)
	if idx1b != idx1 {
		t.Fatalf("redefining an imported symbol must preserve its index: got %d want %d", idx1b, idx1)
	}
	if s.symbols[idx1].flags != SymFlagNone {
		t.Fatalf("redefinition must clear the undefined flag")
	}
}

func TestLookupFindsDefinedSymbol(t *testing.T) {
	s := NewTextSink()
	s.SetHeader(FileProgram, "pcode32", "p")
	idx := s.DefineSymbol(SymProc, "foo", 1, SymFlagNone, 0, 0)
	got, ok := s.Lookup("foo")
	if !ok || got != idx {
		t.Fatalf("Lookup(foo) = %d, %v; want %d, true", got, ok, idx)
	}
	if _, ok := s.Lookup("bar"); ok {
		t.Fatalf("Lookup(bar) should miss")
	}
}

func TestAddRoDataStringOffsetsAreStable(t *testing.T) {
	s := NewTextSink()
	off1 := s.AddRoDataString([]byte("hi"))
	off2 := s.AddRoDataString([]byte("there"))
	if off1 != 0 || off2 != 2 {
		t.Fatalf("got offsets %d, %d; want 0, 2", off1, off2)
	}
}

func TestBytesRequiresHeader(t *testing.T) {
	s := NewTextSink()
	if _, err := s.Bytes(); err == nil {
		t.Fatal("expected an error when SetHeader was never called")
	}
}

func TestBytesRendersSections(t *testing.T) {
	s := NewTextSink()
	s.SetHeader(FileProgram, "pcode32", "p")
	s.DefineSymbol(SymData, "x", 4, SymFlagNone, 0, 4)
	s.EmitReloc(Reloc{Kind: RelocLoadStore, SymbolIndex: 0, Offset: 4})
	s.Emit(Insn{Op: pcode.PUSH, HasArg: true, Arg2: 3})
	s.Emit(Insn{Op: pcode.ADD})

	out, err := s.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	text := string(out)
	for _, want := range []string{"header:", "symbols:", "relocations:", "code:", "push 0 3", "add"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, text)
		}
	}
}

// The Load/Bytes pair must round-trip: loading a rendered object file and
// rendering it again yields byte-identical output.
func TestLoadRoundTrip(t *testing.T) {
	s := NewTextSink()
	s.SetHeader(FileProgram, "pcode32", "demo")
	s.DefineSymbol(SymData, "x", 4, SymFlagNone, 0, 4)
	s.DefineSymbol(SymProc, "main", 1, SymFlagUndefined, 0, 0)
	s.EmitReloc(Reloc{Kind: RelocLoadStore, SymbolIndex: 0, Offset: 4})
	s.EmitReloc(Reloc{Kind: RelocProcCall, SymbolIndex: 1, Offset: 2})
	s.AddRoDataString([]byte("hi # there"))
	s.AddDebugInfo(DebugInfo{Label: 3, ReturnSize: 4, ParamSizes: []int{4, 8}})
	s.AddDebugInfo(DebugInfo{Label: 5, ReturnSize: 0})
	s.Emit(Insn{Op: pcode.PUSHS})
	s.Emit(Insn{Op: pcode.PUSH, HasArg: true, Arg2: 3})
	s.Emit(Insn{Op: pcode.LIBCALL, HasArg: true, Arg1: uint16(pcode.STRCPY)})
	s.Emit(Insn{Op: pcode.END})

	first, err := s.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(first)
	if err != nil {
		t.Fatal(err)
	}
	second, err := loaded.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	if string(first) != string(second) {
		t.Errorf("round trip diverged:\nfirst:\n%s\nsecond:\n%s", first, second)
	}
}

func TestLoadRejectsGarbage(t *testing.T) {
	if _, err := Load([]byte("code:\n\tnotanopcode\n")); err == nil {
		t.Fatal("expected an error for an unknown opcode")
	}
	if _, err := Load([]byte("\tadd\n")); err == nil {
		t.Fatal("expected an error for a record outside any section")
	}
	if _, err := Load(nil); err == nil {
		t.Fatal("expected an error for a missing header")
	}
}
