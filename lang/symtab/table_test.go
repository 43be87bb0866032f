package symtab

import (
	"testing"

	"github.com/patacongo/pascal-pcode/lang/types"
)

func TestReservedLookupCaseInsensitive(t *testing.T) {
	tab := NewTable()
	if _, ok := tab.FindReserved("PROGRAM"); !ok {
		t.Fatal("expected PROGRAM to be reserved")
	}
	if _, ok := tab.FindReserved("Begin"); !ok {
		t.Fatal("expected Begin to be reserved")
	}
	if _, ok := tab.FindReserved("frobnicate"); ok {
		t.Fatal("frobnicate must not be reserved")
	}
}

func TestPrimedStandardTypes(t *testing.T) {
	tab := NewTable()
	for _, name := range []string{"integer", "boolean", "real", "char", "text", "string"} {
		if _, ok := tab.FindSymbol(name, 0); !ok {
			t.Errorf("expected primed type %q", name)
		}
	}
	for _, name := range []string{"true", "false", "nil", "maxint"} {
		if _, ok := tab.FindSymbol(name, 0); !ok {
			t.Errorf("expected primed constant %q", name)
		}
	}
	r, ok := tab.FindSymbol("input", 0)
	if !ok || tab.Symbol(r).FileSlot != 0 {
		t.Errorf("expected input at file slot 0")
	}
	r, ok = tab.FindSymbol("output", 0)
	if !ok || tab.Symbol(r).FileSlot != 1 {
		t.Errorf("expected output at file slot 1")
	}
}

// Symbol lookup from a saved base sees only entries added at or after that
// base, and an innermost shadowing declaration must win over an outer one
// still physically present in the arena.
func TestFindSymbolScoping(t *testing.T) {
	tab := NewTable()
	base := tab.Mark()

	outer, err := tab.AddVariable("x", 0, 0, 4, SymInteger)
	if err != nil {
		t.Fatal(err)
	}
	inner := tab.Mark()
	shadow, err := tab.AddVariable("x", 0, 4, 4, SymInteger)
	if err != nil {
		t.Fatal(err)
	}

	if got, ok := tab.FindSymbol("x", base); !ok || got != shadow {
		t.Errorf("expected shadowing declaration to win, got %v", got)
	}
	if got, ok := tab.FindSymbol("x", inner); !ok || got != shadow {
		t.Errorf("restoring to inner scope should still find the shadow, got %v", got)
	}
	if _, ok := tab.FindSymbol("x", tab.Mark()); ok {
		t.Errorf("restoring to current mark should find nothing new")
	}
	_ = outer
}

func TestAddOverflow(t *testing.T) {
	tab := NewTable()
	tab.MaxSymbols = len(tab.entries) + 1
	if _, err := tab.AddVariable("a", 0, 0, 4, SymInteger); err != nil {
		t.Fatalf("unexpected overflow: %v", err)
	}
	if _, err := tab.AddVariable("b", 0, 0, 4, SymInteger); err != ErrTableFull {
		t.Fatalf("expected ErrTableFull, got %v", err)
	}
}

// Every label present at program end must have Undefined == false.
func TestVerifyLabelsCatchesUndefined(t *testing.T) {
	tab := NewTable()
	base := tab.Mark()

	good, err := tab.AddLabel("100", 100)
	if err != nil {
		t.Fatal(err)
	}
	tab.DefineLabel(good)

	if _, err := tab.AddLabel("200", 200); err != nil {
		t.Fatal(err)
	}

	errs := tab.VerifyLabels(base)
	if len(errs) != 1 {
		t.Fatalf("expected exactly one undefined-label error, got %d: %v", len(errs), errs)
	}
}

func TestEnterLeaveLevel(t *testing.T) {
	tab := NewTable()
	if tab.Level != 0 {
		t.Fatalf("expected program level 0, got %d", tab.Level)
	}
	tab.EnterLevel()
	r, err := tab.AddVariable("local", 0, 0, 4, SymInteger)
	if err != nil {
		t.Fatal(err)
	}
	if tab.Symbol(r).Level != 1 {
		t.Errorf("expected nested variable at level 1, got %d", tab.Symbol(r).Level)
	}
	tab.LeaveLevel()
	if tab.Level != 0 {
		t.Errorf("expected level to return to 0, got %d", tab.Level)
	}
}

func TestFieldChainByValueCopy(t *testing.T) {
	tab := NewTable()
	owner, _ := tab.AddType("point", types.Record, types.Record)
	f1, err := tab.AddField("x", owner, SymInteger, 0, 4)
	if err != nil {
		t.Fatal(err)
	}
	snap := tab.Symbol(f1)
	tab.Update(f1, func(s *Symbol) { s.FieldOffset = 99 })
	if snap.FieldOffset == 99 {
		t.Fatal("Symbol() must return an independent copy, not an alias")
	}
	if tab.Symbol(f1).FieldOffset != 99 {
		t.Fatal("Update must mutate the arena entry in place")
	}
}

// Truncating back to a mark makes everything declared above it unreachable
// again, restoring the outer binding.
func TestTruncateRestoresScope(t *testing.T) {
	tab := NewTable()
	outer, err := tab.AddVariable("v", 0, 0, 4, SymInteger)
	if err != nil {
		t.Fatal(err)
	}
	mark := tab.Mark()
	if _, err := tab.AddVariable("v", 0, 4, 4, SymInteger); err != nil {
		t.Fatal(err)
	}

	tab.Truncate(mark)
	got, ok := tab.FindSymbol("v", 0)
	if !ok || got != outer {
		t.Fatalf("expected the outer binding after Truncate, got %v, %v", got, ok)
	}
}

// A lookup never returns a binding declared deeper than the current level.
func TestLookupLevelMonotonic(t *testing.T) {
	tab := NewTable()
	if _, err := tab.AddVariable("g", 0, 0, 4, SymInteger); err != nil {
		t.Fatal(err)
	}
	tab.EnterLevel()
	mark := tab.Mark()
	if _, err := tab.AddVariable("l", 0, 0, 4, SymInteger); err != nil {
		t.Fatal(err)
	}
	tab.Truncate(mark)
	tab.LeaveLevel()

	for _, name := range []string{"g", "integer", "true"} {
		r, ok := tab.FindSymbol(name, 0)
		if !ok {
			t.Fatalf("expected %q to resolve", name)
		}
		if lvl := tab.Symbol(r).Level; lvl > tab.Level {
			t.Errorf("%q resolved to level %d, above current level %d", name, lvl, tab.Level)
		}
	}
	if _, ok := tab.FindSymbol("l", 0); ok {
		t.Error("the truncated local must not resolve")
	}
}
