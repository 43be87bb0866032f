package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patacongo/pascal-pcode/lang/object"
	"github.com/patacongo/pascal-pcode/lang/pcode"
	"github.com/patacongo/pascal-pcode/lang/scanner"
	"github.com/patacongo/pascal-pcode/lang/token"
)

// compileSource scans and compiles src, failing the test on any diagnostic.
func compileSource(t *testing.T, src string) (*object.TextSink, *Compiler) {
	t.Helper()
	sink, c, err := tryCompile(t, src)
	require.NoError(t, err)
	return sink, c
}

func tryCompile(t *testing.T, src string) (*object.TextSink, *Compiler, error) {
	t.Helper()
	fs := token.NewFileSet()
	file := fs.AddFile("test.pas", len(src))
	toks, err := scanner.ScanFile(file, []byte(src))
	require.NoError(t, err)
	sink := object.NewTextSink()
	c := New(file, toks, sink)
	err = c.Compile()
	return sink, c, err
}

func opsOf(code []object.Insn) []pcode.Opcode {
	ops := make([]pcode.Opcode, len(code))
	for i, insn := range code {
		ops[i] = insn.Op
	}
	return ops
}

func countOp(code []object.Insn, op pcode.Opcode) int {
	n := 0
	for _, insn := range code {
		if insn.Op == op {
			n++
		}
	}
	return n
}

// A simple global assignment compiles to pushes, the operator, and a
// short-form store, bracketed by the statement's string-stack frame.
func TestSimpleAssignment(t *testing.T) {
	sink, _ := compileSource(t, `
PROGRAM p;
VAR x : Integer;
BEGIN x := 3 + 4 END.
`)
	code := sink.Code()
	require.Equal(t, []pcode.Opcode{
		pcode.PUSHS, pcode.PUSH, pcode.PUSH, pcode.ADD, pcode.STS, pcode.POPS, pcode.END,
	}, opsOf(code))
	assert.Equal(t, uint32(3), code[1].Arg2)
	assert.Equal(t, uint32(4), code[2].Arg2)
	assert.Equal(t, uint32(0), code[4].Arg2)

	// x is exported as a level-0 data symbol of integer size
	idx, ok := sink.Lookup("x")
	require.True(t, ok)
	assert.Equal(t, 0, idx)
}

// An array element store scales the index by the element size after
// rebasing it on the index type's lower bound.
func TestArrayElementStore(t *testing.T) {
	sink, _ := compileSource(t, `
PROGRAM p;
VAR a : ARRAY[1..10] OF Integer;
BEGIN a[3] := 7 END.
`)
	code := sink.Code()
	require.Equal(t, []pcode.Opcode{
		pcode.PUSHS,
		pcode.PUSH, pcode.PUSH, pcode.SUB, // index, minus the index type's min
		pcode.PUSH, pcode.MUL, // scaled by the element size
		pcode.PUSH,  // the value
		pcode.STSX,  // indexed store into the base slot
		pcode.POPS, pcode.END,
	}, opsOf(code))
	assert.Equal(t, uint32(3), code[1].Arg2)
	assert.Equal(t, uint32(1), code[2].Arg2)
	assert.Equal(t, uint32(4), code[4].Arg2)
	assert.Equal(t, uint32(7), code[6].Arg2)
}

// Storing through a pointer loads the pointer value after the RHS, then
// stores indirectly.
func TestPointerDereferenceStore(t *testing.T) {
	sink, _ := compileSource(t, `
PROGRAM prog;
TYPE pi = ^Integer;
VAR p : pi;
BEGIN p^ := 42 END.
`)
	code := sink.Code()
	require.Equal(t, []pcode.Opcode{
		pcode.PUSHS, pcode.PUSH, pcode.LDS, pcode.STI, pcode.POPS, pcode.END,
	}, opsOf(code))
	assert.Equal(t, uint32(42), code[1].Arg2)
	assert.Equal(t, uint32(0), code[2].Arg2)
}

// A string-literal assignment interns the literal in RO-data and copies
// it into the variable via the string library.
func TestStringLiteralAssignment(t *testing.T) {
	sink, _ := compileSource(t, `
PROGRAM p;
VAR s : String;
BEGIN s := 'hi' END.
`)
	code := sink.Code()
	require.Equal(t, []pcode.Opcode{
		pcode.PUSHS, pcode.LAS, pcode.LIBCALL, // block-entry string init
		pcode.PUSHS,
		pcode.LAC, pcode.PUSH, // RO-data address and size of 'hi'
		pcode.LAS,     // destination address
		pcode.LIBCALL, // strcpy
		pcode.POPS,
		pcode.POPS, // block-exit string-stack pop
		pcode.END,
	}, opsOf(code))
	assert.Equal(t, uint16(pcode.STRINIT), code[2].Arg1)
	assert.Equal(t, uint32(0), code[4].Arg2)
	assert.Equal(t, uint32(2), code[5].Arg2)
	assert.Equal(t, uint16(pcode.STRCPY), code[7].Arg1)
}

// IF/THEN/ELSE branches over the else label and joins at the end label.
func TestIfThenElse(t *testing.T) {
	sink, _ := compileSource(t, `
PROGRAM p;
VAR x, y : Integer;
BEGIN IF x > 0 THEN y := 1 ELSE y := 2 END.
`)
	code := sink.Code()
	require.Equal(t, []pcode.Opcode{
		pcode.PUSHS,
		pcode.LDS, pcode.PUSH, pcode.GT, pcode.JEQUZ,
		pcode.PUSHS, pcode.PUSH, pcode.STS, pcode.POPS,
		pcode.JMP, pcode.LABEL,
		pcode.PUSHS, pcode.PUSH, pcode.STS, pcode.POPS,
		pcode.LABEL,
		pcode.POPS, pcode.END,
	}, opsOf(code))
	// JEQUZ targets the else label, JMP the end label
	assert.Equal(t, code[4].Arg2, code[10].Arg2)
	assert.Equal(t, code[9].Arg2, code[15].Arg2)
	assert.Equal(t, uint32(4), code[7].Arg2) // y is at offset 4
}

// A FOR loop keeps its bound on the stack, and string concatenation in
// the body promotes to the string stack before appending.
func TestForLoopWithStringConcat(t *testing.T) {
	sink, _ := compileSource(t, `
PROGRAM p;
VAR i : Integer;
    s : String;
BEGIN FOR i := 1 TO 3 DO s := s + 'x' END.
`)
	code := sink.Code()
	require.Equal(t, []pcode.Opcode{
		pcode.PUSHS, pcode.LAS, pcode.LIBCALL, // string init
		pcode.PUSHS,
		pcode.PUSH, pcode.STS, // i := 1
		pcode.PUSH, // the bound, kept on the stack
		pcode.LABEL,
		pcode.DUP, pcode.LDS, pcode.LT, pcode.JNEQZ, // bound < i -> exit
		pcode.PUSHS,
		pcode.PUSH, pcode.LDSM, // load s (multi-word, size-prefixed)
		pcode.PUSH,                   // 'x'
		pcode.LIBCALL, pcode.LIBCALL, // strdup, strcatc
		pcode.LAS, pcode.LIBCALL, // dest address, sstrcpy
		pcode.POPS,
		pcode.LDS, pcode.INC, pcode.STS, // i := i + 1
		pcode.JMP, pcode.LABEL,
		pcode.INDS, // drop the bound
		pcode.POPS,
		pcode.POPS, pcode.END,
	}, opsOf(code))

	assert.Equal(t, uint16(pcode.STRDUP), code[16].Arg1)
	assert.Equal(t, uint16(pcode.STRCATC), code[17].Arg1)
	assert.Equal(t, uint16(pcode.SSTRCPY), code[19].Arg1)
	negFour := int32(-4)
	assert.Equal(t, uint32(negFour), code[26].Arg2) // the bound is dropped

}

// A FOR loop whose degenerate range executes zero iterations still balances
// the data stack: the comparison at the loop top can exit immediately, and
// the bound is dropped exactly once after the exit label.
func TestForLoopDropsBoundExactlyOnce(t *testing.T) {
	sink, _ := compileSource(t, `
PROGRAM p;
VAR i, x : Integer;
BEGIN FOR i := 1 DOWNTO 10 DO x := i END.
`)
	code := sink.Code()
	require.Equal(t, 1, countOp(code, pcode.INDS))
	require.Equal(t, 1, countOp(code, pcode.GT)) // DOWNTO comparison
	// the conditional exit jump and the trailing INDS bracket the body
	var jumpIdx, indsIdx int
	for i, insn := range code {
		switch insn.Op {
		case pcode.JNEQZ:
			jumpIdx = i
		case pcode.INDS:
			indsIdx = i
		}
	}
	assert.Less(t, jumpIdx, indsIdx)
}

// Only the last constant of a CASE arm's list jumps past the arm with
// JNEQZ; all earlier constants jump to the body label with JEQUZ.
func TestCaseSelectorJumps(t *testing.T) {
	sink, _ := compileSource(t, `
PROGRAM p;
VAR x, y : Integer;
BEGIN
  CASE x OF
    1, 2 : y := 1;
    3 : y := 2
    ELSE y := 3
  END
END.
`)
	code := sink.Code()
	// arm one: JEQUZ for constant 1, JNEQZ for constant 2 (its last);
	// arm two: JNEQZ for constant 3 (its only)
	assert.Equal(t, 1, countOp(code, pcode.JEQUZ))
	assert.Equal(t, 2, countOp(code, pcode.JNEQZ))
	// the duplicated selector is dropped exactly once at end-case
	assert.Equal(t, 1, countOp(code, pcode.INDS))
	// each selector test duplicates the selector value
	assert.Equal(t, 3, countOp(code, pcode.DUP))
}

// Every PUSHS is matched by exactly one POPS.
func TestStringStackBracketsBalance(t *testing.T) {
	sink, _ := compileSource(t, `
PROGRAM p;
VAR x, y : Integer;
    s : String;
BEGIN
  WHILE x > 0 DO
  BEGIN
    IF x > 1 THEN y := 1 ELSE s := 'a';
    CASE y OF
      1 : s := s + 'b';
      2 : x := 0
    END;
    REPEAT x := x - 1 UNTIL x = 0
  END
END.
`)
	code := sink.Code()
	assert.Equal(t, countOp(code, pcode.PUSHS), countOp(code, pcode.POPS))
	assert.Greater(t, countOp(code, pcode.PUSHS), 1)
}

// Mixed Integer/Real operands tag the FP opcode with the coercion bit of
// the integer operand, in exactly one place.
func TestMixedIntRealCoercionBits(t *testing.T) {
	sink, _ := compileSource(t, `
PROGRAM p;
VAR r : Real;
BEGIN r := 1 + 2.5 END.
`)
	code := sink.Code()
	var fadds []object.Insn
	for _, insn := range code {
		if insn.Op == pcode.FADD {
			fadds = append(fadds, insn)
		}
	}
	require.Len(t, fadds, 1)
	require.True(t, fadds[0].HasArg)
	assert.Equal(t, uint16(1), fadds[0].Arg1) // arg1 bit: the left operand is the integer
	// the explicit cast opcode must not also appear for the same op
	assert.Zero(t, countOp(code, pcode.FLT2FP))
}

// The reverse mix uses the arg2 bit.
func TestMixedRealIntCoercionBits(t *testing.T) {
	sink, _ := compileSource(t, `
PROGRAM p;
VAR r : Real;
BEGIN r := 2.5 * 3 END.
`)
	code := sink.Code()
	for _, insn := range code {
		if insn.Op == pcode.FMUL {
			require.True(t, insn.HasArg)
			assert.Equal(t, uint16(2), insn.Arg1)
			return
		}
	}
	t.Fatal("no FMUL emitted")
}

// An up-level access from a nested procedure must use the general
// (level-delta) opcode form; own-frame and global accesses collapse to the
// short forms.
func TestUplevelAccessUsesGeneralForm(t *testing.T) {
	sink, _ := compileSource(t, `
PROGRAM p;
PROCEDURE outer;
VAR a : Integer;
  PROCEDURE inner;
  BEGIN
    IF a > 0 THEN a := 1
  END;
BEGIN a := 0 END;
BEGIN END.
`)
	code := sink.Code()
	foundLD, foundST := false, false
	for _, insn := range code {
		if insn.Op == pcode.LD && insn.Arg1 == 1 {
			foundLD = true
		}
		if insn.Op == pcode.ST && insn.Arg1 == 1 {
			foundST = true
		}
	}
	assert.True(t, foundLD, "expected a general-form LD at level delta 1")
	assert.True(t, foundST, "expected a general-form ST at level delta 1")
	// the outer procedure's own local uses the short form
	assert.Positive(t, countOp(code, pcode.STS))
}

func TestProcedureCallWithVarParam(t *testing.T) {
	sink, _ := compileSource(t, `
PROGRAM p;
VAR g : Integer;
PROCEDURE bump(VAR n : Integer);
BEGIN n := n + 1 END;
BEGIN bump(g) END.
`)
	code := sink.Code()
	// the call site passes g by address
	callIdx := -1
	for i, insn := range code {
		if insn.Op == pcode.CALL {
			callIdx = i
		}
	}
	require.GreaterOrEqual(t, callIdx, 1)
	assert.Equal(t, pcode.LAS, code[callIdx-1].Op)
	assert.Equal(t, uint16(1), code[callIdx].Arg1) // level = declaration level + 1

	// inside the body, the VAR parameter is auto-dereferenced: the hidden
	// pointer is loaded from the slot, then LDI fetches the value
	assert.Positive(t, countOp(code, pcode.LDI))
	assert.Positive(t, countOp(code, pcode.STI))

	// bump is exported as a proc symbol
	_, ok := sink.Lookup("bump")
	assert.True(t, ok)
}

func TestFunctionCallAndResultSlot(t *testing.T) {
	sink, _ := compileSource(t, `
PROGRAM p;
VAR r : Integer;
FUNCTION add2(a, b : Integer) : Integer;
BEGIN add2 := a + b END;
BEGIN r := add2(3, 4) END.
`)
	code := sink.Code()
	assert.Equal(t, 1, countOp(code, pcode.CALL))
	assert.Equal(t, 1, countOp(code, pcode.ADD))
	// the body stores the result through the hidden result variable, and
	// the main block stores the call's value into r: two stores total
	assert.Equal(t, 2, countOp(code, pcode.STS))
	_, ok := sink.Lookup("add2")
	assert.True(t, ok)
}

func TestWithRecordFieldResolution(t *testing.T) {
	sink, _ := compileSource(t, `
PROGRAM p;
TYPE r = RECORD a, b : Integer END;
VAR v : r;
BEGIN WITH v DO b := 7 END.
`)
	code := sink.Code()
	require.Equal(t, []pcode.Opcode{
		pcode.PUSHS, pcode.PUSHS, pcode.PUSH, pcode.STS, pcode.POPS, pcode.POPS, pcode.END,
	}, opsOf(code))
	// the field offset folds into the store at compile time
	assert.Equal(t, uint32(4), code[3].Arg2)
}

func TestRecordFieldDirectAccess(t *testing.T) {
	sink, _ := compileSource(t, `
PROGRAM p;
TYPE r = RECORD a, b : Integer END;
VAR v : r;
    x : Integer;
BEGIN x := v.b END.
`)
	code := sink.Code()
	// v.b loads from offset 4, x stores at offset 8
	var lds, sts []object.Insn
	for _, insn := range code {
		switch insn.Op {
		case pcode.LDS:
			lds = append(lds, insn)
		case pcode.STS:
			sts = append(sts, insn)
		}
	}
	require.Len(t, lds, 1)
	require.Len(t, sts, 1)
	assert.Equal(t, uint32(4), lds[0].Arg2)
	assert.Equal(t, uint32(8), sts[0].Arg2)
}

func TestFileVariableInitAndFinalize(t *testing.T) {
	sink, _ := compileSource(t, `
PROGRAM p;
VAR f : Text;
BEGIN END.
`)
	code := sink.Code()
	require.Equal(t, []pcode.Opcode{
		pcode.IOALLOCFILE, pcode.STS,
		pcode.LDS, pcode.IOFREEFILE,
		pcode.END,
	}, opsOf(code))
}

func TestDeclaredInitialValue(t *testing.T) {
	sink, _ := compileSource(t, `
PROGRAM p;
VAR x : Integer = 5;
BEGIN END.
`)
	code := sink.Code()
	require.Equal(t, []pcode.Opcode{pcode.PUSH, pcode.STS, pcode.END}, opsOf(code))
	assert.Equal(t, uint32(5), code[0].Arg2)
}

func TestConstantFolding(t *testing.T) {
	sink, _ := compileSource(t, `
PROGRAM p;
CONST n = 5;
VAR x : Integer;
BEGIN x := n END.
`)
	code := sink.Code()
	require.Equal(t, []pcode.Opcode{
		pcode.PUSHS, pcode.PUSH, pcode.STS, pcode.POPS, pcode.END,
	}, opsOf(code))
	assert.Equal(t, uint32(5), code[1].Arg2)
}

func TestSetMembershipTest(t *testing.T) {
	sink, _ := compileSource(t, `
PROGRAM p;
VAR x : Integer;
BEGIN IF 3 IN [1, 2] THEN x := 1 END.
`)
	code := sink.Code()
	assert.Equal(t, 1, countOp(code, pcode.SETIN))
	// the set constructor assembles one lo..hi pair per element
	for i, insn := range code {
		if insn.Op == pcode.LIBCALL {
			assert.Equal(t, uint16(pcode.MKSTK), insn.Arg1)
			assert.Equal(t, pcode.PUSH, code[i-1].Op)
			assert.Equal(t, uint32(2), code[i-1].Arg2) // two elements
		}
	}
}

func TestWritelnEmitsIO(t *testing.T) {
	sink, _ := compileSource(t, `
PROGRAM p;
VAR x : Integer;
BEGIN writeln(x) END.
`)
	code := sink.Code()
	require.Equal(t, []pcode.Opcode{
		pcode.PUSHS,
		pcode.LDS, pcode.PUSH, pcode.IOWRITE,
		pcode.PUSH, pcode.IOWRITELN,
		pcode.POPS, pcode.END,
	}, opsOf(code))
	assert.Equal(t, uint32(1), code[2].Arg2) // OUTPUT's file slot
}

func TestGotoAndLabel(t *testing.T) {
	sink, c := compileSource(t, `
PROGRAM p;
LABEL 1;
VAR x : Integer;
BEGIN 1 : x := 0; GOTO 1 END.
`)
	code := sink.Code()
	assert.Equal(t, 1, countOp(code, pcode.LABEL))
	assert.Equal(t, 1, countOp(code, pcode.JMP))
	var labelArg, jmpArg uint32
	for _, insn := range code {
		switch insn.Op {
		case pcode.LABEL:
			labelArg = insn.Arg2
		case pcode.JMP:
			jmpArg = insn.Arg2
		}
	}
	assert.Equal(t, labelArg, jmpArg)
	assert.Zero(t, c.ErrorCount())
}

// A declared but never defined label is reported at program end.
func TestUndefinedLabelReported(t *testing.T) {
	_, _, err := tryCompile(t, `
PROGRAM p;
LABEL 2;
VAR x : Integer;
BEGIN x := 0 END.
`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "label")
}

func TestUndefinedIdentifierRecovers(t *testing.T) {
	_, c, err := tryCompile(t, `
PROGRAM p;
VAR x : Integer;
BEGIN y := 1; x := 2 END.
`)
	require.Error(t, err)
	// one recoverable diagnostic; the rest of the program still compiled
	assert.Equal(t, 1, c.ErrorCount())
}

func TestTypeMismatchDiagnostic(t *testing.T) {
	_, c, err := tryCompile(t, `
PROGRAM p;
VAR x : Integer;
BEGIN x := 'hello world' END.
`)
	require.Error(t, err)
	require.NotEmpty(t, c.Diagnostics())
	found := false
	for _, d := range c.Diagnostics() {
		if d.Code == CodeExpressionTypeMismatch {
			found = true
		}
	}
	assert.True(t, found)
}

// Re-reducing an already primitive factor is a no-op: compiling the same
// simple expression twice yields the identical instruction sequence.
func TestSimpleFactorIdempotence(t *testing.T) {
	src := `
PROGRAM p;
VAR x, y : Integer;
BEGIN y := x; y := x END.
`
	sink, _ := compileSource(t, src)
	code := sink.Code()
	var stmts [][]object.Insn
	var cur []object.Insn
	for _, insn := range code {
		switch insn.Op {
		case pcode.PUSHS:
			cur = nil
		case pcode.POPS:
			stmts = append(stmts, cur)
		default:
			cur = append(cur, insn)
		}
	}
	require.Len(t, stmts, 2)
	assert.Equal(t, stmts[0], stmts[1])
}

func TestScalarEnumConstants(t *testing.T) {
	sink, _ := compileSource(t, `
PROGRAM p;
TYPE color = (red, green, blue);
VAR c : color;
BEGIN c := green END.
`)
	code := sink.Code()
	require.Equal(t, []pcode.Opcode{
		pcode.PUSHS, pcode.PUSH, pcode.STS, pcode.POPS, pcode.END,
	}, opsOf(code))
	assert.Equal(t, uint32(1), code[1].Arg2) // green's ordinal
}

func TestNestedProcedureSkippedByJump(t *testing.T) {
	sink, _ := compileSource(t, `
PROGRAM p;
VAR x : Integer;
PROCEDURE noop;
BEGIN END;
BEGIN x := 1 END.
`)
	code := sink.Code()
	// the main block jumps over the procedure body, which ends with END
	require.Equal(t, pcode.JMP, code[0].Op)
	assert.Equal(t, 2, countOp(code, pcode.END)) // procedure body + program
	// the jump target label is emitted after the procedure's END
	var endIdx, labelIdx int
	for i, insn := range code {
		if insn.Op == pcode.END && endIdx == 0 {
			endIdx = i
		}
		if insn.Op == pcode.LABEL && insn.Arg2 == code[0].Arg2 {
			labelIdx = i
		}
	}
	assert.Greater(t, labelIdx, endIdx)
}

// Constant-folding builtin variants evaluate inside CONST declarations
// without emitting anything.
func TestConstFoldedBuiltin(t *testing.T) {
	sink, _ := compileSource(t, `
PROGRAM p;
CONST big = succ(sqr(3));
VAR x : Integer;
BEGIN x := big END.
`)
	code := sink.Code()
	require.Equal(t, []pcode.Opcode{
		pcode.PUSHS, pcode.PUSH, pcode.STS, pcode.POPS, pcode.END,
	}, opsOf(code))
	assert.Equal(t, uint32(10), code[1].Arg2)
}
