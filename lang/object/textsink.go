package object

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/dolthub/swiss"
	"golang.org/x/exp/slices"
)

// TextSink is a human-readable/writable rendition of an object file:
// ordered sections, one record per line, '#' introduces a trailing
// comment. It exists primarily so compiler tests can assert on emitted
// text without a binary encoder, and so object files stay inspectable and
// diffable during development.
//
// The exported-symbol name -> index table backs DefineSymbol's "redefine
// an undefined import" lookup; a flat hash map is the natural fit since
// symbol names are looked up far more often than iterated.
type TextSink struct {
	header  headerInfo
	code    []Insn
	relocs  []Reloc
	symbols []symbolInfo
	debug   []DebugInfo
	rodata  []byte
	lines   []lineInfo

	byName *swiss.Map[string, int]
}

type headerInfo struct {
	kind    FileKind
	arch    string
	program string
	set     bool
}

type symbolInfo struct {
	kind      SymKind
	name      string
	alignment int
	flags     SymFlag
	value     int
	size      int
}

type lineInfo struct {
	file string
	line int
	atPC int
}

// NewTextSink creates an empty TextSink.
func NewTextSink() *TextSink {
	return &TextSink{byName: swiss.NewMap[string, int](64)}
}

func (s *TextSink) SetHeader(kind FileKind, arch, programName string) {
	s.header = headerInfo{kind: kind, arch: arch, program: programName, set: true}
}

func (s *TextSink) Emit(insn Insn) {
	s.code = append(s.code, insn)
	if len(s.lines) > 0 {
		last := &s.lines[len(s.lines)-1]
		if last.atPC == -1 {
			last.atPC = len(s.code) - 1
		}
	}
}

func (s *TextSink) EmitReloc(r Reloc) {
	s.relocs = append(s.relocs, r)
}

func (s *TextSink) DefineSymbol(kind SymKind, name string, alignment int, flags SymFlag, value, size int) int {
	if idx, ok := s.byName.Get(name); ok {
		sym := &s.symbols[idx]
		// Redefining a previously undefined (imported) symbol with its real
		// definition: keep the same index so existing relocations against it
		// stay valid.
		sym.kind, sym.alignment, sym.flags, sym.value, sym.size = kind, alignment, flags, value, size
		return idx
	}
	idx := len(s.symbols)
	s.symbols = append(s.symbols, symbolInfo{kind: kind, name: name, alignment: alignment, flags: flags, value: value, size: size})
	s.byName.Put(name, idx)
	return idx
}

// Lookup returns the object-sink index assigned to name, if any. It is not
// part of the Sink interface; DefineSymbol itself reuses the index of a
// name already defined or imported.
func (s *TextSink) Lookup(name string) (int, bool) {
	return s.byName.Get(name)
}

func (s *TextSink) AddDebugInfo(info DebugInfo) {
	s.debug = append(s.debug, info)
}

func (s *TextSink) AddRoDataString(b []byte) int {
	off := len(s.rodata)
	s.rodata = append(s.rodata, b...)
	return off
}

func (s *TextSink) EmitLineNumber(file string, line int) {
	s.lines = append(s.lines, lineInfo{file: file, line: line, atPC: -1})
}

// Bytes renders the sink's accumulated records to the textual object-file
// format (the "Dasm" direction).
func (s *TextSink) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if !s.header.set {
		return nil, fmt.Errorf("object: SetHeader was never called")
	}
	fmt.Fprintf(&buf, "header:\n\tkind\t%s\n\tarch\t%s\n\tprogram\t%s\n", s.header.kind, s.header.arch, s.header.program)

	if len(s.symbols) > 0 {
		buf.WriteString("symbols:\n")
		for i, sym := range s.symbols {
			fmt.Fprintf(&buf, "\t%s\t%s\talign=%d\tflags=%d\tvalue=%d\tsize=%d\t# %03d\n",
				sym.kind, sym.name, sym.alignment, sym.flags, sym.value, sym.size, i)
		}
	}

	if len(s.relocs) > 0 {
		buf.WriteString("relocations:\n")
		for _, r := range s.relocs {
			fmt.Fprintf(&buf, "\t%s\t%d\t%d\n", r.Kind, r.SymbolIndex, r.Offset)
		}
	}

	if len(s.rodata) > 0 {
		buf.WriteString("rodata:\n")
		fmt.Fprintf(&buf, "\t%s\n", strconv.Quote(string(s.rodata)))
	}

	if len(s.debug) > 0 {
		buf.WriteString("debug:\n")
		for _, d := range s.debug {
			fmt.Fprintf(&buf, "\t%03d\t%d\t%s\n", d.Label, d.ReturnSize, joinInts(d.ParamSizes))
		}
	}

	if len(s.code) > 0 {
		buf.WriteString("code:\n")
		for i, insn := range s.code {
			if insn.HasArg {
				fmt.Fprintf(&buf, "\t%s %d %d\t# %03d\n", insn.Op, insn.Arg1, insn.Arg2, i)
			} else {
				fmt.Fprintf(&buf, "\t%s\t# %03d\n", insn.Op, i)
			}
		}
	}

	return buf.Bytes(), nil
}

// Code exposes the accumulated opcode records for test assertions without
// round-tripping through the textual format. The records are cloned so a
// caller cannot disturb the sink's own buffer.
func (s *TextSink) Code() []Insn { return slices.Clone(s.code) }

// Relocs exposes the accumulated relocation records for test assertions.
func (s *TextSink) Relocs() []Reloc { return slices.Clone(s.relocs) }

// SymbolCount reports how many DefineSymbol calls have produced a distinct
// index so far.
func (s *TextSink) SymbolCount() int { return len(s.symbols) }
