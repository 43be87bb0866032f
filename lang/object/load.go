package object

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/patacongo/pascal-pcode/lang/pcode"
)

// joinInts renders a size list for the debug section; "-" stands for an
// empty list so every line has the same field count.
func joinInts(vs []int) string {
	if len(vs) == 0 {
		return "-"
	}
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

func splitInts(s string) ([]int, error) {
	if s == "-" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	vs := make([]int, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, err
		}
		vs[i] = v
	}
	return vs, nil
}

// Load parses the textual object format produced by TextSink.Bytes back
// into a TextSink, the inverse direction of the Asm/Dasm pair. Sections may
// appear in any order, blank lines are skipped, and a trailing "# comment"
// on any record line is ignored. Line-number records are not serialized and
// therefore not recovered.
func Load(b []byte) (*TextSink, error) {
	s := NewTextSink()
	sc := bufio.NewScanner(bytes.NewReader(b))

	section := ""
	lineno := 0
	for sc.Scan() {
		lineno++
		line := sc.Text()
		// drop a trailing "\t# ..." comment; rodata strings may contain a
		// bare '#', so only this exact marker counts
		if i := strings.LastIndex(line, "\t# "); i >= 0 {
			line = line[:i]
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if !strings.HasPrefix(line, "\t") && strings.HasSuffix(trimmed, ":") {
			section = strings.TrimSuffix(trimmed, ":")
			continue
		}
		fields := strings.Fields(trimmed)

		var err error
		switch section {
		case "header":
			err = s.loadHeader(fields)
		case "symbols":
			err = s.loadSymbol(fields)
		case "relocations":
			err = s.loadReloc(fields)
		case "rodata":
			var data string
			data, err = strconv.Unquote(trimmed)
			if err == nil {
				s.rodata = append(s.rodata, data...)
			}
		case "debug":
			err = s.loadDebug(fields)
		case "code":
			err = s.loadInsn(fields)
		default:
			err = fmt.Errorf("record outside of a section")
		}
		if err != nil {
			return nil, fmt.Errorf("object: line %d: %w", lineno, err)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if !s.header.set {
		return nil, fmt.Errorf("object: missing header section")
	}
	return s, nil
}

func (s *TextSink) loadHeader(fields []string) error {
	if len(fields) != 2 {
		return fmt.Errorf("malformed header field %q", strings.Join(fields, " "))
	}
	switch fields[0] {
	case "kind":
		kind := FileProgram
		if fields[1] == "unit" {
			kind = FileUnit
		}
		s.header.kind = kind
	case "arch":
		s.header.arch = fields[1]
	case "program":
		s.header.program = fields[1]
	default:
		return fmt.Errorf("unknown header field %q", fields[0])
	}
	s.header.set = true
	return nil
}

func (s *TextSink) loadSymbol(fields []string) error {
	if len(fields) != 6 {
		return fmt.Errorf("malformed symbol record")
	}
	var kind SymKind
	switch fields[0] {
	case "data":
		kind = SymData
	case "proc":
		kind = SymProc
	case "func":
		kind = SymFunc
	default:
		return fmt.Errorf("unknown symbol kind %q", fields[0])
	}
	var align, flags, value, size int
	for _, kv := range []struct {
		prefix string
		dst    *int
	}{
		{"align=", &align}, {"flags=", &flags}, {"value=", &value}, {"size=", &size},
	} {
		found := false
		for _, f := range fields[2:] {
			if strings.HasPrefix(f, kv.prefix) {
				v, err := strconv.Atoi(strings.TrimPrefix(f, kv.prefix))
				if err != nil {
					return err
				}
				*kv.dst = v
				found = true
			}
		}
		if !found {
			return fmt.Errorf("symbol record missing %q", kv.prefix)
		}
	}
	s.DefineSymbol(kind, fields[1], align, SymFlag(flags), value, size)
	return nil
}

func (s *TextSink) loadReloc(fields []string) error {
	if len(fields) != 3 {
		return fmt.Errorf("malformed relocation record")
	}
	var kind RelocKind
	switch fields[0] {
	case "load-store":
		kind = RelocLoadStore
	case "proc-call":
		kind = RelocProcCall
	default:
		return fmt.Errorf("unknown relocation kind %q", fields[0])
	}
	sym, err := strconv.Atoi(fields[1])
	if err != nil {
		return err
	}
	off, err := strconv.Atoi(fields[2])
	if err != nil {
		return err
	}
	s.EmitReloc(Reloc{Kind: kind, SymbolIndex: sym, Offset: off})
	return nil
}

func (s *TextSink) loadDebug(fields []string) error {
	if len(fields) != 3 {
		return fmt.Errorf("malformed debug record")
	}
	label, err := strconv.Atoi(fields[0])
	if err != nil {
		return err
	}
	ret, err := strconv.Atoi(fields[1])
	if err != nil {
		return err
	}
	sizes, err := splitInts(fields[2])
	if err != nil {
		return err
	}
	s.AddDebugInfo(DebugInfo{Label: label, ReturnSize: ret, ParamSizes: sizes})
	return nil
}

func (s *TextSink) loadInsn(fields []string) error {
	op, ok := pcode.ByName(fields[0])
	if !ok {
		return fmt.Errorf("unknown opcode %q", fields[0])
	}
	insn := Insn{Op: op}
	if len(fields) == 3 {
		a1, err := strconv.ParseUint(fields[1], 10, 16)
		if err != nil {
			return err
		}
		a2, err := strconv.ParseUint(fields[2], 10, 32)
		if err != nil {
			return err
		}
		insn.HasArg = true
		insn.Arg1 = uint16(a1)
		insn.Arg2 = uint32(a2)
	} else if len(fields) != 1 {
		return fmt.Errorf("malformed opcode record")
	}
	s.Emit(insn)
	return nil
}
