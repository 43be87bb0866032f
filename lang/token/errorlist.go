package token

import (
	"fmt"
	"sort"
)

// Error is a single position-tagged diagnostic, the same shape as
// go/scanner.Error but built on this package's own Position so it stays a
// single type across scanner, symtab, types, emitter and compiler.
type Error struct {
	Pos Position
	Msg string
}

func (e Error) Error() string {
	if !e.Pos.IsValid() {
		return e.Msg
	}
	return e.Pos.String() + ": " + e.Msg
}

// ErrorList accumulates Errors in source order (after Sort). It is modeled
// directly on go/scanner.ErrorList's shape, reimplemented against our own
// Position type rather than aliased, since go/scanner.ErrorList is hardcoded
// to go/token.Position.
type ErrorList []*Error

// Add appends a new Error to the list.
func (l *ErrorList) Add(pos Position, msg string) {
	*l = append(*l, &Error{Pos: pos, Msg: msg})
}

// Sort orders the list by filename then line then column.
func (l ErrorList) Sort() {
	sort.Slice(l, func(i, j int) bool {
		a, b := l[i].Pos, l[j].Pos
		if a.Filename != b.Filename {
			return a.Filename < b.Filename
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Column < b.Column
	})
}

func (l ErrorList) Len() int { return len(l) }

func (l ErrorList) Error() string {
	switch len(l) {
	case 0:
		return "no errors"
	case 1:
		return l[0].Error()
	}
	msgs := make([]string, len(l))
	for i, e := range l {
		msgs[i] = e.Error()
	}
	return fmt.Sprintf("%s (and %d more errors)", msgs[0], len(l)-1)
}

// Err returns l as an error if it is non-empty, nil otherwise.
func (l ErrorList) Err() error {
	if len(l) == 0 {
		return nil
	}
	return l
}

// Unwrap lets errors.Is/errors.As traverse the individual diagnostics.
func (l ErrorList) Unwrap() []error {
	errs := make([]error, len(l))
	for i, e := range l {
		errs[i] = e
	}
	return errs
}
