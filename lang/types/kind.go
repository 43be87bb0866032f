// Package types implements the type model: the variant lattice for Pascal
// declared types and compiled expression types, and the classification
// predicates the expression evaluator and statement compiler consult to
// decide coercions, operator selection and library-call dispatch.
package types

import "fmt"

// Kind is the flat enumeration of expression/type categories.
// The same enumeration classifies both a declared Pascal type (as stored on
// a lang/symtab Symbol) and the result type of a compiled expression.
type Kind uint8

//nolint:revive
const (
	Unknown Kind = iota
	Integer
	Word
	Char
	Boolean
	Real
	Scalar
	Set
	Record
	Array
	Subrange
	File
	Pointer

	// string-kind tri-state: origin of
	// a string value, load-bearing for deciding whether '+' must clone first.
	String    // resides in a named variable's storage
	StkString // a transient copy on the string stack
	CString   // a NUL-terminated foreign string (e.g. from getenv)

	// wildcards, used only to constrain an expected type at a parse site,
	// never as the actual Kind of a resolved expression.
	AnyOrdinal
	AnyString

	maxKind
)

var kindNames = [maxKind]string{
	Unknown:    "unknown",
	Integer:    "integer",
	Word:       "word",
	Char:       "char",
	Boolean:    "boolean",
	Real:       "real",
	Scalar:     "scalar",
	Set:        "set",
	Record:     "record",
	Array:      "array",
	Subrange:   "subrange",
	File:       "file",
	Pointer:    "pointer",
	String:     "string",
	StkString:  "stkstring",
	CString:    "cstring",
	AnyOrdinal: "any-ordinal",
	AnyString:  "any-string",
}

func (k Kind) String() string {
	if k < maxKind {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// IsOrdinal reports whether k is one of Integer, Char, Boolean or Scalar —
// the concrete kinds the AnyOrdinal wildcard matches.
func (k Kind) IsOrdinal() bool {
	switch k {
	case Integer, Char, Boolean, Scalar:
		return true
	}
	return false
}

// IsAnyString reports whether k is one of String, StkString or CString — the
// concrete kinds the AnyString wildcard matches.
func (k Kind) IsAnyString() bool {
	switch k {
	case String, StkString, CString:
		return true
	}
	return false
}

// IsAbstract reports whether k carries an abstract-type identity: SET,
// SCALAR, SUBRANGE and RECORD are distinguished not merely by shape but by
// which declared type produced them.
func (k Kind) IsAbstract() bool {
	switch k {
	case Set, Scalar, Subrange, Record:
		return true
	}
	return false
}

// IsMultiWord reports whether a value of this kind occupies more than one
// machine word on the data stack, requiring the multi-word load/store
// opcode variants and an emitDataSize prefix.
func (k Kind) IsMultiWord() bool {
	switch k {
	case Real, String, StkString, Set, Record:
		return true
	}
	return false
}

// SymRef is an opaque reference to a symbol-table entry. It is declared here
// rather than in lang/symtab so that lang/types has no dependency on
// lang/symtab; lang/symtab aliases its own Ref to this type, closing the
// loop without an import cycle.
type SymRef int32

// NoSymRef is the zero-ish sentinel meaning "no symbol referenced".
const NoSymRef SymRef = -1
