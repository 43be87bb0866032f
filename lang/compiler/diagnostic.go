// Package compiler implements the single-pass Pascal compiler: the
// expression evaluator, statement compiler, block initializer and standard
// procedures/functions that drive lang/symtab and lang/emitter directly
// while the token stream is consumed, with no intermediate AST.
package compiler

import (
	"fmt"

	"github.com/patacongo/pascal-pcode/lang/token"
)

// Severity classifies a Diagnostic.
type Severity uint8

const (
	SevWarning Severity = iota
	SevError
	SevFatal
)

func (s Severity) String() string {
	switch s {
	case SevFatal:
		return "fatal"
	case SevWarning:
		return "warning"
	}
	return "error"
}

// Code is the taxonomy of diagnostic kinds. Kinds, not unique identifiers:
// several distinct situations may share a Code ("missing punctuator",
// "missing keyword", ...).
type Code uint8

//nolint:revive
const (
	// Lexical
	CodeMalformedNumber Code = iota
	CodeUnterminatedString
	CodeIllegalCharacter

	// Syntactic
	CodeMissingPunctuator
	CodeMissingKeyword
	CodeMisplacedDeclaration

	// Semantic
	CodeUndefinedIdentifier
	CodeRedefinition
	CodeWrongKindOfIdentifier
	CodeUndefinedLabel
	CodeLabelRedefinition

	// Type
	CodeExpressionTypeMismatch
	CodeTermFactorTypeMismatch
	CodeInvalidTypeInContext
	CodeSubrangeTypeMismatch
	CodePointerTypeRequired
	CodeScalarTypeMismatch
	CodeSetTypeMismatch
	CodeVarParamTypeMismatch

	// Range
	CodeSetElementOutOfSubrange

	// Overflow
	CodeSymbolTableFull
	CodeTooManyInitializers
	CodeIncludeFileOverflow

	// Internal
	CodeSymbolTableInternal
	CodeImpossible // HUH
	CodeNotYetImplemented
)

var codeNames = map[Code]string{
	CodeMalformedNumber:         "malformed-number",
	CodeUnterminatedString:      "unterminated-string",
	CodeIllegalCharacter:        "illegal-character",
	CodeMissingPunctuator:       "missing-punctuator",
	CodeMissingKeyword:          "missing-keyword",
	CodeMisplacedDeclaration:    "misplaced-declaration",
	CodeUndefinedIdentifier:     "undefined-identifier",
	CodeRedefinition:            "redefinition",
	CodeWrongKindOfIdentifier:   "wrong-kind-of-identifier",
	CodeUndefinedLabel:          "undefined-label",
	CodeLabelRedefinition:       "label-redefinition",
	CodeExpressionTypeMismatch:  "expression-type-mismatch",
	CodeTermFactorTypeMismatch:  "term-factor-type-mismatch",
	CodeInvalidTypeInContext:    "invalid-type-in-context",
	CodeSubrangeTypeMismatch:    "subrange-type-mismatch",
	CodePointerTypeRequired:     "pointer-type-required",
	CodeScalarTypeMismatch:      "scalar-type-mismatch",
	CodeSetTypeMismatch:         "set-type-mismatch",
	CodeVarParamTypeMismatch:    "var-param-type-mismatch",
	CodeSetElementOutOfSubrange: "set-element-out-of-subrange",
	CodeSymbolTableFull:         "symbol-table-full",
	CodeTooManyInitializers:     "too-many-initializers",
	CodeIncludeFileOverflow:     "include-file-overflow",
	CodeSymbolTableInternal:     "symbol-table-internal",
	CodeImpossible:              "huh",
	CodeNotYetImplemented:       "not-yet-implemented",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("code(%d)", int(c))
}

// Diagnostic records one compiler message: position, severity, code, the
// current token, and optionally the current token's source text.
type Diagnostic struct {
	Pos      token.Position
	Severity Severity
	Code     Code
	Tok      token.Token
	TokStr   string
	Message  string
}

func (d Diagnostic) String() string {
	if d.TokStr != "" {
		return fmt.Sprintf("%s: %s %v (%v %q): %s", d.Pos, d.Severity, d.Code, d.Tok, d.TokStr, d.Message)
	}
	return fmt.Sprintf("%s: %s %v (%v): %s", d.Pos, d.Severity, d.Code, d.Tok, d.Message)
}

// FatalError is the panic payload used to unwind out of deeply nested
// recursive-descent calls once a fatal diagnostic has been raised (table
// full, include depth exceeded, error-count threshold crossed). The top of
// Compile recovers it and turns it back into a normal error return.
type FatalError struct{ Diag Diagnostic }

func (f FatalError) Error() string { return f.Diag.String() }

// maxRecoverableErrors is the error-count threshold past which a
// recoverable error escalates to fatal.
const maxRecoverableErrors = 200
