package types

// ExprType is the result type of a compiled expression: a
// primitive Kind, the pointer-form flag ("lifts any base category to its
// pointer-to variant"), and for abstract kinds (Scalar, Subrange, Set,
// Record) the symbol identifying the concrete declared type that gives it
// its identity.
type ExprType struct {
	Kind     Kind
	Pointer  bool
	Abstract SymRef
}

// T is a convenience constructor for a simple, non-pointer, non-abstract
// ExprType.
func T(k Kind) ExprType { return ExprType{Kind: k} }

// PtrTo returns the pointer-form of t.
func PtrTo(t ExprType) ExprType { t.Pointer = true; return t }

// Abs returns an abstract ExprType (Scalar/Subrange/Set/Record) carrying the
// declared type's symbol reference, so later occurrences of the same
// abstract type in an expression can be checked for identity, not just
// shape.
func Abs(k Kind, sym SymRef) ExprType { return ExprType{Kind: k, Abstract: sym} }

// Matches reports whether a value of type got satisfies a context that
// demands type want, applying the AnyOrdinal/AnyString wildcard rules and,
// for abstract kinds, requiring identical Abstract symbols.
func (want ExprType) Matches(got ExprType) bool {
	if want.Pointer != got.Pointer {
		// NIL and other integer constants are untyped in this dialect: a
		// pointer context accepts a plain Integer value (`p := nil`).
		return want.Pointer && !got.Pointer && got.Kind == Integer
	}
	switch want.Kind {
	case AnyOrdinal:
		return got.Kind.IsOrdinal()
	case AnyString:
		return got.Kind.IsAnyString()
	case Unknown:
		// Unknown is the recovery type: treat it as matching anything so a
		// single type error does not cascade into spurious follow-on errors.
		return true
	}
	if got.Kind == Unknown {
		return true
	}
	if want.Kind != got.Kind {
		return false
	}
	if want.Kind.IsAbstract() && want.Abstract != NoSymRef && got.Abstract != NoSymRef {
		return want.Abstract == got.Abstract
	}
	return true
}

// NeedsIntToRealCoercion reports whether an operator demanding `want` (Real)
// applied to an operand of kind `have` (Integer) requires an automatic
// integer-to-real conversion.
func NeedsIntToRealCoercion(want, have ExprType) bool {
	return want.Kind == Real && have.Kind == Integer
}

func (t ExprType) String() string {
	s := t.Kind.String()
	if t.Pointer {
		s = "^" + s
	}
	return s
}
