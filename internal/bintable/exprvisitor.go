package bintable

import "github.com/cds-astro/fitscat/internal/expreval"

// ExprVisitor decodes a full row via an embedded FieldVisitor, then
// exposes it to a compiled expression as a column-name-keyed environment.
// Region filtering (qidx) and HiPS tile scoring (mkhips --score) do not use
// it: they read their columns through a FieldVisitor directly.
type ExprVisitor struct {
	*FieldVisitor
	names []string
}

// NewExprVisitor builds a visitor over len(names) columns named, in order,
// by names (TTYPEn, or "col_N" when unnamed).
func NewExprVisitor(names []string) *ExprVisitor {
	return &ExprVisitor{
		FieldVisitor: NewFieldVisitor(len(names)),
		names:        names,
	}
}

// Env projects the last decoded row into an expreval.Env keyed by column
// name. Array, complex and null fields are present with a nil value:
// expressions operate on scalar columns only.
func (e *ExprVisitor) Env() expreval.Env {
	env := make(expreval.Env, len(e.names))
	for i, name := range e.names {
		if i >= len(e.Row) {
			break
		}
		env[name] = fieldToScalar(e.Row[i])
	}
	return env
}

func fieldToScalar(f Field) interface{} {
	switch f.Kind {
	case FieldBool:
		return f.Bool
	case FieldU8, FieldU16, FieldU32, FieldU64:
		return f.U64
	case FieldI16, FieldI32, FieldI64:
		return f.I64
	case FieldF32:
		return float64(f.F32)
	case FieldF64:
		return f.F64
	case FieldASCII:
		return f.ASCII
	case FieldNull:
		return nil
	default:
		return nil
	}
}
