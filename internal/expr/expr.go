// Package expr holds the boolean expression trees the execution core
// evaluates against rows as they stream out of storage. Evaluation is
// three-valued: an expression over a partially assembled row may be
// unresolvable, and SQL NULL propagates as Unknown rather than false.
package expr

import (
	"github.com/tessera-db/tessera/internal/tessera"
)

// Tri is an explicit three-valued boolean. Unknown covers both SQL NULL and
// "not resolvable yet" while a row is still partially assembled; the filter
// layer tells the two apart by whether the row is complete.
type Tri uint8

const (
	Unknown Tri = iota
	True
	False
)

func (t Tri) String() string {
	switch t {
	case True:
		return "true"
	case False:
		return "false"
	default:
		return "unknown"
	}
}

// And is Kleene conjunction: False wins, Unknown beats True.
func (t Tri) And(o Tri) Tri {
	if t == False || o == False {
		return False
	}
	if t == Unknown || o == Unknown {
		return Unknown
	}
	return True
}

// Or is Kleene disjunction: True wins, Unknown beats False.
func (t Tri) Or(o Tri) Tri {
	if t == True || o == True {
		return True
	}
	if t == Unknown || o == Unknown {
		return Unknown
	}
	return False
}

// Not flips True and False and leaves Unknown untouched.
func (t Tri) Not() Tri {
	switch t {
	case True:
		return False
	case False:
		return True
	default:
		return Unknown
	}
}

// RowView is the read surface expressions evaluate against. During a scan it
// is backed by the filter layer's partial slot array; after row assembly it
// is backed by a materialized row.
type RowView interface {
	// Get returns the cell stored under a family/qualifier pair.
	Get(family, qualifier []byte) (*tessera.Cell, bool)
	// Complete reports whether every cell of the row has been delivered.
	// A column absent from a complete row is SQL NULL; absent from a
	// partial row it is simply not here yet.
	Complete() bool
}

// Value is the result of evaluating a value expression: raw storage bytes
// or SQL NULL. Values compare in the store's order-preserving encoding, so
// bytes.Compare is the comparison semantics throughout.
type Value struct {
	Bytes []byte
	Null  bool
}

// Column names one referenced column by family and encoded qualifier bytes.
type Column struct {
	Family    []byte
	Qualifier []byte
}

// Expr is a value expression. Eval returns resolved=false when a referenced
// column has not arrived yet and the row is still partial; the result must
// then be treated as unresolvable, not as NULL.
type Expr interface {
	Eval(row RowView) (v Value, resolved bool, err error)
	// EachColumn visits every column reference in the expression.
	EachColumn(fn func(Column))
}

// ColumnExpr reads one column's latest cell value.
type ColumnExpr struct {
	Col Column
}

func (e *ColumnExpr) Eval(row RowView) (Value, bool, error) {
	c, ok := row.Get(e.Col.Family, e.Col.Qualifier)
	if !ok {
		if row.Complete() {
			return Value{Null: true}, true, nil
		}
		return Value{}, false, nil
	}
	if c.Type != tessera.CellPut {
		// A tombstone in the view means the latest version is deleted.
		return Value{Null: true}, true, nil
	}
	return Value{Bytes: c.Value}, true, nil
}

func (e *ColumnExpr) EachColumn(fn func(Column)) {
	fn(e.Col)
}

// LiteralExpr is a constant byte value, or NULL when Bytes is nil and Null
// is set.
type LiteralExpr struct {
	Val Value
}

func (e *LiteralExpr) Eval(RowView) (Value, bool, error) {
	return e.Val, true, nil
}

func (e *LiteralExpr) EachColumn(func(Column)) {}

// Literal is shorthand for a non-null byte literal.
func Literal(b []byte) *LiteralExpr {
	return &LiteralExpr{Val: Value{Bytes: b}}
}

// Null is the SQL NULL literal.
func Null() *LiteralExpr {
	return &LiteralExpr{Val: Value{Null: true}}
}
