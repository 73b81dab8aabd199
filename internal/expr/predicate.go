package expr

import (
	"bytes"
	"errors"
	"fmt"
)

var errUnknownOperator = errors.New("unknown comparison operator")

// Predicate is a boolean expression. Eval returns Unknown both for SQL NULL
// results and while the expression cannot be resolved against a partial
// row; Kleene logic keeps intermediate True/False results final, so a
// non-Unknown result never changes as more columns arrive.
type Predicate interface {
	Eval(row RowView) (Tri, error)
	EachColumn(fn func(Column))
}

// Op is a comparison operator over the store's order-preserving encoding.
type Op uint8

const (
	OpEq Op = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
)

// Compare evaluates Left <op> Right. Either side being NULL yields Unknown.
type Compare struct {
	Operator Op
	Left     Expr
	Right    Expr
}

func (p *Compare) Eval(row RowView) (Tri, error) {
	l, lok, err := p.Left.Eval(row)
	if err != nil {
		return Unknown, err
	}
	r, rok, err := p.Right.Eval(row)
	if err != nil {
		return Unknown, err
	}
	if !lok || !rok {
		return Unknown, nil
	}
	if l.Null || r.Null {
		return Unknown, nil
	}
	cmp := bytes.Compare(l.Bytes, r.Bytes)
	switch p.Operator {
	case OpEq:
		return fromBool(cmp == 0), nil
	case OpNe:
		return fromBool(cmp != 0), nil
	case OpLt:
		return fromBool(cmp < 0), nil
	case OpLe:
		return fromBool(cmp <= 0), nil
	case OpGt:
		return fromBool(cmp > 0), nil
	case OpGe:
		return fromBool(cmp >= 0), nil
	default:
		return Unknown, fmt.Errorf("%w: %d", errUnknownOperator, p.Operator)
	}
}

func (p *Compare) EachColumn(fn func(Column)) {
	p.Left.EachColumn(fn)
	p.Right.EachColumn(fn)
}

func fromBool(b bool) Tri {
	if b {
		return True
	}
	return False
}

// IsNull is true when its operand is SQL NULL. On a partial row a missing
// column stays Unknown: the column may still arrive, so claiming NULL early
// would let a row match that should not.
type IsNull struct {
	Operand Expr
}

func (p *IsNull) Eval(row RowView) (Tri, error) {
	v, ok, err := p.Operand.Eval(row)
	if err != nil {
		return Unknown, err
	}
	if !ok {
		return Unknown, nil
	}
	return fromBool(v.Null), nil
}

func (p *IsNull) EachColumn(fn func(Column)) {
	p.Operand.EachColumn(fn)
}

// And is the Kleene conjunction of its children.
type And struct {
	Children []Predicate
}

func (p *And) Eval(row RowView) (Tri, error) {
	out := True
	for _, c := range p.Children {
		t, err := c.Eval(row)
		if err != nil {
			return Unknown, err
		}
		out = out.And(t)
		if out == False {
			return False, nil
		}
	}
	return out, nil
}

func (p *And) EachColumn(fn func(Column)) {
	for _, c := range p.Children {
		c.EachColumn(fn)
	}
}

// Or is the Kleene disjunction of its children.
type Or struct {
	Children []Predicate
}

func (p *Or) Eval(row RowView) (Tri, error) {
	out := False
	for _, c := range p.Children {
		t, err := c.Eval(row)
		if err != nil {
			return Unknown, err
		}
		out = out.Or(t)
		if out == True {
			return True, nil
		}
	}
	return out, nil
}

func (p *Or) EachColumn(fn func(Column)) {
	for _, c := range p.Children {
		c.EachColumn(fn)
	}
}

// Not negates its child.
type Not struct {
	Child Predicate
}

func (p *Not) Eval(row RowView) (Tri, error) {
	t, err := p.Child.Eval(row)
	if err != nil {
		return Unknown, err
	}
	return t.Not(), nil
}

func (p *Not) EachColumn(fn func(Column)) {
	p.Child.EachColumn(fn)
}

// ColumnEq is shorthand for the common column-equals-literal predicate.
func ColumnEq(family []byte, qualifier []byte, value []byte) *Compare {
	return &Compare{
		Operator: OpEq,
		Left:     &ColumnExpr{Col: Column{Family: family, Qualifier: qualifier}},
		Right:    Literal(value),
	}
}
