// Package join implements the server-side half of a hash join: probing
// precomputed join tables with keys derived from scanned rows, expanding or
// discarding rows by join type, and draining composed rows to the caller in
// arrival order.
package join

import (
	"encoding/binary"
	"fmt"

	"github.com/tessera-db/tessera/internal/expr"
	"github.com/tessera-db/tessera/internal/tessera"
)

// Type is the join algebra applied against one table.
type Type uint8

const (
	Inner Type = iota
	Left
	Semi
	Anti
)

func (t Type) String() string {
	switch t {
	case Inner:
		return "inner"
	case Left:
		return "left"
	case Semi:
		return "semi"
	case Anti:
		return "anti"
	default:
		return fmt.Sprintf("join(%d)", t)
	}
}

// Valid reports whether the type is one the compositor supports.
func (t Type) Valid() bool {
	return t <= Anti
}

// Spec describes one join stage: which table to probe, with which key, and
// under which algebra.
type Spec struct {
	// Type is the join type; only Inner, Left, Semi and Anti exist.
	Type Type
	// TableID addresses the precomputed table in the cache.
	TableID string
	// KeyExprs evaluate against a row to build the probe key, in order.
	// An empty list is the degenerate zero-width join: every row passes
	// through unchanged.
	KeyExprs []expr.Expr
	// EarlyEvaluation marks a key derivable from the base row alone, so
	// the table can be probed before any composition work.
	EarlyEvaluation bool
}

// BuildKey concatenates the evaluated key expressions into a join key.
// Components are length-prefixed so adjacent values cannot alias. A NULL
// component yields no key: NULL never equals anything, so the row cannot
// match.
func BuildKey(exprs []expr.Expr, row expr.RowView) (key []byte, null bool, err error) {
	var buf []byte
	for _, e := range exprs {
		v, ok, err := e.Eval(row)
		if err != nil {
			return nil, false, fmt.Errorf("evaluate join key: %w", err)
		}
		if !ok || v.Null {
			return nil, true, nil
		}
		var lenPrefix [4]byte
		binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(v.Bytes)))
		buf = append(buf, lenPrefix[:]...)
		buf = append(buf, v.Bytes...)
	}
	return buf, false, nil
}

// Merge shares the constituent cells of a scanned row and one matched table
// row into a composed row. Cells stay read-only and owned by their source
// rows; the composed row only references them.
func Merge(base *tessera.Row, matched *tessera.Row) *tessera.Row {
	out := &tessera.Row{
		Key:   base.Key,
		Cells: make([]tessera.Cell, 0, len(base.Cells)+len(matched.Cells)),
	}
	out.Cells = append(out.Cells, base.Cells...)
	out.Cells = append(out.Cells, matched.Cells...)
	return out
}
