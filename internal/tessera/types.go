package tessera

import (
	"bytes"
)

// CellType distinguishes live values from the tombstones that hide them.
type CellType uint8

const (
	// CellPut is a live versioned value.
	CellPut CellType = iota
	// CellDelete hides exactly one version (same qualifier, same timestamp).
	CellDelete
	// CellDeleteColumn hides every version of one qualifier at or below its timestamp.
	CellDeleteColumn
	// CellDeleteFamily hides every cell of the family at or below its timestamp.
	CellDeleteFamily
)

// Cell is one (row, family, qualifier, timestamp) -> value storage unit.
// Cells are immutable once produced by the storage layer; everything in this
// module holds them read-only and shares them freely between rows.
type Cell struct {
	Key       []byte
	Family    []byte
	Qualifier []byte
	Timestamp int64
	Type      CellType
	Value     []byte
}

// Row is the ordered set of cells sharing one row key, in ascending encoded
// qualifier order as delivered by the storage layer.
type Row struct {
	Key   []byte
	Cells []Cell
}

// Get returns the cell for a family/qualifier pair, if present. Rows carry
// few cells, so a linear probe beats building a lookup map per row.
func (r *Row) Get(family, qualifier []byte) (*Cell, bool) {
	for i := range r.Cells {
		c := &r.Cells[i]
		if bytes.Equal(c.Family, family) && bytes.Equal(c.Qualifier, qualifier) {
			return c, true
		}
	}
	return nil, false
}

// Complete reports whether all cells for this row have been delivered.
// A materialized Row is always complete; the incremental view used during
// filtering overrides this.
func (r *Row) Complete() bool {
	return true
}
