package tessera

// A continuation marker is a sentinel row the scan layer hands back when a
// time budget expires before a real row completes. It is distinguishable
// from real data by its reserved empty family and qualifier payload, which
// no stored cell can carry. Callers must discard the marker, note its key,
// and call next again; markers never reach end users.

// NewMarker builds a continuation marker carrying the row key scanning
// should resume from.
func NewMarker(resumeKey []byte) *Row {
	key := append([]byte(nil), resumeKey...)
	return &Row{
		Key: key,
		Cells: []Cell{{
			Key: key,
		}},
	}
}

// IsMarker reports whether a row is a continuation marker rather than data.
func IsMarker(r *Row) bool {
	if r == nil || len(r.Cells) != 1 {
		return false
	}
	c := &r.Cells[0]
	return len(c.Family) == 0 && len(c.Qualifier) == 0 && len(c.Value) == 0
}
