package covered

import (
	"github.com/tessera-db/tessera/internal/tessera"
)

// DeleteTracker records the tombstones a covered scan consumed while hiding
// cells. Callers use it to decide whether older history must be read to
// reconstruct the pre-mutation state of a column.
type DeleteTracker struct {
	familyDeleteTS map[string]int64
	columnDeleteTS map[string]int64
	versionDeletes map[string]map[int64]struct{}
	seen           int
}

// NewDeleteTracker returns an empty tracker. The covered scanner builds its
// own; storage layers resolving visibility do too.
func NewDeleteTracker() *DeleteTracker {
	return &DeleteTracker{
		familyDeleteTS: make(map[string]int64),
		columnDeleteTS: make(map[string]int64),
		versionDeletes: make(map[string]map[int64]struct{}),
	}
}

// Reset clears per-row state; callers feeding a multi-row stream call it at
// every row boundary. The cumulative seen count survives: it answers "did
// this scan cross any delete at all".
func (t *DeleteTracker) Reset() {
	clear(t.familyDeleteTS)
	clear(t.columnDeleteTS)
	clear(t.versionDeletes)
}

// Observe registers a tombstone cell. Tombstones arrive before the puts
// they hide, so observing them first is enough to suppress correctly.
func (t *DeleteTracker) Observe(c *tessera.Cell) {
	t.seen++
	switch c.Type {
	case tessera.CellDeleteFamily:
		fam := string(c.Family)
		if c.Timestamp > t.familyDeleteTS[fam] {
			t.familyDeleteTS[fam] = c.Timestamp
		}
	case tessera.CellDeleteColumn:
		col := columnKey(c.Family, c.Qualifier)
		if c.Timestamp > t.columnDeleteTS[col] {
			t.columnDeleteTS[col] = c.Timestamp
		}
	case tessera.CellDelete:
		col := columnKey(c.Family, c.Qualifier)
		if t.versionDeletes[col] == nil {
			t.versionDeletes[col] = make(map[int64]struct{})
		}
		t.versionDeletes[col][c.Timestamp] = struct{}{}
	}
}

// Suppressed reports whether a put is hidden by a previously observed
// tombstone.
func (t *DeleteTracker) Suppressed(c *tessera.Cell) bool {
	if ts, ok := t.familyDeleteTS[string(c.Family)]; ok && c.Timestamp <= ts {
		return true
	}
	col := columnKey(c.Family, c.Qualifier)
	if ts, ok := t.columnDeleteTS[col]; ok && c.Timestamp <= ts {
		return true
	}
	if versions, ok := t.versionDeletes[col]; ok {
		if _, hit := versions[c.Timestamp]; hit {
			return true
		}
	}
	return false
}

// Seen returns the total number of delete markers the scan crossed.
func (t *DeleteTracker) Seen() int {
	return t.seen
}

func columnKey(family, qualifier []byte) string {
	return string(family) + "\x00" + string(qualifier)
}
