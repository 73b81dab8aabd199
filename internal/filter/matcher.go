// Package filter decides row-level predicate satisfaction incrementally,
// cell by cell, while a row streams out of storage in ascending qualifier
// order. The goal is to settle each row with the fewest cells possible and
// to tell the storage iterator when it can jump over columns or whole rows.
package filter

import (
	"errors"
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/tessera-db/tessera/internal/expr"
	"github.com/tessera-db/tessera/internal/tessera"
)

// Verdict tells the caller what to do with the iterator after a cell.
type Verdict uint8

const (
	// Continue means keep delivering cells for this row.
	Continue Verdict = iota
	// SkipColumn means the iterator may jump past the remaining versions
	// of the current column; the cell is irrelevant to the predicate.
	SkipColumn
	// SkipRow means the row's fate is sealed; jump to the next row.
	SkipRow
)

// MatchState is the row-level outcome. Once Matched or Rejected it never
// changes for the current row.
type MatchState uint8

const (
	Undetermined MatchState = iota
	Matched
	Rejected
)

func (s MatchState) String() string {
	switch s {
	case Matched:
		return "matched"
	case Rejected:
		return "rejected"
	default:
		return "undetermined"
	}
}

var (
	ErrNoColumns = errors.New("predicate references no columns")
)

// RowMatcher evaluates one predicate against one row at a time. All per-row
// state lives in a fixed slot array sized from the predicate's qualifier
// range at construction; Reset only clears bits and counters so scanning a
// billion rows allocates nothing per row.
type RowMatcher struct {
	pred expr.Predicate

	// Qualifier range spanned by the predicate's column references.
	minQualifier int
	maxQualifier int

	// referenced marks which slots in [minQualifier, maxQualifier] the
	// predicate actually reads; expected caches its cardinality.
	referenced []bool
	expected   int

	// families referenced anywhere in the predicate.
	families mapset.Set[string]

	view slotView
}

// slotView is the incremental RowView backed by the matcher's slot array.
type slotView struct {
	minQualifier int
	slots        []*tessera.Cell
	present      []bool
	found        int
	expected     int
	forced       bool
	state        MatchState
}

// NewRowMatcher builds a matcher for a predicate. The predicate must
// reference at least one column; constant predicates belong to the planner,
// not the scan path.
func NewRowMatcher(pred expr.Predicate) (*RowMatcher, error) {
	min, max := -1, -1
	refs := make(map[int]bool)
	families := mapset.NewThreadUnsafeSet[string]()
	var decodeErr error
	pred.EachColumn(func(c expr.Column) {
		q, err := tessera.DecodeQualifier(c.Qualifier)
		if err != nil {
			decodeErr = err
			return
		}
		if min == -1 || q < min {
			min = q
		}
		if max == -1 || q > max {
			max = q
		}
		refs[q] = true
		families.Add(string(c.Family))
	})
	if decodeErr != nil {
		return nil, fmt.Errorf("predicate column qualifier: %w", decodeErr)
	}
	if min == -1 {
		return nil, ErrNoColumns
	}

	size := max - min + 1
	referenced := make([]bool, size)
	for q := range refs {
		referenced[q-min] = true
	}

	return &RowMatcher{
		pred:         pred,
		minQualifier: min,
		maxQualifier: max,
		referenced:   referenced,
		expected:     len(refs),
		families:     families,
		view: slotView{
			minQualifier: min,
			slots:        make([]*tessera.Cell, size),
			present:      make([]bool, size),
			expected:     len(refs),
		},
	}, nil
}

func (v *slotView) Get(family, qualifier []byte) (*tessera.Cell, bool) {
	q, err := tessera.DecodeQualifier(qualifier)
	if err != nil {
		return nil, false
	}
	i := q - v.minQualifier
	if i < 0 || i >= len(v.slots) || !v.present[i] {
		return nil, false
	}
	return v.slots[i], true
}

func (v *slotView) Complete() bool {
	return v.forced || v.found == v.expected
}

func (v *slotView) set(q int, c *tessera.Cell) {
	i := q - v.minQualifier
	if !v.present[i] {
		v.found++
	}
	v.present[i] = true
	v.slots[i] = c
}

// Consume feeds the next cell of the current row to the matcher and returns
// what the iterator should do. A qualifier decode failure or an expression
// evaluation error is fatal for the row and surfaced to the caller.
func (m *RowMatcher) Consume(c *tessera.Cell) (Verdict, error) {
	switch m.view.state {
	case Matched:
		// Already matched; remaining cells just flow into the row.
		return Continue, nil
	case Rejected:
		return SkipRow, nil
	}

	q, err := tessera.DecodeQualifier(c.Qualifier)
	if err != nil {
		return SkipRow, fmt.Errorf("row %x: %w", c.Key, err)
	}

	if !m.isReferenced(q) {
		if q < m.minQualifier {
			// Nothing below the referenced range matters to the
			// predicate; the iterator can jump the column.
			return SkipColumn, nil
		}
		return Continue, nil
	}

	m.view.set(q, c)
	return m.evaluate(c.Key)
}

// FinishRow is called when the storage layer signals no more cells will
// arrive for the row. An Undetermined row is force-finalized: missing
// columns become SQL NULL and an Unknown result rejects the row.
func (m *RowMatcher) FinishRow() (MatchState, error) {
	if m.view.state != Undetermined {
		return m.view.state, nil
	}
	m.view.forced = true
	if _, err := m.evaluate(nil); err != nil {
		return m.view.state, err
	}
	if m.view.state == Undetermined {
		m.view.state = Rejected
	}
	return m.view.state, nil
}

func (m *RowMatcher) evaluate(key []byte) (Verdict, error) {
	t, err := m.pred.Eval(&m.view)
	if err != nil {
		m.view.state = Rejected
		return SkipRow, fmt.Errorf("row %x: evaluate predicate: %w", key, err)
	}
	switch t {
	case expr.True:
		m.view.state = Matched
		return Continue, nil
	case expr.False:
		// Kleene semantics make an early False final: it can only
		// arise once the expression is determined regardless of
		// columns still to come.
		m.view.state = Rejected
		return SkipRow, nil
	}
	if m.view.Complete() {
		// Every referenced column is present yet the result is still
		// Unknown, so a NULL leaked through; SQL rejects the row.
		m.view.state = Rejected
		return SkipRow, nil
	}
	return Continue, nil
}

// State returns the current row's match state.
func (m *RowMatcher) State() MatchState {
	return m.view.state
}

// Reset clears per-row state. Slot contents are reused across rows, never
// reallocated.
func (m *RowMatcher) Reset() {
	for i := range m.view.present {
		m.view.present[i] = false
	}
	m.view.found = 0
	m.view.forced = false
	m.view.state = Undetermined
}

// EssentialFamily reports whether a family holds any column the predicate
// reads; the storage layer may skip loading other families entirely.
func (m *RowMatcher) EssentialFamily(family []byte) bool {
	return m.families.Contains(string(family))
}

// QualifierRange returns the [min, max] encoded qualifier span the
// predicate references.
func (m *RowMatcher) QualifierRange() (int, int) {
	return m.minQualifier, m.maxQualifier
}

func (m *RowMatcher) isReferenced(q int) bool {
	if q < m.minQualifier || q > m.maxQualifier {
		return false
	}
	return m.referenced[q-m.minQualifier]
}
