// Package memstore is an ordered in-memory cell store implementing the
// storage boundary the execution core scans against. It exists for tests
// and for hosts that embed the core without a real storage engine.
package memstore

import (
	"bytes"
	"sort"
	"sync"

	"github.com/tessera-db/tessera/internal/covered"
	"github.com/tessera-db/tessera/internal/scan"
	"github.com/tessera-db/tessera/internal/tessera"
)

// Store keeps cells in row-major, column-ascending order. Within one
// column, tombstones sort before puts so visibility resolves in a single
// forward pass, and put versions sort newest first.
type Store struct {
	mu    sync.RWMutex
	cells []tessera.Cell
}

func New() *Store {
	return &Store{}
}

// Put inserts a cell at its sorted position.
func (s *Store) Put(c tessera.Cell) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := sort.Search(len(s.cells), func(i int) bool {
		return compareCells(&s.cells[i], &c) >= 0
	})
	s.cells = append(s.cells, tessera.Cell{})
	copy(s.cells[i+1:], s.cells[i:])
	s.cells[i] = c
}

// DeleteRow removes every cell of a row, as a compaction would after a row
// tombstone.
func (s *Store) DeleteRow(key []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.cells[:0]
	for _, c := range s.cells {
		if !bytes.Equal(c.Key, key) {
			kept = append(kept, c)
		}
	}
	s.cells = kept
}

// Open returns a snapshot source over a span under standard snapshot
// visibility: per column, the newest put not hidden by a tombstone, and
// nothing else. A column whose latest state is deleted delivers no cell at
// all. The snapshot is taken at open time; later writes are invisible to
// it.
func (s *Store) Open(span scan.Span) (scan.CellSource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var (
		snap    []tessera.Cell
		tracker = covered.NewDeleteTracker()
		curRow  []byte
		emitted = make(map[string]struct{})
	)
	for i := range s.cells {
		c := &s.cells[i]
		if !inSpan(c.Key, span) {
			continue
		}
		if !bytes.Equal(c.Key, curRow) {
			curRow = c.Key
			tracker.Reset()
			clear(emitted)
		}
		if c.Type != tessera.CellPut {
			tracker.Observe(c)
			continue
		}
		col := string(c.Family) + "\x00" + string(c.Qualifier)
		if _, done := emitted[col]; done {
			continue
		}
		if tracker.Suppressed(c) {
			continue
		}
		emitted[col] = struct{}{}
		snap = append(snap, *c)
	}
	return &source{cells: snap}, nil
}

// OpenRaw returns a snapshot source delivering every stored cell in the
// span, tombstones and superseded versions included, for delete-aware
// readers that resolve visibility themselves.
func (s *Store) OpenRaw(span scan.Span) (scan.CellSource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var snap []tessera.Cell
	for _, c := range s.cells {
		if !inSpan(c.Key, span) {
			continue
		}
		snap = append(snap, c)
	}
	return &source{cells: snap}, nil
}

type source struct {
	cells []tessera.Cell
	pos   int
}

func (s *source) Next() (*tessera.Cell, error) {
	if s.pos >= len(s.cells) {
		return nil, nil
	}
	c := &s.cells[s.pos]
	s.pos++
	return c, nil
}

func (s *source) Close() error {
	return nil
}

func inSpan(key []byte, span scan.Span) bool {
	if span.Start != nil {
		cmp := bytes.Compare(key, span.Start)
		if cmp < 0 || (cmp == 0 && !span.StartInclusive) {
			return false
		}
	}
	if span.Stop != nil {
		cmp := bytes.Compare(key, span.Stop)
		if cmp > 0 || (cmp == 0 && !span.StopInclusive) {
			return false
		}
	}
	return true
}

func compareCells(a, b *tessera.Cell) int {
	if c := bytes.Compare(a.Key, b.Key); c != 0 {
		return c
	}
	if c := bytes.Compare(a.Family, b.Family); c != 0 {
		return c
	}
	if c := bytes.Compare(a.Qualifier, b.Qualifier); c != 0 {
		return c
	}
	// Tombstones before puts, then newest first.
	at, bt := typeRank(a.Type), typeRank(b.Type)
	if at != bt {
		return at - bt
	}
	switch {
	case a.Timestamp > b.Timestamp:
		return -1
	case a.Timestamp < b.Timestamp:
		return 1
	}
	return 0
}

func typeRank(t tessera.CellType) int {
	if t == tessera.CellPut {
		return 1
	}
	return 0
}
