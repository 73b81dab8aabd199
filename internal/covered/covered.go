// Package covered builds the filtered sub-scanner used to materialize the
// "before" state of the columns a mutation touches: only the referenced
// columns, only state visible at a reference time, and with cells hidden by
// tombstones removed while the tombstones themselves are tracked for the
// caller.
package covered

import (
	"bytes"
	"errors"

	"github.com/tessera-db/tessera/internal/scan"
	"github.com/tessera-db/tessera/internal/tessera"
)

// ColumnRef names one covered column. An empty qualifier covers the whole
// family.
type ColumnRef struct {
	Family    []byte
	Qualifier []byte
}

type Config struct {
	// Source is the raw cell stream for the row being read back.
	Source scan.CellSource
	// Columns is the allow-list of covered columns.
	Columns []ColumnRef
	// AsOf is the timestamp ceiling; cells newer than it are invisible.
	AsOf int64
}

func (c *Config) validate() error {
	var errGrp []error
	if c.Source == nil {
		errGrp = append(errGrp, errors.New("cell source cannot be nil"))
	}
	if len(c.Columns) == 0 {
		errGrp = append(errGrp, errors.New("covered columns cannot be empty"))
	}
	if c.AsOf <= 0 {
		errGrp = append(errGrp, errors.New("reference timestamp must be positive"))
	}
	return errors.Join(errGrp...)
}

// Scanner is a CellSource reduced to the covered columns. The filter order
// is fixed: the column allow-list runs first, then the timestamp ceiling,
// then the delete filter — the delete filter must see the already
// column-reduced stream to track per-column markers correctly.
type Scanner struct {
	src     scan.CellSource
	columns []ColumnRef
	asOf    int64
	tracker *DeleteTracker
	curRow  []byte
}

// New composes the covered scanner over a raw source.
func New(cfg *Config) (*Scanner, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Scanner{
		src:     cfg.Source,
		columns: cfg.Columns,
		asOf:    cfg.AsOf,
		tracker: NewDeleteTracker(),
	}, nil
}

// Next returns the next visible covered cell, or nil at the end of the
// stream.
func (s *Scanner) Next() (*tessera.Cell, error) {
	for {
		c, err := s.src.Next()
		if err != nil {
			return nil, err
		}
		if c == nil {
			return nil, nil
		}
		if !bytes.Equal(c.Key, s.curRow) {
			s.curRow = c.Key
			s.tracker.Reset()
		}
		if !s.covers(c) {
			continue
		}
		if c.Timestamp > s.asOf {
			continue
		}
		if c.Type != tessera.CellPut {
			s.tracker.Observe(c)
			continue
		}
		if s.tracker.Suppressed(c) {
			continue
		}
		return c, nil
	}
}

// Close releases the underlying source.
func (s *Scanner) Close() error {
	return s.src.Close()
}

// DeleteTracker exposes the tombstones the scan has crossed so far.
func (s *Scanner) DeleteTracker() *DeleteTracker {
	return s.tracker
}

// covers applies the column allow-list. A cell with an empty qualifier is a
// family-level delete marker and must pass whenever its family is covered.
func (s *Scanner) covers(c *tessera.Cell) bool {
	for _, ref := range s.columns {
		if !bytes.Equal(ref.Family, c.Family) {
			continue
		}
		if len(ref.Qualifier) == 0 || len(c.Qualifier) == 0 {
			return true
		}
		if bytes.Equal(ref.Qualifier, c.Qualifier) {
			return true
		}
	}
	return false
}
