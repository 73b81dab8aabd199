// Package scan implements the time-boxed, exactly-resumable cursor that
// turns the storage layer's ordered cell stream into filtered rows. A call
// to Next never runs past its wall-clock budget: when the budget expires the
// cursor emits a continuation marker and records the checkpoint needed to
// resume from the exact same position on the following call.
package scan

import (
	"github.com/tessera-db/tessera/internal/tessera"
)

//go:generate mockgen -destination=scan_mock.go -package=scan -source=scan.go

// Span is a contiguous row-key range.
type Span struct {
	Start          []byte
	StartInclusive bool
	Stop           []byte
	StopInclusive  bool
}

// CellSource is the storage layer's iterator over one span: cells arrive in
// row-major, column-ascending order under standard snapshot visibility. The
// source itself knows nothing about time budgets.
type CellSource interface {
	// Next returns the next cell, or nil when the span is exhausted.
	Next() (*tessera.Cell, error)
	Close() error
}

// SourceOpener opens cell sources. Reseeking to a checkpoint is expressed
// as reopening with an adjusted span, which keeps the storage boundary to a
// single capability.
type SourceOpener interface {
	Open(span Span) (CellSource, error)
}

// Scanner is the one capability interface every stage of the pipeline
// exposes: the paging cursor implements it over raw cells, and the join
// compositor implements it over another Scanner. Next returns nil when the
// scan is exhausted; the returned row may be a continuation marker, which
// the caller must discard before calling Next again.
type Scanner interface {
	Next() (*tessera.Row, error)
	Close() error
}

// Checkpoint is the minimal in-memory state required to resume a scan
// exactly. Re-scanning from a checkpoint reproduces the remaining output of
// the unbounded scan with no row skipped or duplicated.
type Checkpoint struct {
	// ResumeKey is the row key scanning restarts from.
	ResumeKey []byte
	// Inclusive is true when the resume key itself must be re-read (the
	// budget expired mid-row), false when it was fully consumed.
	Inclusive bool
	// LookupPos is the index into the ordered lookup-key list, point
	// mode only.
	LookupPos int
	// MarkerLast records whether the last emission was a continuation
	// marker rather than a data row.
	MarkerLast bool
}
