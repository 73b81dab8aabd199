package scan

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tessera-db/tessera/internal/filter"
	"github.com/tessera-db/tessera/internal/tessera"
)

// State is the cursor's lifecycle state.
type State uint8

const (
	Scanning State = iota
	BudgetExceeded
	RowMismatchError
	Done
)

func (s State) String() string {
	switch s {
	case BudgetExceeded:
		return "budget-exceeded"
	case RowMismatchError:
		return "row-mismatch-error"
	case Done:
		return "done"
	default:
		return "scanning"
	}
}

// rowMatcher is the slice of the filter layer the cursor depends on.
type rowMatcher interface {
	Consume(c *tessera.Cell) (filter.Verdict, error)
	FinishRow() (filter.MatchState, error)
	Reset()
}

type Config struct {
	// Opener provides cell sources for spans.
	Opener SourceOpener
	// Span is the scanned key range, ignored in point-lookup mode.
	Span Span
	// PointLookup switches the cursor to one exact sub-scan per lookup
	// key instead of a ranged scan.
	PointLookup bool
	// LookupKeys is the ordered list of exact row keys for point mode.
	LookupKeys [][]byte
	// Matcher filters rows as they assemble. Optional; without it every
	// row matches.
	Matcher rowMatcher
	// Budget is the wall-clock allowance for a single Next call.
	Budget time.Duration
	// Clock overrides time.Now, for tests.
	Clock func() time.Time
}

func (c *Config) validate() error {
	var errGrp []error
	if c.Opener == nil {
		errGrp = append(errGrp, errors.New("source opener cannot be nil"))
	}
	if c.Budget <= 0 {
		errGrp = append(errGrp, errors.New("page budget must be positive"))
	}
	if c.PointLookup {
		for i := 1; i < len(c.LookupKeys); i++ {
			if bytes.Compare(c.LookupKeys[i-1], c.LookupKeys[i]) >= 0 {
				errGrp = append(errGrp, errors.New("lookup keys must be strictly ascending"))
				break
			}
		}
	}
	return errors.Join(errGrp...)
}

// Cursor is the paging scan cursor. It is owned by exactly one scan:
// callers may hand it between goroutines across calls but must never call
// Next concurrently.
type Cursor struct {
	opener  SourceOpener
	span    Span
	matcher rowMatcher
	budget  time.Duration
	clock   func() time.Time

	state      State
	src        CellSource
	pending    *tessera.Cell
	checkpoint Checkpoint

	// verify holds the position the next row must be strictly after
	// (or at, when inclusive) following a reopen.
	verify *resumePosition

	// partialKey is the key of the row in flight when the budget
	// expired mid-row.
	partialKey []byte

	// Point-lookup mode state.
	pointMode    bool
	lookupKeys   [][]byte
	lookupSet    map[string]struct{}
	lookupPos    int
	fallback     bool
	fallbackSpan Span
}

type resumePosition struct {
	key       []byte
	inclusive bool
}

// New builds a cursor positioned at the start of its span or lookup list.
func New(cfg *Config) (*Cursor, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	c := &Cursor{
		opener:    cfg.Opener,
		span:      cfg.Span,
		matcher:   cfg.Matcher,
		budget:    cfg.Budget,
		clock:     clock,
		pointMode: cfg.PointLookup,
		checkpoint: Checkpoint{
			ResumeKey: cfg.Span.Start,
			Inclusive: cfg.Span.StartInclusive,
		},
	}
	if c.pointMode {
		c.lookupKeys = cfg.LookupKeys
		c.lookupSet = make(map[string]struct{}, len(cfg.LookupKeys))
		for _, k := range cfg.LookupKeys {
			c.lookupSet[string(k)] = struct{}{}
		}
		if len(c.lookupKeys) == 0 {
			// An empty lookup list has nothing to scan.
			c.state = Done
		}
	}
	return c, nil
}

// Next returns the next matching row, a continuation marker when the page
// budget expires, or nil when the scan is exhausted.
func (c *Cursor) Next() (*tessera.Row, error) {
	switch c.state {
	case Done:
		return nil, nil
	case RowMismatchError:
		return nil, fmt.Errorf("scan aborted: %w", ErrResumeMismatch)
	}
	c.state = Scanning
	start := c.clock()

	if c.pointMode {
		row, err := c.nextPoint(start)
		return row, c.noteMismatch(err)
	}

	if c.src == nil {
		if err := c.reopen(); err != nil {
			return nil, err
		}
	}
	for {
		if c.clock().Sub(start) >= c.budget {
			// Row boundary: the checkpoint already names the last
			// completed row.
			return c.emitMarker(c.checkpoint.ResumeKey, c.checkpoint.Inclusive), nil
		}
		row, state, err := c.readRow(c.src, start)
		if errors.Is(err, errBudget) {
			// Mid-row: drop the partial row and re-read it whole
			// on resume.
			return c.emitMarker(c.partialKey, true), nil
		}
		if err != nil {
			c.rollback()
			return nil, c.noteMismatch(err)
		}
		if row == nil {
			c.shutdown(Done)
			return nil, nil
		}
		c.checkpoint = Checkpoint{ResumeKey: row.Key, Inclusive: false}
		if state == filter.Matched {
			return row, nil
		}
	}
}

// Resume repositions the cursor before the next call, for callers that had
// to adjust the start key themselves (typically after the owning partition
// moved). In point mode a key that no longer lines up with the lookup list
// triggers the ranged-scan fallback instead of failing.
func (c *Cursor) Resume(key []byte, inclusive bool) error {
	if c.state == RowMismatchError {
		return fmt.Errorf("scan aborted: %w", ErrResumeMismatch)
	}
	c.shutdown(Scanning)
	if c.pointMode {
		c.resumePoint(key, inclusive)
		return nil
	}
	c.checkpoint = Checkpoint{ResumeKey: key, Inclusive: inclusive}
	return nil
}

// Checkpoint returns a copy of the cursor's resume state.
func (c *Cursor) Checkpoint() Checkpoint {
	return c.checkpoint
}

// State returns the cursor's lifecycle state.
func (c *Cursor) State() State {
	return c.state
}

// Close releases the underlying source. The cursor is unusable afterwards.
func (c *Cursor) Close() error {
	c.shutdown(Done)
	return nil
}

// reopen opens the underlying source at the checkpoint and arms position
// verification so a storage replay bug surfaces instead of corrupting the
// result stream.
func (c *Cursor) reopen() error {
	span := c.span
	span.Start = c.checkpoint.ResumeKey
	span.StartInclusive = c.checkpoint.Inclusive
	src, err := c.opener.Open(span)
	if err != nil {
		return fmt.Errorf("open cell source: %w", err)
	}
	c.src = src
	c.pending = nil
	c.verify = &resumePosition{key: c.checkpoint.ResumeKey, inclusive: c.checkpoint.Inclusive}
	return nil
}

// readRow assembles one row from src, feeding every cell through the
// matcher. It returns nil when the source is exhausted and errBudget when
// the page budget expires before the row completes.
func (c *Cursor) readRow(src CellSource, start time.Time) (*tessera.Row, filter.MatchState, error) {
	if c.matcher != nil {
		c.matcher.Reset()
	}
	var row *tessera.Row
	skipRemaining := false
	for {
		cell, err := c.nextCell(src)
		if err != nil {
			return nil, filter.Undetermined, fmt.Errorf("read cell: %w", err)
		}
		if cell == nil {
			if row == nil {
				return nil, filter.Undetermined, nil
			}
			return c.finishRow(row)
		}
		if row == nil {
			if err := c.verifyPosition(cell.Key); err != nil {
				return nil, filter.Undetermined, err
			}
			row = &tessera.Row{Key: cell.Key}
		} else if !bytes.Equal(cell.Key, row.Key) {
			c.pending = cell
			return c.finishRow(row)
		}
		if c.clock().Sub(start) >= c.budget {
			c.partialKey = row.Key
			return nil, filter.Undetermined, errBudget
		}
		if skipRemaining {
			continue
		}
		if c.matcher == nil {
			row.Cells = append(row.Cells, *cell)
			continue
		}
		verdict, err := c.matcher.Consume(cell)
		if err != nil {
			return nil, filter.Undetermined, err
		}
		switch verdict {
		case filter.Continue:
			row.Cells = append(row.Cells, *cell)
		case filter.SkipColumn:
			// Irrelevant to the predicate and below its range;
			// excluded from the assembled row.
		case filter.SkipRow:
			skipRemaining = true
		}
	}
}

func (c *Cursor) finishRow(row *tessera.Row) (*tessera.Row, filter.MatchState, error) {
	if c.matcher == nil {
		return row, filter.Matched, nil
	}
	state, err := c.matcher.FinishRow()
	if err != nil {
		return nil, filter.Undetermined, err
	}
	return row, state, nil
}

func (c *Cursor) nextCell(src CellSource) (*tessera.Cell, error) {
	if c.pending != nil {
		cell := c.pending
		c.pending = nil
		return cell, nil
	}
	return src.Next()
}

func (c *Cursor) verifyPosition(key []byte) error {
	if c.verify == nil {
		return nil
	}
	cmp := bytes.Compare(key, c.verify.key)
	if cmp < 0 || (cmp == 0 && !c.verify.inclusive) {
		return fmt.Errorf("%w: row %x at or before checkpoint %x",
			ErrResumeMismatch, key, c.verify.key)
	}
	c.verify = nil
	return nil
}

func (c *Cursor) emitMarker(key []byte, inclusive bool) *tessera.Row {
	c.checkpoint.ResumeKey = key
	c.checkpoint.Inclusive = inclusive
	c.checkpoint.MarkerLast = true
	c.shutdown(BudgetExceeded)
	log.Debug().
		Hex("resume_key", key).
		Bool("inclusive", inclusive).
		Msg("page budget exceeded, emitting continuation marker")
	return tessera.NewMarker(key)
}

// rollback discards the in-flight source so a retried call reopens at the
// checkpoint; the failed call then has no observable effect.
func (c *Cursor) rollback() {
	c.shutdown(Scanning)
}

func (c *Cursor) noteMismatch(err error) error {
	if errors.Is(err, ErrResumeMismatch) {
		c.state = RowMismatchError
	}
	return err
}

func (c *Cursor) shutdown(next State) {
	if c.src != nil {
		_ = c.src.Close()
		c.src = nil
	}
	c.pending = nil
	c.state = next
}
