package join

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-collections/collections/queue"
	"github.com/rs/zerolog/log"
	"github.com/tessera-db/tessera/internal/expr"
	"github.com/tessera-db/tessera/internal/scan"
	"github.com/tessera-db/tessera/internal/tessera"
)

var (
	// ErrUnsupportedType is returned at construction for any join type
	// outside Inner/Left/Semi/Anti.
	ErrUnsupportedType = errors.New("unsupported join type")

	// ErrBufferExceeded means a single input row fanned out past the
	// configured buffer cap. Upstream paging keeps the buffer small in
	// the normal case; hitting the cap is backpressure, not data loss.
	ErrBufferExceeded = errors.New("join buffer capacity exceeded")
)

const defaultMaxBuffered = 10000

// tableCache resolves join table identifiers; absence is a hard error.
type tableCache interface {
	Table(id string) (*Table, error)
}

type Config struct {
	// Source produces the scanned base rows, usually a paging cursor.
	Source scan.Scanner
	// Joins are the join stages in declared order.
	Joins []Spec
	// Cache resolves the precomputed join tables.
	Cache tableCache
	// PostFilter, when set, runs over every composed row; rows that
	// error or evaluate non-true are discarded.
	PostFilter expr.Predicate
	// Budget bounds the wall clock spent pulling source rows per call.
	Budget time.Duration
	// MaxBuffered caps the composed-row buffer; zero uses the default.
	MaxBuffered int
	// Clock overrides time.Now, for tests.
	Clock func() time.Time
}

func (c *Config) validate() error {
	var errGrp []error
	if c.Source == nil {
		errGrp = append(errGrp, errors.New("source scanner cannot be nil"))
	}
	if len(c.Joins) > 0 && c.Cache == nil {
		errGrp = append(errGrp, errors.New("table cache cannot be nil"))
	}
	if c.Budget <= 0 {
		errGrp = append(errGrp, errors.New("page budget must be positive"))
	}
	for _, sp := range c.Joins {
		if !sp.Type.Valid() {
			errGrp = append(errGrp, fmt.Errorf("%w: %d", ErrUnsupportedType, sp.Type))
		}
	}
	return errors.Join(errGrp...)
}

// Compositor joins each scanned row against its join tables and buffers the
// composed rows in arrival order for the caller to drain one at a time.
// Fan-out from a single input row is contiguous in the output.
type Compositor struct {
	src         scan.Scanner
	joins       []Spec
	tables      []*Table
	post        expr.Predicate
	budget      time.Duration
	clock       func() time.Time
	maxBuffered int

	results *queue.Queue
	hasMore bool

	// matches holds the per-base-row probe results of the
	// early-evaluation stages, reused across rows.
	matches [][]*tessera.Row
}

// New resolves every join table up front; a missing table fails the scan at
// construction rather than after rows have been served.
func New(cfg *Config) (*Compositor, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	tables := make([]*Table, len(cfg.Joins))
	for i, sp := range cfg.Joins {
		t, err := cfg.Cache.Table(sp.TableID)
		if err != nil {
			return nil, err
		}
		tables[i] = t
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	maxBuffered := cfg.MaxBuffered
	if maxBuffered == 0 {
		maxBuffered = defaultMaxBuffered
	}
	return &Compositor{
		src:         cfg.Source,
		joins:       cfg.Joins,
		tables:      tables,
		post:        cfg.PostFilter,
		budget:      cfg.Budget,
		clock:       clock,
		maxBuffered: maxBuffered,
		results:     queue.New(),
		hasMore:     true,
		matches:     make([][]*tessera.Row, len(cfg.Joins)),
	}, nil
}

// Next returns the next composed row, passing continuation markers from the
// source through untouched. When composing a row pushes the call past the
// page budget, the buffered results are held and a marker is emitted so the
// caller comes back for them.
func (c *Compositor) Next() (*tessera.Row, error) {
	start := c.clock()
	for c.results.Len() == 0 && c.hasMore {
		row, err := c.src.Next()
		if err != nil {
			return nil, err
		}
		if row == nil {
			c.hasMore = false
			break
		}
		if tessera.IsMarker(row) {
			return row, nil
		}
		if err := c.processRow(row); err != nil {
			return nil, err
		}
		if c.clock().Sub(start) >= c.budget {
			log.Debug().
				Hex("row_key", row.Key).
				Int("buffered", c.results.Len()).
				Msg("page budget exceeded while composing joins, emitting continuation marker")
			return tessera.NewMarker(row.Key), nil
		}
	}
	if c.results.Len() > 0 {
		return c.results.Dequeue().(*tessera.Row), nil
	}
	return nil, nil
}

// Close releases the underlying scanner.
func (c *Compositor) Close() error {
	return c.src.Close()
}

// processRow runs one base row through every join stage and leaves the
// composed rows on the result queue.
func (c *Compositor) processRow(row *tessera.Row) error {
	// Stage one: probe every early-evaluation table. A key derivable
	// from the base row alone can disqualify the row before any
	// composition work.
	for i, sp := range c.joins {
		if !sp.EarlyEvaluation || len(sp.KeyExprs) == 0 {
			c.matches[i] = nil
			continue
		}
		rows, err := c.probe(i, row)
		if err != nil {
			return err
		}
		c.matches[i] = rows
		switch {
		case (sp.Type == Inner || sp.Type == Semi) && rows == nil:
			return nil
		case sp.Type == Anti && rows != nil:
			return nil
		}
	}

	// Stage two: expand through the tables in declared order. Every row
	// already buffered from prior stages is probed against the current
	// table, so fan-out composes multiplicatively and stays contiguous.
	pending := queue.New()
	pending.Enqueue(row)
	for i, sp := range c.joins {
		if sp.EarlyEvaluation && (sp.Type == Semi || sp.Type == Anti) {
			// Fully settled in stage one; nothing to expand.
			continue
		}
		if len(sp.KeyExprs) == 0 {
			// Degenerate zero-width join key: rows pass through
			// unchanged.
			continue
		}
		n := pending.Len()
		for ; n > 0; n-- {
			lhs := pending.Dequeue().(*tessera.Row)
			rows := c.matches[i]
			if !sp.EarlyEvaluation {
				var err error
				rows, err = c.probe(i, lhs)
				if err != nil {
					return err
				}
			}
			if rows == nil {
				switch sp.Type {
				case Left, Anti:
					// Unmatched survives with the join side
					// absent.
					pending.Enqueue(lhs)
				}
				continue
			}
			switch sp.Type {
			case Anti:
				continue
			case Semi:
				pending.Enqueue(lhs)
			default:
				for _, m := range rows {
					pending.Enqueue(Merge(lhs, m))
				}
			}
			if pending.Len() > c.maxBuffered {
				return fmt.Errorf("%w: %d rows from key %x",
					ErrBufferExceeded, pending.Len(), row.Key)
			}
		}
	}

	// Stage three: the post-join filter sees fully composed rows; a data
	// error during evaluation discards the row, it does not fail the
	// scan.
	for n := pending.Len(); n > 0; n-- {
		composed := pending.Dequeue().(*tessera.Row)
		if c.post != nil {
			t, err := c.post.Eval(composed)
			if err != nil || t != expr.True {
				continue
			}
		}
		c.results.Enqueue(composed)
		if c.results.Len() > c.maxBuffered {
			return fmt.Errorf("%w: %d buffered rows", ErrBufferExceeded, c.results.Len())
		}
	}
	return nil
}

// probe builds the join key for one stage from a row and looks it up. A
// NULL key component never matches.
func (c *Compositor) probe(i int, row *tessera.Row) ([]*tessera.Row, error) {
	key, null, err := BuildKey(c.joins[i].KeyExprs, row)
	if err != nil {
		return nil, err
	}
	if null {
		return nil, nil
	}
	return c.tables[i].Get(key), nil
}
