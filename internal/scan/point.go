package scan

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tessera-db/tessera/internal/filter"
	"github.com/tessera-db/tessera/internal/tessera"
)

// Point-lookup mode: the requested key range decomposed into a finite
// ordered list of exact row keys, so the cursor issues one exact-match
// sub-scan per key instead of a ranged scan. An empty result for a key
// means the row was deleted after the lookup list was built; the cursor
// advances rather than erroring. If a caller-adjusted resume key no longer
// lines up with the list (the owning partition moved), the cursor falls
// back to a single ranged sub-scan that re-derives the correct position.

func (c *Cursor) nextPoint(start time.Time) (*tessera.Row, error) {
	for {
		if c.fallback {
			row, resolved, err := c.nextPointRange(start)
			if err != nil || row != nil {
				return row, err
			}
			if !resolved {
				// Fallback range exhausted; nothing left.
				c.shutdown(Done)
				return nil, nil
			}
			// Position re-derived; continue in point mode.
			continue
		}

		if c.lookupPos >= len(c.lookupKeys) {
			c.shutdown(Done)
			return nil, nil
		}
		key := c.lookupKeys[c.lookupPos]
		if c.clock().Sub(start) >= c.budget {
			return c.emitPointMarker(key), nil
		}

		// Speculative advance: rolled back on any failure so an
		// identical retry is safe.
		c.lookupPos++
		row, state, err := c.lookupOne(key, start)
		if errors.Is(err, errBudget) {
			c.lookupPos--
			return c.emitPointMarker(key), nil
		}
		if err != nil {
			c.lookupPos--
			return nil, err
		}
		if row == nil {
			// Deleted since the lookup list was built.
			log.Debug().Hex("row_key", key).Msg("point lookup key no longer present, skipping")
			continue
		}
		c.checkpoint = Checkpoint{
			ResumeKey: key,
			Inclusive: false,
			LookupPos: c.lookupPos,
		}
		if state == filter.Matched {
			return row, nil
		}
	}
}

// lookupOne runs the exact-match sub-scan for one key. It must return at
// most one row.
func (c *Cursor) lookupOne(key []byte, start time.Time) (*tessera.Row, filter.MatchState, error) {
	src, err := c.opener.Open(Span{
		Start:          key,
		StartInclusive: true,
		Stop:           key,
		StopInclusive:  true,
	})
	if err != nil {
		return nil, filter.Undetermined, fmt.Errorf("open point lookup source: %w", err)
	}
	defer func() {
		_ = src.Close()
	}()
	c.verify = &resumePosition{key: key, inclusive: true}
	row, state, err := c.readRow(src, start)
	if err != nil {
		c.pending = nil
		return nil, filter.Undetermined, err
	}
	if c.pending != nil {
		// Exact sub-scans are supposed to return a single row.
		log.Warn().Hex("row_key", key).Msg("point lookup returned more than one row")
		c.pending = nil
	}
	return row, state, nil
}

func (c *Cursor) emitPointMarker(key []byte) *tessera.Row {
	c.checkpoint = Checkpoint{
		ResumeKey:  key,
		Inclusive:  true,
		LookupPos:  c.lookupPos,
		MarkerLast: true,
	}
	c.shutdown(BudgetExceeded)
	log.Debug().
		Hex("resume_key", key).
		Int("lookup_pos", c.lookupPos).
		Msg("page budget exceeded during point lookup, emitting continuation marker")
	return tessera.NewMarker(key)
}

// resumePoint repositions the lookup cursor for a caller-supplied key.
func (c *Cursor) resumePoint(key []byte, inclusive bool) {
	pos := c.findLookupPosition(key)
	if pos >= len(c.lookupKeys) {
		c.state = Done
		return
	}
	if inclusive && bytes.Equal(key, c.lookupKeys[pos]) {
		// The key is exactly at a list boundary; point mode continues.
		c.fallback = false
		c.lookupPos = pos
		c.checkpoint = Checkpoint{ResumeKey: key, Inclusive: true, LookupPos: pos}
		return
	}
	c.fallback = true
	c.lookupPos = pos
	c.fallbackSpan = Span{
		Start:          key,
		StartInclusive: inclusive,
		Stop:           c.lookupKeys[len(c.lookupKeys)-1],
		StopInclusive:  true,
	}
	c.checkpoint = Checkpoint{ResumeKey: key, Inclusive: inclusive, LookupPos: pos}
	log.Debug().
		Hex("resume_key", key).
		Int("lookup_pos", pos).
		Msg("resume key is not a lookup key, falling back to ranged scan")
}

// nextPointRange drains the fallback ranged sub-scan until it hits a row
// belonging to the lookup list. It returns resolved=false when the range is
// exhausted, and a nil row with resolved=true when the position was
// re-derived by a row the predicate rejected.
func (c *Cursor) nextPointRange(start time.Time) (*tessera.Row, bool, error) {
	if c.src == nil {
		span := c.fallbackSpan
		span.Start = c.checkpoint.ResumeKey
		span.StartInclusive = c.checkpoint.Inclusive
		src, err := c.opener.Open(span)
		if err != nil {
			return nil, false, fmt.Errorf("open fallback source: %w", err)
		}
		c.src = src
		c.verify = &resumePosition{key: span.Start, inclusive: span.StartInclusive}
	}
	for {
		if c.clock().Sub(start) >= c.budget {
			return c.emitMarker(c.checkpoint.ResumeKey, c.checkpoint.Inclusive), true, nil
		}
		row, state, err := c.readRow(c.src, start)
		if errors.Is(err, errBudget) {
			return c.emitMarker(c.partialKey, true), true, nil
		}
		if err != nil {
			c.rollback()
			c.fallback = true // retry stays in fallback mode
			return nil, false, err
		}
		if row == nil {
			return nil, false, nil
		}
		if _, ok := c.lookupSet[string(row.Key)]; !ok {
			continue
		}
		// Found a lookup row: re-derive the list position and hand
		// control back to point mode.
		c.lookupPos = c.findLookupPosition(row.Key) + 1
		c.checkpoint = Checkpoint{ResumeKey: row.Key, Inclusive: false, LookupPos: c.lookupPos}
		c.fallback = false
		c.shutdown(Scanning)
		if state == filter.Matched {
			return row, true, nil
		}
		return nil, true, nil
	}
}

// findLookupPosition returns the index of the first lookup key at or after
// the given key.
func (c *Cursor) findLookupPosition(key []byte) int {
	return sort.Search(len(c.lookupKeys), func(i int) bool {
		return bytes.Compare(c.lookupKeys[i], key) >= 0
	})
}
