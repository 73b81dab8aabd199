package join

import (
	"bytes"

	"github.com/spaolacci/murmur3"
	"github.com/tessera-db/tessera/internal/tessera"
)

// Table is a precomputed multi-valued map from join key to candidate rows.
// Build once, probe many: tables are written by whoever distributes the
// build side and are strictly read-only while referenced by scans, so
// lookups take no locks.
type Table struct {
	buckets []bucket
	mask    uint64
	size    int
}

type bucket []entry

type entry struct {
	hash uint64
	key  []byte
	rows []*tessera.Row
}

const minBuckets = 16

// NewTable sizes a table for an expected number of distinct keys.
func NewTable(expectedKeys int) *Table {
	n := minBuckets
	for n < expectedKeys*2 {
		n <<= 1
	}
	return &Table{
		buckets: make([]bucket, n),
		mask:    uint64(n - 1),
	}
}

// Add appends a row under a join key.
func (t *Table) Add(key []byte, row *tessera.Row) {
	h := murmur3.Sum64(key)
	b := &t.buckets[h&t.mask]
	for i := range *b {
		e := &(*b)[i]
		if e.hash == h && bytes.Equal(e.key, key) {
			e.rows = append(e.rows, row)
			t.size++
			return
		}
	}
	*b = append(*b, entry{
		hash: h,
		key:  append([]byte(nil), key...),
		rows: []*tessera.Row{row},
	})
	t.size++
}

// Get returns every row stored under a join key, or nil when the key has no
// matches.
func (t *Table) Get(key []byte) []*tessera.Row {
	h := murmur3.Sum64(key)
	b := t.buckets[h&t.mask]
	for i := range b {
		if b[i].hash == h && bytes.Equal(b[i].key, key) {
			return b[i].rows
		}
	}
	return nil
}

// Len returns the number of rows in the table.
func (t *Table) Len() int {
	return t.size
}
