package join

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tessera-db/tessera/internal/expr"
	"github.com/tessera-db/tessera/internal/tessera"
)

// sliceScanner serves a fixed list of rows, standing in for the paging
// cursor.
type sliceScanner struct {
	rows   []*tessera.Row
	pos    int
	closed bool
}

func (s *sliceScanner) Next() (*tessera.Row, error) {
	if s.pos >= len(s.rows) {
		return nil, nil
	}
	row := s.rows[s.pos]
	s.pos++
	return row, nil
}

func (s *sliceScanner) Close() error {
	s.closed = true
	return nil
}

func baseRow(key string, vals ...string) *tessera.Row {
	row := &tessera.Row{Key: []byte(key)}
	for i, v := range vals {
		row.Cells = append(row.Cells, tessera.Cell{
			Key:       []byte(key),
			Family:    []byte("main"),
			Qualifier: tessera.EncodeQualifier(i + 1),
			Timestamp: 1,
			Value:     []byte(v),
		})
	}
	return row
}

func refRow(val string) *tessera.Row {
	return &tessera.Row{Key: []byte("ref-" + val), Cells: []tessera.Cell{{
		Key:       []byte("ref-" + val),
		Family:    []byte("ref"),
		Qualifier: tessera.EncodeQualifier(1),
		Timestamp: 1,
		Value:     []byte(val),
	}}}
}

// refValues extracts the join-side values carried by a composed row.
func refValues(row *tessera.Row) []string {
	var vals []string
	for _, c := range row.Cells {
		if string(c.Family) == "ref" {
			vals = append(vals, string(c.Value))
		}
	}
	return vals
}

func keyOn(q int) []expr.Expr {
	return []expr.Expr{&expr.ColumnExpr{Col: expr.Column{
		Family:    []byte("main"),
		Qualifier: tessera.EncodeQualifier(q),
	}}}
}

func drainAll(t *testing.T, c *Compositor) []*tessera.Row {
	t.Helper()
	var rows []*tessera.Row
	for i := 0; i < 1000; i++ {
		row, err := c.Next()
		require.NoError(t, err)
		if row == nil {
			return rows
		}
		rows = append(rows, row)
	}
	t.Fatal("compositor did not terminate")
	return nil
}

func TestTable(t *testing.T) {
	t.Parallel()

	tbl := NewTable(4)
	r1, r2 := refRow("x1"), refRow("x2")
	tbl.Add([]byte("k1"), r1)
	tbl.Add([]byte("k1"), r2)
	tbl.Add([]byte("k2"), refRow("y"))
	require.Equal(t, 3, tbl.Len())

	require.Equal(t, []*tessera.Row{r1, r2}, tbl.Get([]byte("k1")))
	require.Len(t, tbl.Get([]byte("k2")), 1)
	require.Nil(t, tbl.Get([]byte("missing")))
}

func TestTableManyKeys(t *testing.T) {
	t.Parallel()

	tbl := NewTable(500)
	for i := 0; i < 500; i++ {
		tbl.Add([]byte(fmt.Sprintf("key-%03d", i)), refRow(fmt.Sprintf("v%d", i)))
	}
	require.Equal(t, 500, tbl.Len())
	for i := 0; i < 500; i++ {
		rows := tbl.Get([]byte(fmt.Sprintf("key-%03d", i)))
		require.Len(t, rows, 1)
		require.Equal(t, []byte(fmt.Sprintf("v%d", i)), rows[0].Cells[0].Value)
	}
}

func TestCache(t *testing.T) {
	t.Parallel()

	c := NewCache()
	tbl := NewTable(1)
	c.Put("orders", tbl)

	got, err := c.Table("orders")
	require.NoError(t, err)
	require.Same(t, tbl, got)

	c.Remove("orders")
	_, err = c.Table("orders")
	require.ErrorIs(t, err, ErrTableNotFound)
	require.Contains(t, err.Error(), "orders")
}

func TestBuildKey(t *testing.T) {
	t.Parallel()

	exprs := []expr.Expr{
		&expr.ColumnExpr{Col: expr.Column{Family: []byte("main"), Qualifier: tessera.EncodeQualifier(1)}},
		&expr.ColumnExpr{Col: expr.Column{Family: []byte("main"), Qualifier: tessera.EncodeQualifier(2)}},
	}

	// Length prefixes keep adjacent components from aliasing: ("a","bc")
	// and ("ab","c") concatenate identically without them.
	k1, null, err := BuildKey(exprs, baseRow("r1", "a", "bc"))
	require.NoError(t, err)
	require.False(t, null)
	k2, null, err := BuildKey(exprs, baseRow("r2", "ab", "c"))
	require.NoError(t, err)
	require.False(t, null)
	require.NotEqual(t, k1, k2)

	// A NULL component can never match anything.
	_, null, err = BuildKey(exprs, baseRow("r3", "a"))
	require.NoError(t, err)
	require.True(t, null)
}

func newCompositor(t *testing.T, src []*tessera.Row, joins []Spec, cache *Cache, post expr.Predicate) *Compositor {
	t.Helper()
	c, err := New(&Config{
		Source:     &sliceScanner{rows: src},
		Joins:      joins,
		Cache:      cache,
		PostFilter: post,
		Budget:     time.Hour,
	})
	require.NoError(t, err)
	return c
}

func refTable(cache *Cache, id string, entries map[string][]*tessera.Row) {
	tbl := NewTable(len(entries))
	for k, rows := range entries {
		for _, r := range rows {
			tbl.Add(joinKey(k), r)
		}
	}
	cache.Put(id, tbl)
}

// joinKey length-prefixes a single string component the way BuildKey does.
func joinKey(s string) []byte {
	return append([]byte{0, 0, 0, byte(len(s))}, s...)
}

func TestCompositorJoinTypes(t *testing.T) {
	t.Parallel()

	newSrc := func() []*tessera.Row {
		return []*tessera.Row{
			baseRow("a", "k1"), // matches twice
			baseRow("b", "k2"), // matches once
			baseRow("c", "k9"), // no match
			baseRow("d"),       // NULL join key, never matches
		}
	}
	cache := NewCache()
	refTable(cache, "ref", map[string][]*tessera.Row{
		"k1": {refRow("m1"), refRow("m2")},
		"k2": {refRow("m3")},
	})

	tests := map[string]struct {
		typ  Type
		want map[string][]string // output key -> joined ref values per row
		keys []string            // output keys in order
	}{
		"inner": {
			typ:  Inner,
			keys: []string{"a", "a", "b"},
			want: map[string][]string{"b": {"m3"}},
		},
		"left": {
			typ:  Left,
			keys: []string{"a", "a", "b", "c", "d"},
			want: map[string][]string{"b": {"m3"}, "c": nil, "d": nil},
		},
		"semi": {
			typ:  Semi,
			keys: []string{"a", "b"},
			want: map[string][]string{"a": nil, "b": nil},
		},
		"anti": {
			typ:  Anti,
			keys: []string{"c", "d"},
			want: map[string][]string{"c": nil, "d": nil},
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			c := newCompositor(t, newSrc(), []Spec{{
				Type:     tc.typ,
				TableID:  "ref",
				KeyExprs: keyOn(1),
			}}, cache, nil)

			rows := drainAll(t, c)
			var keys []string
			for _, row := range rows {
				keys = append(keys, string(row.Key))
				if want, ok := tc.want[string(row.Key)]; ok {
					require.Equal(t, want, refValues(row), "row %s", row.Key)
				}
			}
			require.Equal(t, tc.keys, keys)
		})
	}
}

func TestCompositorFanOutIsContiguous(t *testing.T) {
	t.Parallel()

	cache := NewCache()
	refTable(cache, "ref", map[string][]*tessera.Row{
		"k1": {refRow("m1"), refRow("m2")},
	})
	src := []*tessera.Row{baseRow("a", "k1"), baseRow("b", "k1")}
	c := newCompositor(t, src, []Spec{{Type: Inner, TableID: "ref", KeyExprs: keyOn(1)}}, cache, nil)

	rows := drainAll(t, c)
	require.Len(t, rows, 4)
	// All of a's expansions drain before any of b's.
	require.Equal(t, "a", string(rows[0].Key))
	require.Equal(t, "a", string(rows[1].Key))
	require.Equal(t, "b", string(rows[2].Key))
	require.Equal(t, "b", string(rows[3].Key))
	require.Equal(t, []string{"m1"}, refValues(rows[0]))
	require.Equal(t, []string{"m2"}, refValues(rows[1]))
}

func TestCompositorMultiStage(t *testing.T) {
	t.Parallel()

	cache := NewCache()
	refTable(cache, "first", map[string][]*tessera.Row{
		"k1": {refRow("m1"), refRow("m2")},
	})
	refTable(cache, "second", map[string][]*tessera.Row{
		"k2": {refRow("n1")},
	})
	src := []*tessera.Row{baseRow("a", "k1", "k2")}
	c := newCompositor(t, src, []Spec{
		{Type: Inner, TableID: "first", KeyExprs: keyOn(1)},
		{Type: Inner, TableID: "second", KeyExprs: keyOn(2)},
	}, cache, nil)

	rows := drainAll(t, c)
	require.Len(t, rows, 2, "fan-out composes multiplicatively across stages")
	require.Equal(t, []string{"m1", "n1"}, refValues(rows[0]))
	require.Equal(t, []string{"m2", "n1"}, refValues(rows[1]))
}

func TestCompositorEarlyEvaluation(t *testing.T) {
	t.Parallel()

	cache := NewCache()
	refTable(cache, "ref", map[string][]*tessera.Row{
		"k1": {refRow("m1")},
	})
	src := []*tessera.Row{baseRow("a", "k1"), baseRow("b", "k9")}

	tests := map[string]struct {
		typ  Type
		keys []string
	}{
		"semi keeps matched":    {typ: Semi, keys: []string{"a"}},
		"anti keeps unmatched":  {typ: Anti, keys: []string{"b"}},
		"inner drops unmatched": {typ: Inner, keys: []string{"a"}},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			c := newCompositor(t, src, []Spec{{
				Type:            tc.typ,
				TableID:         "ref",
				KeyExprs:        keyOn(1),
				EarlyEvaluation: true,
			}}, cache, nil)
			var keys []string
			for _, row := range drainAll(t, c) {
				keys = append(keys, string(row.Key))
			}
			require.Equal(t, tc.keys, keys)
		})
	}
}

func TestCompositorZeroWidthKeyPassesThrough(t *testing.T) {
	t.Parallel()

	cache := NewCache()
	refTable(cache, "ref", nil)
	src := []*tessera.Row{baseRow("a", "v")}
	c := newCompositor(t, src, []Spec{{Type: Inner, TableID: "ref", EarlyEvaluation: true}}, cache, nil)

	rows := drainAll(t, c)
	require.Len(t, rows, 1)
	require.Equal(t, "a", string(rows[0].Key))
}

func TestCompositorPostFilter(t *testing.T) {
	t.Parallel()

	cache := NewCache()
	refTable(cache, "ref", map[string][]*tessera.Row{
		"k1": {refRow("keep"), refRow("drop")},
	})
	src := []*tessera.Row{baseRow("a", "k1")}
	post := expr.ColumnEq([]byte("ref"), tessera.EncodeQualifier(1), []byte("keep"))
	c := newCompositor(t, src, []Spec{{Type: Inner, TableID: "ref", KeyExprs: keyOn(1)}}, cache, post)

	rows := drainAll(t, c)
	require.Len(t, rows, 1)
	require.Equal(t, []string{"keep"}, refValues(rows[0]))
}

func TestCompositorPassesMarkersThrough(t *testing.T) {
	t.Parallel()

	marker := tessera.NewMarker([]byte("resume-here"))
	src := []*tessera.Row{baseRow("a", "v"), marker, baseRow("b", "v")}
	c, err := New(&Config{
		Source: &sliceScanner{rows: src},
		Budget: time.Hour,
	})
	require.NoError(t, err)

	row, err := c.Next()
	require.NoError(t, err)
	require.Equal(t, "a", string(row.Key))

	row, err = c.Next()
	require.NoError(t, err)
	require.Same(t, marker, row)

	row, err = c.Next()
	require.NoError(t, err)
	require.Equal(t, "b", string(row.Key))
}

func TestCompositorBudgetHoldsBufferedRows(t *testing.T) {
	t.Parallel()

	cache := NewCache()
	refTable(cache, "ref", map[string][]*tessera.Row{
		"k1": {refRow("m1"), refRow("m2")},
	})

	// Every Now() call advances the clock past the budget, so each
	// processed source row triggers a marker before its buffered fan-out
	// is served.
	now := time.Unix(0, 0)
	clock := func() time.Time {
		now = now.Add(time.Second)
		return now
	}
	c, err := New(&Config{
		Source: &sliceScanner{rows: []*tessera.Row{baseRow("a", "k1")}},
		Joins:  []Spec{{Type: Inner, TableID: "ref", KeyExprs: keyOn(1)}},
		Cache:  cache,
		Budget: time.Millisecond,
		Clock:  clock,
	})
	require.NoError(t, err)

	row, err := c.Next()
	require.NoError(t, err)
	require.True(t, tessera.IsMarker(row))
	require.Equal(t, "a", string(row.Key))

	// The buffered composition is served before more source rows are
	// pulled.
	row, err = c.Next()
	require.NoError(t, err)
	require.Equal(t, []string{"m1"}, refValues(row))
	row, err = c.Next()
	require.NoError(t, err)
	require.Equal(t, []string{"m2"}, refValues(row))

	row, err = c.Next()
	require.NoError(t, err)
	require.Nil(t, row)
}

func TestCompositorBufferCap(t *testing.T) {
	t.Parallel()

	cache := NewCache()
	refTable(cache, "ref", map[string][]*tessera.Row{
		"k1": {refRow("m1"), refRow("m2"), refRow("m3")},
	})
	c, err := New(&Config{
		Source:      &sliceScanner{rows: []*tessera.Row{baseRow("a", "k1")}},
		Joins:       []Spec{{Type: Inner, TableID: "ref", KeyExprs: keyOn(1)}},
		Cache:       cache,
		Budget:      time.Hour,
		MaxBuffered: 2,
	})
	require.NoError(t, err)

	_, err = c.Next()
	require.ErrorIs(t, err, ErrBufferExceeded)
}

func TestCompositorConstructionErrors(t *testing.T) {
	t.Parallel()

	cache := NewCache()
	src := &sliceScanner{}

	t.Run("missing table", func(t *testing.T) {
		t.Parallel()
		_, err := New(&Config{
			Source: src,
			Joins:  []Spec{{Type: Inner, TableID: "absent", KeyExprs: keyOn(1)}},
			Cache:  cache,
			Budget: time.Hour,
		})
		require.ErrorIs(t, err, ErrTableNotFound)
	})
	t.Run("unsupported join type", func(t *testing.T) {
		t.Parallel()
		_, err := New(&Config{
			Source: src,
			Joins:  []Spec{{Type: Type(9), TableID: "x"}},
			Cache:  cache,
			Budget: time.Hour,
		})
		require.ErrorIs(t, err, ErrUnsupportedType)
	})
	t.Run("nil source", func(t *testing.T) {
		t.Parallel()
		_, err := New(&Config{Budget: time.Hour})
		require.Error(t, err)
	})
	t.Run("zero budget", func(t *testing.T) {
		t.Parallel()
		_, err := New(&Config{Source: src})
		require.Error(t, err)
	})
}

func TestCompositorClosePropagates(t *testing.T) {
	t.Parallel()

	src := &sliceScanner{}
	c, err := New(&Config{Source: src, Budget: time.Hour})
	require.NoError(t, err)
	require.NoError(t, c.Close())
	require.True(t, src.closed)
}
