package internal

import (
	"math"
	"sync"
	"testing"

	"github.com/ValentinKolb/sMX/lib/matrix"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRowSetGet(t *testing.T) {
	r := NewRow(1)

	assert.Equal(t, int64(0), r.Get(5))
	assert.True(t, r.Set(5, 42))
	assert.True(t, r.Set(1, 23))
	assert.True(t, r.Set(9, 17))
	assert.False(t, r.Set(9, 17), "setting the same value is not a change")

	assert.Equal(t, int64(42), r.Get(5))
	assert.Equal(t, int64(23), r.Get(1))
	assert.Equal(t, int64(17), r.Get(9))
	assert.Equal(t, 3, r.Len())

	assert.Equal(t, []matrix.Entry{{Col: 1, Value: 23}, {Col: 5, Value: 42}, {Col: 9, Value: 17}}, r.Entries(-1))
}

func TestRowZeroRemoves(t *testing.T) {
	r := NewRow(0)

	assert.False(t, r.Set(3, 0), "setting an absent column to 0 is not a change")
	assert.Equal(t, 0, r.Len())

	r.Set(3, 7)
	r.Set(4, 8)
	assert.True(t, r.Set(3, 0))
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, []matrix.Entry{{Col: 4, Value: 8}}, r.Entries(-1))

	assert.True(t, r.Add(4, -8))
	assert.Equal(t, 0, r.Len())
}

func TestRowAdd(t *testing.T) {
	r := NewRow(0)

	r.Add(2, 1)
	r.Add(2, 5)
	assert.Equal(t, int64(6), r.Get(2))

	assert.False(t, r.Add(2, 0))

	r.Set(3, math.MaxInt64)
	r.Add(3, 1)
	assert.Equal(t, int64(math.MinInt64), r.Get(3), "addition wraps around")
}

func TestRowEntriesLimit(t *testing.T) {
	r := NewRow(0)
	for c := uint32(0); c < 100; c++ {
		r.Set(99-c, int64(c)+1)
	}

	assert.Len(t, r.Entries(0), 0)
	assert.Len(t, r.Entries(10), 10)
	assert.Len(t, r.Entries(1000), 100)

	entries := r.Entries(-1)
	for i := 1; i < len(entries); i++ {
		require.Less(t, entries[i-1].Col, entries[i].Col)
	}

	// returned slices are copies
	entries[0].Value = -1
	assert.NotEqual(t, int64(-1), r.Get(entries[0].Col))
}

func TestNewRowFromEntries(t *testing.T) {
	r, err := NewRowFromEntries(3, []matrix.Entry{{Col: 1, Value: 1}, {Col: 2, Value: 0}, {Col: 7, Value: 3}})
	require.NoError(t, err)
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, uint32(3), r.Index)

	_, err = NewRowFromEntries(3, []matrix.Entry{{Col: 2, Value: 1}, {Col: 2, Value: 3}})
	assert.Error(t, err)

	r.Lock()
	r.MarkDead()
	assert.True(t, r.Dead())
	r.Unlock()
}

func TestRowPins(t *testing.T) {
	r := NewRow(0)
	assert.False(t, r.Pinned())
	r.Pin()
	r.Pin()
	r.Unpin()
	assert.True(t, r.Pinned())
	r.Unpin()
	assert.False(t, r.Pinned())
	assert.Panics(t, r.Unpin)
}

func TestTable(t *testing.T) {
	tbl := NewTable()

	_, ok := tbl.GetIfPresent(1)
	assert.False(t, ok)

	r1, loaded := tbl.GetOrCreate(1)
	assert.False(t, loaded)
	r1again, loaded := tbl.GetOrCreate(1)
	assert.True(t, loaded)
	assert.Same(t, r1, r1again)

	tbl.Put(NewRow(2))
	assert.Equal(t, 2, tbl.Len())

	assert.False(t, tbl.RemoveIf(NewRow(2)), "a different row with the same index is not removed")
	assert.True(t, tbl.RemoveIf(r1))
	assert.Equal(t, 1, tbl.Len())

	seen := 0
	tbl.Range(func(idx uint32, row *Row) bool {
		assert.Equal(t, idx, row.Index)
		seen++
		return true
	})
	assert.Equal(t, 1, seen)

	tbl.Remove(2)
	assert.Equal(t, 0, tbl.Len())
}

func TestTableConcurrentGetOrCreate(t *testing.T) {
	tbl := NewTable()

	var wg sync.WaitGroup
	rows := make([]*Row, 16)
	for i := range rows {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rows[i], _ = tbl.GetOrCreate(42)
		}(i)
	}
	wg.Wait()

	for _, r := range rows {
		assert.Same(t, rows[0], r)
	}
}
