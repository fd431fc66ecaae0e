package internal

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/sMX/lib/matrix"
)

// --------------------------------------------------------------------------
// Row Type (sorted column/value pairs of one matrix row)
// --------------------------------------------------------------------------

// Row stores the non-zero cells of one matrix row in two parallel slices that are
// kept sorted by column. Lookups are binary searches, inserts shift the tail.
//
// The methods of Row are not synchronized. Callers hold the embedded RWMutex:
// the read lock for Get, Len and Entries and the write lock for every mutation.
type Row struct {
	sync.RWMutex

	Index uint32 // The row index within the matrix

	cols []uint32
	vals []int64

	// pins counts the operations that currently use this row, the row cache never
	// evicts a pinned row. Modified under the cache lock, read without it.
	pins atomic.Int32

	// dead is set when an empty row was removed from its table. Operations that
	// still hold a pointer to a dead row look the row up again.
	dead bool
}

// NewRow creates an empty row
func NewRow(index uint32) *Row {
	return &Row{Index: index}
}

// NewRowFromEntries creates a row from entries in ascending column order.
// Entries with a value of 0 are skipped.
func NewRowFromEntries(index uint32, entries []matrix.Entry) (*Row, error) {
	r := &Row{
		Index: index,
		cols:  make([]uint32, 0, len(entries)),
		vals:  make([]int64, 0, len(entries)),
	}
	for i, e := range entries {
		if i > 0 && e.Col <= entries[i-1].Col {
			return nil, fmt.Errorf("row %d: columns not strictly ascending at position %d", index, i)
		}
		if e.Value == 0 {
			continue
		}
		r.cols = append(r.cols, e.Col)
		r.vals = append(r.vals, e.Value)
	}
	return r, nil
}

// search returns the position of col and whether it is present
func (r *Row) search(col uint32) (int, bool) {
	i := sort.Search(len(r.cols), func(i int) bool { return r.cols[i] >= col })
	return i, i < len(r.cols) && r.cols[i] == col
}

// Get returns the value of col, 0 if the column is absent
func (r *Row) Get(col uint32) int64 {
	if i, ok := r.search(col); ok {
		return r.vals[i]
	}
	return 0
}

// Set stores value for col. A value of 0 removes the column.
// The return value reports whether the row changed.
func (r *Row) Set(col uint32, value int64) bool {
	i, ok := r.search(col)

	switch {
	case ok && value == 0:
		r.cols = append(r.cols[:i], r.cols[i+1:]...)
		r.vals = append(r.vals[:i], r.vals[i+1:]...)
		return true
	case ok:
		changed := r.vals[i] != value
		r.vals[i] = value
		return changed
	case value == 0:
		return false
	}

	// insert at position i
	r.cols = append(r.cols, 0)
	r.vals = append(r.vals, 0)
	copy(r.cols[i+1:], r.cols[i:])
	copy(r.vals[i+1:], r.vals[i:])
	r.cols[i] = col
	r.vals[i] = value
	return true
}

// Add adds delta to the value of col, an absent column counts as 0.
// The addition wraps around on overflow. The return value reports whether the row changed.
func (r *Row) Add(col uint32, delta int64) bool {
	if delta == 0 {
		return false
	}
	return r.Set(col, r.Get(col)+delta)
}

// Len returns the number of non-zero columns
func (r *Row) Len() int {
	return len(r.cols)
}

// Entries returns a copy of the first limit entries in ascending column order.
// A negative limit returns all entries.
func (r *Row) Entries(limit int) []matrix.Entry {
	n := len(r.cols)
	if limit >= 0 && limit < n {
		n = limit
	}
	entries := make([]matrix.Entry, n)
	for i := 0; i < n; i++ {
		entries[i] = matrix.Entry{Col: r.cols[i], Value: r.vals[i]}
	}
	return entries
}

// MarkDead marks the row as removed from its table. Caller must hold the write lock.
func (r *Row) MarkDead() {
	r.dead = true
}

// Dead reports whether the row was removed from its table. Caller must hold a lock.
func (r *Row) Dead() bool {
	return r.dead
}

// --------------------------------------------------------------------------
// Pinning
// --------------------------------------------------------------------------

// Pin marks the row as in use
func (r *Row) Pin() {
	r.pins.Add(1)
}

// Unpin releases one pin
func (r *Row) Unpin() {
	if r.pins.Add(-1) < 0 {
		panic(fmt.Sprintf("row %d unpinned more often than pinned", r.Index))
	}
}

// Pinned reports whether the row is in use
func (r *Row) Pinned() bool {
	return r.pins.Load() > 0
}
