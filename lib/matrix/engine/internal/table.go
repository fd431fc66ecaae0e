package internal

import (
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Table Type (row index -> row)
// --------------------------------------------------------------------------

// Table maps row indices to the rows that are currently in memory.
// It only ever contains materialized rows, an absent index means the row is
// either empty or (in file mode) not loaded.
//
// Thread-safety: All methods are safe for concurrent use. The rows themselves
// are synchronized by their own lock.
type Table struct {
	rows *xsync.MapOf[uint32, *Row]
}

// NewTable creates an empty table
func NewTable() *Table {
	return &Table{
		rows: xsync.NewMapOf[uint32, *Row](),
	}
}

// GetOrCreate returns the row for idx, creating an empty one if absent.
// The boolean reports whether the row already existed.
func (t *Table) GetOrCreate(idx uint32) (*Row, bool) {
	return t.rows.LoadOrCompute(idx, func() *Row {
		return NewRow(idx)
	})
}

// GetIfPresent returns the row for idx if it is present
func (t *Table) GetIfPresent(idx uint32) (*Row, bool) {
	return t.rows.Load(idx)
}

// Put stores row under its index, replacing an existing row
func (t *Table) Put(row *Row) {
	t.rows.Store(row.Index, row)
}

// Remove removes the row for idx
func (t *Table) Remove(idx uint32) {
	t.rows.Delete(idx)
}

// RemoveIf removes the row for idx if it is still the given row
func (t *Table) RemoveIf(row *Row) bool {
	removed := false
	t.rows.Compute(row.Index, func(old *Row, loaded bool) (*Row, bool) {
		if !loaded {
			return old, true
		}
		if old != row {
			return old, false
		}
		removed = true
		return nil, true
	})
	return removed
}

// Len returns the number of rows in the table
func (t *Table) Len() int {
	return t.rows.Size()
}

// Range calls fn for every row until fn returns false.
// The iteration order is undefined.
func (t *Table) Range(fn func(idx uint32, row *Row) bool) {
	t.rows.Range(fn)
}

// Clear removes all rows
func (t *Table) Clear() {
	t.rows.Clear()
}
