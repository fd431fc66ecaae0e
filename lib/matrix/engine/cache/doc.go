// Package cache implements the bounded row cache of file backed matrices.
//
// The Manager keeps the most recently used rows in memory, rows that are not
// resident are loaded from a Store on access. Modified rows are tracked in a
// roaring bitmap and written back when they are evicted, on Flush and on Close.
// Rows in use by an operation are pinned and never evicted.
package cache
