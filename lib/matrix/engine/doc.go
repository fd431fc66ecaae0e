// Package engine implements matrix.IMatrix for local matrices.
//
// A matrix opened without a path keeps all rows in a concurrent table and
// persists nothing. A matrix opened with a path stores its rows in a backing
// file (see package storage) and keeps a bounded number of recently used rows
// in memory (see package cache):
//
//	m, err := engine.Open(&engine.Options{
//		Path:      "counts.smx",
//		CacheSize: 50_000,
//		Codec:     storage.CodecZstd,
//	})
//	if err != nil {
//		return err
//	}
//	defer m.Close()
//
//	_ = m.Incr(17, 4, 1)
//
// Every operation locks only the row it touches, operations on different rows
// run in parallel. Close waits for running operations and writes all modified
// rows before it returns.
package engine
