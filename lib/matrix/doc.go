// Package matrix provides a standardized interface for sparse two-dimensional
// integer matrices. It defines the IMatrix interface together with the error
// kinds every implementation reports, so that callers can work with in-memory,
// file backed and remote matrices in the same way.
//
// The package focuses on:
//   - A unified interface for cell and row operations
//   - Feature discovery through capability flags
//   - A small set of error kinds that survive a trip over the network
//
// Key Components:
//
//   - IMatrix Interface: The core interface that all matrix implementations must satisfy.
//     It provides cell operations (Get, Set, Incr, Decr), row operations
//     (RowLength, Row, RowN), management operations (SetCacheSize, Flush, Info)
//     and the lifecycle operation Close.
//
//   - Entry: A (column, value) pair. Rows are always returned in ascending column order
//     and never contain zero values.
//
//   - Feature Flags: The Feature type defines capability flags that implementations
//     advertise through SupportsFeature, e.g. only file backed matrices support
//     FeaturePersistence and FeatureCacheControl.
//
//   - Errors: ErrClosed, ErrInvalidArgument and ErrUnsupported are sentinel errors,
//     storage failures are reported as *IOError (which matches ErrIO). RetCode,
//     CodeOf and FromCode map these kinds to numbers and back for the rpc layer.
//
// Note on the data model:
//   - Indices are non-negative and at most MaxIndex (2^32-1), values are int64.
//   - A cell that was never written reads as 0. Writing 0 (directly or by
//     incrementing to 0) removes the cell, so RowLength always counts non-zero cells.
//   - Incr and Decr wrap around on overflow (two's complement), they never fail
//     because of the value range.
//
// Note on durability:
//   - Close of a file backed matrix is a durability barrier. When it returns without
//     error, opening the same file again yields an equivalent matrix.
//   - Flush writes all modified rows without closing the matrix.
//
// Implementations live in the sub packages, see engine for the in-memory and
// file backed implementation and rpc/client for the remote one.
package matrix
