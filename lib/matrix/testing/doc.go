// Package testing provides standardised tests and benchmarks for
// matrix implementations that satisfy the matrix.IMatrix interface.
//
// The package contains:
//   - RunMatrixTests: A test suite for the cell and row operations every matrix supports
//   - RunPersistenceTests: Tests for matrices that keep their rows in a backing file
//   - RunMatrixBenchmarks: Performance tests for the common matrix operations
//
// Tests for features a matrix does not support (see matrix.Feature) are skipped.
//
// Example usage:
//
//	// Creating a factory function for your implementation
//	factory := func() (matrix.IMatrix, error) {
//		return NewMyMatrix(), nil
//	}
//
//	// Running the standard test suite
//	mxtesting.RunMatrixTests(t, "MyMatrix", factory)
//
//	// Running performance benchmarks
//	mxtesting.RunMatrixBenchmarks(b, "MyMatrix", factory)
package testing
