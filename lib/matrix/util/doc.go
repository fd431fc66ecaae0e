// Package util provides utility components for matrix implementations.
//
// The package contains:
//   - mapheap: A generic priority queue that also supports key-based access, used as the recency index of the row cache
//   - statistics: A LengthHistogram for tracking the row length distribution of a matrix
//
// Neither component depends on a specific matrix implementation.
package util
