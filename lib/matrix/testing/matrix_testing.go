package testing

import (
	"errors"
	"math"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/sMX/lib/matrix"
	"golang.org/x/sync/errgroup"
)

// maxIndex64 is not a constant, so converting it to int compiles on 32 bit platforms
var maxIndex64 int64 = matrix.MaxIndex

// OpenFunc opens the matrix stored at path
type OpenFunc func(path string) (matrix.IMatrix, error)

// RunMatrixTests runs a comprehensive test suite for an IMatrix implementation.
// Every call of factory must return a new, empty matrix.
func RunMatrixTests(t *testing.T, name string, factory matrix.Factory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Set&Get", func(t *testing.T) {
			testSetGet(t, newMatrix(t, factory))
		})

		t.Run("IncrAfterSetZero", func(t *testing.T) {
			testIncrAfterSetZero(t, newMatrix(t, factory))
		})

		t.Run("IncrDecr", func(t *testing.T) {
			testIncrDecr(t, newMatrix(t, factory))
		})

		t.Run("ManyCells", func(t *testing.T) {
			testManyCells(t, newMatrix(t, factory))
		})

		t.Run("RowLength", func(t *testing.T) {
			testRowLength(t, newMatrix(t, factory))
		})

		t.Run("Row", func(t *testing.T) {
			testRow(t, newMatrix(t, factory))
		})

		t.Run("RowN", func(t *testing.T) {
			testRowN(t, newMatrix(t, factory))
		})

		t.Run("ZeroRemoves", func(t *testing.T) {
			testZeroRemoves(t, newMatrix(t, factory))
		})

		t.Run("Wraparound", func(t *testing.T) {
			testWraparound(t, newMatrix(t, factory))
		})

		t.Run("InvalidArguments", func(t *testing.T) {
			testInvalidArguments(t, newMatrix(t, factory))
		})

		t.Run("Closed", func(t *testing.T) {
			testClosed(t, newMatrix(t, factory))
		})

		t.Run("ConcurrentIncr", func(t *testing.T) {
			testConcurrentIncr(t, newMatrix(t, factory))
		})

		t.Run("ConcurrentRows", func(t *testing.T) {
			testConcurrentRows(t, newMatrix(t, factory))
		})
	})
}

// RunPersistenceTests runs the tests for matrices that keep their rows in a
// backing file. open is called repeatedly with the same path.
func RunPersistenceTests(t *testing.T, name string, open OpenFunc) {
	t.Run(name, func(t *testing.T) {
		t.Run("ReopenAfterClose", func(t *testing.T) {
			testReopenAfterClose(t, open, filepath.Join(t.TempDir(), "m.smx"))
		})

		t.Run("FlushAndReopen", func(t *testing.T) {
			testFlushAndReopen(t, open, filepath.Join(t.TempDir(), "m.smx"))
		})

		t.Run("SmallCache", func(t *testing.T) {
			testSmallCache(t, open, filepath.Join(t.TempDir(), "m.smx"))
		})

		t.Run("RemovedRowsStayRemoved", func(t *testing.T) {
			testRemovedRowsStayRemoved(t, open, filepath.Join(t.TempDir(), "m.smx"))
		})

		t.Run("Compact", func(t *testing.T) {
			testCompact(t, open, filepath.Join(t.TempDir(), "m.smx"))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// Checks if the matrix supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, m matrix.IMatrix, feature matrix.Feature) {
	if !m.SupportsFeature(feature) {
		t.Skip()
	}
}

func newMatrix(t testing.TB, factory matrix.Factory) matrix.IMatrix {
	m, err := factory()
	if err != nil {
		t.Fatalf("Failed to create matrix: %v", err)
	}
	return m
}

func mustOpen(t testing.TB, open OpenFunc, path string) matrix.IMatrix {
	m, err := open(path)
	if err != nil {
		t.Fatalf("Failed to open matrix %s: %v", path, err)
	}
	return m
}

func expectValue(t testing.TB, m matrix.IMatrix, row, col int, want int64) {
	t.Helper()
	got, err := m.Get(row, col)
	if err != nil {
		t.Errorf("Get(%d, %d) failed: %v", row, col, err)
		return
	}
	if got != want {
		t.Errorf("Expected Get(%d, %d) = %d, got %d", row, col, want, got)
	}
}

func expectRowLength(t testing.TB, m matrix.IMatrix, row, want int) {
	t.Helper()
	got, err := m.RowLength(row)
	if err != nil {
		t.Errorf("RowLength(%d) failed: %v", row, err)
		return
	}
	if got != want {
		t.Errorf("Expected RowLength(%d) = %d, got %d", row, want, got)
	}
}

func mustDo(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testSetGet(t *testing.T, m matrix.IMatrix) {
	defer m.Close()

	requireFeature(t, m, matrix.FeatureCellOps)

	mustDo(t, m.Set(0, 0, 42))
	mustDo(t, m.Set(0, 1, 23))
	mustDo(t, m.Set(1, 0, 17))

	expectValue(t, m, 0, 0, 42)
	expectValue(t, m, 0, 1, 23)
	expectValue(t, m, 1, 0, 17)
	expectValue(t, m, 1, 1, 0)
	expectValue(t, m, 5, 5, 0)

	mustDo(t, m.Set(0, 0, -7))
	expectValue(t, m, 0, 0, -7)

	if math.MaxInt > matrix.MaxIndex {
		maxIndex := int(maxIndex64)
		mustDo(t, m.Set(maxIndex, maxIndex, 1))
		expectValue(t, m, maxIndex, maxIndex, 1)
	}
}

func testIncrAfterSetZero(t *testing.T, m matrix.IMatrix) {
	defer m.Close()

	requireFeature(t, m, matrix.FeatureCellOps)

	mustDo(t, m.Set(3, 4, 0))
	mustDo(t, m.Incr(3, 4, 1))
	expectValue(t, m, 3, 4, 1)
}

func testIncrDecr(t *testing.T, m matrix.IMatrix) {
	defer m.Close()

	requireFeature(t, m, matrix.FeatureCellOps)

	mustDo(t, m.Incr(2, 2, 1))
	mustDo(t, m.Incr(2, 2, 5))
	expectValue(t, m, 2, 2, 6)

	mustDo(t, m.Decr(2, 2, 2))
	expectValue(t, m, 2, 2, 4)

	mustDo(t, m.Decr(2, 3, 3))
	expectValue(t, m, 2, 3, -3)

	mustDo(t, m.Incr(2, 2, -4))
	expectValue(t, m, 2, 2, 0)
	expectRowLength(t, m, 2, 1)

	mustDo(t, m.Incr(2, 9, 0))
	expectRowLength(t, m, 2, 1)
}

func testManyCells(t *testing.T, m matrix.IMatrix) {
	defer m.Close()

	requireFeature(t, m, matrix.FeatureCellOps)

	const n = 100
	for r := 0; r < n; r++ {
		for c := 0; c < n; c += 7 {
			mustDo(t, m.Set(r, c, int64(r*n+c+1)))
		}
	}

	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			want := int64(0)
			if c%7 == 0 {
				want = int64(r*n + c + 1)
			}
			expectValue(t, m, r, c, want)
		}
	}
}

func testRowLength(t *testing.T, m matrix.IMatrix) {
	defer m.Close()

	requireFeature(t, m, matrix.FeatureCellOps|matrix.FeatureRowOps)

	expectRowLength(t, m, 7, 0)

	for i := 0; i < 1000; i++ {
		mustDo(t, m.Incr(7, i, 1))
	}
	expectRowLength(t, m, 7, 1000)

	// incrementing existing cells doesn't change the length
	for i := 0; i < 1000; i++ {
		mustDo(t, m.Incr(7, i, 1))
	}
	expectRowLength(t, m, 7, 1000)
	expectValue(t, m, 7, 999, 2)
	expectRowLength(t, m, 8, 0)
}

func testRow(t *testing.T, m matrix.IMatrix) {
	defer m.Close()

	requireFeature(t, m, matrix.FeatureCellOps|matrix.FeatureRowOps)

	cols := []int{900, 5, 77, 0, 123456, 3}
	for i, c := range cols {
		mustDo(t, m.Set(1, c, int64(i+1)))
	}

	entries, err := m.Row(1)
	mustDo(t, err)
	if len(entries) != len(cols) {
		t.Fatalf("Expected %d entries, got %d", len(cols), len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i-1].Col >= entries[i].Col {
			t.Errorf("Entries not in ascending column order at position %d: %v", i, entries)
		}
	}
	for _, e := range entries {
		expectValue(t, m, 1, int(e.Col), e.Value)
	}

	// returned entries are a snapshot
	entries[0].Value = 999
	expectValue(t, m, 1, int(entries[0].Col), 4)

	empty, err := m.Row(2)
	mustDo(t, err)
	if empty == nil || len(empty) != 0 {
		t.Errorf("Expected an empty non-nil slice for an empty row, got %v", empty)
	}
}

func testRowN(t *testing.T, m matrix.IMatrix) {
	defer m.Close()

	requireFeature(t, m, matrix.FeatureCellOps|matrix.FeatureRowOps)

	for c := 0; c < 500; c++ {
		mustDo(t, m.Set(4, 2*c, int64(c)+1))
	}

	entries, err := m.RowN(4, 230)
	mustDo(t, err)
	if len(entries) != 230 {
		t.Fatalf("Expected 230 entries, got %d", len(entries))
	}
	for i, e := range entries {
		if e.Col != uint32(2*i) || e.Value != int64(i)+1 {
			t.Errorf("Unexpected entry %d: %+v", i, e)
		}
	}

	entries, err = m.RowN(4, 1000)
	mustDo(t, err)
	if len(entries) != 500 {
		t.Errorf("Expected 500 entries, got %d", len(entries))
	}

	entries, err = m.RowN(4, 0)
	mustDo(t, err)
	if len(entries) != 0 {
		t.Errorf("Expected no entries for limit 0, got %d", len(entries))
	}

	if _, err := m.RowN(4, -1); !errors.Is(err, matrix.ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument for a negative limit, got %v", err)
	}
}

func testZeroRemoves(t *testing.T, m matrix.IMatrix) {
	defer m.Close()

	requireFeature(t, m, matrix.FeatureCellOps|matrix.FeatureRowOps)

	mustDo(t, m.Set(9, 1, 5))
	mustDo(t, m.Set(9, 2, 6))
	mustDo(t, m.Set(9, 1, 0))
	expectRowLength(t, m, 9, 1)

	mustDo(t, m.Decr(9, 2, 6))
	expectRowLength(t, m, 9, 0)
	expectValue(t, m, 9, 2, 0)

	// the row can be used again after it became empty
	mustDo(t, m.Set(9, 3, 1))
	expectRowLength(t, m, 9, 1)
}

func testWraparound(t *testing.T, m matrix.IMatrix) {
	defer m.Close()

	requireFeature(t, m, matrix.FeatureCellOps)

	mustDo(t, m.Set(0, 0, math.MaxInt64))
	mustDo(t, m.Incr(0, 0, 1))
	expectValue(t, m, 0, 0, math.MinInt64)

	mustDo(t, m.Decr(0, 0, 1))
	expectValue(t, m, 0, 0, math.MaxInt64)

	mustDo(t, m.Decr(0, 1, math.MinInt64))
	expectValue(t, m, 0, 1, math.MinInt64)
}

func testInvalidArguments(t *testing.T, m matrix.IMatrix) {
	defer m.Close()

	checks := map[string]error{}
	checks["Get(-1, 0)"] = func() error { _, err := m.Get(-1, 0); return err }()
	checks["Get(0, -1)"] = func() error { _, err := m.Get(0, -1); return err }()
	checks["Set(-1, 0)"] = m.Set(-1, 0, 1)
	checks["Incr(0, -5)"] = m.Incr(0, -5, 1)
	checks["Decr(-2, 0)"] = m.Decr(-2, 0, 1)
	checks["RowLength(-1)"] = func() error { _, err := m.RowLength(-1); return err }()
	checks["Row(-1)"] = func() error { _, err := m.Row(-1); return err }()
	checks["RowN(-1, 1)"] = func() error { _, err := m.RowN(-1, 1); return err }()
	if math.MaxInt > matrix.MaxIndex {
		tooBig := int(maxIndex64 + 1)
		checks["Set(MaxIndex+1, 0)"] = m.Set(tooBig, 0, 1)
		checks["Get(0, MaxIndex+1)"] = func() error { _, err := m.Get(0, tooBig); return err }()
	}

	for name, err := range checks {
		if !errors.Is(err, matrix.ErrInvalidArgument) {
			t.Errorf("Expected ErrInvalidArgument for %s, got %v", name, err)
		}
	}

	if m.SupportsFeature(matrix.FeatureCacheControl) {
		if err := m.SetCacheSize(0); !errors.Is(err, matrix.ErrInvalidArgument) {
			t.Errorf("Expected ErrInvalidArgument for SetCacheSize(0), got %v", err)
		}
	} else if err := m.SetCacheSize(10); !errors.Is(err, matrix.ErrUnsupported) {
		t.Errorf("Expected ErrUnsupported for SetCacheSize without a cache, got %v", err)
	}
}

func testClosed(t *testing.T, m matrix.IMatrix) {
	mustDo(t, m.Set(0, 0, 1))
	mustDo(t, m.Close())

	if err := m.Close(); err != nil {
		t.Errorf("Closing a closed matrix should be a no-op, got %v", err)
	}

	checks := map[string]error{
		"Get":          func() error { _, err := m.Get(0, 0); return err }(),
		"Set":          m.Set(0, 0, 1),
		"Incr":         m.Incr(0, 0, 1),
		"Decr":         m.Decr(0, 0, 1),
		"RowLength":    func() error { _, err := m.RowLength(0); return err }(),
		"Row":          func() error { _, err := m.Row(0); return err }(),
		"RowN":         func() error { _, err := m.RowN(0, 1); return err }(),
		"SetCacheSize": m.SetCacheSize(10),
		"Flush":        m.Flush(),
		"Compact":      m.Compact(),
		"Info":         func() error { _, err := m.Info(); return err }(),

		// a closed matrix fails as closed before it looks at the arguments
		"Get(invalid)":          func() error { _, err := m.Get(-1, 0); return err }(),
		"Set(invalid)":          m.Set(0, -1, 1),
		"Incr(invalid)":         m.Incr(-1, -1, 1),
		"Decr(invalid)":         m.Decr(-1, 0, 1),
		"RowLength(invalid)":    func() error { _, err := m.RowLength(-1); return err }(),
		"Row(invalid)":          func() error { _, err := m.Row(-1); return err }(),
		"RowN(invalid)":         func() error { _, err := m.RowN(0, -1); return err }(),
		"SetCacheSize(invalid)": m.SetCacheSize(0),
	}
	for name, err := range checks {
		if !errors.Is(err, matrix.ErrClosed) {
			t.Errorf("Expected ErrClosed for %s after Close, got %v", name, err)
		}
	}
}

func testConcurrentIncr(t *testing.T, m matrix.IMatrix) {
	defer m.Close()

	requireFeature(t, m, matrix.FeatureCellOps)

	const (
		workers = 8
		perWork = 500
	)

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for i := 0; i < perWork; i++ {
				if err := m.Incr(i%10, i%3, 2); err != nil {
					return err
				}
				if err := m.Decr(i%10, i%3, 1); err != nil {
					return err
				}
			}
			return nil
		})
	}
	mustDo(t, g.Wait())

	var total int64
	for r := 0; r < 10; r++ {
		for c := 0; c < 3; c++ {
			v, err := m.Get(r, c)
			mustDo(t, err)
			total += v
		}
	}
	if total != workers*perWork {
		t.Errorf("Expected a total of %d, got %d (lost updates)", workers*perWork, total)
	}
}

func testConcurrentRows(t *testing.T, m matrix.IMatrix) {
	defer m.Close()

	requireFeature(t, m, matrix.FeatureCellOps|matrix.FeatureRowOps)

	var (
		g       errgroup.Group
		readers atomic.Int64
	)

	// writers fill and empty the same rows while readers enumerate them
	for w := 0; w < 4; w++ {
		g.Go(func() error {
			for i := 0; i < 300; i++ {
				if err := m.Incr(i%5, w, 1); err != nil {
					return err
				}
				if err := m.Decr(i%5, w, 1); err != nil {
					return err
				}
			}
			return m.Incr(100, w, 1)
		})
	}
	for r := 0; r < 4; r++ {
		g.Go(func() error {
			for i := 0; i < 300; i++ {
				entries, err := m.Row(i % 5)
				if err != nil {
					return err
				}
				for j := 1; j < len(entries); j++ {
					if entries[j-1].Col >= entries[j].Col {
						return errors.New("row entries out of order")
					}
				}
				readers.Add(1)
			}
			return nil
		})
	}
	mustDo(t, g.Wait())

	if readers.Load() != 4*300 {
		t.Errorf("Expected %d reads, got %d", 4*300, readers.Load())
	}
	for r := 0; r < 5; r++ {
		expectRowLength(t, m, r, 0)
	}
	expectRowLength(t, m, 100, 4)
}

// --------------------------------------------------------------------------
// Persistence test functions
// --------------------------------------------------------------------------

func testReopenAfterClose(t *testing.T, open OpenFunc, path string) {
	m := mustOpen(t, open, path)
	requireFeature(t, m, matrix.FeaturePersistence)

	mustDo(t, m.Set(0, 0, 42))
	mustDo(t, m.Set(0, 1, 23))
	mustDo(t, m.Set(1, 0, 17))
	for i := 0; i < 1000; i++ {
		mustDo(t, m.Incr(2, i, int64(i)+1))
	}
	mustDo(t, m.Close())

	m = mustOpen(t, open, path)
	defer m.Close()

	expectValue(t, m, 0, 0, 42)
	expectValue(t, m, 0, 1, 23)
	expectValue(t, m, 1, 0, 17)
	expectRowLength(t, m, 2, 1000)
	expectValue(t, m, 2, 999, 1000)
}

func testFlushAndReopen(t *testing.T, open OpenFunc, path string) {
	m := mustOpen(t, open, path)
	requireFeature(t, m, matrix.FeaturePersistence)

	mustDo(t, m.Set(3, 3, 3))
	mustDo(t, m.Flush())
	mustDo(t, m.Set(3, 4, 4))
	mustDo(t, m.Close())

	m = mustOpen(t, open, path)
	defer m.Close()

	expectValue(t, m, 3, 3, 3)
	expectValue(t, m, 3, 4, 4)
}

func testSmallCache(t *testing.T, open OpenFunc, path string) {
	m := mustOpen(t, open, path)
	requireFeature(t, m, matrix.FeaturePersistence|matrix.FeatureCacheControl)

	mustDo(t, m.SetCacheSize(2))

	const rows = 50
	for r := 0; r < rows; r++ {
		for c := 0; c < 20; c++ {
			mustDo(t, m.Incr(r, c, int64(r+c+1)))
		}
	}
	// touch all rows again to force loads of evicted rows
	for r := 0; r < rows; r++ {
		mustDo(t, m.Incr(r, 0, 1))
	}

	info, err := m.Info()
	mustDo(t, err)
	if info.Cache == nil || info.Cache.Resident > 2 {
		t.Errorf("Expected at most 2 resident rows, got %+v", info.Cache)
	}

	mustDo(t, m.Close())

	m = mustOpen(t, open, path)
	defer m.Close()

	for r := 0; r < rows; r++ {
		expectRowLength(t, m, r, 20)
		expectValue(t, m, r, 0, int64(r+2))
		expectValue(t, m, r, 19, int64(r+20))
	}
}

func testRemovedRowsStayRemoved(t *testing.T, open OpenFunc, path string) {
	m := mustOpen(t, open, path)
	requireFeature(t, m, matrix.FeaturePersistence)

	mustDo(t, m.Set(5, 1, 1))
	mustDo(t, m.Set(6, 1, 1))
	mustDo(t, m.Close())

	m = mustOpen(t, open, path)
	mustDo(t, m.Set(5, 1, 0))
	mustDo(t, m.Close())

	m = mustOpen(t, open, path)
	defer m.Close()

	expectRowLength(t, m, 5, 0)
	expectRowLength(t, m, 6, 1)
}

func testCompact(t *testing.T, open OpenFunc, path string) {
	m := mustOpen(t, open, path)
	requireFeature(t, m, matrix.FeatureCompaction)

	for i := 0; i < 20; i++ {
		mustDo(t, m.Incr(0, i, 1))
		mustDo(t, m.Flush())
	}

	before, err := m.Info()
	mustDo(t, err)
	mustDo(t, m.Compact())
	after, err := m.Info()
	mustDo(t, err)

	if after.File.TotalBytes >= before.File.TotalBytes {
		t.Errorf("Expected compaction to shrink the file, %d >= %d", after.File.TotalBytes, before.File.TotalBytes)
	}
	expectRowLength(t, m, 0, 20)

	mustDo(t, m.Set(0, 50, 5))
	mustDo(t, m.Close())

	m = mustOpen(t, open, path)
	defer m.Close()
	expectRowLength(t, m, 0, 21)
	expectValue(t, m, 0, 50, 5)
}
