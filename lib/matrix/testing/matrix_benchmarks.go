package testing

import (
	"math/rand"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/sMX/lib/matrix"
)

// RunMatrixBenchmarks runs all benchmarks for a matrix implementation
func RunMatrixBenchmarks(b *testing.B, name string, factory matrix.Factory) {
	b.Run(name, func(b *testing.B) {
		b.Run("Set", func(b *testing.B) {
			benchmarkSet(b, newMatrix(b, factory))
		})

		b.Run("Get", func(b *testing.B) {
			benchmarkGet(b, newMatrix(b, factory))
		})

		b.Run("Incr(hot)", func(b *testing.B) {
			benchmarkIncrHot(b, newMatrix(b, factory))
		})

		b.Run("Incr(spread)", func(b *testing.B) {
			benchmarkIncrSpread(b, newMatrix(b, factory))
		})

		b.Run("Row", func(b *testing.B) {
			benchmarkRow(b, newMatrix(b, factory))
		})

		b.Run("MixedUsage", func(b *testing.B) {
			benchmarkMixedUsage(b, newMatrix(b, factory))
		})
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

// Benchmark for Set operation on distinct cells
func benchmarkSet(b *testing.B, m matrix.IMatrix) {

	b.Cleanup(func() {
		m.Close()
	})

	requireFeature(b, m, matrix.FeatureCellOps)

	var counter atomic.Int64

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			i := int(counter.Add(1))
			_ = m.Set(i%1000, i/1000, int64(i))
		}
	})
}

// Parallel benchmarking for Get operation
func benchmarkGet(b *testing.B, m matrix.IMatrix) {

	b.Cleanup(func() {
		m.Close()
	})

	requireFeature(b, m, matrix.FeatureCellOps)

	// Prepare data
	for i := 0; i < 10_000; i++ {
		_ = m.Set(i%100, i/100, int64(i)+1)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			_, _ = m.Get(counter%100, (counter/100)%100)
			counter++
		}
	})
}

// Benchmark for concurrent increments of a single cell
func benchmarkIncrHot(b *testing.B, m matrix.IMatrix) {

	b.Cleanup(func() {
		m.Close()
	})

	requireFeature(b, m, matrix.FeatureCellOps)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = m.Incr(0, 0, 1)
		}
	})
}

// Benchmark for increments of random cells, the access pattern of co-occurrence counting
func benchmarkIncrSpread(b *testing.B, m matrix.IMatrix) {

	b.Cleanup(func() {
		m.Close()
	})

	requireFeature(b, m, matrix.FeatureCellOps)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		rnd := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			_ = m.Incr(rnd.Intn(5000), rnd.Intn(5000), 1)
		}
	})
}

// Benchmark for reading a row with 1000 entries
func benchmarkRow(b *testing.B, m matrix.IMatrix) {

	b.Cleanup(func() {
		m.Close()
	})

	requireFeature(b, m, matrix.FeatureCellOps|matrix.FeatureRowOps)

	for c := 0; c < 1000; c++ {
		_ = m.Set(1, c, int64(c)+1)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_, _ = m.Row(1)
		}
	})
}

// Benchmark for a realistic mix of operations (70% incr, 20% get, 10% row)
func benchmarkMixedUsage(b *testing.B, m matrix.IMatrix) {

	b.Cleanup(func() {
		m.Close()
	})

	requireFeature(b, m, matrix.FeatureCellOps|matrix.FeatureRowOps)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		rnd := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			row, col := rnd.Intn(1000), rnd.Intn(1000)
			switch op := rnd.Intn(10); {
			case op < 7:
				_ = m.Incr(row, col, 1)
			case op < 9:
				_, _ = m.Get(row, col)
			default:
				_, _ = m.RowN(row, 100)
			}
		}
	})
}
