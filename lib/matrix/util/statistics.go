// Package util
//
// This file implements a histogram for row lengths. The histogram uses exponential
// bucket sizing to cover rows from a single entry to millions of entries with a
// fixed, small memory footprint. It is used to report the row length distribution
// of a matrix without keeping every sample.
package util

import (
	"math"
	"sync"
)

// ----------------------------------------------------------------------------
// LengthHistogram
// ----------------------------------------------------------------------------

// lengthBoundaries are the upper bounds of the histogram buckets (powers of four)
var lengthBoundaries = []int{
	1, 4, 16, 64, 256, // short rows
	1024, 4096, 16384, 65536, // medium rows
	262144, 1048576, 4194304, 16777216, // long rows
}

// LengthHistogram tracks the distribution of row lengths.
// Samples are counted in buckets, the exact values are not kept.
type LengthHistogram struct {
	mutex   sync.RWMutex
	buckets []int64 // Count of samples in each bucket
	count   int64   // Total number of samples
	sum     int64   // Sum of all samples
	max     int     // Largest sample
}

// NewLengthHistogram creates a new empty histogram
func NewLengthHistogram() *LengthHistogram {
	return &LengthHistogram{
		buckets: make([]int64, len(lengthBoundaries)+1), // +1 for larger values
	}
}

// AddSample adds a row length to the histogram
//
// Thread-safe: This method is safe for concurrent use
func (h *LengthHistogram) AddSample(length int) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	bucketIndex := len(lengthBoundaries)
	for i, boundary := range lengthBoundaries {
		if length <= boundary {
			bucketIndex = i
			break
		}
	}

	h.buckets[bucketIndex]++
	h.count++
	h.sum += int64(length)
	if length > h.max {
		h.max = length
	}
}

// Count returns the total number of samples
//
// Thread-safe: This method is safe for concurrent use
func (h *LengthHistogram) Count() int64 {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.count
}

// Sum returns the sum of all samples
//
// Thread-safe: This method is safe for concurrent use
func (h *LengthHistogram) Sum() int64 {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.sum
}

// Average returns the average sample
//
// Thread-safe: This method is safe for concurrent use
func (h *LengthHistogram) Average() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if h.count == 0 {
		return 0
	}
	return int(h.sum / h.count)
}

// PercentileEstimate returns an estimate for the given percentile (0-100).
// The estimate is the middle of the bucket the percentile falls into, capped
// by the largest sample.
//
// Thread-safe: This method is safe for concurrent use
func (h *LengthHistogram) PercentileEstimate(percentile int) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if h.count == 0 || percentile < 0 || percentile > 100 {
		return 0
	}

	targetCount := int64(math.Ceil(float64(h.count) * float64(percentile) / 100.0))
	if targetCount == 0 {
		targetCount = 1
	}

	var cumulativeCount int64
	for i, count := range h.buckets {
		cumulativeCount += count
		if cumulativeCount < targetCount {
			continue
		}

		var estimate int
		switch {
		case i == 0:
			estimate = lengthBoundaries[0]
		case i < len(lengthBoundaries):
			estimate = (lengthBoundaries[i-1] + 1 + lengthBoundaries[i]) / 2
		default:
			estimate = lengthBoundaries[len(lengthBoundaries)-1] * 2
		}
		return min(estimate, h.max)
	}

	return h.max
}

// MedianEstimate estimates the median row length
//
// Thread-safe: This method is safe for concurrent use
func (h *LengthHistogram) MedianEstimate() int {
	return h.PercentileEstimate(50)
}

// Distribution returns the bucket boundaries and the percentage of samples in each bucket.
// The percentages slice has one more element than the boundaries slice for values
// larger than the last boundary.
//
// Thread-safe: This method is safe for concurrent use
func (h *LengthHistogram) Distribution() ([]int, []float64) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	percentages := make([]float64, len(h.buckets))
	if h.count == 0 {
		return lengthBoundaries, percentages
	}

	for i, count := range h.buckets {
		percentages[i] = float64(count) * 100.0 / float64(h.count)
	}
	return lengthBoundaries, percentages
}
