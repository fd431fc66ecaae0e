package util

import (
	"sync"
	"testing"
)

func TestLengthHistogramEmpty(t *testing.T) {
	h := NewLengthHistogram()

	if h.Count() != 0 {
		t.Errorf("Empty histogram should have count 0, got %d", h.Count())
	}
	if h.MedianEstimate() != 0 {
		t.Errorf("Empty histogram should have median 0, got %d", h.MedianEstimate())
	}
	if h.Average() != 0 {
		t.Errorf("Empty histogram should have average 0, got %d", h.Average())
	}

	_, percentages := h.Distribution()
	for i, p := range percentages {
		if p != 0 {
			t.Errorf("Bucket %d of empty histogram should be 0%%, got %f", i, p)
		}
	}
}

func TestLengthHistogramEstimates(t *testing.T) {
	h := NewLengthHistogram()

	// 90 short rows and 10 long rows
	for i := 0; i < 90; i++ {
		h.AddSample(3)
	}
	for i := 0; i < 10; i++ {
		h.AddSample(5000)
	}

	if h.Count() != 100 {
		t.Fatalf("Expected 100 samples, got %d", h.Count())
	}
	if h.Sum() != 90*3+10*5000 {
		t.Errorf("Unexpected sum %d", h.Sum())
	}

	// 3 falls into the bucket (1, 4]
	if median := h.MedianEstimate(); median < 2 || median > 4 {
		t.Errorf("Median should be estimated in (1, 4], got %d", median)
	}

	// 5000 falls into the bucket (4096, 16384] but is capped by the largest sample
	if p99 := h.PercentileEstimate(99); p99 != 5000 {
		t.Errorf("P99 should be capped at the max sample 5000, got %d", p99)
	}

	if invalid := h.PercentileEstimate(101); invalid != 0 {
		t.Errorf("Invalid percentile should return 0, got %d", invalid)
	}

	boundaries, percentages := h.Distribution()
	if len(percentages) != len(boundaries)+1 {
		t.Fatalf("Expected %d buckets, got %d", len(boundaries)+1, len(percentages))
	}
	var total float64
	for _, p := range percentages {
		total += p
	}
	if total < 99.99 || total > 100.01 {
		t.Errorf("Percentages should sum up to 100, got %f", total)
	}
}

func TestLengthHistogramConcurrent(t *testing.T) {
	h := NewLengthHistogram()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				h.AddSample(w*100 + i)
				_ = h.MedianEstimate()
			}
		}(w)
	}
	wg.Wait()

	if h.Count() != 8000 {
		t.Errorf("Expected 8000 samples, got %d", h.Count())
	}
}
