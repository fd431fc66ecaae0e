package util

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/sMX/lib/matrix"
	"github.com/dustin/go-humanize"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var perfLogger = logger.GetLogger("perf")

// PerfOptions configures a performance test run
type PerfOptions struct {
	Threads   int      // Number of concurrent workers
	Ops       int      // Number of operations per test
	Rows      int      // Number of distinct rows touched
	Cols      int      // Number of distinct columns per row
	RowOffset int      // Index of the first row used
	Rate      int      // Maximum operations per second over all workers (0 = unlimited)
	Skip      []string // Names of tests to skip
}

// PerfResult is the result of a single performance test
type PerfResult struct {
	Test      string
	Skipped   bool
	Count     int64
	Errors    int64
	Elapsed   time.Duration
	Mean      time.Duration
	P50       time.Duration
	P99       time.Duration
	OpsPerSec float64
}

// perfTest is a named operation, i is the number of the operation
type perfTest struct {
	name string
	op   func(m matrix.IMatrix, o PerfOptions, i int) error
}

// cell maps operation i to a cell, spreading operations over all rows first
func (o PerfOptions) cell(i int) (int, int) {
	return o.RowOffset + i%o.Rows, (i / o.Rows) % o.Cols
}

var perfTests = []perfTest{
	{"set", func(m matrix.IMatrix, o PerfOptions, i int) error {
		row, col := o.cell(i)
		return m.Set(row, col, int64(i+1))
	}},
	{"get", func(m matrix.IMatrix, o PerfOptions, i int) error {
		row, col := o.cell(i)
		_, err := m.Get(row, col)
		return err
	}},
	{"incr", func(m matrix.IMatrix, o PerfOptions, i int) error {
		row, col := o.cell(i)
		return m.Incr(row, col, 1)
	}},
	{"incr-hot", func(m matrix.IMatrix, o PerfOptions, _ int) error {
		return m.Incr(o.RowOffset, 0, 1)
	}},
	{"row", func(m matrix.IMatrix, o PerfOptions, i int) error {
		row, _ := o.cell(i)
		_, err := m.Row(row)
		return err
	}},
	{"mixed", func(m matrix.IMatrix, o PerfOptions, i int) error {
		row, col := o.cell(i)
		var err error
		switch i % 4 {
		case 0:
			err = m.Set(row, col, int64(i))
		case 1:
			_, err = m.Get(row, col)
		case 2:
			err = m.Incr(row, col, 1)
		case 3:
			_, err = m.RowLength(row)
		}
		return err
	}},
}

// PerfTestNames returns the names of all performance tests in execution order
func PerfTestNames() []string {
	names := make([]string, len(perfTests))
	for i, t := range perfTests {
		names[i] = t.name
	}
	return names
}

// RunPerf runs all performance tests against m and prints a line per test to out.
// The tests write to the rows [RowOffset, RowOffset+Rows).
func RunPerf(ctx context.Context, m matrix.IMatrix, o PerfOptions, out io.Writer) ([]PerfResult, error) {
	if o.Threads < 1 || o.Ops < 1 || o.Rows < 1 || o.Cols < 1 {
		return nil, fmt.Errorf("threads, ops, rows and cols must be positive")
	}

	results := make([]PerfResult, 0, len(perfTests))
	for _, t := range perfTests {
		if slices.Contains(o.Skip, t.name) {
			results = append(results, PerfResult{Test: t.name, Skipped: true})
			printPerfResult(out, results[len(results)-1])
			continue
		}

		result, err := runPerfTest(ctx, m, o, t)
		if err != nil {
			return results, err
		}
		results = append(results, result)
		printPerfResult(out, result)
	}
	return results, nil
}

// runPerfTest runs o.Ops operations of t on o.Threads workers
func runPerfTest(ctx context.Context, m matrix.IMatrix, o PerfOptions, t perfTest) (PerfResult, error) {
	timer := metrics.NewTimer()
	defer timer.Stop()

	var limiter *rate.Limiter
	if o.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(o.Rate), max(1, o.Rate/100))
	}

	var next, errCount atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	start := time.Now()

	for w := 0; w < o.Threads; w++ {
		g.Go(func() error {
			for {
				i := next.Add(1) - 1
				if i >= int64(o.Ops) {
					return nil
				}
				if limiter != nil {
					if err := limiter.Wait(ctx); err != nil {
						return err
					}
				}

				opStart := time.Now()
				if err := t.op(m, o, int(i)); err != nil {
					if errCount.Add(1) == 1 {
						perfLogger.Warningf("(%s) - first error: %v", t.name, err)
					}
				}
				timer.UpdateSince(opStart)
			}
		})
	}

	if err := g.Wait(); err != nil {
		return PerfResult{}, err
	}
	elapsed := time.Since(start)

	ps := timer.Percentiles([]float64{0.5, 0.99})
	return PerfResult{
		Test:      t.name,
		Count:     timer.Count(),
		Errors:    errCount.Load(),
		Elapsed:   elapsed,
		Mean:      time.Duration(timer.Mean()),
		P50:       time.Duration(ps[0]),
		P99:       time.Duration(ps[1]),
		OpsPerSec: float64(timer.Count()) / max(elapsed.Seconds(), 1e-9),
	}, nil
}

// printPerfResult prints the result of a performance test in a formatted way
func printPerfResult(out io.Writer, r PerfResult) {
	if r.Skipped {
		_, _ = fmt.Fprintf(out, "%-12sskipped\n", r.Test)
		return
	}
	_, _ = fmt.Fprintf(out, "%-12s%s ops in %s\t%s ops/sec\tmean %s\tp50 %s\tp99 %s\terrors %s\n",
		r.Test,
		humanize.Comma(r.Count),
		r.Elapsed.Round(time.Millisecond),
		humanize.CommafWithDigits(r.OpsPerSec, 0),
		r.Mean, r.P50, r.P99,
		humanize.Comma(r.Errors),
	)
}

// WritePerfCSV writes the results to a CSV file, extra holds additional columns
// (e.g. the transport) that are repeated on every line
func WritePerfCSV(path string, results []PerfResult, extra map[string]string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	extraKeys := make([]string, 0, len(extra))
	for k := range extra {
		extraKeys = append(extraKeys, k)
	}
	slices.Sort(extraKeys)

	header := append([]string{"Test", "Skipped", "Count", "Errors", "ElapsedNs", "MeanNs", "P50Ns", "P99Ns", "OpsPerSec"}, extraKeys...)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, r := range results {
		row := []string{
			r.Test,
			strconv.FormatBool(r.Skipped),
			strconv.FormatInt(r.Count, 10),
			strconv.FormatInt(r.Errors, 10),
			strconv.FormatInt(r.Elapsed.Nanoseconds(), 10),
			strconv.FormatInt(r.Mean.Nanoseconds(), 10),
			strconv.FormatInt(r.P50.Nanoseconds(), 10),
			strconv.FormatInt(r.P99.Nanoseconds(), 10),
			strconv.FormatFloat(r.OpsPerSec, 'f', 0, 64),
		}
		for _, k := range extraKeys {
			row = append(row, extra[k])
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %w", r.Test, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// --------------------------------------------------------------------------
// Flags
// --------------------------------------------------------------------------

// SetupPerfFlags adds the perf tool flags to a command
func SetupPerfFlags(cmd *cobra.Command) {
	key := "threads"
	cmd.Flags().Int(key, 10, WrapString("Number of threads to use for the benchmark"))
	key = "ops"
	cmd.Flags().Int(key, 100_000, WrapString("Number of operations per test"))
	key = "rows"
	cmd.Flags().Int(key, 1000, WrapString("How many different rows to use for the tests"))
	key = "cols"
	cmd.Flags().Int(key, 100, WrapString("How many different columns per row to use for the tests"))
	key = "row-offset"
	cmd.Flags().Int(key, 1_000_000_000, WrapString("Index of the first row used by the tests"))
	key = "rate"
	cmd.Flags().Int(key, 0, WrapString("Maximum operations per second over all threads (0 = unlimited)"))
	key = "skip"
	cmd.Flags().StringSlice(key, nil, WrapString("Tests to skip (comma separated - e.g. set,get)"))
	key = "csv"
	cmd.Flags().String(key, "", WrapString("Optional path to save benchmark results as CSV"))
}

// GetPerfOptions reads the perf tool options from viper
func GetPerfOptions() PerfOptions {
	return PerfOptions{
		Threads:   viper.GetInt("threads"),
		Ops:       viper.GetInt("ops"),
		Rows:      viper.GetInt("rows"),
		Cols:      viper.GetInt("cols"),
		RowOffset: viper.GetInt("row-offset"),
		Rate:      viper.GetInt("rate"),
		Skip:      viper.GetStringSlice("skip"),
	}
}
