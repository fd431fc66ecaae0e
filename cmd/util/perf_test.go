package util

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/ValentinKolb/sMX/lib/matrix/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunPerf(t *testing.T) {
	m := engine.NewMemory()
	defer m.Close()

	opts := PerfOptions{Threads: 4, Ops: 400, Rows: 10, Cols: 5, RowOffset: 100, Skip: []string{"row", "mixed"}}
	var out bytes.Buffer
	results, err := RunPerf(context.Background(), m, opts, &out)
	require.NoError(t, err)
	require.Len(t, results, len(PerfTestNames()))

	for _, r := range results {
		if r.Test == "row" || r.Test == "mixed" {
			assert.True(t, r.Skipped, r.Test)
			continue
		}
		assert.Equal(t, int64(400), r.Count, r.Test)
		assert.Zero(t, r.Errors, r.Test)
	}

	assert.Contains(t, out.String(), "row         skipped")

	// incr-hot adds every operation to a single cell
	v, err := m.Get(100, 0)
	require.NoError(t, err)
	assert.Greater(t, v, int64(400))

	// Nothing outside the configured rows was touched
	n, err := m.RowLength(99)
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = m.RowLength(110)
	require.NoError(t, err)
	assert.Zero(t, n)

	path := filepath.Join(t.TempDir(), "perf.csv")
	require.NoError(t, WritePerfCSV(path, results, map[string]string{"Target": "memory"}))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, len(results)+1)
	assert.Equal(t, "Target", records[0][len(records[0])-1])
	assert.Equal(t, "memory", records[1][len(records[1])-1])
}

func TestRunPerfRateLimit(t *testing.T) {
	m := engine.NewMemory()
	defer m.Close()

	skip := []string{"set", "get", "incr", "row", "mixed"}
	results, err := RunPerf(context.Background(), m, PerfOptions{Threads: 2, Ops: 50, Rows: 1, Cols: 1, Rate: 500, Skip: skip}, &bytes.Buffer{})
	require.NoError(t, err)

	for _, r := range results {
		if r.Test == "incr-hot" {
			assert.Equal(t, int64(50), r.Count)
			assert.GreaterOrEqual(t, r.OpsPerSec, 1.0)
		}
	}
}

func TestRunPerfInvalidOptions(t *testing.T) {
	m := engine.NewMemory()
	defer m.Close()

	_, err := RunPerf(context.Background(), m, PerfOptions{Threads: 0, Ops: 1, Rows: 1, Cols: 1}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestWrapString(t *testing.T) {
	wrapped := WrapString("The address of the sMX server. For transports that support load balancing, multiple endpoints can be specified")
	for _, line := range bytes.Split([]byte(wrapped), []byte("\n")) {
		assert.LessOrEqual(t, len(line), Wrap)
	}
}
