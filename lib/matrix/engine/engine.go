package engine

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/VictoriaMetrics/metrics"
	"github.com/ValentinKolb/sMX/lib/matrix"
	"github.com/ValentinKolb/sMX/lib/matrix/engine/cache"
	"github.com/ValentinKolb/sMX/lib/matrix/engine/internal"
	"github.com/ValentinKolb/sMX/lib/matrix/storage"
	"github.com/ValentinKolb/sMX/lib/matrix/util"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("matrix")

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	DefaultCacheSize = 10_000 // Default number of rows kept in memory by a file backed matrix
)

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

// Options configures a matrix during Open
type Options struct {
	Path      string             // Path of the backing file ("" = memory only)
	CacheSize int                // Number of rows kept in memory in file mode (0 = DefaultCacheSize)
	Codec     storage.Codec      // Compression of rows written to the backing file
	FS        storage.FileSystem // File system of the backing file (nil = storage.DefaultFS)
}

// DefaultOptions returns the options of a memory only matrix
func DefaultOptions() *Options {
	return &Options{
		CacheSize: DefaultCacheSize,
		Codec:     storage.CodecNone,
		FS:        storage.DefaultFS,
	}
}

// --------------------------------------------------------------------------
// Core matrix structure
// --------------------------------------------------------------------------

// matrixImpl implements matrix.IMatrix in two modes. In memory mode all rows
// live in a table, in file mode rows are loaded on demand into a bounded
// cache and written back to the backing file.
type matrixImpl struct {
	// life is held shared by every operation and exclusively by Close, so Close
	// waits for in-flight operations and later operations see closed
	life   sync.RWMutex
	closed bool

	mode matrix.Mode
	path string

	table *internal.Table // memory mode
	cache *cache.Manager  // file mode
	file  *storage.File   // file mode

	metrics *metrics.Set
	ops     map[string]*metrics.Counter
}

// Open creates a new matrix with the specified options (optional).
// Without a path the matrix is memory only. With a path the backing file is
// opened (or created) and its rows are loaded on demand.
//
// Errors opening the backing file are returned as *matrix.IOError.
func Open(opts *Options) (matrix.IMatrix, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	cacheSize := opts.CacheSize
	if cacheSize < 0 {
		return nil, fmt.Errorf("%w: cache size must not be negative, got %d", matrix.ErrInvalidArgument, cacheSize)
	}
	if cacheSize == 0 {
		cacheSize = DefaultCacheSize
	}

	m := &matrixImpl{
		path:    opts.Path,
		metrics: metrics.NewSet(),
		ops:     make(map[string]*metrics.Counter),
	}
	for _, op := range []string{"get", "set", "incr", "decr", "rowlen", "row", "flush"} {
		m.ops[op] = m.metrics.NewCounter(fmt.Sprintf(`smx_matrix_ops_total{op=%q}`, op))
	}

	if opts.Path == "" {
		m.mode = matrix.ModeMemory
		m.table = internal.NewTable()
		m.metrics.NewGauge("smx_matrix_rows", func() float64 {
			return float64(m.table.Len())
		})
		return m, nil
	}

	file, err := storage.Open(opts.Path, &storage.Options{FS: opts.FS, Codec: opts.Codec})
	if err != nil {
		return nil, err
	}
	c, err := cache.NewManager(file, cacheSize)
	if err != nil {
		_ = file.Close()
		return nil, err
	}

	m.mode = matrix.ModeFile
	m.file = file
	m.cache = c
	m.metrics.NewGauge("smx_matrix_rows", func() float64 {
		return float64(m.file.Stats().Rows)
	})

	Logger.Infof("opened matrix %s (%d stored rows, cache size %d, codec %s)", opts.Path, file.Stats().Rows, cacheSize, opts.Codec)
	return m, nil
}

// NewMemory creates a new memory only matrix
func NewMemory() matrix.IMatrix {
	m, _ := Open(nil) // can't fail without a path
	return m
}

// OpenFile opens a file backed matrix with the default cache size
func OpenFile(path string) (matrix.IMatrix, error) {
	return Open(&Options{Path: path})
}

// --------------------------------------------------------------------------
// Lifecycle helper
// --------------------------------------------------------------------------

// begin enters an operation, every successful begin must be followed by end
func (m *matrixImpl) begin(op string) error {
	m.life.RLock()
	if m.closed {
		m.life.RUnlock()
		return matrix.ErrClosed
	}
	if c, ok := m.ops[op]; ok {
		c.Inc()
	}
	return nil
}

func (m *matrixImpl) end() {
	m.life.RUnlock()
}

// --------------------------------------------------------------------------
// Row access helper
// --------------------------------------------------------------------------

// readRow calls fn with the read locked row idx, or with nil if the row is empty.
// Reads never materialize a row.
func (m *matrixImpl) readRow(idx uint32, fn func(r *internal.Row)) error {
	var (
		row *internal.Row
		err error
	)

	if m.cache == nil {
		row, _ = m.table.GetIfPresent(idx)
	} else {
		if row, err = m.cache.Acquire(idx, false); err != nil {
			return err
		}
		if row != nil {
			defer m.cache.Release(row)
		}
	}

	if row == nil {
		fn(nil)
		return nil
	}

	row.RLock()
	defer row.RUnlock()
	fn(row) // a dead row is empty, fn sees it as such
	return nil
}

// writeRow calls fn with the write locked row idx. If create is false and the
// row is empty fn is not called. fn reports whether it changed the row.
func (m *matrixImpl) writeRow(idx uint32, create bool, fn func(r *internal.Row) bool) error {
	if m.cache != nil {
		row, err := m.cache.Acquire(idx, create)
		if err != nil || row == nil {
			return err
		}
		defer m.cache.Release(row)

		row.Lock()
		defer row.Unlock()
		if fn(row) {
			m.cache.MarkDirty(idx)
		}
		return nil
	}

	for {
		var row *internal.Row
		if create {
			row, _ = m.table.GetOrCreate(idx)
		} else {
			var ok bool
			if row, ok = m.table.GetIfPresent(idx); !ok {
				return nil
			}
		}

		row.Lock()
		if row.Dead() {
			// removed by a concurrent operation, look it up again
			row.Unlock()
			continue
		}

		fn(row)
		if row.Len() == 0 {
			row.MarkDead()
			m.table.RemoveIf(row)
		}
		row.Unlock()
		return nil
	}
}

// --------------------------------------------------------------------------
// Cell Operations
// --------------------------------------------------------------------------

// Get returns the value of the cell (row, col), 0 if the cell is absent.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *matrixImpl) Get(row, col int) (int64, error) {
	if err := m.begin("get"); err != nil {
		return 0, err
	}
	defer m.end()

	if err := matrix.CheckCell(row, col); err != nil {
		return 0, err
	}

	var value int64
	err := m.readRow(uint32(row), func(r *internal.Row) {
		if r != nil {
			value = r.Get(uint32(col))
		}
	})
	return value, err
}

// Set stores value in the cell (row, col). Setting 0 removes the cell.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *matrixImpl) Set(row, col int, value int64) error {
	if err := m.begin("set"); err != nil {
		return err
	}
	defer m.end()

	if err := matrix.CheckCell(row, col); err != nil {
		return err
	}

	return m.writeRow(uint32(row), value != 0, func(r *internal.Row) bool {
		return r.Set(uint32(col), value)
	})
}

// Incr adds delta to the cell (row, col), wrapping around on overflow.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *matrixImpl) Incr(row, col int, delta int64) error {
	if err := m.begin("incr"); err != nil {
		return err
	}
	defer m.end()

	if err := matrix.CheckCell(row, col); err != nil {
		return err
	}

	return m.add(uint32(row), uint32(col), delta)
}

// Decr subtracts delta from the cell (row, col), wrapping around on overflow.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *matrixImpl) Decr(row, col int, delta int64) error {
	if err := m.begin("decr"); err != nil {
		return err
	}
	defer m.end()

	if err := matrix.CheckCell(row, col); err != nil {
		return err
	}

	// -math.MinInt64 wraps to itself, which is still the correct subtrahend modulo 2^64
	return m.add(uint32(row), uint32(col), -delta)
}

func (m *matrixImpl) add(row, col uint32, delta int64) error {
	return m.writeRow(row, delta != 0, func(r *internal.Row) bool {
		return r.Add(col, delta)
	})
}

// --------------------------------------------------------------------------
// Row Operations
// --------------------------------------------------------------------------

// RowLength returns the number of non-zero cells in the row.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *matrixImpl) RowLength(row int) (int, error) {
	if err := m.begin("rowlen"); err != nil {
		return 0, err
	}
	defer m.end()

	if err := matrix.CheckRow(row); err != nil {
		return 0, err
	}

	var n int
	err := m.readRow(uint32(row), func(r *internal.Row) {
		if r != nil {
			n = r.Len()
		}
	})
	return n, err
}

// Row returns all non-zero cells of the row in ascending column order.
// The returned slice is a snapshot and safe to modify.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *matrixImpl) Row(row int) ([]matrix.Entry, error) {
	return m.rowN(row, 0, true)
}

// RowN returns at most limit non-zero cells of the row in ascending column order.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *matrixImpl) RowN(row, limit int) ([]matrix.Entry, error) {
	return m.rowN(row, limit, false)
}

// rowN returns at most limit cells of the row, all of them if all is set
func (m *matrixImpl) rowN(row, limit int, all bool) ([]matrix.Entry, error) {
	if err := m.begin("row"); err != nil {
		return nil, err
	}
	defer m.end()

	if err := matrix.CheckRow(row); err != nil {
		return nil, err
	}
	if all {
		limit = -1
	} else if limit < 0 {
		return nil, fmt.Errorf("%w: negative limit %d", matrix.ErrInvalidArgument, limit)
	}

	entries := []matrix.Entry{}
	err := m.readRow(uint32(row), func(r *internal.Row) {
		if r != nil {
			entries = r.Entries(limit)
		}
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// --------------------------------------------------------------------------
// Management Operations
// --------------------------------------------------------------------------

// SetCacheSize sets the number of rows kept in memory, rows above the new size
// are evicted immediately.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *matrixImpl) SetCacheSize(n int) error {
	if err := m.begin("cache"); err != nil {
		return err
	}
	defer m.end()

	if m.cache == nil {
		return fmt.Errorf("%w: %s matrix has no row cache", matrix.ErrUnsupported, m.mode)
	}
	if err := m.cache.SetCapacity(n); err != nil {
		return err
	}
	Logger.Debugf("cache size of %s set to %d", m.path, n)
	return nil
}

// Flush writes all modified rows to the backing file and syncs it.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *matrixImpl) Flush() error {
	if err := m.begin("flush"); err != nil {
		return err
	}
	defer m.end()

	if m.cache == nil {
		return nil
	}
	return m.cache.Flush()
}

// Compact rewrites the backing file without superseded rows.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *matrixImpl) Compact() error {
	if err := m.begin("compact"); err != nil {
		return err
	}
	defer m.end()

	if m.file == nil {
		return fmt.Errorf("%w: %s matrix has no backing file", matrix.ErrUnsupported, m.mode)
	}
	return m.file.Compact()
}

// Info returns information about the matrix. Row statistics only cover
// resident rows.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *matrixImpl) Info() (matrix.Info, error) {
	if err := m.begin("info"); err != nil {
		return matrix.Info{}, err
	}
	defer m.end()

	histogram := util.NewLengthHistogram()
	collect := func(_ uint32, r *internal.Row) bool {
		r.RLock()
		n := r.Len()
		r.RUnlock()
		if n > 0 {
			histogram.AddSample(n)
		}
		return true
	}

	info := matrix.Info{
		Mode:              m.mode,
		Path:              m.path,
		SupportedFeatures: m.features(),
	}

	var buf bytes.Buffer
	m.metrics.WritePrometheus(&buf)

	if m.cache == nil {
		m.table.Range(collect)
	} else {
		m.cache.Range(collect)
		cacheInfo := m.cache.Info()
		info.Cache = &cacheInfo

		stats := m.file.Stats()
		info.File = &matrix.FileInfo{
			ID:         stats.ID.String(),
			Rows:       stats.Rows,
			LiveBytes:  stats.LiveBytes,
			TotalBytes: stats.TotalBytes,
			Codec:      stats.Codec.String(),
		}
		m.cache.WriteMetrics(&buf)
	}

	info.ResidentRows = int(histogram.Count())
	info.ResidentEntries = int(histogram.Sum())
	info.MedianRowLength = histogram.MedianEstimate()
	info.Metrics = buf.String()
	return info, nil
}

// features returns the features of the matrix mode
func (m *matrixImpl) features() []matrix.Feature {
	features := []matrix.Feature{matrix.FeatureCellOps, matrix.FeatureRowOps}
	if m.mode == matrix.ModeFile {
		features = append(features, matrix.FeaturePersistence, matrix.FeatureCacheControl, matrix.FeatureCompaction)
	}
	return features
}

// SupportsFeature checks if the matrix supports the specified features
func (m *matrixImpl) SupportsFeature(feature matrix.Feature) bool {
	var supported matrix.Feature
	for _, f := range m.features() {
		supported |= f
	}
	return supported&feature == feature
}

// Path returns the path of the backing file, "" in memory mode
func (m *matrixImpl) Path() string {
	return m.path
}

// Close releases the matrix. In file mode all modified rows are written and the
// backing file is synced and closed before Close returns. Close waits for running
// operations, operations started after Close fail with matrix.ErrClosed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *matrixImpl) Close() error {
	m.life.Lock()
	defer m.life.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	if m.cache == nil {
		m.table.Clear()
		return nil
	}

	if err := m.cache.Close(); err != nil {
		Logger.Errorf("closing matrix %s: %v", m.path, err)
		return err
	}
	Logger.Infof("closed matrix %s", m.path)
	return nil
}
