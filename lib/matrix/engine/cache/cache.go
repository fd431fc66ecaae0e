package cache

import (
	"fmt"
	"io"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/VictoriaMetrics/metrics"
	"github.com/ValentinKolb/sMX/lib/matrix"
	"github.com/ValentinKolb/sMX/lib/matrix/engine/internal"
	"github.com/ValentinKolb/sMX/lib/matrix/util"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("cache")

// --------------------------------------------------------------------------
// Interfaces
// --------------------------------------------------------------------------

// Store is the persistence layer behind the cache
type Store interface {
	HasRow(row uint32) bool
	LoadRow(row uint32) ([]matrix.Entry, error)
	StoreRow(row uint32, entries []matrix.Entry) error
	Flush() error
	Close() error
}

// --------------------------------------------------------------------------
// Manager
// --------------------------------------------------------------------------

// Manager keeps a bounded number of rows in memory and writes modified rows
// back to the Store when they are evicted, flushed or the manager is closed.
//
// Usage: every operation on a row calls Acquire, locks the returned row, calls
// MarkDirty after modifying it (while still holding the row lock), unlocks it
// and calls Release. An acquired row is pinned and never evicted until released.
//
// Lock order: Manager.mu -> Row -> dirty set / Store. Acquire and eviction hold
// Manager.mu, operations on a pinned row only hold the row lock.
//
// Thread-safety: All methods are safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	store    Store
	table    *internal.Table
	lru      *util.MapHeap[uint32] // row index -> access tick
	tick     uint64
	capacity int
	closed   bool

	dirtyMu sync.Mutex
	dirty   *roaring.Bitmap

	metrics   *metrics.Set
	hits      *metrics.Counter
	misses    *metrics.Counter
	evictions *metrics.Counter
	loads     *metrics.Counter
	stores    *metrics.Counter
}

// NewManager creates a cache that keeps at most capacity rows of store in memory
func NewManager(store Store, capacity int) (*Manager, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("%w: cache size must be at least 1, got %d", matrix.ErrInvalidArgument, capacity)
	}

	m := &Manager{
		store:    store,
		table:    internal.NewTable(),
		lru:      util.NewMapHeap[uint32](),
		capacity: capacity,
		dirty:    roaring.New(),
		metrics:  metrics.NewSet(),
	}

	m.hits = m.metrics.NewCounter("smx_cache_hits_total")
	m.misses = m.metrics.NewCounter("smx_cache_misses_total")
	m.evictions = m.metrics.NewCounter("smx_cache_evictions_total")
	m.loads = m.metrics.NewCounter("smx_cache_loads_total")
	m.stores = m.metrics.NewCounter("smx_cache_stores_total")
	m.metrics.NewGauge("smx_cache_resident_rows", func() float64 {
		return float64(m.table.Len())
	})
	m.metrics.NewGauge("smx_cache_dirty_rows", func() float64 {
		return float64(m.dirtyCount())
	})

	return m, nil
}

// --------------------------------------------------------------------------
// Row Access
// --------------------------------------------------------------------------

// Acquire returns the pinned row idx, loading it from the store if it isn't
// resident. If the row is neither resident nor stored, Acquire returns nil
// unless create is set, in which case an empty row is created.
//
// Loading a row can evict other rows. If writing back an evicted row fails the
// error is returned, no row is pinned and the cache is unchanged.
func (m *Manager) Acquire(idx uint32, create bool) (*internal.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, matrix.ErrClosed
	}

	if row, ok := m.table.GetIfPresent(idx); ok {
		m.hits.Inc()
		m.touch(idx)
		row.Pin()
		return row, nil
	}

	m.misses.Inc()
	if !create && !m.store.HasRow(idx) {
		return nil, nil
	}

	entries, err := m.store.LoadRow(idx)
	if err != nil {
		return nil, err
	}
	m.loads.Inc()

	row, err := internal.NewRowFromEntries(idx, entries)
	if err != nil {
		return nil, &matrix.IOError{Op: "load", Err: fmt.Errorf("%w: %v", matrix.ErrCorrupt, err)}
	}

	// make room before the row is inserted
	if err := m.evict(m.capacity - 1); err != nil {
		return nil, err
	}

	m.table.Put(row)
	m.touch(idx)
	row.Pin()
	return row, nil
}

// Release unpins a row returned by Acquire
func (m *Manager) Release(row *internal.Row) {
	row.Unpin()
}

// MarkDirty marks row idx as modified. The caller must hold the write lock of the row.
func (m *Manager) MarkDirty(idx uint32) {
	m.dirtyMu.Lock()
	m.dirty.Add(idx)
	m.dirtyMu.Unlock()
}

// touch records an access of row idx. Caller must hold m.mu.
func (m *Manager) touch(idx uint32) {
	m.tick++
	m.lru.Set(idx, m.tick)
}

func (m *Manager) isDirty(idx uint32) bool {
	m.dirtyMu.Lock()
	defer m.dirtyMu.Unlock()
	return m.dirty.Contains(idx)
}

func (m *Manager) clearDirty(idx uint32) {
	m.dirtyMu.Lock()
	m.dirty.Remove(idx)
	m.dirtyMu.Unlock()
}

func (m *Manager) dirtyCount() int {
	m.dirtyMu.Lock()
	defer m.dirtyMu.Unlock()
	return int(m.dirty.GetCardinality())
}

// --------------------------------------------------------------------------
// Eviction
// --------------------------------------------------------------------------

// evict evicts least recently used rows until at most target rows are resident.
// Pinned rows are skipped, so the cache can temporarily hold more rows than its
// capacity if all rows are in use. Caller must hold m.mu.
func (m *Manager) evict(target int) error {
	type skipped struct {
		idx  uint32
		tick uint64
	}
	var keep []skipped
	defer func() {
		for _, s := range keep {
			m.lru.Set(s.idx, s.tick)
		}
	}()

	for m.table.Len() > target {
		idx, tick, ok := m.lru.PopMin()
		if !ok {
			Logger.Debugf("all %d resident rows are pinned, cache exceeds capacity %d", m.table.Len(), m.capacity)
			return nil
		}

		row, ok := m.table.GetIfPresent(idx)
		if !ok {
			continue
		}
		if row.Pinned() {
			keep = append(keep, skipped{idx, tick})
			continue
		}

		if err := m.writeBack(row); err != nil {
			keep = append(keep, skipped{idx, tick})
			Logger.Warningf("evicting row %d failed: %v", idx, err)
			return err
		}

		m.table.Remove(idx)
		m.evictions.Inc()
	}
	return nil
}

// writeBack stores row if it is dirty. Caller must hold m.mu.
func (m *Manager) writeBack(row *internal.Row) error {
	row.Lock()
	defer row.Unlock()

	if !m.isDirty(row.Index) {
		return nil
	}
	if err := m.store.StoreRow(row.Index, row.Entries(-1)); err != nil {
		return err
	}
	m.stores.Inc()
	m.clearDirty(row.Index)
	return nil
}

// --------------------------------------------------------------------------
// Management
// --------------------------------------------------------------------------

// SetCapacity changes the number of rows kept in memory and evicts rows
// immediately if the cache holds more than n rows.
func (m *Manager) SetCapacity(n int) error {
	if n < 1 {
		return fmt.Errorf("%w: cache size must be at least 1, got %d", matrix.ErrInvalidArgument, n)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return matrix.ErrClosed
	}

	m.capacity = n
	return m.evict(n)
}

// Capacity returns the number of rows kept in memory
func (m *Manager) Capacity() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.capacity
}

// Flush writes all dirty resident rows in ascending row order and syncs the store.
// Rows that fail to write stay dirty.
func (m *Manager) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return matrix.ErrClosed
	}
	return m.flush()
}

// flush is Flush without the closed check. Caller must hold m.mu.
func (m *Manager) flush() error {
	m.dirtyMu.Lock()
	dirty := m.dirty.ToArray()
	m.dirtyMu.Unlock()

	for _, idx := range dirty {
		row, ok := m.table.GetIfPresent(idx)
		if !ok {
			m.clearDirty(idx)
			continue
		}
		if err := m.writeBack(row); err != nil {
			return err
		}
	}

	return m.store.Flush()
}

// Close flushes all dirty rows and closes the store. The store is closed even if
// the flush fails, the first error is returned. Closing a closed manager is a no-op.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	err := m.flush()
	if closeErr := m.store.Close(); err == nil {
		err = closeErr
	}

	m.table.Clear()
	m.lru = util.NewMapHeap[uint32]()
	return err
}

// --------------------------------------------------------------------------
// Introspection
// --------------------------------------------------------------------------

// Range calls fn for every resident row until fn returns false. The rows are
// not locked.
func (m *Manager) Range(fn func(idx uint32, row *internal.Row) bool) {
	m.table.Range(fn)
}

// Info returns the current cache statistics
func (m *Manager) Info() matrix.CacheInfo {
	return matrix.CacheInfo{
		Capacity:  m.Capacity(),
		Resident:  m.table.Len(),
		Dirty:     m.dirtyCount(),
		Hits:      m.hits.Get(),
		Misses:    m.misses.Get(),
		Evictions: m.evictions.Get(),
		Loads:     m.loads.Get(),
		Stores:    m.stores.Get(),
	}
}

// WriteMetrics writes the cache metrics in prometheus text format to w
func (m *Manager) WriteMetrics(w io.Writer) {
	m.metrics.WritePrometheus(w)
}
