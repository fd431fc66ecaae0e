package cache

import (
	"bytes"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ValentinKolb/sMX/lib/matrix"
	"github.com/ValentinKolb/sMX/lib/matrix/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// --------------------------------------------------------------------------
// Test Store
// --------------------------------------------------------------------------

var errStore = errors.New("store failed")

// memStore is an in-memory Store that records the order of stores
type memStore struct {
	mu        sync.Mutex
	rows      map[uint32][]matrix.Entry
	stored    []uint32
	failStore bool
	flushes   int
	closed    bool
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[uint32][]matrix.Entry)}
}

func (s *memStore) HasRow(row uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rows[row]
	return ok
}

func (s *memStore) LoadRow(row uint32) ([]matrix.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]matrix.Entry{}, s.rows[row]...), nil
}

func (s *memStore) StoreRow(row uint32, entries []matrix.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failStore {
		return &matrix.IOError{Op: "store", Err: errStore}
	}
	if len(entries) == 0 {
		delete(s.rows, row)
	} else {
		s.rows[row] = entries
	}
	s.stored = append(s.stored, row)
	return nil
}

func (s *memStore) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
	return nil
}

func (s *memStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memStore) setFail(fail bool) {
	s.mu.Lock()
	s.failStore = fail
	s.mu.Unlock()
}

// write sets a cell the way the engine does it
func write(t *testing.T, m *Manager, row, col uint32, value int64) {
	t.Helper()
	r, err := m.Acquire(row, true)
	require.NoError(t, err)
	r.Lock()
	if r.Set(col, value) {
		m.MarkDirty(row)
	}
	r.Unlock()
	m.Release(r)
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func TestNewManagerInvalidCapacity(t *testing.T) {
	_, err := NewManager(newMemStore(), 0)
	assert.ErrorIs(t, err, matrix.ErrInvalidArgument)
}

func TestAcquireAbsentRow(t *testing.T) {
	m, err := NewManager(newMemStore(), 4)
	require.NoError(t, err)

	row, err := m.Acquire(7, false)
	require.NoError(t, err)
	assert.Nil(t, row, "absent rows are not materialized by reads")
	assert.Equal(t, 0, m.Info().Resident)
}

func TestCapacityIsRespected(t *testing.T) {
	store := newMemStore()
	m, err := NewManager(store, 3)
	require.NoError(t, err)

	for i := uint32(0); i < 10; i++ {
		write(t, m, i, 1, int64(i)+1)
		assert.LessOrEqual(t, m.Info().Resident, 3)
	}

	info := m.Info()
	assert.Equal(t, 3, info.Resident)
	assert.Equal(t, uint64(7), info.Evictions)
	assert.Equal(t, []uint32{0, 1, 2, 3, 4, 5, 6}, store.stored, "evicted in LRU order")

	// evicted rows are loaded again
	row, err := m.Acquire(0, false)
	require.NoError(t, err)
	require.NotNil(t, row)
	row.RLock()
	assert.Equal(t, int64(1), row.Get(1))
	row.RUnlock()
	m.Release(row)
}

func TestLRUOrder(t *testing.T) {
	store := newMemStore()
	m, err := NewManager(store, 2)
	require.NoError(t, err)

	write(t, m, 1, 0, 1)
	write(t, m, 2, 0, 2)

	// touch row 1, row 2 is now least recently used
	row, err := m.Acquire(1, false)
	require.NoError(t, err)
	m.Release(row)

	write(t, m, 3, 0, 3)
	assert.Equal(t, []uint32{2}, store.stored)
}

func TestPinnedRowsAreNotEvicted(t *testing.T) {
	store := newMemStore()
	m, err := NewManager(store, 1)
	require.NoError(t, err)

	pinned, err := m.Acquire(1, true)
	require.NoError(t, err)

	write(t, m, 2, 0, 2)
	write(t, m, 3, 0, 3)

	_, ok := m.table.GetIfPresent(1)
	assert.True(t, ok, "pinned row stays resident")

	m.Release(pinned)
	write(t, m, 4, 0, 4)
	_, ok = m.table.GetIfPresent(1)
	assert.False(t, ok, "released row can be evicted")
}

func TestFailedEvictionKeepsRow(t *testing.T) {
	store := newMemStore()
	m, err := NewManager(store, 1)
	require.NoError(t, err)

	write(t, m, 1, 0, 1)

	store.setFail(true)
	_, err = m.Acquire(2, true)
	assert.ErrorIs(t, err, matrix.ErrIO)

	info := m.Info()
	assert.Equal(t, 1, info.Resident)
	assert.Equal(t, 1, info.Dirty, "row that failed to write stays dirty")

	store.setFail(false)
	write(t, m, 2, 0, 2)
	assert.Equal(t, []matrix.Entry{{Col: 0, Value: 1}}, store.rows[1])
}

func TestCleanRowsAreNotStored(t *testing.T) {
	store := newMemStore()
	store.rows[1] = []matrix.Entry{{Col: 0, Value: 1}}
	m, err := NewManager(store, 1)
	require.NoError(t, err)

	row, err := m.Acquire(1, false)
	require.NoError(t, err)
	m.Release(row)

	write(t, m, 2, 0, 2)
	assert.Empty(t, store.stored, "clean rows are dropped without a store")
}

func TestFlushOrderAndClose(t *testing.T) {
	store := newMemStore()
	m, err := NewManager(store, 100)
	require.NoError(t, err)

	for _, i := range []uint32{9, 3, 7, 1} {
		write(t, m, i, 0, 1)
	}
	write(t, m, 3, 0, 0) // row 3 becomes empty

	require.NoError(t, m.Flush())
	assert.Equal(t, []uint32{1, 3, 7, 9}, store.stored)
	assert.Equal(t, 1, store.flushes)
	assert.Equal(t, 0, m.Info().Dirty)
	assert.False(t, store.HasRow(3))

	// nothing dirty, nothing stored
	require.NoError(t, m.Flush())
	assert.Len(t, store.stored, 4)

	write(t, m, 5, 0, 5)
	require.NoError(t, m.Close())
	assert.True(t, store.closed)
	assert.True(t, store.HasRow(5), "close writes dirty rows")

	require.NoError(t, m.Close(), "second close is a no-op")
	_, err = m.Acquire(1, false)
	assert.ErrorIs(t, err, matrix.ErrClosed)
	assert.ErrorIs(t, m.Flush(), matrix.ErrClosed)
	assert.ErrorIs(t, m.SetCapacity(3), matrix.ErrClosed)
}

func TestSetCapacity(t *testing.T) {
	store := newMemStore()
	m, err := NewManager(store, 10)
	require.NoError(t, err)

	for i := uint32(0); i < 10; i++ {
		write(t, m, i, 0, 1)
	}
	assert.Equal(t, 10, m.Info().Resident)

	require.NoError(t, m.SetCapacity(2))
	assert.Equal(t, 2, m.Info().Resident)
	assert.Equal(t, 2, m.Capacity())
	assert.Len(t, store.stored, 8)

	assert.ErrorIs(t, m.SetCapacity(0), matrix.ErrInvalidArgument)
}

func TestMetrics(t *testing.T) {
	m, err := NewManager(newMemStore(), 1)
	require.NoError(t, err)

	write(t, m, 1, 0, 1)
	write(t, m, 1, 1, 1)
	write(t, m, 2, 0, 1)

	info := m.Info()
	assert.Equal(t, uint64(1), info.Hits)
	assert.Equal(t, uint64(2), info.Misses)
	assert.Equal(t, uint64(1), info.Evictions)
	assert.Equal(t, uint64(2), info.Loads)
	assert.Equal(t, uint64(1), info.Stores)

	var buf bytes.Buffer
	m.WriteMetrics(&buf)
	assert.Contains(t, buf.String(), "smx_cache_hits_total 1")
	assert.Contains(t, buf.String(), "smx_cache_resident_rows 1")
}

func TestConcurrentIncrementsWithEviction(t *testing.T) {
	file, err := storage.Open(filepath.Join(t.TempDir(), "cache.smx"), nil)
	require.NoError(t, err)

	m, err := NewManager(file, 4)
	require.NoError(t, err)

	const (
		workers = 8
		rows    = 32
		rounds  = 200
	)

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for i := 0; i < rounds; i++ {
				row, err := m.Acquire(uint32(i%rows), true)
				if err != nil {
					return err
				}
				row.Lock()
				row.Add(0, 1)
				m.MarkDirty(row.Index)
				row.Unlock()
				m.Release(row)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.NoError(t, m.Flush())

	var total int64
	for i := uint32(0); i < rows; i++ {
		row, err := m.Acquire(i, false)
		require.NoError(t, err)
		require.NotNil(t, row)
		row.RLock()
		total += row.Get(0)
		row.RUnlock()
		m.Release(row)
	}
	assert.Equal(t, int64(workers*rounds), total, "no increment is lost")
	require.NoError(t, m.Close())
}

var _ Store = (*storage.File)(nil)
