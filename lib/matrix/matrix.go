package matrix

import "math"

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

// MaxIndex is the largest row or column index a matrix accepts.
const MaxIndex = math.MaxUint32

// Mode describes where the rows of a matrix live
type Mode string

const (
	ModeMemory Mode = "memory" // all rows are kept in memory, nothing is persisted
	ModeFile   Mode = "file"   // rows are persisted to a backing file and cached in memory
	ModeRemote Mode = "remote" // rows live in a matrix hosted by an rpc server
)

// Entry is a single non-zero cell of a row
type Entry struct {
	Col   uint32 `json:"col"`
	Value int64  `json:"value"`
}

// Feature represents matrix features as bit flags
type Feature uint64

const (
	FeatureCellOps      Feature = 1 << iota // Support for Get, Set, Incr and Decr
	FeatureRowOps                           // Support for RowLength, Row and RowN
	FeaturePersistence                      // Rows survive Close and are restored on Open
	FeatureCacheControl                     // Support for SetCacheSize
	FeatureCompaction                       // Support for Compact
)

func (f Feature) String() string {
	switch f {
	case FeatureCellOps:
		return "CellOps"
	case FeatureRowOps:
		return "RowOps"
	case FeaturePersistence:
		return "Persistence"
	case FeatureCacheControl:
		return "CacheControl"
	case FeatureCompaction:
		return "Compaction"
	default:
		return "Unknown"
	}
}

// CacheInfo describes the state of the row cache of a file backed matrix
type CacheInfo struct {
	Capacity  int    `json:"capacity"`
	Resident  int    `json:"resident"`
	Dirty     int    `json:"dirty"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	Loads     uint64 `json:"loads"`
	Stores    uint64 `json:"stores"`
}

// FileInfo describes the backing file of a file backed matrix
type FileInfo struct {
	ID         string `json:"id"`
	Rows       int    `json:"rows"`
	LiveBytes  int64  `json:"live_bytes"`
	TotalBytes int64  `json:"total_bytes"`
	Codec      string `json:"codec"`
}

// Info holds information about a matrix instance.
// Row and entry counts only include rows that are currently in memory,
// for a file backed matrix the FileInfo holds the number of persisted rows.
type Info struct {
	Mode              Mode       `json:"mode"`
	Path              string     `json:"path,omitempty"`
	ResidentRows      int        `json:"resident_rows"`
	ResidentEntries   int        `json:"resident_entries"`
	MedianRowLength   int        `json:"median_row_length"`
	SupportedFeatures []Feature  `json:"supported_features"`
	Cache             *CacheInfo `json:"cache,omitempty"`
	File              *FileInfo  `json:"file,omitempty"`
	Metrics           string     `json:"metrics,omitempty"` // prometheus text format
}

// --------------------------------------------------------------------------
// Matrix Interface
// --------------------------------------------------------------------------

// IMatrix defines the interface of a sparse two-dimensional integer matrix.
// Cells that were never set (or were set to zero) read as zero and are not stored.
// Row and column indices must lie in [0, MaxIndex], otherwise ErrInvalidArgument is returned.
// After Close every method except Path returns ErrClosed.
//
// Implementations must be safe for concurrent use. Each cell operation is
// linearizable, operations on one cell never lose updates.
type IMatrix interface {

	// --------------------------------------------------------------------------
	// Cell Operations
	// --------------------------------------------------------------------------

	// Get returns the value of the cell (row, col), 0 if the cell is absent.
	Get(row, col int) (value int64, err error)

	// Set stores value in the cell (row, col). Setting a cell to 0 removes it.
	Set(row, col int, value int64) (err error)

	// Incr adds delta to the cell (row, col). An absent cell counts as 0.
	// The addition wraps around on overflow.
	Incr(row, col int, delta int64) (err error)

	// Decr subtracts delta from the cell (row, col). An absent cell counts as 0.
	// The subtraction wraps around on overflow.
	Decr(row, col int, delta int64) (err error)

	// --------------------------------------------------------------------------
	// Row Operations
	// --------------------------------------------------------------------------

	// RowLength returns the number of non-zero cells in the row.
	RowLength(row int) (n int, err error)

	// Row returns all non-zero cells of the row in ascending column order.
	Row(row int) (entries []Entry, err error)

	// RowN returns at most limit non-zero cells of the row in ascending column order.
	// A limit of 0 returns an empty slice, a negative limit is invalid.
	RowN(row, limit int) (entries []Entry, err error)

	// --------------------------------------------------------------------------
	// Management Operations
	// --------------------------------------------------------------------------

	// SetCacheSize sets the number of rows kept in memory. It returns ErrUnsupported
	// if the matrix has no row cache and ErrInvalidArgument if n < 1.
	SetCacheSize(n int) (err error)

	// Flush writes all modified rows to durable storage. It is a no-op for matrices
	// without persistence.
	Flush() (err error)

	// Compact reclaims the space of superseded rows in the backing file. It returns
	// ErrUnsupported if the matrix has no backing file.
	Compact() (err error)

	// Info returns information about the matrix.
	Info() (info Info, err error)

	// SupportsFeature checks if the matrix supports the specified feature.
	// Multiple features can be checked at once using bitwise OR (|) operator.
	SupportsFeature(feature Feature) (ok bool)

	// Path returns the path of the backing file, or an empty string for matrices
	// without one.
	Path() string

	// Close releases the matrix. For a file backed matrix all modified rows are
	// written and synced before Close returns. Closing a closed matrix is a no-op.
	Close() (err error)
}

// Factory creates a new matrix
type Factory func() (IMatrix, error)

// ValidIndex reports whether i can be used as row or column index
func ValidIndex(i int) bool {
	return i >= 0 && uint64(i) <= MaxIndex
}
