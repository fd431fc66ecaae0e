package matrix

import (
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Error Kinds
// --------------------------------------------------------------------------

var (
	// ErrClosed is returned by every operation on a closed matrix
	ErrClosed = errors.New("matrix is closed")

	// ErrInvalidArgument is returned for negative or out of range indices, negative limits
	// and invalid cache sizes
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnsupported is returned if an operation is not supported by the matrix mode
	ErrUnsupported = errors.New("operation not supported")

	// ErrIO is matched by every *IOError (errors.Is(err, ErrIO))
	ErrIO = errors.New("i/o error")

	// ErrCorrupt is wrapped by an *IOError if a backing file can't be decoded
	ErrCorrupt = errors.New("corrupt backing file")

	// ErrLocked is wrapped by an *IOError if a backing file is owned by another instance
	ErrLocked = errors.New("backing file is locked by another instance")
)

// IOError reports a failure of the backing storage of a matrix.
type IOError struct {
	Op   string // The operation that failed (open, load, store, sync, ...)
	Path string // The path of the backing file
	Err  error  // The underlying error
}

func (e *IOError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("matrix %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("matrix %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Is makes every IOError match ErrIO
func (e *IOError) Is(target error) bool {
	return target == ErrIO
}

// NewIOError wraps err into an *IOError, an existing *IOError is returned unchanged
func NewIOError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var ioErr *IOError
	if errors.As(err, &ioErr) {
		return err
	}
	return &IOError{Op: op, Path: path, Err: err}
}

// --------------------------------------------------------------------------
// Return Codes (used to transport errors over the wire)
// --------------------------------------------------------------------------

// RetCode is the numeric representation of an error kind
type RetCode uint64

const (
	RetCSuccess            RetCode = iota // 0: Operation executed successfully.
	RetCInternalError                     // 1: Operation failed for an unknown reason.
	RetCUnsupported                       // 2: Operation is not supported by the matrix.
	RetCInvalidArgument                   // 3: An argument was invalid.
	RetCClosed                            // 4: The matrix is closed.
	RetCIOError                           // 5: The backing storage failed.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCUnsupported:
		return "Unsupported"
	case RetCInvalidArgument:
		return "InvalidArgument"
	case RetCClosed:
		return "Closed"
	case RetCIOError:
		return "IOError"
	default:
		return "Unknown"
	}
}

// CodeOf returns the return code for err
func CodeOf(err error) RetCode {
	switch {
	case err == nil:
		return RetCSuccess
	case errors.Is(err, ErrClosed):
		return RetCClosed
	case errors.Is(err, ErrInvalidArgument):
		return RetCInvalidArgument
	case errors.Is(err, ErrUnsupported):
		return RetCUnsupported
	case errors.Is(err, ErrIO):
		return RetCIOError
	default:
		return RetCInternalError
	}
}

// FromCode rebuilds an error from a return code and a message so that errors.Is
// matches the same error kind on both ends of a connection.
func FromCode(code RetCode, msg string) error {
	switch code {
	case RetCSuccess:
		return nil
	case RetCClosed:
		return fmt.Errorf("%w: %s", ErrClosed, msg)
	case RetCInvalidArgument:
		return fmt.Errorf("%w: %s", ErrInvalidArgument, msg)
	case RetCUnsupported:
		return fmt.Errorf("%w: %s", ErrUnsupported, msg)
	case RetCIOError:
		return &IOError{Op: "remote", Err: errors.New(msg)}
	default:
		return fmt.Errorf("matrix error (code %s): %s", code, msg)
	}
}

// invalidIndex returns an ErrInvalidArgument for an out of range index
func invalidIndex(name string, i int) error {
	return fmt.Errorf("%w: %s index %d out of range [0, %d]", ErrInvalidArgument, name, i, uint64(MaxIndex))
}

// CheckCell validates a row and column index pair
func CheckCell(row, col int) error {
	if !ValidIndex(row) {
		return invalidIndex("row", row)
	}
	if !ValidIndex(col) {
		return invalidIndex("column", col)
	}
	return nil
}

// CheckRow validates a row index
func CheckRow(row int) error {
	if !ValidIndex(row) {
		return invalidIndex("row", row)
	}
	return nil
}
