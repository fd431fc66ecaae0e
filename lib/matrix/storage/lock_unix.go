//go:build unix

package storage

import (
	"errors"

	"github.com/ValentinKolb/sMX/lib/matrix"
	"golang.org/x/sys/unix"
)

// lockFile takes an exclusive, non-blocking advisory lock on the file.
// The lock belongs to the open file description, so a second open of the same
// path fails even within one process.
func lockFile(f FileHandle) (unlock func() error, err error) {
	fd := int(f.Fd())
	if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, matrix.ErrLocked
		}
		return nil, err
	}
	return func() error {
		return unix.Flock(fd, unix.LOCK_UN)
	}, nil
}
