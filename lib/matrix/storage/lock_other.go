//go:build !unix

package storage

// lockFile is a no-op on platforms without flock
func lockFile(f FileHandle) (unlock func() error, err error) {
	return func() error { return nil }, nil
}
