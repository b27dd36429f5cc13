//go:build !linux

package bootentry

import "errors"

// syncFilesystems is only implemented on Linux.
func syncFilesystems() error {
	return errors.New("storage flush is not supported on this platform")
}
