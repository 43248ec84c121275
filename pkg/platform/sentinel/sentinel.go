// Package sentinel holds the storage facts every backend reports the same way.
// Stores return these, possibly wrapped; services map them onto domain error
// codes so callers never see a driver error.
package sentinel

import "errors"

var (
	// ErrNotFound means no record exists under the requested key.
	ErrNotFound = errors.New("record not found")

	// ErrConflict means the write lost a uniqueness or version-token race.
	ErrConflict = errors.New("record conflict")
)
