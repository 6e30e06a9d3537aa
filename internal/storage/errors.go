package storage

import "errors"

// ErrNotFound is returned when a staged file ID is unknown.
var ErrNotFound = errors.New("staged file not found")
