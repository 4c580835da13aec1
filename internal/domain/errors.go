package domain

import "errors"

// Storage adapters return these so services can match on them without
// importing a driver package.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)
