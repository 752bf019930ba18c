package cache

import "errors"

// Sentinel errors shared by the index client and the sources built on it.
var (
	// ErrNotFound is returned when a project or file is not in the index.
	ErrNotFound = errors.New("not found")

	// ErrNetwork is returned for transport failures and 5xx responses.
	ErrNetwork = errors.New("network error")
)
