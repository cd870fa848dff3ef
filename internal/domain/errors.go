package domain

import "errors"

// Sentinel errors for engine operations
var (
	// ErrFetchFailed indicates a network fetch returned a non-2xx status or failed outright
	ErrFetchFailed = errors.New("remote fetch failed")

	// ErrStorageUnavailable indicates the persistent store cannot be used at all
	ErrStorageUnavailable = errors.New("storage is unavailable")

	// ErrSchemaMismatch indicates the on-disk store structure is incompatible
	ErrSchemaMismatch = errors.New("store schema mismatch")

	// ErrStoreBusy indicates another session holds the store open
	ErrStoreBusy = errors.New("store locked by another session, close other sessions")

	// ErrInsufficientSpace indicates eviction could not free enough storage
	ErrInsufficientSpace = errors.New("insufficient free space")

	// ErrNotFound indicates the requested plan, track or version is absent
	ErrNotFound = errors.New("not found")
)
