package repositories

import "errors"

var (
	// ErrNotFound indicates the requested clip row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates the attempted write would violate a uniqueness
	// constraint, in practice a duplicate video_hash.
	ErrConflict = errors.New("record conflict")
)
