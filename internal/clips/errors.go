package clips

import "errors"

var (
	// ErrInvalidInput is returned when a request is missing required fields or carries a bad file.
	ErrInvalidInput = errors.New("invalid input")
	// ErrForbidden is returned when an unprivileged caller reads a private clip.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound is returned when no clip matches the given id or hash.
	ErrNotFound = errors.New("clip not found")
)
