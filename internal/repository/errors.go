package repository

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrInvalidKey indicates a stored encryption key has the wrong length or encoding.
	ErrInvalidKey = errors.New("repository: invalid stored key")
)
