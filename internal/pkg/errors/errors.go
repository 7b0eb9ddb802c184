package errors

import "errors"

var (
	ErrNotFound    = errors.New("not found")
	ErrInvalid     = errors.New("invalid")
	ErrConflict    = errors.New("conflict")
	ErrTooMany     = errors.New("too many requests")
	ErrUnavailable = errors.New("unavailable")
	// ErrModelMismatch means the stored index was embedded with another model.
	ErrModelMismatch = errors.New("embedding model mismatch")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
