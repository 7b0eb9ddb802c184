package errcode

// Codes carried in the "code" field of API replies; 0 is success.
const (
	ErrInternal = 10000001 + iota
	ErrNotFound
	ErrInvalid
	ErrConflict
	ErrTooMany
	ErrAIUnavailable
	ErrModelMismatch
)
