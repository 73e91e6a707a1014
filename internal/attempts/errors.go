package attempts

import "errors"

var (
	ErrNotFound      = errors.New("attempt not found")
	ErrAlreadyExists = errors.New("attempt already exists")
	ErrClaimLost     = errors.New("generation claim lost")
	ErrInvalidState  = errors.New("attempt in invalid state")
)

const (
	ErrorCodeNotFound   = "not_found"
	ErrorCodeInProgress = "generation_in_progress"
	ErrorCodeConflict   = "conflict"
)
