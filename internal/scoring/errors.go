package scoring

import (
	"errors"
	"strings"
)

var (
	// ErrInvalidAnswers indicates the answer set failed validation.
	ErrInvalidAnswers = errors.New("invalid answers")

	// ErrInvalidConfig indicates the weight configuration is unusable.
	ErrInvalidConfig = errors.New("invalid scoring config")
)

// ErrorCodeValidation is the API error code for rejected answer sets.
const ErrorCodeValidation = "validation_error"

// ValidationError lists every problem found in an answer set.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return ErrInvalidAnswers.Error()
	}
	return ErrInvalidAnswers.Error() + ": " + strings.Join(e.Issues, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalidAnswers }
