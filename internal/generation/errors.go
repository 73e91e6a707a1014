package generation

import "errors"

var (
	// ErrNotFound hides attempts that do not exist or belong to another owner.
	ErrNotFound = errors.New("attempt not found")

	// ErrInvalidRequest indicates a malformed request body.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrScoresMissing indicates a claimed attempt without cached scores.
	ErrScoresMissing = errors.New("attempt has no scores")

	// ErrDocumentUnavailable indicates no stored document exists yet.
	ErrDocumentUnavailable = errors.New("document not available")

	// ErrLeftoverPlaceholders indicates placeholder tokens in the merged PDF text.
	ErrLeftoverPlaceholders = errors.New("placeholders remain in rendered document")

	// ErrQueueNotConfigured indicates queue mode without a queue client.
	ErrQueueNotConfigured = errors.New("generation queue not configured")
)

const (
	ErrorCodeValidation  = "validation_error"
	ErrorCodeGeneration  = "generation_error"
	ErrorCodeUnavailable = "document_unavailable"
	ErrorCodeInternal    = "internal_error"
)
