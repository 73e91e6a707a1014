package delivery

import "errors"

var (
	ErrNoRecipients   = errors.New("no recipients")
	ErrAllSendsFailed = errors.New("all email sends failed")
	ErrNoFreePath     = errors.New("no free storage path")
	ErrEmptyDocument  = errors.New("empty document")
	ErrInvalidConfig  = errors.New("invalid delivery config")
)

const (
	ErrorCodeDelivery   = "delivery_error"
	ErrorCodeValidation = "validation_error"
)
