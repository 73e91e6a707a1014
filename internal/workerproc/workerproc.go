package workerproc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"disc-report/internal/generation"
	"disc-report/internal/queue"
)

// Processor runs generation for one attempt.
type Processor interface {
	Process(ctx context.Context, attemptID string) (generation.Result, error)
}

// MessageMeta captures details useful for logging and diagnostics.
type MessageMeta struct {
	BodyLen int
	BodySHA string
}

// ComputeMeta returns the body length and SHA-256 hash.
func ComputeMeta(body string) MessageMeta {
	if body == "" {
		return MessageMeta{BodyLen: 0, BodySHA: ""}
	}
	sum := sha256.Sum256([]byte(body))
	return MessageMeta{BodyLen: len(body), BodySHA: hex.EncodeToString(sum[:])}
}

// ErrEmptyBody indicates an empty queue payload.
type ErrEmptyBody struct {
	Meta MessageMeta
}

func (e ErrEmptyBody) Error() string { return "empty message body" }

// ErrDecode indicates a JSON decode failure.
type ErrDecode struct {
	Meta MessageMeta
	Err  error
}

func (e ErrDecode) Error() string {
	if e.Err == nil {
		return "decode message"
	}
	return "decode message: " + e.Err.Error()
}

func (e ErrDecode) Unwrap() error { return e.Err }

// ErrMissingAttemptID indicates a message without an attempt id.
type ErrMissingAttemptID struct {
	Meta      MessageMeta
	RequestID string
}

func (e ErrMissingAttemptID) Error() string { return "missing attempt id" }

// ErrBusy means another holder is generating the attempt. The message
// should become visible again after RetryAfter.
type ErrBusy struct {
	AttemptID  string
	RetryAfter time.Duration
}

func (e ErrBusy) Error() string {
	return fmt.Sprintf("attempt %s is being generated elsewhere; retry after %s", e.AttemptID, e.RetryAfter)
}

// ErrProcess indicates processing failed after successful parsing.
type ErrProcess struct {
	AttemptID string
	RequestID string
	Err       error
}

func (e ErrProcess) Error() string {
	if e.Err == nil {
		return "process attempt"
	}
	return "process attempt: " + e.Err.Error()
}

func (e ErrProcess) Unwrap() error { return e.Err }

// Permanent reports whether redelivering the message cannot help.
func Permanent(err error) bool {
	var (
		empty   ErrEmptyBody
		dec     ErrDecode
		missing ErrMissingAttemptID
	)
	switch {
	case errors.As(err, &empty), errors.As(err, &dec), errors.As(err, &missing):
		return true
	case errors.Is(err, generation.ErrNotFound), errors.Is(err, generation.ErrScoresMissing):
		return true
	}
	return false
}

// ParseMessage validates and decodes the queue payload.
func ParseMessage(body string) (queue.Message, MessageMeta, error) {
	meta := ComputeMeta(body)
	if strings.TrimSpace(body) == "" {
		return queue.Message{}, meta, ErrEmptyBody{Meta: meta}
	}

	msg, err := queue.DecodeMessage([]byte(body))
	if err != nil {
		return queue.Message{}, meta, ErrDecode{Meta: meta, Err: err}
	}
	if strings.TrimSpace(msg.AttemptID) == "" {
		return msg, meta, ErrMissingAttemptID{Meta: meta, RequestID: msg.RequestID}
	}
	return msg, meta, nil
}

type parsedMessageKey struct{}

// WithParsedMessage stores a decoded message in the context for reuse.
func WithParsedMessage(ctx context.Context, msg queue.Message) context.Context {
	return context.WithValue(ctx, parsedMessageKey{}, msg)
}

func parsedMessageFromContext(ctx context.Context) (queue.Message, bool) {
	if ctx == nil {
		return queue.Message{}, false
	}
	msg, ok := ctx.Value(parsedMessageKey{}).(queue.Message)
	return msg, ok
}

// HandleMessage parses, validates, and processes a message payload.
func HandleMessage(ctx context.Context, processor Processor, body string) error {
	if processor == nil {
		return errors.New("generation service not configured")
	}

	msg, ok := parsedMessageFromContext(ctx)
	if !ok {
		var err error
		msg, _, err = ParseMessage(body)
		if err != nil {
			return err
		}
	}

	if strings.TrimSpace(msg.AttemptID) == "" {
		return ErrMissingAttemptID{Meta: ComputeMeta(body), RequestID: msg.RequestID}
	}

	ctxWithRequest := generation.WithRequestID(ctx, msg.RequestID)
	res, err := processor.Process(ctxWithRequest, msg.AttemptID)
	if err != nil {
		return ErrProcess{AttemptID: msg.AttemptID, RequestID: msg.RequestID, Err: err}
	}
	if !res.Ready() {
		return ErrBusy{AttemptID: msg.AttemptID, RetryAfter: res.RetryAfter}
	}
	return nil
}
