package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// MessageVersion is the payload layout this build writes and understands.
const MessageVersion = 1

// ErrUnsupportedVersion marks a payload written by a newer producer.
var ErrUnsupportedVersion = errors.New("unsupported message version")

// Message asks a worker to generate the report for one attempt. The attempt
// row carries everything else, so the payload stays an identifier.
type Message struct {
	AttemptID  string    `json:"attemptId"`
	RequestID  string    `json:"requestId,omitempty"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
	Version    int       `json:"version"`
}

// NewMessage builds a current-version message.
func NewMessage(attemptID, requestID string, now time.Time) Message {
	return Message{
		AttemptID:  attemptID,
		RequestID:  requestID,
		EnqueuedAt: now.UTC().Truncate(time.Second),
		Version:    MessageVersion,
	}
}

// DeduplicationID identifies one enqueue of an attempt for FIFO queues.
func (m Message) DeduplicationID() string {
	return fmt.Sprintf("%s-%d", m.AttemptID, m.EnqueuedAt.Unix())
}

// EncodeMessage returns the JSON representation of a message.
func EncodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeMessage parses a payload. Version 0 predates versioning and is read
// as version 1.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	if msg.Version == 0 {
		msg.Version = MessageVersion
	}
	if msg.Version > MessageVersion {
		return msg, fmt.Errorf("%w: %d", ErrUnsupportedVersion, msg.Version)
	}
	return msg, nil
}
