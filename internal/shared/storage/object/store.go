package object

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

var (
	// ErrExists is returned by Save with NoOverwrite when the key is taken.
	ErrExists = errors.New("object already exists")

	// ErrNotFound indicates the key does not exist.
	ErrNotFound = errors.New("object not found")

	// ErrInvalidKey indicates an empty or traversing storage key.
	ErrInvalidKey = errors.New("invalid storage key")
)

// SaveOptions controls how an object is written.
type SaveOptions struct {
	ContentType string
	NoOverwrite bool
}

// ObjectStore defines the contract for saving and retrieving binary objects by key.
type ObjectStore interface {
	Save(ctx context.Context, key string, r io.Reader, opts SaveOptions) (sizeBytes int64, err error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}

// Signer issues short-lived read URLs for stored objects.
type Signer interface {
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// ReadAll opens key and reads it fully.
func ReadAll(ctx context.Context, store ObjectStore, key string) ([]byte, error) {
	rc, err := store.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return data, nil
}

// CleanKey normalizes a slash-separated key and rejects traversal.
func CleanKey(key string) (string, error) {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" || strings.Contains(trimmed, "\\") {
		return "", ErrInvalidKey
	}
	clean := path.Clean("/" + trimmed)
	clean = strings.TrimPrefix(clean, "/")
	if clean == "" || clean == "." {
		return "", ErrInvalidKey
	}
	for _, part := range strings.Split(trimmed, "/") {
		if part == ".." {
			return "", ErrInvalidKey
		}
	}
	return clean, nil
}
