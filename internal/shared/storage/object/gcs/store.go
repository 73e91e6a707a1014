package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"disc-report/internal/shared/storage/object"
)

// Store implements ObjectStore on a Google Cloud Storage bucket.
type Store struct {
	client *storage.Client
	bucket *storage.BucketHandle
	name   string
	prefix string
}

// New creates a GCS-backed object store. credentialsFile is optional; when
// empty the client uses application default credentials.
func New(ctx context.Context, bucket, prefix, credentialsFile string) (*Store, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("gcs bucket is required")
	}
	var opts []option.ClientOption
	if strings.TrimSpace(credentialsFile) != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}
	return &Store{
		client: client,
		bucket: client.Bucket(bucket),
		name:   bucket,
		prefix: strings.Trim(strings.TrimSpace(prefix), "/"),
	}, nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Save writes r to key. NoOverwrite uses a DoesNotExist precondition; a 412
// from the service is reported as object.ErrExists.
func (s *Store) Save(ctx context.Context, key string, r io.Reader, opts object.SaveOptions) (int64, error) {
	name, err := s.objectName(key)
	if err != nil {
		return 0, err
	}
	handle := s.bucket.Object(name)
	if opts.NoOverwrite {
		handle = handle.If(storage.Conditions{DoesNotExist: true})
	}
	writer := handle.NewWriter(ctx)
	if opts.ContentType != "" {
		writer.ContentType = opts.ContentType
	}

	written, err := io.Copy(writer, r)
	if err != nil {
		_ = writer.Close()
		if isPreconditionFailed(err) {
			return 0, object.ErrExists
		}
		return 0, fmt.Errorf("gcs write bucket=%s object=%s: %w", s.name, name, err)
	}
	if err := writer.Close(); err != nil {
		if isPreconditionFailed(err) {
			return 0, object.ErrExists
		}
		return 0, fmt.Errorf("gcs finalize bucket=%s object=%s: %w", s.name, name, err)
	}
	return written, nil
}

// Open returns a reader for key.
func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	name, err := s.objectName(key)
	if err != nil {
		return nil, err
	}
	rc, err := s.bucket.Object(name).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, object.ErrNotFound
		}
		return nil, fmt.Errorf("gcs read bucket=%s object=%s: %w", s.name, name, err)
	}
	return rc, nil
}

// Exists fetches the object attributes.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	name, err := s.objectName(key)
	if err != nil {
		return false, err
	}
	if _, err := s.bucket.Object(name).Attrs(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("gcs attrs bucket=%s object=%s: %w", s.name, name, err)
	}
	return true, nil
}

// Delete removes key; a missing object is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	name, err := s.objectName(key)
	if err != nil {
		return err
	}
	if err := s.bucket.Object(name).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("gcs delete bucket=%s object=%s: %w", s.name, name, err)
	}
	return nil
}

// SignedURL returns a V4 signed GET URL valid for ttl.
func (s *Store) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name, err := s.objectName(key)
	if err != nil {
		return "", err
	}
	u, err := s.bucket.SignedURL(name, &storage.SignedURLOptions{
		Method:  http.MethodGet,
		Expires: time.Now().Add(ttl),
		Scheme:  storage.SigningSchemeV4,
	})
	if err != nil {
		return "", fmt.Errorf("gcs sign bucket=%s object=%s: %w", s.name, name, err)
	}
	return u, nil
}

func (s *Store) objectName(key string) (string, error) {
	clean, err := object.CleanKey(key)
	if err != nil {
		return "", err
	}
	if s.prefix == "" {
		return clean, nil
	}
	return s.prefix + "/" + clean, nil
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}

var (
	_ object.ObjectStore = (*Store)(nil)
	_ object.Signer      = (*Store)(nil)
)
