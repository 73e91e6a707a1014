package s3

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"disc-report/internal/shared/storage/object"
)

func TestApplyPrefix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		prefix string
		key    string
		want   string
	}{
		{name: "no prefix", prefix: "", key: "reports/file.pdf", want: "reports/file.pdf"},
		{name: "simple prefix", prefix: "root", key: "reports/file.pdf", want: "root/reports/file.pdf"},
		{name: "prefix trailing slash", prefix: "root/", key: "reports/file.pdf", want: "root/reports/file.pdf"},
		{name: "prefix and key slashes", prefix: "/root/", key: "/reports/file.pdf", want: "root/reports/file.pdf"},
		{name: "nested prefix", prefix: "root/sub", key: "reports/file.pdf", want: "root/sub/reports/file.pdf"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := applyPrefix(tt.prefix, tt.key); got != tt.want {
				t.Fatalf("applyPrefix(%q, %q) = %q, want %q", tt.prefix, tt.key, got, tt.want)
			}
		})
	}
}

type fakeS3 struct {
	puts    []*s3.PutObjectInput
	putErr  error
	headErr error
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if params.Body != nil {
		_, _ = io.Copy(io.Discard, params.Body)
	}
	f.puts = append(f.puts, params)
	if f.putErr != nil {
		return nil, f.putErr
	}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return nil, &s3types.NoSuchKey{}
}

func (f *fakeS3) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	return &s3.DeleteObjectOutput{}, nil
}

func TestSaveNoOverwriteSendsConditionalPut(t *testing.T) {
	fake := &fakeS3{}
	store := &Store{client: fake, bucket: "reports", prefix: "disc"}

	n, err := store.Save(context.Background(), "reports/u1/v1/jan.pdf", strings.NewReader("%PDF"), object.SaveOptions{ContentType: "application/pdf", NoOverwrite: true})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if n != 4 {
		t.Fatalf("expected 4 bytes, got %d", n)
	}
	put := fake.puts[0]
	if aws.ToString(put.IfNoneMatch) != "*" {
		t.Fatalf("expected If-None-Match *, got %q", aws.ToString(put.IfNoneMatch))
	}
	if aws.ToString(put.Key) != "disc/reports/u1/v1/jan.pdf" {
		t.Fatalf("unexpected key %q", aws.ToString(put.Key))
	}
	if put.ServerSideEncryption != s3types.ServerSideEncryptionAes256 {
		t.Fatalf("expected AES256 SSE, got %q", put.ServerSideEncryption)
	}
}

func TestSaveMapsPreconditionFailedToErrExists(t *testing.T) {
	fake := &fakeS3{putErr: &smithy.GenericAPIError{Code: "PreconditionFailed", Message: "exists"}}
	store := &Store{client: fake, bucket: "reports"}

	_, err := store.Save(context.Background(), "a.pdf", strings.NewReader("x"), object.SaveOptions{NoOverwrite: true})
	if !errors.Is(err, object.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
}

func TestExistsAndOpenNotFound(t *testing.T) {
	fake := &fakeS3{headErr: &s3types.NotFound{}}
	store := &Store{client: fake, bucket: "reports"}

	ok, err := store.Exists(context.Background(), "a.pdf")
	if err != nil || ok {
		t.Fatalf("Exists = %v, %v; want false, nil", ok, err)
	}
	if _, err := store.Open(context.Background(), "a.pdf"); !errors.Is(err, object.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
