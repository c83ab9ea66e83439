package repository

import (
	"context"
	"io"
	"time"
)

// ProgressFunc reports percentage-complete (rounded down) during a
// multipart upload.
type ProgressFunc func(percent int)

// PutMultipartInput describes an object to stream into the store.
type PutMultipartInput struct {
	Bucket      string
	Key         string
	Body        io.Reader
	Size        int64
	ContentType string
	Public      bool
	OnProgress  ProgressFunc
}

// PutMultipartResult is returned on a successful upload.
type PutMultipartResult struct {
	URL  string
	ETag string
}

// ObjectInfo is returned by Head.
type ObjectInfo struct {
	ContentLength int64
	ContentType   string
	LastModified  time.Time
}

// ObjectStorage is the interface the pipeline consumes against an
// S3-compatible endpoint. Implementations are provided by the
// infrastructure layer (MinIO).
type ObjectStorage interface {
	// PutMultipart streams body into the store without buffering it
	// fully in memory, invoking OnProgress periodically if set.
	PutMultipart(ctx context.Context, in PutMultipartInput) (PutMultipartResult, error)

	// Head returns content length and type without downloading the body.
	Head(ctx context.Context, bucket, key string) (ObjectInfo, error)

	// GetRange returns a reader over bytes [start, end] inclusive. A
	// negative end means "to the end of the object".
	GetRange(ctx context.Context, bucket, key string, start, end int64) (io.ReadCloser, error)

	// Delete removes an object. Deleting a missing key is not an error.
	Delete(ctx context.Context, bucket, key string) error

	// Copy duplicates src to dst within the same bucket, used for the
	// atomic temp-key+replace master playlist swap.
	Copy(ctx context.Context, bucket, src, dst string) error
}
