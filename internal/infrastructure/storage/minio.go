// Package storage adapts an S3-compatible object store to
// repository.ObjectStorage.
package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/filmdist/ingest/internal/domain/repository"
)

// objectReader abstracts minio.Object for testability.
type objectReader interface {
	io.ReadCloser
	Stat() (minio.ObjectInfo, error)
}

// minioClient defines the subset of MinIO operations this package uses.
// This abstraction allows unit testing without a live server.
type minioClient interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (objectReader, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	CopyObject(ctx context.Context, dst minio.CopyDestOptions, src minio.CopySrcOptions) (minio.UploadInfo, error)
}

// minioClientAdapter wraps *minio.Client so GetObject can return the
// narrower objectReader interface.
type minioClientAdapter struct {
	client *minio.Client
}

func (a *minioClientAdapter) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	return a.client.BucketExists(ctx, bucketName)
}

func (a *minioClientAdapter) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	return a.client.PutObject(ctx, bucketName, objectName, reader, objectSize, opts)
}

func (a *minioClientAdapter) GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (objectReader, error) {
	return a.client.GetObject(ctx, bucketName, objectName, opts)
}

func (a *minioClientAdapter) RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error {
	return a.client.RemoveObject(ctx, bucketName, objectName, opts)
}

func (a *minioClientAdapter) StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	return a.client.StatObject(ctx, bucketName, objectName, opts)
}

func (a *minioClientAdapter) CopyObject(ctx context.Context, dst minio.CopyDestOptions, src minio.CopySrcOptions) (minio.UploadInfo, error) {
	return a.client.CopyObject(ctx, dst, src)
}

// ClientConfig holds configuration for the object store client.
type ClientConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

// Client wraps a MinIO client and implements repository.ObjectStorage.
type Client struct {
	client minioClient
}

// NewClient creates a new object store client.
func NewClient(cfg ClientConfig) (*Client, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}
	return &Client{client: &minioClientAdapter{client: client}}, nil
}

// newClientWithMinioClient is used for dependency injection in tests.
func newClientWithMinioClient(client minioClient) *Client {
	return &Client{client: client}
}

// progressReader wraps body, invoking onProgress with the rounded-down
// percentage complete as bytes are read.
type progressReader struct {
	r          io.Reader
	total      int64
	read       int64
	onProgress repository.ProgressFunc
	lastPct    int
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 && p.onProgress != nil && p.total > 0 {
		p.read += int64(n)
		pct := int(p.read * 100 / p.total)
		if pct > 100 {
			pct = 100
		}
		if pct != p.lastPct {
			p.lastPct = pct
			p.onProgress(pct)
		}
	}
	return n, err
}

// PutMultipart streams in.Body to the store. minio-go switches to a
// multipart upload internally once the body exceeds its part-size
// threshold, so callers never need to chunk it themselves.
func (c *Client) PutMultipart(ctx context.Context, in repository.PutMultipartInput) (repository.PutMultipartResult, error) {
	body := in.Body
	if in.OnProgress != nil && in.Size > 0 {
		body = &progressReader{r: in.Body, total: in.Size, onProgress: in.OnProgress}
	}

	opts := minio.PutObjectOptions{ContentType: in.ContentType}
	if in.Public {
		opts.UserMetadata = map[string]string{"x-amz-acl": "public-read"}
	}
	info, err := c.client.PutObject(ctx, in.Bucket, in.Key, body, in.Size, opts)
	if err != nil {
		return repository.PutMultipartResult{}, fmt.Errorf("storage: put %s/%s: %w", in.Bucket, in.Key, err)
	}

	return repository.PutMultipartResult{
		URL:  fmt.Sprintf("%s/%s", in.Bucket, in.Key),
		ETag: info.ETag,
	}, nil
}

// Head returns content length and type without downloading the body.
func (c *Client) Head(ctx context.Context, bucket, key string) (repository.ObjectInfo, error) {
	stat, err := c.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return repository.ObjectInfo{}, repository.ErrNotFound
		}
		return repository.ObjectInfo{}, fmt.Errorf("storage: head %s/%s: %w", bucket, key, err)
	}
	return repository.ObjectInfo{
		ContentLength: stat.Size,
		ContentType:   stat.ContentType,
		LastModified:  stat.LastModified,
	}, nil
}

// GetRange returns a reader over bytes [start, end] inclusive. end < 0
// means "to the end of the object".
func (c *Client) GetRange(ctx context.Context, bucket, key string, start, end int64) (io.ReadCloser, error) {
	opts := minio.GetObjectOptions{}
	var err error
	if end < 0 {
		err = opts.SetRange(start, -1)
	} else {
		err = opts.SetRange(start, end)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: set range: %w", err)
	}

	obj, err := c.client.GetObject(ctx, bucket, key, opts)
	if err != nil {
		return nil, fmt.Errorf("storage: get %s/%s: %w", bucket, key, err)
	}
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, repository.ErrNotFound
		}
		if minio.ToErrorResponse(err).Code == "InvalidRange" {
			return nil, repository.ErrRangeNotSatisfiable
		}
		return nil, fmt.Errorf("storage: stat %s/%s: %w", bucket, key, err)
	}
	return obj, nil
}

// Delete removes an object. Deleting a missing key is not an error.
func (c *Client) Delete(ctx context.Context, bucket, key string) error {
	if err := c.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("storage: delete %s/%s: %w", bucket, key, err)
	}
	return nil
}

// Copy duplicates src to dst within the same bucket. Used for the
// atomic temp-key+replace master playlist swap.
func (c *Client) Copy(ctx context.Context, bucket, src, dst string) error {
	dstOpts := minio.CopyDestOptions{Bucket: bucket, Object: dst}
	srcOpts := minio.CopySrcOptions{Bucket: bucket, Object: src}
	if _, err := c.client.CopyObject(ctx, dstOpts, srcOpts); err != nil {
		return fmt.Errorf("storage: copy %s/%s -> %s: %w", bucket, src, dst, err)
	}
	return nil
}

// Ping verifies the connection is alive by checking bucket access.
func (c *Client) Ping(ctx context.Context, bucket string) error {
	if _, err := c.client.BucketExists(ctx, bucket); err != nil {
		return fmt.Errorf("storage: ping: %w", err)
	}
	return nil
}
