package objstore

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/url"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config carries the object storage connection settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicURL overrides the derived download base, for deployments
	// where the bucket is served through a CDN or reverse proxy.
	PublicURL string
}

// objectAPI is the slice of the MinIO client the store uses.
type objectAPI interface {
	PutObject(ctx context.Context, bucket, name string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	RemoveObject(ctx context.Context, bucket, name string, opts minio.RemoveObjectOptions) error
}

// Store uploads cover images to a single bucket and hands back public
// download URLs.
type Store struct {
	client objectAPI
	cfg    Config
}

// New connects to the object storage endpoint and ensures the bucket
// exists.
func New(ctx context.Context, cfg Config) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to object storage: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
		log.Printf("objstore: created bucket %s", cfg.Bucket)
	}

	return &Store{client: client, cfg: cfg}, nil
}

// Progress is one upload progress report.
type Progress struct {
	Transferred int64 `json:"transferred"`
	Total       int64 `json:"total"`
}

// Upload is an in-flight cover upload. Progress delivers byte counts
// until the transfer finishes; Wait blocks for the final outcome.
type Upload struct {
	Progress <-chan Progress

	done chan struct{}
	url  string
	err  error
}

// Wait blocks until the upload completes and returns the public
// download URL.
func (u *Upload) Wait(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-u.done:
		return u.url, u.err
	}
}

// Put streams a cover image into the bucket under a fresh object key
// derived from the original filename's extension.
func (s *Store) Put(ctx context.Context, filename, contentType string, r io.Reader, size int64) *Upload {
	progress := make(chan Progress, 16)
	upload := &Upload{
		Progress: progress,
		done:     make(chan struct{}),
	}

	key := uuid.NewString() + strings.ToLower(path.Ext(filename))
	counted := &countingReader{r: r, total: size, reports: progress}

	go func() {
		defer close(upload.done)
		defer close(progress)

		_, err := s.client.PutObject(ctx, s.cfg.Bucket, key, counted, size, minio.PutObjectOptions{
			ContentType: contentType,
		})
		if err != nil {
			upload.err = fmt.Errorf("upload %s: %w", key, err)
			return
		}
		upload.url = s.ObjectURL(key)
	}()

	return upload
}

// Save uploads a cover and blocks until the download URL is known.
func (s *Store) Save(ctx context.Context, filename, contentType string, r io.Reader, size int64) (string, error) {
	return s.Put(ctx, filename, contentType, r, size).Wait(ctx)
}

// Remove deletes a previously uploaded object.
func (s *Store) Remove(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.cfg.Bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

// ObjectURL derives the public download URL for an object key.
func (s *Store) ObjectURL(key string) string {
	if s.cfg.PublicURL != "" {
		return strings.TrimRight(s.cfg.PublicURL, "/") + "/" + key
	}
	scheme := "http"
	if s.cfg.UseSSL {
		scheme = "https"
	}
	u := url.URL{
		Scheme: scheme,
		Host:   s.cfg.Endpoint,
		Path:   "/" + s.cfg.Bucket + "/" + key,
	}
	return u.String()
}

// countingReader reports cumulative progress as the client drains it.
type countingReader struct {
	r           io.Reader
	transferred int64
	total       int64
	reports     chan<- Progress
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.transferred += int64(n)
		select {
		case c.reports <- Progress{Transferred: c.transferred, Total: c.total}:
		default:
		}
	}
	return n, err
}
