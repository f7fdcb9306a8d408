// Package gcssink writes export objects to Google Cloud Storage.
package gcssink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/discochess/movegrade/internal/export/sink"
)

// Compile-time check that Sink implements sink.Sink.
var _ sink.Sink = (*Sink)(nil)

// Sink is a GCS bucket, optionally under a key prefix.
type Sink struct {
	client     *storage.Client
	bucket     *storage.BucketHandle
	bucketName string
	prefix     string
}

// Option configures a Sink.
type Option func(*Sink)

// WithPrefix sets a key prefix for all objects.
func WithPrefix(prefix string) Option {
	return func(s *Sink) {
		s.prefix = strings.Trim(prefix, "/")
		if s.prefix != "" {
			s.prefix += "/"
		}
	}
}

// New creates a GCS sink. The bucket must already exist.
func New(ctx context.Context, bucketName string, opts ...Option) (*Sink, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating GCS client: %w", err)
	}

	s := &Sink{
		client:     client,
		bucket:     client.Bucket(bucketName),
		bucketName: bucketName,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Create returns a writer that uploads the object as it is written.
func (s *Sink) Create(ctx context.Context, name string) (io.WriteCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	w := s.bucket.Object(s.key(name)).NewWriter(ctx)
	w.ContentType = contentType(name)
	return w, nil
}

// Open returns a reader for the object.
func (s *Sink) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	r, err := s.bucket.Object(s.key(name)).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, sink.ErrNotFound
		}
		return nil, fmt.Errorf("creating reader: %w", err)
	}
	return r, nil
}

// Location returns the gs:// url of the prefix.
func (s *Sink) Location() string {
	return "gs://" + s.bucketName + "/" + s.prefix
}

// Close releases resources.
func (s *Sink) Close() error {
	return s.client.Close()
}

// key returns the full object key for name.
func (s *Sink) key(name string) string {
	return s.prefix + name
}

func contentType(name string) string {
	if strings.HasSuffix(name, ".json") {
		return "application/json"
	}
	return "application/octet-stream"
}
