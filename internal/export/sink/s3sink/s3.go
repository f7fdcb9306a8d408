// Package s3sink writes export objects to AWS S3 or an S3-compatible
// service.
package s3sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/discochess/movegrade/internal/export/sink"
)

// Compile-time check that Sink implements sink.Sink.
var _ sink.Sink = (*Sink)(nil)

// Sink is an S3 bucket, optionally under a key prefix.
type Sink struct {
	client *s3.Client
	bucket string
	prefix string
}

// Option configures a Sink.
type Option func(*Sink) error

// WithPrefix sets a key prefix for all objects.
func WithPrefix(prefix string) Option {
	return func(s *Sink) error {
		s.prefix = strings.Trim(prefix, "/")
		if s.prefix != "" {
			s.prefix += "/"
		}
		return nil
	}
}

// WithRegion sets the AWS region.
func WithRegion(region string) Option {
	return func(s *Sink) error {
		cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
		if err != nil {
			return fmt.Errorf("loading AWS config with region: %w", err)
		}
		s.client = s3.NewFromConfig(cfg)
		return nil
	}
}

// WithEndpoint sets a custom endpoint (for S3-compatible services like MinIO).
func WithEndpoint(endpoint string) Option {
	return func(s *Sink) error {
		cfg, err := config.LoadDefaultConfig(context.Background())
		if err != nil {
			return fmt.Errorf("loading AWS config for endpoint: %w", err)
		}
		s.client = s3.NewFromConfig(cfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
		return nil
	}
}

// New creates an S3 sink. The bucket must already exist.
func New(ctx context.Context, bucket string, opts ...Option) (*Sink, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	s := &Sink{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Create returns a writer that buffers the object and uploads it on Close.
func (s *Sink) Create(ctx context.Context, name string) (io.WriteCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	return &upload{ctx: ctx, s: s, key: s.key(name)}, nil
}

// Open returns a reader for the object.
func (s *Sink) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, sink.ErrNotFound
		}
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return out.Body, nil
}

// Location returns the s3:// url of the prefix.
func (s *Sink) Location() string {
	return "s3://" + s.bucket + "/" + s.prefix
}

// Close releases resources.
func (s *Sink) Close() error {
	// S3 client doesn't need explicit closing.
	return nil
}

// key returns the full object key for name.
func (s *Sink) key(name string) string {
	return s.prefix + name
}

type upload struct {
	ctx    context.Context
	s      *Sink
	key    string
	buf    bytes.Buffer
	closed bool
}

func (u *upload) Write(p []byte) (int, error) {
	if u.closed {
		return 0, errors.New("s3sink: write after close")
	}
	return u.buf.Write(p)
}

func (u *upload) Close() error {
	if u.closed {
		return nil
	}
	u.closed = true
	_, err := u.s.client.PutObject(u.ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.s.bucket),
		Key:           aws.String(u.key),
		Body:          bytes.NewReader(u.buf.Bytes()),
		ContentLength: aws.Int64(int64(u.buf.Len())),
	})
	if err != nil {
		return fmt.Errorf("uploading %s: %w", u.key, err)
	}
	return nil
}
