// Package sink defines the destinations an export is written to.
package sink

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when an object does not exist.
var ErrNotFound = errors.New("sink: object not found")

// Sink stores named objects.
type Sink interface {
	// Create returns a writer for the named object. The object is complete
	// once the writer is closed without error.
	Create(ctx context.Context, name string) (io.WriteCloser, error)

	// Open returns a reader for the named object.
	Open(ctx context.Context, name string) (io.ReadCloser, error)

	// Location describes where objects are written, for logs and manifests.
	Location() string

	// Close releases any resources held by the sink.
	Close() error
}
