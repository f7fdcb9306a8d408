// Package noopcodec provides a pass-through codec.
package noopcodec

import (
	"io"

	"github.com/discochess/movegrade/internal/codec"
)

var _ codec.Codec = Codec{}

// Codec stores data uncompressed.
type Codec struct{}

// New returns a pass-through codec.
func New() Codec { return Codec{} }

// Reader returns r unchanged. Closing it does not close r.
func (Codec) Reader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(r), nil
}

// Writer returns w unchanged. Closing it does not close w.
func (Codec) Writer(w io.Writer) (io.WriteCloser, error) {
	return nopWriteCloser{w}, nil
}

// Name returns "none".
func (Codec) Name() string { return "none" }

// Extension returns an empty string.
func (Codec) Extension() string { return "" }

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
