// Package disksink writes export objects to a local directory.
package disksink

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/discochess/movegrade/internal/export/sink"
)

// Compile-time check that Sink implements sink.Sink.
var _ sink.Sink = (*Sink)(nil)

// Sink is a directory on disk.
type Sink struct {
	root string
}

// New creates a sink rooted at root, creating the directory if needed.
func New(root string) (*Sink, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating export directory: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat export directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}
	return &Sink{root: root}, nil
}

// Create writes the object to a temporary file that is renamed into place
// on Close.
func (s *Sink) Create(ctx context.Context, name string) (io.WriteCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	path := s.path(name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating directory: %w", err)
	}
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return nil, fmt.Errorf("creating file: %w", err)
	}
	return &file{File: f, dest: path}, nil
}

// Open opens the object for reading.
func (s *Sink) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	f, err := os.Open(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, sink.ErrNotFound
		}
		return nil, fmt.Errorf("opening %s: %w", name, err)
	}
	return f, nil
}

// Location returns the root directory.
func (s *Sink) Location() string { return s.root }

// Close releases any resources held by the sink.
func (s *Sink) Close() error { return nil }

func (s *Sink) path(name string) string {
	return filepath.Join(s.root, filepath.FromSlash(name))
}

type file struct {
	*os.File
	dest string
}

func (f *file) Close() error {
	if err := f.File.Close(); err != nil {
		os.Remove(f.Name())
		return err
	}
	if err := os.Rename(f.Name(), f.dest); err != nil {
		os.Remove(f.Name())
		return fmt.Errorf("renaming into place: %w", err)
	}
	return nil
}
