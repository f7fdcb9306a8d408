package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/discochess/movegrade/internal/export/sink"
)

// ManifestVersion is the version written to new manifests.
const ManifestVersion = 1

// Manifest describes one export.
type Manifest struct {
	Version     int            `json:"version"`
	File        string         `json:"file"`
	Compression string         `json:"compression"`
	GameCount   int64          `json:"game_count"`
	MoveCount   int64          `json:"move_count"`
	Qualities   map[string]int `json:"qualities"`
	ExportedAt  time.Time      `json:"exported_at"`
	Location    string         `json:"location,omitempty"`
}

const manifestFilename = "manifest.json"

// WriteManifest writes the manifest to the sink.
func WriteManifest(ctx context.Context, s sink.Sink, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}
	w, err := s.Create(ctx, manifestFilename)
	if err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("writing manifest: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return nil
}

// ReadManifest reads the manifest from the sink.
func ReadManifest(ctx context.Context, s sink.Sink) (*Manifest, error) {
	r, err := s.Open(ctx, manifestFilename)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	return &m, nil
}
