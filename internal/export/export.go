// Package export writes every analyzed game as compressed JSON lines plus a
// manifest to a sink.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/discochess/movegrade/internal/codec"
	"github.com/discochess/movegrade/internal/codec/zstdcodec"
	"github.com/discochess/movegrade/internal/export/sink"
	"github.com/discochess/movegrade/internal/game"
	"github.com/discochess/movegrade/internal/store"
)

// DataFile is the base name of the JSON lines file.
const DataFile = "analyses.jsonl"

// Record is one exported line.
type Record struct {
	GameID      string      `json:"game_id"`
	URL         string      `json:"url,omitempty"`
	White       string      `json:"white"`
	Black       string      `json:"black"`
	WhiteRating int         `json:"white_rating"`
	BlackRating int         `json:"black_rating"`
	EndTime     time.Time   `json:"end_time"`
	AnalyzedAt  *time.Time  `json:"analyzed_at,omitempty"`
	Moves       []game.Move `json:"moves"`
}

// NewRecord converts an analyzed game.
func NewRecord(g *game.Game) Record {
	return Record{
		GameID:      g.ID,
		URL:         g.URL,
		White:       g.White.Username,
		Black:       g.Black.Username,
		WhiteRating: g.White.Rating,
		BlackRating: g.Black.Rating,
		EndTime:     g.EndTime,
		AnalyzedAt:  g.AnalyzedAt,
		Moves:       g.Moves,
	}
}

// ProgressFunc is called every ProgressEvery games.
type ProgressFunc func(games int64)

// ProgressEvery is how often progress is reported.
const ProgressEvery = 1000

// Exporter writes exports.
type Exporter struct {
	codec    codec.Codec
	now      func() time.Time
	progress ProgressFunc
	logger   *zap.Logger
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithCodec sets the compression codec. The default is zstd.
func WithCodec(c codec.Codec) Option {
	return func(e *Exporter) { e.codec = c }
}

// WithClock sets the time source for the manifest timestamp.
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) { e.now = now }
}

// WithProgress sets the progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(e *Exporter) { e.progress = fn }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Exporter) { e.logger = l }
}

// New creates an Exporter.
func New(opts ...Option) *Exporter {
	e := &Exporter{
		codec:  zstdcodec.New(),
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.Named("export")
	return e
}

// FileName returns the data file name for the configured codec.
func (e *Exporter) FileName() string {
	if ext := e.codec.Extension(); ext != "" {
		return DataFile + "." + ext
	}
	return DataFile
}

// Export streams every analyzed game of src to dst and writes the manifest
// last, so a manifest is only present for complete exports.
func (e *Exporter) Export(ctx context.Context, src store.Scanner, dst sink.Sink) (*Manifest, error) {
	start := e.now()
	m := &Manifest{
		Version:     ManifestVersion,
		File:        e.FileName(),
		Compression: e.codec.Name(),
		Qualities:   make(map[string]int),
		Location:    dst.Location(),
	}

	obj, err := dst.Create(ctx, m.File)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", m.File, err)
	}
	w, err := e.codec.Writer(obj)
	if err != nil {
		obj.Close()
		return nil, fmt.Errorf("creating compressor: %w", err)
	}

	enc := json.NewEncoder(w)
	err = src.ScanAnalyzed(ctx, func(g *game.Game) error {
		if err := enc.Encode(NewRecord(g)); err != nil {
			return fmt.Errorf("encoding game %s: %w", g.ID, err)
		}
		m.GameCount++
		m.MoveCount += int64(len(g.Moves))
		for _, mv := range g.Moves {
			m.Qualities[mv.Quality.String()]++
		}
		if e.progress != nil && m.GameCount%ProgressEvery == 0 {
			e.progress(m.GameCount)
		}
		return nil
	})
	if err != nil {
		w.Close()
		obj.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		obj.Close()
		return nil, fmt.Errorf("flushing compressor: %w", err)
	}
	if err := obj.Close(); err != nil {
		return nil, fmt.Errorf("closing %s: %w", m.File, err)
	}

	m.ExportedAt = e.now().UTC()
	if err := WriteManifest(ctx, dst, m); err != nil {
		return nil, err
	}

	e.logger.Info("export finished",
		zap.String("location", dst.Location()),
		zap.Int64("games", m.GameCount),
		zap.Int64("moves", m.MoveCount),
		zap.Duration("elapsed", e.now().Sub(start)),
	)
	return m, nil
}
