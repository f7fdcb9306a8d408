// Package gormstore provides a PostgreSQL game store built on gorm.
//
// Claims use a single UPDATE ... WHERE id IN (SELECT ... FOR UPDATE SKIP
// LOCKED) RETURNING statement, so concurrent coordinators in different
// processes never receive the same game.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/discochess/movegrade/internal/codec"
	"github.com/discochess/movegrade/internal/codec/zstdcodec"
	"github.com/discochess/movegrade/internal/game"
	"github.com/discochess/movegrade/internal/store"
)

// Compile-time checks.
var (
	_ store.Store       = (*Store)(nil)
	_ store.IngestStore = (*Store)(nil)
	_ store.Scanner     = (*Store)(nil)
)

const scanBatchSize = 100

// Store is a gorm-backed game store.
type Store struct {
	db     *gorm.DB
	codec  codec.Codec
	now    func() time.Time
	logger *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithCodec sets the codec used to compress move analyses.
func WithCodec(c codec.Codec) Option {
	return func(s *Store) { s.codec = c }
}

// WithClock sets the time source for claim and analysis timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Open connects to PostgreSQL at dsn.
func Open(dsn string, opts ...Option) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return New(db, opts...), nil
}

// New wraps an open gorm connection.
func New(db *gorm.DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		codec:  zstdcodec.New(),
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate creates or updates the schema.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&playerRow{}, &archiveRow{}, &gameRow{})
}

// ClaimBatch atomically claims up to req.Limit eligible games.
func (s *Store) ClaimBatch(ctx context.Context, req store.ClaimRequest) ([]*game.Game, error) {
	if req.Limit <= 0 {
		return nil, nil
	}

	now := s.now()
	where := "state = ?"
	args := []any{now, now, string(game.Eligible)}
	if len(req.Exclude) > 0 {
		where += " AND id NOT IN ?"
		args = append(args, req.Exclude)
	}
	args = append(args, req.Limit)

	sql := `UPDATE games
SET state = 'processing', claimed_at = ?, updated_at = ?, claim_count = claim_count + 1
WHERE id IN (
	SELECT id FROM games WHERE ` + where + `
	ORDER BY created_at, id
	LIMIT ?
	FOR UPDATE SKIP LOCKED
)
RETURNING *`

	var rows []gameRow
	if err := s.db.WithContext(ctx).Raw(sql, args...).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("claiming games: %w", err)
	}

	games := make([]*game.Game, 0, len(rows))
	for i := range rows {
		g, err := rows[i].game()
		if err != nil {
			return nil, err
		}
		games = append(games, g)
	}
	return games, nil
}

// Begin starts a database transaction.
func (s *Store) Begin(ctx context.Context) (store.Batch, error) {
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("beginning transaction: %w", tx.Error)
	}
	return &batch{s: s, tx: tx}, nil
}

// Release returns Processing games to Eligible.
func (s *Store) Release(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Model(&gameRow{}).
		Where("id IN ? AND state = ?", ids, string(game.Processing)).
		Updates(map[string]any{"state": string(game.Eligible), "claimed_at": nil}).Error
}

// SweepStale resets games claimed before now - olderThan.
func (s *Store) SweepStale(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := s.now().Add(-olderThan)
	res := s.db.WithContext(ctx).Model(&gameRow{}).
		Where("state = ? AND claimed_at < ?", string(game.Processing), cutoff).
		Updates(map[string]any{"state": string(game.Eligible), "claimed_at": nil})
	if res.Error != nil {
		return 0, fmt.Errorf("sweeping stale claims: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

// Get returns a game by id.
func (s *Store) Get(ctx context.Context, id string) (*game.Game, error) {
	var row gameRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.game()
}

// ScanAnalyzed visits Done games in id order.
func (s *Store) ScanAnalyzed(ctx context.Context, fn func(*game.Game) error) error {
	var rows []gameRow
	res := s.db.WithContext(ctx).
		Where("state = ?", string(game.Done)).
		Order("id").
		FindInBatches(&rows, scanBatchSize, func(tx *gorm.DB, _ int) error {
			for i := range rows {
				g, err := rows[i].game()
				if err != nil {
					return err
				}
				if err := fn(g); err != nil {
					return err
				}
			}
			return nil
		})
	return res.Error
}

// UpsertPlayer creates or updates a player keyed by username.
func (s *Store) UpsertPlayer(ctx context.Context, p *game.Player) (*game.Player, error) {
	row := toPlayerRow(p)
	row.ID = 0
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "username"}},
		UpdateAll: true,
	}).Create(row).Error
	if err != nil {
		return nil, fmt.Errorf("saving player %s: %w", p.Username, err)
	}
	return s.Player(ctx, p.Username)
}

// Player returns a player by username.
func (s *Store) Player(ctx context.Context, username string) (*game.Player, error) {
	var row playerRow
	err := s.db.WithContext(ctx).First(&row, "username = ?", username).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.player(), nil
}

// Archive returns an archive by player and url.
func (s *Store) Archive(ctx context.Context, playerID uint, url string) (*game.Archive, error) {
	var row archiveRow
	err := s.db.WithContext(ctx).First(&row, "player_id = ? AND url = ?", playerID, url).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.archive(), nil
}

// SaveArchive creates or updates an archive keyed by player and url.
func (s *Store) SaveArchive(ctx context.Context, a *game.Archive) error {
	row := toArchiveRow(a)
	row.ID = 0
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "player_id"}, {Name: "url"}},
		DoUpdates: clause.AssignmentColumns([]string{"year", "month", "downloaded", "last_download", "is_current_month"}),
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("saving archive %s: %w", a.URL, err)
	}
	a.ID = row.ID
	return nil
}

// InsertGames inserts games whose id is not stored yet.
func (s *Store) InsertGames(ctx context.Context, games []*game.Game) (int, error) {
	if len(games) == 0 {
		return 0, nil
	}
	rows := make([]*gameRow, len(games))
	for i, g := range games {
		rows[i] = toGameRow(g)
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(rows, scanBatchSize)
	if res.Error != nil {
		return 0, fmt.Errorf("inserting games: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

// ListGames returns the games of a player ordered by end time.
func (s *Store) ListGames(ctx context.Context, playerID uint) ([]*game.Game, error) {
	var rows []gameRow
	err := s.db.WithContext(ctx).
		Where("player_id = ?", playerID).
		Order("end_time, id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	games := make([]*game.Game, 0, len(rows))
	for i := range rows {
		g, err := rows[i].game()
		if err != nil {
			return nil, err
		}
		games = append(games, g)
	}
	return games, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// batch is one transaction of result writes.
type batch struct {
	s    *Store
	tx   *gorm.DB
	done bool
}

func (b *batch) WriteResult(ctx context.Context, r game.Result) error {
	if b.done {
		return store.ErrBatchDone
	}
	if err := r.Validate(); err != nil {
		return err
	}

	tx := b.tx.WithContext(ctx).Model(&gameRow{})
	var res *gorm.DB
	if r.Succeeded() {
		blob, err := encodeMoves(b.s.codec, r.Moves)
		if err != nil {
			return fmt.Errorf("encoding analysis of %s: %w", r.GameID, err)
		}
		now := b.s.now()
		res = tx.Where("id = ? AND state <> ?", r.GameID, string(game.Done)).
			Updates(map[string]any{
				"state":          string(game.Done),
				"claimed_at":     nil,
				"analyzed_at":    now,
				"move_analysis":  blob,
				"analysis_codec": b.s.codec.Name(),
			})
	} else {
		res = tx.Where("id = ? AND state = ?", r.GameID, string(game.Processing)).
			Updates(map[string]any{"state": string(game.Eligible), "claimed_at": nil})
	}
	if res.Error != nil {
		return fmt.Errorf("writing result of %s: %w", r.GameID, res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var n int64
	if err := b.tx.WithContext(ctx).Model(&gameRow{}).Where("id = ?", r.GameID).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (b *batch) Commit(ctx context.Context) error {
	if b.done {
		return store.ErrBatchDone
	}
	b.done = true
	return b.tx.Commit().Error
}

func (b *batch) Rollback(ctx context.Context) error {
	if b.done {
		return store.ErrBatchDone
	}
	b.done = true
	return b.tx.Rollback().Error
}
