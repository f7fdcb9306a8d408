// Package store defines the game store: the shared backlog of games that
// coordinators claim, analyze and commit.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/discochess/movegrade/internal/game"
)

var (
	// ErrNotFound is returned when a game, player or archive does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrBatchDone is returned when a batch is used after Commit or Rollback.
	ErrBatchDone = errors.New("store: batch already finished")

	// ErrClosed is returned by stores used after Close.
	ErrClosed = errors.New("store: closed")
)

// ClaimRequest selects games to claim.
type ClaimRequest struct {
	// Limit is the maximum number of games to claim.
	Limit int

	// Exclude lists game ids that must not be claimed even if eligible.
	Exclude []string
}

// Store is the analysis backlog.
//
// ClaimBatch must be a single atomic select-and-mark: two concurrent claims
// never return the same game.
type Store interface {
	// ClaimBatch moves up to req.Limit eligible games to Processing and
	// returns them. An empty result means the backlog is exhausted.
	ClaimBatch(ctx context.Context, req ClaimRequest) ([]*game.Game, error)

	// Begin starts a batch of result writes.
	Begin(ctx context.Context) (Batch, error)

	// Release returns Processing games to Eligible. Games in other states
	// are left untouched.
	Release(ctx context.Context, ids []string) error

	// SweepStale returns games claimed longer than olderThan ago to Eligible
	// and reports how many were reset.
	SweepStale(ctx context.Context, olderThan time.Duration) (int, error)

	// Get returns a game by id.
	Get(ctx context.Context, id string) (*game.Game, error)

	// Close releases any resources held by the store.
	Close() error
}

// Batch groups result writes that become durable together.
type Batch interface {
	// WriteResult records the outcome for a claimed game. Writing the same
	// result for a game that is already Done is a no-op.
	WriteResult(ctx context.Context, r game.Result) error

	// Commit makes every write of the batch durable.
	Commit(ctx context.Context) error

	// Rollback discards every write of the batch.
	Rollback(ctx context.Context) error
}

// IngestStore persists players, archives and imported games.
type IngestStore interface {
	// UpsertPlayer creates or updates a player by username and returns it
	// with its id set.
	UpsertPlayer(ctx context.Context, p *game.Player) (*game.Player, error)

	// Player returns a player by username.
	Player(ctx context.Context, username string) (*game.Player, error)

	// Archive returns the archive of a player with the given url.
	Archive(ctx context.Context, playerID uint, url string) (*game.Archive, error)

	// SaveArchive creates or updates an archive.
	SaveArchive(ctx context.Context, a *game.Archive) error

	// InsertGames stores new games as Eligible. Games whose id already
	// exists are skipped. It returns the number of games inserted.
	InsertGames(ctx context.Context, games []*game.Game) (int, error)

	// ListGames returns the games of a player ordered by end time.
	ListGames(ctx context.Context, playerID uint) ([]*game.Game, error)
}

// Scanner iterates over analyzed games.
type Scanner interface {
	// ScanAnalyzed calls fn for every Done game until fn returns an error.
	ScanAnalyzed(ctx context.Context, fn func(*game.Game) error) error
}
