// Package ingest imports a player's games from the chess.com archives into
// the game store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/discochess/movegrade/internal/chesscom"
	"github.com/discochess/movegrade/internal/game"
	"github.com/discochess/movegrade/internal/store"
)

// Source fetches public game data.
type Source interface {
	Player(ctx context.Context, username string) (*chesscom.Profile, error)
	Archives(ctx context.Context, username string) ([]string, error)
	ArchiveGames(ctx context.Context, archiveURL string) ([]chesscom.Game, error)
}

var _ Source = (*chesscom.Client)(nil)

// ErrPlayerNotFound is returned when the player exists neither in the
// store nor on chess.com.
var ErrPlayerNotFound = errors.New("ingest: player not found")

// Summary reports what one FetchAndStore call did.
type Summary struct {
	Player   string `json:"player"`
	Archives int    `json:"total_archives"`
	Games    int    `json:"total_games"`
	Skipped  int    `json:"skipped_archives"`
	Failed   int    `json:"failed_archives"`
}

// Service imports games.
type Service struct {
	store  store.IngestStore
	source Source
	now    func() time.Time
	logger *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the time source used to detect the current month.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New creates a Service.
func New(st store.IngestStore, src Source, opts ...Option) *Service {
	s := &Service{
		store:  st,
		source: src,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("ingest")
	return s
}

// GetOrCreatePlayer returns the stored player, fetching and storing the
// chess.com profile on first sight.
func (s *Service) GetOrCreatePlayer(ctx context.Context, username string) (*game.Player, error) {
	p, err := s.store.Player(ctx, username)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	profile, err := s.source.Player(ctx, username)
	if errors.Is(err, chesscom.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrPlayerNotFound, username)
	}
	if err != nil {
		return nil, err
	}
	return s.store.UpsertPlayer(ctx, playerFromProfile(profile, s.now()))
}

// FetchAndStore imports every archive of username that is not downloaded
// yet, plus the current month's archive, which is always refreshed.
// Games already stored are never modified.
func (s *Service) FetchAndStore(ctx context.Context, username string) (Summary, error) {
	sum := Summary{Player: username}

	player, err := s.GetOrCreatePlayer(ctx, username)
	if err != nil {
		return sum, err
	}

	urls, err := s.source.Archives(ctx, username)
	if err != nil {
		return sum, fmt.Errorf("listing archives of %s: %w", username, err)
	}

	now := s.now()
	for _, u := range urls {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		year, month, err := chesscom.ArchiveMonth(u)
		if err != nil {
			s.logger.Warn("skipping archive", zap.String("url", u), zap.Error(err))
			sum.Failed++
			continue
		}
		current := year == now.Year() && month == int(now.Month())

		archive, err := s.store.Archive(ctx, player.ID, u)
		switch {
		case errors.Is(err, store.ErrNotFound):
			archive = &game.Archive{PlayerID: player.ID, Year: year, Month: month, URL: u}
		case err != nil:
			return sum, err
		case archive.Downloaded && !archive.IsCurrentMonth && !current:
			sum.Skipped++
			continue
		}

		inserted, err := s.importArchive(ctx, player.ID, u)
		if err != nil {
			if ctx.Err() != nil {
				return sum, ctx.Err()
			}
			s.logger.Warn("archive fetch failed", zap.String("url", u), zap.Error(err))
			sum.Failed++
			continue
		}

		downloaded := s.now()
		archive.Downloaded = true
		archive.LastDownload = &downloaded
		archive.IsCurrentMonth = current
		if err := s.store.SaveArchive(ctx, archive); err != nil {
			return sum, err
		}

		sum.Archives++
		sum.Games += inserted
	}

	s.logger.Info("ingest finished",
		zap.String("player", username),
		zap.Int("archives", sum.Archives),
		zap.Int("games", sum.Games),
		zap.Int("skipped", sum.Skipped),
		zap.Int("failed", sum.Failed),
	)
	return sum, nil
}

// Games returns the stored games of username, creating the player on
// first sight without importing any archive.
func (s *Service) Games(ctx context.Context, username string) ([]*game.Game, error) {
	p, err := s.GetOrCreatePlayer(ctx, username)
	if err != nil {
		return nil, err
	}
	return s.store.ListGames(ctx, p.ID)
}

func (s *Service) importArchive(ctx context.Context, playerID uint, archiveURL string) (int, error) {
	fetched, err := s.source.ArchiveGames(ctx, archiveURL)
	if err != nil {
		return 0, err
	}

	games := make([]*game.Game, 0, len(fetched))
	for _, g := range fetched {
		if g.URL == "" || g.PGN == "" {
			continue
		}
		games = append(games, gameFromArchive(playerID, g))
	}
	return s.store.InsertGames(ctx, games)
}

func playerFromProfile(p *chesscom.Profile, now time.Time) *game.Player {
	return &game.Player{
		Username:    p.Username,
		ChessComID:  p.PlayerID,
		Title:       p.Title,
		Status:      p.Status,
		Name:        p.Name,
		Avatar:      p.Avatar,
		Location:    p.Location,
		Country:     p.Country,
		Joined:      unix(p.Joined),
		LastOnline:  unix(p.LastOnline),
		Followers:   p.Followers,
		IsStreamer:  p.IsStreamer,
		TwitchURL:   p.TwitchURL,
		FIDE:        p.FIDE,
		LastUpdated: now,
	}
}

func gameFromArchive(playerID uint, g chesscom.Game) *game.Game {
	start := g.StartTime
	if start == 0 {
		start = g.EndTime
	}
	return &game.Game{
		ID:          g.ID(),
		PlayerID:    playerID,
		URL:         g.URL,
		PGN:         g.PGN,
		White:       game.Side{Username: g.White.Username, Rating: g.White.Rating, Result: g.White.Result},
		Black:       game.Side{Username: g.Black.Username, Rating: g.Black.Rating, Result: g.Black.Result},
		StartTime:   unix(start),
		EndTime:     unix(g.EndTime),
		TimeControl: g.TimeControl,
		Rules:       g.Rules,
		ECO:         g.ECO,
		Tournament:  g.Tournament,
		Match:       g.Match,
		Accuracy:    (*game.Accuracy)(g.Accuracies),
		State:       game.Eligible,
	}
}

func unix(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
