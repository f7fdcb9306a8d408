package gormstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/discochess/movegrade/internal/codec"
	"github.com/discochess/movegrade/internal/codec/codecs"
	"github.com/discochess/movegrade/internal/game"
)

type playerRow struct {
	ID          uint   `gorm:"primaryKey"`
	Username    string `gorm:"uniqueIndex;not null"`
	ChessComID  int64
	Title       string
	Status      string
	Name        string
	Avatar      string
	Location    string
	Country     string
	Joined      time.Time
	LastOnline  time.Time
	Followers   int
	IsStreamer  bool
	TwitchURL   string
	FIDE        int
	LastUpdated time.Time
}

func (playerRow) TableName() string { return "players" }

type archiveRow struct {
	ID             uint   `gorm:"primaryKey"`
	PlayerID       uint   `gorm:"uniqueIndex:idx_archive_player_url;not null"`
	URL            string `gorm:"uniqueIndex:idx_archive_player_url;not null"`
	Year           int
	Month          int
	Downloaded     bool `gorm:"not null;default:false"`
	LastDownload   *time.Time
	IsCurrentMonth bool `gorm:"not null;default:false"`
}

func (archiveRow) TableName() string { return "archives" }

type gameRow struct {
	ID          string `gorm:"primaryKey"`
	PlayerID    uint   `gorm:"index;not null"`
	URL         string
	PGN         string `gorm:"type:text;not null"`
	WhiteName   string
	WhiteRating int
	WhiteResult string
	BlackName   string
	BlackRating int
	BlackResult string
	StartTime   time.Time
	EndTime     time.Time `gorm:"index"`
	TimeControl string
	Rules       string
	ECO         string
	Tournament  string
	Match       string

	WhiteAccuracy *float64
	BlackAccuracy *float64

	State         string `gorm:"index;not null;default:'eligible'"`
	ClaimedAt     *time.Time
	ClaimCount    int `gorm:"not null;default:0"`
	AnalyzedAt    *time.Time
	MoveAnalysis  []byte `gorm:"type:bytea"`
	AnalysisCodec string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (gameRow) TableName() string { return "games" }

func toPlayerRow(p *game.Player) *playerRow {
	return &playerRow{
		ID:          p.ID,
		Username:    p.Username,
		ChessComID:  p.ChessComID,
		Title:       p.Title,
		Status:      p.Status,
		Name:        p.Name,
		Avatar:      p.Avatar,
		Location:    p.Location,
		Country:     p.Country,
		Joined:      p.Joined,
		LastOnline:  p.LastOnline,
		Followers:   p.Followers,
		IsStreamer:  p.IsStreamer,
		TwitchURL:   p.TwitchURL,
		FIDE:        p.FIDE,
		LastUpdated: p.LastUpdated,
	}
}

func (r *playerRow) player() *game.Player {
	return &game.Player{
		ID:          r.ID,
		Username:    r.Username,
		ChessComID:  r.ChessComID,
		Title:       r.Title,
		Status:      r.Status,
		Name:        r.Name,
		Avatar:      r.Avatar,
		Location:    r.Location,
		Country:     r.Country,
		Joined:      r.Joined,
		LastOnline:  r.LastOnline,
		Followers:   r.Followers,
		IsStreamer:  r.IsStreamer,
		TwitchURL:   r.TwitchURL,
		FIDE:        r.FIDE,
		LastUpdated: r.LastUpdated,
	}
}

func toArchiveRow(a *game.Archive) *archiveRow {
	return &archiveRow{
		ID:             a.ID,
		PlayerID:       a.PlayerID,
		URL:            a.URL,
		Year:           a.Year,
		Month:          a.Month,
		Downloaded:     a.Downloaded,
		LastDownload:   a.LastDownload,
		IsCurrentMonth: a.IsCurrentMonth,
	}
}

func (r *archiveRow) archive() *game.Archive {
	return &game.Archive{
		ID:             r.ID,
		PlayerID:       r.PlayerID,
		URL:            r.URL,
		Year:           r.Year,
		Month:          r.Month,
		Downloaded:     r.Downloaded,
		LastDownload:   r.LastDownload,
		IsCurrentMonth: r.IsCurrentMonth,
	}
}

// toGameRow converts an imported game. Analysis fields start empty.
func toGameRow(g *game.Game) *gameRow {
	row := &gameRow{
		ID:          g.ID,
		PlayerID:    g.PlayerID,
		URL:         g.URL,
		PGN:         g.PGN,
		WhiteName:   g.White.Username,
		WhiteRating: g.White.Rating,
		WhiteResult: g.White.Result,
		BlackName:   g.Black.Username,
		BlackRating: g.Black.Rating,
		BlackResult: g.Black.Result,
		StartTime:   g.StartTime,
		EndTime:     g.EndTime,
		TimeControl: g.TimeControl,
		Rules:       g.Rules,
		ECO:         g.ECO,
		Tournament:  g.Tournament,
		Match:       g.Match,
		State:       string(game.Eligible),
	}
	if a := g.Accuracy; a != nil {
		white, black := a.White, a.Black
		row.WhiteAccuracy = &white
		row.BlackAccuracy = &black
	}
	return row
}

func (r *gameRow) game() (*game.Game, error) {
	g := &game.Game{
		ID:          r.ID,
		PlayerID:    r.PlayerID,
		URL:         r.URL,
		PGN:         r.PGN,
		White:       game.Side{Username: r.WhiteName, Rating: r.WhiteRating, Result: r.WhiteResult},
		Black:       game.Side{Username: r.BlackName, Rating: r.BlackRating, Result: r.BlackResult},
		StartTime:   r.StartTime,
		EndTime:     r.EndTime,
		TimeControl: r.TimeControl,
		Rules:       r.Rules,
		ECO:         r.ECO,
		Tournament:  r.Tournament,
		Match:       r.Match,
		State:       game.State(r.State),
		ClaimedAt:   r.ClaimedAt,
		ClaimCount:  r.ClaimCount,
		AnalyzedAt:  r.AnalyzedAt,
	}
	if r.WhiteAccuracy != nil && r.BlackAccuracy != nil {
		g.Accuracy = &game.Accuracy{White: *r.WhiteAccuracy, Black: *r.BlackAccuracy}
	}
	if g.State != game.Done {
		return g, nil
	}

	moves, err := decodeMoves(r.AnalysisCodec, r.MoveAnalysis)
	if err != nil {
		return nil, fmt.Errorf("game %s: %w", r.ID, err)
	}
	g.Moves = moves
	return g, nil
}

func encodeMoves(c codec.Codec, moves []game.Move) ([]byte, error) {
	if moves == nil {
		moves = []game.Move{}
	}
	data, err := json.Marshal(moves)
	if err != nil {
		return nil, err
	}
	return codec.Encode(c, data)
}

func decodeMoves(codecName string, blob []byte) ([]game.Move, error) {
	c, err := codecs.ByName(codecName)
	if err != nil {
		return nil, err
	}
	data, err := codec.Decode(c, blob)
	if err != nil {
		return nil, err
	}
	moves := []game.Move{}
	if err := json.Unmarshal(data, &moves); err != nil {
		return nil, fmt.Errorf("decoding move analysis: %w", err)
	}
	return moves, nil
}
