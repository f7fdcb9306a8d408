// Package chesscom is a client for the chess.com published-data API.
package chesscom

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultBaseURL is the public API root.
const DefaultBaseURL = "https://api.chess.com/pub"

// DefaultResponseHeaderTimeout is the default timeout for receiving response headers.
const DefaultResponseHeaderTimeout = 30 * time.Second

var (
	// ErrNotFound is returned when the API has no such player or archive.
	ErrNotFound = errors.New("chesscom: not found")

	// ErrStatus is returned for any other non-200 response.
	ErrStatus = errors.New("chesscom: unexpected status")
)

// Profile is the public profile of a player.
type Profile struct {
	Username   string `json:"username"`
	PlayerID   int64  `json:"player_id"`
	Title      string `json:"title"`
	Status     string `json:"status"`
	Name       string `json:"name"`
	Avatar     string `json:"avatar"`
	Location   string `json:"location"`
	Country    string `json:"country"`
	Joined     int64  `json:"joined"`
	LastOnline int64  `json:"last_online"`
	Followers  int    `json:"followers"`
	IsStreamer bool   `json:"is_streamer"`
	TwitchURL  string `json:"twitch_url"`
	FIDE       int    `json:"fide"`
}

// Side is one player of an archived game.
type Side struct {
	Username string `json:"username"`
	Rating   int    `json:"rating"`
	Result   string `json:"result"`
}

// Game is one game of a monthly archive.
type Game struct {
	URL         string `json:"url"`
	PGN         string `json:"pgn"`
	TimeControl string `json:"time_control"`
	StartTime   int64  `json:"start_time"`
	EndTime     int64  `json:"end_time"`
	Rules       string `json:"rules"`
	ECO         string `json:"eco"`
	White       Side   `json:"white"`
	Black       Side   `json:"black"`

	// Accuracies is set only for games chess.com has reviewed.
	Accuracies *Accuracies `json:"accuracies,omitempty"`
	Tournament string      `json:"tournament,omitempty"`
	Match      string      `json:"match,omitempty"`
}

// Accuracies are chess.com's accuracy scores of both players, 0 to 100.
type Accuracies struct {
	White float64 `json:"white"`
	Black float64 `json:"black"`
}

// ID returns the last path segment of the game URL.
func (g Game) ID() string {
	u := strings.TrimRight(g.URL, "/")
	return u[strings.LastIndex(u, "/")+1:]
}

// ArchiveMonth parses the year and month from an archive URL ending in
// /YYYY/MM.
func ArchiveMonth(archiveURL string) (year, month int, err error) {
	parts := strings.Split(strings.TrimRight(archiveURL, "/"), "/")
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("chesscom: malformed archive url %q", archiveURL)
	}
	year, err = strconv.Atoi(parts[len(parts)-2])
	if err != nil {
		return 0, 0, fmt.Errorf("chesscom: malformed archive url %q: %w", archiveURL, err)
	}
	month, err = strconv.Atoi(parts[len(parts)-1])
	if err != nil || month < 1 || month > 12 {
		return 0, 0, fmt.Errorf("chesscom: malformed archive url %q", archiveURL)
	}
	return year, month, nil
}

// Client fetches players, archive lists and archived games.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API root.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.client = client }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Client.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		client: &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: DefaultResponseHeaderTimeout,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
			},
		},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Player returns the profile of username.
func (c *Client) Player(ctx context.Context, username string) (*Profile, error) {
	var p Profile
	if err := c.get(ctx, c.baseURL+"/player/"+url.PathEscape(username), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Archives returns the monthly archive URLs of username, oldest first.
func (c *Client) Archives(ctx context.Context, username string) ([]string, error) {
	var resp struct {
		Archives []string `json:"archives"`
	}
	if err := c.get(ctx, c.baseURL+"/player/"+url.PathEscape(username)+"/games/archives", &resp); err != nil {
		return nil, err
	}
	return resp.Archives, nil
}

// ArchiveGames returns the games of one monthly archive.
func (c *Client) ArchiveGames(ctx context.Context, archiveURL string) ([]Game, error) {
	var resp struct {
		Games []Game `json:"games"`
	}
	if err := c.get(ctx, archiveURL, &resp); err != nil {
		return nil, err
	}
	return resp.Games, nil
}

func (c *Client) get(ctx context.Context, u string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", u, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("fetched",
		zap.String("url", u),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound, http.StatusGone:
		return fmt.Errorf("%w: %s", ErrNotFound, u)
	default:
		return fmt.Errorf("%w: %s: %s", ErrStatus, u, resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding %s: %w", u, err)
	}
	return nil
}
