// Package httpapi exposes analysis jobs, game analyses and ingestion over
// HTTP.
package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/discochess/movegrade"
)

// Service is the application the API serves. *movegrade.Client
// implements it.
type Service interface {
	StartBatchAnalysis(ctx context.Context) (movegrade.Job, bool, error)
	CurrentJob() (movegrade.Job, bool)
	Job(id string) (movegrade.Job, bool)
	GetAnalysis(ctx context.Context, gameID string) (*movegrade.Analysis, error)
	Player(ctx context.Context, username string) (*movegrade.Player, error)
	FetchAndStore(ctx context.Context, username string) (movegrade.IngestSummary, error)
	PlayerGames(ctx context.Context, username string) ([]movegrade.GameSummary, error)
}

var _ Service = (*movegrade.Client)(nil)

// Server routes requests to a Service.
type Server struct {
	svc     Service
	metrics http.Handler
	logger  *zap.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics serves h at /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithLogger sets the access and error logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a Server.
func New(svc Service, opts ...Option) *Server {
	s := &Server{
		svc:    svc,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("http")
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(AccessLog(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/analyze-moves", s.startAnalysis)
		r.Get("/analysis/jobs/current", s.currentJob)
		r.Get("/analysis/jobs/{id}", s.job)
		r.Get("/game-move-analysis/{id}", s.analysis)
		r.Post("/players/{username}", s.player)
		r.Get("/players/{username}", s.player)
		r.Post("/players/{username}/fetch-and-store-games", s.fetchAndStore)
		r.Get("/players/{username}/games", s.playerGames)
	})
	return r
}

func (s *Server) startAnalysis(w http.ResponseWriter, r *http.Request) {
	j, started, err := s.svc.StartBatchAnalysis(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	msg := "move analysis started in the background"
	if !started {
		msg = "move analysis already running"
	}
	writeJSON(w, http.StatusAccepted, startResponse{Message: msg, Started: started, Job: j})
}

func (s *Server) currentJob(w http.ResponseWriter, r *http.Request) {
	j, ok := s.svc.CurrentJob()
	if !ok {
		writeError(w, http.StatusNotFound, "no analysis job has run")
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (s *Server) job(w http.ResponseWriter, r *http.Request) {
	j, ok := s.svc.Job(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (s *Server) analysis(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a, err := s.svc.GetAnalysis(r.Context(), id)
	if errors.Is(err, movegrade.ErrNotAnalyzed) {
		writeJSON(w, http.StatusOK, notAnalyzedResponse{
			GameID: id,
			Status: "not_analyzed",
			Error:  "game moves have not been analyzed yet",
		})
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// player serves both POST and GET: either one creates an unknown player.
func (s *Server) player(w http.ResponseWriter, r *http.Request) {
	p, err := s.svc.Player(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) fetchAndStore(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	sum, err := s.svc.FetchAndStore(r.Context(), username)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) playerGames(w http.ResponseWriter, r *http.Request) {
	games, err := s.svc.PlayerGames(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if games == nil {
		games = []movegrade.GameSummary{}
	}
	writeJSON(w, http.StatusOK, games)
}

// fail maps service errors to status codes.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, movegrade.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, movegrade.ErrBusy):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, movegrade.ErrUnsupported):
		writeError(w, http.StatusNotImplemented, err.Error())
	case errors.Is(err, movegrade.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error("request failed",
			zap.String("rid", middleware.GetReqID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
