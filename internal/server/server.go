package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/meltforce/repcoach/internal/ingest"
	"github.com/meltforce/repcoach/internal/models"
	"github.com/meltforce/repcoach/internal/session"
	"github.com/meltforce/repcoach/internal/storage"
)

// Store is the persistence the HTTP API reads and writes.
// *storage.DB satisfies it.
type Store interface {
	ingest.SessionWriter
	QuerySessions(ctx context.Context, start, end time.Time, userID int) ([]models.PushupSessionRow, error)
	GetSession(ctx context.Context, id uuid.UUID, userID int) (*storage.SessionDetail, error)
	GetRepSummary(ctx context.Context, start, end time.Time, bucket string, userID int) ([]storage.RepPeriod, error)
}

var _ Store = (*storage.DB)(nil)

// Server holds dependencies for HTTP handlers.
type Server struct {
	store    Store
	sessions *session.Manager
	ingest   *ingest.Provider
	log      *slog.Logger
	apiKey   string
	router   chi.Router

	whois WhoIser
	users UserStore
	mcp   http.Handler
}

// New creates a new Server with all routes configured.
func New(store Store, sessions *session.Manager, apiKey string, log *slog.Logger) *Server {
	s := &Server{
		store:    store,
		sessions: sessions,
		ingest:   ingest.NewProvider(store, log),
		log:      log,
		apiKey:   apiKey,
		router:   chi.NewRouter(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// SetTailscale switches identity from the dev user to Tailscale WhoIs lookups.
func (s *Server) SetTailscale(whois WhoIser, users UserStore) {
	s.whois = whois
	s.users = users
}

// SetMCP mounts an MCP transport handler at /mcp.
func (s *Server) SetMCP(h http.Handler) {
	s.mcp = h
}

func (s *Server) routes() {
	s.router.Use(RequestLogging(s.log))
	s.router.Use(CORS)
	s.router.Use(s.identity)

	// Ingest endpoints (API key required)
	s.router.Route("/api/v1/ingest", func(r chi.Router) {
		r.Use(APIKeyAuth(s.apiKey))
		r.Post("/sessions", s.handleIngestSessions)
	})

	// Live sessions
	s.router.Route("/api/v1/sessions", func(r chi.Router) {
		r.Post("/", s.handleStartSession)
		r.Get("/{id}", s.handleGetLiveSession)
		r.Post("/{id}/frames", s.handleFrames)
		r.Post("/{id}/restart", s.handleRestartSession)
		r.Post("/{id}/finish", s.handleFinishSession)
	})

	s.router.Get("/api/v1/history", s.handleHistory)
	s.router.Get("/api/v1/history/{id}", s.handleHistoryDetail)
	s.router.Get("/api/v1/summary", s.handleSummary)
	s.router.Get("/api/v1/counter/defaults", s.handleCounterDefaults)
	s.router.Get("/api/v1/me", s.handleMe)

	s.router.Handle("/mcp", http.HandlerFunc(s.serveMCP))
}

// identity resolves the caller per request so SetTailscale can be applied
// after routes are built.
func (s *Server) identity(next http.Handler) http.Handler {
	dev := DevIdentity(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.whois == nil {
			dev.ServeHTTP(w, r)
			return
		}
		TailscaleIdentity(s.whois, s.users, s.log)(next).ServeHTTP(w, r)
	})
}

func (s *Server) serveMCP(w http.ResponseWriter, r *http.Request) {
	if s.mcp == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "mcp not enabled"})
		return
	}
	s.mcp.ServeHTTP(w, r)
}

// PersistReaped stores the summaries of sessions dropped for inactivity.
// Sessions that never received a frame are discarded.
func (s *Server) PersistReaped(ctx context.Context, reaped []*session.Session) {
	for _, live := range reaped {
		sum := live.Summary()
		if sum.Frames == 0 {
			continue
		}
		if _, err := s.ingest.Ingest(ctx, []*models.SessionSummary{sum}, live.UserID()); err != nil {
			s.log.Error("persisting reaped session", "session", sum.ID, "error", err)
		}
	}
}
