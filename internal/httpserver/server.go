// internal/httpserver/server.go
//
// HTTP server wiring for the sealed 2048 backend.
// Responsibilities:
//   - Router + middleware (JSON, CORS, timeouts, panic recovery, request IDs,
//     metrics, per-client rate limiting).
//   - Public endpoints: "/", "/health", "/metrics", "/leaderboard".
//   - Game endpoints (optional identity): /game/new, /game/{id}, moves, restart,
//     sealing enable/reset/mock, achievement claims. Only the creator of a game
//     can reach it.
//   - Identity endpoints: /identity/connect, /identity/disconnect, /identity/me,
//     /claims/mine.
//
// Notes:
//   - CORS is origin-aware and credentials-enabled (so cookies work).
//   - Guests play under an anonymous cookie; connecting an address is only
//     needed to enable sealing and to claim achievements.

package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/sealed2048/internal/claims"
	"github.com/robalobadob/sealed2048/internal/config"
	"github.com/robalobadob/sealed2048/internal/metrics"
	"github.com/robalobadob/sealed2048/internal/progress"
	"github.com/robalobadob/sealed2048/internal/scores"
	"github.com/robalobadob/sealed2048/internal/sealing"
	"github.com/robalobadob/sealed2048/internal/session"
	"github.com/robalobadob/sealed2048/internal/store"
)

// Deps are the collaborators a Server needs. Scores and Claims may be nil,
// which disables persistence of results and claims.
type Deps struct {
	Store   store.Store
	Backend session.Backend
	Scores  *scores.Store
	Claims  *claims.Ledger
	Catalog []progress.Achievement
	Config  config.Config
	Now     func() time.Time
}

// Server bundles router, session store and persistence.
type Server struct {
	r       *chi.Mux
	srv     *http.Server
	store   store.Store
	backend session.Backend
	scores  *scores.Store
	claims  *claims.Ledger
	catalog []progress.Achievement
	cfg     config.Config
	now     func() time.Time
}

// New constructs a Server, installs middleware, and registers routes.
func New(d Deps) *Server {
	s := &Server{
		r:       chi.NewRouter(),
		store:   d.Store,
		backend: d.Backend,
		scores:  d.Scores,
		claims:  d.Claims,
		catalog: d.Catalog,
		cfg:     d.Config,
		now:     d.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}

	timeout := 10 * time.Second
	if ct := s.cfg.Readiness.CallTimeout; ct+5*time.Second > timeout {
		timeout = ct + 5*time.Second
	}

	// --- middleware ---
	s.r.Use(chimw.RequestID)
	s.r.Use(chimw.RealIP)
	s.r.Use(metrics.Middleware)
	s.r.Use(chimw.Recoverer)
	s.r.Use(chimw.Timeout(timeout))
	s.r.Use(jsonContentType)
	s.r.Use(s.cors)
	s.r.Use(newRateLimiter(s.cfg.RateLimit.RPS, s.cfg.RateLimit.Burst).Handler)

	// --- diagnostics ---
	s.r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"service": "sealed2048",
			"endpoints": []string{
				"/health", "/metrics", "/leaderboard",
				"POST /identity/connect", "POST /identity/disconnect",
				"POST /game/new", "GET /game/{id}", "POST /game/{id}/move",
				"POST /game/{id}/restart", "POST /game/{id}/sealing/enable",
				"POST /game/{id}/sealing/reset", "POST /game/{id}/sealing/mock",
				"POST /game/{id}/achievements/{aid}/claim",
				"GET /claims/mine",
			},
		})
	})
	s.r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		avail := sealing.AvailabilityPending
		if s.backend != nil {
			avail = s.backend.Availability()
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":       true,
			"sealing":  avail.String(),
			"sessions": s.store.Len(),
		})
	})
	s.r.Method(http.MethodGet, "/metrics", metrics.Handler())
	s.r.Get("/leaderboard", s.handleLeaderboard)

	// identity
	s.r.Post("/identity/connect", s.handleConnect)
	s.r.Post("/identity/disconnect", s.handleDisconnect)
	s.r.With(s.requireIdentity).Get("/identity/me", s.handleMe)
	s.r.With(s.requireIdentity).Get("/claims/mine", s.handleMyClaims)

	// games: optional identity, guests get an anonymous cookie
	s.r.Route("/game", func(r chi.Router) {
		r.Use(s.withOptionalIdentity)
		r.Post("/new", s.handleNewGame)
		r.Route("/{id}", func(r chi.Router) {
			r.Use(s.withSession)
			r.Get("/", s.handleGetGame)
			r.Post("/move", s.handleMove)
			r.Post("/restart", s.handleRestart)
			r.With(s.requireIdentity).Post("/sealing/enable", s.handleEnableSealing)
			r.Post("/sealing/reset", s.handleResetSealing)
			r.Post("/sealing/mock", s.handleMockSealing)
			r.With(s.requireIdentity).Post("/achievements/{aid}/claim", s.handleClaim)
		})
	})

	// JSON 404 for easier debugging
	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found", "path": r.URL.Path})
	})

	return s
}

// Start begins serving HTTP on addr and blocks until the server stops.
func (s *Server) Start(addr string) error {
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops a server started with Start.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// Router exposes the internal router (useful for tests).
func (s *Server) Router() chi.Router { return s.r }

// ----------------------------- middleware ----------------------------------

// jsonContentType sets a default JSON Content-Type header on all responses.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// cors enables credentialed CORS for the configured client origin.
func (s *Server) cors(next http.Handler) http.Handler {
	origin := s.cfg.ClientOrigin
	if origin == "" {
		origin = "http://localhost:5173"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ------------------------------ helpers ------------------------------------

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("encode response")
	}
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
