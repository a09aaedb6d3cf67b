// internal/httpserver/games.go
//
// Game endpoints. Each game is a session.Session held in the store; the
// handlers translate JSON to session calls and session errors to status codes.

package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/sealed2048/internal/daily"
	"github.com/robalobadob/sealed2048/internal/game"
	"github.com/robalobadob/sealed2048/internal/progress"
	"github.com/robalobadob/sealed2048/internal/readiness"
	"github.com/robalobadob/sealed2048/internal/scores"
	"github.com/robalobadob/sealed2048/internal/sealing"
	"github.com/robalobadob/sealed2048/internal/session"
)

type ctxSessionKey struct{}

type newGameReq struct {
	Mode string `json:"mode"` // "classic" | "daily"
}

type moveReq struct {
	Direction string `json:"direction"`
}

type moveRes struct {
	session.MoveOutcome
	Game session.View `json:"game"`
}

type enableReq struct {
	Environment   string `json:"environment"`
	ExpiryMinutes int    `json:"expiryMinutes"`
}

type sealingRes struct {
	Readiness readiness.Status `json:"readiness"`
	Error     string           `json:"error,omitempty"`
}

// handleNewGame creates a session owned by the caller.
func (s *Server) handleNewGame(w http.ResponseWriter, r *http.Request) {
	var req newGameReq
	_ = json.NewDecoder(r.Body).Decode(&req)

	cfg := session.Config{
		Owner:   s.owner(w, r),
		Catalog: s.catalog,
		Now:     s.now,
		Machine: s.machineOptions(),
	}
	if s.claims != nil {
		cfg.Minter = s.claims
	}
	if s.scores != nil {
		cfg.OnFinish = s.recordResult
	}
	switch strings.ToLower(strings.TrimSpace(req.Mode)) {
	case "", session.ModeClassic:
		cfg.Mode = session.ModeClassic
	case session.ModeDaily:
		now := s.now()
		cfg.Mode = session.ModeDaily
		cfg.Date = daily.DateKey(now)
		cfg.Rand = session.DailyRand(daily.Seed(now, s.cfg.Daily.Salt))
	default:
		writeError(w, http.StatusBadRequest, "invalid_mode")
		return
	}

	sess, err := session.New(r.Context(), s.backend, cfg)
	if err != nil {
		log.Error().Err(err).Msg("new session")
		writeError(w, http.StatusInternalServerError, "create_failed")
		return
	}
	if err := s.store.Save(r.Context(), sess); err != nil {
		log.Error().Err(err).Msg("save session")
		writeError(w, http.StatusInternalServerError, "save_failed")
		return
	}
	log.Info().Str("gameId", sess.ID()).Str("mode", cfg.Mode).Str("owner", cfg.Owner).Msg("game started")
	writeJSON(w, http.StatusCreated, sess.Snapshot(r.Context()))
}

func (s *Server) machineOptions() []readiness.Option {
	var opts []readiness.Option
	if d := s.cfg.Readiness.BootTimeout; d > 0 {
		opts = append(opts, readiness.WithBootTimeout(d))
	}
	if d := s.cfg.Readiness.CallTimeout; d > 0 {
		opts = append(opts, readiness.WithCallTimeout(d))
	}
	return opts
}

// recordResult persists a finished game. Failures are logged, not surfaced.
func (s *Server) recordResult(ctx context.Context, res session.Result) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	err := s.scores.InsertResult(ctx, scores.Result{
		SessionID: res.SessionID,
		Owner:     res.Owner,
		Mode:      res.Mode,
		Date:      res.Date,
		Score:     res.Score,
		MaxTile:   res.MaxTile,
		Moves:     res.Moves,
		Sealed:    res.Sealed,
	})
	if err != nil {
		log.Warn().Err(err).Str("gameId", res.SessionID).Msg("insert result")
	}
}

// withSession loads {id} from the store into the request context.
// Games belong to their creator; anyone else gets the same 404 as for an
// unknown id.
func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil || !s.isOwner(r, sess.Owner()) {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxSessionKey{}, sess)))
	})
}

func sessionFrom(ctx context.Context) *session.Session {
	sess, _ := ctx.Value(ctxSessionKey{}).(*session.Session)
	return sess
}

func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sessionFrom(r.Context()).Snapshot(r.Context()))
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	var req moveReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json")
		return
	}
	dir, err := game.ParseDirection(req.Direction)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_direction")
		return
	}
	sess := sessionFrom(r.Context())
	out, err := sess.Move(r.Context(), dir)
	if err != nil {
		// only cancellation reaches here; the board is unchanged
		writeError(w, http.StatusServiceUnavailable, "move_cancelled")
		return
	}
	writeJSON(w, http.StatusOK, moveRes{MoveOutcome: out, Game: sess.Snapshot(r.Context())})
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	if err := sess.Restart(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "restart_cancelled")
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot(r.Context()))
}

// handleEnableSealing authorizes the provider for the connected address.
func (s *Server) handleEnableSealing(w http.ResponseWriter, r *http.Request) {
	var req enableReq
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.ExpiryMinutes < 0 {
		writeError(w, http.StatusBadRequest, "invalid_expiry")
		return
	}
	sess := sessionFrom(r.Context())
	st, err := sess.EnableSealing(r.Context(), readiness.Credentials{
		Identity:    identityFrom(r.Context()),
		Environment: req.Environment,
		Expiry:      time.Duration(req.ExpiryMinutes) * time.Minute,
	})
	if err != nil {
		writeJSON(w, sealingStatus(err), sealingRes{Readiness: st, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, sealingRes{Readiness: st})
}

func (s *Server) handleResetSealing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sealingRes{Readiness: sessionFrom(r.Context()).ResetAuthorization()})
}

// handleMockSealing switches the game to unsealed play.
func (s *Server) handleMockSealing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sealingRes{Readiness: sessionFrom(r.Context()).PlayUnsealed()})
}

// handleClaim claims an achievement for the address that authorized sealing.
func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	if p, ok := sess.Machine().Permit(); ok && !strings.EqualFold(p.Identity, identityFrom(r.Context())) {
		writeError(w, http.StatusForbidden, "identity_mismatch")
		return
	}
	a, err := sess.Claim(r.Context(), chi.URLParam(r, "aid"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, a)
	case errors.Is(err, progress.ErrUnknownAchievement):
		writeError(w, http.StatusNotFound, "unknown_achievement")
	case errors.Is(err, progress.ErrNotUnlocked):
		writeError(w, http.StatusConflict, "not_unlocked")
	case errors.Is(err, sealing.ErrProviderUnavailable),
		errors.Is(err, sealing.ErrAuthorizationRequired),
		errors.Is(err, sealing.ErrAuthorizationFailed):
		writeJSON(w, sealingStatus(err), sealingRes{Readiness: sess.Machine().Status(), Error: err.Error()})
	default:
		log.Warn().Err(err).Str("gameId", sess.ID()).Msg("claim")
		writeError(w, http.StatusBadGateway, "mint_failed")
	}
}

// sealingStatus maps sealing errors onto HTTP codes.
func sealingStatus(err error) int {
	switch {
	case errors.Is(err, sealing.ErrOperationTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, sealing.ErrProviderUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, sealing.ErrAuthorizationRequired):
		return http.StatusUnauthorized
	case errors.Is(err, sealing.ErrAuthorizationFailed):
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}
