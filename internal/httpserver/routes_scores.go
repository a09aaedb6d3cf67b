// internal/httpserver/routes_scores.go
//
// Read-only views over persisted data:
//   - GET /leaderboard?mode=&date=&limit= → best finished games, plus the
//     caller's personal best in that mode when they have played
//   - GET /claims/mine                    → achievements claimed by the caller
//
// For daily mode the date defaults to today (UTC).

package httpserver

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/robalobadob/sealed2048/internal/claims"
	"github.com/robalobadob/sealed2048/internal/daily"
	"github.com/robalobadob/sealed2048/internal/session"
)

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if s.scores == nil {
		writeError(w, http.StatusServiceUnavailable, "scores_disabled")
		return
	}
	q := r.URL.Query()
	mode := q.Get("mode")
	if mode == "" {
		mode = session.ModeClassic
	}
	if mode != session.ModeClassic && mode != session.ModeDaily {
		writeError(w, http.StatusBadRequest, "invalid_mode")
		return
	}
	date := q.Get("date")
	if date != "" {
		if _, err := daily.ParseDateKey(date); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date")
			return
		}
	} else if mode == session.ModeDaily {
		date = daily.DateKey(s.now())
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit > 100 {
		limit = 100
	}

	rows, err := s.scores.Leaderboard(r.Context(), mode, date, limit)
	if err != nil {
		log.Warn().Err(err).Msg("leaderboard")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	body := map[string]any{"mode": mode, "date": date, "rows": rows}
	if owner := s.callerOwner(r); owner != "" {
		best, err := s.scores.Best(r.Context(), owner, mode)
		if err != nil {
			log.Warn().Err(err).Msg("personal best")
		} else {
			body["best"] = best
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleMyClaims(w http.ResponseWriter, r *http.Request) {
	if s.claims == nil {
		writeError(w, http.StatusServiceUnavailable, "claims_disabled")
		return
	}
	out, err := s.claims.ClaimsFor(r.Context(), identityFrom(r.Context()))
	if err != nil {
		log.Warn().Err(err).Msg("claims for identity")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	if out == nil {
		out = []claims.Entry{}
	}
	writeJSON(w, http.StatusOK, out)
}
