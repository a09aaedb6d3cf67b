package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/robalobadob/sealed2048/internal/sealing"
)

const anonCookieName = "tiles_anon"

// ctxIdentityKey is the context key for the connected address.
type ctxIdentityKey struct{}

type connectReq struct {
	Address string `json:"address"`
}

// handleConnect binds an address to the client with a signed cookie.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var body connectReq
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	addr := strings.TrimSpace(body.Address)
	if !sealing.IsAddress(addr) {
		writeError(w, http.StatusBadRequest, "invalid_address")
		return
	}
	tok, exp, err := s.signIdentity(addr)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "sign_failed")
		return
	}
	s.setAuthCookie(w, tok, exp)
	writeJSON(w, http.StatusOK, map[string]any{"identity": addr, "expiresAt": exp, "token": tok})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.clearAuthCookie(w)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"identity": identityFrom(r.Context())})
}

// ------------------------------ JWT & cookies ------------------------------

func (s *Server) jwtSecret() []byte {
	if s.cfg.JWT.Secret == "" {
		return []byte("dev_secret_change_me")
	}
	return []byte(s.cfg.JWT.Secret)
}

func (s *Server) cookieName() string {
	if s.cfg.JWT.CookieName == "" {
		return "tiles_token"
	}
	return s.cfg.JWT.CookieName
}

// signIdentity creates an HS256 JWT for addr (expiry jwt.expires_days, default 14).
func (s *Server) signIdentity(addr string) (string, time.Time, error) {
	days := s.cfg.JWT.ExpiresDays
	if days <= 0 {
		days = 14
	}
	now := s.now()
	exp := now.Add(time.Duration(days) * 24 * time.Hour)
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   addr,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	ss, err := t.SignedString(s.jwtSecret())
	return ss, exp, err
}

// parseIdentity returns the address in a valid token, or "".
func (s *Server) parseIdentity(tok string) string {
	var claims jwt.RegisteredClaims
	t, err := jwt.ParseWithClaims(tok, &claims, func(t *jwt.Token) (interface{}, error) {
		return s.jwtSecret(), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil || !t.Valid || !sealing.IsAddress(claims.Subject) {
		return ""
	}
	return claims.Subject
}

func (s *Server) cookie(value string, exp time.Time, maxAge int) *http.Cookie {
	secure := s.cfg.Production
	sameSite := http.SameSiteLaxMode
	if secure {
		sameSite = http.SameSiteNoneMode // required for third-party contexts when Secure
	}
	return &http.Cookie{
		Name:     s.cookieName(),
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: sameSite,
		Expires:  exp,
		MaxAge:   maxAge,
	}
}

func (s *Server) setAuthCookie(w http.ResponseWriter, token string, exp time.Time) {
	http.SetCookie(w, s.cookie(token, exp, 0))
}

func (s *Server) clearAuthCookie(w http.ResponseWriter) {
	http.SetCookie(w, s.cookie("", time.Time{}, -1))
}

// bearerOrCookie extracts a bearer token from Authorization header or auth cookie.
func (s *Server) bearerOrCookie(r *http.Request) string {
	if a := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(a), "bearer ") {
		return strings.TrimSpace(a[7:])
	}
	if c, err := r.Cookie(s.cookieName()); err == nil {
		return c.Value
	}
	return ""
}

// --------------------------- identity middleware ---------------------------

// withOptionalIdentity puts the connected address into the context when a
// valid token is present. It never rejects.
func (s *Server) withOptionalIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tok := s.bearerOrCookie(r); tok != "" {
			if id := s.parseIdentity(tok); id != "" {
				r = r.WithContext(context.WithValue(r.Context(), ctxIdentityKey{}, id))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// requireIdentity rejects requests without a connected address.
func (s *Server) requireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if identityFrom(r.Context()) != "" {
			next.ServeHTTP(w, r)
			return
		}
		tok := s.bearerOrCookie(r)
		if tok == "" {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		id := s.parseIdentity(tok)
		if id == "" {
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxIdentityKey{}, id)))
	})
}

func identityFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxIdentityKey{}).(string)
	return id
}

// ensureAnonID returns an existing anon cookie or sets a new one.
func (s *Server) ensureAnonID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(anonCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	id := "anon-" + uuid.NewString()
	c := s.cookie(id, s.now().Add(180*24*time.Hour), 0)
	c.Name = anonCookieName
	http.SetCookie(w, c)
	return id
}

// owner is the connected address, or the anonymous id for guests.
func (s *Server) owner(w http.ResponseWriter, r *http.Request) string {
	if id := identityFrom(r.Context()); id != "" {
		return id
	}
	return s.ensureAnonID(w, r)
}

// isOwner reports whether r comes from owner: the connected address, or the
// anonymous cookie the game was created under.
func (s *Server) isOwner(r *http.Request, owner string) bool {
	if owner == "" {
		return false
	}
	if id := identityFrom(r.Context()); id != "" && strings.EqualFold(id, owner) {
		return true
	}
	c, err := r.Cookie(anonCookieName)
	return err == nil && c.Value == owner
}

// callerOwner identifies the caller without issuing cookies; "" when unknown.
func (s *Server) callerOwner(r *http.Request) string {
	if tok := s.bearerOrCookie(r); tok != "" {
		if id := s.parseIdentity(tok); id != "" {
			return id
		}
	}
	if c, err := r.Cookie(anonCookieName); err == nil {
		return c.Value
	}
	return ""
}
