package api

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nroy/coachd/internal/auth"
	"github.com/nroy/coachd/internal/coach"
)

// Session is the per-login context: identity plus any in-flight guided
// interview attached to it. Created at login, dropped at logout, never
// shared across tokens.
type Session struct {
	Token     string
	Username  string
	Admin     bool
	CreatedAt time.Time

	mu     sync.Mutex
	wizard *coach.Session
}

// Wizard returns the in-flight guided session, if any.
func (s *Session) Wizard() *coach.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wizard
}

// SetWizard attaches (or clears, with nil) the guided session.
func (s *Session) SetWizard(w *coach.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wizard = w
}

// Sessions is the in-memory token registry.
type Sessions struct {
	mu      sync.RWMutex
	byToken map[string]*Session
}

func NewSessions() *Sessions {
	return &Sessions{byToken: make(map[string]*Session)}
}

// Create issues a fresh uuid token for the identity.
func (r *Sessions) Create(id auth.Identity) *Session {
	s := &Session{
		Token:     uuid.New().String(),
		Username:  id.Username,
		Admin:     id.Admin,
		CreatedAt: time.Now().UTC(),
	}
	r.mu.Lock()
	r.byToken[s.Token] = s
	r.mu.Unlock()
	return s
}

func (r *Sessions) Get(token string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byToken[token]
	return s, ok
}

func (r *Sessions) Delete(token string) {
	r.mu.Lock()
	delete(r.byToken, token)
	r.mu.Unlock()
}

type ctxKey int

const sessionKey ctxKey = 0

// sessionFrom pulls the authenticated session out of the request context.
// Only reachable below requireSession, so the session is always present.
func sessionFrom(ctx context.Context) *Session {
	return ctx.Value(sessionKey).(*Session)
}

// requireSession resolves the bearer token to a session and injects it into
// the request context.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(header, prefix) {
			httpError(w, http.StatusUnauthorized, "authentication_error", "missing bearer token")
			return
		}
		sess, ok := s.sessions.Get(header[len(prefix):])
		if !ok {
			httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or expired session token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey, sess)))
	})
}

// requireAdmin allows only admin sessions through. Must sit below
// requireSession.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !sessionFrom(r.Context()).Admin {
			httpError(w, http.StatusForbidden, "authorization_error", "admin privileges required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
