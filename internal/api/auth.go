package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// BearerAuth rejects requests whose Authorization header does not carry token.
// An empty token rejects every request.
func BearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !validBearer(r, token) {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func validBearer(r *http.Request, token string) bool {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	return token != "" && strings.HasPrefix(auth, prefix) &&
		subtle.ConstantTimeCompare([]byte(auth[len(prefix):]), []byte(token)) == 1
}

// SessionCookie names the cookie that carries the launch session id.
const SessionCookie = "ltiqa_session"

// DefaultSessionTTL is how long a launch session stays valid.
const DefaultSessionTTL = 8 * time.Hour

// Session is the identity established by an LTI launch.
type Session struct {
	ID          string    `json:"session_id"`
	User        string    `json:"user_id"`
	UserName    string    `json:"user_name"`
	Course      string    `json:"course_id"`
	CourseTitle string    `json:"course_title"`
	Instructor  bool      `json:"is_instructor"`
	CreatedAt   time.Time `json:"created_at"`
}

// Sessions is an in-memory launch session table with a fixed lifetime.
type Sessions struct {
	mu  sync.Mutex
	ttl time.Duration
	now func() time.Time
	m   map[string]Session
}

// NewSessions creates an empty table. ttl <= 0 uses DefaultSessionTTL.
func NewSessions(ttl time.Duration) *Sessions {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Sessions{ttl: ttl, now: time.Now, m: make(map[string]Session)}
}

// Create stores s under a fresh id and returns it. Expired sessions are
// pruned on the way.
func (s *Sessions) Create(sess Session) Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, old := range s.m {
		if now.Sub(old.CreatedAt) > s.ttl {
			delete(s.m, id)
		}
	}
	sess.ID = uuid.New().String()
	sess.CreatedAt = now
	s.m[sess.ID] = sess
	return sess
}

// Get returns the live session with id.
func (s *Sessions) Get(id string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.m[id]
	if !ok {
		return Session{}, false
	}
	if s.now().Sub(sess.CreatedAt) > s.ttl {
		delete(s.m, id)
		return Session{}, false
	}
	return sess, true
}

type sessionKey struct{}

// withSession attaches the launch session named by the request cookie, if any.
func withSession(sessions *Sessions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if c, err := r.Cookie(SessionCookie); err == nil {
				if sess, ok := sessions.Get(c.Value); ok {
					r = r.WithContext(context.WithValue(r.Context(), sessionKey{}, sess))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func sessionFrom(ctx context.Context) (Session, bool) {
	sess, ok := ctx.Value(sessionKey{}).(Session)
	return sess, ok
}

// requireInstructor admits requests carrying the admin bearer token or an
// instructor launch session.
func requireInstructor(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if validBearer(r, token) {
				next.ServeHTTP(w, r)
				return
			}
			if sess, ok := sessionFrom(r.Context()); ok && sess.Instructor {
				next.ServeHTTP(w, r)
				return
			}
			httpError(w, http.StatusForbidden, "permission_error", "instructor role required")
		})
	}
}

// courseAllowed reports whether the caller may administer course. Token
// holders may administer any course; instructors only their own.
func courseAllowed(r *http.Request, token, course string) bool {
	if validBearer(r, token) {
		return true
	}
	sess, ok := sessionFrom(r.Context())
	return ok && sess.Instructor && sess.Course == course
}
