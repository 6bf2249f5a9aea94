// Package auth implements the shared-password login and bearer-token
// sessions of the admin API.
package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	// ErrBadPassword is returned by Login for a wrong password.
	ErrBadPassword = errors.New("wrong password")
	// ErrRateLimited is returned by Login when a client retries too fast.
	ErrRateLimited = errors.New("too many login attempts")
)

// Session is one logged-in client.
type Session struct {
	Token     string
	ExpiresAt time.Time
}

// SessionStore keeps sessions by token.
type SessionStore interface {
	Get(token string) (Session, bool)
	Put(s Session)
	Delete(token string)
	// Expire drops every session that expired at or before now.
	Expire(now time.Time)
}

// MemoryStore is an in-process SessionStore. Sessions do not survive a
// restart.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]Session
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]Session)}
}

func (m *MemoryStore) Get(token string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[token]
	return s, ok
}

func (m *MemoryStore) Put(s Session) {
	m.mu.Lock()
	m.sessions[s.Token] = s
	m.mu.Unlock()
}

func (m *MemoryStore) Delete(token string) {
	m.mu.Lock()
	delete(m.sessions, token)
	m.mu.Unlock()
}

func (m *MemoryStore) Expire(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for tok, s := range m.sessions {
		if !s.ExpiresAt.After(now) {
			delete(m.sessions, tok)
		}
	}
}

// Len reports the number of stored sessions.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Authenticator checks passwords and manages sessions. Every successful
// Verify extends the session by TTL.
type Authenticator struct {
	Password string
	TTL      time.Duration
	Store    SessionStore
	Now      func() time.Time
	Log      *zap.Logger

	// Burst login attempts per client, refilled at one every Every.
	Burst int
	Every time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New returns an Authenticator allowing 5 login attempts per client burst,
// refilled every 12 seconds.
func New(password string, ttl time.Duration, store SessionStore, log *zap.Logger) *Authenticator {
	if store == nil {
		store = NewMemoryStore()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Authenticator{
		Password: password,
		TTL:      ttl,
		Store:    store,
		Now:      time.Now,
		Log:      log,
		Burst:    5,
		Every:    12 * time.Second,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Login checks password and opens a session for client (usually the remote
// address).
func (a *Authenticator) Login(client, password string) (Session, error) {
	if !a.limiter(client).Allow() {
		a.Log.Warn("login rate limited", zap.String("client", client))
		return Session{}, ErrRateLimited
	}
	want := []byte(strings.TrimSpace(a.Password))
	got := []byte(strings.TrimSpace(password))
	if len(want) == 0 || subtle.ConstantTimeCompare(want, got) != 1 {
		a.Log.Warn("login failed", zap.String("client", client))
		return Session{}, ErrBadPassword
	}

	now := a.Now()
	a.Store.Expire(now)
	s := Session{Token: uuid.NewString(), ExpiresAt: now.Add(a.TTL)}
	a.Store.Put(s)
	a.Log.Info("login", zap.String("client", client))
	return s, nil
}

// Verify reports whether token names a live session and, if so, slides its
// expiry forward.
func (a *Authenticator) Verify(token string) bool {
	if token == "" {
		return false
	}
	s, ok := a.Store.Get(token)
	if !ok {
		return false
	}
	now := a.Now()
	if !s.ExpiresAt.After(now) {
		a.Store.Delete(token)
		return false
	}
	s.ExpiresAt = now.Add(a.TTL)
	a.Store.Put(s)
	return true
}

// Logout ends the session for token. Unknown tokens are ignored.
func (a *Authenticator) Logout(token string) {
	if token != "" {
		a.Store.Delete(token)
	}
}

func (a *Authenticator) limiter(client string) *rate.Limiter {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.limiters[client]
	if !ok {
		l = rate.NewLimiter(rate.Every(a.Every), a.Burst)
		a.limiters[client] = l
	}
	return l
}

// TokenFromRequest extracts the bearer token from the Authorization header.
func TokenFromRequest(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}
