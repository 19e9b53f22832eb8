// Package memory provides an in-memory session store for development and
// tests. Records are lost on restart and not shared between replicas.
package memory

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tenantkit/tenantkit/session"
)

const cleanupInterval = time.Minute

// Config configures the in-memory store.
type Config struct {
	// Secure controls the session cookie's Secure attribute.
	Secure bool
	// TTL is the sliding session window (default 30 minutes).
	TTL time.Duration
}

type entry struct {
	claims    session.Claims
	expiresAt time.Time
}

// Store is an in-memory session.Store.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]entry

	secure bool
	ttl    time.Duration

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a store and starts its expiry janitor.
func New(cfg Config) *Store {
	if cfg.TTL <= 0 {
		cfg.TTL = session.DefaultTTL
	}

	s := &Store{
		sessions: make(map[string]entry),
		secure:   cfg.Secure,
		ttl:      cfg.TTL,
		done:     make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

// Get returns the session record referenced by the request cookie.
func (s *Store) Get(r *http.Request) (*session.Claims, error) {
	id, ok := session.IDFromRequest(r)
	if !ok {
		return nil, session.ErrNotFound
	}

	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()

	if !ok || time.Now().After(e.expiresAt) {
		return nil, session.ErrNotFound
	}

	claims := e.claims
	return &claims, nil
}

// Put stores the record and refreshes the cookie, reusing the request's
// session ID when one exists so a refresh does not rotate the cookie.
func (s *Store) Put(w http.ResponseWriter, r *http.Request, claims *session.Claims) error {
	id, ok := session.IDFromRequest(r)
	if !ok {
		id = uuid.NewString()
	}

	s.mu.Lock()
	s.sessions[id] = entry{claims: *claims, expiresAt: time.Now().Add(s.ttl)}
	s.mu.Unlock()

	session.WriteCookie(w, id, s.secure, s.ttl)
	return nil
}

// Destroy removes the record and expires the cookie.
func (s *Store) Destroy(w http.ResponseWriter, r *http.Request) error {
	if id, ok := session.IDFromRequest(r); ok {
		s.mu.Lock()
		delete(s.sessions, id)
		s.mu.Unlock()
	}
	session.ClearCookie(w, s.secure)
	return nil
}

// Close stops the janitor.
func (s *Store) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Len reports the number of live records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			s.mu.Lock()
			for id, e := range s.sessions {
				if now.After(e.expiresAt) {
					delete(s.sessions, id)
				}
			}
			s.mu.Unlock()
		}
	}
}
