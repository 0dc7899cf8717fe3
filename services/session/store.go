package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/upb/academic-records/models"
	"go.uber.org/zap"
)

// DefaultTTL bounds how long an issued token stays valid when no TTL is configured.
const DefaultTTL = 12 * time.Hour

// maxIssueAttempts caps regeneration when a freshly generated token is already in use.
const maxIssueAttempts = 3

var errTokenSpaceExhausted = errors.New("session: could not generate an unused token")

// Session is the server-side record behind an opaque token.
type Session struct {
	Token     string
	Email     string
	Role      models.Role
	IssuedAt  time.Time
	ExpiresAt time.Time // zero when the store has no TTL
}

func (s *Session) expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Gauge receives the live session count after every change to the store.
type Gauge interface {
	SetActiveSessions(n int)
}

// Store is an in-memory token registry.
// All operations take the same lock so issue, revoke and resolve are linearizable.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
	gauge    Gauge
	logger   *zap.Logger

	issued  uint64
	revoked uint64
	expired uint64

	now      func() time.Time
	newToken func() (string, error)
}

// NewStore creates a Store. A ttl of zero keeps sessions until they are revoked.
// gauge may be nil.
func NewStore(ttl time.Duration, gauge Gauge, logger *zap.Logger) *Store {
	if ttl < 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		gauge:    gauge,
		logger:   logger,
		now:      time.Now,
		newToken: randomToken,
	}
}

// randomToken returns a version 4 UUID, which carries 122 random bits.
func randomToken() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Issue creates a session for email with the given role and returns its token.
func (s *Store) Issue(email string, role models.Role) (string, error) {
	token, err := s.issue(email, role)
	if err != nil {
		return "", err
	}
	s.report()
	return token, nil
}

func (s *Store) issue(email string, role models.Role) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for attempt := 0; attempt < maxIssueAttempts; attempt++ {
		token, err := s.newToken()
		if err != nil {
			return "", fmt.Errorf("session: generate token: %w", err)
		}
		if existing, taken := s.sessions[token]; taken && !existing.expired(now) {
			s.logger.Warn("session token collision, regenerating", zap.Int("attempt", attempt+1))
			continue
		}

		sess := &Session{
			Token:    token,
			Email:    email,
			Role:     role,
			IssuedAt: now,
		}
		if s.ttl > 0 {
			sess.ExpiresAt = now.Add(s.ttl)
		}
		s.sessions[token] = sess
		s.issued++

		s.logger.Debug("session issued",
			zap.String("email", email),
			zap.String("role", role.String()),
			zap.String("token_fp", Fingerprint(token)),
		)
		return token, nil
	}

	return "", errTokenSpaceExhausted
}

// Revoke removes the session behind token.
// It reports whether a live session existed; revoking twice returns false the second time.
func (s *Store) Revoke(token string) bool {
	if token == "" {
		return false
	}
	if !s.revoke(token) {
		return false
	}
	s.report()
	return true
}

func (s *Store) revoke(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok {
		return false
	}
	delete(s.sessions, token)

	if sess.expired(s.now()) {
		s.expired++
		return false
	}
	s.revoked++
	s.logger.Debug("session revoked", zap.String("email", sess.Email), zap.String("token_fp", Fingerprint(token)))
	return true
}

// RevokeAllForEmail drops every session held by email and returns how many were live.
func (s *Store) RevokeAllForEmail(email string) int {
	n := s.revokeAllForEmail(email)
	if n > 0 {
		s.report()
	}
	return n
}

func (s *Store) revokeAllForEmail(email string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	count := 0
	for token, sess := range s.sessions {
		if sess.Email != email {
			continue
		}
		delete(s.sessions, token)
		if sess.expired(now) {
			s.expired++
			continue
		}
		s.revoked++
		count++
	}
	return count
}

// Resolve returns a copy of the live session for token. Expired entries are
// reported as misses and left for the cleanup sweep.
func (s *Store) Resolve(token string) (Session, bool) {
	if token == "" {
		return Session{}, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[token]
	if !ok || sess.expired(s.now()) {
		return Session{}, false
	}
	return *sess, true
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.ttl == 0 {
		return len(s.sessions)
	}
	now := s.now()
	live := 0
	for _, sess := range s.sessions {
		if !sess.expired(now) {
			live++
		}
	}
	return live
}

// report pushes the live count to the gauge. Callers must not hold mu.
func (s *Store) report() {
	if s.gauge != nil {
		s.gauge.SetActiveSessions(s.Len())
	}
}

// CleanupExpired removes all expired sessions. The gauge is refreshed even when
// nothing was removed, since sessions stop being live at their expiry instant.
func (s *Store) CleanupExpired() int {
	n := s.cleanupExpired()
	s.report()
	return n
}

func (s *Store) cleanupExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ttl == 0 {
		return 0
	}

	now := s.now()
	removed := 0
	for token, sess := range s.sessions {
		if sess.expired(now) {
			delete(s.sessions, token)
			removed++
		}
	}
	s.expired += uint64(removed)
	return removed
}

// StartCleanupWorker periodically sweeps expired sessions until stopCh is closed.
func (s *Store) StartCleanupWorker(interval time.Duration, stopCh <-chan struct{}) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := s.CleanupExpired(); n > 0 {
				s.logger.Debug("expired sessions removed", zap.Int("count", n))
			}
		case <-stopCh:
			return
		}
	}
}

// Stats represents session store statistics
type Stats struct {
	Stored     int    `json:"stored"` // includes expired sessions not yet swept
	Issued     uint64 `json:"issued"`
	Revoked    uint64 `json:"revoked"`
	Expired    uint64 `json:"expired"`
	TTLSeconds int64  `json:"ttl_seconds"`
}

// Stats returns store statistics
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		Stored:     len(s.sessions),
		Issued:     s.issued,
		Revoked:    s.revoked,
		Expired:    s.expired,
		TTLSeconds: int64(s.ttl / time.Second),
	}
}

// Fingerprint shortens a token for logs so the bearer value is never written out.
func Fingerprint(token string) string {
	if len(token) <= 8 {
		return "********"
	}
	return token[:8]
}
