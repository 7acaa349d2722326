// Package memory holds the in-process repository implementations backing the
// builder. Sessions are ephemeral; a lost session simply means the shopper
// starts a fresh bracelet.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/stellare-shop/builder/internal/domain"
)

const defaultSessionTTL = 12 * time.Hour

// SessionRepository is a mutex-guarded map of live builder sessions.
type SessionRepository struct {
	mu       sync.RWMutex
	ttl      time.Duration
	sessions map[string]*domain.Session
}

// NewSessionRepository constructs an empty store. Sessions untouched for
// longer than ttl are eligible for cleanup.
func NewSessionRepository(ttl time.Duration) *SessionRepository {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &SessionRepository{
		ttl:      ttl,
		sessions: make(map[string]*domain.Session),
	}
}

// Create registers a new session. Creating an id twice is a conflict.
func (r *SessionRepository) Create(_ context.Context, session *domain.Session) error {
	if session == nil || strings.TrimSpace(session.ID) == "" {
		return &sessionError{msg: "session id is required"}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[session.ID]; exists {
		return &sessionError{msg: fmt.Sprintf("session %s already exists", session.ID), conflict: true}
	}
	r.sessions[session.ID] = session
	return nil
}

// Get returns the live session for the id.
func (r *SessionRepository) Get(_ context.Context, sessionID string) (*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return nil, &sessionError{msg: fmt.Sprintf("session %s not found", sessionID), notFound: true}
	}
	return session, nil
}

// Save stores the session state. The session must already exist.
func (r *SessionRepository) Save(_ context.Context, session *domain.Session) error {
	if session == nil || strings.TrimSpace(session.ID) == "" {
		return &sessionError{msg: "session id is required"}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[session.ID]; !ok {
		return &sessionError{msg: fmt.Sprintf("session %s not found", session.ID), notFound: true}
	}
	r.sessions[session.ID] = session
	return nil
}

// Delete removes the session. Deleting an unknown id is a no-op.
func (r *SessionRepository) Delete(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, sessionID)
	return nil
}

// CleanupExpired removes up to limit sessions whose last update is older
// than the retention window.
func (r *SessionRepository) CleanupExpired(_ context.Context, now time.Time, limit int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limit <= 0 || limit > len(r.sessions) {
		limit = len(r.sessions)
	}

	removed := 0
	for id, session := range r.sessions {
		if now.Sub(session.UpdatedAt) < r.ttl {
			continue
		}
		delete(r.sessions, id)
		removed++
		if removed >= limit {
			break
		}
	}
	return removed, nil
}

// Len reports the number of live sessions, used by health reporting.
func (r *SessionRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

type sessionError struct {
	msg      string
	notFound bool
	conflict bool
}

func (e *sessionError) Error() string { return "session repository: " + e.msg }

func (e *sessionError) IsNotFound() bool { return e.notFound }

func (e *sessionError) IsConflict() bool { return e.conflict }

func (e *sessionError) IsUnavailable() bool { return false }
