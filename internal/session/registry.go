// Package session tracks which users are currently logged in. A session is a
// logical marker only; it is not tied to any open stream and lives until an
// explicit logout.
package session

import (
	"context"
	"sync"
	"time"

	"pollchat/internal/apperr"
)

type Session struct {
	UserID   int       `json:"id"`
	Username string    `json:"username"`
	Since    time.Time `json:"since"`
}

// Registry holds at most one Session per user id.
type Registry interface {
	// Add is a no-op when the user already has a session.
	Add(ctx context.Context, s Session) error
	// Remove reports whether a session was present.
	Remove(ctx context.Context, userID int) (bool, error)
	// Find returns apperr.ErrNotFound when the user has no session.
	Find(ctx context.Context, userID int) (*Session, error)
	// List returns sessions in login order.
	List(ctx context.Context) ([]Session, error)
}

type Memory struct {
	mu    sync.RWMutex
	byID  map[int]Session
	order []int
}

func NewMemory() *Memory {
	return &Memory{byID: make(map[int]Session)}
}

func (m *Memory) Add(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byID[s.UserID]; ok {
		return nil
	}
	if s.Since.IsZero() {
		s.Since = time.Now().UTC()
	}
	m.byID[s.UserID] = s
	m.order = append(m.order, s.UserID)
	return nil
}

func (m *Memory) Remove(_ context.Context, userID int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byID[userID]; !ok {
		return false, nil
	}
	delete(m.byID, userID)
	for i, id := range m.order {
		if id == userID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return true, nil
}

func (m *Memory) Find(_ context.Context, userID int) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.byID[userID]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &s, nil
}

func (m *Memory) List(_ context.Context) ([]Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Session, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.byID[id])
	}
	return out, nil
}
