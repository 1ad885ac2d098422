package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store keeps sessions in memory for as long as the process lives.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

func (st *Store) Create(now time.Time) *Session {
	s := New(uuid.New().String(), now)
	st.mu.Lock()
	st.sessions[s.id] = s
	st.mu.Unlock()
	return s
}

// Get marks the session as seen at now.
func (st *Store) Get(id string, now time.Time) (*Session, error) {
	st.mu.RLock()
	s, ok := st.sessions[id]
	st.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	s.touch(now)
	return s, nil
}

// Delete removes the session and aborts its running evaluation, if any.
func (st *Store) Delete(id string, now time.Time) error {
	st.mu.Lock()
	s, ok := st.sessions[id]
	delete(st.sessions, id)
	st.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	_, _ = s.CancelRun(now)
	return nil
}

func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Sweep drops sessions not seen for longer than maxIdle and returns how many went.
func (st *Store) Sweep(now time.Time, maxIdle time.Duration) int {
	st.mu.Lock()
	var stale []*Session
	for id, s := range st.sessions {
		if now.Sub(s.idleSince()) > maxIdle {
			stale = append(stale, s)
			delete(st.sessions, id)
		}
	}
	st.mu.Unlock()

	for _, s := range stale {
		_, _ = s.CancelRun(now)
	}
	return len(stale)
}
