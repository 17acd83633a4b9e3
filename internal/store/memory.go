// internal/store/memory.go
//
// In-memory implementation of the session Store interface.
// Every session owns one running round engine; the store is the only thing
// keeping it reachable, so removing a session also stops its engine.
//
// Characteristics:
//   - Sessions keyed by ID (uuid) in a map.
//   - Concurrency-safe via RWMutex (concurrent reads allowed, writes exclusive).
//   - State is lost when the process restarts (high scores are not kept).
//   - Idle sessions are dropped by Sweep.

package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/riddlerush/internal/game"
)

// ErrNotFound is returned for unknown or expired session IDs.
var ErrNotFound = errors.New("session not found")

// Session is one player's game.
type Session struct {
	ID        string
	Engine    *game.Engine
	CreatedAt time.Time

	cancel   context.CancelFunc
	mu       sync.Mutex
	lastSeen time.Time
}

// NewSession assigns a fresh ID, builds the session's engine with it and
// starts the engine on its own goroutine. The engine runs until the session
// is deleted or swept.
func NewSession(build func(id string) *game.Engine) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	e := build(id)
	now := time.Now()
	s := &Session{
		ID:        id,
		Engine:    e,
		CreatedAt: now,
		cancel:    cancel,
		lastSeen:  now,
	}
	go func() {
		if err := e.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn().Err(err).Str("session", s.ID).Msg("engine exited")
		}
	}()
	return s
}

// Touch marks the session as used now.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

// LastSeen is the time of the last Touch.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Stop cancels the engine loop. Safe to call more than once.
func (s *Session) Stop() { s.cancel() }

// Store defines the persistence interface for game sessions.
type Store interface {
	// Save persists or replaces a session.
	Save(ctx context.Context, s *Session) error

	// Get retrieves a session by ID and marks it as seen.
	// Returns ErrNotFound if the session is not present.
	Get(ctx context.Context, id string) (*Session, error)

	// Delete stops and removes a session.
	Delete(ctx context.Context, id string) error

	// Sweep stops and removes sessions idle for longer than maxIdle and
	// reports how many were removed.
	Sweep(ctx context.Context, maxIdle time.Duration) int

	// Len is the number of live sessions.
	Len() int

	// Close stops and removes every session, e.g. on server shutdown.
	Close(ctx context.Context) error
}

// memory is an in-memory map-based Store implementation.
type memory struct {
	mu       sync.RWMutex        // guards sessions map
	sessions map[string]*Session // keyed by Session.ID
}

// NewMemoryStore constructs a new in-memory Store.
func NewMemoryStore() Store {
	return &memory{sessions: make(map[string]*Session)}
}

// Save adds or replaces the session. A replaced session is stopped.
func (m *memory) Save(ctx context.Context, s *Session) error {
	m.mu.Lock()
	old := m.sessions[s.ID]
	m.sessions[s.ID] = s
	m.mu.Unlock()
	if old != nil && old != s {
		old.Stop()
	}
	return nil
}

func (m *memory) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	s.Touch()
	return s, nil
}

func (m *memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	s.Stop()
	return nil
}

func (m *memory) Sweep(ctx context.Context, maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	var idle []*Session

	m.mu.Lock()
	for id, s := range m.sessions {
		if s.LastSeen().Before(cutoff) {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range idle {
		s.Stop()
		log.Debug().Str("session", s.ID).Msg("swept idle session")
	}
	return len(idle)
}

func (m *memory) Close(ctx context.Context) error {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range all {
		s.Stop()
	}
	log.Debug().Int("sessions", len(all)).Msg("stopped all sessions")
	return nil
}

func (m *memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// RunSweeper calls Sweep every interval until ctx ends. after, if non-nil,
// is called with the store size after each pass.
func RunSweeper(ctx context.Context, st Store, every, maxIdle time.Duration, after func(live int)) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := st.Sweep(ctx, maxIdle); n > 0 {
				log.Info().Int("swept", n).Msg("idle sessions removed")
			}
			if after != nil {
				after(st.Len())
			}
		}
	}
}
