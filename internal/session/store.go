package session

import (
	"context"
	"sync"
	"time"

	"github.com/samspacey/bsa-data/internal/models"
	"github.com/samspacey/bsa-data/pkg/utils"
)

// State is the per-session conversation memory. Only the last resolved
// intent is kept; raw message history never is.
type State struct {
	SessionID  string              `json:"session_id"`
	LastIntent *models.QueryIntent `json:"last_intent,omitempty"`
	TurnCount  int                 `json:"turn_count"`
	CreatedAt  time.Time           `json:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

// Store holds conversation state across turns. Implementations must make
// SetIntent atomic: the intent commit and the turn count increment happen
// together or not at all.
type Store interface {
	// GetOrCreate returns the existing state, or a fresh one. An empty
	// sessionID allocates a new session.
	GetOrCreate(ctx context.Context, sessionID string) (*State, error)
	// SetIntent commits the turn: stores the intent and increments the
	// turn count.
	SetIntent(ctx context.Context, sessionID string, intent models.QueryIntent) error
	// Reset clears one session, or every session when sessionID is empty.
	Reset(ctx context.Context, sessionID string) error
}

func newState(sessionID string, now time.Time) *State {
	return &State{
		SessionID: sessionID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *State) snapshot() *State {
	copied := *s
	if s.LastIntent != nil {
		intent := *s.LastIntent
		copied.LastIntent = &intent
	}
	return &copied
}

// MemoryStore is the volatile single-process Store. Entries idle longer
// than the TTL are dropped on next access.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*State
	ttl      time.Duration
	now      func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*State),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (m *MemoryStore) GetOrCreate(_ context.Context, sessionID string) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sessionID == "" {
		sessionID = utils.NewSessionID()
	}

	state := m.live(sessionID)
	if state == nil {
		state = newState(sessionID, m.now())
		m.sessions[sessionID] = state
	}
	return state.snapshot(), nil
}

func (m *MemoryStore) SetIntent(_ context.Context, sessionID string, intent models.QueryIntent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	state := m.live(sessionID)
	if state == nil {
		state = newState(sessionID, m.now())
		m.sessions[sessionID] = state
	}

	state.LastIntent = &intent
	state.TurnCount++
	state.UpdatedAt = m.now()
	return nil
}

func (m *MemoryStore) Reset(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sessionID == "" {
		m.sessions = make(map[string]*State)
		return nil
	}
	delete(m.sessions, sessionID)
	return nil
}

// live returns the stored state unless it has expired. Callers hold the
// lock.
func (m *MemoryStore) live(sessionID string) *State {
	state, ok := m.sessions[sessionID]
	if !ok {
		return nil
	}
	if m.ttl > 0 && m.now().Sub(state.UpdatedAt) > m.ttl {
		delete(m.sessions, sessionID)
		return nil
	}
	return state
}
