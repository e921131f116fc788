package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one role-tagged message of a session.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func UserTurn(content string) Turn      { return Turn{Role: RoleUser, Content: content} }
func AssistantTurn(content string) Turn { return Turn{Role: RoleAssistant, Content: content} }
func SystemTurn(content string) Turn    { return Turn{Role: RoleSystem, Content: content} }

// Store keeps the bounded, insertion-ordered history of each session.
// Recent returns turns oldest-first and never fails for an unknown session.
// Implementations must be safe for concurrent use across sessions; appends within
// one session are serialized by the caller's single-flight lock.
type Store interface {
	Append(ctx context.Context, sessionID string, turn Turn) error
	Recent(ctx context.Context, sessionID string, limit int) ([]Turn, error)
	Clear(ctx context.Context, sessionID string) error
}

var ErrInvalidLimit = errors.New("history limit must be positive")

// MemoryStore is the volatile backend. History is lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	limit    int
	sessions map[string][]Turn
}

func NewMemoryStore(limit int) (*MemoryStore, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}
	return &MemoryStore{limit: limit, sessions: make(map[string][]Turn)}, nil
}

func (m *MemoryStore) Append(_ context.Context, sessionID string, turn Turn) error {
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	turns := append(m.sessions[sessionID], turn)
	if len(turns) > m.limit {
		// reslicing keeps appends amortized O(1); growth reallocates only the live window
		turns = turns[len(turns)-m.limit:]
	}
	m.sessions[sessionID] = turns
	return nil
}

func (m *MemoryStore) Recent(_ context.Context, sessionID string, limit int) ([]Turn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	turns := m.sessions[sessionID]
	if n := clampLimit(limit, m.limit); len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out, nil
}

func (m *MemoryStore) Clear(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}

// clampLimit bounds a caller-supplied limit by the store's retention; non-positive means all.
func clampLimit(limit, retention int) int {
	if limit <= 0 || limit > retention {
		return retention
	}
	return limit
}
