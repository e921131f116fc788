// Package session maps chat users to conversation sessions and guards each session
// with a single-flight flag so at most one completion runs per user.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"match-chatter/internal/history"
	"match-chatter/internal/logging"
)

// ThreadAllocator creates a remote conversation thread for job-style completion backends.
type ThreadAllocator interface {
	CreateThread(ctx context.Context) (string, error)
}

// Session is owned by the Registry; other components borrow it for one request.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu       sync.Mutex
	threadID string
}

// ThreadID returns the remote thread handle, empty when none was allocated.
func (s *Session) ThreadID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threadID
}

type Registry struct {
	store  history.Store
	alloc  ThreadAllocator
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
	inFlight map[string]struct{}
}

// NewRegistry builds an empty registry. alloc may be nil when the completion
// backend keeps no remote state.
func NewRegistry(store history.Store, alloc ThreadAllocator, logger *slog.Logger) *Registry {
	return &Registry{
		store:    store,
		alloc:    alloc,
		logger:   logging.OrDefault(logger),
		now:      time.Now,
		sessions: make(map[string]*Session),
		inFlight: make(map[string]struct{}),
	}
}

// GetOrCreate returns the user's session, creating it on first use. With an
// allocator the remote thread is allocated once; a failed allocation is retried on
// the next call.
func (r *Registry) GetOrCreate(ctx context.Context, userID string) (*Session, error) {
	r.mu.Lock()
	sess, ok := r.sessions[userID]
	if !ok {
		sess = &Session{ID: userID, CreatedAt: r.now().UTC()}
		r.sessions[userID] = sess
		r.logger.Info("session created", "session_id", userID)
	}
	r.mu.Unlock()

	if r.alloc == nil {
		return sess, nil
	}

	// Allocation runs under the session's own lock: concurrent first messages of one
	// user share a single thread, other users are not blocked.
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.threadID != "" {
		return sess, nil
	}
	threadID, err := r.alloc.CreateThread(ctx)
	if err != nil {
		return nil, fmt.Errorf("allocate thread for session %s: %w", userID, err)
	}
	sess.threadID = threadID
	r.logger.Info("thread allocated", "session_id", userID, "thread_id", threadID)
	return sess, nil
}

// Reset forgets the session and clears its stored history.
func (r *Registry) Reset(ctx context.Context, userID string) error {
	r.mu.Lock()
	delete(r.sessions, userID)
	r.mu.Unlock()

	if err := r.store.Clear(ctx, userID); err != nil {
		return fmt.Errorf("clear history for session %s: %w", userID, err)
	}
	r.logger.Info("session reset", "session_id", userID)
	return nil
}

// TryAcquire marks a completion as in flight for userID. It returns false when one
// is already running; callers must then reject or queue the request.
func (r *Registry) TryAcquire(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.inFlight[userID]; busy {
		return false
	}
	r.inFlight[userID] = struct{}{}
	return true
}

func (r *Registry) Release(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inFlight, userID)
}

// InFlight is a non-authoritative peek used to reject early; TryAcquire decides.
func (r *Registry) InFlight(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, busy := r.inFlight[userID]
	return busy
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
