package session

import (
	"context"
	"sync"
)

// Store persists the single session record across gateway restarts.
// Implementations must be safe for concurrent use. The Manager treats the
// store as write-through persistence: its in-memory copy stays authoritative,
// so a failing store degrades durability, never correctness.
type Store interface {
	// Load returns the persisted session, or ErrNotFound when none exists.
	Load(ctx context.Context) (Session, error)
	Save(ctx context.Context, sess Session) error
	Clear(ctx context.Context) error
}

// MemoryStore keeps the session in process memory. It is the default store;
// the session then lives exactly as long as the gateway process.
type MemoryStore struct {
	mu   sync.RWMutex
	sess Session
	set  bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load implements Store.
func (s *MemoryStore) Load(ctx context.Context) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.set {
		return Session{}, ErrNotFound
	}
	return s.sess, nil
}

// Save implements Store.
func (s *MemoryStore) Save(ctx context.Context, sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sess = sess
	s.set = true
	return nil
}

// Clear implements Store.
func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sess = Session{}
	s.set = false
	return nil
}
