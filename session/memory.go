package session

import "sync"

// MemoryStore keeps the token pair in process memory. Used by tests and by
// callers that do not want the session to outlive the process.
type MemoryStore struct {
	mu   sync.RWMutex
	pair TokenPair
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) AccessToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pair.AccessToken
}

func (m *MemoryStore) RefreshToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pair.RefreshToken
}

func (m *MemoryStore) SetTokens(p TokenPair) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pair = p
}

func (m *MemoryStore) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pair = TokenPair{}
}
