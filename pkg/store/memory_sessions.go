package store

import "sync"

// MemorySessionStore keeps session tokens in-process. Used in tests.
type MemorySessionStore struct {
	mu     sync.RWMutex
	tokens map[string]string // token -> user ID
}

// NewMemorySessionStore initializes an empty in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{tokens: make(map[string]string)}
}

// NewSession issues an opaque token for the user.
func (m *MemorySessionStore) NewSession(userID string) (string, error) {
	token := randomHexID(16)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token] = userID
	return token, nil
}

// GetUserIDByToken resolves a token to its user.
func (m *MemorySessionStore) GetUserIDByToken(token string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	uid, ok := m.tokens[token]
	return uid, ok, nil
}

// DeleteSession invalidates a token. Unknown tokens are not an error.
func (m *MemorySessionStore) DeleteSession(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, token)
	return nil
}
