package store

import (
	"sort"
	"sync"

	"docuchat/pkg/domain"
)

// MemoryStore keeps users and the query log in-process. Used in tests and
// for running without a database.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[string]domain.User // key: user ID
	username map[string]string      // username -> user ID
	queries  map[string][]domain.Query
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]domain.User),
		username: make(map[string]string),
		queries:  make(map[string][]domain.Query),
	}
}

// SaveUser registers a user. Mirrors the unique-index behavior of the
// database store for an already-taken username.
func (m *MemoryStore) SaveUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.username[u.Username]; ok && id != u.ID {
		return ErrDuplicateUsername
	}
	m.users[u.ID] = u
	m.username[u.Username] = u.ID
	return nil
}

// HasUsername checks if the username is taken.
func (m *MemoryStore) HasUsername(username string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.username[username]
	return ok, nil
}

// GetUserByUsername looks up a user by username.
func (m *MemoryStore) GetUserByUsername(username string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id, ok := m.username[username]; ok {
		u, exists := m.users[id]
		return u, exists, nil
	}
	return domain.User{}, false, nil
}

// GetUserByID returns a user by ID.
func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

// AppendQuery records a question/answer pair for a user.
func (m *MemoryStore) AppendQuery(q domain.Query) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries[q.UserID] = append(m.queries[q.UserID], q)
	return nil
}

// ListQueriesByUser returns the user's query log, most recent first.
func (m *MemoryStore) ListQueriesByUser(userID string) ([]domain.Query, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := make([]domain.Query, len(m.queries[userID]))
	copy(items, m.queries[userID])
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return items, nil
}
