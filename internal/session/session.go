// Package session keeps the per-user conversational state that lives only
// for the lifetime of a login: the semantic index built from the user's
// uploads, the list of trained filenames, and the chat transcript.
package session

import (
	"sync"
	"time"

	"docuchat/internal/index"
	"docuchat/pkg/domain"
)

// State is the in-memory working set for one logged-in user.
type State struct {
	Index        *index.Index
	TrainedFiles []string
	Transcript   []domain.Message
}

// Trained reports whether the user has a usable index.
func (s *State) Trained() bool {
	return s != nil && s.Index != nil && s.Index.Len() > 0
}

// Registry maps user IDs to their session state. All methods are safe for
// concurrent use.
type Registry struct {
	mu     sync.Mutex
	states map[string]*State
}

func NewRegistry() *Registry {
	return &Registry{states: make(map[string]*State)}
}

// SetTrained replaces the user's index and trained-file list wholesale.
// Retraining discards the previous corpus rather than merging into it.
func (r *Registry) SetTrained(userID string, idx *index.Index, files []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state := r.states[userID]
	if state == nil {
		state = &State{}
		r.states[userID] = state
	}
	state.Index = idx
	state.TrainedFiles = append([]string(nil), files...)
}

// Get returns the user's index and trained filenames, or nil when the user
// has not trained yet.
func (r *Registry) Get(userID string) (*index.Index, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state := r.states[userID]
	if state == nil {
		return nil, nil
	}
	return state.Index, append([]string(nil), state.TrainedFiles...)
}

// Trained reports whether the user has an index ready for questions.
func (r *Registry) Trained(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.states[userID].Trained()
}

// AppendExchange records a question/answer pair on the user's transcript.
func (r *Registry) AppendExchange(userID, question, answer string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state := r.states[userID]
	if state == nil {
		state = &State{}
		r.states[userID] = state
	}
	now := time.Now().UTC()
	state.Transcript = append(state.Transcript,
		domain.Message{Role: domain.RoleUser, Content: question, CreatedAt: now},
		domain.Message{Role: domain.RoleAssistant, Content: answer, CreatedAt: now},
	)
}

// Transcript returns a copy of the user's chat messages in order.
func (r *Registry) Transcript(userID string) []domain.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	state := r.states[userID]
	if state == nil {
		return nil
	}
	return append([]domain.Message(nil), state.Transcript...)
}

// Clear drops all session state for the user. Called on logout so the next
// login starts untrained with an empty transcript.
func (r *Registry) Clear(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.states, userID)
}
