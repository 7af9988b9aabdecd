package store

import (
	"errors"

	"docuchat/pkg/domain"
)

// ErrDuplicateUsername is returned by SaveUser when the username is already
// taken, including concurrent registrations that pass an earlier check.
var ErrDuplicateUsername = errors.New("username already exists")

// Store defines persistence operations for user accounts and the query log.
type Store interface {
	// users
	SaveUser(domain.User) error
	HasUsername(username string) (bool, error)
	GetUserByUsername(username string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)

	// query log
	AppendQuery(domain.Query) error
	ListQueriesByUser(userID string) ([]domain.Query, error)
}

// SessionStore issues and validates session tokens.
type SessionStore interface {
	NewSession(userID string) (string, error)
	GetUserIDByToken(token string) (string, bool, error)
	DeleteSession(token string) error
}
