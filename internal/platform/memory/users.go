// Package memory holds process-local repositories with the same semantics as
// the PostgreSQL ones. Handler, end-to-end and perf tests run against them.
package memory

import (
	"context"
	"sync"

	"github.com/campusmarket/campusmarket/internal/auth"
	"github.com/campusmarket/campusmarket/internal/shared"
)

// Users implements auth.Repository.
type Users struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[int64]auth.User
}

var _ auth.Repository = (*Users)(nil)

// NewUsers returns an empty user store.
func NewUsers() *Users {
	return &Users{byID: make(map[int64]auth.User)}
}

// FindByEmail matches the address exactly.
func (s *Users) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.byID {
		if u.Email == email {
			user := u
			return &user, nil
		}
	}
	return nil, shared.ErrNotFound
}

// FindByID returns shared.ErrNotFound for unknown ids.
func (s *Users) FindByID(_ context.Context, id int64) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &u, nil
}

// Create enforces email uniqueness like the users table constraint.
func (s *Users) Create(_ context.Context, in auth.NewUser) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.byID {
		if u.Email == in.Email {
			return nil, auth.ErrDuplicateEmail
		}
	}
	s.nextID++
	u := auth.User{
		ID:           s.nextID,
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: in.PasswordHash,
		CreatedAt:    in.CreatedAt,
	}
	s.byID[u.ID] = u
	return &u, nil
}
