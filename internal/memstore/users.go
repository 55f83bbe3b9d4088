package memstore

import (
	"context"
	"slices"
	"sync"

	"go.pilab.hu/authcore/domain"
	serrors "go.pilab.hu/authcore/errors"
)

// UserDirectory is an in-memory domain.UserDirectory keyed by username.
type UserDirectory struct {
	mu    sync.RWMutex
	users map[string]*domain.User
}

var _ domain.UserDirectory = (*UserDirectory)(nil)

func NewUserDirectory(users ...*domain.User) *UserDirectory {
	d := &UserDirectory{users: make(map[string]*domain.User, len(users))}
	for _, u := range users {
		d.PutUser(u)
	}

	return d
}

// PutUser adds or replaces a user.
func (d *UserDirectory) PutUser(u *domain.User) {
	d.mu.Lock()
	defer d.mu.Unlock()

	cp := *u
	cp.Scopes = slices.Clone(u.Scopes)
	d.users[u.Username] = &cp
}

func (d *UserDirectory) FindUserByUsername(_ context.Context, username string) (*domain.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.users[username]
	if !ok {
		return nil, serrors.ErrNotFound
	}

	cp := *u
	cp.Scopes = slices.Clone(u.Scopes)

	return &cp, nil
}
