package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.pilab.hu/authcore/domain"
	serrors "go.pilab.hu/authcore/errors"
	"go.pilab.hu/authcore/log"
)

// ErrBadCredentials is returned for an unknown user, an inactive user or a
// wrong password alike. It wraps errors.ErrInvalidGrant.
var ErrBadCredentials = fmt.Errorf("bad credentials: %w", serrors.ErrInvalidGrant)

// UserAuthenticator authenticates resource owners against a user directory.
type UserAuthenticator struct {
	users    domain.UserDirectory
	verifier domain.SecretVerifier
	hasher   *BcryptPasswordHasher
	logger   log.Logger

	dummyOnce sync.Once
	dummyHash string
}

var _ domain.UserAuthenticator = (*UserAuthenticator)(nil)

// NewUserAuthenticator creates a UserAuthenticator. hasher produces the dummy
// hash verified for unknown users and is used as the verifier.
func NewUserAuthenticator(users domain.UserDirectory, hasher *BcryptPasswordHasher, logger log.Logger) *UserAuthenticator {
	if logger == nil {
		logger = log.Nop()
	}

	return &UserAuthenticator{
		users:    users,
		verifier: hasher,
		hasher:   hasher,
		logger:   logger,
	}
}

// Authenticate returns the active user with the given credentials.
func (a *UserAuthenticator) Authenticate(ctx context.Context, username, password string) (*domain.User, error) {
	user, err := a.users.FindUserByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, serrors.ErrNotFound) {
			return nil, fmt.Errorf("failed to look up user: %w", err)
		}

		// Burn a comparable amount of time so unknown users are not distinguishable.
		a.verifier.Matches(password, a.dummy())
		return nil, ErrBadCredentials
	}

	if !a.verifier.Matches(password, user.PasswordHash) {
		a.logger.Info(ctx, "password mismatch", log.Fields{"user_id": user.ID})
		return nil, ErrBadCredentials
	}

	if !user.IsActive() {
		a.logger.Info(ctx, "inactive user attempted password grant", log.Fields{"user_id": user.ID})
		return nil, ErrBadCredentials
	}

	if a.hasher.NeedsRehash(user.PasswordHash) {
		a.logger.Debug(ctx, "password hash below configured cost", log.Fields{"user_id": user.ID})
	}

	return user, nil
}

func (a *UserAuthenticator) dummy() string {
	a.dummyOnce.Do(func() {
		hash, err := a.hasher.Hash("authcore-dummy-password")
		if err == nil {
			a.dummyHash = hash
		}
	})

	return a.dummyHash
}
