package grant

import (
	"context"
	"errors"
	"fmt"

	"go.pilab.hu/authcore/domain"
	serrors "go.pilab.hu/authcore/errors"
)

// PasswordIssuer implements the resource owner password credentials grant.
type PasswordIssuer struct {
	users  domain.UserAuthenticator
	minter *Minter
}

var _ Issuer = (*PasswordIssuer)(nil)

func NewPasswordIssuer(users domain.UserAuthenticator, minter *Minter) *PasswordIssuer {
	return &PasswordIssuer{users: users, minter: minter}
}

func (i *PasswordIssuer) GrantType() domain.GrantType {
	return domain.GrantTypePassword
}

// Issue authenticates the user and grants the user's scopes, narrowed to the
// client's allowed scopes and then to the requested ones.
func (i *PasswordIssuer) Issue(ctx context.Context, c *domain.Client, req *domain.TokenRequest) (*Result, error) {
	if err := checkAllowed(c, domain.GrantTypePassword); err != nil {
		return nil, err
	}

	if req.Username == "" || req.Password == "" {
		return nil, fmt.Errorf("%w: missing username or password", serrors.ErrInvalidRequest)
	}

	user, err := i.users.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, serrors.ErrInvalidGrant) {
			return nil, serrors.ErrInvalidGrant
		}

		return nil, fmt.Errorf("failed to authenticate user: %w", err)
	}

	scopes := intersect(user.Scopes, c.AllowedScopes)
	if len(req.Scopes) > 0 {
		scopes = intersect(req.Scopes, scopes)
		if len(scopes) == 0 {
			return nil, fmt.Errorf("%w: none of the requested scopes are granted", serrors.ErrInvalidScope)
		}
	}

	return i.minter.Pair(ctx, c, user.ID, scopes)
}
