package grant

import (
	"context"
	"fmt"

	"go.pilab.hu/authcore/domain"
	serrors "go.pilab.hu/authcore/errors"
)

// ClientCredentialsIssuer issues subject-less access tokens to the client
// itself. It never issues a refresh token.
type ClientCredentialsIssuer struct {
	minter *Minter
}

var _ Issuer = (*ClientCredentialsIssuer)(nil)

func NewClientCredentialsIssuer(minter *Minter) *ClientCredentialsIssuer {
	return &ClientCredentialsIssuer{minter: minter}
}

func (i *ClientCredentialsIssuer) GrantType() domain.GrantType {
	return domain.GrantTypeClientCredentials
}

// Issue grants the requested scopes the client is allowed, or every allowed
// scope when none are requested.
func (i *ClientCredentialsIssuer) Issue(ctx context.Context, c *domain.Client, req *domain.TokenRequest) (*Result, error) {
	if err := checkAllowed(c, domain.GrantTypeClientCredentials); err != nil {
		return nil, err
	}

	scopes := c.AllowedScopes
	if len(req.Scopes) > 0 {
		scopes = intersect(req.Scopes, c.AllowedScopes)
		if len(scopes) == 0 {
			return nil, fmt.Errorf("%w: none of the requested scopes are allowed", serrors.ErrInvalidScope)
		}
	}

	res := &Result{Access: i.minter.Access(c, "", scopes)}
	if err := i.minter.Persist(ctx, res); err != nil {
		return nil, err
	}

	return res, nil
}
