// Package grant issues tokens for the supported OAuth2 grant types and
// routes token requests to the matching issuer.
package grant

import (
	"context"
	"fmt"

	"go.pilab.hu/authcore/domain"
	serrors "go.pilab.hu/authcore/errors"
)

// Issuer handles one grant type.
type Issuer interface {
	GrantType() domain.GrantType
	Issue(ctx context.Context, c *domain.Client, req *domain.TokenRequest) (*Result, error)
}

// Result is the outcome of a successful grant. Refresh is nil when the grant
// does not issue one.
type Result struct {
	Access  *domain.AccessToken
	Refresh *domain.RefreshToken
}

// checkAllowed fails with ErrUnauthorizedClient when the client may not use gt.
func checkAllowed(c *domain.Client, gt domain.GrantType) error {
	if !c.AllowsGrant(gt) {
		return fmt.Errorf("%w: client %s may not use %s", serrors.ErrUnauthorizedClient, c.ID, gt)
	}

	return nil
}
