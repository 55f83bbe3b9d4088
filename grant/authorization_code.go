package grant

import (
	"context"
	"errors"
	"fmt"

	"go.pilab.hu/authcore/authcode"
	"go.pilab.hu/authcore/domain"
	serrors "go.pilab.hu/authcore/errors"
	"go.pilab.hu/authcore/log"
)

// redemptionErrors are the code lifecycle failures that surface as invalid_grant.
var redemptionErrors = []error{
	serrors.ErrNotFound,
	serrors.ErrExpired,
	serrors.ErrRedirectMismatch,
	serrors.ErrClientMismatch,
	serrors.ErrInvalidPKCE,
}

// AuthorizationCodeIssuer exchanges an authorization code for a token pair.
type AuthorizationCodeIssuer struct {
	codes  *authcode.Manager
	minter *Minter
	logger log.Logger
}

var _ Issuer = (*AuthorizationCodeIssuer)(nil)

func NewAuthorizationCodeIssuer(codes *authcode.Manager, minter *Minter, logger log.Logger) *AuthorizationCodeIssuer {
	if logger == nil {
		logger = log.Nop()
	}

	return &AuthorizationCodeIssuer{codes: codes, minter: minter, logger: logger}
}

func (i *AuthorizationCodeIssuer) GrantType() domain.GrantType {
	return domain.GrantTypeAuthorizationCode
}

// Issue redeems the code and mints tokens bound to its subject and scopes.
// Every redemption failure is reported as ErrInvalidGrant; the cause is only logged.
func (i *AuthorizationCodeIssuer) Issue(ctx context.Context, c *domain.Client, req *domain.TokenRequest) (*Result, error) {
	if err := checkAllowed(c, domain.GrantTypeAuthorizationCode); err != nil {
		return nil, err
	}

	if req.Code == "" {
		return nil, fmt.Errorf("%w: missing code", serrors.ErrInvalidRequest)
	}

	record, err := i.codes.Redeem(ctx, req.Code, domain.CodeExchange{
		ClientID:     c.ID,
		RedirectURI:  req.RedirectURI,
		CodeVerifier: req.CodeVerifier,
	})
	if err != nil {
		for _, target := range redemptionErrors {
			if errors.Is(err, target) {
				i.logger.Info(ctx, "authorization code redemption failed", log.Fields{
					"client_id": c.ID,
					"code":      log.Fingerprint(req.Code),
					"cause":     err.Error(),
				})

				return nil, serrors.ErrInvalidGrant
			}
		}

		return nil, fmt.Errorf("failed to redeem authorization code: %w", err)
	}

	return i.minter.Pair(ctx, c, record.Subject, record.Scopes)
}
