package grant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.pilab.hu/authcore/domain"
	serrors "go.pilab.hu/authcore/errors"
	"go.pilab.hu/authcore/log"
)

// RotationPolicy decides what happens to a refresh token when it is used.
// The zero value is invalid.
type RotationPolicy int

const (
	// RotateAndRevoke consumes the presented refresh token, revokes the access
	// token it last produced and issues a fresh pair.
	RotateAndRevoke RotationPolicy = iota + 1
	// ReuseUntilExpiry keeps the refresh token and issues a new access token
	// linked to it. Earlier access tokens stay valid until they expire.
	ReuseUntilExpiry
)

func (p RotationPolicy) String() string {
	switch p {
	case RotateAndRevoke:
		return "rotate"
	case ReuseUntilExpiry:
		return "reuse"
	default:
		return fmt.Sprintf("RotationPolicy(%d)", int(p))
	}
}

// ParseRotationPolicy parses "rotate" or "reuse".
func ParseRotationPolicy(s string) (RotationPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rotate":
		return RotateAndRevoke, nil
	case "reuse":
		return ReuseUntilExpiry, nil
	default:
		return 0, fmt.Errorf("unknown refresh token rotation policy %q", s)
	}
}

// RefreshTokenIssuer implements the refresh_token grant.
type RefreshTokenIssuer struct {
	store  domain.TokenStore
	minter *Minter
	policy RotationPolicy
	logger log.Logger
}

var _ Issuer = (*RefreshTokenIssuer)(nil)

// NewRefreshTokenIssuer creates a RefreshTokenIssuer. policy must be set explicitly.
func NewRefreshTokenIssuer(store domain.TokenStore, minter *Minter, policy RotationPolicy,
	logger log.Logger,
) (*RefreshTokenIssuer, error) {
	if policy != RotateAndRevoke && policy != ReuseUntilExpiry {
		return nil, fmt.Errorf("invalid refresh token rotation policy: %s", policy)
	}

	if logger == nil {
		logger = log.Nop()
	}

	return &RefreshTokenIssuer{store: store, minter: minter, policy: policy, logger: logger}, nil
}

func (i *RefreshTokenIssuer) GrantType() domain.GrantType {
	return domain.GrantTypeRefreshToken
}

// Policy returns the configured rotation policy.
func (i *RefreshTokenIssuer) Policy() RotationPolicy {
	return i.policy
}

func (i *RefreshTokenIssuer) Issue(ctx context.Context, c *domain.Client, req *domain.TokenRequest) (*Result, error) {
	if err := checkAllowed(c, domain.GrantTypeRefreshToken); err != nil {
		return nil, err
	}

	if req.RefreshToken == "" {
		return nil, fmt.Errorf("%w: missing refresh_token", serrors.ErrInvalidRequest)
	}

	old, err := i.lookup(ctx, req.RefreshToken)
	if err != nil {
		return nil, err
	}

	if old.ClientID != c.ID || old.Expired(i.minter.Now()) {
		i.logger.Info(ctx, "refresh token rejected", log.Fields{
			"client_id": c.ID,
			"token":     log.Fingerprint(req.RefreshToken),
		})

		return nil, serrors.ErrInvalidGrant
	}

	scopes := old.Scopes
	if len(req.Scopes) > 0 {
		if !subset(req.Scopes, old.Scopes) {
			return nil, fmt.Errorf("%w: requested scope exceeds the original grant", serrors.ErrInvalidScope)
		}
		scopes = dedupe(req.Scopes)
	}

	if i.policy == ReuseUntilExpiry {
		return i.reuse(ctx, c, old, scopes)
	}

	return i.rotate(ctx, c, old, scopes)
}

func (i *RefreshTokenIssuer) rotate(ctx context.Context, c *domain.Client, old *domain.RefreshToken,
	scopes []string,
) (*Result, error) {
	// A concurrent refresh with the same token loses here.
	if _, err := i.consume(ctx, old.Value); err != nil {
		return nil, err
	}

	if old.AccessToken != "" {
		if err := i.store.DeleteAccessToken(ctx, old.AccessToken); err != nil && !errors.Is(err, serrors.ErrNotFound) {
			return nil, fmt.Errorf("failed to revoke previous access token: %w", err)
		}
	}

	res := &Result{
		Access:  i.minter.Access(c, old.Subject, scopes),
		Refresh: i.minter.Refresh(c, old.Subject, old.Scopes),
	}
	link(res)

	if err := i.minter.Persist(ctx, res); err != nil {
		return nil, err
	}

	return res, nil
}

func (i *RefreshTokenIssuer) reuse(ctx context.Context, c *domain.Client, old *domain.RefreshToken,
	scopes []string,
) (*Result, error) {
	res := &Result{
		Access:  i.minter.Access(c, old.Subject, scopes),
		Refresh: old,
	}
	link(res)

	// The access token is saved before the link so a revocation that sees
	// the new link also removes it.
	if err := i.minter.Persist(ctx, &Result{Access: res.Access}); err != nil {
		return nil, err
	}

	if err := i.store.LinkRefreshToken(ctx, old.Value, res.Access.Value); err != nil {
		delErr := i.store.DeleteAccessToken(ctx, res.Access.Value)
		if delErr != nil && !errors.Is(delErr, serrors.ErrNotFound) {
			i.logger.Error(ctx, "failed to drop access token of a revoked refresh token", delErr)
		}

		if errors.Is(err, serrors.ErrNotFound) {
			i.logger.Info(ctx, "refresh token revoked during refresh", log.Fields{
				"client_id": c.ID,
				"token":     log.Fingerprint(old.Value),
			})
			return nil, serrors.ErrInvalidGrant
		}

		return nil, fmt.Errorf("failed to link refresh token: %w", err)
	}

	return res, nil
}

func (i *RefreshTokenIssuer) lookup(ctx context.Context, value string) (*domain.RefreshToken, error) {
	token, err := i.store.GetRefreshToken(ctx, value)
	if err != nil {
		if errors.Is(err, serrors.ErrNotFound) {
			return nil, serrors.ErrInvalidGrant
		}

		return nil, fmt.Errorf("failed to look up refresh token: %w", err)
	}

	return token, nil
}

func (i *RefreshTokenIssuer) consume(ctx context.Context, value string) (*domain.RefreshToken, error) {
	token, err := i.store.ConsumeRefreshToken(ctx, value)
	if err != nil {
		if errors.Is(err, serrors.ErrNotFound) {
			return nil, serrors.ErrInvalidGrant
		}

		return nil, fmt.Errorf("failed to consume refresh token: %w", err)
	}

	return token, nil
}
