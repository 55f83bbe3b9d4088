// Package authcore is the core of an OAuth2 authorization server. It issues,
// validates and revokes authorization codes, access tokens and refresh tokens,
// and makes per-request access decisions against the secured resource map.
package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.pilab.hu/authcore/authcode"
	"go.pilab.hu/authcore/client"
	"go.pilab.hu/authcore/domain"
	serrors "go.pilab.hu/authcore/errors"
	"go.pilab.hu/authcore/grant"
	"go.pilab.hu/authcore/internal/audit"
	"go.pilab.hu/authcore/log"
	"go.pilab.hu/authcore/resource"
)

// ServiceConfig holds the collaborators of an OAuthService.
type ServiceConfig struct {
	Clients       domain.ClientDirectory
	Authenticator *client.Authenticator
	Codes         *authcode.Manager
	Dispatcher    *grant.Dispatcher
	Tokens        domain.TokenStore
	Metadata      *resource.MetadataSource
	Logger        log.Logger
	// Audit receives issuance and revocation events. Nil disables auditing.
	Audit *audit.Recorder
	// Clock overrides time.Now for token expiry checks.
	Clock func() time.Time
}

// OAuthService ties the authorization, token, revocation, introspection and
// access-check operations together.
type OAuthService struct {
	clients    domain.ClientDirectory
	auth       *client.Authenticator
	codes      *authcode.Manager
	dispatcher *grant.Dispatcher
	tokens     domain.TokenStore
	metadata   *resource.MetadataSource
	logger     log.Logger
	audit      *audit.Recorder
	now        func() time.Time
}

// NewOAuthService creates a new OAuthService instance
func NewOAuthService(cfg ServiceConfig) (*OAuthService, error) {
	switch {
	case cfg.Clients == nil:
		return nil, errors.New("client directory is required")
	case cfg.Authenticator == nil:
		return nil, errors.New("client authenticator is required")
	case cfg.Codes == nil:
		return nil, errors.New("authorization code manager is required")
	case cfg.Dispatcher == nil:
		return nil, errors.New("grant dispatcher is required")
	case cfg.Tokens == nil:
		return nil, errors.New("token store is required")
	case cfg.Metadata == nil:
		return nil, errors.New("secured resource metadata source is required")
	}

	if cfg.Logger == nil {
		cfg.Logger = log.Nop()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return &OAuthService{
		clients:    cfg.Clients,
		auth:       cfg.Authenticator,
		codes:      cfg.Codes,
		dispatcher: cfg.Dispatcher,
		tokens:     cfg.Tokens,
		metadata:   cfg.Metadata,
		logger:     cfg.Logger,
		audit:      cfg.Audit,
		now:        cfg.Clock,
	}, nil
}

// Authorize issues an authorization code for a request the subject approved.
// Public clients must send a PKCE code challenge.
func (s *OAuthService) Authorize(ctx context.Context, req domain.PendingAuthorization) (*domain.AuthCode, error) {
	c, err := s.clients.FindClient(ctx, req.ClientID)
	if err != nil {
		if errors.Is(err, serrors.ErrNotFound) {
			return nil, serrors.ErrAuthFailure
		}
		return nil, fmt.Errorf("failed to look up client: %w", err)
	}

	if !c.Active {
		return nil, serrors.ErrAuthFailure
	}

	if err := client.ValidateRedirectURI(c, req.RedirectURI); err != nil {
		return nil, err
	}

	if err := client.ValidateGrantType(c, domain.GrantTypeAuthorizationCode); err != nil {
		return nil, err
	}

	if err := client.ValidateScope(c, req.Scopes); err != nil {
		return nil, err
	}

	if c.IsPublic() && req.CodeChallenge == "" {
		return nil, fmt.Errorf("%w: code_challenge required for public clients", serrors.ErrInvalidRequest)
	}

	code, err := s.codes.Issue(ctx, req)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Event{
		Action:   audit.ActionCodeIssued,
		ClientID: c.ID,
		Subject:  req.Subject,
		Target:   log.Fingerprint(code.Code),
		Success:  true,
	})

	return code, nil
}

// Token authenticates the client and dispatches the request to its grant.
// Clients without a secret are resolved as public clients and may only use
// the authorization_code and refresh_token grants.
func (s *OAuthService) Token(ctx context.Context, req *domain.TokenRequest) (*domain.TokenResponse, error) {
	c, err := s.authenticate(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		return nil, err
	}

	if c.IsPublic() &&
		req.GrantType != domain.GrantTypeAuthorizationCode &&
		req.GrantType != domain.GrantTypeRefreshToken {
		return nil, fmt.Errorf("%w: public clients may not use %s", serrors.ErrUnauthorizedClient, req.GrantType)
	}

	resp, err := s.dispatcher.Dispatch(ctx, req.GrantType, c, req)

	evt := audit.Event{
		Action:    audit.ActionTokenIssued,
		ClientID:  c.ID,
		GrantType: string(req.GrantType),
		Success:   err == nil,
	}
	if err != nil {
		evt.Action = audit.ActionTokenDenied
		evt.Error = serrors.FromError(err).Code
	} else {
		evt.Target = log.Fingerprint(resp.AccessToken)
	}
	s.audit.Record(ctx, evt)

	return resp, err
}

// Revoke revokes an access or refresh token. Unknown tokens and tokens of
// other clients are ignored. Revoking a refresh token also revokes the access
// token it last produced.
func (s *OAuthService) Revoke(ctx context.Context, clientID, clientSecret, token, tokenTypeHint string) error {
	c, err := s.authenticate(ctx, clientID, clientSecret)
	if err != nil {
		return err
	}

	access, refresh, err := s.lookup(ctx, token, tokenTypeHint)
	if err != nil {
		return err
	}

	switch {
	case access != nil:
		if access.ClientID != c.ID {
			s.logger.Warn(ctx, "client attempted to revoke a foreign token", log.Fields{"client_id": c.ID})
			return nil
		}
		if err := s.tokens.DeleteAccessToken(ctx, token); err != nil {
			return err
		}
		s.recordRevoke(ctx, c.ID, access.Subject, token)

	case refresh != nil:
		if refresh.ClientID != c.ID {
			s.logger.Warn(ctx, "client attempted to revoke a foreign token", log.Fields{"client_id": c.ID})
			return nil
		}
		if err := s.tokens.DeleteRefreshToken(ctx, token); err != nil {
			return err
		}
		if refresh.AccessToken != "" {
			if err := s.tokens.DeleteAccessToken(ctx, refresh.AccessToken); err != nil &&
				!errors.Is(err, serrors.ErrNotFound) {
				return err
			}
		}
		s.recordRevoke(ctx, c.ID, refresh.Subject, token)
	}

	return nil
}

func (s *OAuthService) recordRevoke(ctx context.Context, clientID, subject, token string) {
	s.audit.Record(ctx, audit.Event{
		Action:   audit.ActionTokenRevoked,
		ClientID: clientID,
		Subject:  subject,
		Target:   log.Fingerprint(token),
		Success:  true,
	})
}

// Introspect reports the state of a token as described in RFC 7662. Unknown
// and expired tokens are inactive. A public client only sees its own tokens;
// any other token is reported inactive to it.
func (s *OAuthService) Introspect(ctx context.Context, clientID, clientSecret, token,
	tokenTypeHint string,
) (*domain.TokenIntrospection, error) {
	caller, err := s.authenticate(ctx, clientID, clientSecret)
	if err != nil {
		return nil, err
	}

	access, refresh, err := s.lookup(ctx, token, tokenTypeHint)
	if err != nil {
		return nil, err
	}

	visible := func(owner string) bool {
		return !caller.IsPublic() || owner == caller.ID
	}

	now := s.now()

	switch {
	case access != nil && !access.Expired(now) && visible(access.ClientID):
		return &domain.TokenIntrospection{
			Active:    true,
			Scope:     grant.JoinScopes(access.Scopes),
			ClientID:  access.ClientID,
			TokenType: domain.TokenTypeBearer,
			Exp:       access.ExpiresAt.Unix(),
			Iat:       access.IssuedAt.Unix(),
			Sub:       access.Subject,
			Jti:       access.ID,
		}, nil

	case refresh != nil && !refresh.Expired(now) && visible(refresh.ClientID):
		return &domain.TokenIntrospection{
			Active:    true,
			Scope:     grant.JoinScopes(refresh.Scopes),
			ClientID:  refresh.ClientID,
			TokenType: domain.TokenTypeRefreshToken,
			Exp:       refresh.ExpiresAt.Unix(),
			Iat:       refresh.IssuedAt.Unix(),
			Sub:       refresh.Subject,
			Jti:       refresh.ID,
		}, nil
	}

	return &domain.TokenIntrospection{Active: false}, nil
}

// ValidateAccessToken returns the live access token record for value.
// Unknown tokens yield ErrNotFound and expired ones ErrExpired.
func (s *OAuthService) ValidateAccessToken(ctx context.Context, value string) (*domain.AccessToken, error) {
	token, err := s.tokens.GetAccessToken(ctx, value)
	if err != nil {
		return nil, err
	}

	if token.Expired(s.now()) {
		return nil, serrors.ErrExpired
	}

	return token, nil
}

// CheckAccess decides whether a caller holding granted may access the path.
func (s *OAuthService) CheckAccess(method, path string, granted []string) resource.Decision {
	return s.metadata.Decide(method, path, granted)
}

func (s *OAuthService) authenticate(ctx context.Context, clientID, clientSecret string) (*domain.Client, error) {
	if clientID == "" {
		return nil, serrors.ErrAuthFailure
	}

	if clientSecret == "" {
		return s.auth.ResolvePublic(ctx, clientID)
	}

	return s.auth.Authenticate(ctx, clientID, clientSecret)
}

// lookup finds token as an access or refresh token, trying the hinted type
// first. Both results are nil when the token is unknown.
func (s *OAuthService) lookup(ctx context.Context, token, tokenTypeHint string) (*domain.AccessToken, *domain.RefreshToken, error) {
	findAccess := func() (*domain.AccessToken, error) {
		t, err := s.tokens.GetAccessToken(ctx, token)
		if errors.Is(err, serrors.ErrNotFound) {
			return nil, nil
		}
		return t, err
	}
	findRefresh := func() (*domain.RefreshToken, error) {
		t, err := s.tokens.GetRefreshToken(ctx, token)
		if errors.Is(err, serrors.ErrNotFound) {
			return nil, nil
		}
		return t, err
	}

	if tokenTypeHint == domain.TokenTypeRefreshToken {
		refresh, err := findRefresh()
		if err != nil || refresh != nil {
			return nil, refresh, err
		}
		access, err := findAccess()
		return access, nil, err
	}

	access, err := findAccess()
	if err != nil || access != nil {
		return access, nil, err
	}
	refresh, err := findRefresh()
	return nil, refresh, err
}
