package grant_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.pilab.hu/authcore/authcode"
	"go.pilab.hu/authcore/cache"
	"go.pilab.hu/authcore/domain"
	serrors "go.pilab.hu/authcore/errors"
	"go.pilab.hu/authcore/grant"
)

var fixedNow = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

type MockUserAuthenticator struct {
	mock.Mock
}

func (m *MockUserAuthenticator) Authenticate(ctx context.Context, username, password string) (*domain.User, error) {
	args := m.Called(ctx, username, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

type fixture struct {
	tokens *cache.MemoryTokenStore
	codes  *cache.MemoryCodeStore
	minter *grant.Minter
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		tokens: cache.NewMemoryTokenStore(),
		codes:  cache.NewMemoryCodeStore(),
		now:    time.Now().Truncate(time.Second),
	}
	t.Cleanup(func() {
		_ = f.tokens.Close()
		_ = f.codes.Close()
	})

	f.minter = grant.NewMinter(f.tokens, grant.WithClock(func() time.Time { return f.now }))

	return f
}

func confidentialClient(grants ...domain.GrantType) *domain.Client {
	return &domain.Client{
		ID:                "C1",
		Type:              domain.ClientTypeConfidential,
		Active:            true,
		RedirectURIs:      []string{"https://a/cb"},
		AllowedGrantTypes: grants,
		AllowedScopes:     []string{"read", "write"},
		Claims:            map[string]string{"tenant": "acme"},
	}
}

func TestMinter_ExpiryTruncatedToSeconds(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 750_000_000, time.UTC)
	m := grant.NewMinter(cache.NewMemoryTokenStore(), grant.WithClock(func() time.Time { return now }))

	c := confidentialClient()
	c.AccessTokenTTL = 10 * time.Minute

	access := m.Access(c, "alice", []string{"read"})
	assert.Equal(t, time.Date(2024, 1, 1, 12, 10, 0, 0, time.UTC), access.ExpiresAt)
	assert.Len(t, access.Value, 32)
	assert.NotEmpty(t, access.ID)
	assert.Equal(t, "acme", access.Claims["tenant"])

	refresh := m.Refresh(c, "alice", []string{"read"})
	assert.Equal(t, now.Add(grant.DefaultRefreshTokenTTL).Truncate(time.Second), refresh.ExpiresAt)
}

func TestAuthorizationCodeIssuer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	codes := authcode.NewManager(f.codes)
	issuer := grant.NewAuthorizationCodeIssuer(codes, f.minter, nil)
	c := confidentialClient(domain.GrantTypeAuthorizationCode)

	code, err := codes.Issue(ctx, domain.PendingAuthorization{
		ClientID: "C1", Subject: "alice", RedirectURI: "https://a/cb", State: "xyz", Scopes: []string{"read"},
	})
	require.NoError(t, err)

	res, err := issuer.Issue(ctx, c, &domain.TokenRequest{
		GrantType: domain.GrantTypeAuthorizationCode, Code: code.Code, RedirectURI: "https://a/cb",
	})
	require.NoError(t, err)
	require.NotNil(t, res.Refresh)
	assert.Equal(t, "alice", res.Access.Subject)
	assert.Equal(t, []string{"read"}, res.Access.Scopes)
	assert.Equal(t, res.Refresh.Value, res.Access.RefreshToken)

	stored, err := f.tokens.GetAccessToken(ctx, res.Access.Value)
	require.NoError(t, err)
	assert.Equal(t, res.Access.ID, stored.ID)

	t.Run("replay is invalid_grant", func(t *testing.T) {
		_, err := issuer.Issue(ctx, c, &domain.TokenRequest{Code: code.Code, RedirectURI: "https://a/cb"})
		assert.ErrorIs(t, err, serrors.ErrInvalidGrant)
	})

	t.Run("redirect mismatch is invalid_grant", func(t *testing.T) {
		code, err := codes.Issue(ctx, domain.PendingAuthorization{ClientID: "C1", Subject: "alice", RedirectURI: "https://a/cb"})
		require.NoError(t, err)

		_, err = issuer.Issue(ctx, c, &domain.TokenRequest{Code: code.Code, RedirectURI: "https://a/other"})
		assert.ErrorIs(t, err, serrors.ErrInvalidGrant)
		assert.NotErrorIs(t, err, serrors.ErrRedirectMismatch)
	})
}

func TestClientCredentialsIssuer(t *testing.T) {
	c := confidentialClient(domain.GrantTypeClientCredentials)

	tests := []struct {
		name       string
		requested  []string
		wantScopes []string
		wantErr    error
	}{
		{"no scopes requested grants all allowed", nil, []string{"read", "write"}, nil},
		{"requested scopes are intersected", []string{"write", "admin"}, []string{"write"}, nil},
		{"empty intersection", []string{"admin"}, nil, serrors.ErrInvalidScope},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			issuer := grant.NewClientCredentialsIssuer(f.minter)

			res, err := issuer.Issue(context.Background(), c, &domain.TokenRequest{Scopes: tt.requested})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				access, refresh := f.tokens.Count()
				assert.Zero(t, access, "no token may be minted")
				assert.Zero(t, refresh)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantScopes, res.Access.Scopes)
			assert.Empty(t, res.Access.Subject)
			assert.Nil(t, res.Refresh)
		})
	}
}

func TestClientCredentialsIssuer_UnauthorizedClient(t *testing.T) {
	f := newFixture(t)
	issuer := grant.NewClientCredentialsIssuer(f.minter)

	_, err := issuer.Issue(context.Background(), confidentialClient(domain.GrantTypeAuthorizationCode), &domain.TokenRequest{})
	assert.ErrorIs(t, err, serrors.ErrUnauthorizedClient)
}

func TestPasswordIssuer(t *testing.T) {
	users := new(MockUserAuthenticator)
	users.On("Authenticate", mock.Anything, "alice", "pw").
		Return(&domain.User{ID: "u1", Username: "alice", Scopes: []string{"read", "admin"}}, nil)
	users.On("Authenticate", mock.Anything, "alice", "bad").Return(nil, serrors.ErrInvalidGrant)

	c := confidentialClient(domain.GrantTypePassword)
	ctx := context.Background()

	f := newFixture(t)
	issuer := grant.NewPasswordIssuer(users, f.minter)

	res, err := issuer.Issue(ctx, c, &domain.TokenRequest{Username: "alice", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "u1", res.Access.Subject)
	assert.Equal(t, []string{"read"}, res.Access.Scopes)
	assert.NotNil(t, res.Refresh)

	_, err = issuer.Issue(ctx, c, &domain.TokenRequest{Username: "alice", Password: "bad"})
	assert.ErrorIs(t, err, serrors.ErrInvalidGrant)

	_, err = issuer.Issue(ctx, c, &domain.TokenRequest{Username: "alice", Password: "pw", Scopes: []string{"write"}})
	assert.ErrorIs(t, err, serrors.ErrInvalidScope)

	_, err = issuer.Issue(ctx, c, &domain.TokenRequest{Username: "alice"})
	assert.ErrorIs(t, err, serrors.ErrInvalidRequest)
}

func TestNewRefreshTokenIssuer_RequiresPolicy(t *testing.T) {
	f := newFixture(t)

	_, err := grant.NewRefreshTokenIssuer(f.tokens, f.minter, 0, nil)
	assert.Error(t, err)

	policy, err := grant.ParseRotationPolicy("reuse")
	require.NoError(t, err)
	assert.Equal(t, grant.ReuseUntilExpiry, policy)

	_, err = grant.ParseRotationPolicy("sometimes")
	assert.Error(t, err)
}

func TestRefreshTokenIssuer_RotateAndRevoke(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := confidentialClient(domain.GrantTypeRefreshToken)

	first, err := f.minter.Pair(ctx, c, "alice", []string{"read", "write"})
	require.NoError(t, err)

	issuer, err := grant.NewRefreshTokenIssuer(f.tokens, f.minter, grant.RotateAndRevoke, nil)
	require.NoError(t, err)

	res, err := issuer.Issue(ctx, c, &domain.TokenRequest{RefreshToken: first.Refresh.Value, Scopes: []string{"read"}})
	require.NoError(t, err)
	assert.NotEqual(t, first.Refresh.Value, res.Refresh.Value)
	assert.Equal(t, []string{"read"}, res.Access.Scopes)
	assert.Equal(t, []string{"read", "write"}, res.Refresh.Scopes)

	_, err = f.tokens.GetAccessToken(ctx, first.Access.Value)
	assert.ErrorIs(t, err, serrors.ErrNotFound, "previous access token is revoked")

	_, err = issuer.Issue(ctx, c, &domain.TokenRequest{RefreshToken: first.Refresh.Value})
	assert.ErrorIs(t, err, serrors.ErrInvalidGrant, "old refresh token is consumed")
}

func TestRefreshTokenIssuer_ReuseUntilExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := confidentialClient(domain.GrantTypeRefreshToken)

	first, err := f.minter.Pair(ctx, c, "alice", []string{"read"})
	require.NoError(t, err)

	issuer, err := grant.NewRefreshTokenIssuer(f.tokens, f.minter, grant.ReuseUntilExpiry, nil)
	require.NoError(t, err)

	res, err := issuer.Issue(ctx, c, &domain.TokenRequest{RefreshToken: first.Refresh.Value})
	require.NoError(t, err)
	assert.Equal(t, first.Refresh.Value, res.Refresh.Value)
	assert.Equal(t, first.Refresh.Value, res.Access.RefreshToken)

	_, err = f.tokens.GetAccessToken(ctx, first.Access.Value)
	assert.NoError(t, err, "previous access token stays valid")

	again, err := issuer.Issue(ctx, c, &domain.TokenRequest{RefreshToken: first.Refresh.Value})
	require.NoError(t, err)
	assert.NotEqual(t, res.Access.Value, again.Access.Value)
}

// revokingStore deletes a refresh token right after it is read, as a
// concurrent revocation would.
type revokingStore struct {
	*cache.MemoryTokenStore
}

func (s revokingStore) GetRefreshToken(ctx context.Context, value string) (*domain.RefreshToken, error) {
	token, err := s.MemoryTokenStore.GetRefreshToken(ctx, value)
	if err != nil {
		return nil, err
	}

	if err := s.MemoryTokenStore.DeleteRefreshToken(ctx, value); err != nil {
		return nil, err
	}

	return token, nil
}

func TestRefreshTokenIssuer_ReuseLosesToRevocation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := confidentialClient(domain.GrantTypeRefreshToken)

	first, err := f.minter.Pair(ctx, c, "alice", []string{"read"})
	require.NoError(t, err)

	store := revokingStore{f.tokens}
	minter := grant.NewMinter(store, grant.WithClock(func() time.Time { return f.now }))
	issuer, err := grant.NewRefreshTokenIssuer(store, minter, grant.ReuseUntilExpiry, nil)
	require.NoError(t, err)

	res, err := issuer.Issue(ctx, c, &domain.TokenRequest{RefreshToken: first.Refresh.Value})
	assert.ErrorIs(t, err, serrors.ErrInvalidGrant)
	assert.Nil(t, res)

	_, err = f.tokens.GetRefreshToken(ctx, first.Refresh.Value)
	assert.ErrorIs(t, err, serrors.ErrNotFound, "revoked refresh token stays revoked")
	access, refresh := f.tokens.Count()
	assert.Equal(t, 1, access, "only the original access token is left")
	assert.Zero(t, refresh)
}

func TestRefreshTokenIssuer_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := confidentialClient(domain.GrantTypeRefreshToken)

	pair, err := f.minter.Pair(ctx, c, "alice", []string{"read"})
	require.NoError(t, err)

	issuer, err := grant.NewRefreshTokenIssuer(f.tokens, f.minter, grant.RotateAndRevoke, nil)
	require.NoError(t, err)

	other := confidentialClient(domain.GrantTypeRefreshToken)
	other.ID = "C2"

	_, err = issuer.Issue(ctx, other, &domain.TokenRequest{RefreshToken: pair.Refresh.Value})
	assert.ErrorIs(t, err, serrors.ErrInvalidGrant, "client mismatch")

	_, err = issuer.Issue(ctx, c, &domain.TokenRequest{RefreshToken: pair.Refresh.Value, Scopes: []string{"write"}})
	assert.ErrorIs(t, err, serrors.ErrInvalidScope)

	_, err = issuer.Issue(ctx, c, &domain.TokenRequest{RefreshToken: "unknown"})
	assert.ErrorIs(t, err, serrors.ErrInvalidGrant)

	f.now = pair.Refresh.ExpiresAt.Add(time.Second)
	_, err = issuer.Issue(ctx, c, &domain.TokenRequest{RefreshToken: pair.Refresh.Value})
	assert.ErrorIs(t, err, serrors.ErrInvalidGrant, "expired")
}
