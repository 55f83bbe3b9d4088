package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.pilab.hu/authcore/domain"
	serrors "go.pilab.hu/authcore/errors"
	"go.pilab.hu/authcore/internal/memstore"
	"go.pilab.hu/authcore/resource"
)

type validatorFunc func(ctx context.Context, value string) (*domain.AccessToken, error)

func (f validatorFunc) ValidateAccessToken(ctx context.Context, value string) (*domain.AccessToken, error) {
	return f(ctx, value)
}

func newRouter(t *testing.T) *echo.Echo {
	t.Helper()

	dir := memstore.NewResourceDirectory(nil, nil, domain.SecuredResource{
		ID: "admin", Pattern: "/admin/**", Method: domain.MethodAll, Authorities: []string{"admin"},
	})
	source, err := resource.NewMetadataSource(context.Background(), dir)
	require.NoError(t, err)

	tokens := map[string]*domain.AccessToken{
		"admin-token":  {Value: "admin-token", ClientID: "C1", Scopes: []string{"read", "admin"}, ExpiresAt: time.Now().Add(time.Hour)},
		"reader-token": {Value: "reader-token", ClientID: "C2", Scopes: []string{"read"}, ExpiresAt: time.Now().Add(time.Hour)},
	}
	validator := validatorFunc(func(_ context.Context, value string) (*domain.AccessToken, error) {
		if value == "expired-token" {
			return nil, serrors.ErrExpired
		}
		if tok, ok := tokens[value]; ok {
			return tok, nil
		}
		return nil, serrors.ErrNotFound
	})

	e := echo.New()
	e.Use(BearerAuth(validator, nil), Authorize(source, nil))

	ok := func(c echo.Context) error {
		if tok, found := TokenFromContext(c); found {
			return c.String(http.StatusOK, tok.ClientID)
		}
		return c.String(http.StatusOK, "anonymous")
	}
	e.GET("/admin/users", ok)
	e.GET("/public", ok)
	e.GET("/me", ok, RequireToken)

	return e
}

func TestBearerAuthAndAuthorize(t *testing.T) {
	e := newRouter(t)

	tests := []struct {
		name       string
		path       string
		auth       string
		wantStatus int
		wantBody   string
	}{
		{"public anonymous", "/public", "", http.StatusOK, "anonymous"},
		{"public with token", "/public", "Bearer reader-token", http.StatusOK, "C2"},
		{"secured anonymous", "/admin/users", "", http.StatusUnauthorized, serrors.InvalidToken},
		{"secured with authority", "/admin/users", "Bearer admin-token", http.StatusOK, "C1"},
		{"secured without authority", "/admin/users", "Bearer reader-token", http.StatusForbidden, serrors.AccessDenied},
		{"unknown token", "/public", "Bearer nope", http.StatusUnauthorized, serrors.InvalidToken},
		{"expired token", "/public", "Bearer expired-token", http.StatusUnauthorized, serrors.InvalidToken},
		{"wrong scheme", "/public", "Basic dXNlcjpwYXNz", http.StatusUnauthorized, serrors.InvalidToken},
		{"token required anonymous", "/me", "", http.StatusUnauthorized, serrors.InvalidToken},
		{"token required with token", "/me", "Bearer reader-token", http.StatusOK, "C2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.auth != "" {
				req.Header.Set(echo.HeaderAuthorization, tt.auth)
			}
			rec := httptest.NewRecorder()

			e.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}
}

func TestBearerAuth_SetsChallengeHeader(t *testing.T) {
	e := newRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/users", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, `Bearer error="invalid_token"`, rec.Header().Get("WWW-Authenticate"))
}
