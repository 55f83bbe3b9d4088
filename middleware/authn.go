package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.pilab.hu/authcore/domain"
	serrors "go.pilab.hu/authcore/errors"
	"go.pilab.hu/authcore/log"
)

// tokenContextKey is the echo context key of the validated access token.
const tokenContextKey = "authcore.access_token"

// TokenValidator resolves a bearer token to its access token record.
type TokenValidator interface {
	ValidateAccessToken(ctx context.Context, value string) (*domain.AccessToken, error)
}

// BearerAuth validates the bearer token of each request. Requests without
// an Authorization header pass through anonymously so Authorize can decide
// whether the path needs credentials.
func BearerAuth(validator TokenValidator, logger log.Logger) echo.MiddlewareFunc {
	if logger == nil {
		logger = log.Nop()
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" {
				return next(c)
			}

			scheme, value, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || value == "" {
				return unauthorized(c, "expected Bearer token")
			}

			ctx := c.Request().Context()

			token, err := validator.ValidateAccessToken(ctx, value)
			if err != nil {
				if errors.Is(err, serrors.ErrNotFound) || errors.Is(err, serrors.ErrExpired) {
					logger.Debug(ctx, "rejected bearer token", log.Fields{"token": log.Fingerprint(value)})
					return unauthorized(c, "token expired or revoked")
				}
				return err
			}

			c.Set(tokenContextKey, token)

			return next(c)
		}
	}
}

// RequireToken rejects requests BearerAuth let through anonymously.
func RequireToken(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, ok := TokenFromContext(c); !ok {
			return unauthorized(c, "authentication required")
		}
		return next(c)
	}
}

// TokenFromContext returns the access token BearerAuth validated.
func TokenFromContext(c echo.Context) (*domain.AccessToken, bool) {
	token, ok := c.Get(tokenContextKey).(*domain.AccessToken)
	return token, ok
}

func unauthorized(c echo.Context, description string) error {
	c.Response().Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)

	return c.JSON(http.StatusUnauthorized, &serrors.OAuth2Error{
		Code:        serrors.InvalidToken,
		Description: description,
	})
}
