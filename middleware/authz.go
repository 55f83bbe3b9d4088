package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	serrors "go.pilab.hu/authcore/errors"
	"go.pilab.hu/authcore/log"
	"go.pilab.hu/authcore/resource"
)

// Decider makes access decisions for request paths.
type Decider interface {
	Decide(method, path string, granted []string) resource.Decision
}

// Authorize enforces the secured resource map. The scopes of the token
// BearerAuth validated are the granted authorities. It must run after
// BearerAuth.
func Authorize(decider Decider, logger log.Logger) echo.MiddlewareFunc {
	if logger == nil {
		logger = log.Nop()
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			token, authenticated := TokenFromContext(c)

			var granted []string
			if authenticated {
				granted = token.Scopes
			}

			decision := decider.Decide(req.Method, req.URL.Path, granted)
			if decision.Allowed {
				return next(c)
			}

			if !authenticated {
				return unauthorized(c, "authentication required")
			}

			logger.Warn(req.Context(), "access denied", log.Fields{
				"client_id": token.ClientID,
				"path":      req.URL.Path,
				"method":    req.Method,
				"required":  decision.Required,
			})

			return c.JSON(http.StatusForbidden, &serrors.OAuth2Error{
				Code:        serrors.AccessDenied,
				Description: "insufficient authority for this resource",
			})
		}
	}
}
