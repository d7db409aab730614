package middleware

import (
	"errors"
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v4"

	"github.com/peoplehub/integration-gateway/internal/auth"
	"github.com/peoplehub/integration-gateway/internal/metrics"
)

const identityKey = "identity"

// IdentityFromCtx extracts the authenticated identity set by APIKeyMiddleware.
func IdentityFromCtx(c echo.Context) (auth.Identity, bool) {
	v := c.Get(identityKey)
	id, ok := v.(auth.Identity)
	return id, ok
}

// APIKeyMiddleware authenticates requests using the X-API-Key header and
// stores the resulting identity in context. Scope checks stay with handlers.
func APIKeyMiddleware(authn *auth.Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := strings.TrimSpace(c.Request().Header.Get("X-API-Key"))
			if key == "" {
				metrics.AuthTotal.WithLabelValues("unauthenticated").Inc()
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing api key"})
			}

			id, err := authn.Authenticate(c.Request().Context(), key, c.RealIP())
			switch {
			case errors.Is(err, auth.ErrUnauthenticated):
				metrics.AuthTotal.WithLabelValues("unauthenticated").Inc()
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid api key"})
			case errors.Is(err, auth.ErrForbidden):
				metrics.AuthTotal.WithLabelValues("forbidden").Inc()
				return c.JSON(http.StatusForbidden, map[string]string{"error": "source ip not allowed"})
			case err != nil:
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "auth error"})
			}

			metrics.AuthTotal.WithLabelValues("ok").Inc()
			c.Set(identityKey, id)
			return next(c)
		}
	}
}
