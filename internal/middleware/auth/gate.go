package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/academy/internal/logging"
	"github.com/Skotchmaster/academy/internal/metrics"
)

var (
	ErrNotAuthenticated = echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	ErrForbidden        = echo.NewHTTPError(http.StatusForbidden, "forbidden")
)

// RequireRoles lets a request through when its identity holds at least one of
// roles. No identity is 401, no shared role is 403.
func RequireRoles(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			id, ok := IdentityFrom(ctx)
			if !ok {
				metrics.GateDenied.WithLabelValues("unauthenticated").Inc()
				return ErrNotAuthenticated
			}
			if !id.HasAnyRole(roles...) {
				metrics.GateDenied.WithLabelValues("forbidden").Inc()
				logging.FromContext(ctx).Warn("access_denied", "subject", id.Subject, "kind", id.Kind, "required", roles)
				return ErrForbidden
			}
			return next(c)
		}
	}
}
