package auth

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/usergate/internal/logging"
	"github.com/Skotchmaster/usergate/internal/policy"
)

// The checks below run after RequireLogin.

func (m *Middleware) RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, ok := PrincipalFrom(c)
		if !ok {
			return Unauthorized(c, msgNotAuthenticated)
		}
		if !policy.RequiresAdmin(p) {
			return echo.NewHTTPError(http.StatusForbidden, msgForbidden)
		}
		return next(c)
	}
}

// RequireSelfOrAdmin lets a user act on the resource whose id is in the
// named path parameter, and lets admins act on any of them.
func (m *Middleware) RequireSelfOrAdmin(param string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, ok := PrincipalFrom(c)
			if !ok {
				return Unauthorized(c, msgNotAuthenticated)
			}
			id, err := strconv.ParseUint(c.Param(param), 10, 64)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid "+param)
			}
			if !policy.IsSelfOrAdmin(p, uint(id)) {
				return echo.NewHTTPError(http.StatusForbidden, msgForbidden)
			}
			return next(c)
		}
	}
}

// RequireGrant checks the grant table for the matched route pattern and
// method. Admins pass without a stored grant. A grant store error denies.
func (m *Middleware) RequireGrant(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, ok := PrincipalFrom(c)
		if !ok {
			return Unauthorized(c, msgNotAuthenticated)
		}
		if p.IsAdmin() {
			return next(c)
		}

		ctx := c.Request().Context()
		allowed, err := m.Grants.HasGrant(ctx, p.Role, c.Path(), c.Request().Method)
		if err != nil {
			logging.FromContext(ctx).Error("grant_check_failed", "policy", "deny", "path", c.Path(), "error", err)
			return echo.NewHTTPError(http.StatusForbidden, msgForbidden)
		}
		if !allowed {
			return echo.NewHTTPError(http.StatusForbidden, msgForbidden)
		}
		return next(c)
	}
}
