package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/usergate/internal/logging"
	"github.com/Skotchmaster/usergate/internal/service"
)

type Middleware struct {
	Sessions Authenticator
	Grants   GrantChecker
}

func New(sessions Authenticator, grants GrantChecker) *Middleware {
	return &Middleware{Sessions: sessions, Grants: grants}
}

// RequireLogin resolves the bearer token to a principal. Every token level
// failure gets the same 401 so clients cannot tell why it was rejected.
func (m *Middleware) RequireLogin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		raw, ok := BearerToken(c)
		if !ok {
			return Unauthorized(c, msgNotAuthenticated)
		}

		req := c.Request()
		p, err := m.Sessions.Authenticate(req.Context(), raw)
		if err != nil {
			if service.KindOf(err) == service.KindBackendUnavailable {
				return echo.NewHTTPError(http.StatusServiceUnavailable, msgUnavailable)
			}
			return Unauthorized(c, msgBadCredentials)
		}

		l := logging.FromContext(req.Context()).With("user_id", p.ID, "role", string(p.Role))
		c.SetRequest(req.WithContext(logging.IntoContext(req.Context(), l)))
		setUserContext(c, *p)
		return next(c)
	}
}
