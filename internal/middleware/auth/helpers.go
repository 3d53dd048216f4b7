package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/usergate/internal/domain"
)

const (
	principalKey = "principal"

	msgNotAuthenticated = "Not authenticated"
	msgBadCredentials   = "Could not validate credentials"
	msgForbidden        = "Not enough permissions"
	msgUnavailable      = "Authentication backend unavailable"
)

type Authenticator interface {
	Authenticate(ctx context.Context, raw string) (*domain.Principal, error)
}

type GrantChecker interface {
	HasGrant(ctx context.Context, role domain.Role, endpoint, method string) (bool, error)
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(c echo.Context) (string, bool) {
	h := c.Request().Header.Get(echo.HeaderAuthorization)
	scheme, token, ok := strings.Cut(strings.TrimSpace(h), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Unauthorized builds a 401 carrying the Bearer challenge.
func Unauthorized(c echo.Context, msg string) error {
	c.Response().Header().Set(echo.HeaderWWWAuthenticate, "Bearer")
	return echo.NewHTTPError(http.StatusUnauthorized, msg)
}

func PrincipalFrom(c echo.Context) (domain.Principal, bool) {
	p, ok := c.Get(principalKey).(domain.Principal)
	return p, ok
}

func setUserContext(c echo.Context, p domain.Principal) {
	c.Set(principalKey, p)
	c.Set("user_id", p.ID)
	c.Set("role", string(p.Role))
}
