package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/usergate/internal/logging"
	mwauth "github.com/Skotchmaster/usergate/internal/middleware/auth"
	"github.com/Skotchmaster/usergate/internal/service"
)

const (
	msgBadLogin     = "Incorrect username or password"
	msgBadToken     = "Could not validate credentials"
	msgUserNotFound = "User not found"
)

// httpError maps a service error to the response the API promises for its
// kind. Internal details only reach the log.
func httpError(c echo.Context, err error) error {
	switch service.KindOf(err) {
	case service.KindInvalidCredentials:
		return mwauth.Unauthorized(c, msgBadLogin)
	case service.KindUnauthenticated:
		return mwauth.Unauthorized(c, msgBadToken)
	case service.KindForbidden:
		return echo.NewHTTPError(http.StatusForbidden, "Not enough permissions")
	case service.KindNotFound:
		return echo.NewHTTPError(http.StatusNotFound, msgUserNotFound)
	case service.KindConflict:
		return echo.NewHTTPError(http.StatusBadRequest, "Username or email already registered")
	case service.KindValidation:
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case service.KindBackendUnavailable:
		logging.FromContext(c.Request().Context()).Error("backend_unavailable", "error", err)
		return echo.NewHTTPError(http.StatusServiceUnavailable, "Service temporarily unavailable")
	default:
		logging.FromContext(c.Request().Context()).Error("internal_error", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error")
	}
}

func paramID(c echo.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return uint(id), nil
}
