package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/usergate/internal/handlers"
	mwauth "github.com/Skotchmaster/usergate/internal/middleware/auth"
	"github.com/Skotchmaster/usergate/internal/revocation"
)

const readyTimeout = 2 * time.Second

type Checker func(ctx context.Context) error

type Deps struct {
	AuthHandler       *handlers.AuthHandler
	UserHandler       *handlers.UserHandler
	PermissionHandler *handlers.PermissionHandler
	SearchHandler     *handlers.SearchHandler
	Auth              *mwauth.Middleware
	Revocations       *revocation.Guard
	// Checks are probed by /health/ready, keyed by dependency name.
	Checks map[string]Checker
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", d.ready)

	api := e.Group("/api")

	api.POST("/login", d.AuthHandler.Login)
	api.POST("/logout", d.AuthHandler.LogOut)
	api.POST("/users", d.UserHandler.CreateUser)

	authed := api.Group("", d.Auth.RequireLogin)

	authed.GET("/users", d.UserHandler.GetUsers, d.Auth.RequireAdmin)
	authed.GET("/users/search", d.SearchHandler.Handler, d.Auth.RequireGrant)

	self := d.Auth.RequireSelfOrAdmin("id")
	authed.GET("/users/:id", d.UserHandler.GetUser, self)
	authed.PUT("/users/:id", d.UserHandler.UpdateUser, self)
	authed.DELETE("/users/:id", d.UserHandler.DeleteUser, self)
	authed.POST("/users/:id/make-admin", d.UserHandler.MakeAdmin, d.Auth.RequireAdmin)

	admin := authed.Group("/permissions", d.Auth.RequireAdmin)
	admin.POST("", d.PermissionHandler.AddPermission)
	admin.GET("/:role", d.PermissionHandler.ListPermissions)
}

// ready reports dependency health plus the fail-open counters, which stay
// visible even while every dependency answers.
func (d *Deps) ready(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), readyTimeout)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(d.Checks))
	for name, check := range d.Checks {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	body := echo.Map{"checks": checks}
	if d.Revocations != nil {
		stats := d.Revocations.Stats()
		body["revocation_fail_open"] = stats.FailOpen
		body["revocation_revoke_failures"] = stats.RevokeFailures
	}
	if status == http.StatusOK {
		body["status"] = "ok"
	} else {
		body["status"] = "degraded"
	}
	return c.JSON(status, body)
}
