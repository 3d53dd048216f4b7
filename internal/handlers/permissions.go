package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/usergate/internal/domain"
)

type GrantService interface {
	AddGrant(ctx context.Context, g domain.PermissionGrant) error
	GrantsFor(ctx context.Context, role domain.Role) ([]domain.PermissionGrant, error)
}

type PermissionHandler struct {
	Grants GrantService
}

type grantBody struct {
	Role     string `json:"role"`
	Endpoint string `json:"endpoint"`
	Method   string `json:"method"`
}

func toGrantBody(g domain.PermissionGrant) grantBody {
	return grantBody{Role: string(g.Role), Endpoint: g.Endpoint, Method: g.Method}
}

func (h *PermissionHandler) AddPermission(c echo.Context) error {
	var req grantBody
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "invalid request body")
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	g := domain.PermissionGrant{Role: role, Endpoint: req.Endpoint, Method: req.Method}.Normalize()
	if err := h.Grants.AddGrant(c.Request().Context(), g); err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, toGrantBody(g))
}

func (h *PermissionHandler) ListPermissions(c echo.Context) error {
	role, err := domain.ParseRole(c.Param("role"))
	if err != nil {
		if errors.Is(err, domain.ErrUnknownRole) {
			return echo.NewHTTPError(http.StatusNotFound, "Unknown role")
		}
		return err
	}

	grants, err := h.Grants.GrantsFor(c.Request().Context(), role)
	if err != nil {
		return httpError(c, err)
	}
	out := make([]grantBody, 0, len(grants))
	for _, g := range grants {
		out = append(out, toGrantBody(g))
	}
	return c.JSON(http.StatusOK, out)
}
