package handlers

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	mwauth "github.com/Skotchmaster/usergate/internal/middleware/auth"
	"github.com/Skotchmaster/usergate/internal/service"
)

type SessionService interface {
	Login(ctx context.Context, username, password string) (*service.LoginResult, error)
	Logout(ctx context.Context, raw string) error
}

type AuthHandler struct {
	Sessions SessionService
}

type loginRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Login accepts JSON or an OAuth2 password form.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "invalid login request")
	}

	res, err := h.Sessions.Login(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, tokenResponse{
		AccessToken: res.AccessToken,
		TokenType:   res.TokenType,
	})
}

func (h *AuthHandler) LogOut(c echo.Context) error {
	raw, ok := mwauth.BearerToken(c)
	if !ok {
		return mwauth.Unauthorized(c, "Not authenticated")
	}
	if err := h.Sessions.Logout(c.Request().Context(), raw); err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"msg": "Successfully logged out"})
}
