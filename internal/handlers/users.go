package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/usergate/internal/models"
	"github.com/Skotchmaster/usergate/internal/util"
)

type UserService interface {
	Register(ctx context.Context, username, email, password string) (*models.User, error)
	Get(ctx context.Context, id uint) (*models.User, error)
	List(ctx context.Context, offset, limit int, sortBy string) ([]models.User, error)
	Update(ctx context.Context, id uint, username, email string) (*models.User, error)
	Delete(ctx context.Context, id uint) (*models.User, error)
	MakeAdmin(ctx context.Context, id uint) (*models.User, error)
}

type UserHandler struct {
	Users UserService
}

type userResponse struct {
	ID        uint      `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func toResponse(u *models.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}

func toResponses(users []models.User) []userResponse {
	out := make([]userResponse, 0, len(users))
	for i := range users {
		out = append(out, toResponse(&users[i]))
	}
	return out
}

func (h *UserHandler) CreateUser(c echo.Context) error {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "invalid request body")
	}

	user, err := h.Users.Register(c.Request().Context(), req.Username, req.Email, req.Password)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, toResponse(user))
}

func (h *UserHandler) GetUsers(c echo.Context) error {
	skip, limit, sortBy := 0, 10, "created_at"
	err := echo.QueryParamsBinder(c).
		Int("skip", &skip).
		Int("limit", &limit).
		String("sort_by", &sortBy).
		BindError()
	if err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "skip and limit must be integers")
	}
	skip, limit = util.Clamp(skip, limit)

	users, err := h.Users.List(c.Request().Context(), skip, limit, sortBy)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, toResponses(users))
}

func (h *UserHandler) GetUser(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	user, err := h.Users.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, toResponse(user))
}

func (h *UserHandler) UpdateUser(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "invalid request body")
	}

	user, err := h.Users.Update(c.Request().Context(), id, req.Username, req.Email)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, toResponse(user))
}

func (h *UserHandler) DeleteUser(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	user, err := h.Users.Delete(c.Request().Context(), id)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, toResponse(user))
}

func (h *UserHandler) MakeAdmin(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	user, err := h.Users.MakeAdmin(c.Request().Context(), id)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, toResponse(user))
}
