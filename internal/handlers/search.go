package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/usergate/internal/logging"
	"github.com/Skotchmaster/usergate/internal/service/search"
	"github.com/Skotchmaster/usergate/internal/util"
)

type SearchHandler struct {
	Searcher search.Searcher
}

func NewSearchHandler(s search.Searcher) *SearchHandler {
	return &SearchHandler{Searcher: s}
}

func (h *SearchHandler) Handler(c echo.Context) error {
	q := c.QueryParam("q")
	if q == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query parameter q is required")
	}

	var page, size int
	_ = echo.QueryParamsBinder(c).Int("page", &page).Int("size", &size).BindError()
	from, size := util.Calculate(page, size)

	ctx := c.Request().Context()
	total, users, err := h.Searcher.Search(ctx, q, from, size)
	if err != nil {
		logging.FromContext(ctx).Error("search_failed", "error", err)
		return echo.NewHTTPError(http.StatusServiceUnavailable, "Search temporarily unavailable")
	}
	return c.JSON(http.StatusOK, echo.Map{"total": total, "users": toResponses(users)})
}
