package loggingmw

import (
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/usergate/internal/logging"
)

// Keys the auth middleware stores the resolved caller under.
const (
	userIDKey = "user_id"
	roleKey   = "role"
)

// RequestLogger attaches a request scoped logger to the context and writes
// one access line when the chain returns. The line names the caller resolved
// by the auth middleware; requests that never authenticated are logged as
// anonymous.
func RequestLogger(base *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			l := base.With("method", req.Method, "route", c.Path(), "remote_ip", c.RealIP())
			if rid := requestID(c); rid != "" {
				l = l.With("request_id", rid)
			}
			c.SetRequest(req.WithContext(logging.IntoContext(req.Context(), l)))

			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			res := c.Response()
			attrs := append(caller(c),
				"status", res.Status,
				"duration_ms", time.Since(start).Milliseconds(),
				"bytes", res.Size,
			)
			if err != nil {
				attrs = append(attrs, "error", err.Error())
			}
			l.Log(req.Context(), levelFor(res.Status), "request completed", attrs...)
			return nil
		}
	}
}

func requestID(c echo.Context) string {
	rid := c.Request().Header.Get(echo.HeaderXRequestID)
	if rid == "" {
		return c.Response().Header().Get(echo.HeaderXRequestID)
	}
	c.Response().Header().Set(echo.HeaderXRequestID, rid)
	return rid
}

func caller(c echo.Context) []any {
	id, ok := c.Get(userIDKey).(uint)
	if !ok {
		return []any{"user", "anonymous"}
	}
	role, _ := c.Get(roleKey).(string)
	return []any{"user_id", id, "role", role}
}

func levelFor(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
