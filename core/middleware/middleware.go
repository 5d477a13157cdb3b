package middleware

import (
	"crypto/subtle"
	"net/http"

	"riq-studio-api/core/errors"
	"riq-studio-api/core/logger"

	"github.com/labstack/echo/v4"
)

type Middleware struct {
	adminAPIKey string
}

func NewMiddleware(adminAPIKey string) *Middleware {
	return &Middleware{adminAPIKey: adminAPIKey}
}

// AdminKeyMiddleware guards admin-only routes with a shared X-Admin-Key
// header. When no key is configured the routes are open, which matches the
// single-operator deployment this service runs in.
func (m *Middleware) AdminKeyMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m.adminAPIKey == "" {
				return next(c)
			}

			key := c.Request().Header.Get("X-Admin-Key")
			if subtle.ConstantTimeCompare([]byte(key), []byte(m.adminAPIKey)) != 1 {
				logger.Warn("Middleware:AdminKey:Rejected", "path", c.Path())
				return c.JSON(http.StatusUnauthorized,
					errors.NewAppError(errors.ErrUnauthorized, "Invalid admin key", nil))
			}
			return next(c)
		}
	}
}
