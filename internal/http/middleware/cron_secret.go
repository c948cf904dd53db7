package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v4"
)

const secretHeader = "X-Cron-Secret"

// CronSecret authenticates scheduler and manual invocations against a
// shared secret. GET schedulers that cannot set headers may pass the
// secret as a query parameter instead. Comparison is constant-time.
func CronSecret(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			got := strings.TrimSpace(c.Request().Header.Get(secretHeader))
			if got == "" {
				got = strings.TrimSpace(c.QueryParam("secret"))
			}
			if got == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing cron secret"})
			}
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid cron secret"})
			}
			return next(c)
		}
	}
}
