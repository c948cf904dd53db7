package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	echo "github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimitBypass(t *testing.T) {
	tests := []struct {
		name string
		cfg  RateLimitConfig
	}{
		{name: "no redis configured", cfg: RateLimitConfig{RPS: 1}},
		{name: "zero rps", cfg: RateLimitConfig{RPS: 0}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodPost, "/v1/queue/process", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			calls := 0
			next := func(c echo.Context) error {
				calls++
				return c.NoContent(http.StatusOK)
			}

			// several invocations in the same window all pass
			h := RateLimit(tc.cfg)(next)
			for i := 0; i < 3; i++ {
				require.NoError(t, h(c))
			}
			assert.Equal(t, 3, calls)
			assert.Equal(t, http.StatusOK, rec.Code)
		})
	}
}
