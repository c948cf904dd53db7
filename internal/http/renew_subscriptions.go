package http

import (
	"net/http"
	"time"

	"github.com/crmkit/email-gateway/internal/lifecycle"
	"github.com/crmkit/email-gateway/internal/model"
	echo "github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

type renewalRunResponse struct {
	Success   bool                  `json:"success"`
	Timestamp time.Time             `json:"timestamp"`
	Renewed   int                   `json:"renewed"`
	Failed    int                   `json:"failed"`
	Total     int                   `json:"total"`
	Results   []model.RenewalResult `json:"results"`
}

// renewSubscriptionsHandler runs one lifecycle manager invocation (daily
// schedule; manual POST for operators).
func renewSubscriptionsHandler(mgr *lifecycle.Manager) echo.HandlerFunc {
	return func(c echo.Context) error {
		now := time.Now().UTC()

		summary, err := mgr.Run(c.Request().Context(), now)
		if err != nil {
			log.Errorf("lifecycle run failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]any{
				"success": false,
				"error":   "lifecycle run failed",
			})
		}

		results := summary.Results
		if results == nil {
			results = []model.RenewalResult{}
		}

		return c.JSON(http.StatusOK, renewalRunResponse{
			Success:   true,
			Timestamp: now,
			Renewed:   summary.Renewed,
			Failed:    summary.Failed,
			Total:     summary.Total,
			Results:   results,
		})
	}
}
