package http

import (
	"net/http"
	"time"

	"github.com/crmkit/email-gateway/internal/model"
	"github.com/crmkit/email-gateway/internal/processor"
	echo "github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

type queueRunResponse struct {
	Success    bool               `json:"success"`
	Timestamp  time.Time          `json:"timestamp"`
	Processed  int                `json:"processed"`
	Successful int                `json:"successful"`
	Failed     int                `json:"failed"`
	Skipped    int                `json:"skipped"`
	DurationMs int64              `json:"durationMs"`
	Results    []model.ItemResult `json:"results"`
}

// processQueueHandler runs one queue processor invocation. The scheduler
// fires it on a fixed interval via GET; POST is the manual trigger.
func processQueueHandler(proc *processor.Processor) echo.HandlerFunc {
	return func(c echo.Context) error {
		now := time.Now().UTC()

		summary, err := proc.Run(c.Request().Context(), now)
		if err != nil {
			log.Errorf("queue run failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]any{
				"success": false,
				"error":   "queue run failed",
			})
		}

		results := summary.Results
		if results == nil {
			results = []model.ItemResult{}
		}

		return c.JSON(http.StatusOK, queueRunResponse{
			Success:    true,
			Timestamp:  now,
			Processed:  summary.Processed,
			Successful: summary.Successful,
			Failed:     summary.Failed,
			Skipped:    summary.Skipped,
			DurationMs: summary.Duration.Milliseconds(),
			Results:    results,
		})
	}
}
