package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"devicegateway/internal/metrics"
)

// Logging logs every request and records its latency. The route pattern, not
// the raw path, is used as the metric label.
func Logging() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		if err := c.Next(); err != nil {
			// Let the app error handler set the status before we read it.
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				c.Status(fiber.StatusInternalServerError)
			}
		}

		status := c.Response().StatusCode()
		elapsed := time.Since(start)
		route := c.Route().Path
		metrics.RecordHTTPRequest(c.Method(), route, status, elapsed)

		entry := log.WithFields(log.Fields{
			"method":   c.Method(),
			"path":     c.Path(),
			"status":   status,
			"duration": elapsed.String(),
			"remote":   c.IP(),
		})
		if status >= fiber.StatusInternalServerError {
			entry.Warn("HTTP request failed")
		} else {
			entry.Debug("HTTP request")
		}
		return nil
	}
}
