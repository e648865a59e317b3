package metrics

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// HTTPMiddleware records request metrics labelled by the matched route pattern.
// Handler errors are rendered through the app's ErrorHandler first so the
// recorded status is the one the client sees.
func HTTPMiddleware(m *Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		if err := c.Next(); err != nil {
			if handlerErr := c.App().ErrorHandler(c, err); handlerErr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}
		m.RecordHTTPRequest(c.Route().Path, c.Method(), c.Response().StatusCode(), time.Since(start).Seconds())
		return nil
	}
}
