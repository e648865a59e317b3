package middleware

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/wallet_ledger/internal/ledger"
)

// Audit emits one structured log line per request. Mutating requests also
// carry their idempotency key so replays can be traced to the original call.
// Errors are rendered here so the logged status matches the response.
func Audit(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		if err != nil {
			if handlerErr := c.App().ErrorHandler(c, err); handlerErr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		duration := time.Since(start)
		requestID, _ := c.Locals(requestIDHeader).(string)

		attrs := []any{
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", c.Response().StatusCode()),
			slog.Duration("duration", duration),
		}
		if requestID != "" {
			attrs = append(attrs, slog.String("request_id", requestID))
		}
		if key := IdempotencyKey(c); key != "" {
			attrs = append(attrs, slog.String("idempotency_key", key))
		}
		if err != nil {
			if code, ok := ledger.CodeOf(err); ok {
				attrs = append(attrs, slog.String("error_code", string(code)))
			}
			attrs = append(attrs, slog.Any("error", err))
			logger.Warn("request failed", attrs...)
			return nil
		}

		logger.Info("request completed", attrs...)
		return nil
	}
}
