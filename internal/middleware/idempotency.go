package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	idempotencyKeyLocal  = "idempotency_key"
	maxIdempotencyKeyLen = 255
)

// Idempotency requires an Idempotency-Key header on unsafe methods and makes
// it available to handlers through IdempotencyKey. Replay and key-reuse
// detection happen in the services, which see the operation parameters.
func Idempotency() fiber.Handler {
	return func(c *fiber.Ctx) error {
		switch strings.ToUpper(c.Method()) {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}

		key := strings.TrimSpace(c.Get(idempotencyKeyHeader))
		if key == "" {
			return fiber.NewError(fiber.StatusBadRequest, "missing Idempotency-Key header")
		}
		if len(key) > maxIdempotencyKeyLen {
			return fiber.NewError(fiber.StatusBadRequest, "Idempotency-Key header is too long")
		}

		c.Locals(idempotencyKeyLocal, key)
		return c.Next()
	}
}

// IdempotencyKey returns the key captured by Idempotency, or "".
func IdempotencyKey(c *fiber.Ctx) string {
	key, _ := c.Locals(idempotencyKeyLocal).(string)
	return key
}
