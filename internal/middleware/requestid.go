package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

// RequestIDKey is the Locals key carrying the correlation id of a delivery.
// The command handler copies it into the dispatch request so deferred job
// logs line up with the access log.
const RequestIDKey = "request_id"

// RequestID tags each webhook delivery with a correlation id and echoes it in
// the response. Platform deliveries carry no id of their own, so one is
// minted here; an id supplied by a proxy in front of the bot is kept.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqID := c.Get(requestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Set(requestIDHeader, reqID)
		c.Locals(RequestIDKey, reqID)

		return c.Next()
	}
}
