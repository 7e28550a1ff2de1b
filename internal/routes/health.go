package routes

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/tippay/tip_bot/internal/credentials"
)

// healthCheckKey is a key no registration can produce: user ids arrive from
// slash payloads and never contain a colon. Reading it exercises the selected
// backend's real query path without touching live records.
const healthCheckKey = "health:check"

const healthCheckTimeout = 2 * time.Second

// RegisterHealthRoutes wires the readiness endpoint. The credential store is
// checked through its own read path so whichever backend is selected gets
// covered, and the deferred-job count surfaces a backed-up runner.
func RegisterHealthRoutes(app *fiber.App, d Deps, store credentials.Store) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.Context(), healthCheckTimeout)
		defer cancel()

		status := fiber.Map{"credentials": "ok"}
		healthy := true

		// ErrNotFound is the healthy answer: the backend reached storage and
		// reported the key absent.
		if _, err := store.Get(ctx, healthCheckKey); err != nil && !errors.Is(err, credentials.ErrNotFound) {
			status["credentials"] = "unreachable"
			healthy = false
		}

		if d.Cache != nil {
			status["rate_limiter"] = "ok"
			if err := d.Cache.Ping(ctx).Err(); err != nil {
				status["rate_limiter"] = "unreachable"
				healthy = false
			}
		}

		code := fiber.StatusOK
		if !healthy {
			code = fiber.StatusServiceUnavailable
		}
		return c.Status(code).JSON(fiber.Map{
			"status":         status,
			"store":          d.Cfg.StoreBackend,
			"jobs_in_flight": d.Runner.InFlight(),
			"timestamp":      time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}
