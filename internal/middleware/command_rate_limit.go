package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// CommandRateLimit caps slash commands per user per minute using Redis when
// available. The limiter fails open: without Redis, or on cache errors, the
// command goes through.
func CommandRateLimit(cache *redis.Client, maxPerMin int) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 30
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next()
		}
		user := strings.TrimSpace(c.FormValue("user_id"))
		if user == "" {
			user = c.IP()
		}
		key := "rl:command:" + user
		cnt, err := cache.Incr(c.UserContext(), key).Result()
		if err != nil {
			return c.Next()
		}
		if cnt == 1 {
			cache.Expire(c.UserContext(), key, time.Minute)
		}
		if cnt > int64(maxPerMin) {
			return fiber.NewError(http.StatusTooManyRequests, "easy there, try again in a minute")
		}
		return c.Next()
	}
}
