package routes

import (
	"crypto/subtle"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/tippay/tip_bot/internal/bot"
	"github.com/tippay/tip_bot/internal/config"
	"github.com/tippay/tip_bot/internal/middleware"
	"github.com/tippay/tip_bot/internal/slack"
)

// commandPayload is the form body a slash command webhook delivers. Only the
// fields the bot consumes are mapped; the platform sends more.
type commandPayload struct {
	Token       string `form:"token" validate:"required"`
	TeamID      string `form:"team_id"`
	TeamDomain  string `form:"team_domain"`
	ChannelID   string `form:"channel_id"`
	ChannelName string `form:"channel_name"`
	UserID      string `form:"user_id" validate:"required"`
	UserName    string `form:"user_name"`
	Command     string `form:"command"`
	Text        string `form:"text"`
	ResponseURL string `form:"response_url" validate:"omitempty,url"`
}

var payloadValidator = validator.New()

// RegisterCommandRoutes wires the slash command webhook.
func RegisterCommandRoutes(router fiber.Router, cfg config.Config, dispatcher *bot.Dispatcher) {
	router.Post("/command", func(c *fiber.Ctx) error {
		var payload commandPayload
		if err := c.BodyParser(&payload); err != nil {
			return fiber.NewError(http.StatusBadRequest, "malformed command payload")
		}
		if err := payloadValidator.Struct(payload); err != nil {
			return fiber.NewError(http.StatusBadRequest, "malformed command payload")
		}

		// Nothing is dispatched for an unverified caller.
		if subtle.ConstantTimeCompare([]byte(payload.Token), []byte(cfg.SlackVerificationToken)) != 1 {
			return fiber.NewError(http.StatusUnauthorized, "verification token mismatch")
		}

		c.Locals(middleware.CommandUserKey, payload.UserID)
		requestID, _ := c.Locals(middleware.RequestIDKey).(string)

		res := dispatcher.Dispatch(c.UserContext(), bot.Request{
			UserID:      payload.UserID,
			UserName:    payload.UserName,
			ChannelID:   payload.ChannelID,
			Text:        payload.Text,
			ResponseURL: payload.ResponseURL,
			RequestID:   requestID,
		})

		return c.JSON(slack.ResponseMessage{ResponseType: res.Type, Text: res.Text})
	})
}
