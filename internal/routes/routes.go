package routes

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/tippay/tip_bot/internal/bot"
	"github.com/tippay/tip_bot/internal/config"
	"github.com/tippay/tip_bot/internal/credentials"
	"github.com/tippay/tip_bot/internal/metrics"
	"github.com/tippay/tip_bot/internal/middleware"
	"github.com/tippay/tip_bot/internal/slack"
	"github.com/tippay/tip_bot/internal/spsp"
)

// commandsPerMinute caps slash commands per user. Generous; the limiter is
// there to absorb accidental client retry storms, not to police usage.
const commandsPerMinute = 30

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg      config.Config
	DB       *pgxpool.Pool
	Cache    *redis.Client
	Dynamo   *dynamodb.Client
	Runner   *bot.Runner
	Logger   *slog.Logger
	Recorder metrics.Recorder
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	store, err := buildStore(d)
	if err != nil {
		return err
	}

	chatOpts := []slack.Option{}
	if d.Cfg.SlackAPIURL != "" {
		chatOpts = append(chatOpts, slack.WithBaseURL(d.Cfg.SlackAPIURL))
	}
	chat, err := slack.NewClient(d.Cfg.SlackBotToken, chatOpts...)
	if err != nil {
		return err
	}

	dispatcher, err := bot.NewDispatcher(store, chat, spsp.NewClient(), d.Runner, d.Logger, d.Recorder, bot.Config{
		AddressFieldID: d.Cfg.SPSPFieldID,
	})
	if err != nil {
		return err
	}

	// Resolve the workspace once at boot so a bad bot token shows up in the
	// logs immediately instead of on the first command.
	d.Runner.Go("workspace.lookup", func(ctx context.Context) error {
		team, err := chat.TeamInfo(ctx)
		if err != nil {
			return fmt.Errorf("team.info: %w", err)
		}
		d.Logger.Info("workspace resolved", "team", team.Name, "domain", team.Domain)
		return nil
	}, nil)

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	// Plain text access log in desired format: [HH:MM:SS] 200 -  145ms METHOD /path
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))

	// Health
	RegisterHealthRoutes(app, d, store)

	// Operational metrics, opt-in
	if d.Cfg.EnableMetrics {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	}

	// Command webhook
	cmd := app.Group("/slack",
		middleware.Audit(d.Logger),
		middleware.CommandRateLimit(d.Cache, commandsPerMinute),
	)
	RegisterCommandRoutes(cmd, d.Cfg, dispatcher)

	return nil
}

// buildStore selects the credential store backend and wraps it with secretbox
// sealing when a key is configured.
func buildStore(d Deps) (credentials.Store, error) {
	var (
		store credentials.Store
		err   error
	)

	switch d.Cfg.StoreBackend {
	case config.StoreMemory:
		store = credentials.NewMemoryStore()
	case config.StoreFile:
		store, err = credentials.NewFileStore(d.Cfg.CredentialsFile)
	case config.StoreRedis:
		if d.Cache == nil {
			return nil, fmt.Errorf("store backend %q needs a redis connection", d.Cfg.StoreBackend)
		}
		store = credentials.NewRedisStore(d.Cache)
	case config.StorePostgres:
		if d.DB == nil {
			return nil, fmt.Errorf("store backend %q needs a database connection", d.Cfg.StoreBackend)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := credentials.EnsureSchema(ctx, d.DB); err != nil {
			return nil, fmt.Errorf("ensure credentials schema: %w", err)
		}
		store = credentials.NewPostgresStore(d.DB)
	case config.StoreDynamo:
		if d.Dynamo == nil {
			return nil, fmt.Errorf("store backend %q needs a dynamodb client", d.Cfg.StoreBackend)
		}
		store, err = credentials.NewDynamoStore(d.Dynamo, d.Cfg.DynamoTable)
	default:
		return nil, fmt.Errorf("unknown store backend %q", d.Cfg.StoreBackend)
	}
	if err != nil {
		return nil, err
	}

	if len(d.Cfg.SealKey) > 0 {
		return credentials.Sealed(store, d.Cfg.SealKey)
	}
	return store, nil
}
