package server

import (
	"context"

	"runsync-agent/internal/config"
	"runsync-agent/internal/location"
	"runsync-agent/internal/recovery"
	"runsync-agent/internal/session"
	"runsync-agent/internal/stream"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// Server is the agent's local control surface: lifecycle commands,
// location pushes, and the live stats feed.
type Server struct {
	App *fiber.App
	Cfg config.Config
}

func NewServer(cfg config.Config, tr *session.Tracker, rec *recovery.Reconciler, hub *stream.Hub, feed *location.Feed) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	s := &Server{App: app, Cfg: cfg}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "session": tr.State()})
	})

	var reconcile func(ctx context.Context) error
	if rec != nil {
		reconcile = func(ctx context.Context) error {
			return rec.Run(ctx, tr)
		}
	}

	session.RegisterRoutes(app.Group("/session"), tr, reconcile)
	location.RegisterRoutes(app.Group("/location"), feed)
	stream.RegisterRoutes(app.Group("/stream"), hub)
	return s
}
