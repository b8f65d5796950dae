package session

import (
	"context"
	"errors"

	"runsync-agent/internal/transport"

	"github.com/gofiber/fiber/v2"
)

type StartRequest struct {
	UserID      string `json:"user_id"`
	ChallengeID string `json:"challenge_id,omitempty"`
}

// RegisterRoutes exposes the lifecycle commands to the presentation
// layer. reconcile, when non-nil, runs before any start so a session left
// open on the server is resumed instead of duplicated.
func RegisterRoutes(r fiber.Router, tr *Tracker, reconcile func(ctx context.Context) error) {
	r.Post("/start", func(c *fiber.Ctx) error {
		var req StartRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if req.UserID == "" {
			return fiber.NewError(fiber.StatusBadRequest, "user_id required")
		}

		if reconcile != nil {
			if err := reconcile(c.Context()); err != nil {
				return fiber.NewError(fiber.StatusServiceUnavailable, "open-session check failed: "+err.Error())
			}
		}

		stats, err := tr.Start(c.Context(), req.UserID, req.ChallengeID)
		if err != nil {
			return fiber.NewError(statusFor(err), err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(stats)
	})

	r.Post("/pause", func(c *fiber.Ctx) error {
		stats, err := tr.Pause()
		if err != nil {
			return fiber.NewError(statusFor(err), err.Error())
		}
		return c.JSON(stats)
	})

	r.Post("/resume", func(c *fiber.Ctx) error {
		stats, err := tr.Resume()
		if err != nil {
			return fiber.NewError(statusFor(err), err.Error())
		}
		return c.JSON(stats)
	})

	r.Post("/stop", func(c *fiber.Ctx) error {
		summary, err := tr.Stop(c.Context())
		if err != nil {
			return fiber.NewError(statusFor(err), err.Error())
		}
		return c.JSON(summary)
	})

	r.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(tr.Stats())
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrSessionActive),
		errors.Is(err, ErrNoSession),
		errors.Is(err, ErrAlreadyPaused),
		errors.Is(err, ErrNotPaused),
		errors.Is(err, ErrStopping):
		return fiber.StatusConflict
	case errors.Is(err, transport.ErrReauthenticate):
		return fiber.StatusUnauthorized
	default:
		return fiber.StatusInternalServerError
	}
}
