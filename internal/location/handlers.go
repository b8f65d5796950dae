package location

import "github.com/gofiber/fiber/v2"

func RegisterRoutes(r fiber.Router, feed *Feed) {
	r.Post("/", func(c *fiber.Ctx) error {
		var fix Fix
		if err := c.BodyParser(&fix); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if fix.Lat < -90 || fix.Lat > 90 || fix.Lng < -180 || fix.Lng > 180 {
			return fiber.NewError(fiber.StatusBadRequest, "coordinates out of range")
		}
		feed.Update(fix)
		return c.SendStatus(fiber.StatusAccepted)
	})
}
