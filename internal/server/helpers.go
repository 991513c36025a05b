package server

import (
	"net/url"

	"dropp/internal/models"

	"github.com/gofiber/fiber/v2"
)

// usernameParam returns the unescaped :username route parameter. Syntax is
// validated by the services.
func usernameParam(c *fiber.Ctx) (string, error) {
	raw := c.Params("username")
	username, err := url.PathUnescape(raw)
	if err != nil {
		return "", models.NewInvalidRequestError("Malformed username").With("invalidParameter", "username")
	}
	return username, nil
}

func listResponse(c *fiber.Ctx, usernames []string) error {
	return c.JSON(fiber.Map{
		"usernames": usernames,
		"count":     len(usernames),
	})
}
