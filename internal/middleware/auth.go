// Package middleware provides the HTTP middleware shared by every route.
package middleware

import (
	"strings"

	"dropp/internal/auth"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// UsernameLocal is the fiber.Ctx locals key holding the authenticated username.
const UsernameLocal = "username"

// AuthRequired enforces a Bearer token on protected routes and stores its
// subject under UsernameLocal. Browsers cannot set headers on a websocket
// handshake, so upgrade requests may pass the token as ?token= instead.
func AuthRequired(tokens *auth.TokenService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		tokenString := ""
		if authHeader == "" && websocket.IsWebSocketUpgrade(c) {
			tokenString = c.Query("token")
		}
		if authHeader == "" && tokenString == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authorization header required",
			})
		}

		// Extract token from "Bearer <token>"
		if tokenString == "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "Invalid authorization header format",
				})
			}
			tokenString = parts[1]
		}

		username, err := tokens.Verify(tokenString)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		c.Locals(UsernameLocal, username)
		return c.Next()
	}
}

// CurrentUser returns the authenticated username, or "" on public routes.
func CurrentUser(c *fiber.Ctx) string {
	username, _ := c.Locals(UsernameLocal).(string)
	return username
}
