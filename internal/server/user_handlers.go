package server

import (
	"dropp/internal/middleware"
	"dropp/internal/models"

	"github.com/gofiber/fiber/v2"
)

// GetMyProfile handles GET /api/users/me
func (s *Server) GetMyProfile(c *fiber.Ctx) error {
	profile, err := s.accounts.GetUser(c.UserContext(), middleware.CurrentUser(c))
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.JSON(profile)
}

// GetUserProfile handles GET /api/users/:username
func (s *Server) GetUserProfile(c *fiber.Ctx) error {
	username, err := usernameParam(c)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	profile, err := s.accounts.GetUser(c.UserContext(), username)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.JSON(profile)
}

// DeleteMyAccount handles DELETE /api/users/me
func (s *Server) DeleteMyAccount(c *fiber.Ctx) error {
	if err := s.accounts.DeleteAccount(c.UserContext(), middleware.CurrentUser(c)); err != nil {
		return models.RespondWithError(c, err)
	}
	return models.RespondWithSuccess(c, fiber.StatusOK, "Account deleted")
}
