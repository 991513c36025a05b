package server

import (
	"dropp/internal/middleware"
	"dropp/internal/models"
	"dropp/internal/notifications"
	"dropp/internal/validation"

	"github.com/gofiber/fiber/v2"
)

// GetFollows handles GET /api/social/follows
func (s *Server) GetFollows(c *fiber.Ctx) error {
	return s.listConnections(c, models.ConnectionFollows)
}

// GetFollowers handles GET /api/social/followers
func (s *Server) GetFollowers(c *fiber.Ctx) error {
	return s.listConnections(c, models.ConnectionFollowers)
}

// GetSentRequests handles GET /api/social/requests/sent
func (s *Server) GetSentRequests(c *fiber.Ctx) error {
	return s.listRequests(c, models.RequestFollow)
}

// GetReceivedRequests handles GET /api/social/requests/received
func (s *Server) GetReceivedRequests(c *fiber.Ctx) error {
	return s.listRequests(c, models.RequestFollower)
}

func (s *Server) listConnections(c *fiber.Ctx, kind models.ConnectionKind) error {
	usernames, err := s.follows.ListConnections(c.UserContext(), middleware.CurrentUser(c), kind)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return listResponse(c, usernames)
}

func (s *Server) listRequests(c *fiber.Ctx, kind models.RequestKind) error {
	usernames, err := s.follows.ListRequests(c.UserContext(), middleware.CurrentUser(c), kind)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return listResponse(c, usernames)
}

// GetRelationshipStatus handles GET /api/social/status/:username
func (s *Server) GetRelationshipStatus(c *fiber.Ctx) error {
	target, err := usernameParam(c)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	status, err := s.follows.RelationshipStatus(c.UserContext(), middleware.CurrentUser(c), target)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.JSON(status)
}

// RequestToFollow handles POST /api/social/follow-requests/:username
func (s *Server) RequestToFollow(c *fiber.Ctx) error {
	ctx := c.UserContext()
	actor := middleware.CurrentUser(c)
	target, err := usernameParam(c)
	if err != nil {
		return models.RespondWithError(c, err)
	}

	if err := s.follows.RequestToFollow(ctx, actor, target); err != nil {
		return models.RespondWithError(c, err)
	}

	s.publishUserEvent(ctx, target, notifications.EventFollowRequestReceived, actor, target)
	s.publishUserEvent(ctx, actor, notifications.EventFollowRequestSent, actor, target)
	return models.RespondWithSuccess(c, fiber.StatusCreated, "Follow request sent")
}

// RemoveFollowRequest handles DELETE /api/social/follow-requests/:username
func (s *Server) RemoveFollowRequest(c *fiber.Ctx) error {
	ctx := c.UserContext()
	actor := middleware.CurrentUser(c)
	target, err := usernameParam(c)
	if err != nil {
		return models.RespondWithError(c, err)
	}

	if err := s.follows.RemoveFollowRequest(ctx, actor, target); err != nil {
		return models.RespondWithError(c, err)
	}

	s.publishUserEvent(ctx, target, notifications.EventFollowRequestWithdrawn, actor, target)
	return models.RespondWithSuccess(c, fiber.StatusOK, "Follow request removed")
}

// RespondToFollowerRequest handles POST /api/social/follower-requests/:username
func (s *Server) RespondToFollowerRequest(c *fiber.Ctx) error {
	ctx := c.UserContext()
	actor := middleware.CurrentUser(c)
	requester, err := usernameParam(c)
	if err != nil {
		return models.RespondWithError(c, err)
	}

	var body struct {
		Intent models.RequestIntent `json:"intent" validate:"required,oneof=accept decline"`
	}
	if err := c.BodyParser(&body); err != nil {
		return models.RespondWithError(c,
			models.NewInvalidRequestError("Invalid request body").With("invalidParameter", "intent"))
	}
	if err := validation.Struct(&body); err != nil {
		return models.RespondWithError(c,
			models.NewInvalidRequestError("Intent must be accept or decline").With("invalidParameter", "intent"))
	}

	if err := s.follows.RespondToFollowerRequest(ctx, actor, requester, body.Intent); err != nil {
		return models.RespondWithError(c, err)
	}

	if body.Intent == models.IntentAccept {
		s.publishUserEvent(ctx, requester, notifications.EventFollowRequestAccepted, actor, requester)
		s.publishUserEvent(ctx, actor, notifications.EventFollowerAdded, requester, actor)
		return models.RespondWithSuccess(c, fiber.StatusOK, "Follower request accepted")
	}
	s.publishUserEvent(ctx, requester, notifications.EventFollowRequestDeclined, actor, requester)
	return models.RespondWithSuccess(c, fiber.StatusOK, "Follower request declined")
}

// RemoveFollower handles DELETE /api/social/followers/:username
func (s *Server) RemoveFollower(c *fiber.Ctx) error {
	ctx := c.UserContext()
	actor := middleware.CurrentUser(c)
	target, err := usernameParam(c)
	if err != nil {
		return models.RespondWithError(c, err)
	}

	if err := s.follows.RemoveFollower(ctx, actor, target); err != nil {
		return models.RespondWithError(c, err)
	}

	s.publishUserEvent(ctx, target, notifications.EventFollowerRemoved, actor, target)
	return models.RespondWithSuccess(c, fiber.StatusOK, "Follower removed")
}

// Unfollow handles DELETE /api/social/follows/:username
func (s *Server) Unfollow(c *fiber.Ctx) error {
	ctx := c.UserContext()
	actor := middleware.CurrentUser(c)
	target, err := usernameParam(c)
	if err != nil {
		return models.RespondWithError(c, err)
	}

	if err := s.follows.Unfollow(ctx, actor, target); err != nil {
		return models.RespondWithError(c, err)
	}

	s.publishUserEvent(ctx, target, notifications.EventUnfollowed, actor, target)
	return models.RespondWithSuccess(c, fiber.StatusOK, "Unfollowed")
}
