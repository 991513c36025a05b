// Package service contains the business logic of the social graph.
package service

import (
	"context"
	"log/slog"

	"dropp/internal/datastore"
	"dropp/internal/featureflags"
	"dropp/internal/models"
	"dropp/internal/observability"
	"dropp/internal/repository"
)

// SocialGraphService keeps the two records of every connection and request
// in step. The store has no multi-key transaction, so each operation issues
// its writes in order and repairs the first one when the second fails.
type SocialGraphService struct {
	conns    repository.ConnectionStore
	reporter *InconsistencyReporter
	flags    *featureflags.Manager
}

// NewSocialGraphService returns a new SocialGraphService.
func NewSocialGraphService(conns repository.ConnectionStore, reporter *InconsistencyReporter, flags *featureflags.Manager) *SocialGraphService {
	return &SocialGraphService{
		conns:    conns,
		reporter: reporter,
		flags:    flags,
	}
}

// pairStep is one side of a two-record write. undo reverses apply.
type pairStep struct {
	path  string
	apply func(context.Context) error
	undo  func(context.Context) error
}

// AddConnection records that requester follows recipient: requester goes into
// recipient's followers, then recipient into requester's follows. If the
// second write fails the first is deleted and the second write's error is
// returned.
func (s *SocialGraphService) AddConnection(ctx context.Context, recipient, requester string) error {
	first := pairStep{
		path: datastore.Join(repository.ConnectionPath(recipient, models.ConnectionFollowers), requester),
		apply: func(ctx context.Context) error {
			return s.conns.PutConnection(ctx, recipient, models.ConnectionFollowers, requester)
		},
		undo: func(ctx context.Context) error {
			return s.conns.DeleteConnection(ctx, recipient, models.ConnectionFollowers, requester)
		},
	}
	second := pairStep{
		path: datastore.Join(repository.ConnectionPath(requester, models.ConnectionFollows), recipient),
		apply: func(ctx context.Context) error {
			return s.conns.PutConnection(ctx, requester, models.ConnectionFollows, recipient)
		},
	}
	return s.writePair(ctx, "add_connection", first, second, true, first.path)
}

// AddRequest records a pending request from requester to recipient, with the
// same compensation as AddConnection.
func (s *SocialGraphService) AddRequest(ctx context.Context, requester, recipient string) error {
	first := pairStep{
		path: datastore.Join(repository.RequestPath(requester, models.RequestFollow), recipient),
		apply: func(ctx context.Context) error {
			return s.conns.PutRequest(ctx, models.RequestFollow, requester, recipient)
		},
		undo: func(ctx context.Context) error {
			return s.conns.DeleteRequest(ctx, models.RequestFollow, requester, recipient)
		},
	}
	second := pairStep{
		path: datastore.Join(repository.RequestPath(recipient, models.RequestFollower), requester),
		apply: func(ctx context.Context) error {
			return s.conns.PutRequest(ctx, models.RequestFollower, recipient, requester)
		},
	}
	return s.writePair(ctx, "add_request", first, second, true, first.path)
}

// RemoveRequest deletes userA's {kindA}_requests entry for userB, then userB's
// {kindB}_requests entry for userA. A failed second delete leaves the first
// in effect unless symmetric compensation is enabled for userA.
func (s *SocialGraphService) RemoveRequest(ctx context.Context, userA string, kindA models.RequestKind, userB string, kindB models.RequestKind) error {
	first := pairStep{
		path: datastore.Join(repository.RequestPath(userA, kindA), userB),
		apply: func(ctx context.Context) error {
			return s.conns.DeleteRequest(ctx, kindA, userA, userB)
		},
		undo: func(ctx context.Context) error {
			return s.conns.PutRequest(ctx, kindA, userA, userB)
		},
	}
	second := pairStep{
		path: datastore.Join(repository.RequestPath(userB, kindB), userA),
		apply: func(ctx context.Context) error {
			return s.conns.DeleteRequest(ctx, kindB, userB, userA)
		},
	}
	return s.writePair(ctx, "remove_request", first, second, s.symmetric(userA), second.path)
}

// RemoveConnection deletes userA's {kindA} entry for userB, then userB's
// {kindB} entry for userA, with the same failure rules as RemoveRequest.
func (s *SocialGraphService) RemoveConnection(ctx context.Context, userA string, kindA models.ConnectionKind, userB string, kindB models.ConnectionKind) error {
	first := pairStep{
		path: datastore.Join(repository.ConnectionPath(userA, kindA), userB),
		apply: func(ctx context.Context) error {
			return s.conns.DeleteConnection(ctx, userA, kindA, userB)
		},
		undo: func(ctx context.Context) error {
			return s.conns.PutConnection(ctx, userA, kindA, userB)
		},
	}
	second := pairStep{
		path: datastore.Join(repository.ConnectionPath(userB, kindB), userA),
		apply: func(ctx context.Context) error {
			return s.conns.DeleteConnection(ctx, userB, kindB, userA)
		},
	}
	return s.writePair(ctx, "remove_connection", first, second, s.symmetric(userA), second.path)
}

func (s *SocialGraphService) symmetric(username string) bool {
	return s.flags.Enabled(featureflags.SymmetricCompensation, username)
}

// writePair applies first then second. When second fails and compensate is
// set, first is undone. The caller always gets second's error. leftover names
// the record that stays one-sided if the pair cannot be made consistent.
func (s *SocialGraphService) writePair(ctx context.Context, op string, first, second pairStep, compensate bool, leftover string) error {
	if err := first.apply(ctx); err != nil {
		return err
	}

	err := second.apply(ctx)
	if err == nil {
		return nil
	}

	if !compensate {
		s.reporter.Report(ctx, models.Inconsistency{
			Operation:   op,
			Path:        leftover,
			Cause:       err.Error(),
			Description: "second step failed after " + first.path + " was applied",
		})
		return err
	}

	// Compensation runs even if the request context is already cancelled.
	if undoErr := first.undo(context.WithoutCancel(ctx)); undoErr != nil {
		observability.Compensations.WithLabelValues(op, "failed").Inc()
		s.reporter.Report(ctx, models.Inconsistency{
			Operation:   op,
			Path:        leftover,
			Cause:       err.Error(),
			CleanupErr:  undoErr.Error(),
			Description: "could not undo " + first.path + " after " + second.path + " failed",
		})
		return err
	}

	observability.Compensations.WithLabelValues(op, "ok").Inc()
	observability.Logger.WarnContext(ctx, "compensated partial write",
		slog.String("operation", op),
		slog.String("path", first.path),
		slog.String("error", err.Error()),
	)
	return err
}
