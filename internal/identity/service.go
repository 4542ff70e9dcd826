package identity

import (
	"context"
	"log/slog"
	"time"

	"github.com/bazaarino/bazaar/internal/apperr"
	"github.com/bazaarino/bazaar/internal/logging"
)

// ErrAdminOnly is returned when a non-admin attempts an administrative action.
var ErrAdminOnly = apperr.Unauthorized("admin role required")

// Service exposes principal lookups and administrative lifecycle changes.
type Service struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

// NewService wires the identity service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logging.Component(logger, "identity"), now: time.Now}
}

// Get returns the principal with id.
func (s *Service) Get(ctx context.Context, id string) (Principal, error) {
	return s.repo.FindByID(ctx, id)
}

// Deactivate moves the target principal to deactivated. Existing sessions stop
// authenticating because authentication requires an active principal.
func (s *Service) Deactivate(ctx context.Context, actor Principal, id string) error {
	if !actor.IsAdmin() {
		return ErrAdminOnly
	}
	if err := s.repo.UpdateStatus(ctx, id, StatusDeactivated, s.now().UTC()); err != nil {
		return err
	}
	s.logger.Info("principal deactivated", slog.String("principal_id", id), slog.String("actor_id", actor.ID))
	return nil
}

// GrantAdmin gives the principal the admin role. It is an operator action
// with no HTTP route.
func (s *Service) GrantAdmin(ctx context.Context, id string) error {
	if err := s.repo.AddRole(ctx, id, RoleAdmin, s.now().UTC()); err != nil {
		return err
	}
	s.logger.Info("admin role granted", slog.String("principal_id", id))
	return nil
}

// Delete removes the target principal.
func (s *Service) Delete(ctx context.Context, actor Principal, id string) error {
	if !actor.IsAdmin() {
		return ErrAdminOnly
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("principal deleted", slog.String("principal_id", id), slog.String("actor_id", actor.ID))
	return nil
}
