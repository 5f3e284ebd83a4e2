package studio

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/monteerly/internal/models"
	"github.com/starford/monteerly/internal/syncengine"
)

// CreateProject validates in and stores a new draft, unfunded project.
func (s *Service) CreateProject(ctx context.Context, owner string, in ProjectInput) (models.Record, error) {
	in.normalize()
	if err := asValidationError(in.Validate()); err != nil {
		return models.Record{}, err
	}
	fields := in.fields()
	fields[models.FieldEscrowStatus] = string(models.EscrowUnfunded)
	return s.create(ctx, models.KindProject, owner, fields)
}

// GetProject returns one of owner's projects.
func (s *Service) GetProject(ctx context.Context, owner, id string) (models.Record, error) {
	return s.get(ctx, models.KindProject, owner, id)
}

// UpdateProject replaces the editable fields of a project. Status, escrow
// and ownership are left alone.
func (s *Service) UpdateProject(ctx context.Context, owner, id string, in ProjectInput) (models.Record, error) {
	in.normalize()
	if err := asValidationError(in.Validate()); err != nil {
		return models.Record{}, err
	}
	if _, err := s.get(ctx, models.KindProject, owner, id); err != nil {
		return models.Record{}, err
	}
	if err := s.store.Update(ctx, models.CollectionProjects, id, in.fields()); err != nil {
		return models.Record{}, fmt.Errorf("update project %s: %w", id, err)
	}
	return s.get(ctx, models.KindProject, owner, id)
}

// DeleteProject removes a project and its attachments.
func (s *Service) DeleteProject(ctx context.Context, owner, id string) error {
	if _, err := s.get(ctx, models.KindProject, owner, id); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, models.CollectionProjects, id); err != nil {
		return fmt.Errorf("delete project %s: %w", id, err)
	}
	if s.files != nil {
		if err := s.files.DeleteAll(id); err != nil {
			s.logger.Warn("failed to remove project attachments",
				slog.String("id", id),
				slog.String("error", err.Error()))
		}
	}
	s.logger.Info("project deleted", slog.String("id", id), slog.String("owner", owner))
	return nil
}

// TransitionProject moves a project one step along its workflow.
func (s *Service) TransitionProject(ctx context.Context, owner, id string, target models.Status) (models.Record, error) {
	return s.transition(ctx, models.KindProject, owner, id, target)
}

// ListProjects is a one-shot read of owner's projects.
func (s *Service) ListProjects(ctx context.Context, owner string, opts syncengine.Options) (syncengine.View, error) {
	return s.list(ctx, models.KindProject, owner, opts)
}
