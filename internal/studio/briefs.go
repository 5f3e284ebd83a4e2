package studio

import (
	"context"

	"github.com/starford/monteerly/internal/models"
	"github.com/starford/monteerly/internal/syncengine"
)

// CreateBrief validates in and stores a new pending brief.
func (s *Service) CreateBrief(ctx context.Context, owner string, in BriefInput) (models.Record, error) {
	in.normalize()
	if err := asValidationError(in.Validate()); err != nil {
		return models.Record{}, err
	}
	return s.create(ctx, models.KindBrief, owner, in.fields())
}

// GetBrief returns one of owner's briefs.
func (s *Service) GetBrief(ctx context.Context, owner, id string) (models.Record, error) {
	return s.get(ctx, models.KindBrief, owner, id)
}

// TransitionBrief moves a brief one step along its workflow.
func (s *Service) TransitionBrief(ctx context.Context, owner, id string, target models.Status) (models.Record, error) {
	return s.transition(ctx, models.KindBrief, owner, id, target)
}

// ListBriefs is a one-shot read of owner's briefs.
func (s *Service) ListBriefs(ctx context.Context, owner string, opts syncengine.Options) (syncengine.View, error) {
	return s.list(ctx, models.KindBrief, owner, opts)
}
