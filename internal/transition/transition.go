// Package transition enforces the status workflows of projects and briefs.
package transition

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/starford/monteerly/internal/apperr"
	"github.com/starford/monteerly/internal/models"
)

var projectNext = map[models.Status][]models.Status{
	models.StatusDraft:      {models.StatusHiring},
	models.StatusHiring:     {models.StatusInProgress},
	models.StatusInProgress: {models.StatusReview},
	models.StatusReview:     {models.StatusCompleted},
}

var briefNext = map[models.Status][]models.Status{
	models.StatusPending:    {models.StatusAccepted, models.StatusRejected},
	models.StatusAccepted:   {models.StatusInProgress},
	models.StatusInProgress: {models.StatusCompleted},
}

// LegalNext lists the statuses reachable from current in one step.
// Terminal and unknown statuses yield an empty list.
func LegalNext(kind models.Kind, current models.Status) []models.Status {
	var table map[models.Status][]models.Status
	switch kind {
	case models.KindProject:
		table = projectNext
	case models.KindBrief:
		table = briefNext
	}
	return slices.Clone(table[current])
}

// Legal reports whether from → to is a single legal step.
func Legal(kind models.Kind, from, to models.Status) bool {
	return slices.Contains(LegalNext(kind, from), to)
}

// Updater applies partial updates to stored documents.
type Updater interface {
	Update(ctx context.Context, collection, id string, partial map[string]any) error
}

// Controller moves records between statuses.
type Controller struct {
	store  Updater
	logger *slog.Logger
}

// NewController creates a Controller writing through store.
func NewController(store Updater, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{store: store, logger: logger}
}

// Transition writes target as rec's status if the step is legal. Only the
// status field is sent; the record is not re-read, and the caller's live
// view picks the change up. There is no compare-and-swap: concurrent
// transitions of the same record race and the last write wins.
func (c *Controller) Transition(ctx context.Context, rec models.Record, target models.Status) error {
	if !Legal(rec.Kind, rec.Status, target) {
		return fmt.Errorf("%w: %s %s → %s", apperr.ErrIllegalTransition, rec.Kind, rec.Status, target)
	}

	err := c.store.Update(ctx, rec.Kind.Collection(), rec.ID, map[string]any{
		models.FieldStatus: string(target),
	})
	if err != nil {
		return fmt.Errorf("transition %s %s: %w", rec.Kind, rec.ID, err)
	}

	c.logger.Info("status changed",
		slog.String("kind", string(rec.Kind)),
		slog.String("id", rec.ID),
		slog.String("from", string(rec.Status)),
		slog.String("to", string(target)))
	return nil
}
