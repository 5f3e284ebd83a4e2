// Package studio implements the validated project and brief operations
// behind the dashboard.
package studio

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/monteerly/internal/apperr"
	"github.com/starford/monteerly/internal/docstore"
	"github.com/starford/monteerly/internal/models"
	"github.com/starford/monteerly/internal/storage"
	"github.com/starford/monteerly/internal/syncengine"
	"github.com/starford/monteerly/internal/transition"
)

// Store is the part of the document gateway the services use.
type Store interface {
	Create(ctx context.Context, collection string, fields map[string]any) (string, error)
	Get(ctx context.Context, collection, id string) (docstore.Doc, error)
	Update(ctx context.Context, collection, id string, partial map[string]any) error
	Delete(ctx context.Context, collection, id string) error
	Find(ctx context.Context, collection string, q docstore.Query) ([]docstore.Doc, error)
}

// Service coordinates the document store, status workflow and attachments.
type Service struct {
	store       Store
	transitions *transition.Controller
	files       storage.Provider
	logger      *slog.Logger
}

// NewService creates a studio service. files may be nil when attachments
// are not configured.
func NewService(store Store, files storage.Provider, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:       store,
		transitions: transition.NewController(store, logger),
		files:       files,
		logger:      logger,
	}
}

// get loads one record and hides records of other owners behind NotFound.
func (s *Service) get(ctx context.Context, kind models.Kind, owner, id string) (models.Record, error) {
	if owner == "" {
		return models.Record{}, apperr.ErrNotAuthenticated
	}
	doc, err := s.store.Get(ctx, kind.Collection(), id)
	if err != nil {
		return models.Record{}, err
	}
	rec := models.Materialize(kind, doc.ID, doc.Fields)
	if rec.OwnerID != owner {
		return models.Record{}, apperr.ErrNotFound
	}
	return rec, nil
}

func (s *Service) create(ctx context.Context, kind models.Kind, owner string, fields map[string]any) (models.Record, error) {
	if owner == "" {
		return models.Record{}, apperr.ErrNotAuthenticated
	}
	fields[models.FieldOwner] = owner
	fields[models.FieldStatus] = string(kind.InitialStatus())
	fields[models.FieldCreatedAt] = docstore.ServerTimestamp

	id, err := s.store.Create(ctx, kind.Collection(), fields)
	if err != nil {
		return models.Record{}, fmt.Errorf("create %s: %w", kind, err)
	}
	s.logger.Info("record created",
		slog.String("kind", string(kind)),
		slog.String("id", id),
		slog.String("owner", owner))
	return s.get(ctx, kind, owner, id)
}

func (s *Service) transition(ctx context.Context, kind models.Kind, owner, id string, target models.Status) (models.Record, error) {
	rec, err := s.get(ctx, kind, owner, id)
	if err != nil {
		return models.Record{}, err
	}
	if err := s.transitions.Transition(ctx, rec, target); err != nil {
		return models.Record{}, err
	}
	rec.Status = target
	return rec, nil
}

// list is a one-shot read of an owner's records, reconciled the same way a
// live view is.
func (s *Service) list(ctx context.Context, kind models.Kind, owner string, opts syncengine.Options) (syncengine.View, error) {
	if owner == "" {
		return syncengine.View{}, apperr.ErrNotAuthenticated
	}
	where := append([]docstore.Filter{
		docstore.Where(models.FieldOwner, docstore.OpEqual, owner),
	}, opts.Match...)
	docs, err := s.store.Find(ctx, kind.Collection(), docstore.Query{
		Where:   where,
		OrderBy: models.FieldCreatedAt,
		Desc:    true,
		Limit:   opts.Limit,
	})
	if err != nil {
		return syncengine.View{}, fmt.Errorf("list %s: %w", kind, err)
	}
	return syncengine.Reconcile(kind, docs, opts), nil
}
