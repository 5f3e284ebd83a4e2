package studio

import (
	"context"

	"github.com/starford/monteerly/internal/models"
	"github.com/starford/monteerly/internal/syncengine"
)

// Dashboard window sizes.
const (
	dashboardLimit  = 10
	dashboardRecent = 5
	dashboardActive = 3
)

// Dashboard is the overview panel: headline numbers plus short lists.
type Dashboard struct {
	Projects      syncengine.Aggregates `json:"projects"`
	Briefs        syncengine.Aggregates `json:"briefs"`
	PendingBriefs int                   `json:"pending_briefs"`
	Recent        []models.Record       `json:"recent"`
	Active        []models.Record       `json:"active"`
}

// BuildDashboard summarizes the newest projects of a view and the briefs view.
func BuildDashboard(projects, briefs syncengine.View) Dashboard {
	active := projects.WithStatus(models.StatusInProgress, models.StatusReview)
	if len(active) > dashboardActive {
		active = active[:dashboardActive]
	}
	return Dashboard{
		Projects:      projects.Aggregates,
		Briefs:        briefs.Aggregates,
		PendingBriefs: briefs.Aggregates.Count(models.StatusPending),
		Recent:        projects.Recent(dashboardRecent),
		Active:        active,
	}
}

// Dashboard reads owner's newest projects and all briefs once.
func (s *Service) Dashboard(ctx context.Context, owner string) (Dashboard, error) {
	projects, err := s.ListProjects(ctx, owner, syncengine.Options{Limit: dashboardLimit})
	if err != nil {
		return Dashboard{}, err
	}
	briefs, err := s.ListBriefs(ctx, owner, syncengine.Options{})
	if err != nil {
		return Dashboard{}, err
	}
	return BuildDashboard(projects, briefs), nil
}
